package handlers

import (
	"context"
	"time"

	"whatsapp-dispatch-go/internal/metrics"
	"whatsapp-dispatch-go/internal/models"
	"whatsapp-dispatch-go/internal/session"
)

// Queue is the store surface the HTTP layer needs.
type Queue interface {
	Enqueue(ctx context.Context, recipient, body, attachment string) (uint, error)
	GetMessage(ctx context.Context, id uint) (*models.Message, error)
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)
	Ping(ctx context.Context) error
	Path() string
}

// Dispatcher is the dispatch loop control surface.
type Dispatcher interface {
	Start() error
	Stop() error
	IsRunning() bool
}

// SessionSource exposes the monitored channel state.
type SessionSource interface {
	Current() session.State
}

// ChallengeSource fetches the authentication challenge image.
type ChallengeSource interface {
	ChallengeArtifact(ctx context.Context) ([]byte, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	queue      Queue
	dispatcher Dispatcher
	sess       SessionSource
	challenge  ChallengeSource
	metrics    *metrics.Metrics
	startedAt  time.Time
}

// NewHandlers creates new HTTP handlers
func NewHandlers(queue Queue, dispatcher Dispatcher, sess SessionSource, challenge ChallengeSource, m *metrics.Metrics) *Handlers {
	return &Handlers{
		queue:      queue,
		dispatcher: dispatcher,
		sess:       sess,
		challenge:  challenge,
		metrics:    m,
		startedAt:  time.Now(),
	}
}
