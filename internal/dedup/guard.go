// Package dedup suppresses near-duplicate sends: an exact-content match to
// the same recipient inside a trailing time window is not delivered again.
// Matching is exact string equality after trimming whitespace; there is no
// fuzzy similarity scoring.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"whatsapp-dispatch-go/internal/models"
)

// recentLimit bounds how many prior messages are compared per check.
const recentLimit = 5

// RecentLookup is the queue-store query the guard needs.
type RecentLookup interface {
	RecentByRecipient(ctx context.Context, recipient string, excludeID uint, since time.Time, limit int) ([]models.Message, error)
}

// Guard checks a claimed message against recent deliveries to the same
// recipient.
type Guard struct {
	store  RecentLookup
	window time.Duration
}

// NewGuard creates a duplicate guard. A window of 0 (or less) disables it.
func NewGuard(store RecentLookup, window time.Duration) *Guard {
	return &Guard{store: store, window: window}
}

// Enabled reports whether duplicate checking is active.
func (g *Guard) Enabled() bool {
	return g.window > 0
}

// Check reports whether the candidate body was already sent (or is being
// sent) to recipient within the window. excludeID is the message currently
// under evaluation, which is itself already persisted as PROCESSING. On a
// hit the returned reason includes the elapsed seconds.
func (g *Guard) Check(ctx context.Context, recipient, body string, excludeID uint) (bool, string, error) {
	if !g.Enabled() {
		return false, "", nil
	}

	since := time.Now().UTC().Add(-g.window)
	recent, err := g.store.RecentByRecipient(ctx, recipient, excludeID, since, recentLimit)
	if err != nil {
		return false, "", fmt.Errorf("failed to fetch recent messages: %w", err)
	}

	candidate := strings.TrimSpace(body)
	for _, prev := range recent {
		elapsed := int(time.Since(prev.CreatedAt).Seconds())
		if strings.TrimSpace(prev.Body) == candidate {
			logrus.Infof("Exact duplicate for %s detected (message %d, %ds ago)", recipient, prev.ID, elapsed)
			return true, fmt.Sprintf("exact duplicate sent %ds ago", elapsed), nil
		}
		logrus.Debugf("Message %d to %s differs (%ds ago)", prev.ID, recipient, elapsed)
	}

	return false, "", nil
}
