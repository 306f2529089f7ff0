// Package session classifies the delivery channel's lifecycle by polling the
// driver's two marker probes. The classification feeds the status surface;
// it does not gate the dispatch loop, which simply lets a send against a
// non-ready channel fail fast.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"whatsapp-dispatch-go/internal/driver"
)

// State is the delivery channel's authentication/readiness phase.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateWaitingAuth   State = "waiting_authentication"
	StateConnected     State = "connected"
)

// Prober is the subset of the delivery driver the monitor needs.
type Prober interface {
	ProbeAuthenticated(ctx context.Context) (bool, error)
	ProbeChallenge(ctx context.Context) (bool, error)
}

// Monitor polls the delivery channel and exposes its current state plus a
// stream of state-transition events.
type Monitor struct {
	prober       Prober
	pollInterval time.Duration
	probeTimeout time.Duration

	current atomic.Value // State

	mu        sync.Mutex
	subs      []chan State
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
}

// NewMonitor creates a session monitor polling every pollInterval, with each
// probe bounded by probeTimeout.
func NewMonitor(prober Prober, pollInterval, probeTimeout time.Duration) *Monitor {
	m := &Monitor{
		prober:       prober,
		pollInterval: pollInterval,
		probeTimeout: probeTimeout,
	}
	m.current.Store(StateUninitialized)
	return m
}

// Current returns the last observed state. Safe for concurrent use.
func (m *Monitor) Current() State {
	return m.current.Load().(State)
}

// Subscribe returns a channel receiving every state transition. Slow
// subscribers miss events rather than blocking the monitor.
func (m *Monitor) Subscribe() <-chan State {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan State, 8)
	m.subs = append(m.subs, ch)
	return ch
}

// Start begins polling. Returns false if the monitor is already running.
func (m *Monitor) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.isRunning = true

	go m.run(ctx)

	logrus.Infof("Session monitor started (interval %s)", m.pollInterval)
	return true
}

// Stop halts polling and waits for the poll goroutine to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.cancel()
	done := m.done
	m.isRunning = false
	m.mu.Unlock()

	<-done
	logrus.Info("Session monitor stopped")
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	m.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	next := m.Classify(ctx)
	prev := m.current.Load().(State)
	if next == prev {
		return
	}

	m.current.Store(next)
	logrus.Infof("Session state changed: %s -> %s", prev, next)
	m.publish(next)
}

// Classify probes the channel once and maps the two marker signals onto a
// state: authenticated marker wins, then the challenge marker, and absence
// of both within the probe timeout means the client is still loading.
func (m *Monitor) Classify(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	authed, err := m.prober.ProbeAuthenticated(ctx)
	if errors.Is(err, driver.ErrNotInitialized) {
		return StateUninitialized
	}
	if err == nil && authed {
		return StateConnected
	}

	challenge, err := m.prober.ProbeChallenge(ctx)
	if errors.Is(err, driver.ErrNotInitialized) {
		return StateUninitialized
	}
	if err == nil && challenge {
		return StateWaitingAuth
	}

	return StateLoading
}

func (m *Monitor) publish(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
		}
	}
}
