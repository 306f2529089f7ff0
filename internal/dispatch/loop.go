// Package dispatch runs the single sequential consumer of the message
// queue. There is exactly one loop and it never runs two deliveries
// concurrently: the delivery channel tolerates only one in-flight send and
// punishes bursty traffic, so pacing and sequencing live here.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"whatsapp-dispatch-go/internal/config"
	"whatsapp-dispatch-go/internal/driver"
	"whatsapp-dispatch-go/internal/metrics"
	"whatsapp-dispatch-go/internal/models"
)

// Queue is the claim/finalize slice of the queue store.
type Queue interface {
	ClaimNextPending(ctx context.Context) (*models.Message, error)
	MarkTerminal(ctx context.Context, id uint, status models.Status, detail string) error
}

// Guard is the duplicate check consulted before every delivery.
type Guard interface {
	Enabled() bool
	Check(ctx context.Context, recipient, body string, excludeID uint) (bool, string, error)
}

// Ledger records terminal outcomes, best-effort.
type Ledger interface {
	Append(recipient, bodyOrLabel, status string)
}

type outcome int

const (
	outcomeIdle outcome = iota
	outcomeSent
	outcomeDuplicate
	outcomeError
)

// Loop is the dispatch loop. Start/Stop are safe to call repeatedly; Stop
// waits for the in-flight iteration to reach its terminal write so no
// message is left stuck in PROCESSING by a graceful shutdown.
type Loop struct {
	queue   Queue
	guard   Guard
	drv     driver.Driver
	ledger  Ledger
	metrics *metrics.Metrics
	cfg     config.DispatchConfig

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
}

// NewLoop creates a dispatch loop
func NewLoop(queue Queue, guard Guard, drv driver.Driver, ledger Ledger, m *metrics.Metrics, cfg config.DispatchConfig) *Loop {
	return &Loop{
		queue:   queue,
		guard:   guard,
		drv:     drv,
		ledger:  ledger,
		metrics: m,
		cfg:     cfg,
	}
}

// Start starts the dispatch loop
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.isRunning {
		return fmt.Errorf("dispatch loop is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.isRunning = true

	l.wg.Add(1)
	go l.run(ctx)

	logrus.Infof("Dispatch loop started (idle %s, pre-send %s, post-send %s)",
		l.cfg.IdleInterval, l.cfg.PreSendDelay, l.cfg.PostSendDelay)
	return nil
}

// Stop stops the dispatch loop and waits for the current iteration to
// finish its terminal write.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if !l.isRunning {
		l.mu.Unlock()
		return nil
	}
	l.cancel()
	l.isRunning = false
	l.mu.Unlock()

	l.wg.Wait()
	logrus.Info("Dispatch loop stopped")
	return nil
}

// IsRunning returns whether the dispatch loop is running
func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isRunning
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := l.iterate(ctx)
		if err != nil {
			// One bad iteration degrades throughput, never availability:
			// log, back off, resume.
			logrus.Errorf("Dispatch iteration failed: %v", err)
			if !sleepCtx(ctx, l.cfg.ErrorBackoff) {
				return
			}
			continue
		}

		switch res {
		case outcomeIdle:
			if !sleepCtx(ctx, l.cfg.IdleInterval) {
				return
			}
		case outcomeSent:
			// Additional throttle after a successful send.
			if !sleepCtx(ctx, l.cfg.PostSendDelay) {
				return
			}
		default:
			// Duplicates and delivery errors move on immediately.
		}
	}
}

// iterate claims and fully processes at most one message. Panics inside the
// iteration are converted to errors so the loop survives them.
func (l *Loop) iterate(ctx context.Context) (res outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("iteration panic: %v", r)
		}
	}()

	msg, err := l.queue.ClaimNextPending(ctx)
	if err != nil {
		return outcomeIdle, fmt.Errorf("failed to claim next message: %w", err)
	}
	if msg == nil {
		return outcomeIdle, nil
	}

	logrus.Infof("Claimed message %d for %s (attempt %d)", msg.ID, msg.Recipient, msg.Attempts)
	l.metrics.ClaimsTotal.Inc()

	// Once claimed, the message must reach a terminal state even while
	// shutting down; writes use a context that survives cancellation.
	writeCtx := context.WithoutCancel(ctx)

	if l.guard.Enabled() {
		dup, reason, gerr := l.guard.Check(ctx, msg.Recipient, msg.Body, msg.ID)
		if gerr != nil {
			// Best-effort check: on lookup failure deliver rather than drop.
			logrus.Warnf("Duplicate check for message %d failed: %v", msg.ID, gerr)
		}
		if dup {
			if merr := l.queue.MarkTerminal(writeCtx, msg.ID, models.StatusDuplicate, reason); merr != nil {
				return outcomeDuplicate, fmt.Errorf("failed to finalize duplicate %d: %w", msg.ID, merr)
			}
			l.metrics.DuplicatesTotal.Inc()
			logrus.Infof("Message %d suppressed: %s", msg.ID, reason)
			return outcomeDuplicate, nil
		}
	}

	// Pace traffic into the channel before every send.
	sleep(l.cfg.PreSendDelay)

	start := time.Now()
	serr := l.drv.Send(ctx, msg.Recipient, msg.Body, msg.Attachment)
	l.metrics.DeliveryDuration.Observe(time.Since(start).Seconds())

	if serr != nil {
		if merr := l.queue.MarkTerminal(writeCtx, msg.ID, models.StatusError, serr.Error()); merr != nil {
			return outcomeError, fmt.Errorf("failed to finalize errored %d: %w", msg.ID, merr)
		}
		l.ledger.Append(msg.Recipient, auditLabel(msg), "error: "+serr.Error())
		l.metrics.ErrorsTotal.Inc()
		logrus.Errorf("Delivery of message %d to %s failed: %v", msg.ID, msg.Recipient, serr)
		return outcomeError, nil
	}

	if merr := l.queue.MarkTerminal(writeCtx, msg.ID, models.StatusSent, ""); merr != nil {
		return outcomeSent, fmt.Errorf("failed to finalize sent %d: %w", msg.ID, merr)
	}
	l.ledger.Append(msg.Recipient, auditLabel(msg), "success")
	l.metrics.SentTotal.Inc()
	logrus.Infof("Message %d delivered to %s in %s", msg.ID, msg.Recipient, time.Since(start).Round(time.Millisecond))
	return outcomeSent, nil
}

// auditLabel is the body column of the audit row: the message text, or a
// label for attachment-only sends.
func auditLabel(m *models.Message) string {
	if m.Body == "" && m.Attachment != "" {
		return "Image Attachment"
	}
	return m.Body
}

// sleepCtx sleeps for d unless ctx is cancelled first; it reports whether
// the full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// sleep pauses unconditionally; used inside an active iteration where the
// claimed message must still reach its terminal write.
func sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
