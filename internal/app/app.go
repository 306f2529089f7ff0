package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"whatsapp-dispatch-go/internal/audit"
	"whatsapp-dispatch-go/internal/config"
	"whatsapp-dispatch-go/internal/dedup"
	"whatsapp-dispatch-go/internal/dispatch"
	"whatsapp-dispatch-go/internal/driver"
	"whatsapp-dispatch-go/internal/handlers"
	"whatsapp-dispatch-go/internal/metrics"
	"whatsapp-dispatch-go/internal/models"
	"whatsapp-dispatch-go/internal/server"
	"whatsapp-dispatch-go/internal/session"
	"whatsapp-dispatch-go/internal/store"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting WhatsApp Dispatch Service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// The queue store is the only component allowed to abort startup:
	// nothing here can run without durable storage.
	queue, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize queue store: %w", err)
	}

	// Re-queue work abandoned by an ungraceful shutdown before the loop
	// starts claiming.
	if _, err := queue.ReleaseStale(context.Background(), cfg.Store.StaleAfter, cfg.Store.MaxAttempts); err != nil {
		logrus.Errorf("Stale message sweep failed: %v", err)
	}

	m := metrics.NewMetrics()
	ledger := audit.New(cfg.Audit.Dir)
	drv := driver.NewHTTPDriver(cfg.Driver)

	monitor := session.NewMonitor(drv, cfg.Session.PollInterval, cfg.Driver.ProbeTimeout)
	monitor.Start()
	go watchSession(monitor, m)

	guard := dedup.NewGuard(queue, cfg.Duplicate.Window)
	if !guard.Enabled() {
		logrus.Warn("Duplicate suppression disabled by configuration")
	}

	loop := dispatch.NewLoop(queue, guard, drv, ledger, m, cfg.Dispatch)
	if cfg.Dispatch.AutoStart {
		if err := loop.Start(); err != nil {
			return fmt.Errorf("failed to start dispatch loop: %w", err)
		}
	}

	maintenance := startMaintenance(queue, m)

	h := handlers.NewHandlers(queue, loop, monitor, drv, m)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	maintenance.Stop()

	// Stop waits for the in-flight delivery to reach its terminal write.
	if err := loop.Stop(); err != nil {
		logrus.Errorf("Failed to stop dispatch loop: %v", err)
	}
	monitor.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}

// watchSession mirrors session transitions into the state gauge and logs
// session loss. The orchestrating layer can subscribe the same way to react
// to a duplicate-session disconnect.
func watchSession(monitor *session.Monitor, m *metrics.Metrics) {
	states := []session.State{
		session.StateUninitialized,
		session.StateLoading,
		session.StateWaitingAuth,
		session.StateConnected,
	}
	setGauge := func(active session.State) {
		for _, s := range states {
			v := 0.0
			if s == active {
				v = 1.0
			}
			m.SessionState.WithLabelValues(string(s)).Set(v)
		}
	}
	setGauge(monitor.Current())

	prev := monitor.Current()
	for state := range monitor.Subscribe() {
		setGauge(state)
		if prev == session.StateConnected && state != session.StateConnected {
			logrus.Warnf("Delivery channel session lost: now %s", state)
		}
		prev = state
	}
}

// startMaintenance runs periodic background jobs: refreshing the queue
// depth gauge. The dispatch loop itself stays a plain goroutine; cron is
// only for housekeeping.
func startMaintenance(queue *store.Store, m *metrics.Metrics) *cron.Cron {
	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc("*/30 * * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		counts, err := queue.CountByStatus(ctx)
		if err != nil {
			logrus.Errorf("Queue depth refresh failed: %v", err)
			return
		}
		m.QueueDepth.Set(float64(counts[models.StatusPending]))
	})
	if err != nil {
		logrus.Errorf("Failed to schedule maintenance job: %v", err)
	}

	c.Start()
	return c
}
