package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"whatsapp-dispatch-go/internal/config"
	"whatsapp-dispatch-go/internal/models"
)

var (
	// ErrStoreUnavailable means no candidate storage location was writable.
	// This is the only unrecoverable startup error in the dispatch core.
	ErrStoreUnavailable = errors.New("could not open queue database at any candidate location")

	// ErrNotFound is returned when a message id is unknown.
	ErrNotFound = errors.New("message not found")

	// ErrInvalidTransition is returned when a terminal write targets a
	// message that is not currently PROCESSING.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store is the durable message queue, the single source of truth for
// message lifecycle state.
type Store struct {
	db   *gorm.DB
	path string
}

// Open resolves a writable storage location and initializes the schema.
// Candidates are tried in order; the first location where the database can
// be created and migrated wins. Returns ErrStoreUnavailable when all fail.
func Open(cfg config.StoreConfig) (*Store, error) {
	return openFirst(candidatePaths(cfg.Path, cfg.DirName, cfg.FileName))
}

func openFirst(candidates []string) (*Store, error) {
	for _, path := range candidates {
		logrus.Infof("Attempting queue database path: %s", path)

		db, err := openAt(path)
		if err != nil {
			logrus.Warnf("Failed to open queue database at %s: %v", path, err)
			continue
		}

		logrus.Infof("Queue database initialized at: %s", path)
		return &Store{db: db, path: path}, nil
	}

	return nil, ErrStoreUnavailable
}

func openAt(path string) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}

	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	// SQLite tolerates exactly one writer; a larger pool only trades
	// lock errors for busy timeouts.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Message{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	return db, nil
}

// Path returns the resolved database file location.
func (s *Store) Path() string {
	return s.path
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.WithContext(ctx).Raw("SELECT 1").Error
}

// Enqueue inserts a new PENDING message and returns its assigned id.
// Recipient/body validation is the producer interface's job; Enqueue fails
// only on storage errors.
func (s *Store) Enqueue(ctx context.Context, recipient, body, attachment string) (uint, error) {
	msg := models.Message{
		Recipient:  recipient,
		Body:       body,
		Attachment: attachment,
		Status:     models.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return 0, fmt.Errorf("failed to enqueue message: %w", err)
	}

	logrus.Infof("Queued message %d for %s", msg.ID, recipient)
	return msg.ID, nil
}

// ClaimNextPending atomically selects the oldest PENDING message (ties
// broken by ascending id) and transitions it to PROCESSING in the same
// transaction. Returns (nil, nil) when the queue is empty. The guarded
// UPDATE means a concurrent second claimer cannot take the same message
// even though only one consumer exists today.
func (s *Store) ClaimNextPending(ctx context.Context) (*models.Message, error) {
	var claimed *models.Message

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Message
		err := tx.Where("status = ?", models.StatusPending).
			Order("created_at ASC, id ASC").
			First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to select pending message: %w", err)
		}

		res := tx.Model(&models.Message{}).
			Where("id = ? AND status = ?", m.ID, models.StatusPending).
			Updates(map[string]interface{}{
				"status":   models.StatusProcessing,
				"attempts": gorm.Expr("attempts + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to claim message %d: %w", m.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost the race to another claimer; the next poll retries.
			return nil
		}

		m.Status = models.StatusProcessing
		m.Attempts++
		claimed = &m
		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

// MarkTerminal finalizes a PROCESSING message with a terminal status and
// sets ProcessedAt. Returns ErrNotFound for unknown ids and
// ErrInvalidTransition when the message is not currently PROCESSING.
func (s *Store) MarkTerminal(ctx context.Context, id uint, status models.Status, detail string) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %s is not a terminal status", ErrInvalidTransition, status)
	}

	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND status = ?", id, models.StatusProcessing).
		Updates(map[string]interface{}{
			"status":       status,
			"processed_at": now,
			"error_detail": detail,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to finalize message %d: %w", id, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var m models.Message
	err := s.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to inspect message %d: %w", id, err)
	}
	return fmt.Errorf("%w: message %d is %s, expected %s", ErrInvalidTransition, id, m.Status, models.StatusProcessing)
}

// RecentByRecipient returns up to limit messages to the same recipient with
// status SENT or PROCESSING created at or after since, newest first,
// excluding excludeID. This feeds the duplicate guard.
func (s *Store) RecentByRecipient(ctx context.Context, recipient string, excludeID uint, since time.Time, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("recipient = ? AND id != ? AND status IN ? AND created_at >= ?",
			recipient, excludeID, []models.Status{models.StatusSent, models.StatusProcessing}, since).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	return msgs, nil
}

// GetMessage returns a single message by id.
func (s *Store) GetMessage(ctx context.Context, id uint) (*models.Message, error) {
	var m models.Message
	err := s.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message %d: %w", id, err)
	}
	return &m, nil
}

// CountByStatus returns the number of messages per lifecycle status.
func (s *Store) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	type row struct {
		Status models.Status
		N      int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	counts := make(map[models.Status]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// ReleaseStale re-queues PROCESSING messages abandoned by an ungraceful
// shutdown. Rows older than olderThan go back to PENDING while their claim
// count is below maxAttempts; beyond that they are finalized as ERROR so a
// poison message cannot be reprocessed forever. Returns the number of
// re-queued messages. Intended to run once at startup, before the dispatch
// loop starts.
func (s *Store) ReleaseStale(ctx context.Context, olderThan time.Duration, maxAttempts int) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	now := time.Now().UTC()

	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("status = ? AND created_at < ? AND attempts >= ?", models.StatusProcessing, cutoff, maxAttempts).
		Updates(map[string]interface{}{
			"status":       models.StatusError,
			"processed_at": now,
			"error_detail": fmt.Sprintf("abandoned after %d delivery attempts", maxAttempts),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to finalize exhausted messages: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		logrus.Warnf("Finalized %d exhausted stale messages as ERROR", res.RowsAffected)
	}

	res = s.db.WithContext(ctx).Model(&models.Message{}).
		Where("status = ? AND created_at < ?", models.StatusProcessing, cutoff).
		Update("status", models.StatusPending)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to release stale messages: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		logrus.Warnf("Released %d stale PROCESSING messages back to PENDING", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
