package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-dispatch-go/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := openFirst([]string{filepath.Join(t.TempDir(), "messages.sqlite")})
	require.NoError(t, err)
	return s
}

func TestEnqueueAssignsIncreasingIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Enqueue(ctx, "51999", "one", "")
	require.NoError(t, err)
	second, err := s.Enqueue(ctx, "51999", "two", "")
	require.NoError(t, err)

	assert.Greater(t, second, first)
}

func TestClaimNextPendingFIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []uint
	for _, body := range []string{"first", "second", "third"} {
		id, err := s.Enqueue(ctx, "51999", body, "")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for i, want := range []string{"first", "second", "third"} {
		msg, err := s.ClaimNextPending(ctx)
		require.NoError(t, err)
		require.NotNil(t, msg, "claim %d should return a message", i)
		assert.Equal(t, ids[i], msg.ID)
		assert.Equal(t, want, msg.Body)
		assert.Equal(t, models.StatusProcessing, msg.Status)
		assert.Equal(t, 1, msg.Attempts)

		// Finalize so the next claim can proceed past it.
		require.NoError(t, s.MarkTerminal(ctx, msg.ID, models.StatusSent, ""))
	}

	msg, err := s.ClaimNextPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, msg, "empty queue should claim nothing")
}

func TestClaimTiesBrokenByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Force identical createdAt on two rows.
	now := time.Now().UTC().Truncate(time.Second)
	a := models.Message{Recipient: "51999", Body: "a", Status: models.StatusPending, CreatedAt: now}
	b := models.Message{Recipient: "51999", Body: "b", Status: models.StatusPending, CreatedAt: now}
	require.NoError(t, s.db.Create(&a).Error)
	require.NoError(t, s.db.Create(&b).Error)

	msg, err := s.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, a.ID, msg.ID)
}

func TestAtMostOneProcessing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, "51999", "only", "")
	require.NoError(t, err)

	first, err := s.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	// A second claim while one message is in flight finds nothing.
	second, err := s.ClaimNextPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, second)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.StatusProcessing])
}

func TestMarkTerminalSetsProcessedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, "51999", "hello", "")
	require.NoError(t, err)
	_, err = s.ClaimNextPending(ctx)
	require.NoError(t, err)

	require.NoError(t, s.MarkTerminal(ctx, id, models.StatusSent, ""))

	msg, err := s.GetMessage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, msg.Status)
	require.NotNil(t, msg.ProcessedAt)
	assert.WithinDuration(t, time.Now().UTC(), *msg.ProcessedAt, 5*time.Second)
}

func TestMarkTerminalFinality(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, "51999", "hello", "")
	require.NoError(t, err)
	_, err = s.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, s.MarkTerminal(ctx, id, models.StatusError, "channel not ready"))

	// A second terminal write must be rejected and change nothing.
	err = s.MarkTerminal(ctx, id, models.StatusSent, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	msg, err := s.GetMessage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, msg.Status)
	assert.Equal(t, "channel not ready", msg.ErrorDetail)
}

func TestMarkTerminalErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.MarkTerminal(ctx, 12345, models.StatusSent, ""), ErrNotFound)

	id, err := s.Enqueue(ctx, "51999", "hello", "")
	require.NoError(t, err)

	// Not yet claimed: PENDING -> terminal is invalid.
	assert.ErrorIs(t, s.MarkTerminal(ctx, id, models.StatusSent, ""), ErrInvalidTransition)

	_, err = s.ClaimNextPending(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, s.MarkTerminal(ctx, id, models.StatusPending, ""), ErrInvalidTransition)
}

func TestRecentByRecipientFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rows := []models.Message{
		{Recipient: "51999", Body: "hi", Status: models.StatusSent, CreatedAt: now.Add(-30 * time.Second)},
		{Recipient: "51999", Body: "old", Status: models.StatusSent, CreatedAt: now.Add(-2 * time.Minute)},
		{Recipient: "51999", Body: "failed", Status: models.StatusError, CreatedAt: now.Add(-10 * time.Second)},
		{Recipient: "52000", Body: "hi", Status: models.StatusSent, CreatedAt: now.Add(-10 * time.Second)},
	}
	for i := range rows {
		require.NoError(t, s.db.Create(&rows[i]).Error)
	}

	recent, err := s.RecentByRecipient(ctx, "51999", 0, now.Add(-60*time.Second), 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "hi", recent[0].Body)
}

func TestOpenFallsBackToNextCandidate(t *testing.T) {
	dir := t.TempDir()

	// First candidate is unusable: its parent "directory" is a plain file.
	blocker := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	bad := filepath.Join(blocker, "sub", "messages.sqlite")
	good := filepath.Join(dir, "ok", "messages.sqlite")

	s, err := openFirst([]string{bad, good})
	require.NoError(t, err)
	assert.Equal(t, good, s.Path())

	// The adopted location is usable.
	_, err = s.Enqueue(context.Background(), "51999", "hello", "")
	assert.NoError(t, err)
}

func TestOpenAllCandidatesFail(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := openFirst([]string{filepath.Join(blocker, "a", "db.sqlite"), filepath.Join(blocker, "b", "db.sqlite")})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestReleaseStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := models.Message{Recipient: "51999", Body: "crashed", Status: models.StatusProcessing, Attempts: 1, CreatedAt: now.Add(-time.Hour)}
	poison := models.Message{Recipient: "51999", Body: "poison", Status: models.StatusProcessing, Attempts: 3, CreatedAt: now.Add(-time.Hour)}
	fresh := models.Message{Recipient: "51999", Body: "in flight", Status: models.StatusProcessing, Attempts: 1, CreatedAt: now}
	for _, m := range []*models.Message{&stale, &poison, &fresh} {
		require.NoError(t, s.db.Create(m).Error)
	}

	released, err := s.ReleaseStale(ctx, 10*time.Minute, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	got, err := s.GetMessage(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	got, err = s.GetMessage(ctx, poison.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Contains(t, got.ErrorDetail, "abandoned")

	got, err = s.GetMessage(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)
}
