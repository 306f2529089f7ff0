package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendCreatesFileWithHeader(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	l.Append("51999", "Hello", "success")
	l.Append("51999", "Hello again", "error: channel not ready")

	data, err := os.ReadFile(filepath.Join(dir, "conversations.csv"))
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "Timestamp,Recipient,Message,Status")
	assert.Contains(t, content, "51999,Hello,success")
	assert.Contains(t, content, "51999,Hello again,error: channel not ready")
}

func TestAppendHeaderWrittenOnce(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	l.Append("51999", "one", "success")
	l.Append("51999", "two", "success")

	data, err := os.ReadFile(filepath.Join(dir, "conversations.csv"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "Timestamp,Recipient,Message,Status"))
}

func TestAppendFallsBackWhenPrimaryUnwritable(t *testing.T) {
	dir := t.TempDir()
	// Occupy the primary path with a directory so opening it as a file fails.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "conversations.csv"), 0o755))

	l := New(dir)
	l.Append("51999", "Hello", "success")

	fallback := filepath.Join(dir, fmt.Sprintf("conversations_%s.csv", time.Now().Format("20060102")))
	data, err := os.ReadFile(fallback)
	require.NoError(t, err)
	assert.Contains(t, string(data), "51999,Hello,success")
}

func TestAppendSwallowsTotalFailure(t *testing.T) {
	// Nonexistent directory: both primary and fallback writes fail. Append
	// must not panic; audit logging never affects message processing.
	l := New(filepath.Join(t.TempDir(), "missing"))
	assert.NotPanics(t, func() {
		l.Append("51999", "Hello", "success")
	})
}
