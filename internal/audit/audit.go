// Package audit keeps an append-only CSV ledger of delivery outcomes,
// independent of the queue database so that history survives even if the
// store becomes unreadable. Writes are best-effort: a failed primary write
// falls back to a date-stamped secondary file, and a failure of both is
// logged and swallowed. Audit logging never blocks message processing.
package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const primaryFileName = "conversations.csv"

var header = []string{"Timestamp", "Recipient", "Message", "Status"}

// Log is the append-only outcome ledger.
type Log struct {
	dir string
	mu  sync.Mutex
}

// New creates an audit log writing under dir.
func New(dir string) *Log {
	return &Log{dir: dir}
}

// Append records one terminal outcome. bodyOrLabel is the message body, or a
// short label when the body is empty (attachment-only sends).
func (l *Log) Append(recipient, bodyOrLabel, status string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := []string{
		time.Now().Format("2006-01-02 15:04:05"),
		recipient,
		bodyOrLabel,
		status,
	}

	primary := filepath.Join(l.dir, primaryFileName)
	err := appendRow(primary, row)
	if err == nil {
		return
	}
	logrus.Warnf("Audit write to %s failed, trying fallback: %v", primary, err)

	fallback := filepath.Join(l.dir, fmt.Sprintf("conversations_%s.csv", time.Now().Format("20060102")))
	if err := appendRow(fallback, row); err != nil {
		logrus.Errorf("Audit write to fallback %s failed, dropping entry: %v", fallback, err)
	}
}

func appendRow(path string, row []string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
