package models

import (
	"time"
)

// Status is the lifecycle state of a queued message. Transitions only move
// forward: PENDING -> PROCESSING -> {SENT, DUPLICATE, ERROR}.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSent       Status = "SENT"
	StatusDuplicate  Status = "DUPLICATE"
	StatusError      Status = "ERROR"
)

// Terminal reports whether a message in this status will never transition again.
func (s Status) Terminal() bool {
	switch s {
	case StatusSent, StatusDuplicate, StatusError:
		return true
	}
	return false
}

// Message represents a unit of outbound work in the dispatch queue.
type Message struct {
	ID          uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	Recipient   string     `json:"recipient" gorm:"type:varchar(64);not null;index"`
	Body        string     `json:"body" gorm:"type:text"`
	Attachment  string     `json:"attachment,omitempty" gorm:"type:text"`
	Status      Status     `json:"status" gorm:"type:varchar(20);not null;default:'PENDING';index"`
	Attempts    int        `json:"attempts" gorm:"not null;default:0"`
	CreatedAt   time.Time  `json:"created_at" gorm:"index"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	ErrorDetail string     `json:"error_detail,omitempty" gorm:"type:text"`
}

// TableName specifies the table name for Message
func (Message) TableName() string {
	return "message_queue"
}
