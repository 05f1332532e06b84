package models

import "time"

// Chat action types recorded on system messages.
const (
	ActionStatusChange    = "status_change"
	ActionApprovalRequest = "approval_request"
	ActionApproval        = "approval"
	ActionRejection       = "rejection"
)

// ChatMessage is one entry in a query's append-only conversation log.
type ChatMessage struct {
	Seq             uint      `gorm:"primaryKey;autoIncrement"`
	ID              string    `gorm:"size:36;not null;uniqueIndex"`
	QueryID         string    `gorm:"size:36;not null;index"`
	Message         string    `gorm:"type:text;not null"`
	Sender          string    `gorm:"size:256;not null"`
	SenderRole      string    `gorm:"size:32"`
	Team            string    `gorm:"size:16"`
	IsSystemMessage bool      `gorm:"default:false"`
	ActionType      string    `gorm:"size:32"`
	RequestID       string    `gorm:"size:36"`
	RejectionReason string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"index"`
}
