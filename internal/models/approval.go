package models

import (
	"time"

	"gorm.io/datatypes"
)

// Approval request types.
const (
	RequestApprove  = "approve"
	RequestDeferral = "deferral"
	RequestOTC      = "otc"
)

// Approval request statuses.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// PendingSlotOpen is the PendingSlot value held by an undecided request. Decided
// requests move their slot to their own ID, which frees the unique index for
// the next request of the same type.
const PendingSlotOpen = "open"

// ApprovalRequest asks an authority to sign off on an escalation. Command holds
// the status change to replay once approved.
type ApprovalRequest struct {
	ID             string         `gorm:"primaryKey;size:36"`
	QueryID        string         `gorm:"size:36;not null;uniqueIndex:idx_open_request"`
	RequestType    string         `gorm:"size:16;not null;uniqueIndex:idx_open_request"`
	PendingSlot    string         `gorm:"size:36;not null;uniqueIndex:idx_open_request"`
	RequestedBy    string         `gorm:"size:128;not null"`
	AssignedTo     string         `gorm:"size:128"`
	Remarks        string         `gorm:"type:text"`
	Status         string         `gorm:"size:16;default:pending;index"`
	Command        datatypes.JSON `gorm:"type:json"`
	ProcessedBy    string         `gorm:"size:256"`
	ProcessDate    *time.Time
	ProcessRemarks string `gorm:"type:text"`
	CreatedAt      time.Time
}
