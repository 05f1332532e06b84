package models

import "time"

// Branch assignment statuses.
const (
	AssignmentPending  = "pending"
	AssignmentAccepted = "accepted"
	AssignmentDeclined = "declined"
)

// Branch is a lending branch. Rows are seeded from configuration.
type Branch struct {
	ID     string `gorm:"primaryKey;size:36"`
	Code   string `gorm:"size:32;not null;uniqueIndex"`
	Name   string `gorm:"size:128"`
	Active bool
}

// BranchAssignment links a downstream-team user to a branch they may work on.
type BranchAssignment struct {
	ID         string `gorm:"primaryKey;size:36"`
	UserID     string `gorm:"size:64;not null;index:idx_user_team"`
	Team       string `gorm:"size:16;not null;index:idx_user_team"`
	BranchID   string `gorm:"size:36;not null"`
	BranchCode string `gorm:"size:32;not null"`
	Status     string `gorm:"size:16;default:pending"`
	MarkedAt   time.Time
	AcceptedAt *time.Time
	DeclinedAt *time.Time
}
