package models

import "time"

// Query statuses. Sub-queries share the same set.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDeferred = "deferred"
	StatusOTC      = "otc"
	StatusResolved = "resolved"
)

// Routing tags for markedForTeam.
const (
	TeamSales  = "sales"
	TeamCredit = "credit"
	TeamBoth   = "both"
)

// Query is a clarification request raised against a loan application.
type Query struct {
	ID            string    `gorm:"primaryKey;size:36"`
	AppNo         string    `gorm:"size:64;not null;index"`
	CustomerName  string    `gorm:"size:256"`
	Branch        string    `gorm:"size:128"`
	BranchCode    string    `gorm:"size:32;index"`
	MarkedForTeam string    `gorm:"size:16;default:both"`
	Status        string    `gorm:"size:16;default:pending;index"`
	Priority      string    `gorm:"size:16;default:medium"`
	Remarks       string    `gorm:"type:text"`
	SubmittedBy   string    `gorm:"size:128;not null"`
	SubmittedAt   time.Time `gorm:"index"`
	LastActionBy  string    `gorm:"size:256"`
	LastActionAt  *time.Time
	UpdatedAt     time.Time

	SubQueries []SubQuery `gorm:"foreignKey:QueryID"`
}

// SubQuery is a single item inside a Query with its own status and routing.
type SubQuery struct {
	ID            string `gorm:"primaryKey;size:36"`
	QueryID       string `gorm:"size:36;not null;index"`
	Position      int
	Text          string `gorm:"type:text;not null"`
	Status        string `gorm:"size:16;default:pending"`
	MarkedForTeam string `gorm:"size:16;default:both"`
	Remarks       string `gorm:"type:text"`
	UpdatedBy     string `gorm:"size:256"`
	UpdatedAt     time.Time
}
