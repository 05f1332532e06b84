// Package messaging provides the append-only per-query chat log.
package messaging

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/querydesk/internal/apperr"
	"github.com/zulandar/querydesk/internal/models"
	"gorm.io/gorm"
)

// AppendOpts holds the fields of a human chat message.
type AppendOpts struct {
	QueryID    string
	Message    string
	Sender     string
	SenderRole string
	Team       string // optional
}

// SystemEntry is an audit message written by the status machine or router.
type SystemEntry struct {
	QueryID         string
	Message         string
	Sender          string
	SenderRole      string
	ActionType      string
	RequestID       string
	RejectionReason string
}

// Append adds a human message to a query's log and returns the stored record
// with its assigned id and server timestamp.
func Append(db *gorm.DB, opts AppendOpts) (*models.ChatMessage, error) {
	if opts.QueryID == "" {
		return nil, apperr.Validationf("query id is required")
	}
	if strings.TrimSpace(opts.Message) == "" {
		return nil, apperr.Validationf("message is required")
	}
	if opts.Sender == "" {
		return nil, apperr.Validationf("sender is required")
	}

	if err := requireQuery(db, opts.QueryID); err != nil {
		return nil, err
	}

	msg := models.ChatMessage{
		ID:         uuid.NewString(),
		QueryID:    opts.QueryID,
		Message:    opts.Message,
		Sender:     opts.Sender,
		SenderRole: opts.SenderRole,
		Team:       opts.Team,
		CreatedAt:  time.Now(),
	}
	if err := db.Create(&msg).Error; err != nil {
		return nil, apperr.Internalf(err, "messaging: append to %s", opts.QueryID)
	}
	return &msg, nil
}

// AppendSystem records an audit entry. Callers pass the transaction that
// performs the state change so both commit together.
func AppendSystem(tx *gorm.DB, e SystemEntry) (*models.ChatMessage, error) {
	if e.QueryID == "" || e.Message == "" || e.ActionType == "" {
		return nil, fmt.Errorf("messaging: system entry needs query id, message and action type")
	}
	sender := e.Sender
	if sender == "" {
		sender = "System"
	}
	senderRole := e.SenderRole
	if senderRole == "" {
		senderRole = "system"
	}

	msg := models.ChatMessage{
		ID:              uuid.NewString(),
		QueryID:         e.QueryID,
		Message:         e.Message,
		Sender:          sender,
		SenderRole:      senderRole,
		IsSystemMessage: true,
		ActionType:      e.ActionType,
		RequestID:       e.RequestID,
		RejectionReason: e.RejectionReason,
		CreatedAt:       time.Now(),
	}
	if err := tx.Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("messaging: append system entry to %s: %w", e.QueryID, err)
	}
	return &msg, nil
}

// List returns every message for a query in timestamp order. Messages that
// share a timestamp keep their insertion order.
func List(db *gorm.DB, queryID string) ([]models.ChatMessage, error) {
	if queryID == "" {
		return nil, apperr.Validationf("query id is required")
	}
	if err := requireQuery(db, queryID); err != nil {
		return nil, err
	}

	var msgs []models.ChatMessage
	if err := db.Where("query_id = ?", queryID).
		Order("created_at ASC, seq ASC").Find(&msgs).Error; err != nil {
		return nil, apperr.Internalf(err, "messaging: list %s", queryID)
	}
	return msgs, nil
}

// CountSince returns how many messages were added to a query after t. Clients
// poll it to decide whether to refetch the log.
func CountSince(db *gorm.DB, queryID string, t time.Time) (int64, error) {
	var n int64
	if err := db.Model(&models.ChatMessage{}).
		Where("query_id = ? AND created_at > ?", queryID, t).Count(&n).Error; err != nil {
		return 0, apperr.Internalf(err, "messaging: count %s", queryID)
	}
	return n, nil
}

func requireQuery(db *gorm.DB, queryID string) error {
	var count int64
	if err := db.Model(&models.Query{}).Where("id = ?", queryID).Count(&count).Error; err != nil {
		return apperr.Internalf(err, "messaging: check query %s", queryID)
	}
	if count == 0 {
		return apperr.NotFoundf("query not found: %s", queryID)
	}
	return nil
}
