// Package approval routes escalation requests to an authority and applies the
// requested status change once they sign off.
package approval

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/querydesk/internal/apperr"
	"github.com/zulandar/querydesk/internal/messaging"
	"github.com/zulandar/querydesk/internal/models"
	"github.com/zulandar/querydesk/internal/query"
	"github.com/zulandar/querydesk/internal/role"
	"gorm.io/gorm"
)

// Decisions an authority can take.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// DefaultRejectionReason is recorded when a rejection carries no remarks.
const DefaultRejectionReason = "No reason provided"

// CreateOpts holds parameters for raising an approval request.
type CreateOpts struct {
	QueryID     string
	RequestType string // approve, deferral, otc
	RequestedBy string
	AssignedTo  string // optional
	Remarks     string

	// RequesterRole is recorded on the audit entry. Defaults to originator.
	RequesterRole string
}

// DecideOpts holds an authority's decision on a request.
type DecideOpts struct {
	RequestID string
	Decision  string // approve or reject
	Remarks   string
	Authority role.Actor
}

// Result reports the outcome of a decision. Query is the replayed change's
// result and is nil on rejection.
type Result struct {
	Decision string
	Message  string
	Request  *models.ApprovalRequest
	Query    *models.Query
}

// ListFilters holds optional filters for listing requests.
type ListFilters struct {
	Status  string
	Type    string
	QueryID string
	Types   []string // restricts to any of these types
}

// CreateRequest raises a pending request and records it in the query's chat.
// Only one request of each type may be pending per query.
func CreateRequest(db *gorm.DB, opts CreateOpts) (*models.ApprovalRequest, error) {
	if opts.QueryID == "" {
		return nil, apperr.Validationf("query id is required")
	}
	if opts.RequestedBy == "" {
		return nil, apperr.Validationf("requestedBy is required")
	}
	if opts.RequesterRole == "" {
		opts.RequesterRole = string(role.Originator)
	}
	cmd, err := NewCommand(opts.QueryID, opts.RequestType, opts.Remarks)
	if err != nil {
		return nil, err
	}
	raw, err := cmd.Encode()
	if err != nil {
		return nil, apperr.Internalf(err, "approval: encode command")
	}

	var req models.ApprovalRequest
	err = db.Transaction(func(tx *gorm.DB) error {
		q, err := query.Get(tx, opts.QueryID)
		if err != nil {
			return err
		}
		if q.Status == models.StatusResolved {
			return apperr.Conflictf("query %s is already resolved", q.ID)
		}
		if err := query.CheckTransition(q.Status, cmd.TargetStatus); err != nil {
			return err
		}

		open, err := countPending(tx, q.ID, opts.RequestType)
		if err != nil {
			return err
		}
		if open > 0 {
			return apperr.Conflictf("a %s request is already pending for query %s", opts.RequestType, q.ID)
		}

		req = models.ApprovalRequest{
			ID:          uuid.NewString(),
			QueryID:     q.ID,
			RequestType: opts.RequestType,
			PendingSlot: models.PendingSlotOpen,
			RequestedBy: opts.RequestedBy,
			AssignedTo:  opts.AssignedTo,
			Remarks:     opts.Remarks,
			Status:      models.RequestPending,
			Command:     raw,
			CreatedAt:   time.Now(),
		}
		if err := tx.Create(&req).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Conflictf("a %s request is already pending for query %s", opts.RequestType, q.ID)
			}
			return apperr.Internalf(err, "approval: create request")
		}

		msg := fmt.Sprintf("%s requested %s approval", opts.RequestedBy, label(opts.RequestType))
		if opts.AssignedTo != "" {
			msg += " from " + opts.AssignedTo
		}
		if opts.Remarks != "" {
			msg += ": " + opts.Remarks
		}
		_, err = messaging.AppendSystem(tx, messaging.SystemEntry{
			QueryID:    q.ID,
			Message:    msg,
			Sender:     opts.RequestedBy,
			SenderRole: opts.RequesterRole,
			ActionType: models.ActionApprovalRequest,
			RequestID:  req.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Decide applies an authority's decision. Approval replays the stored command
// and rejection leaves the query alone; either way the request is closed and
// an audit entry is appended, all in one transaction. A request is decided at
// most once.
func Decide(db *gorm.DB, opts DecideOpts) (*Result, error) {
	if opts.RequestID == "" {
		return nil, apperr.Validationf("request id is required")
	}
	if opts.Decision != DecisionApprove && opts.Decision != DecisionReject {
		return nil, apperr.Validationf("decision %q must be approve or reject", opts.Decision)
	}
	if !role.Of(opts.Authority.Role).CanDecide {
		return nil, apperr.Forbiddenf("role %q may not decide approval requests", opts.Authority.Role)
	}
	authName := opts.Authority.Display()
	if authName == "" {
		return nil, apperr.Validationf("authority is required")
	}

	res := &Result{Decision: opts.Decision}
	err := db.Transaction(func(tx *gorm.DB) error {
		req, err := GetRequest(tx, opts.RequestID)
		if err != nil {
			return err
		}
		if req.Status != models.RequestPending {
			return apperr.Conflictf("request %s was already %s", req.ID, req.Status)
		}
		if err := checkScope(tx, opts.Authority, req.RequestType); err != nil {
			return err
		}

		now := time.Now()
		var (
			newStatus string
			entry     messaging.SystemEntry
		)
		switch opts.Decision {
		case DecisionApprove:
			cmd, err := DecodeCommand(req.Command)
			if err != nil {
				return apperr.Internalf(err, "approval: request %s", req.ID)
			}
			q, err := cmd.Replay(tx, ComposeActor(authName, req.RequestedBy), opts.Remarks)
			if err != nil {
				return err
			}
			res.Query = q
			newStatus = models.RequestApproved
			res.Message = fmt.Sprintf("%s request approved; query is now %s", label(req.RequestType), q.Status)

			text := fmt.Sprintf("%s request APPROVED by %s on %s", label(req.RequestType), authName, now.Format("2006-01-02 15:04:05"))
			if opts.Remarks != "" {
				text += ". Remarks: " + opts.Remarks
			}
			entry = messaging.SystemEntry{ActionType: models.ActionApproval, Message: text}

		case DecisionReject:
			reason := strings.TrimSpace(opts.Remarks)
			if reason == "" {
				reason = DefaultRejectionReason
			}
			newStatus = models.RequestRejected
			res.Message = fmt.Sprintf("%s request rejected", label(req.RequestType))
			entry = messaging.SystemEntry{
				ActionType:      models.ActionRejection,
				Message:         fmt.Sprintf("%s request REJECTED by %s. Reason: %s", label(req.RequestType), authName, reason),
				RejectionReason: reason,
			}
		}

		// The status guard makes a racing second decision a no-op.
		upd := tx.Model(&models.ApprovalRequest{}).
			Where("id = ? AND status = ?", req.ID, models.RequestPending).
			Updates(map[string]interface{}{
				"status":          newStatus,
				"pending_slot":    req.ID,
				"processed_by":    authName,
				"process_date":    now,
				"process_remarks": opts.Remarks,
			})
		if upd.Error != nil {
			return apperr.Internalf(upd.Error, "approval: close request %s", req.ID)
		}
		if upd.RowsAffected == 0 {
			return apperr.Conflictf("request %s was already decided", req.ID)
		}

		entry.QueryID = req.QueryID
		entry.Sender = authName
		entry.SenderRole = string(opts.Authority.Role)
		entry.RequestID = req.ID
		if _, err := messaging.AppendSystem(tx, entry); err != nil {
			return err
		}

		res.Request, err = GetRequest(tx, req.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetRequest retrieves a request by ID.
func GetRequest(db *gorm.DB, id string) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	if err := db.Where("id = ?", id).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("approval request not found: %s", id)
		}
		return nil, apperr.Internalf(err, "approval: get %s", id)
	}
	return &req, nil
}

// ListRequests returns requests matching the filters, oldest first.
func ListRequests(db *gorm.DB, filters ListFilters) ([]models.ApprovalRequest, error) {
	if filters.Type != "" {
		if _, err := TargetStatus(filters.Type); err != nil {
			return nil, err
		}
	}
	q := db.Model(&models.ApprovalRequest{})
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.Type != "" {
		q = q.Where("request_type = ?", filters.Type)
	}
	if len(filters.Types) > 0 {
		q = q.Where("request_type IN ?", filters.Types)
	}
	if filters.QueryID != "" {
		q = q.Where("query_id = ?", filters.QueryID)
	}

	var out []models.ApprovalRequest
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, apperr.Internalf(err, "approval: list")
	}
	return out, nil
}

// PendingOlderThan returns pending requests raised before cutoff, oldest
// first.
func PendingOlderThan(db *gorm.DB, cutoff time.Time) ([]models.ApprovalRequest, error) {
	var out []models.ApprovalRequest
	if err := db.Where("status = ? AND created_at < ?", models.RequestPending, cutoff).
		Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, apperr.Internalf(err, "approval: list stale")
	}
	return out, nil
}

// checkScope enforces an authority's decidable types from the directory. An
// authority with no directory entry, or an admin, may decide any type.
func checkScope(tx *gorm.DB, actor role.Actor, requestType string) error {
	if actor.Role != role.Authority || actor.ID == "" {
		return nil
	}
	var u models.User
	if err := tx.Where("id = ?", actor.ID).Limit(1).Find(&u).Error; err != nil {
		return apperr.Internalf(err, "approval: load user %s", actor.ID)
	}
	if u.ID == "" {
		return nil
	}
	if !u.Active {
		return apperr.Forbiddenf("user %s is inactive", actor.ID)
	}
	if !u.CanDecide(requestType) {
		return apperr.Forbiddenf("%s may not decide %s requests", actor.Display(), requestType)
	}
	return nil
}

func countPending(tx *gorm.DB, queryID, requestType string) (int64, error) {
	var n int64
	if err := tx.Model(&models.ApprovalRequest{}).
		Where("query_id = ? AND request_type = ? AND status = ?", queryID, requestType, models.RequestPending).
		Count(&n).Error; err != nil {
		return 0, apperr.Internalf(err, "approval: count pending")
	}
	return n, nil
}

func label(requestType string) string {
	switch requestType {
	case models.RequestApprove:
		return "Approval"
	case models.RequestDeferral:
		return "Deferral"
	case models.RequestOTC:
		return "OTC"
	}
	return requestType
}
