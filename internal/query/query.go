// Package query provides query lifecycle operations.
package query

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/querydesk/internal/apperr"
	"github.com/zulandar/querydesk/internal/models"
	"github.com/zulandar/querydesk/internal/role"
	"gorm.io/gorm"
)

// Priorities accepted on creation.
var Priorities = []string{"low", "medium", "high", "urgent"}

// SubQueryInput is one item of a new query.
type SubQueryInput struct {
	Text          string
	MarkedForTeam string // defaults to the query's tag
}

// CreateOpts holds parameters for creating a new query.
type CreateOpts struct {
	AppNo         string
	CustomerName  string
	Branch        string
	BranchCode    string
	SubQueries    []SubQueryInput
	MarkedForTeam string // sales, credit, both (default)
	Priority      string // low, medium (default), high, urgent
	SubmittedBy   string
}

// ListFilters holds optional filters for listing queries.
type ListFilters struct {
	AppNo      string
	BranchCode string
	Status     string
}

// Create stores a new pending query with its sub-queries.
func Create(db *gorm.DB, opts CreateOpts) (*models.Query, error) {
	opts.AppNo = strings.TrimSpace(opts.AppNo)
	if opts.AppNo == "" {
		return nil, apperr.Validationf("application number is required")
	}
	if opts.SubmittedBy == "" {
		return nil, apperr.Validationf("submittedBy is required")
	}
	if opts.MarkedForTeam == "" {
		opts.MarkedForTeam = models.TeamBoth
	}
	if !role.IsTeam(opts.MarkedForTeam) {
		return nil, apperr.Validationf("markedForTeam %q must be sales, credit or both", opts.MarkedForTeam)
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}
	if !validPriority(opts.Priority) {
		return nil, apperr.Validationf("priority %q must be one of %v", opts.Priority, Priorities)
	}

	var items []SubQueryInput
	for _, sq := range opts.SubQueries {
		if strings.TrimSpace(sq.Text) == "" {
			continue
		}
		if sq.MarkedForTeam == "" {
			sq.MarkedForTeam = opts.MarkedForTeam
		}
		if !role.IsTeam(sq.MarkedForTeam) {
			return nil, apperr.Validationf("sub-query markedForTeam %q must be sales, credit or both", sq.MarkedForTeam)
		}
		items = append(items, sq)
	}
	if len(items) == 0 {
		return nil, apperr.Validationf("at least one sub-query is required")
	}

	if opts.BranchCode != "" && opts.Branch == "" {
		var b models.Branch
		if err := db.Where("code = ?", opts.BranchCode).First(&b).Error; err == nil {
			opts.Branch = b.Name
		}
	}

	now := time.Now()
	q := models.Query{
		ID:            uuid.NewString(),
		AppNo:         opts.AppNo,
		CustomerName:  opts.CustomerName,
		Branch:        opts.Branch,
		BranchCode:    opts.BranchCode,
		MarkedForTeam: opts.MarkedForTeam,
		Status:        models.StatusPending,
		Priority:      opts.Priority,
		SubmittedBy:   opts.SubmittedBy,
		SubmittedAt:   now,
	}
	for i, sq := range items {
		q.SubQueries = append(q.SubQueries, models.SubQuery{
			ID:            uuid.NewString(),
			QueryID:       q.ID,
			Position:      i,
			Text:          sq.Text,
			Status:        models.StatusPending,
			MarkedForTeam: sq.MarkedForTeam,
			UpdatedAt:     now,
		})
	}

	if err := db.Create(&q).Error; err != nil {
		return nil, apperr.Internalf(err, "query: create")
	}
	return &q, nil
}

// Get retrieves a query by ID with its sub-queries in submission order.
func Get(db *gorm.DB, id string) (*models.Query, error) {
	var q models.Query
	err := db.Preload("SubQueries", orderSubQueries).Where("id = ?", id).First(&q).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("query not found: %s", id)
		}
		return nil, apperr.Internalf(err, "query: get %s", id)
	}
	return &q, nil
}

// List returns queries matching the filters, newest submission first.
func List(db *gorm.DB, filters ListFilters) ([]models.Query, error) {
	q := db.Model(&models.Query{}).Preload("SubQueries", orderSubQueries)

	if filters.AppNo != "" {
		q = q.Where("app_no = ?", filters.AppNo)
	}
	if filters.BranchCode != "" {
		q = q.Where("branch_code = ?", filters.BranchCode)
	}
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}

	var out []models.Query
	if err := q.Order("submitted_at DESC").Find(&out).Error; err != nil {
		return nil, apperr.Internalf(err, "query: list")
	}
	return out, nil
}

func orderSubQueries(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func validPriority(p string) bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}
