package query

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/querydesk/internal/apperr"
	"github.com/zulandar/querydesk/internal/branch"
	"github.com/zulandar/querydesk/internal/messaging"
	"github.com/zulandar/querydesk/internal/models"
	"github.com/zulandar/querydesk/internal/role"
	"gorm.io/gorm"
)

// ValidTransitions maps each status to its valid next statuses.
// Resolved is terminal.
var ValidTransitions = map[string][]string{
	models.StatusPending:  {models.StatusApproved, models.StatusDeferred, models.StatusOTC, models.StatusResolved},
	models.StatusApproved: {models.StatusResolved},
	models.StatusDeferred: {models.StatusResolved},
	models.StatusOTC:      {models.StatusResolved},
}

// Statuses lists every known query status.
var Statuses = []string{
	models.StatusPending,
	models.StatusApproved,
	models.StatusDeferred,
	models.StatusOTC,
	models.StatusResolved,
}

// Change is a request to move a query to a new status.
type Change struct {
	QueryID string
	Status  string
	Remarks string
	Actor   string // recorded as lastActionBy / updatedBy

	// SubQueryIDs limits the change to these sub-queries. Nil changes every
	// open sub-query and the query itself.
	SubQueryIDs []string
}

// IsStatus reports whether s is a known status.
func IsStatus(s string) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// CheckTransition validates moving from one status to another.
func CheckTransition(from, to string) error {
	if !IsStatus(to) {
		return apperr.Validationf("unknown status %q", to)
	}
	if from == models.StatusResolved {
		return apperr.Conflictf("query is already resolved")
	}
	for _, v := range ValidTransitions[from] {
		if v == to {
			return nil
		}
	}
	return apperr.Conflictf("invalid status transition from %q to %q; valid transitions: %v", from, to, ValidTransitions[from])
}

// Apply moves the query and each of its non-resolved sub-queries to
// c.Status. It writes no chat entry, so the approval router can replay a
// stored command and record its own audit message. tx should be a
// transaction; the query row is only updated if its status is unchanged
// since it was read.
//
// When c.SubQueryIDs is set only those open sub-queries move. The query
// follows once every other sub-query already has c.Status.
func Apply(tx *gorm.DB, c Change) (*models.Query, error) {
	if c.QueryID == "" {
		return nil, apperr.Validationf("query id is required")
	}
	if !IsStatus(c.Status) {
		return nil, apperr.Validationf("unknown status %q", c.Status)
	}

	var q models.Query
	if err := tx.Preload("SubQueries", orderSubQueries).Where("id = ?", c.QueryID).First(&q).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("query not found: %s", c.QueryID)
		}
		return nil, apperr.Internalf(err, "query: get %s for status change", c.QueryID)
	}

	queryStatus := c.Status
	subs := tx.Model(&models.SubQuery{}).Where("query_id = ? AND status <> ?", q.ID, models.StatusResolved)
	if c.SubQueryIDs == nil {
		if err := CheckTransition(q.Status, c.Status); err != nil {
			return nil, err
		}
	} else {
		if q.Status == models.StatusResolved {
			return nil, apperr.Conflictf("query is already resolved")
		}
		targets, rest := splitTargets(q.SubQueries, c.SubQueryIDs)
		if len(targets) == 0 {
			return nil, apperr.Conflictf("query %s has no open sub-queries to change", q.ID)
		}
		ids := make([]string, 0, len(targets))
		for _, sq := range targets {
			if err := CheckTransition(sq.Status, c.Status); err != nil {
				return nil, err
			}
			ids = append(ids, sq.ID)
		}
		for _, sq := range rest {
			if sq.Status != c.Status {
				queryStatus = q.Status
				break
			}
		}
		if queryStatus != q.Status && CheckTransition(q.Status, queryStatus) != nil {
			queryStatus = q.Status
		}
		subs = subs.Where("id IN ?", ids)
	}

	now := time.Now()
	res := tx.Model(&models.Query{}).
		Where("id = ? AND status = ?", q.ID, q.Status).
		Updates(map[string]interface{}{
			"status":         queryStatus,
			"remarks":        c.Remarks,
			"last_action_by": c.Actor,
			"last_action_at": now,
			"updated_at":     now,
		})
	if res.Error != nil {
		return nil, apperr.Internalf(res.Error, "query: update status of %s", q.ID)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Conflictf("query %s changed concurrently", q.ID)
	}

	if err := subs.Updates(map[string]interface{}{
		"status":     c.Status,
		"remarks":    c.Remarks,
		"updated_by": c.Actor,
		"updated_at": now,
	}).Error; err != nil {
		return nil, apperr.Internalf(err, "query: update sub-queries of %s", q.ID)
	}

	var out models.Query
	if err := tx.Preload("SubQueries", orderSubQueries).Where("id = ?", q.ID).First(&out).Error; err != nil {
		return nil, apperr.Internalf(err, "query: reload %s", q.ID)
	}
	return &out, nil
}

// splitTargets separates the open sub-queries named in ids from the rest.
func splitTargets(all []models.SubQuery, ids []string) (targets, rest []models.SubQuery) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, sq := range all {
		if want[sq.ID] && sq.Status != models.StatusResolved {
			targets = append(targets, sq)
			continue
		}
		rest = append(rest, sq)
	}
	return targets, rest
}

// ChangeStatus applies a direct status change by actor and records a
// status_change entry in the query's chat, atomically. The actor must be able
// to act on at least one of the query's sub-queries, and sales or credit
// users only on queries of their accepted branch. Sub-queries routed to
// another team are left as they are.
func ChangeStatus(db *gorm.DB, actor role.Actor, c Change) (*models.Query, error) {
	if c.QueryID == "" {
		return nil, apperr.Validationf("query id is required")
	}
	if !IsStatus(c.Status) {
		return nil, apperr.Validationf("unknown status %q", c.Status)
	}
	if c.Actor == "" {
		c.Actor = actor.Display()
	}
	if c.Actor == "" {
		return nil, apperr.Validationf("actor is required")
	}

	var updated *models.Query
	err := db.Transaction(func(tx *gorm.DB) error {
		current, err := Get(tx, c.QueryID)
		if err != nil {
			return err
		}
		if err := branch.CheckScope(tx, actor, current.BranchCode); err != nil {
			return err
		}
		if !canActOnAny(actor, current) {
			return apperr.Forbiddenf("%s may not change the status of query %s", actor.Display(), c.QueryID)
		}
		from := current.Status
		ids, all := actableOpen(actor, current)
		if !all {
			if len(ids) == 0 {
				return apperr.Conflictf("%s has no open sub-queries on query %s", actor.Display(), c.QueryID)
			}
			c.SubQueryIDs = ids
		}

		updated, err = Apply(tx, c)
		if err != nil {
			return err
		}

		msg := fmt.Sprintf("Status changed from %s to %s by %s", from, c.Status, c.Actor)
		if c.SubQueryIDs != nil {
			msg = fmt.Sprintf("Status of %d sub-quer%s changed to %s by %s", len(ids), plural(len(ids)), c.Status, c.Actor)
		}
		if c.Remarks != "" {
			msg += ": " + c.Remarks
		}
		_, err = messaging.AppendSystem(tx, messaging.SystemEntry{
			QueryID:    c.QueryID,
			Message:    msg,
			Sender:     c.Actor,
			SenderRole: string(actor.Role),
			ActionType: models.ActionStatusChange,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func canActOnAny(actor role.Actor, q *models.Query) bool {
	capab := role.Of(actor.Role)
	team := actor.EffectiveTeam()
	if len(q.SubQueries) == 0 {
		return capab.CanAct(team, q.MarkedForTeam)
	}
	for _, sq := range q.SubQueries {
		if capab.CanAct(team, sq.MarkedForTeam) {
			return true
		}
	}
	return false
}

// actableOpen returns the open sub-queries actor may change. all is true
// when actor may change every open sub-query.
func actableOpen(actor role.Actor, q *models.Query) (ids []string, all bool) {
	capab := role.Of(actor.Role)
	team := actor.EffectiveTeam()
	all = true
	for _, sq := range q.SubQueries {
		if sq.Status == models.StatusResolved {
			continue
		}
		if capab.CanAct(team, sq.MarkedForTeam) {
			ids = append(ids, sq.ID)
			continue
		}
		all = false
	}
	return ids, all
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
