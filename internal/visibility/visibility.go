// Package visibility decides which queries and sub-queries a requester sees
// and where they may post messages.
package visibility

import (
	"github.com/zulandar/querydesk/internal/apperr"
	"github.com/zulandar/querydesk/internal/approval"
	"github.com/zulandar/querydesk/internal/branch"
	"github.com/zulandar/querydesk/internal/models"
	"github.com/zulandar/querydesk/internal/query"
	"github.com/zulandar/querydesk/internal/role"
	"gorm.io/gorm"
)

// Soft-fail messages returned with an empty result.
const (
	MsgNoBranch  = "No branch accepted for your team. Accept a branch assignment to see its queries."
	MsgNoQueries = "No queries found"
)

// SubQueryView is a sub-query annotated for one requester.
type SubQueryView struct {
	models.SubQuery
	AllowMessaging bool
}

// QueryView is a query annotated for one requester. AllowMessaging is true
// when any of its sub-queries allows it.
type QueryView struct {
	models.Query
	Items          []SubQueryView
	AllowMessaging bool
}

// DashboardResult is what a requester's landing view shows. Message is set
// for soft fails.
type DashboardResult struct {
	Queries         []QueryView
	PendingRequests []models.ApprovalRequest
	Branch          *models.BranchAssignment
	Message         string
}

// CanMessage reports whether actor may chat on a sub-query tagged marked.
func CanMessage(actor role.Actor, marked string) bool {
	return role.Of(actor.Role).CanAct(actor.EffectiveTeam(), marked)
}

// CanView reports whether actor may see a sub-query tagged marked.
func CanView(actor role.Actor, marked string) bool {
	return role.Of(actor.Role).CanView(actor.EffectiveTeam(), marked)
}

// CanMessageQuery reports whether actor may chat on any part of q.
func CanMessageQuery(actor role.Actor, q *models.Query) bool {
	if len(q.SubQueries) == 0 {
		return CanMessage(actor, q.MarkedForTeam)
	}
	for _, sq := range q.SubQueries {
		if CanMessage(actor, sq.MarkedForTeam) {
			return true
		}
	}
	return false
}

// ViewQuery annotates q for actor. The second result is false when nothing in
// q is visible to actor.
func ViewQuery(actor role.Actor, q *models.Query) (QueryView, bool) {
	view := func(marked string) bool { return CanView(actor, marked) }
	act := func(marked string) bool { return CanMessage(actor, marked) }
	v := annotate(*q, view, act)
	if len(q.SubQueries) == 0 {
		return v, CanView(actor, q.MarkedForTeam)
	}
	return v, len(v.Items) > 0
}

// ListQueriesForApp returns an application's queries, newest first, with
// messaging computed for team. An empty team applies no routing filter and
// allows messaging everywhere.
func ListQueriesForApp(db *gorm.DB, appNo, team string) ([]QueryView, error) {
	if appNo == "" {
		return nil, apperr.Validationf("application number is required")
	}
	if team != "" && !role.IsTeam(team) {
		return nil, apperr.Validationf("team %q must be sales, credit or both", team)
	}
	qs, err := query.List(db, query.ListFilters{AppNo: appNo})
	if err != nil {
		return nil, err
	}
	allow := func(marked string) bool {
		return team == "" || role.TeamMatches(team, marked)
	}
	out := make([]QueryView, 0, len(qs))
	for _, q := range qs {
		out = append(out, annotate(q, nil, allow))
	}
	return out, nil
}

// ListForActor is ListQueriesForApp with the requester's role applied.
// Branch-scoped roles always use their own team, whatever filter they pass,
// and only see queries of their accepted branch. The message is set when the
// result is empty.
func ListForActor(db *gorm.DB, actor role.Actor, appNo, team string) ([]QueryView, string, error) {
	capab := role.Of(actor.Role)
	if capab.BranchScoped || team == "" {
		team = actor.EffectiveTeam()
	}
	if team != "" && !role.IsTeam(team) {
		return nil, "", apperr.Validationf("team %q must be sales, credit or both", team)
	}
	if appNo == "" {
		return nil, "", apperr.Validationf("application number is required")
	}

	out := []QueryView{}
	filters := query.ListFilters{AppNo: appNo}
	if capab.BranchScoped {
		cur, err := branch.Current(db, actor.ID, team)
		if err != nil {
			return nil, "", err
		}
		if cur == nil {
			return out, MsgNoBranch, nil
		}
		filters.BranchCode = cur.BranchCode
	}

	qs, err := query.List(db, filters)
	if err != nil {
		return nil, "", err
	}
	allow := func(marked string) bool {
		if !capab.CanAct(team, marked) {
			return false
		}
		return team == "" || role.TeamMatches(team, marked)
	}
	for _, q := range qs {
		out = append(out, annotate(q, nil, allow))
	}
	if len(out) == 0 {
		return out, MsgNoQueries, nil
	}
	return out, "", nil
}

// Dashboard builds the requester's landing view. Sales and credit users see
// only queries for their accepted branch, and within them only the
// sub-queries routed to their team.
func Dashboard(db *gorm.DB, actor role.Actor) (*DashboardResult, error) {
	if actor.ID == "" {
		return nil, apperr.Validationf("user id is required")
	}
	capab := role.Of(actor.Role)
	if !capab.CanView(actor.EffectiveTeam(), models.TeamBoth) && !capab.BranchScoped {
		return nil, apperr.Forbiddenf("role %q has no dashboard", actor.Role)
	}

	res := &DashboardResult{Queries: []QueryView{}}
	filters := query.ListFilters{}

	if capab.BranchScoped {
		cur, err := branch.Current(db, actor.ID, actor.EffectiveTeam())
		if err != nil {
			return nil, err
		}
		if cur == nil {
			res.Message = MsgNoBranch
			return res, nil
		}
		res.Branch = cur
		filters.BranchCode = cur.BranchCode
	}

	qs, err := query.List(db, filters)
	if err != nil {
		return nil, err
	}
	view := func(marked string) bool { return CanView(actor, marked) }
	act := func(marked string) bool { return CanMessage(actor, marked) }
	for _, q := range qs {
		v := annotate(q, view, act)
		if len(v.Items) == 0 && len(q.SubQueries) > 0 {
			continue
		}
		res.Queries = append(res.Queries, v)
	}

	if capab.CanDecide || capab.CanOriginate {
		reqs, err := pendingFor(db, actor, capab)
		if err != nil {
			return nil, err
		}
		res.PendingRequests = reqs
	}

	if len(res.Queries) == 0 && len(res.PendingRequests) == 0 {
		res.Message = MsgNoQueries
	}
	return res, nil
}

// pendingFor lists pending approval requests. An authority whose directory
// entry limits decidable types only sees those types.
func pendingFor(db *gorm.DB, actor role.Actor, capab role.Capability) ([]models.ApprovalRequest, error) {
	f := approval.ListFilters{Status: models.RequestPending}
	if actor.Role == role.Authority {
		var u models.User
		if err := db.Where("id = ?", actor.ID).Limit(1).Find(&u).Error; err != nil {
			return nil, apperr.Internalf(err, "visibility: load user %s", actor.ID)
		}
		if u.ID != "" {
			for _, t := range approval.RequestTypes {
				if u.CanDecide(t) {
					f.Types = append(f.Types, t)
				}
			}
			if len(f.Types) == 0 {
				return []models.ApprovalRequest{}, nil
			}
		}
	}
	return approval.ListRequests(db, f)
}

func annotate(q models.Query, view, act func(marked string) bool) QueryView {
	v := QueryView{Query: q, Items: []SubQueryView{}}
	for _, sq := range q.SubQueries {
		if view != nil && !view(sq.MarkedForTeam) {
			continue
		}
		allow := act(sq.MarkedForTeam)
		v.Items = append(v.Items, SubQueryView{SubQuery: sq, AllowMessaging: allow})
		if allow {
			v.AllowMessaging = true
		}
	}
	if len(q.SubQueries) == 0 {
		v.AllowMessaging = act(q.MarkedForTeam)
	}
	return v
}
