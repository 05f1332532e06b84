package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/querydesk/internal/apperr"
	"github.com/zulandar/querydesk/internal/approval"
	"github.com/zulandar/querydesk/internal/branch"
	"github.com/zulandar/querydesk/internal/query"
	"github.com/zulandar/querydesk/internal/role"
	"github.com/zulandar/querydesk/internal/visibility"
)

type subQueryRequest struct {
	Text          string `json:"text"`
	MarkedForTeam string `json:"markedForTeam"`
}

type createQueryRequest struct {
	AppNo         string            `json:"appNo"`
	CustomerName  string            `json:"customerName"`
	Branch        string            `json:"branch"`
	BranchCode    string            `json:"branchCode"`
	MarkedForTeam string            `json:"markedForTeam"`
	Priority      string            `json:"priority"`
	SubQueries    []subQueryRequest `json:"subQueries"`
}

type changeStatusRequest struct {
	Status  string `json:"status"`
	Remarks string `json:"remarks"`
}

func handleCreateQuery(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		if !role.Of(actor.Role).CanOriginate {
			fail(c, apperr.Forbiddenf("role %q may not create queries", actor.Role))
			return
		}
		var body createQueryRequest
		if !bind(c, &body) {
			return
		}

		opts := query.CreateOpts{
			AppNo:         body.AppNo,
			CustomerName:  body.CustomerName,
			Branch:        body.Branch,
			BranchCode:    body.BranchCode,
			MarkedForTeam: body.MarkedForTeam,
			Priority:      body.Priority,
			SubmittedBy:   actor.Display(),
		}
		for _, sq := range body.SubQueries {
			opts.SubQueries = append(opts.SubQueries, query.SubQueryInput{Text: sq.Text, MarkedForTeam: sq.MarkedForTeam})
		}

		q, err := query.Create(s.db.WithContext(c.Request.Context()), opts)
		if err != nil {
			fail(c, err)
			return
		}
		created(c, toQuery(*q))
	}
}

// handleGetQuery returns the query as the caller may see it, with its
// approval requests.
func handleGetQuery(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		db := s.db.WithContext(c.Request.Context())

		q, err := query.Get(db, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		if err := branch.CheckScope(db, actor, q.BranchCode); err != nil {
			fail(c, err)
			return
		}
		view, visible := visibility.ViewQuery(actor, q)
		if !visible {
			fail(c, apperr.Forbiddenf("query %s is not routed to %s", q.ID, actor.Display()))
			return
		}

		reqs, err := approval.ListRequests(db, approval.ListFilters{QueryID: q.ID})
		if err != nil {
			fail(c, err)
			return
		}
		d := toQueryView(view)
		d.ApprovalRequests = toRequests(reqs)
		ok(c, d)
	}
}

func handleChangeStatus(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body changeStatusRequest
		if !bind(c, &body) {
			return
		}
		actor := actorFrom(c)
		q, err := query.ChangeStatus(s.db.WithContext(c.Request.Context()), actor, query.Change{
			QueryID: c.Param("id"),
			Status:  body.Status,
			Remarks: body.Remarks,
		})
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, toQuery(*q))
	}
}

// handleListForApp lists an application's queries with messaging computed
// for the caller and the optional team filter.
func handleListForApp(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		views, msg, err := visibility.ListForActor(s.db.WithContext(c.Request.Context()),
			actorFrom(c), c.Param("appNo"), c.Query("team"))
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, toQueryViews(views), msg)
	}
}

func handleDashboard(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := visibility.Dashboard(s.db.WithContext(c.Request.Context()), actorFrom(c))
		if err != nil {
			fail(c, err)
			return
		}
		d := dashboardDTO{
			Queries:         toQueryViews(res.Queries),
			PendingRequests: toRequests(res.PendingRequests),
		}
		if res.Branch != nil {
			a := toAssignment(*res.Branch)
			d.Branch = &a
		}
		respond(c, http.StatusOK, d, res.Message)
	}
}
