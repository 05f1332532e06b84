package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/querydesk/internal/apperr"
	"github.com/zulandar/querydesk/internal/approval"
	"github.com/zulandar/querydesk/internal/role"
)

type createRequestRequest struct {
	RequestType string `json:"requestType"`
	AssignedTo  string `json:"assignedTo"`
	Remarks     string `json:"remarks"`
}

type decideRequest struct {
	Decision string `json:"decision"`
	Remarks  string `json:"remarks"`
}

func handleCreateRequest(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		if !role.Of(actor.Role).CanOriginate {
			fail(c, apperr.Forbiddenf("role %q may not request approvals", actor.Role))
			return
		}
		var body createRequestRequest
		if !bind(c, &body) {
			return
		}
		req, err := s.router.CreateRequest(c.Request.Context(), approval.CreateOpts{
			QueryID:       c.Param("id"),
			RequestType:   body.RequestType,
			RequestedBy:   actor.Display(),
			AssignedTo:    body.AssignedTo,
			Remarks:       body.Remarks,
			RequesterRole: string(actor.Role),
		})
		if err != nil {
			fail(c, err)
			return
		}
		created(c, toRequest(*req))
	}
}

// handleListRequests lists requests for roles that raise or decide them.
func handleListRequests(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		capab := role.Of(actor.Role)
		if !capab.CanOriginate && !capab.CanDecide {
			fail(c, apperr.Forbiddenf("role %q may not list approval requests", actor.Role))
			return
		}
		reqs, err := s.router.ListRequests(c.Request.Context(), approval.ListFilters{
			Status:  c.Query("status"),
			Type:    c.Query("type"),
			QueryID: c.Query("queryId"),
		})
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, toRequests(reqs))
	}
}

func handleDecide(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body decideRequest
		if !bind(c, &body) {
			return
		}
		res, err := s.router.Decide(c.Request.Context(), approval.DecideOpts{
			RequestID: c.Param("id"),
			Decision:  body.Decision,
			Remarks:   body.Remarks,
			Authority: actorFrom(c),
		})
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, toDecision(res), res.Message)
	}
}
