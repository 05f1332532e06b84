package api

import (
	"github.com/gin-gonic/gin"
	"github.com/zulandar/querydesk/internal/apperr"
	"github.com/zulandar/querydesk/internal/branch"
	"github.com/zulandar/querydesk/internal/models"
	"github.com/zulandar/querydesk/internal/role"
	"gorm.io/gorm"
)

// branchTeam resolves the team a branch call applies to. Scoped roles are
// pinned to their own team.
func branchTeam(c *gin.Context, actor role.Actor) (string, error) {
	team := c.Query("team")
	if role.Of(actor.Role).BranchScoped || team == "" {
		team = actor.EffectiveTeam()
	}
	if team == "" {
		return "", apperr.Validationf("team is required")
	}
	return team, nil
}

func handleListAssigned(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		team, err := branchTeam(c, actor)
		if err != nil {
			fail(c, err)
			return
		}
		as, err := branch.ListAssigned(s.db.WithContext(c.Request.Context()), actor.ID, team)
		if err != nil {
			fail(c, err)
			return
		}
		out := make([]assignmentDTO, 0, len(as))
		for _, a := range as {
			out = append(out, toAssignment(a))
		}
		ok(c, out)
	}
}

func handleAccept(s *Server) gin.HandlerFunc {
	return handleBranchDecision(s, branch.Accept)
}

func handleDecline(s *Server) gin.HandlerFunc {
	return handleBranchDecision(s, branch.Decline)
}

type branchOp func(db *gorm.DB, userID, ref, team string) (*models.BranchAssignment, error)

func handleBranchDecision(s *Server, op branchOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		team, err := branchTeam(c, actor)
		if err != nil {
			fail(c, err)
			return
		}
		a, err := op(s.db.WithContext(c.Request.Context()), actor.ID, c.Param("branchId"), team)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, toAssignment(*a))
	}
}
