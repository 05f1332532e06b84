package api

import (
	"github.com/gin-gonic/gin"
	"github.com/zulandar/querydesk/internal/apperr"
	"github.com/zulandar/querydesk/internal/branch"
	"github.com/zulandar/querydesk/internal/messaging"
	"github.com/zulandar/querydesk/internal/query"
	"github.com/zulandar/querydesk/internal/visibility"
)

type appendChatRequest struct {
	Message string `json:"message"`
}

func handleListChat(s *Server) gin.HandlerFunc {
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
		if _, visible := visibility.ViewQuery(actor, q); !visible {
			fail(c, apperr.Forbiddenf("query %s is not routed to %s", q.ID, actor.Display()))
			return
		}
		msgs, err := messaging.List(db, q.ID)
		if err != nil {
			fail(c, err)
			return
		}
		out := make([]chatDTO, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, toChat(m))
		}
		ok(c, out)
	}
}

// handleAppendChat posts a human message. The caller must be allowed to
// message at least one of the query's sub-queries.
func handleAppendChat(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body appendChatRequest
		if !bind(c, &body) {
			return
		}
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
		if !visibility.CanMessageQuery(actor, q) {
			fail(c, apperr.Forbiddenf("%s may not message on query %s", actor.Display(), q.ID))
			return
		}
		msg, err := messaging.Append(db, messaging.AppendOpts{
			QueryID:    q.ID,
			Message:    body.Message,
			Sender:     actor.Display(),
			SenderRole: string(actor.Role),
			Team:       actor.EffectiveTeam(),
		})
		if err != nil {
			fail(c, err)
			return
		}
		created(c, toChat(*msg))
	}
}
