package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all API routes on the Gin engine.
func registerRoutes(engine *gin.Engine, s *Server) {
	engine.GET("/health", handleHealth(s))

	v1 := engine.Group("/api/v1")
	v1.Use(authMiddleware(s.secret))

	v1.POST("/queries", handleCreateQuery(s))
	v1.GET("/queries/:id", handleGetQuery(s))
	v1.POST("/queries/:id/status", handleChangeStatus(s))
	v1.POST("/queries/:id/approval-requests", handleCreateRequest(s))
	v1.GET("/queries/:id/chat", handleListChat(s))
	v1.POST("/queries/:id/chat", handleAppendChat(s))
	v1.GET("/applications/:appNo/queries", handleListForApp(s))
	v1.GET("/dashboard", handleDashboard(s))

	v1.GET("/approval-requests", handleListRequests(s))
	v1.POST("/approval-requests/:id/decision", handleDecide(s))

	v1.GET("/branches/assigned", handleListAssigned(s))
	v1.POST("/branches/:branchId/accept", handleAccept(s))
	v1.POST("/branches/:branchId/decline", handleDecline(s))
}

type healthDTO struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleHealth pings the database and any extra checks. It is
// unauthenticated.
func handleHealth(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]Check{"database": func(ctx context.Context) error {
			sqlDB, err := s.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}}
		for name, fn := range s.checks {
			checks[name] = fn
		}

		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)

		res := healthDTO{Status: "ok", Checks: make(map[string]string, len(checks))}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				res.Status = "degraded"
				res.Checks[name] = err.Error()
				continue
			}
			res.Checks[name] = "ok"
		}

		status := http.StatusOK
		if res.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, envelope{Success: res.Status == "ok", Data: res})
	}
}
