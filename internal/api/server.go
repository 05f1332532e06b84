// Package api serves the QueryDesk operations over HTTP under /api/v1.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/querydesk/internal/approval"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"
)

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

// ServerOpts holds configuration for the API server.
type ServerOpts struct {
	DB        *gorm.DB
	Router    *approval.Router // built from DB when nil
	JWTSecret string
	Port      int
	GinMode   string           // defaults to release
	AccessLog io.Writer        // request log destination; nil disables it
	Out       io.Writer        // startup banner
	Checks    map[string]Check // extra /health checks, e.g. "redis"
}

// Server is the HTTP front of the query and approval operations.
type Server struct {
	db     *gorm.DB
	router *approval.Router
	secret string
	port   int
	out    io.Writer
	checks map[string]Check
	engine *gin.Engine
}

// New validates opts and builds the route table.
func New(opts ServerOpts) (*Server, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("api: db is required")
	}
	if opts.JWTSecret == "" {
		return nil, fmt.Errorf("api: jwt secret is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	r := opts.Router
	if r == nil {
		var err error
		r, err = approval.NewRouter(approval.RouterOpts{DB: opts.DB})
		if err != nil {
			return nil, fmt.Errorf("api: %w", err)
		}
	}

	mode := opts.GinMode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	engine := gin.New()
	if opts.AccessLog != nil {
		engine.Use(gin.LoggerWithWriter(opts.AccessLog))
	}
	engine.Use(gin.Recovery())

	s := &Server{
		db:     opts.DB,
		router: r,
		secret: opts.JWTSecret,
		port:   opts.Port,
		out:    opts.Out,
		checks: opts.Checks,
		engine: engine,
	}
	registerRoutes(engine, s)
	return s, nil
}

// Handler returns the traced HTTP handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.engine, "querydesk-api")
}

// Start listens on the configured port. It blocks until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if s.out != nil {
		fmt.Fprintf(s.out, "QueryDesk API listening on http://localhost:%d/api/v1\n", s.port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
