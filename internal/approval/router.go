package approval

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/zulandar/querydesk/internal/apperr"
	"github.com/zulandar/querydesk/internal/guard"
	"github.com/zulandar/querydesk/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("github.com/zulandar/querydesk/internal/approval")

// Locker serializes decisions on the same request across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Notifier is told about committed router events. Implementations must not
// block for long; failures are theirs to log.
type Notifier interface {
	RequestCreated(ctx context.Context, req models.ApprovalRequest)
	RequestDecided(ctx context.Context, res Result)
}

// Router wraps CreateRequest and Decide with the optional decision lock and
// post-commit notifications.
type Router struct {
	db       *gorm.DB
	locker   Locker
	notifier Notifier
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	DB       *gorm.DB
	Locker   Locker   // optional
	Notifier Notifier // optional
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("approval: router: db is required")
	}
	return &Router{db: opts.DB, locker: opts.Locker, notifier: opts.Notifier}, nil
}

// CreateRequest raises a request and notifies after commit.
func (r *Router) CreateRequest(ctx context.Context, opts CreateOpts) (*models.ApprovalRequest, error) {
	ctx, span := tracer.Start(ctx, "approval.CreateRequest")
	defer span.End()
	span.SetAttributes(
		attribute.String("query.id", opts.QueryID),
		attribute.String("request.type", opts.RequestType),
	)

	req, err := CreateRequest(r.db.WithContext(ctx), opts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if r.notifier != nil {
		r.notifier.RequestCreated(ctx, *req)
	}
	return req, nil
}

// Decide takes the decision lock for the request, applies the decision and
// notifies after commit. A decision already in flight for the same request
// is a Conflict. When the lock backend is unreachable the decision proceeds
// on the store's own guard.
func (r *Router) Decide(ctx context.Context, opts DecideOpts) (*Result, error) {
	ctx, span := tracer.Start(ctx, "approval.Decide")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", opts.RequestID),
		attribute.String("decision", opts.Decision),
	)

	if r.locker != nil && opts.RequestID != "" {
		release, err := r.locker.Acquire(ctx, "decision:"+opts.RequestID)
		switch {
		case errors.Is(err, guard.ErrHeld):
			return nil, apperr.Conflictf("request %s is already being decided", opts.RequestID)
		case err != nil:
			log.Printf("approval: decision lock unavailable: %v", err)
		default:
			defer release()
		}
	}

	res, err := Decide(r.db.WithContext(ctx), opts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if r.notifier != nil {
		r.notifier.RequestDecided(ctx, *res)
	}
	return res, nil
}

// ListRequests lists requests matching filters, oldest first.
func (r *Router) ListRequests(ctx context.Context, filters ListFilters) ([]models.ApprovalRequest, error) {
	return ListRequests(r.db.WithContext(ctx), filters)
}
