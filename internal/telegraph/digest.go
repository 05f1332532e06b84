package telegraph

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/querydesk/internal/approval"
	"github.com/zulandar/querydesk/internal/models"
	"gorm.io/gorm"
)

// DigestItem is one stale pending request with its application context.
type DigestItem struct {
	Request      models.ApprovalRequest
	AppNo        string
	CustomerName string
	Age          time.Duration
}

// BuildDigest returns pending requests raised more than minAge before now,
// oldest first.
func BuildDigest(db *gorm.DB, minAge time.Duration, now time.Time) ([]DigestItem, error) {
	reqs, err := approval.PendingOlderThan(db, now.Add(-minAge))
	if err != nil {
		return nil, fmt.Errorf("telegraph: digest: %w", err)
	}
	if len(reqs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.QueryID)
	}
	var qs []models.Query
	if err := db.Where("id IN ?", ids).Find(&qs).Error; err != nil {
		return nil, fmt.Errorf("telegraph: digest queries: %w", err)
	}
	byID := make(map[string]models.Query, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}

	items := make([]DigestItem, 0, len(reqs))
	for _, r := range reqs {
		q := byID[r.QueryID]
		items = append(items, DigestItem{
			Request:      r,
			AppNo:        q.AppNo,
			CustomerName: q.CustomerName,
			Age:          now.Sub(r.CreatedAt),
		})
	}
	return items, nil
}

// Digest posts a summary of stale pending approval requests.
type Digest struct {
	db       *gorm.DB
	notifier *Notifier
	minAge   time.Duration
	now      func() time.Time
}

// DigestOpts holds parameters for creating a Digest.
type DigestOpts struct {
	DB       *gorm.DB
	Notifier *Notifier
	MinAge   time.Duration // defaults to 24h
}

// NewDigest creates a Digest.
func NewDigest(opts DigestOpts) (*Digest, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("telegraph: digest: db is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("telegraph: digest: notifier is required")
	}
	minAge := opts.MinAge
	if minAge <= 0 {
		minAge = 24 * time.Hour
	}
	return &Digest{db: opts.DB, notifier: opts.Notifier, minAge: minAge, now: time.Now}, nil
}

// Send builds and posts one digest. It returns the number of requests
// reported; nothing is posted when there are none.
func (d *Digest) Send(ctx context.Context) (int, error) {
	items, err := BuildDigest(d.db.WithContext(ctx), d.minAge, d.now())
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	evt := FormatDigest(items, d.minAge)
	err = d.notifier.Broadcast(ctx, OutboundMessage{
		Subject: evt.Title,
		Text:    evt.Title,
		Events:  []FormattedEvent{evt},
	})
	if err != nil {
		return len(items), fmt.Errorf("telegraph: send digest: %w", err)
	}
	return len(items), nil
}

// Run fires Send on the cron schedule expr until ctx is cancelled.
func (d *Digest) Run(ctx context.Context, expr string) error {
	sched, err := parseSchedule(expr)
	if err != nil {
		return err
	}
	wait := untilNext(sched, time.Now())
	if wait <= 0 {
		return fmt.Errorf("telegraph: digest: schedule %q never fires", expr)
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if n, err := d.Send(ctx); err != nil {
				log.Printf("telegraph: digest: %v", err)
			} else if n > 0 {
				log.Printf("telegraph: digest posted %d pending requests", n)
			}
			if next := untilNext(sched, time.Now()); next > 0 {
				timer.Reset(next)
			}
		}
	}
}
