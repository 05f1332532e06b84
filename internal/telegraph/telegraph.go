package telegraph

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/querydesk/internal/approval"
	"github.com/zulandar/querydesk/internal/models"
)

// DefaultSendTimeout bounds a single adapter delivery.
const DefaultSendTimeout = 10 * time.Second

// Notifier fans approval events out to every configured adapter. It
// satisfies approval.Notifier. Delivery is best effort: failures are logged
// and never reach the caller that triggered the event.
type Notifier struct {
	adapters []Adapter
	timeout  time.Duration
}

// NotifierOpts holds parameters for creating a Notifier.
type NotifierOpts struct {
	Adapters    []Adapter
	SendTimeout time.Duration // defaults to DefaultSendTimeout
}

// NewNotifier creates a Notifier. Nil adapters are skipped.
func NewNotifier(opts NotifierOpts) *Notifier {
	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	var adapters []Adapter
	for _, a := range opts.Adapters {
		if a != nil {
			adapters = append(adapters, a)
		}
	}
	return &Notifier{adapters: adapters, timeout: timeout}
}

// Enabled reports whether any adapter is configured.
func (n *Notifier) Enabled() bool {
	return len(n.adapters) > 0
}

// Connect connects every adapter. An adapter that fails to connect is
// dropped so the rest keep working.
func (n *Notifier) Connect(ctx context.Context) {
	var ok []Adapter
	for _, a := range n.adapters {
		if err := a.Connect(ctx); err != nil {
			log.Printf("telegraph: connect %s: %v", a.Name(), err)
			continue
		}
		ok = append(ok, a)
	}
	n.adapters = ok
}

// RequestCreated tells the assignee a request is waiting for them.
func (n *Notifier) RequestCreated(ctx context.Context, req models.ApprovalRequest) {
	evt := FormatRequestCreated(req)
	msg := OutboundMessage{
		Subject: evt.Title,
		Text:    evt.Title,
		Events:  []FormattedEvent{evt},
	}
	if req.AssignedTo != "" {
		msg.Recipients = []string{req.AssignedTo}
	}
	if err := n.Broadcast(ctx, msg); err != nil {
		log.Printf("telegraph: request %s created: %v", req.ID, err)
	}
}

// RequestDecided tells the requester how their request was decided.
func (n *Notifier) RequestDecided(ctx context.Context, res approval.Result) {
	evt := FormatRequestDecided(res)
	msg := OutboundMessage{
		Subject: evt.Title,
		Text:    evt.Title,
		Events:  []FormattedEvent{evt},
	}
	if res.Request != nil && res.Request.RequestedBy != "" {
		msg.Recipients = []string{res.Request.RequestedBy}
	}
	if err := n.Broadcast(ctx, msg); err != nil {
		log.Printf("telegraph: request decided: %v", err)
	}
}

// Broadcast sends msg through every adapter and returns the joined
// delivery errors.
func (n *Notifier) Broadcast(ctx context.Context, msg OutboundMessage) error {
	var errs []error
	for _, a := range n.adapters {
		sctx, cancel := context.WithTimeout(ctx, n.timeout)
		err := a.Send(sctx, msg)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every adapter.
func (n *Notifier) Close() error {
	var errs []error
	for _, a := range n.adapters {
		if err := a.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Name(), err))
		}
	}
	return errors.Join(errs...)
}
