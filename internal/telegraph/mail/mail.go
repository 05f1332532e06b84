// Package mail implements the telegraph Adapter for email over SMTP.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"log"
	"sort"
	"strings"
	"sync"

	gomail "gopkg.in/mail.v2"
	"github.com/zulandar/querydesk/internal/telegraph"
)

// sender abstracts the SMTP dialer, enabling test fakes.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Adapter implements telegraph.Adapter for email. Recipients on outbound
// messages are names; Contacts maps them to addresses.
type Adapter struct {
	dialer    sender
	from      string
	contacts  map[string]string
	mu        sync.Mutex
	connected bool
	closed    bool
}

// AdapterOpts holds parameters for creating a mail Adapter.
type AdapterOpts struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string            // e.g. "QueryDesk <no-reply@example.com>"
	Contacts map[string]string // recipient name -> email address
	// For testing: inject a fake sender instead of a real SMTP dialer.
	Sender sender
}

// New creates a mail Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.From == "" {
		return nil, fmt.Errorf("mail: from address is required")
	}
	d := opts.Sender
	if d == nil {
		if opts.Host == "" {
			return nil, fmt.Errorf("mail: smtp host is required")
		}
		port := opts.Port
		if port == 0 {
			port = 587
		}
		dialer := gomail.NewDialer(opts.Host, port, opts.Username, opts.Password)
		dialer.StartTLSPolicy = gomail.MandatoryStartTLS
		dialer.TLSConfig = &tls.Config{ServerName: opts.Host}
		d = dialer
	}

	contacts := make(map[string]string, len(opts.Contacts))
	for name, addr := range opts.Contacts {
		contacts[strings.ToLower(strings.TrimSpace(name))] = addr
	}
	return &Adapter{dialer: d, from: opts.From, contacts: contacts}, nil
}

// Name identifies the adapter in logs.
func (a *Adapter) Name() string { return "mail" }

// Connect marks the adapter ready. SMTP sessions are opened per send.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("mail: adapter already closed")
	}
	a.connected = true
	return nil
}

// Send emails the message to every recipient with a known address. A
// message with no resolvable recipient is dropped.
func (a *Adapter) Send(ctx context.Context, msg telegraph.OutboundMessage) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return fmt.Errorf("mail: not connected")
	}
	a.mu.Unlock()

	to := a.resolve(msg.Recipients)
	if len(to) == 0 {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", a.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject(msg))
	m.SetBody("text/html", renderHTML(msg))

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("mail: send: %w", err)
	}
	return nil
}

// Close marks the adapter closed.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.connected = false
	return nil
}

// resolve maps recipient names to addresses, dropping unknowns and
// duplicates. Values containing "@" are used as-is.
func (a *Adapter) resolve(names []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range names {
		addr := n
		if !strings.Contains(n, "@") {
			var ok bool
			addr, ok = a.contacts[strings.ToLower(strings.TrimSpace(n))]
			if !ok {
				log.Printf("mail: no address for recipient %q", n)
				continue
			}
		}
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

func subject(msg telegraph.OutboundMessage) string {
	if msg.Subject != "" {
		return msg.Subject
	}
	if len(msg.Events) > 0 {
		return msg.Events[0].Title
	}
	return "QueryDesk notification"
}

// renderHTML produces a minimal HTML body from the text and events.
func renderHTML(msg telegraph.OutboundMessage) string {
	var b strings.Builder
	if msg.Text != "" {
		fmt.Fprintf(&b, "<p>%s</p>\n", strings.ReplaceAll(html.EscapeString(msg.Text), "\n", "<br>"))
	}
	for _, evt := range msg.Events {
		color := evt.Color
		if color == "" {
			color = "#cccccc"
		}
		fmt.Fprintf(&b, "<div style=\"border-left:4px solid %s;padding-left:8px;margin:8px 0\">\n", html.EscapeString(color))
		fmt.Fprintf(&b, "<h3>%s</h3>\n", html.EscapeString(evt.Title))
		if evt.Body != "" {
			fmt.Fprintf(&b, "<p>%s</p>\n", strings.ReplaceAll(html.EscapeString(evt.Body), "\n", "<br>"))
		}
		if len(evt.Fields) > 0 {
			b.WriteString("<table>\n")
			for _, f := range evt.Fields {
				fmt.Fprintf(&b, "<tr><th align=\"left\">%s</th><td>%s</td></tr>\n", html.EscapeString(f.Name), html.EscapeString(f.Value))
			}
			b.WriteString("</table>\n")
		}
		b.WriteString("</div>\n")
	}
	return b.String()
}
