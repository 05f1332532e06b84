package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/zulandar/querydesk/internal/models"
	"golang.org/x/term"
)

const (
	ansiReset  = "\033[0m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiCyan   = "\033[36m"
)

// isTerminal reports whether w is an interactive terminal. Color output is
// only used there.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// colorStatus wraps a query or request status in an ANSI color when tty is
// set.
func colorStatus(status string, tty bool) string {
	if !tty {
		return status
	}
	var c string
	switch status {
	case models.StatusResolved, models.RequestApproved, models.AssignmentAccepted:
		c = ansiGreen
	case models.StatusPending:
		c = ansiYellow
	case models.RequestRejected, models.AssignmentDeclined:
		c = ansiRed
	case models.StatusDeferred, models.StatusOTC:
		c = ansiCyan
	default:
		return status
	}
	return c + status + ansiReset
}

// truncate shortens s to max runes, marking the cut with "...".
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// formatTime renders t in local time, or "-" for zero.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

// orDash returns "-" for empty strings so table columns stay aligned.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
