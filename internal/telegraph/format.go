package telegraph

import (
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/querydesk/internal/approval"
	"github.com/zulandar/querydesk/internal/models"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "info":
		return ColorInfo
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// requestLabel returns the display name of a request type.
func requestLabel(requestType string) string {
	switch requestType {
	case models.RequestApprove:
		return "Approval"
	case models.RequestDeferral:
		return "Deferral"
	case models.RequestOTC:
		return "OTC"
	default:
		return requestType
	}
}

// FormatRequestCreated formats a newly raised approval request.
func FormatRequestCreated(req models.ApprovalRequest) FormattedEvent {
	title := fmt.Sprintf("%s request awaiting decision", requestLabel(req.RequestType))

	var bodyParts []string
	bodyParts = append(bodyParts, fmt.Sprintf("Raised by %s", req.RequestedBy))
	if req.Remarks != "" {
		bodyParts = append(bodyParts, req.Remarks)
	}

	fields := []Field{
		{Name: "Query", Value: req.QueryID, Short: true},
		{Name: "Type", Value: req.RequestType, Short: true},
	}
	if req.AssignedTo != "" {
		fields = append(fields, Field{Name: "Assigned to", Value: req.AssignedTo, Short: true})
	}

	return FormattedEvent{
		Title:    title,
		Body:     strings.Join(bodyParts, "\n"),
		Severity: "warning",
		Color:    ColorWarning,
		Fields:   fields,
	}
}

// FormatRequestDecided formats an authority's decision.
func FormatRequestDecided(res approval.Result) FormattedEvent {
	req := res.Request
	if req == nil {
		return FormattedEvent{Title: res.Message, Severity: "info", Color: ColorInfo}
	}

	severity := "success"
	verb := "approved"
	if res.Decision == approval.DecisionReject {
		severity = "error"
		verb = "rejected"
	}

	title := fmt.Sprintf("%s request %s", requestLabel(req.RequestType), verb)

	var bodyParts []string
	if req.ProcessedBy != "" {
		bodyParts = append(bodyParts, fmt.Sprintf("Decided by %s", req.ProcessedBy))
	}
	if req.ProcessRemarks != "" {
		bodyParts = append(bodyParts, req.ProcessRemarks)
	}

	fields := []Field{
		{Name: "Query", Value: req.QueryID, Short: true},
		{Name: "Requested by", Value: req.RequestedBy, Short: true},
	}
	if res.Query != nil {
		fields = append(fields, Field{Name: "Query status", Value: res.Query.Status, Short: true})
	}

	return FormattedEvent{
		Title:    title,
		Body:     strings.Join(bodyParts, "\n"),
		Severity: severity,
		Color:    severityColor(severity),
		Fields:   fields,
	}
}

// FormatDigest formats the pending-approval digest.
func FormatDigest(items []DigestItem, minAge time.Duration) FormattedEvent {
	byType := make(map[string]int)
	var lines []string
	for _, it := range items {
		byType[it.Request.RequestType]++
		app := it.AppNo
		if app == "" {
			app = it.Request.QueryID
		}
		line := fmt.Sprintf("• %s request for %s, waiting %s", requestLabel(it.Request.RequestType), app, formatAge(it.Age))
		if it.Request.AssignedTo != "" {
			line += " (" + it.Request.AssignedTo + ")"
		}
		lines = append(lines, line)
	}

	var fields []Field
	for _, t := range approval.RequestTypes {
		if n := byType[t]; n > 0 {
			fields = append(fields, Field{Name: requestLabel(t), Value: fmt.Sprintf("%d", n), Short: true})
		}
	}

	return FormattedEvent{
		Title:    fmt.Sprintf("%d approval requests pending over %s", len(items), formatAge(minAge)),
		Body:     strings.Join(lines, "\n"),
		Severity: "warning",
		Color:    ColorWarning,
		Fields:   fields,
	}
}

// formatAge renders a duration in days or hours.
func formatAge(d time.Duration) string {
	if d >= 48*time.Hour {
		return fmt.Sprintf("%dd", int(d.Hours())/24)
	}
	if d >= time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
