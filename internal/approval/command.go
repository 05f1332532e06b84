package approval

import (
	"encoding/json"
	"fmt"

	"github.com/zulandar/querydesk/internal/apperr"
	"github.com/zulandar/querydesk/internal/models"
	"github.com/zulandar/querydesk/internal/query"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RequestTypes lists every escalation path.
var RequestTypes = []string{models.RequestApprove, models.RequestDeferral, models.RequestOTC}

// targetStatus maps a request type to the status it applies once approved.
var targetStatus = map[string]string{
	models.RequestApprove:  models.StatusApproved,
	models.RequestDeferral: models.StatusDeferred,
	models.RequestOTC:      models.StatusOTC,
}

// Command is the status change captured when a request is raised. It is
// stored on the request and replayed verbatim when an authority approves.
type Command struct {
	Type         string `json:"type"`
	QueryID      string `json:"queryId"`
	TargetStatus string `json:"targetStatus"`
	Remarks      string `json:"remarks"`
}

// TargetStatus returns the status a request type applies.
func TargetStatus(requestType string) (string, error) {
	s, ok := targetStatus[requestType]
	if !ok {
		return "", apperr.Validationf("unknown request type %q; valid types: %v", requestType, RequestTypes)
	}
	return s, nil
}

// NewCommand builds the command for a request of requestType on queryID.
func NewCommand(queryID, requestType, remarks string) (Command, error) {
	status, err := TargetStatus(requestType)
	if err != nil {
		return Command{}, err
	}
	return Command{Type: requestType, QueryID: queryID, TargetStatus: status, Remarks: remarks}, nil
}

// Encode serializes the command for storage.
func (c Command) Encode() (datatypes.JSON, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("approval: encode command: %w", err)
	}
	return datatypes.JSON(b), nil
}

// DecodeCommand reads a stored command back.
func DecodeCommand(raw datatypes.JSON) (Command, error) {
	var c Command
	if len(raw) == 0 {
		return c, fmt.Errorf("approval: stored command is empty")
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("approval: decode command: %w", err)
	}
	if _, ok := targetStatus[c.Type]; !ok || c.QueryID == "" {
		return c, fmt.Errorf("approval: stored command is malformed: %s", string(raw))
	}
	return c, nil
}

// Replay applies the command inside tx as actor, with authorityRemarks
// appended to the remarks captured at request time.
func (c Command) Replay(tx *gorm.DB, actor, authorityRemarks string) (*models.Query, error) {
	return query.Apply(tx, query.Change{
		QueryID: c.QueryID,
		Status:  c.TargetStatus,
		Remarks: ComposeRemarks(c.Remarks, authorityRemarks),
		Actor:   actor,
	})
}

// ComposeActor formats the identity recorded for a replayed change.
func ComposeActor(authority, requestedBy string) string {
	return fmt.Sprintf("%s (via %s)", authority, requestedBy)
}

// ComposeRemarks joins the requester's and the authority's remarks.
func ComposeRemarks(original, authority string) string {
	return fmt.Sprintf("%s | Authority: %s", original, authority)
}
