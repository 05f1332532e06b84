package api

import (
	"time"

	"github.com/zulandar/querydesk/internal/approval"
	"github.com/zulandar/querydesk/internal/models"
	"github.com/zulandar/querydesk/internal/visibility"
)

// Wire shapes. Models carry no JSON tags; these keep the API camelCase and
// decoupled from the schema.

type subQueryDTO struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	Status         string    `json:"status"`
	MarkedForTeam  string    `json:"markedForTeam"`
	Remarks        string    `json:"remarks,omitempty"`
	UpdatedBy      string    `json:"updatedBy,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
	AllowMessaging *bool     `json:"allowMessaging,omitempty"`
}

type queryDTO struct {
	ID               string        `json:"id"`
	AppNo            string        `json:"appNo"`
	CustomerName     string        `json:"customerName,omitempty"`
	Branch           string        `json:"branch,omitempty"`
	BranchCode       string        `json:"branchCode,omitempty"`
	MarkedForTeam    string        `json:"markedForTeam"`
	Status           string        `json:"status"`
	Priority         string        `json:"priority"`
	Remarks          string        `json:"remarks,omitempty"`
	SubmittedBy      string        `json:"submittedBy"`
	SubmittedAt      time.Time     `json:"submittedAt"`
	LastActionBy     string        `json:"lastActionBy,omitempty"`
	LastActionAt     *time.Time    `json:"lastActionAt,omitempty"`
	UpdatedAt        time.Time     `json:"updatedAt"`
	SubQueries       []subQueryDTO `json:"subQueries"`
	AllowMessaging   *bool         `json:"allowMessaging,omitempty"`
	ApprovalRequests []requestDTO  `json:"approvalRequests,omitempty"`
}

type requestDTO struct {
	ID             string     `json:"id"`
	QueryID        string     `json:"queryId"`
	RequestType    string     `json:"requestType"`
	RequestedBy    string     `json:"requestedBy"`
	AssignedTo     string     `json:"assignedTo,omitempty"`
	Remarks        string     `json:"remarks,omitempty"`
	Status         string     `json:"status"`
	ProcessedBy    string     `json:"processedBy,omitempty"`
	ProcessDate    *time.Time `json:"processDate,omitempty"`
	ProcessRemarks string     `json:"processRemarks,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type chatDTO struct {
	ID              string    `json:"id"`
	QueryID         string    `json:"queryId"`
	Message         string    `json:"message"`
	Sender          string    `json:"sender"`
	SenderRole      string    `json:"senderRole,omitempty"`
	Team            string    `json:"team,omitempty"`
	IsSystemMessage bool      `json:"isSystemMessage"`
	ActionType      string    `json:"actionType,omitempty"`
	RequestID       string    `json:"requestId,omitempty"`
	RejectionReason string    `json:"rejectionReason,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

type assignmentDTO struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Team       string     `json:"team"`
	BranchID   string     `json:"branchId"`
	BranchCode string     `json:"branchCode"`
	Status     string     `json:"status"`
	MarkedAt   time.Time  `json:"markedAt"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
	DeclinedAt *time.Time `json:"declinedAt,omitempty"`
}

type dashboardDTO struct {
	Queries         []queryDTO     `json:"queries"`
	PendingRequests []requestDTO   `json:"pendingRequests"`
	Branch          *assignmentDTO `json:"branch,omitempty"`
}

type decisionDTO struct {
	Decision string     `json:"decision"`
	Message  string     `json:"message"`
	Request  requestDTO `json:"request"`
	Query    *queryDTO  `json:"query,omitempty"`
}

func boolPtr(b bool) *bool { return &b }

func toSubQuery(sq models.SubQuery) subQueryDTO {
	return subQueryDTO{
		ID:            sq.ID,
		Text:          sq.Text,
		Status:        sq.Status,
		MarkedForTeam: sq.MarkedForTeam,
		Remarks:       sq.Remarks,
		UpdatedBy:     sq.UpdatedBy,
		UpdatedAt:     sq.UpdatedAt,
	}
}

func toQuery(q models.Query) queryDTO {
	d := queryDTO{
		ID:            q.ID,
		AppNo:         q.AppNo,
		CustomerName:  q.CustomerName,
		Branch:        q.Branch,
		BranchCode:    q.BranchCode,
		MarkedForTeam: q.MarkedForTeam,
		Status:        q.Status,
		Priority:      q.Priority,
		Remarks:       q.Remarks,
		SubmittedBy:   q.SubmittedBy,
		SubmittedAt:   q.SubmittedAt,
		LastActionBy:  q.LastActionBy,
		LastActionAt:  q.LastActionAt,
		UpdatedAt:     q.UpdatedAt,
		SubQueries:    make([]subQueryDTO, 0, len(q.SubQueries)),
	}
	for _, sq := range q.SubQueries {
		d.SubQueries = append(d.SubQueries, toSubQuery(sq))
	}
	return d
}

// toQueryView renders only the sub-queries the view kept, each with its
// messaging flag.
func toQueryView(v visibility.QueryView) queryDTO {
	d := toQuery(v.Query)
	d.SubQueries = make([]subQueryDTO, 0, len(v.Items))
	for _, it := range v.Items {
		sq := toSubQuery(it.SubQuery)
		sq.AllowMessaging = boolPtr(it.AllowMessaging)
		d.SubQueries = append(d.SubQueries, sq)
	}
	d.AllowMessaging = boolPtr(v.AllowMessaging)
	return d
}

func toQueryViews(vs []visibility.QueryView) []queryDTO {
	out := make([]queryDTO, 0, len(vs))
	for _, v := range vs {
		out = append(out, toQueryView(v))
	}
	return out
}

func toRequest(r models.ApprovalRequest) requestDTO {
	return requestDTO{
		ID:             r.ID,
		QueryID:        r.QueryID,
		RequestType:    r.RequestType,
		RequestedBy:    r.RequestedBy,
		AssignedTo:     r.AssignedTo,
		Remarks:        r.Remarks,
		Status:         r.Status,
		ProcessedBy:    r.ProcessedBy,
		ProcessDate:    r.ProcessDate,
		ProcessRemarks: r.ProcessRemarks,
		CreatedAt:      r.CreatedAt,
	}
}

func toRequests(rs []models.ApprovalRequest) []requestDTO {
	out := make([]requestDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRequest(r))
	}
	return out
}

func toChat(m models.ChatMessage) chatDTO {
	return chatDTO{
		ID:              m.ID,
		QueryID:         m.QueryID,
		Message:         m.Message,
		Sender:          m.Sender,
		SenderRole:      m.SenderRole,
		Team:            m.Team,
		IsSystemMessage: m.IsSystemMessage,
		ActionType:      m.ActionType,
		RequestID:       m.RequestID,
		RejectionReason: m.RejectionReason,
		Timestamp:       m.CreatedAt,
	}
}

func toAssignment(a models.BranchAssignment) assignmentDTO {
	return assignmentDTO{
		ID:         a.ID,
		UserID:     a.UserID,
		Team:       a.Team,
		BranchID:   a.BranchID,
		BranchCode: a.BranchCode,
		Status:     a.Status,
		MarkedAt:   a.MarkedAt,
		AcceptedAt: a.AcceptedAt,
		DeclinedAt: a.DeclinedAt,
	}
}

func toDecision(res *approval.Result) decisionDTO {
	d := decisionDTO{
		Decision: res.Decision,
		Message:  res.Message,
		Request:  toRequest(*res.Request),
	}
	if res.Query != nil {
		q := toQuery(*res.Query)
		d.Query = &q
	}
	return d
}
