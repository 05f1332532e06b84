package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/zulandar/querydesk/internal/branch"
	"github.com/zulandar/querydesk/internal/models"
	"github.com/zulandar/querydesk/internal/role"
	"github.com/zulandar/querydesk/internal/visibility"
)

func (ts *testServer) createQuery(body createQueryRequest) queryDTO {
	ts.t.Helper()
	code, res := ts.do(http.MethodPost, "/api/v1/queries", opsActor, body)
	if code != http.StatusCreated {
		ts.t.Fatalf("create query: code = %d, res = %+v", code, res.Error)
	}
	var q queryDTO
	decode(ts.t, res.Data, &q)
	return q
}

// acceptBranch gives a sales or credit actor an accepted branch.
func (ts *testServer) acceptBranch(actor role.Actor, code string) {
	ts.t.Helper()
	ts.db.Create(&models.Branch{ID: "b-" + code, Code: code, Name: code, Active: true})
	if _, err := branch.Assign(ts.db, actor.ID, code, actor.Team); err != nil {
		ts.t.Fatal(err)
	}
	if _, err := branch.Accept(ts.db, actor.ID, code, actor.Team); err != nil {
		ts.t.Fatal(err)
	}
}

// --- Queries ---

func TestCreateQuery_Originator(t *testing.T) {
	ts := newTestServer(t)
	q := ts.createQuery(createQueryRequest{
		AppNo:      "GGN001",
		BranchCode: "GGN",
		SubQueries: []subQueryRequest{{Text: "Salary slips"}, {Text: "Bureau", MarkedForTeam: "credit"}},
	})
	if q.ID == "" || q.Status != models.StatusPending || q.Priority != "medium" {
		t.Errorf("query = %+v", q)
	}
	if q.SubmittedBy != "Operations" {
		t.Errorf("SubmittedBy = %q", q.SubmittedBy)
	}
	if len(q.SubQueries) != 2 || q.SubQueries[0].MarkedForTeam != "both" || q.SubQueries[1].MarkedForTeam != "credit" {
		t.Errorf("subQueries = %+v", q.SubQueries)
	}
}

func TestCreateQuery_SalesForbidden(t *testing.T) {
	ts := newTestServer(t)
	code, res := ts.do(http.MethodPost, "/api/v1/queries", salesActor, createQueryRequest{AppNo: "GGN001"})
	if code != http.StatusForbidden || res.Error.Code != "FORBIDDEN" {
		t.Fatalf("code = %d, res = %+v", code, res)
	}
}

func TestCreateQuery_Validation(t *testing.T) {
	ts := newTestServer(t)
	code, res := ts.do(http.MethodPost, "/api/v1/queries", opsActor, createQueryRequest{})
	if code != http.StatusBadRequest || res.Success || res.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("code = %d, res = %+v", code, res)
	}
}

func TestGetQuery_NotFound(t *testing.T) {
	ts := newTestServer(t)
	code, res := ts.do(http.MethodGet, "/api/v1/queries/missing", opsActor, nil)
	if code != http.StatusNotFound || res.Error.Code != "NOT_FOUND" {
		t.Fatalf("code = %d, res = %+v", code, res)
	}
}

func TestGetQuery_FiltersForTeam(t *testing.T) {
	ts := newTestServer(t)
	ts.acceptBranch(creditActor, "GGN")
	q := ts.createQuery(createQueryRequest{
		AppNo:      "GGN001",
		BranchCode: "GGN",
		SubQueries: []subQueryRequest{{Text: "Field visit", MarkedForTeam: "sales"}, {Text: "Bureau", MarkedForTeam: "credit"}},
	})

	code, res := ts.do(http.MethodGet, "/api/v1/queries/"+q.ID, creditActor, nil)
	if code != http.StatusOK {
		t.Fatalf("code = %d, res = %+v", code, res.Error)
	}
	var got queryDTO
	decode(t, res.Data, &got)
	if len(got.SubQueries) != 1 || got.SubQueries[0].Text != "Bureau" {
		t.Errorf("subQueries = %+v", got.SubQueries)
	}
	if got.AllowMessaging == nil || !*got.AllowMessaging {
		t.Error("credit should be allowed to message")
	}

	only := ts.createQuery(createQueryRequest{AppNo: "GGN002", BranchCode: "GGN", MarkedForTeam: "sales", SubQueries: []subQueryRequest{{Text: "x"}}})
	if code, _ := ts.do(http.MethodGet, "/api/v1/queries/"+only.ID, creditActor, nil); code != http.StatusForbidden {
		t.Errorf("credit on sales-only query: code = %d, want 403", code)
	}
}

func TestGetQuery_BranchScope(t *testing.T) {
	ts := newTestServer(t)
	q := ts.createQuery(createQueryRequest{AppNo: "DEL001", BranchCode: "DEL", MarkedForTeam: "sales", SubQueries: []subQueryRequest{{Text: "Field visit"}}})
	paths := []string{"/api/v1/queries/" + q.ID, "/api/v1/queries/" + q.ID + "/chat"}

	for _, p := range paths {
		if code, _ := ts.do(http.MethodGet, p, salesActor, nil); code != http.StatusForbidden {
			t.Errorf("GET %s without branch: code = %d, want 403", p, code)
		}
	}

	ts.acceptBranch(salesActor, "GGN")
	for _, p := range paths {
		if code, _ := ts.do(http.MethodGet, p, salesActor, nil); code != http.StatusForbidden {
			t.Errorf("GET %s from another branch: code = %d, want 403", p, code)
		}
	}
	if code, _ := ts.do(http.MethodPost, paths[1], salesActor, appendChatRequest{Message: "hi"}); code != http.StatusForbidden {
		t.Errorf("append from another branch: code = %d, want 403", code)
	}
	if code, _ := ts.do(http.MethodPost, "/api/v1/queries/"+q.ID+"/status", salesActor, changeStatusRequest{Status: "resolved"}); code != http.StatusForbidden {
		t.Errorf("status from another branch: code = %d, want 403", code)
	}

	for _, p := range paths {
		if code, _ := ts.do(http.MethodGet, p, opsActor, nil); code != http.StatusOK {
			t.Errorf("GET %s as originator: code = %d, want 200", p, code)
		}
	}
}

// Scenario: a query marked for both teams is open to credit.
func TestListForApp_BothAllowsCredit(t *testing.T) {
	ts := newTestServer(t)
	ts.acceptBranch(creditActor, "GGN")
	ts.createQuery(createQueryRequest{AppNo: "GGN001", BranchCode: "GGN", MarkedForTeam: "both", SubQueries: []subQueryRequest{{Text: "Need ITR"}}})

	code, res := ts.do(http.MethodGet, "/api/v1/applications/GGN001/queries?team=credit", creditActor, nil)
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	var qs []queryDTO
	decode(t, res.Data, &qs)
	if len(qs) != 1 || qs[0].AllowMessaging == nil || !*qs[0].AllowMessaging {
		t.Fatalf("queries = %+v", qs)
	}
}

func TestListForApp_NoBranchSoftFail(t *testing.T) {
	ts := newTestServer(t)
	ts.createQuery(createQueryRequest{AppNo: "GGN001", BranchCode: "GGN", SubQueries: []subQueryRequest{{Text: "Need ITR"}}})

	code, res := ts.do(http.MethodGet, "/api/v1/applications/GGN001/queries", creditActor, nil)
	if code != http.StatusOK || !res.Success || res.Message != visibility.MsgNoBranch {
		t.Fatalf("code = %d, res = %+v", code, res)
	}
	var qs []queryDTO
	decode(t, res.Data, &qs)
	if len(qs) != 0 {
		t.Errorf("queries = %+v", qs)
	}
}

func TestListForApp_EmptyHasMessage(t *testing.T) {
	ts := newTestServer(t)
	code, res := ts.do(http.MethodGet, "/api/v1/applications/NONE/queries", opsActor, nil)
	if code != http.StatusOK || !res.Success || res.Message != visibility.MsgNoQueries {
		t.Fatalf("code = %d, res = %+v", code, res)
	}
}

func TestChangeStatus_ResolveThenConflict(t *testing.T) {
	ts := newTestServer(t)
	q := ts.createQuery(createQueryRequest{AppNo: "GGN001", SubQueries: []subQueryRequest{{Text: "x"}}})

	code, res := ts.do(http.MethodPost, "/api/v1/queries/"+q.ID+"/status", opsActor, changeStatusRequest{Status: "resolved", Remarks: "done"})
	if code != http.StatusOK {
		t.Fatalf("code = %d, res = %+v", code, res.Error)
	}
	var got queryDTO
	decode(t, res.Data, &got)
	if got.Status != models.StatusResolved || got.LastActionBy != "Operations" {
		t.Errorf("query = %+v", got)
	}

	code, res = ts.do(http.MethodPost, "/api/v1/queries/"+q.ID+"/status", opsActor, changeStatusRequest{Status: "pending"})
	if code != http.StatusConflict || res.Error.Code != "CONFLICT" {
		t.Fatalf("code = %d, res = %+v", code, res)
	}
}

func TestChangeStatus_WrongTeamForbidden(t *testing.T) {
	ts := newTestServer(t)
	ts.acceptBranch(salesActor, "GGN")
	q := ts.createQuery(createQueryRequest{AppNo: "GGN001", BranchCode: "GGN", MarkedForTeam: "credit", SubQueries: []subQueryRequest{{Text: "x"}}})
	code, _ := ts.do(http.MethodPost, "/api/v1/queries/"+q.ID+"/status", salesActor, changeStatusRequest{Status: "resolved"})
	if code != http.StatusForbidden {
		t.Errorf("code = %d, want 403", code)
	}
}

func TestChangeStatus_SalesLeavesCreditItem(t *testing.T) {
	ts := newTestServer(t)
	ts.acceptBranch(salesActor, "GGN")
	q := ts.createQuery(createQueryRequest{
		AppNo:      "GGN001",
		BranchCode: "GGN",
		SubQueries: []subQueryRequest{{Text: "Field visit", MarkedForTeam: "sales"}, {Text: "Bureau", MarkedForTeam: "credit"}},
	})

	code, res := ts.do(http.MethodPost, "/api/v1/queries/"+q.ID+"/status", salesActor, changeStatusRequest{Status: "resolved"})
	if code != http.StatusOK {
		t.Fatalf("code = %d, res = %+v", code, res.Error)
	}
	var got queryDTO
	decode(t, res.Data, &got)
	if got.Status != models.StatusPending {
		t.Errorf("query status = %q, want pending", got.Status)
	}
	for _, sq := range got.SubQueries {
		want := models.StatusPending
		if sq.MarkedForTeam == "sales" {
			want = models.StatusResolved
		}
		if sq.Status != want {
			t.Errorf("%s item status = %q, want %q", sq.MarkedForTeam, sq.Status, want)
		}
	}
}

func TestChangeStatus_MalformedBody(t *testing.T) {
	ts := newTestServer(t)
	q := ts.createQuery(createQueryRequest{AppNo: "GGN001", SubQueries: []subQueryRequest{{Text: "x"}}})
	code, res := ts.do(http.MethodPost, "/api/v1/queries/"+q.ID+"/status", opsActor, []int{1})
	if code != http.StatusBadRequest || !strings.Contains(res.Error.Message, "invalid request body") {
		t.Fatalf("code = %d, res = %+v", code, res.Error)
	}
}

// --- Approval requests ---

func TestCreateRequest_AuditCarriesCallerRole(t *testing.T) {
	ts := newTestServer(t)
	admin := role.Actor{ID: "u-admin", Name: "Ada Admin", Role: role.Admin}
	q := ts.createQuery(createQueryRequest{AppNo: "GGN001", SubQueries: []subQueryRequest{{Text: "Pending docs"}}})

	code, res := ts.do(http.MethodPost, "/api/v1/queries/"+q.ID+"/approval-requests", admin, createRequestRequest{RequestType: "otc"})
	if code != http.StatusCreated {
		t.Fatalf("create request: code = %d, res = %+v", code, res.Error)
	}

	_, res = ts.do(http.MethodGet, "/api/v1/queries/"+q.ID+"/chat", admin, nil)
	var msgs []chatDTO
	decode(t, res.Data, &msgs)
	if len(msgs) != 1 || msgs[0].ActionType != models.ActionApprovalRequest || msgs[0].SenderRole != "admin" {
		t.Errorf("chat = %+v", msgs)
	}
}

func TestApprovalFlow_DeferralApproved(t *testing.T) {
	ts := newTestServer(t)
	q := ts.createQuery(createQueryRequest{AppNo: "GGN001", SubQueries: []subQueryRequest{{Text: "Pending docs"}}})
	reqPath := "/api/v1/queries/" + q.ID + "/approval-requests"

	code, res := ts.do(http.MethodPost, reqPath, opsActor, createRequestRequest{RequestType: "deferral", AssignedTo: "Jane Doe", Remarks: "docs in 7 days"})
	if code != http.StatusCreated {
		t.Fatalf("create request: code = %d, res = %+v", code, res.Error)
	}
	var req requestDTO
	decode(t, res.Data, &req)
	if req.Status != models.RequestPending || req.RequestedBy != "Operations" {
		t.Errorf("request = %+v", req)
	}

	code, _ = ts.do(http.MethodPost, reqPath, opsActor, createRequestRequest{RequestType: "deferral"})
	if code != http.StatusConflict {
		t.Errorf("duplicate request: code = %d, want 409", code)
	}

	decidePath := "/api/v1/approval-requests/" + req.ID + "/decision"
	code, res = ts.do(http.MethodPost, decidePath, authorityActor, decideRequest{Decision: "approve", Remarks: "ok"})
	if code != http.StatusOK {
		t.Fatalf("decide: code = %d, res = %+v", code, res.Error)
	}
	var dec decisionDTO
	decode(t, res.Data, &dec)
	if dec.Query == nil || dec.Query.Status != models.StatusDeferred {
		t.Fatalf("decision = %+v", dec)
	}
	if dec.Query.LastActionBy != "Jane Doe (via Operations)" {
		t.Errorf("LastActionBy = %q", dec.Query.LastActionBy)
	}
	if !strings.Contains(res.Message, "APPROVED by Jane Doe") {
		t.Errorf("message = %q", res.Message)
	}

	code, _ = ts.do(http.MethodPost, decidePath, authorityActor, decideRequest{Decision: "reject"})
	if code != http.StatusConflict {
		t.Errorf("second decision: code = %d, want 409", code)
	}

	code, res = ts.do(http.MethodGet, "/api/v1/queries/"+q.ID+"/chat", opsActor, nil)
	if code != http.StatusOK {
		t.Fatalf("chat: code = %d", code)
	}
	var msgs []chatDTO
	decode(t, res.Data, &msgs)
	if len(msgs) != 2 || msgs[0].ActionType != models.ActionApprovalRequest || msgs[1].ActionType != models.ActionApproval {
		t.Errorf("chat = %+v", msgs)
	}
}

func TestApprovalFlow_RejectKeepsStatus(t *testing.T) {
	ts := newTestServer(t)
	q := ts.createQuery(createQueryRequest{AppNo: "GGN001", SubQueries: []subQueryRequest{{Text: "x"}}})
	_, res := ts.do(http.MethodPost, "/api/v1/queries/"+q.ID+"/approval-requests", opsActor, createRequestRequest{RequestType: "otc"})
	var req requestDTO
	decode(t, res.Data, &req)

	code, res := ts.do(http.MethodPost, "/api/v1/approval-requests/"+req.ID+"/decision", authorityActor, decideRequest{Decision: "reject"})
	if code != http.StatusOK {
		t.Fatalf("code = %d, res = %+v", code, res.Error)
	}
	var dec decisionDTO
	decode(t, res.Data, &dec)
	if dec.Query != nil || dec.Request.Status != models.RequestRejected {
		t.Errorf("decision = %+v", dec)
	}

	_, res = ts.do(http.MethodGet, "/api/v1/queries/"+q.ID, opsActor, nil)
	var got queryDTO
	decode(t, res.Data, &got)
	if got.Status != models.StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if len(got.ApprovalRequests) != 1 || got.ApprovalRequests[0].Status != models.RequestRejected {
		t.Errorf("approvalRequests = %+v", got.ApprovalRequests)
	}
}

func TestDecide_NonAuthorityForbidden(t *testing.T) {
	ts := newTestServer(t)
	q := ts.createQuery(createQueryRequest{AppNo: "GGN001", SubQueries: []subQueryRequest{{Text: "x"}}})
	_, res := ts.do(http.MethodPost, "/api/v1/queries/"+q.ID+"/approval-requests", opsActor, createRequestRequest{RequestType: "approve"})
	var req requestDTO
	decode(t, res.Data, &req)

	code, res := ts.do(http.MethodPost, "/api/v1/approval-requests/"+req.ID+"/decision", salesActor, decideRequest{Decision: "approve"})
	if code != http.StatusForbidden || res.Error.Code != "FORBIDDEN" {
		t.Fatalf("code = %d, res = %+v", code, res)
	}
}

func TestCreateRequest_AuthorityForbidden(t *testing.T) {
	ts := newTestServer(t)
	q := ts.createQuery(createQueryRequest{AppNo: "GGN001", SubQueries: []subQueryRequest{{Text: "x"}}})
	code, _ := ts.do(http.MethodPost, "/api/v1/queries/"+q.ID+"/approval-requests", authorityActor, createRequestRequest{RequestType: "approve"})
	if code != http.StatusForbidden {
		t.Errorf("code = %d, want 403", code)
	}
}

func TestListRequests_Filters(t *testing.T) {
	ts := newTestServer(t)
	q := ts.createQuery(createQueryRequest{AppNo: "GGN001", SubQueries: []subQueryRequest{{Text: "x"}}})
	for _, typ := range []string{"approve", "otc"} {
		if code, res := ts.do(http.MethodPost, "/api/v1/queries/"+q.ID+"/approval-requests", opsActor, createRequestRequest{RequestType: typ}); code != http.StatusCreated {
			t.Fatalf("create %s: %d %+v", typ, code, res.Error)
		}
	}

	_, res := ts.do(http.MethodGet, "/api/v1/approval-requests?status=pending&type=otc", authorityActor, nil)
	var reqs []requestDTO
	decode(t, res.Data, &reqs)
	if len(reqs) != 1 || reqs[0].RequestType != "otc" {
		t.Errorf("requests = %+v", reqs)
	}

	if code, _ := ts.do(http.MethodGet, "/api/v1/approval-requests?type=waive", opsActor, nil); code != http.StatusBadRequest {
		t.Errorf("unknown type: code = %d, want 400", code)
	}
	if code, _ := ts.do(http.MethodGet, "/api/v1/approval-requests", salesActor, nil); code != http.StatusForbidden {
		t.Errorf("sales: code = %d, want 403", code)
	}
}

// --- Chat ---

func TestChat_RoutingGatesAppend(t *testing.T) {
	ts := newTestServer(t)
	ts.acceptBranch(salesActor, "GGN")
	q := ts.createQuery(createQueryRequest{AppNo: "GGN001", BranchCode: "GGN", MarkedForTeam: "sales", SubQueries: []subQueryRequest{{Text: "Field visit"}}})
	path := "/api/v1/queries/" + q.ID + "/chat"

	if code, _ := ts.do(http.MethodPost, path, creditActor, appendChatRequest{Message: "hi"}); code != http.StatusForbidden {
		t.Errorf("credit append: code = %d, want 403", code)
	}

	code, res := ts.do(http.MethodPost, path, salesActor, appendChatRequest{Message: "Visit done"})
	if code != http.StatusCreated {
		t.Fatalf("sales append: code = %d, res = %+v", code, res.Error)
	}
	var msg chatDTO
	decode(t, res.Data, &msg)
	if msg.Sender != "Sam Sales" || msg.Team != "sales" || msg.IsSystemMessage {
		t.Errorf("message = %+v", msg)
	}

	if code, _ := ts.do(http.MethodPost, path, salesActor, appendChatRequest{Message: "  "}); code != http.StatusBadRequest {
		t.Errorf("blank message: code = %d, want 400", code)
	}
}

// --- Dashboard and branches ---

func TestDashboard_NoBranchSoftFail(t *testing.T) {
	ts := newTestServer(t)
	code, res := ts.do(http.MethodGet, "/api/v1/dashboard", salesActor, nil)
	if code != http.StatusOK || !res.Success || res.Message != visibility.MsgNoBranch {
		t.Fatalf("code = %d, res = %+v", code, res)
	}
	var d dashboardDTO
	decode(t, res.Data, &d)
	if len(d.Queries) != 0 {
		t.Errorf("queries = %+v", d.Queries)
	}
}

func TestBranches_AcceptThenDashboard(t *testing.T) {
	ts := newTestServer(t)
	ts.db.Create(&models.Branch{ID: "b-ggn", Code: "GGN", Name: "Gurgaon", Active: true})
	ts.db.Create(&models.Branch{ID: "b-del", Code: "DEL", Name: "Delhi", Active: true})
	for _, code := range []string{"GGN", "DEL"} {
		if _, err := branch.Assign(ts.db, salesActor.ID, code, "sales"); err != nil {
			t.Fatal(err)
		}
	}
	ts.createQuery(createQueryRequest{AppNo: "GGN001", BranchCode: "GGN", SubQueries: []subQueryRequest{{Text: "x"}}})
	ts.createQuery(createQueryRequest{AppNo: "DEL001", BranchCode: "DEL", SubQueries: []subQueryRequest{{Text: "y"}}})

	code, res := ts.do(http.MethodPost, "/api/v1/branches/GGN/accept", salesActor, nil)
	if code != http.StatusOK {
		t.Fatalf("accept: code = %d, res = %+v", code, res.Error)
	}
	var a assignmentDTO
	decode(t, res.Data, &a)
	if a.Status != models.AssignmentAccepted || a.AcceptedAt == nil {
		t.Errorf("assignment = %+v", a)
	}

	_, res = ts.do(http.MethodGet, "/api/v1/branches/assigned", salesActor, nil)
	var as []assignmentDTO
	decode(t, res.Data, &as)
	statuses := map[string]string{}
	for _, x := range as {
		statuses[x.BranchCode] = x.Status
	}
	if statuses["GGN"] != models.AssignmentAccepted || statuses["DEL"] != models.AssignmentDeclined {
		t.Errorf("statuses = %v", statuses)
	}

	_, res = ts.do(http.MethodGet, "/api/v1/dashboard", salesActor, nil)
	var d dashboardDTO
	decode(t, res.Data, &d)
	if len(d.Queries) != 1 || d.Queries[0].AppNo != "GGN001" {
		t.Errorf("dashboard queries = %+v", d.Queries)
	}
	if d.Branch == nil || d.Branch.BranchCode != "GGN" {
		t.Errorf("dashboard branch = %+v", d.Branch)
	}
}

func TestBranches_DeclineUnknown(t *testing.T) {
	ts := newTestServer(t)
	code, _ := ts.do(http.MethodPost, "/api/v1/branches/NOPE/decline", creditActor, nil)
	if code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", code)
	}
}

func TestBranches_OriginatorNeedsTeam(t *testing.T) {
	ts := newTestServer(t)
	code, res := ts.do(http.MethodGet, "/api/v1/branches/assigned", opsActor, nil)
	if code != http.StatusBadRequest || !strings.Contains(res.Error.Message, "team is required") {
		t.Fatalf("code = %d, res = %+v", code, res.Error)
	}
}
