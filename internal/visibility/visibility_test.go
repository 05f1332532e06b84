package visibility

import (
	"errors"
	"testing"

	"github.com/zulandar/querydesk/internal/apperr"
	"github.com/zulandar/querydesk/internal/approval"
	"github.com/zulandar/querydesk/internal/branch"
	"github.com/zulandar/querydesk/internal/db/dbtest"
	"github.com/zulandar/querydesk/internal/models"
	"github.com/zulandar/querydesk/internal/query"
	"github.com/zulandar/querydesk/internal/role"
	"gorm.io/gorm"
)

func mustQuery(t *testing.T, gormDB *gorm.DB, appNo, branchCode string, subs ...query.SubQueryInput) *models.Query {
	t.Helper()
	q, err := query.Create(gormDB, query.CreateOpts{
		AppNo:       appNo,
		BranchCode:  branchCode,
		SubmittedBy: "Operations",
		SubQueries:  subs,
	})
	if err != nil {
		t.Fatalf("create query: %v", err)
	}
	return q
}

func acceptBranch(t *testing.T, gormDB *gorm.DB, userID, code, team string) {
	t.Helper()
	gormDB.Create(&models.Branch{ID: "id-" + code, Code: code, Name: code, Active: true})
	if _, err := branch.Assign(gormDB, userID, code, team); err != nil {
		t.Fatal(err)
	}
	if _, err := branch.Accept(gormDB, userID, code, team); err != nil {
		t.Fatal(err)
	}
}

func TestCanMessage_RoutingRule(t *testing.T) {
	tests := []struct {
		team, marked string
		want         bool
	}{
		{models.TeamCredit, models.TeamSales, false},
		{models.TeamSales, models.TeamSales, true},
		{models.TeamBoth, models.TeamSales, true},
		{models.TeamCredit, models.TeamBoth, true},
		{models.TeamSales, models.TeamCredit, false},
	}
	for _, tt := range tests {
		actor := role.Actor{ID: "u", Role: role.Sales, Team: tt.team}
		if got := CanMessage(actor, tt.marked); got != tt.want {
			t.Errorf("team %s on %s: got %v, want %v", tt.team, tt.marked, got, tt.want)
		}
	}

	authority := role.Actor{ID: "u-jane", Role: role.Authority}
	if CanMessage(authority, models.TeamBoth) {
		t.Error("authority should not message directly")
	}
	if !CanView(authority, models.TeamSales) {
		t.Error("authority should view everything")
	}
	ops := role.Actor{ID: "u-ops", Role: role.Originator}
	if !CanMessage(ops, models.TeamCredit) {
		t.Error("originator should message everywhere")
	}
}

func TestListQueriesForApp_BothVisibleToCredit(t *testing.T) {
	gormDB := dbtest.Open(t)
	mustQuery(t, gormDB, "GGN001", "GGN", query.SubQueryInput{Text: "Salary slips"})

	views, err := ListQueriesForApp(gormDB, "GGN001", models.TeamCredit)
	if err != nil {
		t.Fatalf("ListQueriesForApp: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("len = %d, want 1", len(views))
	}
	if !views[0].AllowMessaging {
		t.Error("query tagged both should allow credit messaging")
	}
	if len(views[0].Items) != 1 || !views[0].Items[0].AllowMessaging {
		t.Errorf("items = %+v", views[0].Items)
	}
}

func TestListQueriesForApp_PerSubQuery(t *testing.T) {
	gormDB := dbtest.Open(t)
	mustQuery(t, gormDB, "GGN001", "GGN",
		query.SubQueryInput{Text: "Field visit", MarkedForTeam: models.TeamSales},
		query.SubQueryInput{Text: "Bureau check", MarkedForTeam: models.TeamCredit},
	)

	views, err := ListQueriesForApp(gormDB, "GGN001", models.TeamCredit)
	if err != nil {
		t.Fatal(err)
	}
	items := views[0].Items
	if len(items) != 2 {
		t.Fatalf("items = %d", len(items))
	}
	if items[0].AllowMessaging {
		t.Error("sales-tagged item should not allow credit messaging")
	}
	if !items[1].AllowMessaging {
		t.Error("credit-tagged item should allow credit messaging")
	}
	if !views[0].AllowMessaging {
		t.Error("query should allow messaging when any item does")
	}
}

func TestListQueriesForApp_Validation(t *testing.T) {
	gormDB := dbtest.Open(t)
	if _, err := ListQueriesForApp(gormDB, "", ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("missing app: err = %v", err)
	}
	if _, err := ListQueriesForApp(gormDB, "GGN001", "legal"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad team: err = %v", err)
	}
}

func TestListForActor_ScopedRoleUsesOwnTeam(t *testing.T) {
	gormDB := dbtest.Open(t)
	mustQuery(t, gormDB, "GGN001", "GGN", query.SubQueryInput{Text: "Bureau", MarkedForTeam: models.TeamCredit})

	sales := role.Actor{ID: "u-sam", Role: role.Sales, Team: models.TeamSales}
	acceptBranch(t, gormDB, sales.ID, "GGN", models.TeamSales)
	views, _, err := ListForActor(gormDB, sales, "GGN001", models.TeamCredit)
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || views[0].AllowMessaging {
		t.Error("sales user must not gain credit messaging by passing a team filter")
	}

	authority := role.Actor{ID: "u-jane", Role: role.Authority}
	views, _, err = ListForActor(gormDB, authority, "GGN001", "")
	if err != nil {
		t.Fatal(err)
	}
	if views[0].AllowMessaging {
		t.Error("authority acts only through decisions")
	}
}

func TestListForActor_BranchScope(t *testing.T) {
	gormDB := dbtest.Open(t)
	mustQuery(t, gormDB, "APP001", "GGN", query.SubQueryInput{Text: "Field visit", MarkedForTeam: models.TeamSales})
	mustQuery(t, gormDB, "APP001", "DEL", query.SubQueryInput{Text: "Address proof", MarkedForTeam: models.TeamSales})
	sales := role.Actor{ID: "u-sam", Role: role.Sales}

	views, msg, err := ListForActor(gormDB, sales, "APP001", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 0 || msg != MsgNoBranch {
		t.Errorf("no branch: views = %d, msg = %q", len(views), msg)
	}

	acceptBranch(t, gormDB, sales.ID, "DEL", models.TeamSales)
	views, msg, err = ListForActor(gormDB, sales, "APP001", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || views[0].BranchCode != "DEL" || msg != "" {
		t.Errorf("DEL branch: views = %+v, msg = %q", views, msg)
	}

	views, msg, err = ListForActor(gormDB, role.Actor{ID: "u-ops", Role: role.Originator}, "APP001", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 2 {
		t.Errorf("originator sees %d queries, want both branches", len(views))
	}

	views, msg, _ = ListForActor(gormDB, sales, "NONE", "")
	if len(views) != 0 || msg != MsgNoQueries {
		t.Errorf("empty app: views = %d, msg = %q", len(views), msg)
	}
}

func TestDashboard_NoBranchSoftFail(t *testing.T) {
	gormDB := dbtest.Open(t)
	mustQuery(t, gormDB, "GGN001", "GGN", query.SubQueryInput{Text: "x"})

	res, err := Dashboard(gormDB, role.Actor{ID: "u-sam", Role: role.Sales})
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if len(res.Queries) != 0 || res.Message != MsgNoBranch {
		t.Errorf("result = %+v", res)
	}
}

func TestDashboard_BranchScoped(t *testing.T) {
	gormDB := dbtest.Open(t)
	acceptBranch(t, gormDB, "u-sam", "GGN", models.TeamSales)
	mine := mustQuery(t, gormDB, "GGN001", "GGN",
		query.SubQueryInput{Text: "Field visit", MarkedForTeam: models.TeamSales},
		query.SubQueryInput{Text: "Bureau", MarkedForTeam: models.TeamCredit},
	)
	mustQuery(t, gormDB, "DEL001", "DEL", query.SubQueryInput{Text: "other branch"})
	mustQuery(t, gormDB, "GGN002", "GGN", query.SubQueryInput{Text: "credit only", MarkedForTeam: models.TeamCredit})

	res, err := Dashboard(gormDB, role.Actor{ID: "u-sam", Role: role.Sales})
	if err != nil {
		t.Fatal(err)
	}
	if res.Branch == nil || res.Branch.BranchCode != "GGN" {
		t.Errorf("branch = %+v", res.Branch)
	}
	if len(res.Queries) != 1 || res.Queries[0].ID != mine.ID {
		t.Fatalf("queries = %+v", res.Queries)
	}
	if items := res.Queries[0].Items; len(items) != 1 || items[0].MarkedForTeam != models.TeamSales {
		t.Errorf("visible items = %+v", items)
	}
	if res.Message != "" {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestDashboard_NoQueriesSoftFail(t *testing.T) {
	gormDB := dbtest.Open(t)
	acceptBranch(t, gormDB, "u-cal", "GGN", models.TeamCredit)

	res, err := Dashboard(gormDB, role.Actor{ID: "u-cal", Role: role.Credit})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Queries) != 0 || res.Message != MsgNoQueries {
		t.Errorf("result = %+v", res)
	}
}

func TestDashboard_OriginatorSeesAllBranches(t *testing.T) {
	gormDB := dbtest.Open(t)
	mustQuery(t, gormDB, "GGN001", "GGN", query.SubQueryInput{Text: "a"})
	mustQuery(t, gormDB, "DEL001", "DEL", query.SubQueryInput{Text: "b"})

	res, err := Dashboard(gormDB, role.Actor{ID: "u-ops", Role: role.Originator})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Queries) != 2 {
		t.Errorf("queries = %d, want 2", len(res.Queries))
	}
}

func TestDashboard_AuthorityPendingScopedToDecidableTypes(t *testing.T) {
	gormDB := dbtest.Open(t)
	gormDB.Create(&models.User{ID: "u-jane", Name: "Jane Doe", Role: "authority", Active: true, DecidableTypes: "otc"})
	q := mustQuery(t, gormDB, "GGN001", "GGN", query.SubQueryInput{Text: "a"})
	for _, rt := range []string{models.RequestOTC, models.RequestDeferral} {
		if _, err := approval.CreateRequest(gormDB, approval.CreateOpts{QueryID: q.ID, RequestType: rt, RequestedBy: "Operations"}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := Dashboard(gormDB, role.Actor{ID: "u-jane", Name: "Jane Doe", Role: role.Authority})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.PendingRequests) != 1 || res.PendingRequests[0].RequestType != models.RequestOTC {
		t.Errorf("pending = %+v", res.PendingRequests)
	}
	if len(res.Queries) != 1 || res.Queries[0].AllowMessaging {
		t.Errorf("authority queries = %+v", res.Queries)
	}
}

func TestDashboard_UnknownRoleForbidden(t *testing.T) {
	gormDB := dbtest.Open(t)
	_, err := Dashboard(gormDB, role.Actor{ID: "u-x", Role: "pilot"})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
}

func TestViewQuery_FiltersItemsForScopedRole(t *testing.T) {
	gormDB := dbtest.Open(t)
	q := mustQuery(t, gormDB, "GGN002", "GGN",
		query.SubQueryInput{Text: "Field visit", MarkedForTeam: models.TeamSales},
		query.SubQueryInput{Text: "Bureau check", MarkedForTeam: models.TeamCredit},
	)

	v, ok := ViewQuery(role.Actor{ID: "u-c", Role: role.Credit}, q)
	if !ok {
		t.Fatal("credit should see the credit item")
	}
	if len(v.Items) != 1 || v.Items[0].Text != "Bureau check" || !v.Items[0].AllowMessaging {
		t.Errorf("items = %+v", v.Items)
	}

	onlySales := mustQuery(t, gormDB, "GGN003", "GGN",
		query.SubQueryInput{Text: "Field visit", MarkedForTeam: models.TeamSales},
	)
	if _, ok := ViewQuery(role.Actor{ID: "u-c", Role: role.Credit}, onlySales); ok {
		t.Error("credit should not see a sales-only query")
	}

	v, ok = ViewQuery(role.Actor{ID: "u-a", Role: role.Authority}, q)
	if !ok || len(v.Items) != 2 || v.AllowMessaging {
		t.Errorf("authority view = %+v ok=%v", v, ok)
	}
}
