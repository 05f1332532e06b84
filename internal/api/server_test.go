package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/zulandar/querydesk/internal/apperr"
	"github.com/zulandar/querydesk/internal/db/dbtest"
	"github.com/zulandar/querydesk/internal/role"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

var (
	opsActor       = role.Actor{ID: "u-ops", Name: "Operations", Role: role.Originator}
	salesActor     = role.Actor{ID: "u-sales", Name: "Sam Sales", Role: role.Sales, Team: "sales"}
	creditActor    = role.Actor{ID: "u-credit", Name: "Cara Credit", Role: role.Credit, Team: "credit"}
	authorityActor = role.Actor{ID: "u-jane", Name: "Jane Doe", Role: role.Authority}
)

// response mirrors the envelope with data left raw for per-test decoding.
type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *errorBody      `json:"error"`
}

type testServer struct {
	t  *testing.T
	s  *Server
	db *gorm.DB
}

func newTestServer(t *testing.T, opts ...func(*ServerOpts)) *testServer {
	t.Helper()
	gormDB := dbtest.Open(t)
	o := ServerOpts{DB: gormDB, JWTSecret: testSecret, GinMode: gin.TestMode}
	for _, fn := range opts {
		fn(&o)
	}
	s, err := New(o)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testServer{t: t, s: s, db: gormDB}
}

func tokenFor(t *testing.T, actor role.Actor) string {
	t.Helper()
	tok, err := IssueToken(testSecret, actor, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return tok
}

// do sends a request as actor (no auth header for a zero actor) and decodes
// the envelope.
func (ts *testServer) do(method, path string, actor role.Actor, body interface{}) (int, response) {
	ts.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			ts.t.Fatal(err)
		}
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if actor.ID != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(ts.t, actor))
	}
	w := httptest.NewRecorder()
	ts.s.Handler().ServeHTTP(w, req)

	var res response
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		ts.t.Fatalf("decode %s %s: %v (body %q)", method, path, err, w.Body.String())
	}
	return w.Code, res
}

func decode(t *testing.T, raw json.RawMessage, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode data: %v (%s)", err, raw)
	}
}

// --- Construction ---

func TestNew_RequiresDB(t *testing.T) {
	_, err := New(ServerOpts{JWTSecret: "x"})
	if err == nil || !strings.Contains(err.Error(), "db is required") {
		t.Fatalf("err = %v", err)
	}
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New(ServerOpts{DB: dbtest.Open(t)})
	if err == nil || !strings.Contains(err.Error(), "jwt secret") {
		t.Fatalf("err = %v", err)
	}
}

func TestNew_DefaultPort(t *testing.T) {
	ts := newTestServer(t)
	if ts.s.port != 8080 {
		t.Errorf("port = %d, want 8080", ts.s.port)
	}
}

// --- Health ---

func TestHealth_OK(t *testing.T) {
	ts := newTestServer(t)
	code, res := ts.do(http.MethodGet, "/health", role.Actor{}, nil)
	if code != http.StatusOK || !res.Success {
		t.Fatalf("code = %d, res = %+v", code, res)
	}
	var h healthDTO
	decode(t, res.Data, &h)
	if h.Checks["database"] != "ok" {
		t.Errorf("checks = %v", h.Checks)
	}
}

func TestHealth_DegradedCheck(t *testing.T) {
	ts := newTestServer(t, func(o *ServerOpts) {
		o.Checks = map[string]Check{"redis": func(context.Context) error { return errors.New("connection refused") }}
	})
	code, res := ts.do(http.MethodGet, "/health", role.Actor{}, nil)
	if code != http.StatusServiceUnavailable || res.Success {
		t.Fatalf("code = %d, res = %+v", code, res)
	}
	var h healthDTO
	decode(t, res.Data, &h)
	if h.Status != "degraded" || h.Checks["redis"] != "connection refused" {
		t.Errorf("health = %+v", h)
	}
}

// --- Auth ---

func TestAuth_MissingHeader(t *testing.T) {
	ts := newTestServer(t)
	code, res := ts.do(http.MethodGet, "/api/v1/dashboard", role.Actor{}, nil)
	if code != http.StatusUnauthorized || res.Error == nil || res.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("code = %d, res = %+v", code, res)
	}
}

func TestAuth_BadToken(t *testing.T) {
	ts := newTestServer(t)
	tok, err := IssueToken("other-secret", opsActor, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	for _, header := range []string{tok, "Bearer " + tok, "Bearer garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		ts.s.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("header %q: code = %d, want 401", header, w.Code)
		}
	}
}

func TestAuth_ExpiredToken(t *testing.T) {
	ts := newTestServer(t)
	claims := Claims{Name: "Operations", Role: "originator"}
	claims.Subject = "u-ops"
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	w := httptest.NewRecorder()
	ts.s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("code = %d, want 401", w.Code)
	}
}

func TestAuth_UnknownRole(t *testing.T) {
	ts := newTestServer(t)
	code, res := ts.do(http.MethodGet, "/api/v1/dashboard", role.Actor{ID: "u-x", Role: "pilot"}, nil)
	if code != http.StatusForbidden || res.Error.Code != "FORBIDDEN" {
		t.Fatalf("code = %d, res = %+v", code, res)
	}
}

func TestIssueToken_Validation(t *testing.T) {
	if _, err := IssueToken("", opsActor, 0); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := IssueToken("s", role.Actor{}, 0); err == nil {
		t.Error("expected error for empty actor id")
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[apperr.Kind]int{
		apperr.Validation: http.StatusBadRequest,
		apperr.NotFound:   http.StatusNotFound,
		apperr.Conflict:   http.StatusConflict,
		apperr.Forbidden:  http.StatusForbidden,
		apperr.Internal:   http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := statusFor(kind); got != want {
			t.Errorf("statusFor(%s) = %d, want %d", kind, got, want)
		}
	}
}
