package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xela07ax/attendance-engine/internal/console/handler"
	"github.com/xela07ax/attendance-engine/internal/domain"
	"github.com/xela07ax/attendance-engine/internal/engine"
	"go.uber.org/zap"
)

// roleValidator: токен — это имя роли
type roleValidator struct{}

func (roleValidator) VerifyToken(tokenStr string) (*domain.CustomClaims, error) {
	role := strings.TrimPrefix(tokenStr, "Bearer ")
	if role == "" || role == "broken" {
		return nil, errors.New("invalid token")
	}
	return &domain.CustomClaims{UserID: "u-" + role, Role: role}, nil
}

type stubCore struct{}

func (stubCore) Submit(context.Context, domain.RecognitionEvent) (domain.SubmitOutcome, error) {
	return domain.SubmitOutcome{Status: domain.StatusDeduplicated}, nil
}
func (stubCore) Records(context.Context, int) ([]domain.AttendanceEntry, error) {
	return []domain.AttendanceEntry{}, nil
}
func (stubCore) Analytics(context.Context, int, time.Time) (domain.AnalyticsResult, error) {
	return domain.AnalyticsResult{}, nil
}
func (stubCore) ExportCSV(context.Context, int, time.Time) ([]byte, error) {
	return []byte("Date,Attendance Count\n"), nil
}
func (stubCore) Summary(context.Context, time.Time) (domain.Summary, error) {
	return domain.Summary{}, nil
}

type stubPersons struct{}

func (stubPersons) List() []domain.Person { return []domain.Person{} }
func (stubPersons) Register(_ context.Context, p domain.Person) (domain.Person, error) {
	return p, nil
}
func (stubPersons) Remove(context.Context, string) error { return nil }

func newTestServer(t *testing.T) (*ConsoleServer, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)
	s := NewConsoleServer(
		zap.NewNop(),
		roleValidator{},
		metrics,
		reg,
		handler.NewAttendanceHandler(stubCore{}),
		handler.NewAnalyticsHandler(stubCore{}, 30, time.UTC),
		handler.NewPersonHandler(stubPersons{}),
		nil,
	)
	return s, reg
}

func TestRoutesAccessControl(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		method, path, token, body string
		want                      int
	}{
		{http.MethodGet, "/health", "", "", http.StatusOK},
		{http.MethodGet, "/api/v1/stats", "", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/stats", "broken", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/stats", domain.RoleStudent, "", http.StatusForbidden},
		{http.MethodGet, "/api/v1/stats", domain.RoleTeacher, "", http.StatusOK},
		{http.MethodGet, "/api/v1/analytics?days=7", domain.RoleAdmin, "", http.StatusOK},
		{http.MethodGet, "/api/v1/analytics/export.csv", domain.RoleTeacher, "", http.StatusOK},
		{http.MethodGet, "/api/v1/attendance", domain.RoleCamera, "", http.StatusForbidden},
		{http.MethodPost, "/api/v1/attendance", domain.RoleCamera, `{"person_id":"p1"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/attendance", domain.RoleTeacher, `{"person_id":"p1"}`, http.StatusForbidden},
		{http.MethodGet, "/api/v1/persons", domain.RoleTeacher, "", http.StatusForbidden},
		{http.MethodGet, "/api/v1/persons", domain.RoleAdmin, "", http.StatusOK},
		{http.MethodDelete, "/api/v1/persons/7", domain.RoleAdmin, "", http.StatusNoContent},
		{http.MethodGet, "/api/v1/journal", domain.RoleAdmin, "", http.StatusNotFound},
	}

	for _, c := range cases {
		req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Errorf("%s %s as %q: expected %d, got %d", c.method, c.path, c.token, c.want, rec.Code)
		}
	}
}

func TestTraceIDAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+domain.RoleAdmin)
	req.Header.Set("X-Trace-ID", "trace-42")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Header().Get("X-Trace-ID") != "trace-42" {
		t.Fatalf("trace id must be echoed, got %q", rec.Header().Get("X-Trace-ID"))
	}
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, `route="/api/v1/stats"`) || strings.Contains(body, `route="unmatched"`) {
		t.Fatalf("metrics must expose route pattern label: %d", rec.Code)
	}
}
