package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var (
	healthy = pingFunc(func(context.Context) error { return nil })
	broken  = pingFunc(func(context.Context) error { return errors.New("dial tcp: connection refused") })
)

func TestRunAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name  string
		store Pinger
		cache Pinger
		want  Status
	}{
		{"all up", healthy, healthy, StatusUp},
		{"cache down", healthy, broken, StatusDegraded},
		{"store down", broken, healthy, StatusDown},
		{"both down", broken, broken, StatusDown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewChecker()
			c.Register("store", PingCheck(tc.store, true))
			c.Register("query_cache", PingCheck(tc.cache, false))
			report := c.Run(context.Background())
			if report.Status != tc.want {
				t.Errorf("status = %s, want %s", report.Status, tc.want)
			}
			if len(report.Components) != 2 {
				t.Errorf("components = %v", report.Components)
			}
		})
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("store", PingCheck(healthy, true))
	c.Register("query_cache", Static(StatusDegraded, "not configured"))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var report Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Status != StatusDegraded || report.Components["query_cache"].Message != "not configured" {
		t.Errorf("report = %+v", report)
	}

	c.Register("store", PingCheck(broken, true))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status with store down = %d", rec.Code)
	}
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
