package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollectorWith("test", prometheus.NewRegistry())

	c.IncExports("maca", true)
	c.IncExports("maca", true)
	c.IncExports("maca", false)
	c.IncRemoteCalls("export", true)
	c.IncLedgerRecords("submitted")
	c.ObserveBuildDuration("maca", 20*time.Millisecond)

	tests := []struct {
		name      string
		collector prometheus.Collector
		want      float64
	}{
		{"exports ok", c.exports.WithLabelValues("maca", "success"), 2},
		{"exports failed", c.exports.WithLabelValues("maca", "error"), 1},
		{"remote", c.remoteCalls.WithLabelValues("export", "success"), 1},
		{"ledger", c.ledgerRecords.WithLabelValues("submitted"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.collector); got != tt.want {
				t.Errorf("value = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	c := NewCollectorWith("test", prometheus.NewRegistry())

	r := mux.NewRouter()
	r.Use(c.Middleware)
	r.HandleFunc("/api/v1/tasks/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+id, nil))
	}

	got := testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/tasks/{id}", "4xx"))
	if got != 3 {
		t.Errorf("requests = %v, want 3 under one label", got)
	}
}

func TestStatusToString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{302, "3xx"},
		{429, "4xx"},
		{502, "5xx"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		if got := statusToString(tt.code); got != tt.want {
			t.Errorf("statusToString(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}
