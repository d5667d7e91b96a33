package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tinytelemetry/zquery/internal/filter"
	"github.com/tinytelemetry/zquery/internal/model"
)

func TestObserveQueryOutcomes(t *testing.T) {
	m := New()
	start := time.Now()

	m.ObserveQuery("resolve", start, nil)
	m.ObserveQuery("resolve", start, fmt.Errorf("%w: bad", filter.ErrInvalidFilterSyntax))
	m.ObserveQuery("timeseries", start, errors.New("boom"))
	m.ObserveQuery("timeseries", start, nil)
	m.ObserveQuery("timeseries", start, fmt.Errorf("%w: %q", model.ErrInvalidMode, "events"))

	tests := []struct {
		op, outcome string
		want        float64
	}{
		{"resolve", OutcomeOK, 1},
		{"resolve", OutcomeInvalidFilter, 1},
		{"timeseries", OutcomeError, 1},
		{"timeseries", OutcomeOK, 1},
		{"timeseries", OutcomeInvalidFilter, 0},
		{"timeseries", OutcomeInvalidMode, 1},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(m.queries.WithLabelValues(tt.op, tt.outcome))
		if got != tt.want {
			t.Errorf("queries{%s,%s} = %v, want %v", tt.op, tt.outcome, got, tt.want)
		}
	}
	if n := testutil.CollectAndCount(m.latency); n != 2 {
		t.Errorf("latency series = %d, want 2", n)
	}
}

func TestFilterCacheCounters(t *testing.T) {
	m := New()
	m.FilterCache(true)
	m.FilterCache(true)
	m.FilterCache(false)

	if got := testutil.ToFloat64(m.filterCache.WithLabelValues("hit")); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.filterCache.WithLabelValues("miss")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveQuery("resolve", time.Now(), nil)
	m.ObserveResolved(3)
	m.FilterCache(true)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("nil handler status = %d, want 404", w.Code)
	}
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.ObserveResolved(5)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"zquery_resolved_items_count 1", "go_goroutines"} {
		if !strings.Contains(body, name) {
			t.Errorf("exposition missing %q", name)
		}
	}
}
