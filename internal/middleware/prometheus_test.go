package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/crucial707/rule-scheduler/internal/metrics"
)

func TestPrometheus_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Prometheus)
	r.Get("/schedules/*", func(w http.ResponseWriter, r *http.Request) {})

	counter := metrics.RequestTotal.WithLabelValues(http.MethodGet, "/schedules/{ref}", "200")
	before := testutil.ToFloat64(counter)
	for _, p := range []string{"/schedules/orgs/1/sec_policy/draft/rule_sets/7", "/schedules/orgs/1/sec_policy/draft/rule_sets/8"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	if got := testutil.ToFloat64(counter); got != before+2 {
		t.Errorf("requests under /schedules/{ref}: got %v want %v", got, before+2)
	}
}
