package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/tenantauth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot tenantauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() tenantauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	c := NewCollector(fakeSource{
		snapshot: tenantauth.MetricsSnapshot{
			Counters:   map[tenantauth.MetricID]uint64{},
			Histograms: map[tenantauth.MetricID][]uint64{},
		},
	})
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Fatalf("expected no series for disabled metrics, got %d", n)
	}
}

func TestCollectCountersAndHistogram(t *testing.T) {
	c := NewCollector(fakeSource{
		snapshot: tenantauth.MetricsSnapshot{
			Counters: map[tenantauth.MetricID]uint64{
				tenantauth.MetricLoginSuccess:         7,
				tenantauth.MetricRefreshReuseDetected: 1,
			},
			Histograms: map[tenantauth.MetricID][]uint64{
				tenantauth.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	expected := `
# HELP tenantauth_login_success_total Successful logins.
# TYPE tenantauth_login_success_total counter
tenantauth_login_success_total 7
# HELP tenantauth_refresh_reuse_detected_total Spent refresh tokens presented again.
# TYPE tenantauth_refresh_reuse_detected_total counter
tenantauth_refresh_reuse_detected_total 1
# HELP tenantauth_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE tenantauth_audit_dropped_total counter
tenantauth_audit_dropped_total 2
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"tenantauth_login_success_total",
		"tenantauth_refresh_reuse_detected_total",
		"tenantauth_audit_dropped_total",
	); err != nil {
		t.Fatalf("unexpected counters: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found bool
	for _, mf := range families {
		if mf.GetName() != "tenantauth_authenticate_latency_seconds" {
			continue
		}
		found = true
		h := mf.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 36 {
			t.Fatalf("expected 36 samples, got %d", h.GetSampleCount())
		}
		if got := h.GetBucket()[0].GetCumulativeCount(); got != 1 {
			t.Fatalf("expected first bucket 1, got %d", got)
		}
	}
	if !found {
		t.Fatal("expected latency histogram")
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	h, err := NewHandler(fakeSource{
		snapshot: tenantauth.MetricsSnapshot{
			Counters:   map[tenantauth.MetricID]uint64{tenantauth.MetricLoginSuccess: 1},
			Histograms: map[tenantauth.MetricID][]uint64{},
		},
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tenantauth_login_success_total 1") {
		t.Fatalf("expected login counter, got:\n%s", rec.Body.String())
	}
}
