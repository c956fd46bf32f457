package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

type fakeSource struct {
	snapshot goGuard.MetricsSnapshot
	dropped  uint64
	byEvent  map[string]uint64
}

func (f fakeSource) MetricsSnapshot() goGuard.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }
func (f fakeSource) AuditDroppedByEvent() map[string]uint64   { return f.byEvent }

func gather(t *testing.T, src fakeSource) map[string]*dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollectorFromSource(src)); err != nil {
		t.Fatalf("register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestCollectorCountersAndHistogram(t *testing.T) {
	families := gather(t, fakeSource{
		snapshot: goGuard.MetricsSnapshot{
			Counters: map[goGuard.MetricID]uint64{
				goGuard.MetricLoginSuccess:   7,
				goGuard.MetricRateLimitHit:   3,
				goGuard.MetricSessionRevoked: 1,
			},
			Histograms: map[goGuard.MetricID][]uint64{
				goGuard.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
		byEvent: map[string]uint64{"login_failure": 2},
	})

	login := families["goguard_login_success_total"]
	if login == nil || login.GetMetric()[0].GetCounter().GetValue() != 7 {
		t.Fatalf("expected login counter 7, got %v", login)
	}
	if got := families["goguard_rate_limit_hit_total"].GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Fatalf("expected rate limit counter 3, got %v", got)
	}
	if got := families["goguard_audit_dropped_total"].GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected audit dropped 2, got %v", got)
	}

	byEvent := families["goguard_audit_dropped_events_total"].GetMetric()
	if len(byEvent) != 1 || byEvent[0].GetLabel()[0].GetValue() != "login_failure" || byEvent[0].GetCounter().GetValue() != 2 {
		t.Fatalf("unexpected per-event drops %v", byEvent)
	}

	hist := families["goguard_validate_latency_seconds"].GetMetric()[0].GetHistogram()
	if hist.GetSampleCount() != 36 {
		t.Fatalf("expected 36 samples, got %d", hist.GetSampleCount())
	}
	if first := hist.GetBucket()[0]; first.GetUpperBound() != 0.005 || first.GetCumulativeCount() != 1 {
		t.Fatalf("unexpected first bucket %v", first)
	}
}

func TestCollectorZeroSnapshot(t *testing.T) {
	families := gather(t, fakeSource{snapshot: goGuard.MetricsSnapshot{
		Counters:   map[goGuard.MetricID]uint64{},
		Histograms: map[goGuard.MetricID][]uint64{},
	}})
	if got := families["goguard_login_failure_total"].GetMetric()[0].GetCounter().GetValue(); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestCollectorServesTextFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollectorFromSource(fakeSource{snapshot: goGuard.MetricsSnapshot{
		Counters: map[goGuard.MetricID]uint64{goGuard.MetricLogout: 4},
	}}))

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "goguard_logout_total 4") {
		t.Fatalf("expected logout counter in body:\n%s", rec.Body.String())
	}
}
