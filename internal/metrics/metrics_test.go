package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kushiiitd05/IntelliScript/internal/audio"
)

func TestObserveAudio(t *testing.T) {
	before := testutil.ToFloat64(AudioDegradationsTotal.WithLabelValues("clean"))
	runsBefore := testutil.ToFloat64(AudioRunsTotal.WithLabelValues("degraded"))

	ObserveAudio(audio.Result{
		Outcome: audio.OutcomeDegraded,
		Degradations: []audio.Degradation{
			{Stage: audio.StageClean, Fallback: "uncleaned audio"},
		},
		Timings: []audio.StageTiming{
			{Stage: audio.StageExtract, Duration: 2 * time.Second},
		},
	})

	if got := testutil.ToFloat64(AudioDegradationsTotal.WithLabelValues("clean")); got != before+1 {
		t.Errorf("clean degradations = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(AudioRunsTotal.WithLabelValues("degraded")); got != runsBefore+1 {
		t.Errorf("degraded runs = %v, want %v", got, runsBefore+1)
	}
}

func TestInstrumentHandlerUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/sessions/{id}", "200"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/sessions/abc", nil))

	if got := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/sessions/{id}", "200")); got != before+1 {
		t.Errorf("requests = %v, want %v", got, before+1)
	}
}

type fakeQueue struct{ pending, workers int }

func (f fakeQueue) Pending() int { return f.pending }
func (f fakeQueue) Workers() int { return f.workers }

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(nil, fakeQueue{pending: 3, workers: 2}))

	if n, err := testutil.GatherAndCount(reg); err != nil || n != 5 {
		t.Fatalf("GatherAndCount = %d, %v; want 5 metrics", n, err)
	}
	if n := testutil.CollectAndCount(NewCollector(nil, nil)); n != 5 {
		t.Errorf("nil collector reported %d metrics, want 5", n)
	}
}
