package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"variant-merger/internal/models"
)

func TestMetrics_IncrementCompletedJobs(t *testing.T) {
	m := NewMetrics()
	m.IncrementCompletedJobs()

	if got := testutil.ToFloat64(m.jobsCompleted); got != 1 {
		t.Errorf("expected jobs_completed 1, got %v", got)
	}
}

func TestMetrics_IncrementFailedJobs(t *testing.T) {
	m := NewMetrics()
	m.IncrementFailedJobs()
	m.IncrementRetriedJobs()
	m.IncrementRetriedJobs()

	if got := testutil.ToFloat64(m.jobsFailed); got != 1 {
		t.Errorf("expected jobs_failed 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobsRetried); got != 2 {
		t.Errorf("expected jobs_retried 2, got %v", got)
	}
}

func TestMetrics_ObserveOracleCall(t *testing.T) {
	m := NewMetrics()
	m.ObserveOracleCall("openai", "generate_name", nil)
	m.ObserveOracleCall("openai", "generate_name", errors.New("boom"))
	m.ObserveOracleCall("openai", "generate_name", errors.New("boom"))

	if got := testutil.ToFloat64(m.oracleCalls.WithLabelValues("openai", "generate_name", "ok")); got != 1 {
		t.Errorf("expected 1 ok call, got %v", got)
	}
	if got := testutil.ToFloat64(m.oracleCalls.WithLabelValues("openai", "generate_name", "error")); got != 2 {
		t.Errorf("expected 2 failed calls, got %v", got)
	}
}

func TestMetrics_ObserveMerge(t *testing.T) {
	m := NewMetrics()
	m.ObserveMerge(3, 200*time.Millisecond)

	if got := testutil.ToFloat64(m.itemsProcessed); got != 3 {
		t.Errorf("expected items_processed 3, got %v", got)
	}
}

func TestMetrics_SetQueueCounts(t *testing.T) {
	m := NewMetrics()
	m.SetQueueCounts(models.QueueCounts{Pending: 4, Failed: 1})

	if got := testutil.ToFloat64(m.queueJobs.WithLabelValues("pending")); got != 4 {
		t.Errorf("expected 4 pending, got %v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.IncrementCompletedJobs()
	m.AddClaimedJobs(2)
	m.ObserveOracleCall("openai", "x", nil)
	m.SetQueueCounts(models.QueueCounts{})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.IncrementEnqueuedJobs()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "variant_merger_queue_jobs_enqueued_total 1") {
		t.Errorf("expected enqueued counter in exposition, got:\n%s", rec.Body.String())
	}
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementCompletedJobs()
			m.AddClaimedJobs(1)
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(m.jobsCompleted); got != 100 {
		t.Errorf("expected jobs_completed 100, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobsClaimed); got != 100 {
		t.Errorf("expected jobs_claimed 100, got %v", got)
	}
}
