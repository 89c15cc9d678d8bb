package resources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

func newTestTelemetry(t *testing.T) *telemetry.Telemetry {
	t.Helper()
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddress = "127.0.0.1:0"
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })
	return tel
}

func scrapeMetrics(t *testing.T, tel *telemetry.Telemetry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	tel.Metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestWaitForActionRecordsCompletedWait(t *testing.T) {
	var polls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("GET /actions/42", func(w http.ResponseWriter, r *http.Request) {
		status := actionInProgress
		if polls.Add(1) > 1 {
			status = actionCompleted
		}
		writeJSON(t, w, http.StatusOK,
			`{"action":{"id":42,"status":"`+status+`","resource_type":"droplet"}}`)
	})
	opts := newTestOptions(t, mux)

	tel := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())
	cfg := engine.WaitConfig{Timeout: 5 * time.Second, SleepInterval: 10 * time.Millisecond}

	if err := waitForAction(ctx, opts.Client, 42, cfg, "power on droplet"); err != nil {
		t.Fatalf("waitForAction: %v", err)
	}
	if polls.Load() < 2 {
		t.Errorf("polls = %d, want at least 2", polls.Load())
	}

	body := scrapeMetrics(t, tel)
	if !strings.Contains(body, `lagoon_action_waits_total{outcome="completed",resource="droplet"} 1`) {
		t.Errorf("completed wait not recorded:\n%s", body)
	}
}

func TestWaitForActionRecordsTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /actions/42", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK,
			`{"action":{"id":42,"status":"in-progress","resource_type":"volume"}}`)
	})
	opts := newTestOptions(t, mux)

	tel := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())
	cfg := engine.WaitConfig{Timeout: 30 * time.Millisecond, SleepInterval: 10 * time.Millisecond}

	err := waitForAction(ctx, opts.Client, 42, cfg, "resize volume")
	if !engine.IsTimeout(err) {
		t.Fatalf("err = %v, want timeout", err)
	}

	body := scrapeMetrics(t, tel)
	if !strings.Contains(body, `lagoon_action_waits_total{outcome="timeout",resource="volume"} 1`) {
		t.Errorf("timed-out wait not recorded:\n%s", body)
	}
}
