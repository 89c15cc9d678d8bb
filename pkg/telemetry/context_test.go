package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestTelemetry(t *testing.T) *Telemetry {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logging.Level = "error"
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddress = "127.0.0.1:0"
	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })
	return tel
}

func TestStartOperationWithoutTelemetry(t *testing.T) {
	ctx := context.Background()
	ic := StartOperation(ctx, "reconcile")
	if ic.Ctx != ctx {
		t.Error("context without telemetry should pass through unchanged")
	}
	if ic.Timer == nil {
		t.Fatal("missing timer")
	}
	// End must be safe without a span.
	ic.End(errors.New("boom"))
}

func TestStartOperationCarriesTelemetry(t *testing.T) {
	tel := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	ic := StartOperation(ctx, "reconcile")
	if ic.Span == nil {
		t.Fatal("expected a span when the context carries telemetry")
	}
	if FromTelemetryContext(ic.Ctx) != tel {
		t.Error("span context lost the telemetry instance")
	}
	ic.End(nil)
}

func TestRecordReconcileOutcome(t *testing.T) {
	tel := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	timer := NewTimer()
	RecordReconcileOutcome(ctx, "droplet", true, timer, "", "")
	RecordReconcileOutcome(ctx, "droplet", false, timer, "permanent", "NOT_FOUND")

	if got := testutil.ToFloat64(tel.Metrics.reconciles.WithLabelValues("droplet", "true")); got != 1 {
		t.Errorf("reconciles{changed=true} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.reconciles.WithLabelValues("droplet", "false")); got != 1 {
		t.Errorf("reconciles{changed=false} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.errorsByClass.WithLabelValues("permanent")); got != 1 {
		t.Errorf("errorsByClass = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.errorsByCode.WithLabelValues("NOT_FOUND")); got != 1 {
		t.Errorf("errorsByCode = %v, want 1", got)
	}

	// Without telemetry in the context the counters stay untouched.
	RecordReconcileOutcome(context.Background(), "droplet", true, timer, "", "")
	if got := testutil.ToFloat64(tel.Metrics.reconciles.WithLabelValues("droplet", "true")); got != 1 {
		t.Errorf("reconciles{changed=true} = %v after bare-context call, want 1", got)
	}
}

func TestRecordActionWaitOutcome(t *testing.T) {
	tel := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	RecordActionWaitOutcome(ctx, "droplet", "completed", 3*time.Second)
	RecordActionWaitOutcome(ctx, "volume", "timeout", 120*time.Second)

	if got := testutil.ToFloat64(tel.Metrics.actionWaits.WithLabelValues("droplet", "completed")); got != 1 {
		t.Errorf("actionWaits{completed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.actionWaits.WithLabelValues("volume", "timeout")); got != 1 {
		t.Errorf("actionWaits{timeout} = %v, want 1", got)
	}

	// No telemetry in the context is a no-op, not a panic.
	RecordActionWaitOutcome(context.Background(), "droplet", "completed", time.Second)
}
