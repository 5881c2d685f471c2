package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Tick()
	m.Tick()
	if got := testutil.ToFloat64(m.ticks); got != 2 {
		t.Fatalf("expected 2 ticks, got %f", got)
	}

	m.Sent("policy")
	m.Sent("onetime")
	m.Sent("policy")
	if got := testutil.ToFloat64(m.sends.WithLabelValues("policy")); got != 2 {
		t.Fatalf("expected 2 policy sends, got %f", got)
	}

	m.Rejected("401")
	if got := testutil.ToFloat64(m.rejected.WithLabelValues("401")); got != 1 {
		t.Fatalf("expected 1 rejected, got %f", got)
	}

	m.Sampled(3)
	if got := testutil.ToFloat64(m.bufferLen); got != 3 {
		t.Fatalf("expected buffer gauge 3, got %f", got)
	}

	m.Running(true)
	if got := testutil.ToFloat64(m.running); got != 1 {
		t.Fatalf("expected running gauge 1, got %f", got)
	}
	m.Running(false)
	if got := testutil.ToFloat64(m.running); got != 0 {
		t.Fatalf("expected running gauge 0, got %f", got)
	}

	m.MaxInterval(150 * time.Second)
	if got := testutil.ToFloat64(m.maxInterval); got != 150 {
		t.Fatalf("expected max interval 150, got %f", got)
	}

	m.ObserveRequest(20 * time.Millisecond)
	if samples := testutil.CollectAndCount(m.requestLatency); samples != 1 {
		t.Fatalf("expected latency histogram sample, got %d", samples)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Tick()
	m.Sent("policy")
	m.Skipped()
	m.Failed()
	m.Rejected("500")
	m.Sampled(1)
	m.BufferLen(0)
	m.Running(true)
	m.MaxInterval(time.Second)
	m.ObserveRequest(time.Second)
}
