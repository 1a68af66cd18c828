package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutboxMetrics_RecordPublish(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewOutboxMetricsWithRegisterer(reg)

	metrics.RecordPublish("sent")
	metrics.RecordPublish("sent")
	metrics.RecordPublish("failed")

	if got := testutil.ToFloat64(metrics.publishAttempts.WithLabelValues("sent")); got != 2 {
		t.Fatalf("expected 2 sent attempts, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.publishAttempts.WithLabelValues("failed")); got != 1 {
		t.Fatalf("expected 1 failed attempt, got %v", got)
	}
}

func TestOutboxMetrics_SetBacklog(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewOutboxMetricsWithRegisterer(reg)

	metrics.SetBacklog(7, 12.5)

	if got := testutil.ToFloat64(metrics.pendingRecords); got != 7 {
		t.Fatalf("expected pending 7, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.oldestPendingAge); got != 12.5 {
		t.Fatalf("expected age 12.5, got %v", got)
	}

	count, err := testutil.GatherAndCount(reg, "shop_outbox_pending_records", "shop_outbox_oldest_pending_age_seconds")
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 gauges, got %d", count)
	}
}

func TestOutboxMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewOutboxMetricsWithRegisterer(reg)
	second := NewOutboxMetricsWithRegisterer(reg)

	first.RecordPublish("retry_error")
	second.RecordPublish("retry_error")

	if got := testutil.ToFloat64(first.publishAttempts.WithLabelValues("retry_error")); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}

func TestOutboxMetrics_NilReceiverIsNoop(t *testing.T) {
	var metrics *OutboxMetrics
	metrics.RecordPublish("sent")
	metrics.SetBacklog(1, 1)
}
