package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPaymentMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPaymentMetrics(reg)

	metrics.IncReconcileResult("applied", "webhook")
	metrics.IncReconcileResult("applied", "webhook")
	metrics.IncSignatureFailure()
	metrics.ObserveGatewayLatency("status", 120*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchReconcileCounter(mfs, "applied", "webhook"); err != nil {
		t.Fatalf("fetch reconcile counter: %v", err)
	} else if got != 2 {
		t.Fatalf("expected applied=2, got %f", got)
	}

	sig := findMetricFamily(mfs, "payment_webhook_signature_failures_total")
	if sig == nil {
		t.Fatal("signature failure metric not found")
	}
	if got := sig.GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected signature failures=1, got %f", got)
	}
}

func TestPaymentMetricsNilReceiverIsNoOp(t *testing.T) {
	var metrics *PaymentMetrics
	metrics.IncReconcileResult("applied", "poll")
	metrics.IncSignatureFailure()
	metrics.IncWebhookReplay()
	metrics.ObserveGatewayLatency("charge", time.Second)
}

func fetchReconcileCounter(mfs []*dto.MetricFamily, result, source string) (float64, error) {
	mf := findMetricFamily(mfs, "payment_reconcile_results_total")
	if mf == nil {
		return 0, fmt.Errorf("metric not found")
	}
	for _, metric := range mf.GetMetric() {
		labels := map[string]string{}
		for _, pair := range metric.GetLabel() {
			labels[pair.GetName()] = pair.GetValue()
		}
		if labels["result"] == result && labels["source"] == source {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("labels not found")
}
