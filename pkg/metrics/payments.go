package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records reconciliation outcomes and gateway behavior.
type PaymentMetrics struct {
	reconcileResults *prometheus.CounterVec
	signatureFailed  prometheus.Counter
	webhookReplays   prometheus.Counter
	gatewayLatency   *prometheus.HistogramVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	reconcileResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconcile_results_total",
		Help: "Reconciliation outcomes partitioned by result and source.",
	}, []string{"result", "source"})
	signatureFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_webhook_signature_failures_total",
		Help: "Webhook notifications rejected for a bad signature.",
	})
	webhookReplays := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_webhook_replays_total",
		Help: "Webhook notifications suppressed by the replay guard.",
	})
	gatewayLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_request_seconds",
		Help:    "Latency of outbound payment gateway calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(reconcileResults, signatureFailed, webhookReplays, gatewayLatency)
	return &PaymentMetrics{
		reconcileResults: reconcileResults,
		signatureFailed:  signatureFailed,
		webhookReplays:   webhookReplays,
		gatewayLatency:   gatewayLatency,
	}
}

// IncReconcileResult counts one reconciliation outcome.
func (p *PaymentMetrics) IncReconcileResult(result, source string) {
	if p == nil || p.reconcileResults == nil {
		return
	}
	p.reconcileResults.WithLabelValues(normalizeLabel(result), normalizeLabel(source)).Inc()
}

// IncSignatureFailure counts one rejected webhook signature.
func (p *PaymentMetrics) IncSignatureFailure() {
	if p == nil || p.signatureFailed == nil {
		return
	}
	p.signatureFailed.Inc()
}

// IncWebhookReplay counts one suppressed duplicate notification.
func (p *PaymentMetrics) IncWebhookReplay() {
	if p == nil || p.webhookReplays == nil {
		return
	}
	p.webhookReplays.Inc()
}

// ObserveGatewayLatency records the duration of one gateway call.
func (p *PaymentMetrics) ObserveGatewayLatency(operation string, duration time.Duration) {
	if p == nil || p.gatewayLatency == nil {
		return
	}
	p.gatewayLatency.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}
