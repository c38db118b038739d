package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics counts order lifecycle activity.
type OrderMetrics struct {
	created          *prometheus.CounterVec
	checkoutFailures *prometheus.CounterVec
	statusUpdates    *prometheus.CounterVec
	cancellations    *prometheus.CounterVec
}

// NewOrderMetrics registers the order collectors on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "greenline_orders_created_total",
		Help: "Orders placed, by kind.",
	}, []string{"kind"})
	checkoutFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "greenline_checkout_failures_total",
		Help: "Checkout attempts that did not produce an order.",
	}, []string{"kind", "code"})
	statusUpdates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "greenline_order_status_updates_total",
		Help: "Back-office status changes, by target status.",
	}, []string{"status"})
	cancellations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "greenline_order_cancellations_total",
		Help: "Cancelled orders, by reason.",
	}, []string{"reason"})
	reg.MustRegister(created, checkoutFailures, statusUpdates, cancellations)
	return &OrderMetrics{
		created:          created,
		checkoutFailures: checkoutFailures,
		statusUpdates:    statusUpdates,
		cancellations:    cancellations,
	}
}

func (m *OrderMetrics) IncCreated(kind string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *OrderMetrics) IncCheckoutFailure(kind, code string) {
	if m == nil || m.checkoutFailures == nil {
		return
	}
	m.checkoutFailures.WithLabelValues(normalizeLabel(kind), normalizeLabel(code)).Inc()
}

func (m *OrderMetrics) IncStatusUpdate(status string) {
	if m == nil || m.statusUpdates == nil {
		return
	}
	m.statusUpdates.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *OrderMetrics) IncCancelled(reason string) {
	if m == nil || m.cancellations == nil {
		return
	}
	m.cancellations.WithLabelValues(normalizeLabel(reason)).Inc()
}
