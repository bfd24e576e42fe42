package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics содержит метрики операций движка переговоров и заказов.
type EngineMetrics struct {
	// Счётчики операций переговоров
	offersCreated    prometheus.Counter
	counterProposals prometheus.Counter
	offersAccepted   prometheus.Counter
	offersRejected   prometheus.Counter
	offersCancelled  prometheus.Counter
	staleAcceptances prometheus.Counter

	// Счётчики заказов и возвратов
	ordersConverted  prometheus.Counter
	orderTransitions *prometheus.CounterVec
	refundOutcomes   *prometheus.CounterVec
	paymentFailures  prometheus.Counter

	// Гистограммы времени выполнения
	negotiationDuration prometheus.Histogram
	operationDuration   *prometheus.HistogramVec

	// Счётчики событий timeline и outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для офферов в активной фазе переговоров
	activeNegotiations prometheus.Gauge
}

// NewEngineMetrics создаёт новый экземпляр метрик движка.
func NewEngineMetrics() *EngineMetrics {
	return newEngineMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newEngineMetricsWithRegisterer(registerer prometheus.Registerer) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &EngineMetrics{
		offersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "nge_offers_created_total",
			Help: "Total number of offers created",
		}),
		counterProposals: registerCounter(registerer, prometheus.CounterOpts{
			Name: "nge_counter_proposals_total",
			Help: "Total number of counter proposals recorded",
		}),
		offersAccepted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "nge_offers_accepted_total",
			Help: "Total number of offers fully accepted",
		}),
		offersRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "nge_offers_rejected_total",
			Help: "Total number of offers rejected",
		}),
		offersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "nge_offers_cancelled_total",
			Help: "Total number of offers cancelled",
		}),
		staleAcceptances: registerCounter(registerer, prometheus.CounterOpts{
			Name: "nge_stale_acceptances_total",
			Help: "Total number of acceptances rejected because the priced amount changed",
		}),
		ordersConverted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "nge_orders_converted_total",
			Help: "Total number of accepted offers converted into orders",
		}),
		orderTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "nge_order_transitions_total",
			Help: "Total number of order status transitions",
		}, []string{"to_status"}),
		refundOutcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "nge_refund_outcomes_total",
			Help: "Total number of refund request outcomes",
		}, []string{"outcome"}),
		paymentFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "nge_payment_failures_total",
			Help: "Total number of failed payment provider calls",
		}),
		negotiationDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "nge_negotiation_duration_seconds",
			Help:    "Duration from offer creation to a terminal negotiation state in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "nge_operation_duration_seconds",
			Help:    "Duration of individual engine operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "nge_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "nge_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		activeNegotiations: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "nge_active_negotiations",
			Help: "Number of offers currently in an active negotiation state",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOfferCreated увеличивает счётчик созданных офферов.
func (m *EngineMetrics) RecordOfferCreated() {
	m.offersCreated.Inc()
	m.activeNegotiations.Inc()
}

// RecordCounterProposal увеличивает счётчик встречных предложений.
func (m *EngineMetrics) RecordCounterProposal() {
	m.counterProposals.Inc()
}

// RecordOfferAccepted увеличивает счётчик принятых офферов.
func (m *EngineMetrics) RecordOfferAccepted() {
	m.offersAccepted.Inc()
	m.activeNegotiations.Dec()
}

// RecordOfferRejected увеличивает счётчик отклонённых офферов.
func (m *EngineMetrics) RecordOfferRejected() {
	m.offersRejected.Inc()
	m.activeNegotiations.Dec()
}

// RecordOfferCancelled увеличивает счётчик отменённых офферов.
func (m *EngineMetrics) RecordOfferCancelled() {
	m.offersCancelled.Inc()
	m.activeNegotiations.Dec()
}

// RecordStaleAcceptance увеличивает счётчик акцептов по устаревшей цене.
func (m *EngineMetrics) RecordStaleAcceptance() {
	m.staleAcceptances.Inc()
}

// RecordOrderConverted увеличивает счётчик конверсий оффер-заказ.
func (m *EngineMetrics) RecordOrderConverted() {
	m.ordersConverted.Inc()
}

// RecordOrderTransition увеличивает счётчик переходов статуса заказа.
func (m *EngineMetrics) RecordOrderTransition(toStatus string) {
	m.orderTransitions.WithLabelValues(toStatus).Inc()
}

// RecordRefundOutcome увеличивает счётчик исходов заявок на возврат.
func (m *EngineMetrics) RecordRefundOutcome(outcome string) {
	m.refundOutcomes.WithLabelValues(outcome).Inc()
}

// RecordPaymentFailure увеличивает счётчик неудачных платёжных вызовов.
func (m *EngineMetrics) RecordPaymentFailure() {
	m.paymentFailures.Inc()
}

// RecordNegotiationDuration записывает длительность переговоров.
func (m *EngineMetrics) RecordNegotiationDuration(duration time.Duration) {
	m.negotiationDuration.Observe(duration.Seconds())
}

// RecordOperationDuration записывает время выполнения операции движка.
func (m *EngineMetrics) RecordOperationDuration(operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *EngineMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *EngineMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
