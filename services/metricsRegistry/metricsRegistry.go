package metricsregistry

import (
	"net/http"
	"time"

	"github.com/kychandar/gqlwsc/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	handler       http.Handler
	instanceId    string
	sentTotal     *prometheus.CounterVec
	receivedTotal *prometheus.CounterVec
	droppedTotal  *prometheus.CounterVec
	gqlErrTotal   *prometheus.CounterVec
	roundTripHist *prometheus.HistogramVec
}

func New(instanceId string) services.MetricsRegistry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())

	sentTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gqlwsc_messages_sent_total",
			Help: "Protocol messages sent, by message type",
		},
		[]string{"instance_id", "type"},
	)
	registry.MustRegister(sentTotal)

	receivedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gqlwsc_messages_received_total",
			Help: "Protocol messages received, by message type",
		},
		[]string{"instance_id", "type"},
	)
	registry.MustRegister(receivedTotal)

	droppedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gqlwsc_messages_dropped_total",
			Help: "Messages discarded by the dispatcher, by reason",
		},
		[]string{"instance_id", "reason"},
	)
	registry.MustRegister(droppedTotal)

	gqlErrTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gqlwsc_graphql_error_responses_total",
			Help: "Responses carrying a non-empty errors collection",
		},
		[]string{"instance_id"},
	)
	registry.MustRegister(gqlErrTotal)

	roundTripHist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "gqlwsc_correlated_roundtrip_ms",
			Help: "Start-to-complete latency of correlated operations in milli seconds",
			Buckets: []float64{
				10, 20, 30, 40, 50, 60, 70, 80, 90, 100,
				150, 200, 300, 500, 800, 1000, 2000, 5000, 10000, 30000,
			},
		},
		[]string{"instance_id"},
	)
	registry.MustRegister(roundTripHist)

	return &metricsRegistry{
		instanceId:    instanceId,
		handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		sentTotal:     sentTotal,
		receivedTotal: receivedTotal,
		droppedTotal:  droppedTotal,
		gqlErrTotal:   gqlErrTotal,
		roundTripHist: roundTripHist,
	}
}

func (mr *metricsRegistry) GetHandler() http.Handler {
	return mr.handler
}

func (mr *metricsRegistry) IncMsgSent(msgType string) {
	mr.sentTotal.WithLabelValues(mr.instanceId, msgType).Inc()
}

func (mr *metricsRegistry) IncMsgReceived(msgType string) {
	mr.receivedTotal.WithLabelValues(mr.instanceId, msgType).Inc()
}

func (mr *metricsRegistry) IncKeepAliveDropped() {
	mr.droppedTotal.WithLabelValues(mr.instanceId, "keep_alive").Inc()
}

func (mr *metricsRegistry) IncMismatchDropped() {
	mr.droppedTotal.WithLabelValues(mr.instanceId, "id_mismatch").Inc()
}

func (mr *metricsRegistry) IncGraphQLErrors() {
	mr.gqlErrTotal.WithLabelValues(mr.instanceId).Inc()
}

func (mr *metricsRegistry) ObserveCorrelatedRoundTrip(start time.Time) {
	mr.roundTripHist.WithLabelValues(mr.instanceId).Observe(float64(time.Since(start).Milliseconds()))
}
