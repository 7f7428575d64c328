// Package metrics concentra os coletores Prometheus do serviço.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fleet"

var (
	instancesByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "instances",
			Help:      "Instâncias no snapshot atual por estado de conexão.",
		},
		[]string{"state"},
	)

	averageHealth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "average_health_score",
			Help:      "Média do health score das instâncias.",
		},
	)

	syncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "sync_total",
			Help:      "Sincronizações com o provider por resultado.",
		},
		[]string{"result"},
	)

	lastSync = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "last_sync_timestamp_seconds",
			Help:      "Unix time da última sincronização bem-sucedida.",
		},
	)

	batchItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "batch_items_total",
			Help:      "Itens processados em operações em lote.",
		},
		[]string{"op", "result"},
	)

	pairingIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairing",
			Name:      "codes_total",
			Help:      "Códigos de pareamento servidos, por origem (cache ou provider).",
		},
		[]string{"source"},
	)

	pairingCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pairing",
			Name:      "cache_size",
			Help:      "Códigos de pareamento válidos em cache.",
		},
	)

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Eventos de webhook processados por tipo e ação.",
		},
		[]string{"type", "action"},
	)

	webhookResponses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "responses_sent_total",
			Help:      "Respostas automáticas enviadas pelo provider.",
		},
	)
)

var registerOnce sync.Once

// Register adiciona os coletores ao registerer informado. Chamadas repetidas são ignoradas.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			instancesByState,
			averageHealth,
			syncTotal,
			lastSync,
			batchItems,
			pairingIssued,
			pairingCacheSize,
			webhookEvents,
			webhookResponses,
		)
	})
}

func RecordSync(err error, at time.Time) {
	if err != nil {
		syncTotal.WithLabelValues("error").Inc()
		return
	}
	syncTotal.WithLabelValues("ok").Inc()
	lastSync.Set(float64(at.Unix()))
}

// SetInstances substitui os gauges do registry pelo snapshot informado.
func SetInstances(byState map[string]int, avgHealth float64) {
	instancesByState.Reset()
	for state, n := range byState {
		instancesByState.WithLabelValues(state).Set(float64(n))
	}
	averageHealth.Set(avgHealth)
}

func RecordBatch(op string, successful, failed int) {
	batchItems.WithLabelValues(op, "success").Add(float64(successful))
	batchItems.WithLabelValues(op, "failure").Add(float64(failed))
}

func RecordPairing(cacheHit bool) {
	if cacheHit {
		pairingIssued.WithLabelValues("cache").Inc()
		return
	}
	pairingIssued.WithLabelValues("provider").Inc()
}

func SetPairingCacheSize(n int) {
	pairingCacheSize.Set(float64(n))
}

func RecordWebhookEvent(eventType, action string) {
	webhookEvents.WithLabelValues(eventType, action).Inc()
}

func RecordResponseSent() {
	webhookResponses.Inc()
}
