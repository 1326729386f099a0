package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the custom Prometheus metrics for the bot and catalog
type Metrics struct {
	// Ingestion workflow
	IngestionEvents *prometheus.CounterVec
	MovieSaves      *prometheus.CounterVec

	// Telegram transport
	TelegramUpdates *prometheus.CounterVec
}

// InitMetrics registers the metrics on reg. activeSessions backs the live
// session gauge and may be nil.
func InitMetrics(reg prometheus.Registerer, activeSessions func() float64) *Metrics {
	factory := promauto.With(reg)

	metrics := &Metrics{
		IngestionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "djmovie_ingestion_events_total",
			Help: "Ingestion workflow events by stage and outcome",
		}, []string{"stage", "outcome"}),

		MovieSaves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "djmovie_movie_saves_total",
			Help: "Catalog upserts by result (created, updated, failed)",
		}, []string{"result"}),

		TelegramUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "djmovie_telegram_updates_total",
			Help: "Inbound Telegram updates by source and disposition",
		}, []string{"source", "disposition"}), // source: "webhook" or "polling"
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "djmovie_ingestion_sessions_active",
			Help: "Current number of in-progress ingestion sessions",
		},
		func() float64 {
			if activeSessions != nil {
				return activeSessions()
			}
			return 0
		},
	)

	return metrics
}

// RecordIngestionEvent records one handled ingestion event
func (m *Metrics) RecordIngestionEvent(stage string, outcome string) {
	m.IngestionEvents.WithLabelValues(stage, outcome).Inc()
}

// RecordMovieSave records the result of a catalog upsert
func (m *Metrics) RecordMovieSave(outcome string) {
	m.MovieSaves.WithLabelValues(outcome).Inc()
}

// RecordTelegramUpdate records how an inbound update was handled
func (m *Metrics) RecordTelegramUpdate(source, disposition string) {
	m.TelegramUpdates.WithLabelValues(source, disposition).Inc()
}
