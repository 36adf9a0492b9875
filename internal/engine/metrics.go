package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: обработка одного события (резолв, дедупликация, запись)
	SubmitDuration *prometheus.HistogramVec

	// Traffic: события по итогу (recorded, deduplicated, already_recorded, ...)
	EventsTotal *prometheus.CounterVec

	// Errors: классификация отказов
	ErrorTotal *prometheus.CounterVec

	// Ledger: текущее число записей
	LedgerEntries prometheus.Gauge

	// Кэш аналитики
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// HTTP: латентность по маршруту
	HTTPDuration *prometheus.HistogramVec

	// Ingest: сообщения по транспорту и результату
	IngestMessages *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		SubmitDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attendance_submit_duration_seconds",
			Help:    "Histogram of recognition event processing latencies.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"status"}),

		EventsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_events_total",
			Help: "Total number of recognition events by outcome.",
		}, []string{"status"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}), // типы: unknown_person, storage, invalid_window

		LedgerEntries: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "attendance_ledger_entries",
			Help: "Current number of entries in the attendance ledger.",
		}),

		CacheHits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "attendance_analytics_cache_hits_total",
			Help: "Analytics query cache hits.",
		}),

		CacheMisses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "attendance_analytics_cache_misses_total",
			Help: "Analytics query cache misses.",
		}),

		HTTPDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attendance_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),

		IngestMessages: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_ingest_messages_total",
			Help: "Messages received by ingestion transports.",
		}, []string{"transport", "result"}),
	}
}

// CacheHit и CacheMiss делают Metrics наблюдателем кэша аналитики
func (m *Metrics) CacheHit()  { m.CacheHits.Inc() }
func (m *Metrics) CacheMiss() { m.CacheMisses.Inc() }
