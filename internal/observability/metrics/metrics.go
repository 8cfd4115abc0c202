package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "plantops_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	telemetryMessages *prometheus.CounterVec
	telemetryDropped  *prometheus.CounterVec

	runtimeEvents *prometheus.CounterVec
	stateWrites   *prometheus.CounterVec

	commandsIssued  prometheus.Counter
	commandsAcked   prometheus.Counter
	commandTimeouts prometheus.Counter

	broadcastPublished prometheus.Counter
	broadcastDropped   prometheus.Counter

	exportLatency *prometheus.HistogramVec

	dbOpenConnections prometheus.Gauge
)

// Init registers observability metrics and starts the DB stats sampler.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		telemetryMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "telemetry_messages_total",
				Help: "Telemetry bus messages by result",
			},
			[]string{"result"},
		)
		telemetryDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "telemetry_dropped_total",
				Help: "Telemetry messages dropped at the boundary by reason",
			},
			[]string{"reason"},
		)
		runtimeEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "runtime_events_total",
				Help: "Actuator runtime events applied by result",
			},
			[]string{"result"},
		)
		stateWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "state_writes_total",
				Help: "Actuator state upserts by kind",
			},
			[]string{"kind"},
		)
		commandsIssued = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "commands_issued_total",
			Help: "Actuator commands issued",
		})
		commandsAcked = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "commands_acked_total",
			Help: "Actuator command acknowledgments received",
		})
		commandTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "command_timeouts_total",
			Help: "Pending commands cleared by the timeout sweep",
		})
		broadcastPublished = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "broadcast_published_total",
			Help: "Live status events published to subscribers",
		})
		broadcastDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "broadcast_dropped_total",
			Help: "Live status events dropped for slow subscribers",
		})
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Report export latency by format",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		)
		dbOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "db_open_connections",
			Help: "Open connections in the SQL pool",
		})

		prometheus.MustRegister(
			telemetryMessages,
			telemetryDropped,
			runtimeEvents,
			stateWrites,
			commandsIssued,
			commandsAcked,
			commandTimeouts,
			broadcastPublished,
			broadcastDropped,
			exportLatency,
			dbOpenConnections,
		)

		if db != nil {
			go sampleDBStats(db)
		}
		if logger != nil {
			logger.Printf("metrics registered with prefix %q", metricPrefix)
		}
	})
}

func sampleDBStats(db *sql.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		dbOpenConnections.Set(float64(db.Stats().OpenConnections))
	}
}

// IncTelemetryMessage counts one bus message.
func IncTelemetryMessage(ok bool) {
	if telemetryMessages == nil {
		return
	}
	result := resultSuccess
	if !ok {
		result = resultError
	}
	telemetryMessages.WithLabelValues(result).Inc()
}

// IncTelemetryDropped counts one message dropped at the boundary.
func IncTelemetryDropped(reason string) {
	if telemetryDropped == nil {
		return
	}
	telemetryDropped.WithLabelValues(reason).Inc()
}

// IncRuntimeEvent counts one accumulator apply.
func IncRuntimeEvent(ok bool) {
	if runtimeEvents == nil {
		return
	}
	result := resultSuccess
	if !ok {
		result = resultError
	}
	runtimeEvents.WithLabelValues(result).Inc()
}

// IncStateWrite counts one actuator state upsert.
func IncStateWrite(kind string) {
	if stateWrites == nil {
		return
	}
	stateWrites.WithLabelValues(kind).Inc()
}

// IncCommandIssued counts one issued command.
func IncCommandIssued() {
	if commandsIssued != nil {
		commandsIssued.Inc()
	}
}

// IncCommandAcked counts one acknowledged command.
func IncCommandAcked() {
	if commandsAcked != nil {
		commandsAcked.Inc()
	}
}

// AddCommandTimeouts counts pending commands cleared by the sweep.
func AddCommandTimeouts(count int) {
	if commandTimeouts != nil && count > 0 {
		commandTimeouts.Add(float64(count))
	}
}

// IncBroadcastPublished counts one published live event.
func IncBroadcastPublished() {
	if broadcastPublished != nil {
		broadcastPublished.Inc()
	}
}

// IncBroadcastDropped counts one event dropped for a slow subscriber.
func IncBroadcastDropped() {
	if broadcastDropped != nil {
		broadcastDropped.Inc()
	}
}

// ObserveExport records one export render duration.
func ObserveExport(format string, start time.Time) {
	if exportLatency != nil {
		exportLatency.WithLabelValues(format).Observe(time.Since(start).Seconds())
	}
}
