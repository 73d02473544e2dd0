package api

import (
	"codeberg.org/mutker/hrvmon/internal/hrv"
	"codeberg.org/mutker/hrvmon/internal/measurement"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "hrvmon"

// IngestCounter reports notification counts of the transport.
type IngestCounter interface {
	Received() uint64
	Dropped() uint64
}

// Gauges exposes the latest snapshot to Prometheus.
type Gauges struct {
	registry    *prometheus.Registry
	stats       *prometheus.GaugeVec
	heartRate   prometheus.Gauge
	rrIntervals prometheus.Gauge
	messages    prometheus.Gauge
	elapsed     prometheus.Gauge
	ready       prometheus.Gauge
}

// NewGauges registers the gauges in a fresh registry. ingest may be nil.
func NewGauges(ingest IngestCounter) *Gauges {
	g := &Gauges{
		registry: prometheus.NewRegistry(),
		stats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hrv_statistic",
			Help:      "Current HRV statistic of the recording by metric.",
		}, []string{"metric"}),
		heartRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heart_rate_bpm",
			Help:      "Heart rate of the last notification.",
		}),
		rrIntervals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "filtered_rr_intervals",
			Help:      "Number of RR intervals that passed the outlier filter.",
		}),
		messages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recorded_notifications",
			Help:      "Number of notifications in the recording.",
		}),
		elapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recording_elapsed_seconds",
			Help:      "Offset of the last notification from the recording start.",
		}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "statistics_ready",
			Help:      "1 once enough RR intervals were collected for statistics.",
		}),
	}

	g.registry.MustRegister(
		g.stats,
		g.heartRate,
		g.rrIntervals,
		g.messages,
		g.elapsed,
		g.ready,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if ingest != nil {
		g.registry.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_received_total",
				Help:      "Notifications delivered by the transport.",
			}, func() float64 { return float64(ingest.Received()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_dropped_total",
				Help:      "Notifications that could not be decoded or recorded.",
			}, func() float64 { return float64(ingest.Dropped()) }),
		)
	}

	return g
}

// Registry returns the registry serving /metrics.
func (g *Gauges) Registry() *prometheus.Registry {
	return g.registry
}

// Update sets every gauge from snap. Statistics are removed until the
// recording is ready.
func (g *Gauges) Update(snap measurement.Snapshot) {
	g.messages.Set(float64(snap.Messages))
	g.rrIntervals.Set(float64(snap.RRIntervals))
	g.elapsed.Set(snap.Elapsed.Seconds())
	if snap.LastSample != nil {
		g.heartRate.Set(snap.LastSample.HeartRate)
	}

	g.stats.Reset()
	if snap.State != hrv.Ready || snap.Stats == nil {
		g.ready.Set(0)
		return
	}
	g.ready.Set(1)

	st := snap.Stats
	g.stats.WithLabelValues("rmssd").Set(st.RMSSD)
	g.stats.WithLabelValues("sdrr").Set(st.SDRR)
	g.stats.WithLabelValues("sd1").Set(st.SD1)
	g.stats.WithLabelValues("sd2").Set(st.SD2)
	g.stats.WithLabelValues("sd1_sd2_ratio").Set(st.SD1SD2Ratio)
	g.stats.WithLabelValues("avg_hr").Set(st.AvgHR)
	if snap.DFA1a != nil {
		g.stats.WithLabelValues("dfa1a").Set(*snap.DFA1a)
	}
}
