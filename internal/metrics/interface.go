package metrics

import (
	"context"
	"math"
	"time"

	"codeberg.org/mutker/hrvmon/internal/measurement"
)

// MetricsCollector defines the core domain interface
type MetricsCollector interface {
	Record(ctx context.Context, snapshot *MetricsSnapshot) error
	History(ctx context.Context, recordingID string, limit int) ([]MetricsSnapshot, error)
	Close() error
}

// Repository defines the interface for metrics data storage
type MetricsRepository interface {
	Record(snapshot *MetricsSnapshot) error
	History(ctx context.Context, recordingID string, limit int) ([]MetricsSnapshot, error)
	Close() error
}

// MetricsSnapshot is one sampled row of a recording's statistics. Stats
// values are nil until the recording is ready, and whenever the engine
// produced a non-finite value.
type MetricsSnapshot struct {
	Timestamp   time.Time
	RecordingID string
	Elapsed     time.Duration
	State       string
	Messages    int
	RRCount     int
	Stats       StatsMetrics
}

// StatsMetrics holds the nullable statistics columns.
type StatsMetrics struct {
	RMSSD       *float64 `json:"rmssd"`
	SDRR        *float64 `json:"sdrr"`
	SD1         *float64 `json:"sd1"`
	SD2         *float64 `json:"sd2"`
	SD1SD2Ratio *float64 `json:"sd1_sd2_ratio"`
	AvgHR       *float64 `json:"avg_hr"`
}

// NewSnapshot converts a measurement snapshot taken at ts.
func NewSnapshot(ts time.Time, snap measurement.Snapshot) *MetricsSnapshot {
	s := &MetricsSnapshot{
		Timestamp:   ts,
		RecordingID: snap.ID.String(),
		Elapsed:     snap.Elapsed,
		State:       snap.State.String(),
		Messages:    snap.Messages,
		RRCount:     snap.RRIntervals,
	}
	if st := snap.Stats; st != nil {
		s.Stats = StatsMetrics{
			RMSSD:       finite(st.RMSSD),
			SDRR:        finite(st.SDRR),
			SD1:         finite(st.SD1),
			SD2:         finite(st.SD2),
			SD1SD2Ratio: finite(st.SD1SD2Ratio),
			AvgHR:       finite(st.AvgHR),
		}
	}
	return s
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
