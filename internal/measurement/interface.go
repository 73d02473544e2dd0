package measurement

import (
	"time"

	"codeberg.org/mutker/hrvmon/internal/hrs"
	"codeberg.org/mutker/hrvmon/internal/hrv"
	"github.com/google/uuid"
)

// Source gives concurrent readers access to a recording. The callback of
// Read runs under the read lock and must not retain the Reader or any slice
// obtained from it.
type Source interface {
	Read(fn func(Reader))
	Snapshot() Snapshot
}

// Recorder is the mutating side used by the recording controller.
type Recorder interface {
	Record(sample hrs.Sample) error
	RecordAt(elapsed time.Duration, sample hrs.Sample) error
	SetStatsWindow(window time.Duration)
	SetOutlierFilter(value float64)
	Refresh()
}

// Reader exposes the read accessors of one recording.
type Reader interface {
	ID() uuid.UUID
	StartTime() time.Time
	Elapsed() time.Duration
	LastSample() (hrs.Sample, bool)
	Entries() []hrv.Entry

	State() hrv.State
	Stats() (hrv.Statistics, bool)
	Metric(m Metric) (float64, bool)
	Series(m Metric) []hrv.Point
	PoincarePoints() (inliers, outliers []hrv.Point)

	StatsWindow() (time.Duration, bool)
	OutlierFilter() float64
	Session() hrv.View
}

// Snapshot is a detached copy of the scalar state of a recording, safe to use
// without holding any lock.
type Snapshot struct {
	ID            uuid.UUID
	StartTime     time.Time
	Elapsed       time.Duration
	State         hrv.State
	Stats         *hrv.Statistics
	DFA1a         *float64
	LastSample    *hrs.Sample
	Window        *time.Duration
	OutlierFilter float64
	Messages      int
	RRIntervals   int
}
