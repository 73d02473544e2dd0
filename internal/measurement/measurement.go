package measurement

import (
	"encoding/json"
	"math"
	"slices"
	"sync"
	"time"

	"codeberg.org/mutker/hrvmon/internal/errors"
	"codeberg.org/mutker/hrvmon/internal/hrs"
	"codeberg.org/mutker/hrvmon/internal/hrv"
	"github.com/google/uuid"
)

// DefaultOutlierFilter is the Moving-MAD threshold of a new recording.
const DefaultOutlierFilter = 50.0

// Measurement is one recording: the raw notification log, the analysis
// parameters and the session rebuilt from them. It is safe for concurrent
// use. One writer appends while readers go through Read or Snapshot.
type Measurement struct {
	mu sync.RWMutex
	st state
	// time source for Record, replaceable in tests
	now func() time.Time
}

// state holds the guarded fields. It implements Reader and is only handed
// out while the lock is held.
type state struct {
	id            uuid.UUID
	startTime     time.Time
	log           []hrv.Entry
	window        *time.Duration
	outlierFilter float64
	session       *hrv.SessionData
}

// Option configures a new Measurement.
type Option func(*Measurement)

// WithStatsWindow limits statistics to the notifications received within
// window of the newest one.
func WithStatsWindow(window time.Duration) Option {
	return func(m *Measurement) {
		if window > 0 {
			m.st.window = &window
		}
	}
}

// WithOutlierFilter sets the Moving-MAD threshold. Negative and non-finite
// values are ignored.
func WithOutlierFilter(value float64) Option {
	return func(m *Measurement) {
		if validFilter(value) {
			m.st.outlierFilter = value
		}
	}
}

// validFilter reports whether value is usable as a threshold. NaN would
// classify every window center as an inlier.
func validFilter(value float64) bool {
	return value >= 0 && !math.IsInf(value, 1)
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Measurement) {
		m.now = now
	}
}

// WithID sets the recording ID instead of generating one.
func WithID(id uuid.UUID) Option {
	return func(m *Measurement) {
		m.st.id = id
	}
}

// New starts an empty recording at the current time.
func New(opts ...Option) *Measurement {
	m := &Measurement{
		st:  state{id: uuid.New(), outlierFilter: DefaultOutlierFilter},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.st.startTime = m.now()
	m.st.rebuild()
	return m
}

func (s *state) rebuild() {
	s.session = hrv.FromAcquisition(s.log, s.window, s.outlierFilter)
}

func (s *state) lastElapsed() time.Duration {
	if len(s.log) == 0 {
		return 0
	}
	return s.log[len(s.log)-1].Elapsed
}

// Record appends a sample received now. A clock that went backwards is
// clamped to the previous entry so the log stays ordered.
func (m *Measurement) Record(sample hrs.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := max(m.now().Sub(m.st.startTime), m.st.lastElapsed())
	m.st.append(elapsed, sample)
	return nil
}

// RecordAt appends a sample at an explicit offset from the start, as used
// by replays. Offsets must not decrease.
func (m *Measurement) RecordAt(elapsed time.Duration, sample hrs.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elapsed < m.st.lastElapsed() || elapsed < 0 {
		return errors.New().WithData(ErrOutOfOrder, elapsed)
	}
	m.st.append(elapsed, sample)
	return nil
}

// append adds the entry to the log and grows the session's raw series.
// Filtering and statistics wait for the next Refresh.
func (s *state) append(elapsed time.Duration, sample hrs.Sample) {
	s.log = append(s.log, hrv.Entry{Elapsed: elapsed, Sample: sample})
	s.session.AddMeasurement(sample, elapsed)
}

// SetStatsWindow changes the statistics window and rebuilds the session. A
// non-positive window selects the whole recording.
func (m *Measurement) SetStatsWindow(window time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.st.window = nil
	if window > 0 {
		m.st.window = &window
	}
	m.st.rebuild()
}

// SetOutlierFilter changes the Moving-MAD threshold and rebuilds the
// session. Negative and non-finite values are ignored.
func (m *Measurement) SetOutlierFilter(value float64) {
	if !validFilter(value) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.st.outlierFilter = value
	m.st.rebuild()
}

// Refresh rebuilds the session from the raw log, applying the window and
// the outlier filter. It is O(N) and meant to run on a fixed cadence rather
// than after every Record.
func (m *Measurement) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.st.rebuild()
}

// Read calls fn with a read-only view under the read lock.
func (m *Measurement) Read(fn func(Reader)) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fn(&m.st)
}

// Snapshot returns a detached copy of the scalar state.
func (m *Measurement) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := &m.st
	snap := Snapshot{
		ID:            s.id,
		StartTime:     s.startTime,
		Elapsed:       s.lastElapsed(),
		State:         s.session.State(),
		OutlierFilter: s.outlierFilter,
		Messages:      len(s.log),
		RRIntervals:   len(s.session.RRIntervals()),
	}
	if st, ok := s.session.Stats(); ok {
		snap.Stats = &st
	}
	if alpha, ok := s.session.DFA1a(); ok {
		snap.DFA1a = &alpha
	}
	if last, ok := s.LastSample(); ok {
		snap.LastSample = &last
	}
	if s.window != nil {
		w := *s.window
		snap.Window = &w
	}
	return snap
}

// ID returns the recording ID.
func (m *Measurement) ID() uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.id
}

func (s *state) ID() uuid.UUID          { return s.id }
func (s *state) StartTime() time.Time   { return s.startTime }
func (s *state) Elapsed() time.Duration { return s.lastElapsed() }
func (s *state) Entries() []hrv.Entry   { return s.log }
func (s *state) State() hrv.State       { return s.session.State() }
func (s *state) OutlierFilter() float64 { return s.outlierFilter }

func (s *state) Session() hrv.View { return s.session.View() }

func (s *state) LastSample() (hrs.Sample, bool) {
	if len(s.log) == 0 {
		return hrs.Sample{}, false
	}
	return s.log[len(s.log)-1].Sample, true
}

func (s *state) Stats() (hrv.Statistics, bool) {
	return s.session.Stats()
}

func (s *state) StatsWindow() (time.Duration, bool) {
	if s.window == nil {
		return 0, false
	}
	return *s.window, true
}

// Metric returns the current value of m from the statistics snapshot. DFA
// alpha1 is the newest point of its track.
func (s *state) Metric(m Metric) (float64, bool) {
	if m == MetricDFA1a {
		return s.session.DFA1a()
	}
	st, ok := s.session.Stats()
	if !ok {
		return 0, false
	}
	switch m {
	case MetricRMSSD:
		return st.RMSSD, true
	case MetricSDRR:
		return st.SDRR, true
	case MetricSD1:
		return st.SD1, true
	case MetricSD2:
		return st.SD2, true
	case MetricHR:
		return st.AvgHR, true
	}
	return 0, false
}

// Series returns the time-series track of m.
func (s *state) Series(m Metric) []hrv.Point {
	switch m {
	case MetricRMSSD:
		return s.session.RMSSDSeries()
	case MetricSDRR:
		return s.session.SDRRSeries()
	case MetricSD1:
		return s.session.SD1Series()
	case MetricSD2:
		return s.session.SD2Series()
	case MetricHR:
		return s.session.HRSeries()
	case MetricDFA1a:
		return s.session.DFA1aSeries()
	}
	return nil
}

func (s *state) PoincarePoints() (inliers, outliers []hrv.Point) {
	return s.session.PoincarePoints()
}

// record is the persisted form of a Measurement. The session is derived and
// never stored.
type record struct {
	ID            uuid.UUID      `json:"id"`
	StartTime     time.Time      `json:"start_time"`
	Window        *time.Duration `json:"window,omitempty"`
	OutlierFilter float64        `json:"outlier_filter"`
	Measurements  []hrv.Entry    `json:"measurements"`
}

// MarshalJSON encodes the raw log and analysis parameters.
func (m *Measurement) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	log := m.st.log
	if log == nil {
		log = []hrv.Entry{}
	}
	data, err := json.Marshal(record{
		ID:            m.st.id,
		StartTime:     m.st.startTime,
		Window:        m.st.window,
		OutlierFilter: m.st.outlierFilter,
		Measurements:  log,
	})
	if err != nil {
		return nil, errors.New().Wrap(ErrEncodeFailed, err)
	}
	return data, nil
}

// UnmarshalJSON restores a recording and rebuilds its session.
func (m *Measurement) UnmarshalJSON(data []byte) error {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return errors.New().Wrap(ErrDecodeFailed, err)
	}

	for i := 1; i < len(rec.Measurements); i++ {
		if rec.Measurements[i].Elapsed < rec.Measurements[i-1].Elapsed {
			return errors.New().WithMessage(ErrDecodeFailed, "measurements are not in receive order")
		}
	}
	if !validFilter(rec.OutlierFilter) {
		rec.OutlierFilter = DefaultOutlierFilter
	}
	if rec.Window != nil && *rec.Window <= 0 {
		rec.Window = nil
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.st = state{
		id:            rec.ID,
		startTime:     rec.StartTime,
		log:           slices.Clone(rec.Measurements),
		window:        rec.Window,
		outlierFilter: rec.OutlierFilter,
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.st.rebuild()
	return nil
}
