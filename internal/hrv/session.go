package hrv

import (
	"math"
	"time"

	"codeberg.org/mutker/hrvmon/internal/hrs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// Track blocks approximate the beats of this span at the average HR.
	defaultTrackSpan = time.Minute
	msPerMinute      = 60000.0
)

// Entry is one received notification and its offset from the recording
// start.
type Entry struct {
	Elapsed time.Duration `json:"elapsed"`
	Sample  hrs.Sample    `json:"sample"`
}

// Point is an [elapsed seconds, value] pair of a time-series track.
type Point [2]float64

// State is the lifecycle stage of a SessionData.
type State int

const (
	Empty State = iota
	Accumulating
	Ready
)

func (s State) String() string {
	switch s {
	case Accumulating:
		return "accumulating"
	case Ready:
		return "ready"
	default:
		return "empty"
	}
}

// SessionData is the derived, rebuildable analysis state of one recording.
//
// AddMeasurement only grows the raw series. Filtering, statistics and the
// time-series tracks are refreshed by UpdateStats, which FromAcquisition
// calls once the raw series is long enough.
type SessionData struct {
	window        *time.Duration
	outlierFilter float64

	// every RR interval of the recording, unfiltered, for the tracks
	historyRR   []float64
	historyTime []time.Duration

	// RR intervals inside the statistics window, unfiltered
	rawRR   []float64
	rawTime []time.Duration

	rrIntervals []float64
	rrTime      []time.Duration
	hrValues    []float64
	rxTime      []time.Duration

	stats *Statistics

	rmssdTS []Point
	sdrrTS  []Point
	sd1TS   []Point
	sd2TS   []Point
	hrTS    []Point
	// only blocks with at least DFAMinSamples filtered beats
	dfaTS []Point
}

// NewSessionData returns an empty session. A nil or non-positive window
// keeps the whole recording.
func NewSessionData(window *time.Duration, outlierFilter float64) *SessionData {
	s := &SessionData{outlierFilter: outlierFilter}
	if window != nil && *window > 0 {
		w := *window
		s.window = &w
	}
	return s
}

// FromAcquisition rebuilds the session from a raw log. Only entries received
// within window of the last one feed the statistics; the tracks always cover
// the whole log.
func FromAcquisition(log []Entry, window *time.Duration, outlierFilter float64) *SessionData {
	s := NewSessionData(window, outlierFilter)
	if len(log) == 0 {
		return s
	}

	start := log[0].Elapsed
	if s.window != nil {
		start = log[len(log)-1].Elapsed - *s.window
	}

	for _, e := range log {
		if e.Elapsed >= start {
			s.AddMeasurement(e.Sample, e.Elapsed)
		} else {
			s.appendHistory(e.Sample)
		}
	}

	if s.HasSufficientData() {
		s.UpdateStats()
	}

	return s
}

// cursor is the cumulative time of the last RR edge.
func (s *SessionData) cursor() time.Duration {
	if len(s.historyTime) == 0 {
		return 0
	}
	return s.historyTime[len(s.historyTime)-1]
}

// appendHistory extends the unfiltered history and returns the intervals and
// edge times it added. Zero intervals carry no beat and are skipped.
func (s *SessionData) appendHistory(sample hrs.Sample) ([]float64, []time.Duration) {
	at := s.cursor()
	rr := make([]float64, 0, len(sample.RRIntervals))
	ts := make([]time.Duration, 0, len(sample.RRIntervals))
	for _, v := range sample.RRIntervals {
		if v == 0 {
			continue
		}
		at += time.Duration(v) * time.Millisecond
		rr = append(rr, float64(v))
		ts = append(ts, at)
	}
	s.historyRR = append(s.historyRR, rr...)
	s.historyTime = append(s.historyTime, ts...)
	return rr, ts
}

// AddMeasurement appends one notification to the raw series. It does not
// filter or recompute statistics.
func (s *SessionData) AddMeasurement(sample hrs.Sample, elapsed time.Duration) {
	rr, ts := s.appendHistory(sample)
	s.rawRR = append(s.rawRR, rr...)
	s.rawTime = append(s.rawTime, ts...)
	s.hrValues = append(s.hrValues, sample.HeartRate)
	s.rxTime = append(s.rxTime, elapsed)
}

// UpdateStats recomputes the filtered series, the statistics snapshot and the
// time-series tracks from the raw series.
func (s *SessionData) UpdateStats() {
	s.rrIntervals, s.rrTime = nil, nil
	s.stats = nil
	s.rmssdTS, s.sdrrTS, s.sd1TS, s.sd2TS, s.hrTS = nil, nil, nil, nil, nil
	s.dfaTS = nil

	if !s.HasSufficientData() {
		return
	}

	filter := NewMovingMAD(s.outlierFilter)
	s.rrIntervals, s.rrTime = filter.Filter(s.rawRR, s.rawTime)

	clean := Clean(s.rawRR, filter.Classify(s.rawRR))
	if len(clean) >= MinStatsSamples {
		st := ComputeStatistics(clean, s.hrValues)
		s.stats = &st
	}

	s.updateTracks()
}

func (s *SessionData) trackSpan() time.Duration {
	if s.window != nil {
		return *s.window
	}
	return defaultTrackSpan
}

// blockSize is the number of beats the average heart rate produces in one
// track span.
func (s *SessionData) blockSize() int {
	var avgHR float64
	if len(s.hrValues) > 0 {
		avgHR = stat.Mean(s.hrValues, nil)
	}
	size := int(math.Floor(avgHR * s.trackSpan().Seconds() / 60))
	return max(size, 1)
}

func (s *SessionData) updateTracks() {
	size := s.blockSize()
	filter := NewMovingMAD(s.outlierFilter)

	for start := 0; start < len(s.historyRR); start += size {
		end := min(start+size, len(s.historyRR))
		rr, _ := filter.Filter(s.historyRR[start:end], s.historyTime[start:end])
		if len(rr) < MinStatsSamples {
			continue
		}

		at := s.historyTime[end-1].Seconds()
		poincare := Poincare(rr)

		s.rmssdTS = append(s.rmssdTS, Point{at, RMSSD(rr)})
		s.sdrrTS = append(s.sdrrTS, Point{at, SDRR(rr)})
		s.sd1TS = append(s.sd1TS, Point{at, poincare.SD1})
		s.sd2TS = append(s.sd2TS, Point{at, poincare.SD2})
		s.hrTS = append(s.hrTS, Point{at, msPerMinute * float64(len(rr)) / floats.Sum(rr)})

		if alpha, err := DFAAlpha1(rr); err == nil {
			s.dfaTS = append(s.dfaTS, Point{at, alpha})
		}
	}
}

// State reports how far the session has progressed.
func (s *SessionData) State() State {
	switch {
	case s.stats != nil:
		return Ready
	case len(s.rawRR) > 0 || len(s.hrValues) > 0:
		return Accumulating
	default:
		return Empty
	}
}

// HasSufficientData reports whether enough RR intervals were collected to
// compute statistics.
func (s *SessionData) HasSufficientData() bool {
	return len(s.rawRR) >= MinStatsSamples
}

// Stats returns the statistics snapshot, if one has been computed. It is
// computed over the raw window minus the samples classified as outliers,
// which keeps the unclassified edges, so it does not match statistics taken
// over RRIntervals.
func (s *SessionData) Stats() (Statistics, bool) {
	if s.stats == nil {
		return Statistics{}, false
	}
	return *s.stats, true
}

// PoincarePoints returns successive RR pairs of the windowed raw series. A
// pair is an outlier when either interval was flagged by the filter.
func (s *SessionData) PoincarePoints() (inliers, outliers []Point) {
	if len(s.rawRR) < 2 {
		return nil, nil
	}

	classes := NewMovingMAD(s.outlierFilter).Classify(s.rawRR)
	for i := 0; i+1 < len(s.rawRR); i++ {
		p := Point{s.rawRR[i], s.rawRR[i+1]}
		if classes[i] == Outlier || classes[i+1] == Outlier {
			outliers = append(outliers, p)
		} else {
			inliers = append(inliers, p)
		}
	}
	return inliers, outliers
}

// Window returns the statistics window, if one is set.
func (s *SessionData) Window() (time.Duration, bool) {
	if s.window == nil {
		return 0, false
	}
	return *s.window, true
}

// OutlierFilter returns the Moving-MAD threshold.
func (s *SessionData) OutlierFilter() float64 { return s.outlierFilter }

// DFA1a returns the short-term DFA exponent of the newest block that had
// enough beats for one.
func (s *SessionData) DFA1a() (float64, bool) {
	if len(s.dfaTS) == 0 {
		return 0, false
	}
	return s.dfaTS[len(s.dfaTS)-1][1], true
}

// RRIntervals returns the Moving-MAD inliers of the window. The edges no
// filter window could judge are left out.
func (s *SessionData) RRIntervals() []float64 { return s.rrIntervals }

// The slice accessors below share the session's backing arrays and must not
// be modified.

func (s *SessionData) RawRR() []float64             { return s.rawRR }
func (s *SessionData) RRTime() []time.Duration      { return s.rrTime }
func (s *SessionData) HRValues() []float64          { return s.hrValues }
func (s *SessionData) RxTime() []time.Duration      { return s.rxTime }
func (s *SessionData) RMSSDSeries() []Point         { return s.rmssdTS }
func (s *SessionData) SDRRSeries() []Point          { return s.sdrrTS }
func (s *SessionData) SD1Series() []Point           { return s.sd1TS }
func (s *SessionData) SD2Series() []Point           { return s.sd2TS }
func (s *SessionData) HRSeries() []Point            { return s.hrTS }
func (s *SessionData) DFA1aSeries() []Point         { return s.dfaTS }
func (s *SessionData) HistoryRR() []float64         { return s.historyRR }
func (s *SessionData) HistoryTime() []time.Duration { return s.historyTime }

// View is the read-only side of a SessionData.
type View interface {
	State() State
	HasSufficientData() bool
	Stats() (Statistics, bool)
	DFA1a() (float64, bool)
	PoincarePoints() (inliers, outliers []Point)
	Window() (time.Duration, bool)
	OutlierFilter() float64

	RawRR() []float64
	RRIntervals() []float64
	RRTime() []time.Duration
	HRValues() []float64
	RxTime() []time.Duration
	RMSSDSeries() []Point
	SDRRSeries() []Point
	SD1Series() []Point
	SD2Series() []Point
	HRSeries() []Point
	DFA1aSeries() []Point
	HistoryRR() []float64
	HistoryTime() []time.Duration
}

type view struct{ s *SessionData }

// View returns a read-only view of s. It does not copy: slices are shared
// with s and the view sees later rebuilds.
func (s *SessionData) View() View { return view{s} }

func (v view) State() State                                { return v.s.State() }
func (v view) HasSufficientData() bool                     { return v.s.HasSufficientData() }
func (v view) Stats() (Statistics, bool)                   { return v.s.Stats() }
func (v view) DFA1a() (float64, bool)                      { return v.s.DFA1a() }
func (v view) PoincarePoints() (inliers, outliers []Point) { return v.s.PoincarePoints() }
func (v view) Window() (time.Duration, bool)               { return v.s.Window() }
func (v view) OutlierFilter() float64                      { return v.s.OutlierFilter() }
func (v view) RawRR() []float64                            { return v.s.RawRR() }
func (v view) RRIntervals() []float64                      { return v.s.RRIntervals() }
func (v view) RRTime() []time.Duration                     { return v.s.RRTime() }
func (v view) HRValues() []float64                         { return v.s.HRValues() }
func (v view) RxTime() []time.Duration                     { return v.s.RxTime() }
func (v view) RMSSDSeries() []Point                        { return v.s.RMSSDSeries() }
func (v view) SDRRSeries() []Point                         { return v.s.SDRRSeries() }
func (v view) SD1Series() []Point                          { return v.s.SD1Series() }
func (v view) SD2Series() []Point                          { return v.s.SD2Series() }
func (v view) HRSeries() []Point                           { return v.s.HRSeries() }
func (v view) DFA1aSeries() []Point                        { return v.s.DFA1aSeries() }
func (v view) HistoryRR() []float64                        { return v.s.HistoryRR() }
func (v view) HistoryTime() []time.Duration                { return v.s.HistoryTime() }
