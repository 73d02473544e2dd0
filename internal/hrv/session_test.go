package hrv

import (
	"math"
	"testing"
	"time"

	"codeberg.org/mutker/hrvmon/internal/hrs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(hr float64, rr ...uint16) hrs.Sample {
	return hrs.NewSample(hr, rr, nil, hrs.SensorContact{Supported: true, Detected: true})
}

// alternatingLog returns n one-beat entries alternating 990/1010 ms at one
// notification per second.
func alternatingLog(n int) []Entry {
	log := make([]Entry, n)
	for i := range log {
		rr := uint16(990)
		if i%2 == 1 {
			rr = 1010
		}
		log[i] = Entry{Elapsed: time.Duration(i) * time.Second, Sample: sample(60, rr)}
	}
	return log
}

func assertInvariants(t *testing.T, s *SessionData) {
	t.Helper()
	assert.Equal(t, len(s.RRIntervals()), len(s.RRTime()))
	assert.Equal(t, len(s.HRValues()), len(s.RxTime()))
	assert.Equal(t, len(s.HistoryRR()), len(s.HistoryTime()))
	n := len(s.RMSSDSeries())
	assert.Len(t, s.SDRRSeries(), n)
	assert.Len(t, s.SD1Series(), n)
	assert.Len(t, s.SD2Series(), n)
	assert.Len(t, s.HRSeries(), n)
}

func TestFromAcquisitionEndToEnd(t *testing.T) {
	log := []Entry{{Elapsed: 0, Sample: sample(74, 800, 820, 810, 830, 805, 825, 815)}}

	s := FromAcquisition(log, nil, 1000)

	st, ok := s.Stats()
	require.True(t, ok)
	assert.Equal(t, Ready, s.State())
	assert.Len(t, s.RRIntervals(), 3)
	assert.Equal(t, []float64{810, 830, 805}, s.RRIntervals())
	assert.Greater(t, st.RMSSD, 0.0)
	assert.InDelta(t, 74.0, st.AvgHR, 0)
	assertInvariants(t, s)
}

func TestFromAcquisitionEmpty(t *testing.T) {
	s := FromAcquisition(nil, nil, 50)

	_, ok := s.Stats()
	assert.False(t, ok)
	assert.Equal(t, Empty, s.State())
	assert.Empty(t, s.RRIntervals())
	assert.Empty(t, s.RMSSDSeries())
	in, out := s.PoincarePoints()
	assert.Empty(t, in)
	assert.Empty(t, out)
	assertInvariants(t, s)
}

func TestFromAcquisitionSparse(t *testing.T) {
	log := []Entry{
		{Elapsed: 0, Sample: sample(70)},
		{Elapsed: time.Second, Sample: sample(71, 850)},
		{Elapsed: 2 * time.Second, Sample: sample(72, 845, 860)},
	}

	s := FromAcquisition(log, nil, 50)

	_, ok := s.Stats()
	assert.False(t, ok)
	assert.Equal(t, Accumulating, s.State())
	assert.False(t, s.HasSufficientData())
	assert.Empty(t, s.RRIntervals())
	assert.Len(t, s.HRValues(), 3)
	assertInvariants(t, s)
}

func TestFromAcquisitionWindowedRetention(t *testing.T) {
	log := make([]Entry, 101)
	for i := range log {
		log[i] = Entry{Elapsed: time.Duration(i) * time.Second, Sample: sample(float64(i), 1000)}
	}
	window := 30 * time.Second

	s := FromAcquisition(log, &window, 1000)

	require.Len(t, s.RxTime(), 31)
	assert.Equal(t, 70*time.Second, s.RxTime()[0])
	assert.Equal(t, 100*time.Second, s.RxTime()[30])
	assert.InDelta(t, 70.0, s.HRValues()[0], 0)
	assert.Len(t, s.RawRR(), 31)
	assert.Len(t, s.HistoryRR(), 101)

	// edge times count from the start of the recording, not the window
	require.NotEmpty(t, s.RRTime())
	assert.Equal(t, 73*time.Second, s.RRTime()[0])

	got, ok := s.Window()
	assert.True(t, ok)
	assert.Equal(t, window, got)
	assertInvariants(t, s)
}

func TestAddMeasurementDoesNotComputeStats(t *testing.T) {
	s := NewSessionData(nil, 1000)
	s.AddMeasurement(sample(70, 800, 820), time.Second)
	s.AddMeasurement(sample(71, 810, 830, 805), 2*time.Second)

	_, ok := s.Stats()
	assert.False(t, ok)
	assert.Empty(t, s.RRIntervals())
	assert.Equal(t, []float64{800, 820, 810, 830, 805}, s.RawRR())
	assert.Equal(t, []time.Duration{
		800 * time.Millisecond,
		1620 * time.Millisecond,
		2430 * time.Millisecond,
		3260 * time.Millisecond,
		4065 * time.Millisecond,
	}, s.HistoryTime())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, s.RxTime())

	s.UpdateStats()

	_, ok = s.Stats()
	assert.True(t, ok)
	assert.Equal(t, []float64{810}, s.RRIntervals())
	assert.Equal(t, []time.Duration{2430 * time.Millisecond}, s.RRTime())
	assertInvariants(t, s)
}

func TestZeroIntervalsAreSkipped(t *testing.T) {
	s := NewSessionData(nil, 1000)
	s.AddMeasurement(sample(70, 800, 0, 820), 0)

	assert.Equal(t, []float64{800, 820}, s.RawRR())
	assert.Equal(t, []time.Duration{800 * time.Millisecond, 1620 * time.Millisecond}, s.HistoryTime())
}

func TestOutliersAreExcludedFromStatistics(t *testing.T) {
	log := []Entry{{Sample: sample(70, 800, 805, 810, 1400, 815, 808, 812, 806)}}

	s := FromAcquisition(log, nil, 100)

	st, ok := s.Stats()
	require.True(t, ok)
	assert.NotContains(t, s.RRIntervals(), 1400.0)
	assert.InDelta(t, ComputeStatistics([]float64{800, 805, 810, 815, 808, 812, 806}, []float64{70}).RMSSD, st.RMSSD, 1e-9)

	inliers, outliers := s.PoincarePoints()
	assert.Equal(t, []Point{{810, 1400}, {1400, 815}}, outliers)
	assert.Len(t, inliers, 5)
}

func TestTracksWithoutWindow(t *testing.T) {
	s := FromAcquisition(alternatingLog(600), nil, 1000)

	// 60 bpm over a one minute span gives 60 beat blocks
	rmssd := s.RMSSDSeries()
	require.Len(t, rmssd, 10)
	for i, p := range rmssd {
		assert.InDelta(t, float64(60*(i+1)), p[0], 1e-9)
		assert.InDelta(t, 20.0, p[1], 1e-9)
	}
	for _, p := range s.HRSeries() {
		assert.InDelta(t, 60.0, p[1], 0.5)
	}
	// alternating beats sit on the anti-diagonal, so all spread is in SD2
	for _, p := range s.SD2Series() {
		assert.Greater(t, p[1], 0.0)
	}
	assertInvariants(t, s)
}

func TestTracksCoverWholeLogWithWindow(t *testing.T) {
	window := 30 * time.Second
	s := FromAcquisition(alternatingLog(600), &window, 1000)

	hr := s.HRSeries()
	require.Len(t, hr, 20)
	assert.InDelta(t, 30.0, hr[0][0], 1e-9)
	assert.InDelta(t, 600.0, hr[len(hr)-1][0], 1e-9)
	assert.Len(t, s.RawRR(), 31)
	assertInvariants(t, s)
}

func TestTracksSkipShortBlocks(t *testing.T) {
	log := []Entry{{Sample: sample(0, 800, 820, 810, 830, 805, 825, 815)}}

	// no heart rate gives one beat blocks, none of which survive filtering
	s := FromAcquisition(log, nil, 1000)

	assert.Empty(t, s.RMSSDSeries())
	assert.Equal(t, Ready, s.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "empty", Empty.String())
	assert.Equal(t, "accumulating", Accumulating.String())
	assert.Equal(t, "ready", Ready.String())
}

func TestDFATrack(t *testing.T) {
	s := FromAcquisition(alternatingLog(600), nil, 1000)

	// every 60 beat block keeps 56 inliers, enough for alpha1
	dfa := s.DFA1aSeries()
	require.Len(t, dfa, len(s.RMSSDSeries()))
	for i, p := range dfa {
		assert.InDelta(t, s.RMSSDSeries()[i][0], p[0], 0)
		assert.False(t, math.IsNaN(p[1]))
	}
	// alternating beats are anti-correlated
	last, ok := s.DFA1a()
	require.True(t, ok)
	assert.Less(t, last, 0.5)
	assert.InDelta(t, dfa[len(dfa)-1][1], last, 0)
}

func TestDFATrackSkipsShortBlocks(t *testing.T) {
	window := 30 * time.Second
	s := FromAcquisition(alternatingLog(600), &window, 1000)

	require.NotEmpty(t, s.RMSSDSeries())
	assert.Empty(t, s.DFA1aSeries())
	_, ok := s.DFA1a()
	assert.False(t, ok)
}

func TestViewIsReadOnly(t *testing.T) {
	s := FromAcquisition(alternatingLog(120), nil, 1000)
	v := s.View()

	_, mutable := v.(interface {
		AddMeasurement(hrs.Sample, time.Duration)
	})
	assert.False(t, mutable)
	_, mutable = v.(interface{ UpdateStats() })
	assert.False(t, mutable)

	want, _ := s.Stats()
	got, ok := v.Stats()
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, s.RRIntervals(), v.RRIntervals())
	assert.Equal(t, s.HRSeries(), v.HRSeries())

	// the view follows later rebuilds
	s.AddMeasurement(sample(61, 1000), 200*time.Second)
	assert.Len(t, v.HRValues(), 121)
}
