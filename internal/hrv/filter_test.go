package hrv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cumulative(rr []float64) []time.Duration {
	ts := make([]time.Duration, len(rr))
	var at time.Duration
	for i, v := range rr {
		at += time.Duration(v) * time.Millisecond
		ts[i] = at
	}
	return ts
}

func TestFilterPassesCleanData(t *testing.T) {
	rr := []float64{800, 820, 810, 830, 805, 825, 815, 812, 818}
	ts := cumulative(rr)

	out, outTS := NewMovingMAD(1000).Filter(rr, ts)

	require.Len(t, out, len(rr)-4)
	assert.Equal(t, rr[2:len(rr)-2], out)
	assert.Equal(t, ts[2:len(ts)-2], outTS)
}

func TestFilterDropsSpike(t *testing.T) {
	rr := []float64{800, 805, 810, 1400, 815, 808, 812, 806}
	ts := cumulative(rr)

	classes := NewMovingMAD(100).Classify(rr)
	assert.Equal(t, Outlier, classes[3])
	assert.Equal(t, Unclassified, classes[0])
	assert.Equal(t, Unclassified, classes[1])
	assert.Equal(t, Unclassified, classes[len(rr)-1])

	out, outTS := NewMovingMAD(100).Filter(rr, ts)
	assert.NotContains(t, out, 1400.0)
	assert.NotContains(t, outTS, ts[3])
	assert.Len(t, out, len(outTS))
}

func TestFilterThresholdIsInclusive(t *testing.T) {
	// window mean 810, center 830: deviation = 20 * 0.5 = 10
	rr := []float64{800, 800, 830, 810, 810}

	assert.Equal(t, Outlier, NewMovingMAD(10).Classify(rr)[2])
	assert.Equal(t, Inlier, NewMovingMAD(10.01).Classify(rr)[2])
}

func TestFilterShortInput(t *testing.T) {
	f := NewMovingMAD(5)
	for n := 0; n < FilterWindow; n++ {
		rr := make([]float64, n)
		out, ts := f.Filter(rr, cumulative(rr))
		assert.Empty(t, out)
		assert.Empty(t, ts)
	}
}

func TestFilterMismatchedLengths(t *testing.T) {
	rr := []float64{800, 810, 805, 815, 808, 812}
	out, ts := NewMovingMAD(1000).Filter(rr, cumulative(rr[:5]))

	assert.Len(t, out, 1)
	assert.Len(t, ts, 1)
}

func TestClean(t *testing.T) {
	rr := []float64{800, 805, 810, 1400, 815, 808, 812}
	classes := NewMovingMAD(100).Classify(rr)

	assert.Equal(t, []float64{800, 805, 810, 815, 808, 812}, Clean(rr, classes))
	assert.Equal(t, rr, Clean(rr, nil))
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "inlier", Inlier.String())
	assert.Equal(t, "outlier", Outlier.String())
	assert.Equal(t, "unclassified", Unclassified.String())
}
