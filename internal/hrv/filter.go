package hrv

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

const (
	// FilterWindow is the Moving-MAD window length.
	FilterWindow = 5
	madScale     = 0.5
)

// Class is the Moving-MAD verdict for one RR interval.
type Class int8

const (
	// Unclassified marks samples that are never the center of a full window.
	Unclassified Class = iota
	Inlier
	Outlier
)

func (c Class) String() string {
	switch c {
	case Inlier:
		return "inlier"
	case Outlier:
		return "outlier"
	default:
		return "unclassified"
	}
}

// MovingMAD classifies RR intervals by the deviation of each window center
// from its local window mean.
type MovingMAD struct {
	Window    int
	Threshold float64
}

// NewMovingMAD returns a filter with the default window.
func NewMovingMAD(threshold float64) MovingMAD {
	return MovingMAD{Window: FilterWindow, Threshold: threshold}
}

func (f MovingMAD) window() int {
	if f.Window < 1 {
		return FilterWindow
	}
	return f.Window
}

// Classify runs one forward pass over every full window. The first and last
// window/2 samples stay Unclassified.
func (f MovingMAD) Classify(rr []float64) []Class {
	classes := make([]Class, len(rr))
	w := f.window()
	half := w / 2

	for start := 0; start+w <= len(rr); start++ {
		win := rr[start : start+w]
		center := start + half
		deviation := math.Abs(rr[center]-floats.Sum(win)/float64(w)) * madScale
		if deviation >= f.Threshold {
			classes[center] = Outlier
		} else {
			classes[center] = Inlier
		}
	}

	return classes
}

// Filter keeps the window centers classified as inliers together with their
// cumulative times. N inputs give at most N-(window-1) outputs.
func (f MovingMAD) Filter(rr []float64, ts []time.Duration) ([]float64, []time.Duration) {
	n := min(len(rr), len(ts))
	classes := f.Classify(rr[:n])

	outRR := make([]float64, 0, n)
	outTS := make([]time.Duration, 0, n)
	for i, c := range classes {
		if c == Inlier {
			outRR = append(outRR, rr[i])
			outTS = append(outTS, ts[i])
		}
	}

	return outRR, outTS
}

// Clean drops the samples classified as outliers but keeps the edges that no
// window could judge.
func Clean(rr []float64, classes []Class) []float64 {
	out := make([]float64, 0, len(rr))
	for i, v := range rr {
		if i < len(classes) && classes[i] == Outlier {
			continue
		}
		out = append(out, v)
	}
	return out
}
