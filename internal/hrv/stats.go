package hrv

import "gonum.org/v1/gonum/stat"

// MinStatsSamples is the smallest RR series statistics are computed for.
const MinStatsSamples = 4

// Statistics is a snapshot of the HRV metrics for one RR series. A new value
// is produced on every recomputation.
type Statistics struct {
	RMSSD          float64
	SDRR           float64
	SD1            float64
	SD1Eigenvector [2]float64
	SD2            float64
	SD2Eigenvector [2]float64
	SD1SD2Ratio    float64
	AvgHR          float64
}

// ComputeStatistics returns the zero value when rr has fewer than
// MinStatsSamples entries. SD1SD2Ratio is not guarded against SD2 == 0.
func ComputeStatistics(rr, hr []float64) Statistics {
	if len(rr) < MinStatsSamples {
		return Statistics{}
	}

	var avgHR float64
	if len(hr) > 0 {
		avgHR = stat.Mean(hr, nil)
	}

	poincare := Poincare(rr)

	return Statistics{
		RMSSD:          RMSSD(rr),
		SDRR:           SDRR(rr),
		SD1:            poincare.SD1,
		SD1Eigenvector: poincare.SD1Eigenvector,
		SD2:            poincare.SD2,
		SD2Eigenvector: poincare.SD2Eigenvector,
		SD1SD2Ratio:    poincare.SD1 / poincare.SD2,
		AvgHR:          avgHR,
	}
}
