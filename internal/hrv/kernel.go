package hrv

import (
	"fmt"
	"math"

	"codeberg.org/mutker/hrvmon/internal/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PoincareResult holds the Poincaré plot descriptors and the axes they were
// measured along.
type PoincareResult struct {
	SD1            float64
	SD1Eigenvector [2]float64
	SD2            float64
	SD2Eigenvector [2]float64
}

func mustHavePairs(rr []float64, op string) {
	if len(rr) < 2 {
		panic(fmt.Sprintf("hrv: %s needs at least two RR intervals, got %d", op, len(rr)))
	}
}

func successiveDiffs(rr []float64) []float64 {
	diffs := make([]float64, len(rr)-1)
	floats.SubTo(diffs, rr[1:], rr[:len(rr)-1])
	return diffs
}

// RMSSD returns the root mean square of successive RR differences.
func RMSSD(rr []float64) float64 {
	mustHavePairs(rr, "RMSSD")

	diffs := successiveDiffs(rr)
	return math.Sqrt(floats.Dot(diffs, diffs) / float64(len(diffs)))
}

// SDRR returns the sample standard deviation of the RR intervals.
func SDRR(rr []float64) float64 {
	mustHavePairs(rr, "SDRR")

	return stat.StdDev(rr, nil)
}

// Poincare computes SD1 and SD2 from the eigendecomposition of the sample
// covariance of successive (rr[i], rr[i+1]) pairs. Eigenvalues are taken in
// ascending order, so SD1 belongs to the smaller one.
func Poincare(rr []float64) PoincareResult {
	mustHavePairs(rr, "Poincare")

	n := len(rr) - 1
	pairs := mat.NewDense(n, 2, nil)
	pairs.SetCol(0, rr[:n])
	pairs.SetCol(1, rr[1:])

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, pairs, nil)

	var eig mat.EigenSym
	if ok := eig.Factorize(&cov, true); !ok {
		nan := math.NaN()
		return PoincareResult{SD1: nan, SD2: nan}
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	return PoincareResult{
		SD1:            sqrtEigen(values[0]),
		SD1Eigenvector: [2]float64{vectors.At(0, 0), vectors.At(1, 0)},
		SD2:            sqrtEigen(values[1]),
		SD2Eigenvector: [2]float64{vectors.At(0, 1), vectors.At(1, 1)},
	}
}

// Rounding can leave a tiny negative eigenvalue for collinear points.
func sqrtEigen(v float64) float64 {
	if v < 0 && v > -1e-9 {
		return 0
	}
	return math.Sqrt(v)
}

// Box sizes, in beats, of the short-term DFA scaling exponent.
const (
	DFAMinBox = 4
	DFAMaxBox = 16
)

// DFAMinSamples is the shortest series DFAAlpha1 accepts: two boxes of the
// largest size.
const DFAMinSamples = 2 * DFAMaxBox

// DFAAlpha1 returns the short-term scaling exponent of detrended fluctuation
// analysis. The mean-centered series is integrated, split into
// non-overlapping boxes of DFAMinBox to DFAMaxBox beats, and each box is
// detrended by a least-squares line. Alpha1 is the slope of log F(n) over
// log n.
func DFAAlpha1(rr []float64) (float64, error) {
	errFactory := errors.New()

	if len(rr) < DFAMinSamples {
		return 0, errFactory.WithData(ErrCodeDFATooShort, len(rr))
	}

	mean := stat.Mean(rr, nil)
	profile := make([]float64, len(rr))
	var acc float64
	for i, v := range rr {
		acc += v - mean
		profile[i] = acc
	}

	logN := make([]float64, 0, DFAMaxBox-DFAMinBox+1)
	logF := make([]float64, 0, DFAMaxBox-DFAMinBox+1)
	for n := DFAMinBox; n <= DFAMaxBox; n++ {
		f := fluctuation(profile, n)
		if !(f > 0) || math.IsInf(f, 0) {
			return 0, errFactory.WithData(ErrCodeDFADegenerate, n)
		}
		logN = append(logN, math.Log(float64(n)))
		logF = append(logF, math.Log(f))
	}

	_, alpha := stat.LinearRegression(logN, logF, nil, false)
	return alpha, nil
}

// fluctuation is the root mean square of the linear fit residuals over every
// full box of n samples. A trailing partial box is ignored.
func fluctuation(profile []float64, n int) float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}

	boxes := len(profile) / n
	var sum float64
	for b := 0; b < boxes; b++ {
		y := profile[b*n : (b+1)*n]
		intercept, slope := stat.LinearRegression(x, y, nil, false)
		for i, v := range y {
			r := v - (intercept + slope*x[i])
			sum += r * r
		}
	}
	return math.Sqrt(sum / float64(boxes*n))
}
