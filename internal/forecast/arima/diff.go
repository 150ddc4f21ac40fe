package arima

import "gonum.org/v1/gonum/stat"

// difference returns the first differences of x (length len(x)-1).
func difference(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = x[i] - x[i-1]
	}
	return out
}

// undifference reconstructs level-scale forecasts from d-times differenced
// forecasts. lasts[i] holds the final observation of the i-times differenced
// training series, for i in [0, d).
func undifference(fc []float64, lasts []float64) []float64 {
	out := make([]float64, len(fc))
	copy(out, fc)
	for i := len(lasts) - 1; i >= 0; i-- {
		prev := lasts[i]
		for j := range out {
			prev += out[j]
			out[j] = prev
		}
	}
	return out
}

// lag1ACF computes the lag-1 autocorrelation of x. A constant series has no
// defined autocorrelation and reports 0.
func lag1ACF(x []float64) float64 {
	mu := stat.Mean(x, nil)
	var den float64
	for _, v := range x {
		d := v - mu
		den += d * d
	}
	if den == 0 {
		return 0
	}
	var num float64
	for i := 0; i+1 < len(x); i++ {
		num += (x[i] - mu) * (x[i+1] - mu)
	}
	return num / den
}

// persistenceThreshold is the lag-1 autocorrelation above which a series is
// treated as non-stationary and differenced once more. A cheap stand-in for
// a unit-root test that behaves sensibly on the short series this engine
// sees (a few weeks of daily counts).
const persistenceThreshold = 0.45

// chooseD picks the differencing order: difference while strong lag-1
// persistence remains, up to maxD, keeping at least 3 observations.
func chooseD(x []float64, maxD int) int {
	d := 0
	cur := x
	for d < maxD && len(cur) > 3 && lag1ACF(cur) >= persistenceThreshold {
		cur = difference(cur)
		d++
	}
	return d
}
