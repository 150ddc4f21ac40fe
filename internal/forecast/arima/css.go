package arima

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// params holds ARMA coefficients in intercept form:
//
//	y_t = c + Σ phi_i·y_{t-i} + Σ theta_j·e_{t-j} + e_t
type params struct {
	c     float64
	phi   []float64
	theta []float64
}

func (pr params) pack() []float64 {
	x := make([]float64, 0, 1+len(pr.phi)+len(pr.theta))
	x = append(x, pr.c)
	x = append(x, pr.phi...)
	x = append(x, pr.theta...)
	return x
}

func unpack(x []float64, p, q int) params {
	return params{
		c:     x[0],
		phi:   append([]float64(nil), x[1:1+p]...),
		theta: append([]float64(nil), x[1+p:1+p+q]...),
	}
}

// residuals runs the conditional recursion, with pre-sample residuals and
// observations treated as zero. The first p entries are zero by convention.
func residuals(y []float64, pr params) []float64 {
	p, q := len(pr.phi), len(pr.theta)
	resid := make([]float64, len(y))
	for t := p; t < len(y); t++ {
		v := pr.c
		for i := 0; i < p; i++ {
			v += pr.phi[i] * y[t-1-i]
		}
		for j := 0; j < q; j++ {
			if t-1-j >= 0 {
				v += pr.theta[j] * resid[t-1-j]
			}
		}
		resid[t] = y[t] - v
	}
	return resid
}

// cssLoss is the conditional-sum-of-squares objective (or sum of absolute
// errors under the "mae" scoring rule), averaged over the effective sample.
// Non-finite parameter vectors are penalized rather than propagated.
func cssLoss(y []float64, pr params, scoring string) float64 {
	p := len(pr.phi)
	n := len(y) - p
	if n < 1 {
		return math.MaxFloat64
	}
	resid := residuals(y, pr)
	var sum float64
	for _, e := range resid[p:] {
		if scoring == "mae" {
			sum += math.Abs(e)
		} else {
			sum += e * e
		}
	}
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return math.MaxFloat64
	}
	return sum / float64(n)
}

var errTooFewObservations = errors.New("too few observations for requested order")

// hannanRissanen produces initial coefficient estimates by two-stage least
// squares: a long autoregression supplies residual proxies, then y is
// regressed on its own lags and the lagged residuals.
func hannanRissanen(y []float64, p, q int) (params, error) {
	if p == 0 && q == 0 {
		return params{c: stat.Mean(y, nil)}, nil
	}

	e := make([]float64, len(y))
	t0 := p
	if q > 0 {
		m := longAROrder(len(y), p, q)
		ar, err := olsAR(y, m)
		if err != nil {
			return params{}, err
		}
		for t := m; t < len(y); t++ {
			v := ar.c
			for i := 0; i < m; i++ {
				v += ar.phi[i] * y[t-1-i]
			}
			e[t] = y[t] - v
		}
		if m > t0 {
			t0 = m
		}
		if q > t0 {
			t0 = q
		}
	}

	cols := 1 + p + q
	rows := len(y) - t0
	if rows < cols+1 {
		return params{}, errTooFewObservations
	}

	a := mat.NewDense(rows, cols, nil)
	b := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := t0 + r
		a.Set(r, 0, 1)
		for i := 0; i < p; i++ {
			a.Set(r, 1+i, y[t-1-i])
		}
		for j := 0; j < q; j++ {
			a.Set(r, 1+p+j, e[t-1-j])
		}
		b.SetVec(r, y[t])
	}

	x, err := solveLeastSquares(a, b)
	if err != nil {
		return params{}, err
	}
	return unpack(x, p, q), nil
}

// longAROrder sizes the stage-one autoregression.
func longAROrder(n, p, q int) int {
	m := p + q + 1
	if limit := (n - 1) / 2; m > limit {
		m = limit
	}
	if m < 1 {
		m = 1
	}
	return m
}

// olsAR fits an AR(m) with intercept by least squares.
func olsAR(y []float64, m int) (params, error) {
	rows := len(y) - m
	cols := 1 + m
	if rows < cols+1 {
		return params{}, errTooFewObservations
	}
	a := mat.NewDense(rows, cols, nil)
	b := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := m + r
		a.Set(r, 0, 1)
		for i := 0; i < m; i++ {
			a.Set(r, 1+i, y[t-1-i])
		}
		b.SetVec(r, y[t])
	}
	x, err := solveLeastSquares(a, b)
	if err != nil {
		return params{}, err
	}
	return params{c: x[0], phi: x[1:]}, nil
}

func solveLeastSquares(a *mat.Dense, b *mat.VecDense) ([]float64, error) {
	var qr mat.QR
	qr.Factorize(a)
	_, cols := a.Dims()
	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, b); err != nil {
		return nil, err
	}
	x := make([]float64, cols)
	for i := range x {
		v := sol.At(i, 0)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("non-finite least-squares solution")
		}
		x[i] = v
	}
	return x, nil
}

// refine polishes initial estimates by minimizing the CSS objective with the
// configured solver. Optimizer failure is not a fit failure: the initial
// least-squares estimate is already usable, so refinement falls back to it.
func refine(y []float64, init params, cfg Config) params {
	p, q := len(init.phi), len(init.theta)
	if p == 0 && q == 0 {
		return init
	}

	loss := func(x []float64) float64 {
		return cssLoss(y, unpack(x, p, q), cfg.Scoring)
	}
	problem := optimize.Problem{
		Func: loss,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, loss, x, nil)
		},
	}
	settings := &optimize.Settings{MajorIterations: cfg.MaxIter}

	result, err := optimize.Minimize(problem, init.pack(), settings, solverMethod(cfg.Method))
	if err != nil || result == nil {
		return init
	}
	refined := unpack(result.Location.X, p, q)
	if cssLoss(y, refined, cfg.Scoring) >= cssLoss(y, init, cfg.Scoring) {
		return init
	}
	return refined
}

// solverMethod maps the hyperparameter solver name onto a gonum optimizer.
// Unknown names (including the upstream tuner's exotic choices) degrade to
// L-BFGS, which is also the default.
func solverMethod(name string) optimize.Method {
	switch name {
	case "nm", "neldermead":
		return &optimize.NelderMead{}
	case "bfgs":
		return &optimize.BFGS{}
	case "cg":
		return &optimize.CG{}
	default:
		return &optimize.LBFGS{}
	}
}
