package domain

import "fmt"

// Hyperparameters configure the per-location model search and estimation.
// A value is immutable for the duration of a forecasting pass.
type Hyperparameters struct {
	Method    string `json:"method" koanf:"method"`       // optimizer: nm, bfgs, lbfgs, cg
	Scoring   string `json:"scoring" koanf:"scoring"`     // estimation objective: mse, mae
	Criterion string `json:"criterion" koanf:"criterion"` // order selection: aic, aicc, bic
	StartP    int    `json:"start_p" koanf:"start_p"`
	MaxP      int    `json:"max_p" koanf:"max_p"`
	StartQ    int    `json:"start_q" koanf:"start_q"`
	MaxQ      int    `json:"max_q" koanf:"max_q"`
	MaxD      int    `json:"max_d" koanf:"max_d"`
	MaxIter   int    `json:"maxiter" koanf:"maxiter"`
}

// HyperparameterOverrides is a partial Hyperparameters as supplied by an
// external tuning run. Nil fields keep the default.
type HyperparameterOverrides struct {
	Method    *string `json:"method,omitempty"`
	Scoring   *string `json:"scoring,omitempty"`
	Criterion *string `json:"criterion,omitempty"`
	StartP    *int    `json:"start_p,omitempty"`
	MaxP      *int    `json:"max_p,omitempty"`
	StartQ    *int    `json:"start_q,omitempty"`
	MaxQ      *int    `json:"max_q,omitempty"`
	MaxD      *int    `json:"max_d,omitempty"`
	MaxIter   *int    `json:"maxiter,omitempty"`
}

// DefaultHyperparameters returns the baseline configuration used when the
// caller supplies nothing.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		Method:    "lbfgs",
		Scoring:   "mse",
		Criterion: "aic",
		StartP:    2,
		MaxP:      6,
		StartQ:    2,
		MaxQ:      6,
		MaxD:      2,
		MaxIter:   50,
	}
}

// Merge returns a copy of h with every non-nil override applied.
func (h Hyperparameters) Merge(o HyperparameterOverrides) Hyperparameters {
	if o.Method != nil {
		h.Method = *o.Method
	}
	if o.Scoring != nil {
		h.Scoring = *o.Scoring
	}
	if o.Criterion != nil {
		h.Criterion = *o.Criterion
	}
	if o.StartP != nil {
		h.StartP = *o.StartP
	}
	if o.MaxP != nil {
		h.MaxP = *o.MaxP
	}
	if o.StartQ != nil {
		h.StartQ = *o.StartQ
	}
	if o.MaxQ != nil {
		h.MaxQ = *o.MaxQ
	}
	if o.MaxD != nil {
		h.MaxD = *o.MaxD
	}
	if o.MaxIter != nil {
		h.MaxIter = *o.MaxIter
	}
	return h
}

// Validate checks the configuration for values the engine cannot honor.
func (h Hyperparameters) Validate() error {
	switch h.Scoring {
	case "mse", "mae":
	default:
		return fmt.Errorf("unknown scoring rule %q", h.Scoring)
	}
	switch h.Criterion {
	case "aic", "aicc", "bic":
	default:
		return fmt.Errorf("unknown information criterion %q", h.Criterion)
	}
	if h.StartP < 0 || h.StartQ < 0 || h.MaxD < 0 {
		return fmt.Errorf("negative order bound: start_p=%d start_q=%d max_d=%d", h.StartP, h.StartQ, h.MaxD)
	}
	if h.MaxP < h.StartP || h.MaxQ < h.StartQ {
		return fmt.Errorf("max order below start order: p=[%d,%d] q=[%d,%d]", h.StartP, h.MaxP, h.StartQ, h.MaxQ)
	}
	if h.MaxIter < 1 {
		return fmt.Errorf("maxiter must be positive, got %d", h.MaxIter)
	}
	return nil
}
