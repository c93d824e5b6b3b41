package volatility

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

var (
	ErrTooFewQuotes        = errors.New("at least 5 quotes are needed to fit an SVI slice")
	ErrInvalidQuote        = errors.New("quote implied volatility must be positive and finite")
	ErrInvalidMaturity     = errors.New("maturity must be positive")
	ErrCalibratedArbitrage = errors.New("calibrated slice violates no-arbitrage constraints")
)

// minQuotes is one quote per SVI parameter
const minQuotes = 5

// fitRounds restarts Nelder-Mead from the previous optimum so a collapsed
// simplex gets a fresh one.
const fitRounds = 3

// Quote is one market implied volatility observation at a log-moneyness
type Quote struct {
	LogMoneyness float64 `json:"log_moneyness"`
	ImpliedVol   float64 `json:"implied_vol"`
}

// FitResult carries the calibrated slice with its fit quality
type FitResult struct {
	Params SVIParams `json:"params"`
	RMSE   float64   `json:"rmse"` // root mean squared total-variance error
	Evals  int       `json:"evaluations"`
}

// unconstrained optimizer coordinates: [a, ln b, atanh rho, m, ln sigma]
func toSVI(x []float64) SVIParams {
	return SVIParams{
		A:     x[0],
		B:     math.Exp(x[1]),
		Rho:   math.Tanh(x[2]),
		M:     x[3],
		Sigma: math.Exp(x[4]),
	}
}

func fromSVI(p SVIParams) []float64 {
	return []float64{p.A, math.Log(p.B), math.Atanh(p.Rho), p.M, math.Log(p.Sigma)}
}

// initialGuess centres the smile on the lowest quoted variance
func initialGuess(quotes []Quote, maturity float64) SVIParams {
	minW, minK := math.Inf(1), 0.0
	for _, q := range quotes {
		if w := q.ImpliedVol * q.ImpliedVol * maturity; w < minW {
			minW, minK = w, q.LogMoneyness
		}
	}
	return SVIParams{A: 0.5 * minW, B: 0.1, Rho: 0, M: minK, Sigma: 0.1}
}

// FitSVI calibrates one SVI slice to quotes at maturity by least squares on
// total variance. The search runs in unconstrained coordinates so b, sigma
// stay positive and rho stays inside (-1, 1).
func FitSVI(quotes []Quote, maturity float64) (FitResult, error) {
	if len(quotes) < minQuotes {
		return FitResult{}, fmt.Errorf("%w: got %d", ErrTooFewQuotes, len(quotes))
	}
	if !(maturity > 0) || math.IsInf(maturity, 1) {
		return FitResult{}, fmt.Errorf("%w: %v", ErrInvalidMaturity, maturity)
	}

	target := make([]float64, len(quotes))
	for i, q := range quotes {
		if !(q.ImpliedVol > 0) || math.IsInf(q.ImpliedVol, 0) || math.IsNaN(q.LogMoneyness) {
			return FitResult{}, fmt.Errorf("%w: quote %d (k=%v, vol=%v)", ErrInvalidQuote, i, q.LogMoneyness, q.ImpliedVol)
		}
		target[i] = q.ImpliedVol * q.ImpliedVol * maturity
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			p := toSVI(x)
			loss := 0.0
			for i, q := range quotes {
				d := p.ImpliedVariance(q.LogMoneyness) - target[i]
				loss += d * d
			}
			return loss / float64(len(quotes))
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: 20000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-16,
			Iterations: 300,
		},
	}

	x := fromSVI(initialGuess(quotes, maturity))
	best := math.Inf(1)
	evals := 0

	for round := 0; round < fitRounds; round++ {
		res, err := optimize.Minimize(problem, x, settings, &optimize.NelderMead{})
		if res == nil {
			return FitResult{}, fmt.Errorf("svi fit: %w", err)
		}
		evals += res.Stats.FuncEvaluations

		// evaluation limits still leave a usable optimum in res
		if res.F < best {
			best = res.F
			x = res.X
		}
	}

	if math.IsNaN(best) || math.IsInf(best, 0) {
		return FitResult{}, fmt.Errorf("svi fit: loss did not converge to a finite value")
	}

	params := toSVI(x)
	if !params.IsArbitrageFree() {
		return FitResult{}, fmt.Errorf("%w: %s", ErrCalibratedArbitrage, params)
	}

	return FitResult{Params: params, RMSE: math.Sqrt(best), Evals: evals}, nil
}
