// Package volatility models implied volatility with the SVI (Stochastic
// Volatility Inspired) parameterization and assembles per-maturity slices into
// a surface.
//
// A slice gives total implied variance as a function of log-moneyness
// k = ln(K/S):
//
//	w(k) = a + b * (rho*(k - m) + sqrt((k - m)^2 + sigma^2))
package volatility

import (
	"fmt"
	"math"
)

// ButterflySlopeBound caps |dw/dk| in CheckButterflyArbitrage. It is a
// heuristic threshold, not a derived no-arbitrage bound.
var ButterflySlopeBound = 4.0

// SVIParams holds the raw SVI parameters of one maturity slice
type SVIParams struct {
	A     float64 `json:"a"`     // variance level
	B     float64 `json:"b"`     // wing slope
	Rho   float64 `json:"rho"`   // skew, -1 < rho < 1
	M     float64 `json:"m"`     // horizontal shift
	Sigma float64 `json:"sigma"` // ATM curvature, > 0
}

// NewSVIParams creates raw SVI parameters
func NewSVIParams(a, b, rho, m, sigma float64) SVIParams {
	return SVIParams{A: a, B: b, Rho: rho, M: m, Sigma: sigma}
}

func (p SVIParams) String() string {
	return fmt.Sprintf("SVI{a=%.6f b=%.6f rho=%.4f m=%.4f sigma=%.4f}", p.A, p.B, p.Rho, p.M, p.Sigma)
}

// ImpliedVariance returns the total implied variance w(k)
func (p SVIParams) ImpliedVariance(logMoneyness float64) float64 {
	x := logMoneyness - p.M
	return p.A + p.B*(p.Rho*x+math.Sqrt(x*x+p.Sigma*p.Sigma))
}

// ImpliedVolatility returns sqrt(w(k)/T). T must be positive; T == 0
// yields +Inf.
func (p SVIParams) ImpliedVolatility(logMoneyness, timeToMaturity float64) float64 {
	return math.Sqrt(p.ImpliedVariance(logMoneyness) / timeToMaturity)
}

// MinimumVariance is the lowest total variance of the slice,
// a + b*sigma*sqrt(1 - rho^2).
func (p SVIParams) MinimumVariance() float64 {
	return p.A + p.B*p.Sigma*math.Sqrt(1-p.Rho*p.Rho)
}

// IsArbitrageFree checks the slice constraints: b >= 0, -1 < rho < 1,
// sigma > 0 and a non-negative minimum variance.
func (p SVIParams) IsArbitrageFree() bool {
	if !(p.B >= 0) {
		return false
	}
	if !(p.Rho > -1 && p.Rho < 1) {
		return false
	}
	if !(p.Sigma > 0) {
		return false
	}
	return p.MinimumVariance() >= 0
}

// CheckButterflyArbitrage reports whether w is convex at k and its slope stays
// below ButterflySlopeBound. This is an approximate density check at a
// single point.
func (p SVIParams) CheckButterflyArbitrage(logMoneyness float64) bool {
	return p.CheckButterflyArbitrageBound(logMoneyness, ButterflySlopeBound)
}

// CheckButterflyArbitrageBound is CheckButterflyArbitrage with an explicit
// slope bound.
func (p SVIParams) CheckButterflyArbitrageBound(logMoneyness, bound float64) bool {
	x := logMoneyness - p.M
	sigmaSq := p.Sigma * p.Sigma
	root := math.Sqrt(x*x + sigmaSq)

	dw := p.B * (p.Rho + x/root)
	d2w := p.B * sigmaSq / (root * root * root)

	return d2w >= 0 && math.Abs(dw) < bound
}

// SVIJWParams is the jump-wings form of a slice, expressed in quantities
// traders quote directly.
type SVIJWParams struct {
	VT     float64 `json:"v_t"`     // ATM total variance
	Psi    float64 `json:"psi"`     // ATM skew
	P      float64 `json:"p"`       // put wing slope
	C      float64 `json:"c"`       // call wing slope
	VTilde float64 `json:"v_tilde"` // minimum total variance
}

// ToSVI converts jump-wings parameters to raw SVI
func (jw SVIJWParams) ToSVI() SVIParams {
	b := 0.5 * (jw.C + jw.P)
	rho := 1 - jw.P/b
	beta := rho - 2*jw.Psi*math.Sqrt(jw.VT)/b
	alpha := math.Sqrt(jw.VTilde) * math.Sqrt(1-beta*beta)
	m := (jw.VT - alpha*alpha) / (2 * b * (rho + beta))
	sigma := alpha / (b * math.Sqrt(1-beta*beta))
	a := jw.VTilde - b*sigma*math.Sqrt(1-rho*rho)

	return SVIParams{A: a, B: b, Rho: rho, M: m, Sigma: sigma}
}
