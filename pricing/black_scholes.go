// Package pricing prices European options under Black-Scholes-Merton with a
// continuous dividend yield and computes their Greeks.
//
// Delta and vega come from a single dual-number pass each (spot or volatility
// marked as the variable). Gamma, theta and rho are finite differences: gamma
// bumps spot around two delta passes, theta shortens maturity by one day and
// rho bumps the rate by one basis point.
package pricing

import (
	"math"

	"github.com/jwaldner/greeks/ad"
)

// d1 = [ln(S/K) + (r - q + σ²/2)T] / (σ sqrt(T))
func d1(s ad.Dual, k, t float64, sigma ad.Dual, r, q float64) ad.Dual {
	drift := sigma.Square().MulScalar(0.5).AddScalar(r - q).MulScalar(t)
	return s.DivScalar(k).Ln().Add(drift).Div(sigma.MulScalar(math.Sqrt(t)))
}

// d2 = d1 - σ sqrt(T)
func d2(d1 ad.Dual, sigma ad.Dual, t float64) ad.Dual {
	return d1.Sub(sigma.MulScalar(math.Sqrt(t)))
}

// callPrice = S e^(-qT) N(d1) - K e^(-rT) N(d2)
func callPrice(s ad.Dual, k, t float64, sigma ad.Dual, r, q float64) ad.Dual {
	d1v := d1(s, k, t, sigma, r, q)
	d2v := d2(d1v, sigma, t)

	discount := math.Exp(-r * t)
	carry := math.Exp(-q * t)

	return s.MulScalar(carry).Mul(ad.NormCDF(d1v)).Sub(ad.NormCDF(d2v).MulScalar(k * discount))
}

// putPrice = K e^(-rT) N(-d2) - S e^(-qT) N(-d1)
func putPrice(s ad.Dual, k, t float64, sigma ad.Dual, r, q float64) ad.Dual {
	d1v := d1(s, k, t, sigma, r, q)
	d2v := d2(d1v, sigma, t)

	discount := math.Exp(-r * t)
	carry := math.Exp(-q * t)

	return ad.NormCDF(d2v.Neg()).MulScalar(k * discount).Sub(s.MulScalar(carry).Mul(ad.NormCDF(d1v.Neg())))
}

// evaluate prices p with the given dual spot and volatility. Which one carries
// the derivative decides the sensitivity in the result.
func evaluate(p Params, optionType OptionType, s, sigma ad.Dual) ad.Dual {
	if optionType == Put {
		return putPrice(s, p.Strike, p.TimeToMaturity, sigma, p.RiskFreeRate, p.DividendYield)
	}
	return callPrice(s, p.Strike, p.TimeToMaturity, sigma, p.RiskFreeRate, p.DividendYield)
}

// Price evaluates the option value with every input held constant
func Price(p Params, optionType OptionType) float64 {
	return evaluate(p, optionType, ad.Constant(p.Spot), ad.Constant(p.Volatility)).Value
}

// spotPass returns price and delta at the given spot
func spotPass(p Params, optionType OptionType, spot float64) ad.Dual {
	return evaluate(p, optionType, ad.Variable(spot), ad.Constant(p.Volatility))
}

// CalculateGreeks computes price and all Greeks with the default bumps.
// There is no error path: invalid inputs (T <= 0, strike <= 0, ...) surface as
// NaN or Inf in the result.
func CalculateGreeks(p Params, optionType OptionType) Greeks {
	return CalculateGreeksWithBumps(p, optionType, DefaultBumps())
}

// CalculateGreeksWithBumps is CalculateGreeks with caller-chosen
// finite-difference steps. Zero steps fall back to the defaults.
func CalculateGreeksWithBumps(p Params, optionType OptionType, b Bumps) Greeks {
	b = b.orDefault()

	// Price and delta: spot is the variable
	base := spotPass(p, optionType, p.Spot)

	// Gamma: central difference on the AD delta
	deltaUp := spotPass(p, optionType, p.Spot+b.Spot).Deriv
	deltaDown := spotPass(p, optionType, p.Spot-b.Spot).Deriv
	gamma := (deltaUp - deltaDown) / (2 * b.Spot)

	// Vega: volatility is the variable
	vega := evaluate(p, optionType, ad.Constant(p.Spot), ad.Variable(p.Volatility)).Deriv

	return Greeks{
		Price: base.Value,
		Delta: base.Deriv,
		Gamma: gamma,
		Vega:  vega,
		Theta: theta(p, optionType, b.Time),
		Rho:   rho(p, optionType, b.Rate),
	}
}

// theta is the price change when maturity shortens by dt, per year.
func theta(p Params, optionType OptionType, dt float64) float64 {
	now := Price(p, optionType)

	later := p
	later.TimeToMaturity -= dt

	return (Price(later, optionType) - now) / dt
}

// rho is a forward difference in the risk-free rate
func rho(p Params, optionType OptionType, dr float64) float64 {
	base := Price(p, optionType)

	bumped := p
	bumped.RiskFreeRate += dr

	return (Price(bumped, optionType) - base) / dr
}

// ParityGap returns C - P - (S e^(-qT) - K e^(-rT)), zero for consistent prices.
func ParityGap(call, put Greeks, p Params) float64 {
	forward := p.Spot*math.Exp(-p.DividendYield*p.TimeToMaturity) -
		p.Strike*math.Exp(-p.RiskFreeRate*p.TimeToMaturity)
	return call.Price - put.Price - forward
}
