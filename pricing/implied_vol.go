package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/jwaldner/greeks/ad"
)

var (
	ErrIVOutOfBounds   = errors.New("market price outside no-arbitrage bounds")
	ErrIVZeroVega      = errors.New("vega vanished during implied volatility search")
	ErrIVNoConvergence = errors.New("implied volatility did not converge")
)

const (
	ivTolerance     = 1e-8
	ivMaxIterations = 100
	ivMinVol        = 1e-4
	ivMaxVol        = 5.0
)

// priceBounds returns the no-arbitrage lower and upper price for p
func priceBounds(p Params, optionType OptionType) (lower, upper float64) {
	fwdSpot := p.Spot * math.Exp(-p.DividendYield*p.TimeToMaturity)
	pvStrike := p.Strike * math.Exp(-p.RiskFreeRate*p.TimeToMaturity)
	if optionType == Put {
		return math.Max(pvStrike-fwdSpot, 0), pvStrike
	}
	return math.Max(fwdSpot-pvStrike, 0), fwdSpot
}

// ImpliedVolatility inverts the pricing formula with Newton-Raphson. Each step
// takes its slope from the AD vega pass. The Volatility field of p is ignored.
func ImpliedVolatility(marketPrice float64, p Params, optionType OptionType) (float64, error) {
	lower, upper := priceBounds(p, optionType)
	if !(marketPrice > lower && marketPrice < upper) {
		return 0, fmt.Errorf("%w: price %.6f not in (%.6f, %.6f)", ErrIVOutOfBounds, marketPrice, lower, upper)
	}

	// Brenner-Subrahmanyam starting point
	vol := math.Sqrt(2*math.Pi/p.TimeToMaturity) * marketPrice / p.Spot
	vol = math.Max(0.01, math.Min(3.0, vol))

	for i := 0; i < ivMaxIterations; i++ {
		pass := evaluate(p, optionType, ad.Constant(p.Spot), ad.Variable(vol))

		diff := pass.Value - marketPrice
		if math.Abs(diff) < ivTolerance {
			return vol, nil
		}

		if !(pass.Deriv > 1e-12) {
			return vol, fmt.Errorf("%w: sigma=%.6f after %d iterations", ErrIVZeroVega, vol, i)
		}

		vol -= diff / pass.Deriv
		vol = math.Max(ivMinVol, math.Min(ivMaxVol, vol))
	}

	return vol, fmt.Errorf("%w after %d iterations (sigma=%.6f)", ErrIVNoConvergence, ivMaxIterations, vol)
}
