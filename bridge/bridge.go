// Package bridge exposes CalculateGreeks with plain scalar inputs and a
// generic structured result, for callers that cannot construct the pricing
// types themselves (scripts, JSON clients, foreign-function shims).
package bridge

import (
	"encoding/json"
	"math"

	"github.com/jwaldner/greeks/pricing"
)

// Result holds the price and the five Greeks of one calculation
type Result struct {
	Price float64
	Delta float64
	Gamma float64
	Vega  float64
	Theta float64
	Rho   float64
}

// Keys lists the field names used by Map and MarshalJSON, in output order
var Keys = []string{"price", "delta", "gamma", "vega", "theta", "rho"}

// CalculateGreeks prices a European option. isCall selects call or put.
// Like pricing.CalculateGreeks it never fails: invalid inputs show up as
// NaN or Inf fields.
func CalculateGreeks(spot, strike, maturity, volatility, rate, dividend float64, isCall bool) Result {
	optionType := pricing.Put
	if isCall {
		optionType = pricing.Call
	}

	g := pricing.CalculateGreeks(pricing.NewParams(spot, strike, maturity, volatility, rate, dividend), optionType)
	return Result{
		Price: g.Price,
		Delta: g.Delta,
		Gamma: g.Gamma,
		Vega:  g.Vega,
		Theta: g.Theta,
		Rho:   g.Rho,
	}
}

func (r Result) values() []float64 {
	return []float64{r.Price, r.Delta, r.Gamma, r.Vega, r.Theta, r.Rho}
}

// Map returns the result keyed by Keys
func (r Result) Map() map[string]any {
	out := make(map[string]any, len(Keys))
	for i, v := range r.values() {
		out[Keys[i]] = v
	}
	return out
}

// Finite reports whether every field is a finite number
func (r Result) Finite() bool {
	for _, v := range r.values() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// MarshalJSON writes the fields in Keys order, with NaN and Inf as null,
// which encoding/json would otherwise reject.
func (r Result) MarshalJSON() ([]byte, error) {
	finite := func(v float64) *float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return &v
	}
	return json.Marshal(struct {
		Price *float64 `json:"price"`
		Delta *float64 `json:"delta"`
		Gamma *float64 `json:"gamma"`
		Vega  *float64 `json:"vega"`
		Theta *float64 `json:"theta"`
		Rho   *float64 `json:"rho"`
	}{
		Price: finite(r.Price),
		Delta: finite(r.Delta),
		Gamma: finite(r.Gamma),
		Vega:  finite(r.Vega),
		Theta: finite(r.Theta),
		Rho:   finite(r.Rho),
	})
}
