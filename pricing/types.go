package pricing

import (
	"fmt"
	"strings"
)

// OptionType selects the payoff: Call or Put
type OptionType int

const (
	Call OptionType = iota
	Put
)

func (t OptionType) String() string {
	if t == Put {
		return "put"
	}
	return "call"
}

// IsCall reports whether t is a call
func (t OptionType) IsCall() bool {
	return t == Call
}

// ParseOptionType accepts "call"/"c" and "put"/"p" in any case
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c", "calls":
		return Call, nil
	case "put", "p", "puts":
		return Put, nil
	}
	return Call, fmt.Errorf("unknown option type %q", s)
}

// Params holds the Black-Scholes-Merton inputs for one pricing request.
// TimeToMaturity is in years and Volatility is annualized.
type Params struct {
	Spot           float64
	Strike         float64
	TimeToMaturity float64
	Volatility     float64
	RiskFreeRate   float64
	DividendYield  float64
}

// NewParams creates pricing parameters
func NewParams(spot, strike, timeToMaturity, volatility, riskFreeRate, dividendYield float64) Params {
	return Params{
		Spot:           spot,
		Strike:         strike,
		TimeToMaturity: timeToMaturity,
		Volatility:     volatility,
		RiskFreeRate:   riskFreeRate,
		DividendYield:  dividendYield,
	}
}

// Greeks for an option
type Greeks struct {
	Price float64 `json:"price"`
	Delta float64 `json:"delta"` // ∂V/∂S
	Gamma float64 `json:"gamma"` // ∂²V/∂S²
	Vega  float64 `json:"vega"`  // ∂V/∂σ
	Theta float64 `json:"theta"` // price change per year of elapsed time
	Rho   float64 `json:"rho"`   // ∂V/∂r
}

// OptionData is market data for a single option
type OptionData struct {
	Strike            float64
	TimeToMaturity    float64
	ImpliedVolatility float64
	Type              OptionType
}

// Params combines the option data with the market inputs
func (o OptionData) Params(spot, riskFreeRate, dividendYield float64) Params {
	return NewParams(spot, o.Strike, o.TimeToMaturity, o.ImpliedVolatility, riskFreeRate, dividendYield)
}

// Bumps are the finite-difference step sizes used for gamma, theta and rho.
type Bumps struct {
	Spot float64 // spot units, gamma
	Time float64 // years, theta
	Rate float64 // absolute rate, rho
}

// DefaultBumps: one cent of spot, one calendar day, one basis point
func DefaultBumps() Bumps {
	return Bumps{
		Spot: 0.01,
		Time: 1.0 / 365.0,
		Rate: 0.0001,
	}
}

// orDefault fills zero or negative fields with the default step
func (b Bumps) orDefault() Bumps {
	d := DefaultBumps()
	if b.Spot <= 0 {
		b.Spot = d.Spot
	}
	if b.Time <= 0 {
		b.Time = d.Time
	}
	if b.Rate <= 0 {
		b.Rate = d.Rate
	}
	return b
}
