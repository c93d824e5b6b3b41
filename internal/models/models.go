package models

import (
	"math"
	"strconv"

	"github.com/jwaldner/greeks/volatility"
)

// Float encodes NaN and ±Inf as null instead of failing the whole response
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

// FieldValue represents a field with both raw data and formatted display
type FieldValue struct {
	Raw     interface{} `json:"raw"`     // For CSV/sorting: 1234.56
	Display string      `json:"display"` // For UI: "$1,234.56"
	Type    string      `json:"type"`    // For CSS: "currency"
}

// GreeksRequest prices one option. Either time_to_maturity or expiration
// (YYYY-MM-DD) must be set; risk_free_rate falls back to the server's source.
type GreeksRequest struct {
	Symbol         string   `json:"symbol"`
	Spot           float64  `json:"spot" validate:"required,gt=0"`
	Strike         float64  `json:"strike" validate:"required,gt=0"`
	TimeToMaturity float64  `json:"time_to_maturity" validate:"required_without=Expiration,gte=0"`
	Expiration     string   `json:"expiration,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Volatility     *float64 `json:"volatility" validate:"required,gte=0"`
	RiskFreeRate   *float64 `json:"risk_free_rate,omitempty"`
	DividendYield  float64  `json:"dividend_yield" validate:"gte=0"`
	OptionType     string   `json:"option_type" validate:"required,oneof=call put c p C P"`
}

// GreeksResponse carries raw values plus display strings under Formatted
type GreeksResponse struct {
	Symbol         string                `json:"symbol,omitempty"`
	OptionType     string                `json:"option_type"`
	Spot           float64               `json:"spot"`
	Strike         float64               `json:"strike"`
	TimeToMaturity Float                 `json:"time_to_maturity"`
	Volatility     float64               `json:"volatility"`
	RiskFreeRate   float64               `json:"risk_free_rate"`
	DividendYield  float64               `json:"dividend_yield"`
	Price          Float                 `json:"price"`
	Delta          Float                 `json:"delta"`
	Gamma          Float                 `json:"gamma"`
	Vega           Float                 `json:"vega"`
	Theta          Float                 `json:"theta"`
	Rho            Float                 `json:"rho"`
	Formatted      map[string]FieldValue `json:"formatted,omitempty"`
}

// BatchCalculationRequest for batch Greeks
type BatchCalculationRequest struct {
	Calculations []GreeksRequest `json:"calculations" validate:"required,min=1,max=20000,dive"`
}

// BatchCalculationResponse for batch Greeks
type BatchCalculationResponse struct {
	Results           []GreeksResponse `json:"results"`
	TotalCalculations int              `json:"total_calculations"`
	ProcessedInMs     float64          `json:"processed_in_ms"`
	ExecutionMode     string           `json:"execution_mode"`
}

// ImpliedVolRequest inverts a market price
type ImpliedVolRequest struct {
	Symbol         string   `json:"symbol"`
	MarketPrice    float64  `json:"market_price" validate:"required,gt=0"`
	Spot           float64  `json:"spot" validate:"required,gt=0"`
	Strike         float64  `json:"strike" validate:"required,gt=0"`
	TimeToMaturity float64  `json:"time_to_maturity" validate:"required_without=Expiration,gte=0"`
	Expiration     string   `json:"expiration,omitempty" validate:"omitempty,datetime=2006-01-02"`
	RiskFreeRate   *float64 `json:"risk_free_rate,omitempty"`
	DividendYield  float64  `json:"dividend_yield" validate:"gte=0"`
	OptionType     string   `json:"option_type" validate:"required,oneof=call put c p C P"`
}

type ImpliedVolResponse struct {
	Symbol            string  `json:"symbol,omitempty"`
	OptionType        string  `json:"option_type"`
	MarketPrice       float64 `json:"market_price"`
	ImpliedVolatility float64 `json:"implied_volatility"`
	TimeToMaturity    float64 `json:"time_to_maturity"`
	RiskFreeRate      float64 `json:"risk_free_rate"`
	Vega              Float   `json:"vega"`
}

// SurfaceSliceRequest adds or replaces a maturity slice. Raw params take
// precedence over jw when both are sent.
type SurfaceSliceRequest struct {
	Maturity float64                 `json:"maturity" validate:"required,gt=0"`
	Params   *volatility.SVIParams   `json:"params,omitempty" validate:"required_without=JW"`
	JW       *volatility.SVIJWParams `json:"jw,omitempty"`
}

type SurfaceSliceResponse struct {
	Maturity             float64              `json:"maturity"`
	Params               volatility.SVIParams `json:"params"`
	NumSlices            int                  `json:"num_slices"`
	SliceArbitrageFree   bool                 `json:"slice_arbitrage_free"`
	ButterflyOK          bool                 `json:"butterfly_ok"`
	SurfaceArbitrageFree bool                 `json:"surface_arbitrage_free"`
}

// SurfaceFitRequest calibrates one slice from implied vol quotes
type SurfaceFitRequest struct {
	Maturity float64            `json:"maturity" validate:"required,gt=0"`
	Quotes   []volatility.Quote `json:"quotes" validate:"required,min=5"`
}

type SurfaceFitResponse struct {
	SurfaceSliceResponse
	RMSE  float64 `json:"rmse"`
	Evals int     `json:"evals"`
}

type SurfaceResponse struct {
	Slices        []volatility.MaturitySlice `json:"slices"`
	NumSlices     int                        `json:"num_slices"`
	ArbitrageFree bool                       `json:"arbitrage_free"`
}

type SurfaceVolResponse struct {
	Strike            float64 `json:"strike"`
	Spot              float64 `json:"spot"`
	Maturity          float64 `json:"maturity"`
	ImpliedVolatility Float   `json:"implied_volatility"`
}

// ChainRequest prices puts and calls at every strike off the server surface
type ChainRequest struct {
	Symbol        string    `json:"symbol" validate:"required"`
	Spot          float64   `json:"spot" validate:"required,gt=0"`
	Maturity      float64   `json:"maturity" validate:"required_without=Expiration,gte=0"`
	Expiration    string    `json:"expiration,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Strikes       []float64 `json:"strikes" validate:"required,min=1,dive,gt=0"`
	RiskFreeRate  *float64  `json:"risk_free_rate,omitempty"`
	DividendYield float64   `json:"dividend_yield" validate:"gte=0"`
}

// ContractResult is one priced contract of a chain
type ContractResult struct {
	Strike     float64 `json:"strike"`
	OptionType string  `json:"option_type"`
	Volatility float64 `json:"volatility"`
	Price      Float   `json:"price"`
	Delta      Float   `json:"delta"`
	Gamma      Float   `json:"gamma"`
	Vega       Float   `json:"vega"`
	Theta      Float   `json:"theta"`
	Rho        Float   `json:"rho"`
}

type SkewResult struct {
	Put25DIV   Float   `json:"put_25d_iv"`
	Call25DIV  Float   `json:"call_25d_iv"`
	Skew       Float   `json:"skew"`
	PutStrike  float64 `json:"put_strike"`
	CallStrike float64 `json:"call_strike"`
}

type ChainResponse struct {
	Symbol        string           `json:"symbol"`
	Expiration    string           `json:"expiration,omitempty"`
	Spot          float64          `json:"spot"`
	Maturity      float64          `json:"maturity"`
	RiskFreeRate  float64          `json:"risk_free_rate"`
	ExecutionMode string           `json:"execution_mode"`
	Puts          []ContractResult `json:"puts"`
	Calls         []ContractResult `json:"calls"`
	Skew          *SkewResult      `json:"volatility_skew,omitempty"`
	ProcessedInMs float64          `json:"processed_in_ms"`
}

type HealthResponse struct {
	Status        string  `json:"status"`
	ExecutionMode string  `json:"execution_mode"`
	Workers       int     `json:"workers"`
	SurfaceSlices int     `json:"surface_slices"`
	RiskFreeRate  float64 `json:"risk_free_rate"`
	Timestamp     string  `json:"timestamp"`
}

type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}
