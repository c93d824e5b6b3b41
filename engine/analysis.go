package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jwaldner/greeks/internal/logger"
)

var ErrNoVolatility = errors.New("volatility source returned no value")

// VolatilitySource supplies implied volatility by strike and maturity.
// *volatility.Surface satisfies it.
type VolatilitySource interface {
	ImpliedVolatility(strike, spot, maturity float64) (float64, bool)
}

// ChainRequest describes one expiration of an option chain
type ChainRequest struct {
	Symbol        string    `json:"symbol"`
	Expiration    string    `json:"expiration,omitempty"`
	Spot          float64   `json:"spot"`
	Maturity      float64   `json:"maturity"`
	Strikes       []float64 `json:"strikes"`
	RiskFreeRate  float64   `json:"risk_free_rate"`
	DividendYield float64   `json:"dividend_yield"`
}

// VolatilitySkew is the 25-delta risk reversal of a chain
type VolatilitySkew struct {
	Put25DIV   float64 `json:"put_25d_iv"`
	Call25DIV  float64 `json:"call_25d_iv"`
	Skew       float64 `json:"skew"` // put minus call
	PutStrike  float64 `json:"put_strike"`
	CallStrike float64 `json:"call_strike"`
	PutDelta   float64 `json:"put_delta"`
	CallDelta  float64 `json:"call_delta"`
}

// PhaseTimings splits analysis time by phase, in milliseconds
type PhaseTimings struct {
	PreprocessMs   float64 `json:"preprocess_ms"`
	BlackScholesMs float64 `json:"black_scholes_ms"`
	SkewMs         float64 `json:"skew_ms"`
	TotalMs        float64 `json:"total_ms"`
}

// ChainAnalysis is the priced chain for one symbol and expiration
type ChainAnalysis struct {
	Symbol                string           `json:"symbol"`
	Expiration            string           `json:"expiration,omitempty"`
	StockPrice            float64          `json:"stock_price"`
	Maturity              float64          `json:"maturity"`
	ExecutionMode         ExecutionMode    `json:"execution_mode"`
	Puts                  []OptionContract `json:"puts"`
	Calls                 []OptionContract `json:"calls"`
	VolatilitySkew        *VolatilitySkew  `json:"volatility_skew,omitempty"`
	TotalOptionsProcessed int              `json:"total_options_processed"`
	Timings               PhaseTimings     `json:"timings"`
}

// AnalyzeChain prices a put and a call at every strike with volatilities
// from vols and computes the 25-delta skew.
func (e *Engine) AnalyzeChain(ctx context.Context, vols VolatilitySource, req ChainRequest) (*ChainAnalysis, error) {
	result := &ChainAnalysis{
		Symbol:     req.Symbol,
		Expiration: req.Expiration,
		StockPrice: req.Spot,
		Maturity:   req.Maturity,
	}

	// PHASE 1: build contracts from the surface
	preprocessStart := time.Now()

	contracts := make([]OptionContract, 0, 2*len(req.Strikes))
	for _, strike := range req.Strikes {
		vol, ok := vols.ImpliedVolatility(strike, req.Spot, req.Maturity)
		if !ok {
			return nil, fmt.Errorf("%w: %s K=%.2f T=%.4f", ErrNoVolatility, req.Symbol, strike, req.Maturity)
		}

		for _, optionType := range []byte{'P', 'C'} {
			contracts = append(contracts, OptionContract{
				Symbol:           req.Symbol,
				StrikePrice:      strike,
				UnderlyingPrice:  req.Spot,
				TimeToExpiration: req.Maturity,
				RiskFreeRate:     req.RiskFreeRate,
				DividendYield:    req.DividendYield,
				Volatility:       vol,
				OptionType:       optionType,
			})
		}
	}
	result.ExecutionMode = e.ModeFor(len(contracts))
	result.Timings.PreprocessMs = msSince(preprocessStart)

	logger.Debug.Printf("🔧 PREPROCESS %s: %.3fms | %d strikes → %d contracts | Mode: %s",
		req.Symbol, result.Timings.PreprocessMs, len(req.Strikes), len(contracts), result.ExecutionMode)

	// PHASE 2: Black-Scholes
	blackScholesStart := time.Now()

	priced, err := e.CalculateBlackScholes(ctx, contracts)
	if err != nil {
		return nil, err
	}
	for _, c := range priced {
		if c.OptionType == 'P' {
			result.Puts = append(result.Puts, c)
		} else {
			result.Calls = append(result.Calls, c)
		}
	}
	result.Timings.BlackScholesMs = msSince(blackScholesStart)

	logger.Debug.Printf("⚡ BLACK-SCHOLES %s: %.3fms | %d puts + %d calls",
		req.Symbol, result.Timings.BlackScholesMs, len(result.Puts), len(result.Calls))

	// PHASE 3: 25-delta skew
	if len(result.Puts) > 0 && len(result.Calls) > 0 {
		skewStart := time.Now()
		result.VolatilitySkew = calculate25DeltaSkew(result.Puts, result.Calls)
		result.Timings.SkewMs = msSince(skewStart)

		logger.Debug.Printf("📊 SKEW CALC %s: %.3fms | %.4f skew (%.4f put - %.4f call)",
			req.Symbol, result.Timings.SkewMs, result.VolatilitySkew.Skew,
			result.VolatilitySkew.Put25DIV, result.VolatilitySkew.Call25DIV)
	}

	result.TotalOptionsProcessed = len(result.Puts) + len(result.Calls)
	result.Timings.TotalMs = result.Timings.PreprocessMs + result.Timings.BlackScholesMs + result.Timings.SkewMs
	return result, nil
}

// AnalyzeChains runs AnalyzeChain for every request and logs a summary.
// A failing request is logged and skipped.
func (e *Engine) AnalyzeChains(ctx context.Context, vols VolatilitySource, reqs []ChainRequest) ([]*ChainAnalysis, error) {
	var results []*ChainAnalysis
	var total PhaseTimings

	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res, err := e.AnalyzeChain(ctx, vols, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return results, ctxErr
			}
			logger.Warn.Printf("skipping %s: %v", req.Symbol, err)
			continue
		}

		total.PreprocessMs += res.Timings.PreprocessMs
		total.BlackScholesMs += res.Timings.BlackScholesMs
		total.SkewMs += res.Timings.SkewMs
		results = append(results, res)
	}
	total.TotalMs = total.PreprocessMs + total.BlackScholesMs + total.SkewMs

	if total.TotalMs > 0 {
		logger.Verbose.Printf("📈 PERFORMANCE SUMMARY: %d chains", len(results))
		logger.Verbose.Printf("  📦 Preprocessing: %.3fms (%.1f%%)", total.PreprocessMs, total.PreprocessMs/total.TotalMs*100)
		logger.Verbose.Printf("  ⚡ Black-Scholes: %.3fms (%.1f%%)", total.BlackScholesMs, total.BlackScholesMs/total.TotalMs*100)
		logger.Verbose.Printf("  📊 Skew Calc:     %.3fms (%.1f%%)", total.SkewMs, total.SkewMs/total.TotalMs*100)
	}

	return results, nil
}

// calculate25DeltaSkew picks the put and the call whose |delta| is nearest
// 0.25 and returns put IV minus call IV.
func calculate25DeltaSkew(puts, calls []OptionContract) *VolatilitySkew {
	put := nearestDelta(puts, 0.25)
	call := nearestDelta(calls, 0.25)

	skew := &VolatilitySkew{
		Put25DIV:   contractVol(put),
		Call25DIV:  contractVol(call),
		PutStrike:  put.StrikePrice,
		CallStrike: call.StrikePrice,
		PutDelta:   put.Delta,
		CallDelta:  call.Delta,
	}
	skew.Skew = skew.Put25DIV - skew.Call25DIV
	return skew
}

func nearestDelta(contracts []OptionContract, target float64) OptionContract {
	best := contracts[0]
	bestDist := math.Inf(1)
	for _, c := range contracts {
		if d := math.Abs(math.Abs(c.Delta) - target); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// contractVol prefers a solved implied vol over the input volatility
func contractVol(c OptionContract) float64 {
	if !math.IsNaN(c.ImpliedVol) && c.ImpliedVol > 0 {
		return c.ImpliedVol
	}
	return c.Volatility
}

func msSince(t time.Time) float64 {
	return time.Since(t).Seconds() * 1000
}
