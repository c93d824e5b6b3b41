// Package engine prices batches of option contracts and analyzes option
// chains on top of the pricing and volatility packages.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jwaldner/greeks/internal/logger"
	"github.com/jwaldner/greeks/pricing"
)

// DefaultVolatility is used for a contract flagged VolatilityUnknown that has
// no market price that can be inverted.
const DefaultVolatility = 0.25

const defaultBatchSize = 256

var ErrInvalidOptionType = errors.New("option type must be 'C' or 'P'")

// OptionContract represents an options contract
type OptionContract struct {
	Symbol           string  `json:"symbol"`
	StrikePrice      float64 `json:"strike_price"`
	UnderlyingPrice  float64 `json:"underlying_price"`
	TimeToExpiration float64 `json:"time_to_expiration"`
	RiskFreeRate     float64 `json:"risk_free_rate"`
	DividendYield    float64 `json:"dividend_yield"`
	Volatility       float64 `json:"volatility"`
	OptionType       byte    `json:"option_type"` // 'C' or 'P'
	MarketPrice      float64 `json:"market_price,omitempty"`

	// VolatilityUnknown marks Volatility as unset. The engine then prices at
	// the volatility implied by MarketPrice, or DefaultVolatility. A zero
	// Volatility without this flag is priced as zero.
	VolatilityUnknown bool `json:"volatility_unknown,omitempty"`

	// Output Greeks
	Delta            float64 `json:"delta"`
	Gamma            float64 `json:"gamma"`
	Theta            float64 `json:"theta"`
	Vega             float64 `json:"vega"`
	Rho              float64 `json:"rho"`
	TheoreticalPrice float64 `json:"theoretical_price"`
	ImpliedVol       float64 `json:"implied_vol"` // NaN when not solved
}

// Params converts the contract inputs to pricing parameters
func (c OptionContract) Params() pricing.Params {
	return pricing.NewParams(c.UnderlyingPrice, c.StrikePrice, c.TimeToExpiration,
		c.Volatility, c.RiskFreeRate, c.DividendYield)
}

// Type maps the 'C'/'P' byte to a pricing.OptionType
func (c OptionContract) Type() (pricing.OptionType, error) {
	switch c.OptionType {
	case 'C', 'c':
		return pricing.Call, nil
	case 'P', 'p':
		return pricing.Put, nil
	}
	return pricing.Call, fmt.Errorf("%w: got %q", ErrInvalidOptionType, c.OptionType)
}

// ExecutionMode defines how calculations are performed
type ExecutionMode string

const (
	ExecutionModeAuto     ExecutionMode = "auto"
	ExecutionModeCPU      ExecutionMode = "cpu"
	ExecutionModeParallel ExecutionMode = "parallel"
)

// ParseExecutionMode accepts auto, cpu and parallel
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch m := ExecutionMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ExecutionModeAuto, ExecutionModeCPU, ExecutionModeParallel:
		return m, nil
	case "":
		return ExecutionModeAuto, nil
	}
	return "", fmt.Errorf("unknown execution mode %q", s)
}

// Observer receives one call per priced batch
type Observer interface {
	ObserveBatch(mode ExecutionMode, contracts int, elapsed time.Duration)
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Mode      ExecutionMode
	Workers   int
	BatchSize int
	Bumps     pricing.Bumps
	Observer  Observer
}

// Engine prices option contracts sequentially or on a bounded worker pool
type Engine struct {
	executionMode ExecutionMode
	workers       int
	batchSize     int
	bumps         pricing.Bumps
	observer      Observer
}

// New creates an engine
func New(opts Options) *Engine {
	e := &Engine{
		executionMode: opts.Mode,
		workers:       opts.Workers,
		batchSize:     opts.BatchSize,
		bumps:         opts.Bumps,
		observer:      opts.Observer,
	}
	if e.executionMode == "" {
		e.executionMode = ExecutionModeAuto
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	if e.batchSize <= 0 {
		e.batchSize = defaultBatchSize
	}
	return e
}

// NewForced creates engine with forced execution mode
func NewForced(mode string) *Engine {
	m, err := ParseExecutionMode(mode)
	if err != nil {
		m = ExecutionModeAuto
	}
	return New(Options{Mode: m})
}

// SetObserver replaces the batch observer
func (e *Engine) SetObserver(o Observer) {
	e.observer = o
}

// ExecutionMode returns the configured mode
func (e *Engine) ExecutionMode() ExecutionMode {
	return e.executionMode
}

// Workers returns the parallel worker limit
func (e *Engine) Workers() int {
	return e.workers
}

// ModeFor resolves auto to the mode used for n contracts
func (e *Engine) ModeFor(n int) ExecutionMode {
	if e.executionMode != ExecutionModeAuto {
		return e.executionMode
	}
	if e.workers > 1 && n > e.batchSize {
		return ExecutionModeParallel
	}
	return ExecutionModeCPU
}

// CalculateBlackScholes prices every contract and returns priced copies in
// input order. Contracts with a market price get an implied volatility; if
// they carry no volatility the solved one is used for the Greeks.
func (e *Engine) CalculateBlackScholes(ctx context.Context, contracts []OptionContract) ([]OptionContract, error) {
	if len(contracts) == 0 {
		return contracts, nil
	}

	results := make([]OptionContract, len(contracts))
	copy(results, contracts)

	mode := e.ModeFor(len(results))
	start := time.Now()

	var err error
	if mode == ExecutionModeParallel {
		err = e.calculateParallel(ctx, results)
	} else {
		err = e.calculateSequential(ctx, results)
	}
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	if e.observer != nil {
		e.observer.ObserveBatch(mode, len(results), elapsed)
	}
	logger.Verbose.Printf("⚡ priced %d contracts in %.3fms (%s)", len(results), elapsed.Seconds()*1000, mode)

	return results, nil
}

func (e *Engine) calculateSequential(ctx context.Context, contracts []OptionContract) error {
	for i := range contracts {
		if i%e.batchSize == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := e.priceContract(&contracts[i]); err != nil {
			return fmt.Errorf("contract %d (%s): %w", i, contracts[i].Symbol, err)
		}
	}
	return nil
}

func (e *Engine) calculateParallel(ctx context.Context, contracts []OptionContract) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for lo := 0; lo < len(contracts); lo += e.batchSize {
		if err := ctx.Err(); err != nil {
			break
		}
		lo, hi := lo, min(lo+e.batchSize, len(contracts))

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				if err := e.priceContract(&contracts[i]); err != nil {
					return fmt.Errorf("contract %d (%s): %w", i, contracts[i].Symbol, err)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	// a cancellation seen by the loop above may not have reached any worker
	return ctx.Err()
}

// priceContract fills the outputs of c in place
func (e *Engine) priceContract(c *OptionContract) error {
	optionType, err := c.Type()
	if err != nil {
		return err
	}

	c.ImpliedVol = math.NaN()
	if c.MarketPrice > 0 {
		if iv, err := pricing.ImpliedVolatility(c.MarketPrice, c.Params(), optionType); err == nil {
			c.ImpliedVol = iv
		} else {
			logger.Debug.Printf("%s %c K=%.2f: implied vol: %v", c.Symbol, c.OptionType, c.StrikePrice, err)
		}
	}

	if c.VolatilityUnknown {
		c.Volatility = DefaultVolatility
		if !math.IsNaN(c.ImpliedVol) {
			c.Volatility = c.ImpliedVol
		}
		c.VolatilityUnknown = false
	}

	g := pricing.CalculateGreeksWithBumps(c.Params(), optionType, e.bumps)
	c.TheoreticalPrice = g.Price
	c.Delta = g.Delta
	c.Gamma = g.Gamma
	c.Vega = g.Vega
	c.Theta = g.Theta
	c.Rho = g.Rho
	return nil
}
