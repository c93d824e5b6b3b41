package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/jwaldner/greeks/bridge"
	"github.com/jwaldner/greeks/engine"
	"github.com/jwaldner/greeks/internal/logger"
	"github.com/jwaldner/greeks/internal/utils"
	"github.com/jwaldner/greeks/pricing"
	"github.com/jwaldner/greeks/volatility"
)

func main() {
	if err := logger.InitWithOptions(logger.Options{Level: "info"}); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	fmt.Println("🧮 Greeks demo")
	fmt.Println("==============")

	p := pricing.NewParams(100, 100, 1, 0.2, 0.05, 0)
	call := pricing.CalculateGreeks(p, pricing.Call)
	put := pricing.CalculateGreeks(p, pricing.Put)

	fmt.Printf("\n📊 S=%.0f K=%.0f T=%.2f σ=%.2f r=%.2f\n", p.Spot, p.Strike, p.TimeToMaturity, p.Volatility, p.RiskFreeRate)
	fmt.Printf("%-6s %10s %10s %10s %10s %10s %10s\n", "", "price", "delta", "gamma", "vega", "theta", "rho")
	for _, row := range []struct {
		name string
		g    pricing.Greeks
	}{{"call", call}, {"put", put}} {
		fmt.Printf("%-6s %10.4f %10.4f %10.6f %10.4f %10.4f %10.4f\n",
			row.name, row.g.Price, row.g.Delta, row.g.Gamma, row.g.Vega, row.g.Theta, row.g.Rho)
	}
	fmt.Printf("put-call parity gap: %.2e\n", pricing.ParityGap(call, put, p))

	iv, err := pricing.ImpliedVolatility(call.Price, p, pricing.Call)
	if err != nil {
		log.Fatalf("implied vol: %v", err)
	}
	fmt.Printf("implied vol from the call price: %.6f\n", iv)

	// scalar entry point; the expired ATM case has no finite delta and encodes null
	enc := json.NewEncoder(os.Stdout)
	for _, T := range []float64{0.5, 0} {
		fmt.Printf("\n🔌 bridge T=%.1f: ", T)
		if err := enc.Encode(bridge.CalculateGreeks(100, 100, T, 0.2, 0.05, 0, true)); err != nil {
			log.Fatalf("encode: %v", err)
		}
	}

	// surface with a negative skew that steepens at the front
	surface := volatility.NewSurface()
	for _, slice := range []struct {
		maturity float64
		params   volatility.SVIParams
	}{
		{0.25, volatility.NewSVIParams(0.008, 0.04, -0.7, 0.0, 0.15)},
		{1.0, volatility.NewSVIParams(0.03, 0.1, -0.5, 0.05, 0.25)},
	} {
		surface.AddSlice(slice.maturity, slice.params)
	}

	fmt.Printf("\n🌊 surface: %d slices, arbitrage free: %v\n", surface.NumSlices(), surface.IsArbitrageFree())
	for _, T := range []float64{0.1, 0.25, 0.5, 1.0, 2.0} {
		fmt.Printf("  T=%.2f:", T)
		for _, K := range []float64{80, 90, 100, 110, 120} {
			vol, _ := surface.ImpliedVolatility(K, 100, T)
			fmt.Printf("  K=%.0f %.2f%%", K, vol*100)
		}
		fmt.Println()
	}

	// recalibrate a 6-month slice from quotes read off the surface
	var quotes []volatility.Quote
	for K := 70.0; K <= 130; K += 5 {
		vol, _ := surface.ImpliedVolatility(K, 100, 0.5)
		quotes = append(quotes, volatility.Quote{LogMoneyness: math.Log(K / 100), ImpliedVol: vol})
	}
	fit, err := volatility.FitSVI(quotes, 0.5)
	if err != nil {
		log.Fatalf("fit: %v", err)
	}
	fmt.Printf("\n🎯 fitted T=0.50: %s (rmse %.2e, %d evaluations)\n", fit.Params, fit.RMSE, fit.Evals)
	surface.AddSlice(0.5, fit.Params)

	// price the chain of the next monthly expiration
	expiration := utils.CalculateNextOptionsExpiration()
	maturity, err := utils.TimeToExpiration(expiration, time.Now())
	if err != nil {
		log.Fatalf("expiration: %v", err)
	}

	strikes := make([]float64, 0, 41)
	for K := 80.0; K <= 120; K++ {
		strikes = append(strikes, K)
	}

	eng := engine.New(engine.Options{})
	chain, err := eng.AnalyzeChain(context.Background(), surface, engine.ChainRequest{
		Symbol:       "DEMO",
		Expiration:   expiration,
		Spot:         100,
		Maturity:     maturity,
		Strikes:      strikes,
		RiskFreeRate: 0.05,
	})
	if err != nil {
		log.Fatalf("chain: %v", err)
	}

	fmt.Printf("\n⛓️  chain %s %s (T=%.4f): %d contracts in %.3fms (%s)\n",
		chain.Symbol, chain.Expiration, chain.Maturity, chain.TotalOptionsProcessed, chain.Timings.TotalMs, chain.ExecutionMode)
	if s := chain.VolatilitySkew; s != nil {
		fmt.Printf("   25Δ put  K=%.0f iv=%.2f%% (Δ %.3f)\n", s.PutStrike, s.Put25DIV*100, s.PutDelta)
		fmt.Printf("   25Δ call K=%.0f iv=%.2f%% (Δ %.3f)\n", s.CallStrike, s.Call25DIV*100, s.CallDelta)
		fmt.Printf("   skew: %.2f vol points\n", s.Skew*100)
	}
}
