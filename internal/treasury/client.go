package treasury

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/jwaldner/greeks/internal/logger"
)

// EmergencyRate is used when no rate has ever been fetched
const EmergencyRate = 0.04

// RetryBackoff is how long RiskFreeRate serves the last known rate after a
// failed fetch before asking the API again.
const RetryBackoff = time.Minute

// RateSource supplies the risk-free rate as a decimal (0.04 = 4%)
type RateSource interface {
	RiskFreeRate(ctx context.Context) float64
}

// StaticRate is a fixed risk-free rate
type StaticRate float64

func (r StaticRate) RiskFreeRate(context.Context) float64 {
	return float64(r)
}

type TreasuryClient struct {
	httpClient *http.Client
	endpoint   string
	ttl        time.Duration
	backoff    time.Duration

	mu              sync.Mutex
	lastKnownRate   float64
	lastFetchTime   time.Time
	lastFailureTime time.Time
}

type TreasuryResponse struct {
	Data []TreasuryRate `json:"data"`
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
}

type TreasuryRate struct {
	RecordDate            string `json:"record_date"`
	SecurityDesc          string `json:"security_desc"`
	AvgInterestRateAmount string `json:"avg_interest_rate_amt"`
}

// NewTreasuryClient creates a client for the avg_interest_rates endpoint.
// Fetched rates are reused for ttl before the API is asked again.
func NewTreasuryClient(endpoint string, timeout, ttl time.Duration) *TreasuryClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TreasuryClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		endpoint:      endpoint,
		ttl:           ttl,
		backoff:       RetryBackoff,
		lastKnownRate: EmergencyRate,
	}
}

// fetchRiskFreeRate does the actual API call (internal method)
func (tc *TreasuryClient) fetchRiskFreeRate(ctx context.Context) (float64, error) {
	u, err := url.Parse(tc.endpoint)
	if err != nil {
		return 0, fmt.Errorf("invalid Treasury endpoint: %w", err)
	}
	q := u.Query()
	q.Set("fields", "avg_interest_rate_amt,record_date,security_desc")
	q.Set("filter", "security_desc:eq:Treasury Bills")
	q.Set("sort", "-record_date")
	q.Set("page[size]", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build Treasury request: %w", err)
	}

	resp, err := tc.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch Treasury rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("Treasury API returned status %d", resp.StatusCode)
	}

	var treasuryResp TreasuryResponse
	if err := json.NewDecoder(resp.Body).Decode(&treasuryResp); err != nil {
		return 0, fmt.Errorf("failed to decode Treasury response: %w", err)
	}

	if len(treasuryResp.Data) == 0 {
		return 0, fmt.Errorf("no Treasury rate data returned")
	}

	// Convert percentage string to float64 (e.g., "3.983" -> 0.03983)
	rateStr := treasuryResp.Data[0].AvgInterestRateAmount
	rate, err := strconv.ParseFloat(rateStr, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse rate %s: %w", rateStr, err)
	}

	return rate / 100.0, nil
}

// GetRiskFreeRate fetches the most recent Treasury Bill rate as the risk-free rate
func (tc *TreasuryClient) GetRiskFreeRate(ctx context.Context) (float64, error) {
	rate, err := tc.fetchRiskFreeRate(ctx)
	if err != nil {
		tc.mu.Lock()
		tc.lastFailureTime = time.Now()
		tc.mu.Unlock()
		return 0, err
	}

	tc.mu.Lock()
	tc.lastKnownRate = rate
	tc.lastFetchTime = time.Now()
	tc.lastFailureTime = time.Time{}
	tc.mu.Unlock()

	logger.Info.Printf("📈 Fetched Treasury Bill rate: %.3f%% (%.6f decimal) - updated cache", rate*100, rate)
	return rate, nil
}

// GetRiskFreeRateWithLastKnown tries to fetch current rate, uses last known if fetch fails
func (tc *TreasuryClient) GetRiskFreeRateWithLastKnown(ctx context.Context) float64 {
	fresh, err := tc.GetRiskFreeRate(ctx)
	if err == nil {
		return fresh
	}

	rate, age, ok := tc.GetCacheInfo()
	if ok {
		logger.Warn.Printf("⚠️ Treasury API failed (%v), using last known rate: %.6f from %v ago", err, rate, age.Round(time.Minute))
	} else {
		logger.Warn.Printf("⚠️ Treasury API failed (%v), using emergency default: %.6f", err, rate)
	}
	return rate
}

// RiskFreeRate returns the cached rate while it is younger than the TTL and
// refreshes it otherwise. After a failed refresh the last known rate is
// served without calling the API until the retry backoff has passed.
func (tc *TreasuryClient) RiskFreeRate(ctx context.Context) float64 {
	if rate, age, ok := tc.GetCacheInfo(); ok && age < tc.ttl {
		return rate
	}
	if rate, backingOff := tc.inBackoff(); backingOff {
		return rate
	}
	return tc.GetRiskFreeRateWithLastKnown(ctx)
}

func (tc *TreasuryClient) inBackoff() (float64, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.lastFailureTime.IsZero() {
		return 0, false
	}
	return tc.lastKnownRate, time.Since(tc.lastFailureTime) < tc.backoff
}

// GetCacheInfo returns information about the cached rate
func (tc *TreasuryClient) GetCacheInfo() (rate float64, age time.Duration, isInitialized bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.lastFetchTime.IsZero() {
		return tc.lastKnownRate, 0, false
	}
	return tc.lastKnownRate, time.Since(tc.lastFetchTime), true
}
