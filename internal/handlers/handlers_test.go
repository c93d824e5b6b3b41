package handlers

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jwaldner/greeks/engine"
	"github.com/jwaldner/greeks/internal/audit"
	"github.com/jwaldner/greeks/internal/metrics"
	"github.com/jwaldner/greeks/internal/models"
	"github.com/jwaldner/greeks/internal/treasury"
	"github.com/jwaldner/greeks/pricing"
	"github.com/jwaldner/greeks/volatility"
)

func newTestServer(t *testing.T) (*GreeksHandler, *mux.Router) {
	t.Helper()
	h := NewGreeksHandler(engine.New(engine.Options{Mode: engine.ExecutionModeCPU}),
		treasury.StaticRate(0.05), audit.Discard, metrics.New("test"))
	h.now = func() time.Time { return time.Date(2026, 10, 19, 16, 0, 0, 0, time.UTC) }

	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return h, r
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestGreeksEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	rec := do(t, r, "POST", "/api/greeks", map[string]interface{}{
		"symbol":           "SPY",
		"spot":             100,
		"strike":           100,
		"time_to_maturity": 1,
		"volatility":       0.2,
		"option_type":      "call",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Price        float64                      `json:"price"`
		Delta        float64                      `json:"delta"`
		RiskFreeRate float64                      `json:"risk_free_rate"`
		OptionType   string                       `json:"option_type"`
		Formatted    map[string]models.FieldValue `json:"formatted"`
	}
	decodeBody(t, rec, &resp)

	want := pricing.CalculateGreeks(pricing.NewParams(100, 100, 1, 0.2, 0.05, 0), pricing.Call)
	if math.Abs(resp.Price-want.Price) > 1e-12 || math.Abs(resp.Delta-want.Delta) > 1e-12 {
		t.Errorf("got price %v delta %v, want %v %v", resp.Price, resp.Delta, want.Price, want.Delta)
	}
	if resp.RiskFreeRate != 0.05 {
		t.Errorf("missing rate should come from the rate source, got %v", resp.RiskFreeRate)
	}
	if resp.Formatted["price"].Display != "$10.45" {
		t.Errorf("formatted price = %q", resp.Formatted["price"].Display)
	}
	if resp.Formatted["volatility"].Display != "20.00%" {
		t.Errorf("formatted volatility = %q", resp.Formatted["volatility"].Display)
	}
	t.Logf("✅ ATM call: price %.4f delta %.4f", resp.Price, resp.Delta)
}

func TestGreeksZeroVolatility(t *testing.T) {
	_, r := newTestServer(t)

	rec := do(t, r, "POST", "/api/greeks", map[string]interface{}{
		"spot":             100,
		"strike":           90,
		"time_to_maturity": 1,
		"volatility":       0,
		"option_type":      "call",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Price      float64 `json:"price"`
		Volatility float64 `json:"volatility"`
	}
	decodeBody(t, rec, &resp)

	want := pricing.Price(pricing.NewParams(100, 90, 1, 0, 0.05, 0), pricing.Call)
	if resp.Volatility != 0 || math.Abs(resp.Price-want) > 1e-12 {
		t.Errorf("got vol %v price %v, want 0 and %v", resp.Volatility, resp.Price, want)
	}
	t.Logf("✅ zero-vol call: price %.4f", resp.Price)
}

func TestGreeksFromExpiration(t *testing.T) {
	_, r := newTestServer(t)

	rec := do(t, r, "POST", "/api/greeks", map[string]interface{}{
		"spot":           100,
		"strike":         95,
		"expiration":     "2027-10-19",
		"volatility":     0.3,
		"risk_free_rate": 0.02,
		"option_type":    "p",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.GreeksResponse
	decodeBody(t, rec, &resp)
	if math.Abs(float64(resp.TimeToMaturity)-1) > 1e-9 {
		t.Errorf("time_to_maturity = %v, want 1", resp.TimeToMaturity)
	}
	if resp.RiskFreeRate != 0.02 || resp.OptionType != "put" {
		t.Errorf("unexpected echo: %+v", resp)
	}
}

func TestGreeksValidation(t *testing.T) {
	_, r := newTestServer(t)

	tests := []struct {
		name  string
		body  interface{}
		field string
	}{
		{"negative spot", map[string]interface{}{"spot": -1, "strike": 100, "time_to_maturity": 1, "volatility": 0.2, "option_type": "call"}, "Spot"},
		{"bad type", map[string]interface{}{"spot": 100, "strike": 100, "time_to_maturity": 1, "volatility": 0.2, "option_type": "straddle"}, "OptionType"},
		{"no maturity", map[string]interface{}{"spot": 100, "strike": 100, "volatility": 0.2, "option_type": "call"}, "TimeToMaturity"},
		{"bad expiration", map[string]interface{}{"spot": 100, "strike": 100, "expiration": "19/10/2027", "volatility": 0.2, "option_type": "call"}, "Expiration"},
		{"missing volatility", map[string]interface{}{"spot": 100, "strike": 100, "time_to_maturity": 1, "option_type": "call"}, "Volatility"},
		{"negative volatility", map[string]interface{}{"spot": 100, "strike": 100, "time_to_maturity": 1, "volatility": -0.1, "option_type": "call"}, "Volatility"},
		{"malformed", `{"spot": 100,`, ""},
		{"unknown field", `{"spot": 100, "colour": "red"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, r, "POST", "/api/greeks", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d, want 400: %s", rec.Code, rec.Body.String())
			}
			var resp models.ErrorResponse
			decodeBody(t, rec, &resp)
			if tt.field != "" && !strings.Contains(strings.Join(resp.Fields, ","), tt.field) {
				t.Errorf("fields %v do not mention %s", resp.Fields, tt.field)
			}
		})
	}
}

func TestBatchEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	calcs := make([]map[string]interface{}, 0, 20)
	for i := 0; i < 20; i++ {
		calcs = append(calcs, map[string]interface{}{
			"spot": 100, "strike": 80 + 2*i, "time_to_maturity": 0.5,
			"volatility": 0.25, "option_type": []string{"call", "put"}[i%2],
		})
	}
	rec := do(t, r, "POST", "/api/greeks/batch", map[string]interface{}{"calculations": calcs})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.BatchCalculationResponse
	decodeBody(t, rec, &resp)
	if resp.TotalCalculations != 20 || len(resp.Results) != 20 {
		t.Fatalf("got %d results", len(resp.Results))
	}
	if resp.ExecutionMode != "cpu" {
		t.Errorf("execution_mode = %s", resp.ExecutionMode)
	}
	if resp.Results[1].OptionType != "put" || resp.Results[1].Strike != 82 {
		t.Errorf("results out of order: %+v", resp.Results[1])
	}

	if rec := do(t, r, "POST", "/api/greeks/batch", map[string]interface{}{"calculations": []interface{}{}}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty batch status %d, want 400", rec.Code)
	}
}

func TestImpliedVolEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	p := pricing.NewParams(100, 110, 0.75, 0.35, 0.05, 0.01)
	market := pricing.Price(p, pricing.Put)

	rec := do(t, r, "POST", "/api/implied-vol", map[string]interface{}{
		"market_price": market, "spot": 100, "strike": 110, "time_to_maturity": 0.75,
		"dividend_yield": 0.01, "option_type": "put",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.ImpliedVolResponse
	decodeBody(t, rec, &resp)
	if math.Abs(resp.ImpliedVolatility-0.35) > 1e-5 {
		t.Errorf("implied vol = %v, want 0.35", resp.ImpliedVolatility)
	}

	rec = do(t, r, "POST", "/api/implied-vol", map[string]interface{}{
		"market_price": 150, "spot": 100, "strike": 110, "time_to_maturity": 0.75, "option_type": "call",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("price above the no-arbitrage bound: status %d, want 422", rec.Code)
	}
}

func TestSurfaceLifecycle(t *testing.T) {
	h, r := newTestServer(t)

	if rec := do(t, r, "GET", "/api/surface/vol?strike=100&spot=100&maturity=0.5", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("empty surface status %d, want 404", rec.Code)
	}

	for _, T := range []float64{0.25, 1.0} {
		rec := do(t, r, "POST", "/api/surface/slices", map[string]interface{}{
			"maturity": T,
			"params":   volatility.NewSVIParams(0.04*T, 0.1*T, -0.5, 0, 0.2),
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("add slice status %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec := do(t, r, "POST", "/api/surface/slices", map[string]interface{}{
		"maturity": 2.0,
		"params":   volatility.NewSVIParams(0.1, -0.1, 0, 0, 0.2),
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("negative b status %d, want 422", rec.Code)
	}

	rec = do(t, r, "GET", "/api/surface", nil)
	var surface models.SurfaceResponse
	decodeBody(t, rec, &surface)
	if surface.NumSlices != 2 || !surface.ArbitrageFree {
		t.Errorf("surface = %+v", surface)
	}

	rec = do(t, r, "GET", "/api/surface/vol?strike=100&spot=100&maturity=0.5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("vol query status %d: %s", rec.Code, rec.Body.String())
	}
	var vol struct {
		ImpliedVolatility float64 `json:"implied_volatility"`
	}
	decodeBody(t, rec, &vol)
	if v, _ := h.ImpliedVolatility(100, 100, 0.5); math.Abs(vol.ImpliedVolatility-v) > 1e-15 {
		t.Errorf("endpoint %v, surface %v", vol.ImpliedVolatility, v)
	}

	if rec := do(t, r, "GET", "/api/surface/vol?strike=abc&spot=100&maturity=0.5", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad query status %d, want 400", rec.Code)
	}

	if got := testutil.ToFloat64(h.metrics.SurfaceQueries.WithLabelValues("empty")); got != 1 {
		t.Errorf("empty surface queries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.metrics.SurfaceSlices); got != 2 {
		t.Errorf("surface_slices gauge = %v, want 2", got)
	}
}

func TestSurfaceSliceFromJW(t *testing.T) {
	_, r := newTestServer(t)

	rec := do(t, r, "POST", "/api/surface/slices", map[string]interface{}{
		"maturity": 0.5,
		"jw":       volatility.SVIJWParams{VT: 0.04, Psi: -0.1, P: 0.3, C: 0.2, VTilde: 0.035},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.SurfaceSliceResponse
	decodeBody(t, rec, &resp)
	if math.Abs(resp.Params.B-0.25) > 1e-12 {
		t.Errorf("b = %v, want (p+c)/2 = 0.25", resp.Params.B)
	}

	if rec := do(t, r, "POST", "/api/surface/slices", map[string]interface{}{"maturity": 0.5}); rec.Code != http.StatusBadRequest {
		t.Errorf("slice without params status %d, want 400", rec.Code)
	}
}

func TestSurfaceFitEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	truth := volatility.NewSVIParams(0.02, 0.15, -0.4, 0.05, 0.25)
	var quotes []volatility.Quote
	for k := -0.5; k <= 0.5001; k += 0.1 {
		quotes = append(quotes, volatility.Quote{LogMoneyness: k, ImpliedVol: truth.ImpliedVolatility(k, 1)})
	}

	rec := do(t, r, "POST", "/api/surface/fit", map[string]interface{}{"maturity": 1.0, "quotes": quotes})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.SurfaceFitResponse
	decodeBody(t, rec, &resp)
	if resp.NumSlices != 1 || resp.RMSE > 1e-4 {
		t.Errorf("fit response = %+v", resp)
	}

	rec = do(t, r, "POST", "/api/surface/fit", map[string]interface{}{"maturity": 1.0, "quotes": quotes[:3]})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("three quotes status %d, want 400", rec.Code)
	}
}

func TestChainEndpoint(t *testing.T) {
	h, r := newTestServer(t)

	body := map[string]interface{}{
		"symbol": "SPY", "spot": 100, "maturity": 0.5,
		"strikes": []float64{80, 85, 90, 95, 100, 105, 110, 115, 120},
	}
	if rec := do(t, r, "POST", "/api/chain", body); rec.Code != http.StatusNotFound {
		t.Fatalf("chain on empty surface status %d, want 404", rec.Code)
	}

	h.addSlice(0.5, volatility.NewSVIParams(0.01, 0.05, -0.7, 0, 0.2))

	rec := do(t, r, "POST", "/api/chain", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.ChainResponse
	decodeBody(t, rec, &resp)
	if len(resp.Puts) != 9 || len(resp.Calls) != 9 {
		t.Fatalf("got %d puts / %d calls", len(resp.Puts), len(resp.Calls))
	}
	if resp.Skew == nil || resp.Skew.Skew <= 0 {
		t.Errorf("expected positive put skew, got %+v", resp.Skew)
	}
	if resp.RiskFreeRate != 0.05 {
		t.Errorf("risk_free_rate = %v", resp.RiskFreeRate)
	}
}

func TestChainPricesOneSurfaceVersion(t *testing.T) {
	h, r := newTestServer(t)

	low := volatility.NewSVIParams(0.01, 0.05, -0.7, 0, 0.2)
	high := volatility.NewSVIParams(0.04, 0.05, -0.7, 0, 0.2)
	h.addSlice(0.5, low)

	strikes := []float64{90, 100, 110}
	volsFor := func(p volatility.SVIParams) []float64 {
		out := make([]float64, len(strikes))
		for i, k := range strikes {
			out[i] = p.ImpliedVolatility(math.Log(k/100), 0.5)
		}
		return out
	}
	want := [][]float64{volsFor(low), volsFor(high)}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			if i%2 == 0 {
				h.addSlice(0.5, high)
			} else {
				h.addSlice(0.5, low)
			}
		}
	}()

	body := map[string]interface{}{"symbol": "SPY", "spot": 100, "maturity": 0.5, "strikes": strikes}
	for n := 0; n < 50; n++ {
		rec := do(t, r, "POST", "/api/chain", body)
		if rec.Code != http.StatusOK {
			close(done)
			wg.Wait()
			t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
		}
		var resp models.ChainResponse
		decodeBody(t, rec, &resp)

		matched := false
		for _, vols := range want {
			same := true
			for i, c := range resp.Calls {
				if c.Volatility != vols[i] {
					same = false
				}
			}
			matched = matched || same
		}
		if !matched {
			t.Errorf("chain %d mixes surface versions: %+v", n, resp.Calls)
		}
	}
	close(done)
	wg.Wait()
}

func TestAuditRecordsRequests(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	journal, err := audit.Open(path, 10)
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}

	h := NewGreeksHandler(engine.New(engine.Options{}), treasury.StaticRate(0.04), journal, nil)
	r := mux.NewRouter()
	h.RegisterRoutes(r)

	rec := do(t, r, "POST", "/api/greeks", map[string]interface{}{
		"symbol": "AAPL", "spot": 100, "strike": 100, "time_to_maturity": 1, "volatility": 0.2, "option_type": "c",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if rec := do(t, r, "POST", "/api/audit/archive", nil); rec.Code != http.StatusOK {
		t.Fatalf("archive status %d: %s", rec.Code, rec.Body.String())
	}
	journal.Close()

	archived, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "audits", "*.jsonl"))
	if len(archived) != 1 {
		t.Errorf("expected one archived journal, got %v", archived)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	rec := do(t, r, "GET", "/api/health", nil)
	var resp models.HealthResponse
	decodeBody(t, rec, &resp)
	if resp.Status != "ok" || resp.ExecutionMode != "cpu" || resp.RiskFreeRate != 0.05 {
		t.Errorf("health = %+v", resp)
	}
}

func TestFormatters(t *testing.T) {
	tests := []struct {
		got  models.FieldValue
		want string
	}{
		{formatCurrency(1234567.891), "$1,234,567.89"},
		{formatCurrency(-12.5), "-$12.50"},
		{formatCurrency(999.999), "$1,000.00"},
		{formatCurrency(math.NaN()), "n/a"},
		{formatPercentage(0.0425), "4.25%"},
		{formatGreek(-0.123456, 4), "-0.1235"},
		{formatGreek(math.Inf(1), 4), "n/a"},
		{formatDays(0.5), "183"},
	}
	for _, tt := range tests {
		if tt.got.Display != tt.want {
			t.Errorf("Display = %q, want %q", tt.got.Display, tt.want)
		}
	}
}

func TestFloatEncodesNonFiniteAsNull(t *testing.T) {
	b, err := json.Marshal(struct {
		A models.Float `json:"a"`
		B models.Float `json:"b"`
	}{models.Float(math.NaN()), 1.5})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"a":null,"b":1.5}` {
		t.Errorf("got %s", b)
	}
}
