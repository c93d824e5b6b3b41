package volatility

import (
	"math"
	"testing"
)

var (
	shortSlice = NewSVIParams(0.04, 0.1, -0.4, 0.0, 0.2)
	longSlice  = NewSVIParams(0.05, 0.12, -0.3, 0.0, 0.25)
)

func twoSliceSurface() *Surface {
	s := NewSurface()
	s.AddSlice(1.0, longSlice)
	s.AddSlice(0.25, shortSlice)
	return s
}

func TestSurfaceCreation(t *testing.T) {
	s := twoSliceSurface()
	if s.NumSlices() != 2 {
		t.Fatalf("NumSlices = %d, want 2", s.NumSlices())
	}

	m := s.Maturities()
	if m[0] != 0.25 || m[1] != 1.0 {
		t.Errorf("maturities not ascending: %v", m)
	}
}

func TestSurfaceEmpty(t *testing.T) {
	s := NewSurface()
	if _, ok := s.ImpliedVolatility(100, 100, 1); ok {
		t.Errorf("empty surface must not return a volatility")
	}
	if !s.IsArbitrageFree() {
		t.Errorf("empty surface has nothing to violate")
	}
}

func TestSurfaceExactMatch(t *testing.T) {
	s := twoSliceSurface()

	vol, ok := s.ImpliedVolatility(100, 100, 0.25)
	if !ok {
		t.Fatalf("expected a volatility")
	}
	if want := shortSlice.ImpliedVolatility(0, 0.25); vol != want {
		t.Errorf("exact match returned %.12f, want %.12f", vol, want)
	}

	vol, _ = s.ImpliedVolatility(110, 100, 1.0)
	if want := longSlice.ImpliedVolatility(math.Log(1.1), 1.0); vol != want {
		t.Errorf("exact match off ATM returned %.12f, want %.12f", vol, want)
	}
}

func TestSurfaceInterpolation(t *testing.T) {
	s := twoSliceSurface()

	vol, ok := s.ImpliedVolatility(100, 100, 0.5)
	if !ok {
		t.Fatalf("expected a volatility")
	}

	shortVol := shortSlice.ImpliedVolatility(0, 0.25)
	longVol := longSlice.ImpliedVolatility(0, 1.0)
	lo, hi := math.Min(shortVol, longVol), math.Max(shortVol, longVol)
	if !(vol > lo && vol < hi) {
		t.Errorf("interpolated vol %.6f not strictly between %.6f and %.6f", vol, lo, hi)
	}

	// total variance is linear in maturity
	w1, w2 := shortSlice.ImpliedVariance(0), longSlice.ImpliedVariance(0)
	want := math.Sqrt((w1 + (0.5-0.25)/(1.0-0.25)*(w2-w1)) / 0.5)
	if math.Abs(vol-want) > 1e-14 {
		t.Errorf("interpolated vol %.14f, want %.14f", vol, want)
	}
}

func TestSurfaceExtrapolation(t *testing.T) {
	s := twoSliceSurface()

	below, _ := s.ImpliedVolatility(100, 100, 0.1)
	if want := shortSlice.ImpliedVolatility(0, 0.1); below != want {
		t.Errorf("below range: got %.12f, want %.12f", below, want)
	}

	above, _ := s.ImpliedVolatility(95, 100, 2.0)
	if want := longSlice.ImpliedVolatility(math.Log(0.95), 2.0); above != want {
		t.Errorf("above range: got %.12f, want %.12f", above, want)
	}
}

func TestSurfaceUpsert(t *testing.T) {
	s := twoSliceSurface()
	replacement := NewSVIParams(0.06, 0.1, -0.2, 0.0, 0.3)

	s.AddSlice(1.0, replacement)
	if s.NumSlices() != 2 {
		t.Fatalf("upsert changed slice count to %d", s.NumSlices())
	}
	if got, ok := s.Slice(1.0); !ok || got != replacement {
		t.Errorf("slice at 1.0 = %v, want %v", got, replacement)
	}

	s.AddSlice(0.5, shortSlice)
	m := s.Maturities()
	if len(m) != 3 || m[0] != 0.25 || m[1] != 0.5 || m[2] != 1.0 {
		t.Errorf("maturities after insert: %v", m)
	}
}

func TestSurfaceClone(t *testing.T) {
	s := twoSliceSurface()
	c := s.Clone()

	s.AddSlice(1.0, NewSVIParams(0.06, 0.1, -0.2, 0.0, 0.3))
	s.AddSlice(0.5, shortSlice)

	if c.NumSlices() != 2 {
		t.Fatalf("clone has %d slices after the original changed", c.NumSlices())
	}
	orig := twoSliceSurface()
	for _, T := range []float64{0.25, 1.0} {
		got, _ := c.ImpliedVolatility(100, 100, T)
		want, _ := orig.ImpliedVolatility(100, 100, T)
		if got != want {
			t.Errorf("clone vol at T=%.2f = %v, want %v", T, got, want)
		}
	}
}

func TestSurfaceAcceptsNaNMaturity(t *testing.T) {
	s := twoSliceSurface()
	s.AddSlice(math.NaN(), shortSlice)

	if s.NumSlices() < 2 || s.NumSlices() > 3 {
		t.Errorf("unexpected slice count %d", s.NumSlices())
	}
	if _, ok := s.ImpliedVolatility(100, 100, 0.5); !ok {
		t.Errorf("non-empty surface must answer queries")
	}
}

func TestCalendarArbitrage(t *testing.T) {
	s := NewSurface()
	s.AddSlice(0.25, NewSVIParams(0.08, 0.1, -0.4, 0.0, 0.2))
	s.AddSlice(1.0, NewSVIParams(0.02, 0.1, -0.4, 0.0, 0.2))

	for _, m := range s.Maturities() {
		p, _ := s.Slice(m)
		if !p.IsArbitrageFree() {
			t.Fatalf("slice at %.2f should pass on its own", m)
		}
	}
	if s.IsArbitrageFree() {
		t.Errorf("decreasing ATM total variance must fail the surface check")
	}

	if !twoSliceSurface().IsArbitrageFree() {
		t.Errorf("increasing ATM total variance should pass")
	}
}

func TestSurfaceRejectsBadSlice(t *testing.T) {
	s := twoSliceSurface()
	s.AddSlice(2.0, NewSVIParams(0.1, -0.1, 0, 0, 0.2))
	if s.IsArbitrageFree() {
		t.Errorf("a slice with b<0 must fail the surface check")
	}
}
