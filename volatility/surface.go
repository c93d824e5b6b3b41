package volatility

import (
	"math"
	"slices"
)

// MaturitySlice pairs a maturity in years with its SVI parameters
type MaturitySlice struct {
	Maturity float64   `json:"maturity"`
	Params   SVIParams `json:"params"`
}

// Surface holds SVI slices ordered by ascending maturity.
//
// A Surface has no internal locking. Callers that query it from several
// goroutines must not call AddSlice concurrently with queries.
type Surface struct {
	slices []MaturitySlice
}

// NewSurface creates an empty surface
func NewSurface() *Surface {
	return &Surface{}
}

// compareMaturity orders maturities. Incomparable values (NaN) compare as
// equal, so NaN maturities are accepted but their position is unspecified.
func compareMaturity(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (s *Surface) find(maturity float64) (int, bool) {
	return slices.BinarySearchFunc(s.slices, maturity, func(sl MaturitySlice, t float64) int {
		return compareMaturity(sl.Maturity, t)
	})
}

// AddSlice inserts the slice for maturity, replacing any slice already
// stored at an equal maturity.
func (s *Surface) AddSlice(maturity float64, params SVIParams) {
	i, found := s.find(maturity)
	if found {
		s.slices[i] = MaturitySlice{Maturity: maturity, Params: params}
		return
	}
	s.slices = slices.Insert(s.slices, i, MaturitySlice{Maturity: maturity, Params: params})
}

// NumSlices returns the number of maturity slices
func (s *Surface) NumSlices() int {
	return len(s.slices)
}

// Maturities returns the stored maturities in ascending order
func (s *Surface) Maturities() []float64 {
	out := make([]float64, len(s.slices))
	for i, sl := range s.slices {
		out[i] = sl.Maturity
	}
	return out
}

// Slices returns a copy of the stored slices in ascending maturity order
func (s *Surface) Slices() []MaturitySlice {
	return slices.Clone(s.slices)
}

// Clone returns an independent copy of the surface
func (s *Surface) Clone() *Surface {
	return &Surface{slices: slices.Clone(s.slices)}
}

// Slice returns the parameters stored at exactly maturity
func (s *Surface) Slice(maturity float64) (SVIParams, bool) {
	i, found := s.find(maturity)
	if !found {
		return SVIParams{}, false
	}
	return s.slices[i].Params, true
}

// ImpliedVolatility returns the volatility for strike at maturity.
//
// A slice stored at exactly maturity is used directly. Otherwise total
// variance is interpolated linearly in maturity between the nearest slices
// below and above, or taken from the single nearest slice when maturity lies
// outside the stored range. ok is false only when the surface is empty.
func (s *Surface) ImpliedVolatility(strike, spot, maturity float64) (vol float64, ok bool) {
	if len(s.slices) == 0 {
		return 0, false
	}

	k := math.Log(strike / spot)

	if params, found := s.Slice(maturity); found {
		return params.ImpliedVolatility(k, maturity), true
	}

	var before, after *MaturitySlice
	for i := range s.slices {
		sl := &s.slices[i]
		if sl.Maturity <= maturity {
			before = sl
		}
		if sl.Maturity >= maturity && after == nil {
			after = sl
		}
	}

	if before != nil && after != nil && before.Maturity != after.Maturity {
		w1 := before.Params.ImpliedVariance(k)
		w2 := after.Params.ImpliedVariance(k)

		weight := (maturity - before.Maturity) / (after.Maturity - before.Maturity)
		w := w1 + weight*(w2-w1)

		return math.Sqrt(w / maturity), true
	}

	nearest := before
	if nearest == nil {
		nearest = after
	}
	if nearest == nil {
		// every stored maturity is NaN
		nearest = &s.slices[0]
	}
	return nearest.Params.ImpliedVolatility(k, maturity), true
}

// IsArbitrageFree checks every slice on its own, then requires ATM total
// variance to be non-decreasing in maturity (no calendar arbitrage).
func (s *Surface) IsArbitrageFree() bool {
	for _, sl := range s.slices {
		if !sl.Params.IsArbitrageFree() {
			return false
		}
	}

	for i := 1; i < len(s.slices); i++ {
		if s.slices[i].Params.ImpliedVariance(0) < s.slices[i-1].Params.ImpliedVariance(0) {
			return false
		}
	}
	return true
}
