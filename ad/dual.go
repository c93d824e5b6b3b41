// Package ad implements forward-mode automatic differentiation with dual
// numbers. A Dual carries a value and its derivative with respect to one
// designated input; every operation applies the chain rule so the derivative
// stays exact through arbitrary arithmetic.
package ad

import "fmt"

// Dual represents f(x) + f'(x)ε where ε² = 0.
type Dual struct {
	Value float64
	Deriv float64
}

// New creates a dual number from a value and derivative
func New(value, deriv float64) Dual {
	return Dual{Value: value, Deriv: deriv}
}

// Constant creates a dual number independent of the differentiation variable
func Constant(value float64) Dual {
	return Dual{Value: value}
}

// Variable creates the dual number being differentiated against
func Variable(value float64) Dual {
	return Dual{Value: value, Deriv: 1}
}

func (d Dual) String() string {
	return fmt.Sprintf("(%g, %g)", d.Value, d.Deriv)
}

// Add returns d + o: (f + g)' = f' + g'
func (d Dual) Add(o Dual) Dual {
	return Dual{Value: d.Value + o.Value, Deriv: d.Deriv + o.Deriv}
}

// Sub returns d - o: (f - g)' = f' - g'
func (d Dual) Sub(o Dual) Dual {
	return Dual{Value: d.Value - o.Value, Deriv: d.Deriv - o.Deriv}
}

// Mul returns d * o: (fg)' = f'g + fg'
func (d Dual) Mul(o Dual) Dual {
	return Dual{
		Value: d.Value * o.Value,
		Deriv: d.Deriv*o.Value + d.Value*o.Deriv,
	}
}

// Div returns d / o: (f/g)' = (f'g - fg') / g²
// A zero-valued denominator yields IEEE Inf/NaN.
func (d Dual) Div(o Dual) Dual {
	return Dual{
		Value: d.Value / o.Value,
		Deriv: (d.Deriv*o.Value - d.Value*o.Deriv) / (o.Value * o.Value),
	}
}

// Neg returns -d
func (d Dual) Neg() Dual {
	return Dual{Value: -d.Value, Deriv: -d.Deriv}
}

// AddScalar returns d + c
func (d Dual) AddScalar(c float64) Dual {
	return Dual{Value: d.Value + c, Deriv: d.Deriv}
}

// SubScalar returns d - c
func (d Dual) SubScalar(c float64) Dual {
	return Dual{Value: d.Value - c, Deriv: d.Deriv}
}

// MulScalar returns d * c
func (d Dual) MulScalar(c float64) Dual {
	return Dual{Value: d.Value * c, Deriv: d.Deriv * c}
}

// DivScalar returns d / c
func (d Dual) DivScalar(c float64) Dual {
	return Dual{Value: d.Value / c, Deriv: d.Deriv / c}
}

// ScalarSub returns c - d
func ScalarSub(c float64, d Dual) Dual {
	return Dual{Value: c - d.Value, Deriv: -d.Deriv}
}

// ScalarDiv returns c / d: (c/g)' = -c g' / g²
func ScalarDiv(c float64, d Dual) Dual {
	return Dual{
		Value: c / d.Value,
		Deriv: -c * d.Deriv / (d.Value * d.Value),
	}
}
