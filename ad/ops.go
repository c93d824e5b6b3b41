package ad

import "math"

// Exp returns e^d: exp(f)' = f' * exp(f)
func (d Dual) Exp() Dual {
	e := math.Exp(d.Value)
	return Dual{Value: e, Deriv: d.Deriv * e}
}

// Ln returns the natural logarithm: ln(f)' = f' / f
func (d Dual) Ln() Dual {
	return Dual{Value: math.Log(d.Value), Deriv: d.Deriv / d.Value}
}

// Sqrt returns the square root: sqrt(f)' = f' / (2 sqrt(f))
func (d Dual) Sqrt() Dual {
	s := math.Sqrt(d.Value)
	return Dual{Value: s, Deriv: d.Deriv / (2 * s)}
}

// Pow raises d to a constant power: (f^n)' = n f^(n-1) f'
func (d Dual) Pow(n float64) Dual {
	return Dual{
		Value: math.Pow(d.Value, n),
		Deriv: d.Deriv * n * math.Pow(d.Value, n-1),
	}
}

// Square returns d*d without the general product
func (d Dual) Square() Dual {
	return Dual{Value: d.Value * d.Value, Deriv: 2 * d.Value * d.Deriv}
}

// Abs picks the non-negative branch when Value >= 0, so the derivative at
// zero is the right-hand one.
func (d Dual) Abs() Dual {
	if d.Value >= 0 {
		return d
	}
	return d.Neg()
}

// Max returns the operand with the larger value; ties keep the receiver.
func (d Dual) Max(o Dual) Dual {
	if d.Value >= o.Value {
		return d
	}
	return o
}

// Min returns the operand with the smaller value; ties keep the receiver.
func (d Dual) Min(o Dual) Dual {
	if d.Value <= o.Value {
		return d
	}
	return o
}
