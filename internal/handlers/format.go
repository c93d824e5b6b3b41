package handlers

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jwaldner/greeks/internal/models"
	"github.com/jwaldner/greeks/internal/utils"
)

// Formatter helpers for the dual raw/display response fields. Non-finite
// values display as "n/a" and carry a nil raw value.

func notAvailable(fieldType string) models.FieldValue {
	return models.FieldValue{Raw: nil, Display: "n/a", Type: fieldType}
}

func formatCurrency(value float64) models.FieldValue {
	if !isFinite(value) {
		return notAvailable("currency")
	}
	d := decimal.NewFromFloat(value).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	return models.FieldValue{
		Raw:     value,
		Display: sign + "$" + groupThousands(d.StringFixed(2)),
		Type:    "currency",
	}
}

func formatPercentage(value float64) models.FieldValue {
	if !isFinite(value) {
		return notAvailable("percentage")
	}
	return models.FieldValue{
		Raw:     value,
		Display: decimal.NewFromFloat(value).Shift(2).StringFixed(2) + "%",
		Type:    "percentage",
	}
}

func formatGreek(value float64, places int32) models.FieldValue {
	if !isFinite(value) {
		return notAvailable("greek")
	}
	return models.FieldValue{
		Raw:     value,
		Display: decimal.NewFromFloat(value).StringFixed(places),
		Type:    "greek",
	}
}

func formatDays(timeToMaturity float64) models.FieldValue {
	if !isFinite(timeToMaturity) {
		return notAvailable("integer")
	}
	days := int(math.Round(timeToMaturity * utils.DaysPerYear))
	return models.FieldValue{
		Raw:     days,
		Display: decimal.NewFromInt(int64(days)).String(),
		Type:    "integer",
	}
}

// groupThousands inserts commas into the integer part of "1234567.89"
func groupThousands(s string) string {
	intPart, frac, hasFrac := strings.Cut(s, ".")
	if len(intPart) <= 3 {
		return s
	}

	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
