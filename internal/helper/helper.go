package helper

import (
	"math"

	"github.com/shopspring/decimal"
)

// RoundDownToStep режет величину вниз до кратного шагу (lot size / tick size).
// Через decimal, чтобы не ловить хвосты двоичной арифметики на мелких шагах.
func RoundDownToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	d := decimal.NewFromFloat(v)
	s := decimal.NewFromFloat(step)
	q := d.Div(s).Floor()
	f, _ := q.Mul(s).Float64()
	return f
}

// FormatQty — количество в строку для биржи, без экспоненты и лишних нулей.
func FormatQty(v float64) string {
	return decimal.NewFromFloat(v).Round(8).String()
}

func FormatPrice(v float64) string {
	return decimal.NewFromFloat(v).Round(8).String()
}

// WithinTolerance — |a-b| относительно b не превышает tol (доля, не проценты).
func WithinTolerance(a, b, tol float64) bool {
	if b == 0 {
		return a == 0
	}
	return math.Abs(a-b)/math.Abs(b) <= tol
}
