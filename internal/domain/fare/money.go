package fare

import (
	"fmt"
	"math"
	"strconv"
)

// RoundCents rounds to two decimals, half away from zero. The value is first
// normalized to six decimals so that binary noise (2.675 stored as
// 2.67499999...) does not flip the result.
func RoundCents(v float64) float64 {
	scaled, err := strconv.ParseFloat(strconv.FormatFloat(v*100, 'f', 6, 64), 64)
	if err != nil {
		return math.Round(v*100) / 100
	}
	return math.Round(scaled) / 100
}

// FormatPrice renders a price for display, e.g. "12.35 €".
func FormatPrice(v float64, currency string) string {
	return fmt.Sprintf("%.2f %s", RoundCents(v), symbolOrCode(currency))
}

func symbolOrCode(code string) string {
	if code == "" || code == "EUR" {
		return "€"
	}
	return code
}
