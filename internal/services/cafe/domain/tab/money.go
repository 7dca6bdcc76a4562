package tab

import (
	"fmt"
	"strconv"
	"strings"
)

// Money is an amount in integer cents.
type Money int64

// Cents returns an amount of n cents.
func Cents(n int64) Money { return Money(n) }

// String renders the amount with two decimal places.
func (m Money) String() string {
	sign := ""
	value := int64(m)
	if value < 0 {
		sign = "-"
		value = -value
	}
	return fmt.Sprintf("%s%d.%02d", sign, value/100, value%100)
}

// Major returns the amount in whole currency units for formatting.
func (m Money) Major() float64 {
	return float64(m) / 100
}

// ParseMoney parses a decimal amount such as "7.50" or "12".
func ParseMoney(raw string) (Money, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("parse money: empty amount")
	}
	negative := strings.HasPrefix(raw, "-")
	raw = strings.TrimPrefix(raw, "-")
	whole, frac, hasFrac := strings.Cut(raw, ".")
	if hasFrac && (len(frac) == 0 || len(frac) > 2) {
		return 0, fmt.Errorf("parse money %q: want at most two decimal places", raw)
	}
	if !isDigits(whole) || (hasFrac && !isDigits(frac)) {
		return 0, fmt.Errorf("parse money %q: want digits", raw)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse money %q: %w", raw, err)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || cents < 0 {
		return 0, fmt.Errorf("parse money %q: invalid cents", raw)
	}
	total := units*100 + cents
	if negative {
		total = -total
	}
	return Money(total), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
