package utils

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// RoundRatio returns num/den rounded to places decimals, halves away from
// zero. A zero denominator yields 0.
func RoundRatio(num, den *big.Int, places int) float64 {
	if den.Sign() == 0 {
		return 0
	}
	s := new(big.Rat).SetFrac(num, den).FloatString(places)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// RoundRatio64 is RoundRatio for int64 operands.
func RoundRatio64(num, den int64, places int) float64 {
	return RoundRatio(big.NewInt(num), big.NewInt(den), places)
}

// RoundFloat rounds f to places decimals, halves away from zero. The value is
// rounded from its shortest decimal representation, so 0.12345 becomes 0.1235.
func RoundFloat(f float64, places int) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'f', -1, 64))
	if !ok {
		return 0
	}
	out, err := strconv.ParseFloat(r.FloatString(places), 64)
	if err != nil {
		return 0
	}
	return out
}

// ParseInt parses an integer literal, accepting integral float literals
// such as "12.0".
func ParseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int64(f), nil
}

// ParseFloat parses a finite float literal.
func ParseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return f, nil
}
