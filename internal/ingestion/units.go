package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var errNotNumeric = errors.New("not numeric")

// Multipliers to crore (1 crore = 1e7 rupees).
var (
	decCrorePerRupee = decimal.New(1, -7)
	decLakh          = decimal.New(1, 5)
	decThousand      = decimal.New(1, 3)
	decHundred       = decimal.New(1, 2)
)

// amountSuffixes maps a lower-case unit suffix to its multiplier in crore.
// Ordered longest first so "lcr" wins over "cr".
var amountSuffixes = []struct {
	suffix string
	mult   decimal.Decimal
}{
	{"lakhcrore", decLakh},
	{"lakhcr", decLakh},
	{"lcrore", decLakh},
	{"lcr", decLakh},
	{"kcrore", decThousand},
	{"kcr", decThousand},
	{"crore", decimal.NewFromInt(1)},
	{"cr", decimal.NewFromInt(1)},
	{"tn", decimal.New(1, 12).Mul(decCrorePerRupee)},
	{"t", decimal.New(1, 12).Mul(decCrorePerRupee)},
	{"bn", decimal.New(1, 9).Mul(decCrorePerRupee)},
	{"b", decimal.New(1, 9).Mul(decCrorePerRupee)},
	{"mn", decimal.New(1, 6).Mul(decCrorePerRupee)},
	{"m", decimal.New(1, 6).Mul(decCrorePerRupee)},
	{"lakh", decLakh.Mul(decCrorePerRupee)},
	{"l", decLakh.Mul(decCrorePerRupee)},
	{"k", decThousand.Mul(decCrorePerRupee)},
}

// ParseCrore normalizes a money amount to crore.
// Bare numbers are taken as crore already. Strings may carry a currency
// symbol, thousands separators and a unit suffix:
//
//	"₹19.3T"    -> 1930000
//	"16.6L Cr"  -> 1660000
//	"1,234 Cr"  -> 1234
//	"850B"      -> 85000
func ParseCrore(v any) (float64, error) {
	s, ok := v.(string)
	if !ok {
		d, err := toDecimal(v)
		if err != nil {
			return 0, err
		}
		return d.InexactFloat64(), nil
	}

	s = strings.ToLower(cleanNumber(s))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimSuffix(s, ".")

	mult := decimal.NewFromInt(1)
	for _, u := range amountSuffixes {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSuffix(s, u.suffix)
			mult = u.mult
			break
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errNotNumeric, v)
	}
	return d.Mul(mult).InexactFloat64(), nil
}

// ParseNumber converts a payload value to float64.
// Accepts float64, json.Number, integers and numeric strings
// ("1,234.5", "+2.3%", "₹3,500").
func ParseNumber(v any) (float64, error) {
	d, err := toDecimal(v)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, fmt.Errorf("%w: %v", errNotNumeric, n)
		}
		return decimal.NewFromFloat(n), nil
	case float32:
		return toDecimal(float64(n))
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: %q", errNotNumeric, n)
		}
		return d, nil
	case string:
		d, err := decimal.NewFromString(cleanNumber(n))
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: %q", errNotNumeric, n)
		}
		return d, nil
	}
	return decimal.Decimal{}, fmt.Errorf("%w: %T", errNotNumeric, v)
}

// cleanNumber strips currency markers, separators, signs and percent.
func cleanNumber(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"₹", "Rs.", "Rs", "INR"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	return strings.TrimSpace(s)
}
