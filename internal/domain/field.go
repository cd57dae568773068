package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownField is returned when a criterion or sort key names a field
// that quotes do not carry.
var ErrUnknownField = errors.New("unknown quote field")

// Field names a numeric quote attribute usable in criteria and sort keys.
type Field string

const (
	FieldPrice         Field = "price"
	FieldChange        Field = "change"
	FieldChangePercent Field = "changePercent"
	FieldVolume        Field = "volume"
	FieldMarketCap     Field = "marketCap"
	FieldPERatio       Field = "peRatio"
	FieldPBRatio       Field = "pbRatio"
	FieldDividendYield Field = "dividendYield"
	FieldROE           Field = "roe"
	FieldRSI           Field = "rsi"
	FieldBeta          Field = "beta"
	FieldRevenue       Field = "revenue"
	FieldRevenueGrowth Field = "revenueGrowth"
	FieldDebtToEquity  Field = "debtToEquity"
)

// AllFields lists every known field in display order.
var AllFields = []Field{
	FieldPrice,
	FieldChange,
	FieldChangePercent,
	FieldVolume,
	FieldMarketCap,
	FieldPERatio,
	FieldPBRatio,
	FieldDividendYield,
	FieldROE,
	FieldRSI,
	FieldBeta,
	FieldRevenue,
	FieldRevenueGrowth,
	FieldDebtToEquity,
}

// fieldAliases maps alternative spellings seen in feeds and UI params.
var fieldAliases = map[string]Field{
	"pe":             FieldPERatio,
	"pb":             FieldPBRatio,
	"market_cap":     FieldMarketCap,
	"change_percent": FieldChangePercent,
	"dividend_yield": FieldDividendYield,
	"revenue_growth": FieldRevenueGrowth,
	"debt_to_equity": FieldDebtToEquity,
	"pe_ratio":       FieldPERatio,
	"pb_ratio":       FieldPBRatio,
}

// String returns the string representation of Field.
func (f Field) String() string {
	return string(f)
}

// IsValid checks if the field is a known quote field.
func (f Field) IsValid() bool {
	for _, known := range AllFields {
		if f == known {
			return true
		}
	}
	return false
}

// ParseField resolves a field name or alias.
func ParseField(name string) (Field, error) {
	f := Field(name)
	if f.IsValid() {
		return f, nil
	}
	if alias, ok := fieldAliases[name]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
}
