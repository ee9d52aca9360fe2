// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package money

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrFractionalMinorUnit = errors.New("amount has fractional minor units")
	ErrAmountOutOfRange    = errors.New("amount out of range")
)

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// ToMinor converts a decimal major-unit amount to integer minor units
// (cents). Amounts with fractional cents are rejected, never rounded.
func ToMinor(d decimal.Decimal) (int64, error) {
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, ErrFractionalMinorUnit
	}
	if shifted.Abs().Cmp(maxMinor) > 0 {
		return 0, ErrAmountOutOfRange
	}
	return shifted.IntPart(), nil
}

// FromMinor converts integer minor units back to a decimal major-unit amount.
func FromMinor(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

// ParseMinor parses a decimal string as stored by the durable store into
// minor units.
func ParseMinor(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return ToMinor(d)
}

// FormatMinor renders minor units as a two-decimal major-unit string.
func FormatMinor(v int64) string {
	return FromMinor(v).StringFixed(2)
}
