// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package voting

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd"
)

// maxExponent bounds the decimal exponent accepted when parsing so that the
// denominator always fits in a uint64.
const maxExponent = 19

var (
	ErrInvalidSampleSize = errors.New("invalid sample size")

	ten = big.NewInt(10)
)

// SampleSize is the fraction Num/Den of the total eligible power that must
// take part in a round. The zero value is invalid; use All for "everyone".
type SampleSize struct {
	Num uint64 `json:"numerator"`
	Den uint64 `json:"denominator"`
}

// All is the default sample size: the whole population.
func All() SampleSize {
	return SampleSize{Num: 1, Den: 1}
}

// Verify checks 0 <= Num/Den <= 1.
func (s SampleSize) Verify() error {
	switch {
	case s.Den == 0:
		return fmt.Errorf("%w: zero denominator", ErrInvalidSampleSize)
	case s.Num > s.Den:
		return fmt.Errorf("%w: %d/%d exceeds 1", ErrInvalidSampleSize, s.Num, s.Den)
	default:
		return nil
	}
}

func (s SampleSize) String() string {
	if s.Den == 1 {
		return strconv.FormatUint(s.Num, 10)
	}
	return fmt.Sprintf("%d/%d", s.Num, s.Den)
}

func (s SampleSize) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts either an exact decimal ("0.67", "1") or a ratio
// ("2/3").
func (s *SampleSize) UnmarshalText(text []byte) error {
	parsed, err := ParseSampleSize(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSampleSize parses a decimal or a ratio without rounding.
func ParseSampleSize(str string) (SampleSize, error) {
	str = strings.TrimSpace(str)
	if numStr, denStr, ok := strings.Cut(str, "/"); ok {
		num, err := strconv.ParseUint(strings.TrimSpace(numStr), 10, 64)
		if err != nil {
			return SampleSize{}, fmt.Errorf("%w: %w", ErrInvalidSampleSize, err)
		}
		den, err := strconv.ParseUint(strings.TrimSpace(denStr), 10, 64)
		if err != nil {
			return SampleSize{}, fmt.Errorf("%w: %w", ErrInvalidSampleSize, err)
		}
		s := SampleSize{Num: num, Den: den}
		return s, s.Verify()
	}

	d, _, err := apd.NewFromString(str)
	if err != nil {
		return SampleSize{}, fmt.Errorf("%w: %w", ErrInvalidSampleSize, err)
	}
	if d.Form != apd.Finite || d.Negative {
		return SampleSize{}, fmt.Errorf("%w: %q", ErrInvalidSampleSize, str)
	}
	if d.Exponent > maxExponent || d.Exponent < -maxExponent {
		return SampleSize{}, fmt.Errorf("%w: exponent of %q out of range", ErrInvalidSampleSize, str)
	}

	num := new(big.Int).Set(&d.Coeff)
	den := big.NewInt(1)
	scale := new(big.Int).Exp(ten, big.NewInt(int64(abs(d.Exponent))), nil)
	if d.Exponent >= 0 {
		num.Mul(num, scale)
	} else {
		den.Set(scale)
	}
	if num.Sign() == 0 {
		den.SetUint64(1)
	} else {
		gcd := new(big.Int).GCD(nil, nil, num, den)
		num.Quo(num, gcd)
		den.Quo(den, gcd)
	}
	if !num.IsUint64() || !den.IsUint64() {
		return SampleSize{}, fmt.Errorf("%w: %q", ErrInvalidSampleSize, str)
	}

	s := SampleSize{Num: num.Uint64(), Den: den.Uint64()}
	return s, s.Verify()
}

func abs(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}
