// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package math

import (
	"errors"

	"github.com/holiman/uint256"
)

var ErrOverflow = errors.New("overflow")

// Add returns:
// 1) a + b
// 2) If there is overflow, an error
func Add(a, b uint64) (uint64, error) {
	if a > ^uint64(0)-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// ProductAtLeast reports whether a*b >= c*d. The products are computed in 256
// bits so the comparison never overflows.
func ProductAtLeast(a, b, c, d uint64) bool {
	lhs := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	rhs := new(uint256.Int).Mul(uint256.NewInt(c), uint256.NewInt(d))
	return !lhs.Lt(rhs)
}
