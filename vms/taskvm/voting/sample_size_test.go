// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package voting

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSampleSize(t *testing.T) {
	tests := []struct {
		in       string
		expected SampleSize
		err      error
	}{
		{in: "1", expected: SampleSize{Num: 1, Den: 1}},
		{in: "0", expected: SampleSize{Num: 0, Den: 1}},
		{in: "0.67", expected: SampleSize{Num: 67, Den: 100}},
		{in: "0.50", expected: SampleSize{Num: 1, Den: 2}},
		{in: "2/3", expected: SampleSize{Num: 2, Den: 3}},
		{in: " 1/1 ", expected: SampleSize{Num: 1, Den: 1}},
		{in: "1.5", err: ErrInvalidSampleSize},
		{in: "-0.1", err: ErrInvalidSampleSize},
		{in: "4/3", err: ErrInvalidSampleSize},
		{in: "1/0", err: ErrInvalidSampleSize},
		{in: "abc", err: ErrInvalidSampleSize},
		{in: "1e-40", err: ErrInvalidSampleSize},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			require := require.New(t)

			got, err := ParseSampleSize(test.in)
			require.ErrorIs(err, test.err)
			if test.err == nil {
				require.Equal(test.expected, got)
			}
		})
	}
}

func TestSampleSizeText(t *testing.T) {
	require := require.New(t)

	var s SampleSize
	require.NoError(s.UnmarshalText([]byte("0.25")))
	require.Equal(SampleSize{Num: 1, Den: 4}, s)

	text, err := s.MarshalText()
	require.NoError(err)
	require.Equal("1/4", string(text))

	text, err = All().MarshalText()
	require.NoError(err)
	require.Equal("1", string(text))
}
