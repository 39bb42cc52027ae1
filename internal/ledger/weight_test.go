package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWeightTiers(t *testing.T) {
	cases := []struct {
		name   string
		amount uint64
		age    int64
		want   uint64
	}{
		{"fresh", 1000, 0, 1000},
		{"exactly six months", 1000, 15_768_000, 1000},
		{"past six months", 1000, 15_768_001, 1500},
		{"truncates half units", 101, 15_768_001, 151},
		{"exactly one year", 1000, 31_536_000, 1500},
		{"past one year", 1000, 31_536_001, 2000},
		{"zero amount", 0, 40_000_000, 0},
		{"negative age", 1000, -5, 1000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Weight(tc.amount, tc.age)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestWeightOverflowFailsFast(t *testing.T) {
	_, err := Weight(math.MaxUint64, 31_536_001)
	require.ErrorIs(t, err, ErrOverflow)
	require.ErrorIs(t, err, ErrArithmetic)

	_, err = Weight(math.MaxUint64, 15_768_001)
	require.ErrorIs(t, err, ErrOverflow)

	// amount*3 exceeds 64 bits but the 1.5x result does not.
	large := uint64(math.MaxUint64 / 2)
	got, err := Weight(large, 15_768_001)
	require.NoError(t, err)
	require.Equal(t, large/2*3+1, got)
}

func TestCheckedMath(t *testing.T) {
	_, err := addU64(math.MaxUint64, 1)
	require.ErrorIs(t, err, ErrOverflow)

	_, err = subU64(1, 2)
	require.ErrorIs(t, err, ErrUnderflow)

	_, err = mulDivU64(1, 1, 0)
	require.ErrorIs(t, err, ErrDivisionByZero)

	got, err := mulDivU64(math.MaxUint64, math.MaxUint64, math.MaxUint64)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), got)
}
