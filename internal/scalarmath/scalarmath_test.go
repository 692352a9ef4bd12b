package scalarmath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rats(vals ...int64) []*big.Rat {
	out := make([]*big.Rat, len(vals))
	for i, v := range vals {
		out[i] = big.NewRat(v, 1)
	}
	return out
}

func TestMedianOdd(t *testing.T) {
	m, err := Median(rats(1, 9, 5, 9, 3))
	require.NoError(t, err)
	assert.Equal(t, big.NewRat(5, 1).String(), m.String())
}

func TestMedianEven(t *testing.T) {
	m, err := Median(rats(1, 9, 5, 9))
	require.NoError(t, err)
	assert.Equal(t, big.NewRat(7, 1).String(), m.String())
}

func TestMedianEmpty(t *testing.T) {
	_, err := Median(nil)
	assert.ErrorIs(t, err, ErrNoValue)
}

func TestAverageEmpty(t *testing.T) {
	_, err := Average(nil)
	assert.ErrorIs(t, err, ErrNoValue)
}

func TestRelativeChangeWarnThenPublish(t *testing.T) {
	prev := big.NewRat(1_000_000, 1)
	cand := big.NewRat(1_250_000, 1)
	diff, err := RelativeChange(prev, cand)
	require.NoError(t, err)
	assert.Equal(t, big.NewRat(25, 1).String(), diff.String())
}

func TestRelativeChangeZeroRef(t *testing.T) {
	_, err := RelativeChange(big.NewRat(0, 1), big.NewRat(1, 1))
	assert.ErrorIs(t, err, ErrZeroReference)
}

func TestReduceToFractionFitsVerbatim(t *testing.T) {
	target := big.NewRat(13902531941473, 1)
	target.Quo(target, big.NewRat(12500000000000000, 1))
	f := ReduceToFraction(target)
	assert.Equal(t, uint64(13902531941473), f.Num)
	assert.Equal(t, uint64(12500000000000000), f.Den)
}

func TestReduceToFractionSqueezes(t *testing.T) {
	num := new(big.Int)
	num.SetString("100000000000000000000000000000000000", 10)
	den := new(big.Int)
	den.SetString("200000000000000000000000000000000001", 10)
	target := new(big.Rat).SetFrac(num, den)

	f := ReduceToFraction(target)
	got := new(big.Rat).SetFrac64(int64(f.Num), int64(f.Den))
	want := big.NewRat(1, 2)
	diff := new(big.Rat).Sub(got, want)
	diff.Abs(diff)
	threshold := big.NewRat(1, 100000000)
	assert.True(t, diff.Cmp(threshold) <= 0)
}
