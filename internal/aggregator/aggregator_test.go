package aggregator

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concordium/euro2ccd-oracle/internal/ratehistory"
)

func TestAggregateSimpleMedian(t *testing.T) {
	h := ratehistory.New(10)
	for _, v := range []int64{1, 9, 5, 9} {
		h.PushBack(big.NewRat(v, 1))
	}

	cand, ok := Aggregate(map[string]*ratehistory.History{"bitfinex": h})
	require.True(t, ok)
	assert.Equal(t, big.NewRat(7_000_000, 1).String(), cand.String())
}

func TestAggregateEmptyHistoryYieldsNoValue(t *testing.T) {
	h1 := ratehistory.New(10)
	h1.PushBack(big.NewRat(1, 1))
	h2 := ratehistory.New(10)

	_, ok := Aggregate(map[string]*ratehistory.History{"a": h1, "b": h2})
	assert.False(t, ok)
}

func TestAggregateMedianOfMedians(t *testing.T) {
	a := ratehistory.New(10)
	a.PushBack(big.NewRat(3878333, 100000000))
	b := ratehistory.New(10)
	b.PushBack(big.NewRat(3874119, 100000000))
	c := ratehistory.New(10)
	c.PushBack(big.NewRat(3824689, 100000000))

	cand, ok := Aggregate(map[string]*ratehistory.History{"a": a, "b": b, "c": c})
	require.True(t, ok)

	want := new(big.Rat).Mul(big.NewRat(3874119, 100000000), big.NewRat(1_000_000, 1))
	assert.Equal(t, want.String(), cand.String())
}
