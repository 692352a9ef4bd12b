package ratehistory

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoryBound(t *testing.T) {
	h := New(3)
	for i := int64(1); i <= 10; i++ {
		h.PushBack(big.NewRat(i, 1))
		assert.LessOrEqual(t, h.Len(), 3)
	}
	snap := h.SnapshotClone()
	assert.Equal(t, []string{"8/1", "9/1", "10/1"}, ratStrings(snap))
}

func TestPopFrontEmpty(t *testing.T) {
	h := New(3)
	_, ok := h.PopFront()
	assert.False(t, ok)
}

func ratStrings(rs []*big.Rat) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.String()
	}
	return out
}
