// Package aggregator computes the median-of-medians candidate rate from
// every enabled source's rate history.
package aggregator

import (
	"math/big"

	"github.com/concordium/euro2ccd-oracle/internal/ratehistory"
	"github.com/concordium/euro2ccd-oracle/internal/scalarmath"
)

// microCCDPerCCD rescales a CCD/EUR rational into microCCD/EUR. Applied
// exactly once, here, per the spec's resolution of its unit-rescaling open
// question.
var microCCDPerCCD = big.NewRat(1_000_000, 1)

// Aggregate snapshots every history, computes each source's median, then
// the median across those medians, scaled into microCCD/EUR. Returns false
// if any enabled source's history is empty (the spec's "no value" case).
func Aggregate(histories map[string]*ratehistory.History) (*big.Rat, bool) {
	medians := make([]*big.Rat, 0, len(histories))

	for _, h := range histories {
		snap := h.SnapshotClone()
		if len(snap) == 0 {
			return nil, false
		}
		m, err := scalarmath.Median(snap)
		if err != nil {
			return nil, false
		}
		medians = append(medians, m)
	}

	if len(medians) == 0 {
		return nil, false
	}

	outer, err := scalarmath.Median(medians)
	if err != nil {
		return nil, false
	}

	cand := new(big.Rat).Mul(outer, microCCDPerCCD)
	return cand, true
}
