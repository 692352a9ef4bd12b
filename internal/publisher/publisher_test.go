package publisher

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/concordium/euro2ccd-oracle/internal/node"
	"github.com/concordium/euro2ccd-oracle/internal/ratehistory"
	"github.com/concordium/euro2ccd-oracle/internal/safetygate"
)

type stubSigner struct{ err error }

func (s stubSigner) Sign(item node.BlockItem) (map[uint8][]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return map[uint8][]byte{0: {1, 2, 3}}, nil
}

func newGate(t *testing.T) *safetygate.Gate {
	t.Helper()
	return safetygate.New(safetygate.Thresholds{WarnIncrease: 20, HaltIncrease: 30, WarnDecrease: 20, HaltDecrease: 30}, filepath.Join(t.TempDir(), "update.lockfile"), nil, zerolog.Nop())
}

func TestTickSkipsOnEmptyHistory(t *testing.T) {
	p := &Publisher{
		Histories: map[string]*ratehistory.History{"a": ratehistory.New(5)},
		State: &State{
			PrevRate: big.NewRat(1_000_000, 1),
			Gate:     newGate(t),
			Signer:   stubSigner{},
		},
		Timeouts: DefaultTimeouts(),
		Log:      zerolog.Nop(),
	}
	p.tick(context.Background())
	assert.Equal(t, uint64(0), p.State.SeqNumber)
}

func TestTickHaltsAndNeverPublishesAgain(t *testing.T) {
	h := ratehistory.New(5)
	h.PushBack(big.NewRat(3_000_000, 1))

	st := &State{
		PrevRate: big.NewRat(1_000_000, 1),
		Gate:     newGate(t),
		Signer:   stubSigner{},
	}
	p := &Publisher{
		Histories: map[string]*ratehistory.History{"a": h},
		State:     st,
		Timeouts:  DefaultTimeouts(),
		Log:       zerolog.Nop(),
	}

	p.tick(context.Background())
	assert.True(t, st.Gate.IsProtected())
	assert.Nil(t, st.Signer)
}
