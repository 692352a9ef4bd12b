package safetygate

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGate(t *testing.T, th Thresholds) *Gate {
	t.Helper()
	lockfile := filepath.Join(t.TempDir(), "update.lockfile")
	return New(th, lockfile, nil, zerolog.Nop())
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, Thresholds{WarnIncrease: 20, HaltIncrease: 30, WarnDecrease: 20, HaltDecrease: 30}.Validate())
	assert.Error(t, Thresholds{WarnIncrease: 30, HaltIncrease: 30, WarnDecrease: 20, HaltDecrease: 30}.Validate())
	assert.Error(t, Thresholds{WarnIncrease: 20, HaltIncrease: 30, WarnDecrease: 20, HaltDecrease: 101}.Validate())
}

func TestWarnThenPublish(t *testing.T) {
	g := newGate(t, Thresholds{WarnIncrease: 20, HaltIncrease: 30, WarnDecrease: 20, HaltDecrease: 30})
	prev := big.NewRat(1_000_000, 1)
	cand := big.NewRat(1_250_000, 1)

	d, err := g.Evaluate(prev, cand)
	require.NoError(t, err)
	assert.Equal(t, Warn, d)
	assert.False(t, g.IsProtected())
}

func TestHaltLatchesIrreversibly(t *testing.T) {
	g := newGate(t, Thresholds{WarnIncrease: 20, HaltIncrease: 100, WarnDecrease: 20, HaltDecrease: 30})
	prev := big.NewRat(1_000_000, 1)
	cand := big.NewRat(3_000_000, 1)

	d, err := g.Evaluate(prev, cand)
	require.NoError(t, err)
	assert.Equal(t, Halt, d)
	assert.True(t, g.IsProtected())

	// Subsequent ticks, even with a benign candidate, stay halted.
	d2, err := g.Evaluate(prev, big.NewRat(1_000_100, 1))
	require.NoError(t, err)
	assert.True(t, g.IsProtected())
	_ = d2
}

func TestBoundaryDoesNotHalt(t *testing.T) {
	g := newGate(t, Thresholds{WarnIncrease: 20, HaltIncrease: 30, WarnDecrease: 20, HaltDecrease: 30})
	prev := big.NewRat(100, 1)
	cand := big.NewRat(130, 1) // exactly +30%, strict > required to halt

	d, err := g.Evaluate(prev, cand)
	require.NoError(t, err)
	assert.Equal(t, Warn, d)
	assert.False(t, g.IsProtected())
}

func TestLockfileLatchesAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	lockfile := filepath.Join(dir, "update.lockfile")
	require.NoError(t, os.WriteFile(lockfile, []byte("halted"), 0o644))

	g := New(Thresholds{WarnIncrease: 20, HaltIncrease: 30, WarnDecrease: 20, HaltDecrease: 30}, lockfile, nil, zerolog.Nop())
	assert.True(t, g.IsProtected())
}
