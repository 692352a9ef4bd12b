// Package safetygate implements the gate that compares a candidate rate
// against the last published rate and latches protected mode on
// catastrophic movement.
package safetygate

import (
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/concordium/euro2ccd-oracle/internal/scalarmath"
)

// Thresholds holds the asymmetric percentage bounds validated at startup:
// 1 <= WarnIncrease < HaltIncrease; 1 <= WarnDecrease < HaltDecrease <= 100.
type Thresholds struct {
	WarnIncrease int
	HaltIncrease int
	WarnDecrease int
	HaltDecrease int
}

// Validate checks the invariants spec §3 places on Thresholds.
func (t Thresholds) Validate() error {
	if t.WarnIncrease < 1 || t.WarnIncrease >= t.HaltIncrease {
		return fmt.Errorf("safetygate: invalid increase thresholds: 1 <= warn(%d) < halt(%d) required", t.WarnIncrease, t.HaltIncrease)
	}
	if t.WarnDecrease < 1 || t.WarnDecrease >= t.HaltDecrease || t.HaltDecrease > 100 {
		return fmt.Errorf("safetygate: invalid decrease thresholds: 1 <= warn(%d) < halt(%d) <= 100 required", t.WarnDecrease, t.HaltDecrease)
	}
	return nil
}

// Decision is the outcome of one gate evaluation.
type Decision int

const (
	// Accept: publish without comment.
	Accept Decision = iota
	// Warn: publish, but increment the warning counter.
	Warn
	// Halt: do not publish; protected mode has just latched (or already had).
	Halt
)

// StatsRecorder receives the metric events SafetyGate emits.
type StatsRecorder interface {
	IncWarningViolations()
	SetProtectedMode(on bool)
}

// Gate is a one-way latch: once engage runs, IsProtected always
// returns true for the remaining process lifetime, regardless of any
// future candidate.
type Gate struct {
	mu           sync.Mutex
	protected    bool
	thresholds   Thresholds
	lockfilePath string
	stats        StatsRecorder
	log          zerolog.Logger
}

// New constructs a Gate. If the lockfile already exists on disk, the gate
// starts latched (protected mode survives restarts).
func New(thresholds Thresholds, lockfilePath string, stats StatsRecorder, log zerolog.Logger) *Gate {
	g := &Gate{thresholds: thresholds, lockfilePath: lockfilePath, stats: stats, log: log}
	if _, err := os.Stat(lockfilePath); err == nil {
		g.protected = true
		log.Warn().Str("lockfile", lockfilePath).Msg("protected mode inherited from existing lockfile")
	}
	if stats != nil {
		stats.SetProtectedMode(g.protected)
	}
	return g
}

// IsProtected reports whether the latch has engaged.
func (g *Gate) IsProtected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.protected
}

// ForceProtected engages protected mode unconditionally for this process —
// used for --dry-run. Unlike a halt it writes no lockfile, so the latch does
// not carry over to the next start. A lockfile found at startup is handled
// by New.
func (g *Gate) ForceProtected() {
	g.mu.Lock()
	g.protected = true
	g.mu.Unlock()

	g.log.Warn().Msg("protected mode forced for this invocation")
	if g.stats != nil {
		g.stats.SetProtectedMode(true)
	}
}

// Evaluate compares cand to prevRate and returns the gate's decision.
// Halt calls engage() internally, latching protected mode and writing the
// sentinel file.
func (g *Gate) Evaluate(prevRate, cand *big.Rat) (Decision, error) {
	diff, err := scalarmath.RelativeChange(prevRate, cand)
	if err != nil {
		return Halt, err
	}

	increase := cand.Cmp(prevRate) > 0
	var warnT, haltT int
	if increase {
		warnT, haltT = g.thresholds.WarnIncrease, g.thresholds.HaltIncrease
	} else {
		warnT, haltT = g.thresholds.WarnDecrease, g.thresholds.HaltDecrease
	}

	haltThreshold := big.NewRat(int64(haltT), 1)
	warnThreshold := big.NewRat(int64(warnT), 1)

	switch {
	case diff.Cmp(haltThreshold) > 0:
		g.engage(fmt.Sprintf("relative change %s%% exceeds halt threshold %d%%", diff.FloatString(4), haltT))
		return Halt, nil
	case diff.Cmp(warnThreshold) > 0:
		if g.stats != nil {
			g.stats.IncWarningViolations()
		}
		g.log.Warn().Str("diff_pct", diff.FloatString(4)).Msg("candidate rate crossed warn threshold")
		return Warn, nil
	default:
		return Accept, nil
	}
}

// engage latches protected mode, writes the sentinel file, and sets the
// gauge. It is idempotent — engaging an already-protected gate is a no-op
// beyond logging.
func (g *Gate) engage(reason string) {
	g.mu.Lock()
	alreadyProtected := g.protected
	g.protected = true
	g.mu.Unlock()

	if alreadyProtected {
		return
	}

	g.log.Error().Str("reason", reason).Msg("engaging protected mode")
	if err := os.WriteFile(g.lockfilePath, []byte(reason+"\n"), 0o644); err != nil {
		g.log.Error().Err(err).Str("lockfile", g.lockfilePath).Msg("failed to write protected-mode lockfile")
	}
	if g.stats != nil {
		g.stats.SetProtectedMode(true)
	}
}
