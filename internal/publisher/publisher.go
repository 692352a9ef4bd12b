// Package publisher implements the control-loop state machine: tick,
// aggregate, gate, reduce, sign, submit, confirm, and the sequence-number
// recovery and node-failover paths around it. The loop skeleton is
// grounded in the teacher's scheduler ticker/select shape
// (internal/scheduler/scheduler.go Start) generalized from job dispatch to
// a single fixed operation, and in the web3-nomad oracle-feeder's
// Oracle.tick control flow.
package publisher

import (
	"context"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/concordium/euro2ccd-oracle/internal/aggregator"
	"github.com/concordium/euro2ccd-oracle/internal/node"
	"github.com/concordium/euro2ccd-oracle/internal/ratehistory"
	"github.com/concordium/euro2ccd-oracle/internal/safetygate"
	"github.com/concordium/euro2ccd-oracle/internal/scalarmath"
)

// Timeouts bundles the fixed durations of §5.
type Timeouts struct {
	MaxTimeCheckSubmission       time.Duration
	CheckSubmissionStatusInterval time.Duration
	RetrySubmissionInterval      time.Duration
	UpdateExpiryOffset           time.Duration
	UpdateInterval               time.Duration
}

// DefaultTimeouts returns the values named in spec §5.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		MaxTimeCheckSubmission:        120 * time.Second,
		CheckSubmissionStatusInterval: 5 * time.Second,
		RetrySubmissionInterval:       10 * time.Second,
		UpdateExpiryOffset:            100 * time.Second,
		UpdateInterval:                1800 * time.Second,
	}
}

// Signer produces signatures for a block item over the keys resolved at
// startup, keyed by authorized-key index.
type Signer interface {
	Sign(item node.BlockItem) (map[uint8][]byte, error)
}

// AuditRecorder receives one row per finalized publication.
type AuditRecorder interface {
	RecordUpdate(ctx context.Context, f scalarmath.Fraction, at time.Time) error
}

// StatsRecorder receives publisher-level metric events.
type StatsRecorder interface {
	SetExchangeRateUpdated(microCCDPerEUR float64)
	IncFailedSubmissions()
	ResetFailedSubmissions()
}

// State is the Publisher's exclusively-owned lifecycle state (§3
// PublisherState). Only the Publisher's own goroutine touches it.
type State struct {
	PrevRate      *big.Rat
	SeqNumber     uint64
	Gate          *safetygate.Gate
	Signer        Signer // nil once protected mode has latched
}

// Publisher runs the control tick against one Client and a fixed set of
// per-source histories.
type Publisher struct {
	Node       *node.Client
	Histories  map[string]*ratehistory.History
	State      *State
	Timeouts   Timeouts
	Audit      AuditRecorder
	Stats      StatsRecorder
	Log        zerolog.Logger
}

// Start enters protected mode immediately if dryRun or the sentinel already
// latched (per the Gate constructor), and begins ticking every
// UpdateInterval with the first tick delayed by one full interval. The
// on-chain rate and sequence number are taken from p.State as the caller
// initialized it; Start fetches nothing itself.
func Start(ctx context.Context, p *Publisher, dryRun bool) {
	if dryRun {
		p.State.Gate.ForceProtected()
		p.State.Signer = nil
	}
	if p.State.Gate.IsProtected() {
		p.State.Signer = nil
	}

	ticker := time.NewTicker(p.Timeouts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick runs exactly one control-loop iteration. Any failure logs at error
// level and yields to the next tick; nothing here is fatal to the process.
func (p *Publisher) tick(ctx context.Context) {
	cand, ok := aggregator.Aggregate(p.Histories)
	if !ok {
		p.Log.Warn().Msg("aggregate yielded no value, skipping tick")
		return
	}

	decision, err := p.State.Gate.Evaluate(p.State.PrevRate, cand)
	if err != nil {
		p.Log.Error().Err(err).Msg("gate evaluation failed, skipping tick")
		return
	}
	if decision == safetygate.Halt {
		p.State.Signer = nil
		p.Log.Error().Msg("protected mode engaged, no publication this or any future tick")
		return
	}

	if p.State.Gate.IsProtected() || p.State.Signer == nil {
		p.Log.Info().Msg("in protected mode, skipping publication")
		return
	}

	fraction := scalarmath.ReduceToFraction(cand)
	p.publish(ctx, fraction)
}

// publish drives the submit/confirm loop of §4.7 step 4, including
// sequence-number recovery and endpoint failover.
func (p *Publisher) publish(ctx context.Context, fraction scalarmath.Fraction) {
	failovers := 0
	for {
		item := node.BlockItem{
			SequenceNumber: p.State.SeqNumber,
			EffectiveTime:  0,
			Expiry:         time.Now().Add(p.Timeouts.UpdateExpiryOffset),
			Payload:        fraction,
		}

		sigs, err := p.State.Signer.Sign(item)
		if err != nil {
			p.Log.Error().Err(err).Msg("signing failed, skipping tick")
			return
		}
		item.Signatures = sigs

		id, err := p.Node.SendBlockItem(ctx, item)
		if err != nil {
			var subErr *node.SubmissionError
			if isSubmissionError(err, &subErr) {
				switch {
				case subErr.RetryWithFreshSequence:
					if !p.refreshSequence(ctx) {
						return
					}
					select {
					case <-ctx.Done():
						return
					case <-time.After(p.Timeouts.RetrySubmissionInterval):
					}
					continue
				case subErr.Unreachable:
					p.Node.NextEndpointOnFailover()
					failovers++
					if failovers >= p.Node.EndpointCount() {
						p.Log.Error().Msg("all endpoints unreachable, skipping tick")
						if p.Stats != nil {
							p.Stats.IncFailedSubmissions()
						}
						return
					}
					continue
				}
			}
			p.Log.Error().Err(err).Msg("submission failed, skipping tick")
			if p.Stats != nil {
				p.Stats.IncFailedSubmissions()
			}
			return
		}

		deadline := time.Now().Add(p.Timeouts.MaxTimeCheckSubmission)
		finalized, err := p.Node.WaitUntilFinalized(ctx, id, p.Timeouts.CheckSubmissionStatusInterval, deadline)
		if err != nil {
			p.Log.Error().Err(err).Msg("finalization poll failed, skipping tick")
			return
		}
		if !finalized {
			p.Log.Warn().Msg("finalization timed out, sequence number not advanced; next tick retries")
			return
		}

		p.State.SeqNumber = item.SequenceNumber + 1
		p.State.PrevRate = new(big.Rat).SetFrac(
			new(big.Int).SetUint64(fraction.Num),
			new(big.Int).SetUint64(fraction.Den),
		)
		if p.Audit != nil {
			if err := p.Audit.RecordUpdate(ctx, fraction, time.Now()); err != nil {
				p.Log.Error().Err(err).Msg("failed to audit update")
			}
		}
		if p.Stats != nil {
			p.Stats.ResetFailedSubmissions()
			rate := new(big.Float).Quo(new(big.Float).SetUint64(fraction.Num), new(big.Float).SetUint64(fraction.Den))
			f, _ := rate.Float64()
			p.Stats.SetExchangeRateUpdated(f)
		}
		p.Log.Info().Uint64("seq", item.SequenceNumber).Msg("update finalized")
		return
	}
}

// refreshSequence re-fetches the block summary to recover a fresh sequence
// number after a stale-sequence rejection.
func (p *Publisher) refreshSequence(ctx context.Context) bool {
	summary, err := p.Node.GetBlockSummary(ctx)
	if err != nil {
		p.Log.Error().Err(err).Msg("sequence recovery failed, skipping tick")
		return false
	}
	p.State.SeqNumber = summary.NextSequenceNumber
	return true
}

func isSubmissionError(err error, target **node.SubmissionError) bool {
	se, ok := err.(*node.SubmissionError)
	if ok {
		*target = se
	}
	return ok
}
