package routing

import (
	"log"
	"sync"
	"time"

	"github.com/ShayCichocki/agora/internal/state"
	"github.com/ShayCichocki/agora/pkg/models"
)

// Calibration rule constants.
const (
	// agreementFloor is the agreement score at which a consensus counts as agreed.
	agreementFloor = 0.5
	// minStrategySamples is the per-strategy sample needed before a rule applies.
	minStrategySamples = 3

	highAgreementRate = 0.8
	lowAgreementRate  = 0.5
	highSoloFailure   = 0.3
	lowSoloFailure    = 0.1

	// consensusSpan is how far below the configured value T_c may drop.
	consensusSpan = 2
)

// OutcomeSource supplies recent routing outcomes, newest first.
type OutcomeSource interface {
	RecentOutcomes(limit int) ([]state.Outcome, error)
}

// CalibrationOptions configures a Calibrator.
type CalibrationOptions struct {
	Enabled    bool
	Window     int
	MinSamples int
	Interval   time.Duration
}

// Calibrator slowly adjusts heuristic thresholds from past outcomes.
// It recalibrates at most once per interval; between runs it hands out
// the same snapshot.
type Calibrator struct {
	source OutcomeSource
	base   Thresholds
	opts   CalibrationOptions
	now    func() time.Time

	mu      sync.Mutex
	current Thresholds
	lastRun time.Time
	summary Summary
}

// Summary describes the outcomes behind the last calibration.
type Summary struct {
	Samples            int
	ConsensusSamples   int
	ConsensusAgreement float64
	SoloSamples        int
	SoloFailure        float64
}

// NewCalibrator creates a calibrator starting from base. source may be nil,
// in which case base is always returned.
func NewCalibrator(source OutcomeSource, base Thresholds, opts CalibrationOptions) *Calibrator {
	if opts.Window <= 0 {
		opts.Window = 50
	}
	if opts.MinSamples <= 0 {
		opts.MinSamples = 10
	}
	return &Calibrator{
		source:  source,
		base:    base,
		opts:    opts,
		now:     time.Now,
		current: base,
	}
}

// Thresholds returns the current snapshot, recalibrating first if due.
func (c *Calibrator) Thresholds() Thresholds {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opts.Enabled || c.source == nil {
		return c.current
	}
	now := c.now()
	if !c.lastRun.IsZero() && now.Sub(c.lastRun) < c.opts.Interval {
		return c.current
	}
	c.lastRun = now

	outcomes, err := c.source.RecentOutcomes(c.opts.Window)
	if err != nil {
		log.Printf("[router] calibration skipped: %v", err)
		return c.current
	}
	c.summary = summarize(outcomes)
	if c.summary.Samples < c.opts.MinSamples {
		return c.current
	}

	next := c.adjust(c.current, c.summary)
	if next != c.current {
		log.Printf("[router] calibrated thresholds: consensus %d->%d, solo %d->%d (%d samples)",
			c.current.Consensus, next.Consensus, c.current.Solo, next.Solo, c.summary.Samples)
	}
	c.current = next
	return c.current
}

// LastSummary returns the outcome summary from the last calibration run.
func (c *Calibrator) LastSummary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

// adjust applies one step of each rule, clamped to the calibration bounds.
func (c *Calibrator) adjust(th Thresholds, s Summary) Thresholds {
	if s.ConsensusSamples >= minStrategySamples {
		switch {
		case s.ConsensusAgreement >= highAgreementRate && s.SoloSamples >= minStrategySamples && s.SoloFailure >= highSoloFailure:
			th.Consensus--
		case s.ConsensusAgreement < lowAgreementRate:
			th.Consensus++
		}
	}
	if s.SoloSamples >= minStrategySamples {
		switch {
		case s.SoloFailure >= highSoloFailure:
			th.Solo--
		case s.SoloFailure < lowSoloFailure:
			th.Solo++
		}
	}
	return c.clamp(th)
}

// clamp keeps thresholds within [base-2, base] for consensus and
// [base, base+1] for solo, with solo always below consensus.
func (c *Calibrator) clamp(th Thresholds) Thresholds {
	th.Consensus = clampInt(th.Consensus, c.base.Consensus-consensusSpan, c.base.Consensus)
	th.Solo = clampInt(th.Solo, c.base.Solo, c.base.Solo+1)
	if th.Solo >= th.Consensus {
		th.Solo = th.Consensus - 1
	}
	if th.Solo < c.base.Solo {
		th.Solo = c.base.Solo
		th.Consensus = th.Solo + 1
	}
	return th
}

func summarize(outcomes []state.Outcome) Summary {
	var s Summary
	agreed, soloFailed := 0, 0
	for _, o := range outcomes {
		s.Samples++
		switch o.Strategy {
		case models.StrategyConsensus:
			s.ConsensusSamples++
			if o.Succeeded && (!o.HasAgreement || o.AgreementScore >= agreementFloor) {
				agreed++
			}
		case models.StrategySolo:
			s.SoloSamples++
			if !o.Succeeded {
				soloFailed++
			}
		}
	}
	if s.ConsensusSamples > 0 {
		s.ConsensusAgreement = float64(agreed) / float64(s.ConsensusSamples)
	}
	if s.SoloSamples > 0 {
		s.SoloFailure = float64(soloFailed) / float64(s.SoloSamples)
	}
	return s
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
