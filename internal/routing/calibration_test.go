package routing

import (
	"errors"
	"testing"
	"time"

	"github.com/ShayCichocki/agora/internal/state"
	"github.com/ShayCichocki/agora/pkg/models"
)

type fakeOutcomes struct {
	outcomes []state.Outcome
	err      error
	calls    int
}

func (f *fakeOutcomes) RecentOutcomes(limit int) ([]state.Outcome, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.outcomes) {
		return f.outcomes[:limit], nil
	}
	return f.outcomes, nil
}

// outcomes builds n outcomes of one strategy, the first ok of which succeed.
func outcomes(strategy models.Strategy, n, ok int, agreement float64) []state.Outcome {
	out := make([]state.Outcome, n)
	for i := range out {
		out[i] = state.Outcome{
			TaskID:         string(strategy) + string(rune('a'+i)),
			Strategy:       strategy,
			Succeeded:      i < ok,
			AgreementScore: agreement,
			HasAgreement:   strategy == models.StrategyConsensus,
		}
	}
	return out
}

func concat(lists ...[]state.Outcome) []state.Outcome {
	var out []state.Outcome
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

func TestCalibrator_Rules(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []state.Outcome
		want     Thresholds
	}{
		{
			"agreeing consensus and failing solo lowers consensus threshold",
			concat(outcomes(models.StrategyConsensus, 6, 6, 0.9), outcomes(models.StrategySolo, 6, 3, 0)),
			Thresholds{Consensus: 6, Solo: 3},
		},
		{
			"disagreeing consensus stays at ceiling",
			concat(outcomes(models.StrategyConsensus, 6, 6, 0.2), outcomes(models.StrategySolo, 6, 5, 0)),
			Thresholds{Consensus: 7, Solo: 3},
		},
		{
			"reliable solo raises solo ceiling",
			concat(outcomes(models.StrategyConsensus, 4, 3, 0.7), outcomes(models.StrategySolo, 10, 10, 0)),
			Thresholds{Consensus: 7, Solo: 4},
		},
		{
			"too few samples keeps base",
			outcomes(models.StrategySolo, 5, 0, 0),
			Thresholds{Consensus: 7, Solo: 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeOutcomes{outcomes: tt.outcomes}
			c := NewCalibrator(src, DefaultThresholds(), CalibrationOptions{Enabled: true, Window: 50, MinSamples: 10, Interval: time.Minute})
			if got := c.Thresholds(); got != tt.want {
				t.Errorf("Thresholds() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCalibrator_Bounds(t *testing.T) {
	src := &fakeOutcomes{outcomes: concat(outcomes(models.StrategyConsensus, 10, 10, 1), outcomes(models.StrategySolo, 10, 5, 0))}
	c := NewCalibrator(src, DefaultThresholds(), CalibrationOptions{Enabled: true, MinSamples: 10, Interval: time.Minute})

	now := time.Now()
	c.now = func() time.Time { return now }

	for i := 0; i < 6; i++ {
		c.Thresholds()
		now = now.Add(2 * time.Minute)
	}
	got := c.Thresholds()
	if got.Consensus != 5 {
		t.Errorf("consensus threshold = %d, want floor 5", got.Consensus)
	}
	if got.Solo != 3 {
		t.Errorf("solo ceiling = %d, want floor 3", got.Solo)
	}
}

func TestCalibrator_Interval(t *testing.T) {
	src := &fakeOutcomes{outcomes: outcomes(models.StrategySolo, 12, 12, 0)}
	c := NewCalibrator(src, DefaultThresholds(), CalibrationOptions{Enabled: true, MinSamples: 10, Interval: 10 * time.Minute})

	now := time.Now()
	c.now = func() time.Time { return now }

	first := c.Thresholds()
	now = now.Add(time.Minute)
	second := c.Thresholds()
	if src.calls != 1 {
		t.Errorf("expected one outcome read within the interval, got %d", src.calls)
	}
	if first != second {
		t.Errorf("snapshot changed within interval: %+v vs %+v", first, second)
	}
	if got := c.LastSummary(); got.SoloSamples != 12 || got.SoloFailure != 0 {
		t.Errorf("LastSummary = %+v", got)
	}
}

func TestCalibrator_DisabledAndErrors(t *testing.T) {
	src := &fakeOutcomes{outcomes: outcomes(models.StrategySolo, 20, 20, 0)}
	c := NewCalibrator(src, DefaultThresholds(), CalibrationOptions{Enabled: false})
	if got := c.Thresholds(); got != DefaultThresholds() {
		t.Errorf("disabled calibrator changed thresholds: %+v", got)
	}
	if src.calls != 0 {
		t.Error("disabled calibrator should not read outcomes")
	}

	failing := &fakeOutcomes{err: errors.New("db locked")}
	c = NewCalibrator(failing, DefaultThresholds(), CalibrationOptions{Enabled: true})
	if got := c.Thresholds(); got != DefaultThresholds() {
		t.Errorf("failing source changed thresholds: %+v", got)
	}
}
