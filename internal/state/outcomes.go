package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ShayCichocki/agora/pkg/models"
)

// Outcome records how a routed task ended. The calibrator aggregates
// recent outcomes to adjust routing thresholds.
type Outcome struct {
	// TaskID is the finished task.
	TaskID string
	// Strategy is the strategy the task was routed with.
	Strategy models.Strategy
	// Succeeded is true if the task reached COMPLETED.
	Succeeded bool
	// AgreementScore is the decision agreement for consensus tasks.
	AgreementScore float64
	// HasAgreement is true when AgreementScore was measured.
	HasAgreement bool
	// RecordedAt is when the outcome was recorded.
	RecordedAt time.Time
}

// RecordOutcome stores the outcome of a task. Recording the same task
// twice replaces the earlier entry.
func (db *DB) RecordOutcome(o Outcome) error {
	if o.RecordedAt.IsZero() {
		o.RecordedAt = touch()
	}
	var agreement sql.NullFloat64
	if o.HasAgreement {
		agreement = sql.NullFloat64{Float64: o.AgreementScore, Valid: true}
	}

	_, err := db.Exec(`
		INSERT OR REPLACE INTO routing_outcomes (task_id, strategy, succeeded, agreement_score, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, o.TaskID, string(o.Strategy), boolToInt(o.Succeeded), agreement, formatTime(o.RecordedAt))
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// RecentOutcomes returns up to limit outcomes, newest first.
func (db *DB) RecentOutcomes(limit int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT task_id, strategy, succeeded, agreement_score, recorded_at
		FROM routing_outcomes ORDER BY recorded_at DESC, task_id ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var (
			o          Outcome
			strategy   string
			succeeded  int
			agreement  sql.NullFloat64
			recordedAt string
		)
		if err := rows.Scan(&o.TaskID, &strategy, &succeeded, &agreement, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Strategy = models.Strategy(strategy)
		o.Succeeded = succeeded != 0
		o.HasAgreement = agreement.Valid
		o.AgreementScore = agreement.Float64
		if o.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
