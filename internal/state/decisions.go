package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/agora/pkg/models"
)

// CreateDecision stores the decision for a task. Decisions are immutable:
// a second decision for the same task returns ErrDecisionExists.
func (db *DB) CreateDecision(d *models.Decision) error {
	mergedFrom, err := marshalList(d.MergedFrom)
	if err != nil {
		return fmt.Errorf("marshal merged_from: %w", err)
	}
	strategies := make([]string, len(d.Strategies))
	for i, s := range d.Strategies {
		strategies[i] = string(s)
	}
	strategiesJSON, err := json.Marshal(strategies)
	if err != nil {
		return fmt.Errorf("marshal strategies: %w", err)
	}
	var scores sql.NullString
	if len(d.Scores) > 0 {
		data, err := json.Marshal(d.Scores)
		if err != nil {
			return fmt.Errorf("marshal scores: %w", err)
		}
		scores = sql.NullString{String: string(data), Valid: true}
	}

	return db.Transaction(func(tx *sql.Tx) error {
		exists, err := taskExists(tx, d.TaskID)
		if err != nil {
			return fmt.Errorf("check task: %w", err)
		}
		if !exists {
			return ErrTaskNotFound
		}

		var count int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM decisions WHERE task_id = ?`, d.TaskID).Scan(&count); err != nil {
			return fmt.Errorf("check decision: %w", err)
		}
		if count > 0 {
			return ErrDecisionExists
		}

		if _, err := tx.Exec(`
			INSERT INTO decisions (id, task_id, winning_proposal_id, content, merged_from,
				strategies, scores, agreement_score, degraded, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, d.ID, d.TaskID, nullString(d.WinningProposalID), d.Content, mergedFrom,
			string(strategiesJSON), scores, d.AgreementScore, boolToInt(d.Degraded), formatTime(d.CreatedAt)); err != nil {
			return fmt.Errorf("create decision: %w", err)
		}
		return nil
	})
}

// GetDecision retrieves the decision for a task.
// Returns nil, nil if the task has no decision.
func (db *DB) GetDecision(taskID string) (*models.Decision, error) {
	var (
		d                  models.Decision
		winner, mergedFrom sql.NullString
		strategies         string
		scores             sql.NullString
		degraded           int
		createdAt          string
	)

	err := db.QueryRow(`
		SELECT id, task_id, winning_proposal_id, content, merged_from, strategies,
			scores, agreement_score, degraded, created_at
		FROM decisions WHERE task_id = ?
	`, taskID).Scan(&d.ID, &d.TaskID, &winner, &d.Content, &mergedFrom, &strategies,
		&scores, &d.AgreementScore, &degraded, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get decision: %w", err)
	}

	d.WinningProposalID = winner.String
	d.Degraded = degraded != 0
	if mergedFrom.Valid && mergedFrom.String != "" {
		if err := json.Unmarshal([]byte(mergedFrom.String), &d.MergedFrom); err != nil {
			return nil, fmt.Errorf("unmarshal merged_from: %w", err)
		}
	}
	var names []string
	if err := json.Unmarshal([]byte(strategies), &names); err != nil {
		return nil, fmt.Errorf("unmarshal strategies: %w", err)
	}
	for _, n := range names {
		d.Strategies = append(d.Strategies, models.VotingStrategy(n))
	}
	if scores.Valid && scores.String != "" {
		if err := json.Unmarshal([]byte(scores.String), &d.Scores); err != nil {
			return nil, fmt.Errorf("unmarshal scores: %w", err)
		}
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
