package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ShayCichocki/agora/pkg/models"
)

// CreateProposal stores a proposal. An agent may hold at most one proposal
// per task; a second insert returns ErrProposalExists. The task's status is
// read in the same transaction, so a task finished by another process since
// the caller looked at it yields ErrTaskNotAcceptingInput.
func (db *DB) CreateProposal(p *models.Proposal) error {
	return db.Transaction(func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRow(`SELECT status FROM tasks WHERE id = ?`, p.TaskID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTaskNotFound
		}
		if err != nil {
			return fmt.Errorf("check task: %w", err)
		}
		if !models.TaskStatus(status).AcceptsInput() {
			return ErrTaskNotAcceptingInput
		}

		var count int
		if err := tx.QueryRow(`
			SELECT COUNT(*) FROM proposals WHERE task_id = ? AND agent_id = ?
		`, p.TaskID, p.AgentID).Scan(&count); err != nil {
			return fmt.Errorf("check proposal: %w", err)
		}
		if count > 0 {
			return ErrProposalExists
		}

		if _, err := tx.Exec(`
			INSERT INTO proposals (id, task_id, agent_id, content, input_type, confidence, submitted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.TaskID, p.AgentID, p.Content, string(p.InputType), p.Confidence, formatTime(p.SubmittedAt)); err != nil {
			return fmt.Errorf("create proposal: %w", err)
		}
		return nil
	})
}

// ListProposals returns a task's proposals in submission order.
func (db *DB) ListProposals(taskID string) ([]models.Proposal, error) {
	rows, err := db.Query(`
		SELECT id, task_id, agent_id, content, input_type, confidence, submitted_at
		FROM proposals WHERE task_id = ? ORDER BY submitted_at ASC, agent_id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []models.Proposal
	for rows.Next() {
		var (
			p           models.Proposal
			inputType   string
			submittedAt string
		)
		if err := rows.Scan(&p.ID, &p.TaskID, &p.AgentID, &p.Content, &inputType, &p.Confidence, &submittedAt); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		p.InputType = models.InputType(inputType)
		if p.SubmittedAt, err = parseTime(submittedAt); err != nil {
			return nil, fmt.Errorf("parse submitted_at: %w", err)
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}
