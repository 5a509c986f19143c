package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/agora/pkg/models"
)

// ApplyTransition moves a task from tr.From to tr.To with a compare-and-set
// update and appends tr to the task's transition log, in one transaction.
// Returns ErrTaskNotFound for unknown tasks and ErrStaleStatus when the
// stored status no longer equals tr.From.
func (db *DB) ApplyTransition(tr models.Transition, update *models.Task) error {
	meta, err := marshalMap(tr.Metadata)
	if err != nil {
		return fmt.Errorf("marshal transition metadata: %w", err)
	}

	var (
		taskMeta   sql.NullString
		taskResult sql.NullString
	)
	if update != nil {
		if taskMeta, err = marshalMap(update.Metadata); err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		taskResult = nullString(update.Result)
	}

	at := tr.At
	if at.IsZero() {
		at = touch()
	}

	return db.Transaction(func(tx *sql.Tx) error {
		var result sql.Result
		if update != nil {
			result, err = tx.Exec(`
				UPDATE tasks SET status = ?, metadata = ?, result = ?, updated_at = ?
				WHERE id = ? AND status = ?
			`, string(tr.To), taskMeta, taskResult, formatTime(at), tr.TaskID, string(tr.From))
		} else {
			result, err = tx.Exec(`
				UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?
			`, string(tr.To), formatTime(at), tr.TaskID, string(tr.From))
		}
		if err != nil {
			return fmt.Errorf("update task status: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			exists, err := taskExists(tx, tr.TaskID)
			if err != nil {
				return fmt.Errorf("check task: %w", err)
			}
			if !exists {
				return ErrTaskNotFound
			}
			return ErrStaleStatus
		}

		if _, err := tx.Exec(`
			INSERT INTO transitions (task_id, from_status, to_status, at, actor, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
		`, tr.TaskID, string(tr.From), string(tr.To), formatTime(at), nullString(tr.Actor), meta); err != nil {
			return fmt.Errorf("record transition: %w", err)
		}
		return nil
	})
}

// ListTransitions returns a task's transition log in the order applied.
func (db *DB) ListTransitions(taskID string) ([]models.Transition, error) {
	rows, err := db.Query(`
		SELECT task_id, from_status, to_status, at, actor, metadata
		FROM transitions WHERE task_id = ? ORDER BY seq ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var transitions []models.Transition
	for rows.Next() {
		var (
			tr          models.Transition
			from, to    string
			at          string
			actor, meta sql.NullString
		)
		if err := rows.Scan(&tr.TaskID, &from, &to, &at, &actor, &meta); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.From = models.TaskStatus(from)
		tr.To = models.TaskStatus(to)
		tr.Actor = actor.String
		if tr.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("parse transition time: %w", err)
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &tr.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal transition metadata: %w", err)
			}
		}
		transitions = append(transitions, tr)
	}
	return transitions, rows.Err()
}
