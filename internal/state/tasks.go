package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/agora/pkg/models"
)

const taskColumns = `id, parent_id, phase, title, description, type, complexity, risk,
	status, strategy, depends_on, due_at, metadata, created_by, result, created_at, updated_at`

// CreateTask inserts a new task together with its participant list.
func (db *DB) CreateTask(t *models.Task) error {
	dependsOn, err := marshalList(t.DependsOn)
	if err != nil {
		return fmt.Errorf("marshal depends_on: %w", err)
	}
	metadata, err := marshalMap(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var dueAt sql.NullString
	if t.DueAt != nil {
		dueAt = sql.NullString{String: formatTime(*t.DueAt), Valid: true}
	}

	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO tasks (`+taskColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, nullString(t.ParentID), t.Phase, t.Title, t.Description, string(t.Type),
			t.Complexity, t.Risk, string(t.Status), string(t.Strategy), dependsOn, dueAt,
			metadata, t.CreatedBy, nullString(t.Result), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
		if err != nil {
			return fmt.Errorf("create task: %w", err)
		}

		if err := insertParticipants(tx, t.ID, t.Participants); err != nil {
			return err
		}
		return nil
	})
}

func insertParticipants(tx *sql.Tx, taskID string, participants []string) error {
	for i, agentID := range participants {
		if _, err := tx.Exec(`
			INSERT INTO task_participants (task_id, agent_id, position) VALUES (?, ?, ?)
		`, taskID, agentID, i); err != nil {
			return fmt.Errorf("add participant %s: %w", agentID, err)
		}
	}
	return nil
}

// GetTask retrieves a task by ID.
// Returns nil, nil if the task does not exist.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	participants, err := db.loadParticipants([]string{t.ID})
	if err != nil {
		return nil, err
	}
	t.Participants = participants[t.ID]
	return t, nil
}

// UpdateTask writes the mutable fields of a task: metadata, result and
// participants. Status changes go through ApplyTransition.
func (db *DB) UpdateTask(t *models.Task) error {
	metadata, err := marshalMap(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	return db.Transaction(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			UPDATE tasks SET metadata = ?, result = ?, updated_at = ? WHERE id = ?
		`, metadata, nullString(t.Result), formatTime(t.UpdatedAt), t.ID)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return ErrTaskNotFound
		}

		if _, err := tx.Exec(`DELETE FROM task_participants WHERE task_id = ?`, t.ID); err != nil {
			return fmt.Errorf("clear participants: %w", err)
		}
		return insertParticipants(tx, t.ID, t.Participants)
	})
}

// ListTasks returns tasks matching the filter, oldest first.
func (db *DB) ListTasks(filter TaskFilter) ([]models.Task, error) {
	var (
		where []string
		args  []any
	)

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.AgentID != "" {
		where = append(where, "id IN (SELECT task_id FROM task_participants WHERE agent_id = ?)")
		args = append(args, filter.AgentID)
	}
	if filter.ParentID != "" {
		where = append(where, "parent_id = ?")
		args = append(args, filter.ParentID)
	}
	if filter.TopLevel {
		where = append(where, "parent_id IS NULL")
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	rows.Close()

	if len(tasks) == 0 {
		return tasks, nil
	}

	ids := make([]string, len(tasks))
	for i := range tasks {
		ids[i] = tasks[i].ID
	}
	participants, err := db.loadParticipants(ids)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].Participants = participants[tasks[i].ID]
	}

	return tasks, nil
}

// loadParticipants returns the ordered participant list for each task ID.
func (db *DB) loadParticipants(taskIDs []string) (map[string][]string, error) {
	placeholders := make([]string, len(taskIDs))
	args := make([]any, len(taskIDs))
	for i, id := range taskIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := db.Query(`
		SELECT task_id, agent_id FROM task_participants
		WHERE task_id IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY task_id, position ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]string, len(taskIDs))
	for rows.Next() {
		var taskID, agentID string
		if err := rows.Scan(&taskID, &agentID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		result[taskID] = append(result[taskID], agentID)
	}
	return result, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*models.Task, error) {
	var (
		t                    models.Task
		taskType, status     string
		strategy             string
		parentID, desc       sql.NullString
		dependsOn, dueAt     sql.NullString
		metadata, createdBy  sql.NullString
		result               sql.NullString
		createdAt, updatedAt string
	)

	err := s.Scan(&t.ID, &parentID, &t.Phase, &t.Title, &desc, &taskType, &t.Complexity, &t.Risk,
		&status, &strategy, &dependsOn, &dueAt, &metadata, &createdBy, &result, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.ParentID = parentID.String
	t.Description = desc.String
	t.Type = models.TaskType(taskType)
	t.Status = models.TaskStatus(status)
	t.Strategy = models.Strategy(strategy)
	t.CreatedBy = createdBy.String
	t.Result = result.String
	t.DueAt = parseNullableTime(dueAt)

	if dependsOn.Valid && dependsOn.String != "" {
		if err := json.Unmarshal([]byte(dependsOn.String), &t.DependsOn); err != nil {
			return nil, fmt.Errorf("unmarshal depends_on: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &t, nil
}

func marshalList(list []string) (sql.NullString, error) {
	if len(list) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func marshalMap(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// taskExists reports whether a task row exists, inside a transaction.
func taskExists(tx *sql.Tx, id string) (bool, error) {
	var one int
	err := tx.QueryRow(`SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// touch returns the timestamp used for updated_at.
var touch = func() time.Time { return time.Now().UTC() }
