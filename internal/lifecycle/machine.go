// Package lifecycle enforces the task state machine and records every
// transition in an append-only audit log.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ShayCichocki/agora/internal/state"
	"github.com/ShayCichocki/agora/pkg/models"
)

// transitions lists the allowed moves. Terminal states have no entry.
var transitions = map[models.TaskStatus][]models.TaskStatus{
	models.TaskStatusPending:      {models.TaskStatusInProgress, models.TaskStatusFailed},
	models.TaskStatusInProgress:   {models.TaskStatusWaitingInput, models.TaskStatusCompleted, models.TaskStatusFailed},
	models.TaskStatusWaitingInput: {models.TaskStatusInProgress, models.TaskStatusFailed},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to models.TaskStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Store is the persistence the state machine needs.
type Store interface {
	GetTask(id string) (*models.Task, error)
	UpdateTask(t *models.Task) error
	ApplyTransition(tr models.Transition, update *models.Task) error
	ListTransitions(taskID string) ([]models.Transition, error)
}

// Machine serializes lifecycle changes per task and publishes every applied
// transition to subscribers. Different tasks proceed concurrently.
type Machine struct {
	store Store
	locks *KeyedMutex
	now   func() time.Time

	mu     sync.Mutex
	subs   map[int]chan models.Transition
	nextID int
}

// New creates a state machine over store.
func New(store Store) *Machine {
	return &Machine{
		store: store,
		locks: NewKeyedMutex(),
		now:   func() time.Time { return time.Now().UTC() },
		subs:  make(map[int]chan models.Transition),
	}
}

// Txn is a view of one task while its lock is held.
type Txn struct {
	m *Machine
	// Task is the current snapshot; it is refreshed after each transition.
	Task *models.Task
}

// Do locks taskID, loads the task and runs fn. Any transition fn applies
// through the Txn is serialized with every other Do and Transition on the
// same task.
func (m *Machine) Do(ctx context.Context, taskID string, fn func(tx *Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := m.locks.Lock(taskID)
	defer unlock()

	task, err := m.store.GetTask(taskID)
	if err != nil {
		return models.Internal("load task", err)
	}
	if task == nil {
		return &models.NotFoundError{Kind: "task", ID: taskID}
	}
	return fn(&Txn{m: m, Task: task})
}

// Transition moves a task to status to. Invalid moves fail with a
// ConflictError and change nothing.
func (m *Machine) Transition(ctx context.Context, taskID string, to models.TaskStatus, actor string, meta map[string]string) (*models.Task, error) {
	var out *models.Task
	err := m.Do(ctx, taskID, func(tx *Txn) error {
		if err := tx.Transition(to, actor, meta, nil); err != nil {
			return err
		}
		out = tx.Task
		return nil
	})
	return out, err
}

// Transition applies a move on the locked task. mutate, if non-nil, edits
// a copy of the task whose metadata and result are written atomically with
// the status change.
func (tx *Txn) Transition(to models.TaskStatus, actor string, meta map[string]string, mutate func(*models.Task)) error {
	from := tx.Task.Status
	if !CanTransition(from, to) {
		return models.InvalidTransition(tx.Task.ID, from, to)
	}

	tr := models.Transition{
		TaskID:   tx.Task.ID,
		From:     from,
		To:       to,
		At:       tx.m.now(),
		Actor:    actor,
		Metadata: meta,
	}

	var update *models.Task
	if mutate != nil {
		update = tx.Task.Clone()
		mutate(update)
	}

	if err := tx.m.store.ApplyTransition(tr, update); err != nil {
		switch {
		case errors.Is(err, state.ErrStaleStatus):
			return &models.ConflictError{TaskID: tx.Task.ID, Reason: fmt.Sprintf("status changed concurrently from %s", from)}
		case errors.Is(err, state.ErrTaskNotFound):
			return &models.NotFoundError{Kind: "task", ID: tx.Task.ID}
		default:
			return models.Internal("apply transition", err)
		}
	}

	next := tx.Task.Clone()
	if update != nil {
		next = update
	}
	next.Status = to
	next.UpdatedAt = tr.At
	tx.Task = next

	log.Printf("[lifecycle] task %s: %s -> %s (%s)", tr.TaskID, from, to, actor)
	tx.m.publish(tr)
	return nil
}

// Update writes metadata and result changes without a status change.
func (tx *Txn) Update(mutate func(*models.Task)) error {
	update := tx.Task.Clone()
	mutate(update)
	update.Status = tx.Task.Status
	update.UpdatedAt = tx.m.now()
	if err := tx.m.store.UpdateTask(update); err != nil {
		if errors.Is(err, state.ErrTaskNotFound) {
			return &models.NotFoundError{Kind: "task", ID: tx.Task.ID}
		}
		return models.Internal("update task", err)
	}
	tx.Task = update
	return nil
}

// History returns the task's transitions in order.
func (m *Machine) History(taskID string) ([]models.Transition, error) {
	task, err := m.store.GetTask(taskID)
	if err != nil {
		return nil, models.Internal("load task", err)
	}
	if task == nil {
		return nil, &models.NotFoundError{Kind: "task", ID: taskID}
	}
	history, err := m.store.ListTransitions(taskID)
	if err != nil {
		return nil, models.Internal("list transitions", err)
	}
	return history, nil
}

// Subscribe returns a channel receiving every applied transition and a
// function that cancels the subscription. Slow subscribers miss
// transitions rather than blocking the state machine.
func (m *Machine) Subscribe(buffer int) (<-chan models.Transition, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan models.Transition, buffer)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

func (m *Machine) publish(tr models.Transition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- tr:
		default:
			log.Printf("[lifecycle] subscriber full, dropped %s -> %s for task %s", tr.From, tr.To, tr.TaskID)
		}
	}
}
