package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/agora/internal/state"
	"github.com/ShayCichocki/agora/pkg/models"
)

func setupMachine(t *testing.T) (*Machine, *state.DB) {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db), db
}

func createTask(t *testing.T, db *state.DB, id string, status models.TaskStatus) {
	t.Helper()
	now := time.Now().UTC()
	task := &models.Task{
		ID:           id,
		Title:        "Write the parser",
		Type:         models.TaskTypeImplementation,
		Complexity:   3,
		Risk:         2,
		Status:       status,
		Strategy:     models.StrategySolo,
		Participants: []string{"claude"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	all := []models.TaskStatus{
		models.TaskStatusPending,
		models.TaskStatusInProgress,
		models.TaskStatusWaitingInput,
		models.TaskStatusCompleted,
		models.TaskStatusFailed,
	}
	allowed := map[[2]models.TaskStatus]bool{
		{models.TaskStatusPending, models.TaskStatusInProgress}:      true,
		{models.TaskStatusPending, models.TaskStatusFailed}:          true,
		{models.TaskStatusInProgress, models.TaskStatusWaitingInput}: true,
		{models.TaskStatusInProgress, models.TaskStatusCompleted}:    true,
		{models.TaskStatusInProgress, models.TaskStatusFailed}:       true,
		{models.TaskStatusWaitingInput, models.TaskStatusInProgress}: true,
		{models.TaskStatusWaitingInput, models.TaskStatusFailed}:     true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]models.TaskStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTransition_RecordsHistory(t *testing.T) {
	m, db := setupMachine(t)
	createTask(t, db, "t1", models.TaskStatusPending)
	ctx := context.Background()

	steps := []models.TaskStatus{models.TaskStatusInProgress, models.TaskStatusWaitingInput, models.TaskStatusInProgress, models.TaskStatusCompleted}
	for _, to := range steps {
		task, err := m.Transition(ctx, "t1", to, "claude", map[string]string{"step": string(to)})
		if err != nil {
			t.Fatalf("Transition to %s failed: %v", to, err)
		}
		if task.Status != to {
			t.Errorf("returned status = %s, want %s", task.Status, to)
		}
	}

	history, err := m.History("t1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != len(steps) {
		t.Fatalf("history length = %d, want %d", len(history), len(steps))
	}
	if history[0].From != models.TaskStatusPending || history[3].To != models.TaskStatusCompleted {
		t.Errorf("unexpected history: %+v", history)
	}
	if history[1].Actor != "claude" || history[1].Metadata["step"] != string(models.TaskStatusWaitingInput) {
		t.Errorf("transition metadata not recorded: %+v", history[1])
	}
}

func TestTransition_NothingLeavesTerminalStates(t *testing.T) {
	m, db := setupMachine(t)
	ctx := context.Background()

	for _, terminal := range []models.TaskStatus{models.TaskStatusCompleted, models.TaskStatusFailed} {
		id := "task-" + string(terminal)
		createTask(t, db, id, terminal)

		for _, to := range []models.TaskStatus{models.TaskStatusPending, models.TaskStatusInProgress, models.TaskStatusWaitingInput, models.TaskStatusCompleted, models.TaskStatusFailed} {
			_, err := m.Transition(ctx, id, to, "test", nil)
			if !models.IsConflict(err) {
				t.Errorf("%s -> %s: expected conflict, got %v", terminal, to, err)
			}
		}

		task, err := db.GetTask(id)
		if err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
		if task.Status != terminal {
			t.Errorf("status mutated to %s", task.Status)
		}
		history, _ := m.History(id)
		if len(history) != 0 {
			t.Errorf("rejected transitions were recorded: %+v", history)
		}
	}
}

func TestTransition_UnknownTask(t *testing.T) {
	m, _ := setupMachine(t)
	if _, err := m.Transition(context.Background(), "ghost", models.TaskStatusInProgress, "x", nil); !models.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := m.History("ghost"); !models.IsNotFound(err) {
		t.Errorf("expected not found from History, got %v", err)
	}
}

func TestTxn_TransitionWithMutation(t *testing.T) {
	m, db := setupMachine(t)
	createTask(t, db, "t1", models.TaskStatusInProgress)

	err := m.Do(context.Background(), "t1", func(tx *Txn) error {
		return tx.Transition(models.TaskStatusFailed, "system", nil, func(task *models.Task) {
			task.SetMeta("failure.reason", "no proposals")
			task.Result = "nothing"
		})
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	task, _ := db.GetTask("t1")
	if task.Status != models.TaskStatusFailed || task.Meta("failure.reason") != "no proposals" || task.Result != "nothing" {
		t.Errorf("mutation not applied atomically: %+v", task)
	}
}

func TestTxn_Update(t *testing.T) {
	m, db := setupMachine(t)
	createTask(t, db, "t1", models.TaskStatusInProgress)

	err := m.Do(context.Background(), "t1", func(tx *Txn) error {
		return tx.Update(func(task *models.Task) { task.SetMeta("consensus.deadline", "soon") })
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	task, _ := db.GetTask("t1")
	if task.Meta("consensus.deadline") != "soon" || task.Status != models.TaskStatusInProgress {
		t.Errorf("update not applied: %+v", task)
	}
}

func TestTransition_ConcurrentCallersSerialize(t *testing.T) {
	m, db := setupMachine(t)
	createTask(t, db, "t1", models.TaskStatusPending)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Transition(context.Background(), "t1", models.TaskStatusInProgress, "racer", nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case models.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || conflicts != 7 {
		t.Errorf("succeeded=%d conflicts=%d, want 1 and 7", succeeded, conflicts)
	}
}

func TestSubscribe(t *testing.T) {
	m, db := setupMachine(t)
	createTask(t, db, "t1", models.TaskStatusPending)

	ch, cancel := m.Subscribe(4)
	if _, err := m.Transition(context.Background(), "t1", models.TaskStatusInProgress, "a", nil); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	select {
	case tr := <-ch:
		if tr.TaskID != "t1" || tr.To != models.TaskStatusInProgress {
			t.Errorf("unexpected transition: %+v", tr)
		}
	case <-time.After(time.Second):
		t.Fatal("no transition published")
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
}

func TestDo_CancelledContext(t *testing.T) {
	m, _ := setupMachine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Do(ctx, "t1", func(*Txn) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestKeyedMutex(t *testing.T) {
	k := NewKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	if k.Len() != 2 {
		t.Errorf("Len = %d, want 2", k.Len())
	}

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock on the same key should block")
	case <-time.After(50 * time.Millisecond):
	}

	unlockA()
	unlockA()
	<-acquired
	unlockB()

	deadline := time.Now().Add(time.Second)
	for k.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if k.Len() != 0 {
		t.Errorf("Len = %d after all unlocks, want 0", k.Len())
	}
}
