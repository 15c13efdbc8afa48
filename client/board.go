package client

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"agentdash/domain"
)

// Board holds the authoritative-as-known task list. Ordering within the list
// is significant: it is what the Kanban columns render.
type Board struct {
	mu    sync.Mutex
	tasks []domain.Task
}

func NewBoard() *Board {
	return &Board{}
}

// Replace swaps in a freshly fetched task list.
func (b *Board) Replace(tasks []domain.Task) {
	b.mu.Lock()
	b.tasks = append([]domain.Task(nil), tasks...)
	b.mu.Unlock()
}

// Tasks returns a copy of the current list.
func (b *Board) Tasks() []domain.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Task(nil), b.tasks...)
}

// ByStatus returns the tasks in the given column, preserving list order.
// Pure filter; the board is not mutated.
func (b *Board) ByStatus(status domain.Status) []domain.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []domain.Task{}
	for _, t := range b.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// Get returns the task with the given id, if present.
func (b *Board) Get(id string) (domain.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.indexOf(id); i >= 0 {
		return b.tasks[i], true
	}
	return domain.Task{}, false
}

// move relocates the task at from to index to, shifting everything between.
// The result is a permutation of the input: nothing is duplicated or lost.
func (b *Board) move(from, to int) {
	if from == to || from < 0 || to < 0 || from >= len(b.tasks) || to >= len(b.tasks) {
		return
	}
	task := b.tasks[from]
	rest := append(b.tasks[:from], b.tasks[from+1:]...)
	b.tasks = append(rest[:to], append([]domain.Task{task}, rest[to:]...)...)
}

func (b *Board) indexOf(id string) int {
	for i, t := range b.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// TaskAPI is the slice of the REST client the reconciler needs.
type TaskAPI interface {
	Tasks(ctx context.Context) ([]domain.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status domain.Status) error
}

// Reconciler merges authoritative inbound events with local optimistic
// mutations. Task events trigger a full refetch rather than an incremental
// patch: the refetch guarantees eventual consistency with the backend at the
// cost of discarding any unacknowledged local reorder.
type Reconciler struct {
	board *Board
	api   TaskAPI
	log   *log.Logger
}

func NewReconciler(board *Board, api TaskAPI, logger *log.Logger) *Reconciler {
	return &Reconciler{board: board, api: api, log: logger}
}

// Apply routes an inbound live event to the board. Only task events matter
// here; everything else belongs to other views.
func (r *Reconciler) Apply(ctx context.Context, ev domain.Event) {
	if !ev.TouchesTasks() {
		return
	}
	if err := r.Refresh(ctx); err != nil {
		r.log.Warnf("task refetch after %s failed: %v", ev.Type, err)
	}
}

// Refresh replaces the board with the server's task list. On failure the
// previously cached list stays untouched (stale but available).
func (r *Reconciler) Refresh(ctx context.Context) error {
	tasks, err := r.api.Tasks(ctx)
	if err != nil {
		return err
	}
	r.board.Replace(tasks)
	return nil
}

// Reorder handles a drag of activeID dropped onto overID.
//
// Same column: a pure local permutation move, no round trip — column order is
// not persisted server-side, so the visual order lasts until the next full
// refetch. Different columns: the drop is a status transition; the status
// update is persisted and the list refetched regardless of outcome, which
// also serves as the rollback when the update fails. The persistence error,
// if any, is returned so the caller can surface it.
func (r *Reconciler) Reorder(ctx context.Context, activeID, overID string) error {
	if activeID == "" || overID == "" {
		return nil
	}

	r.board.mu.Lock()
	from := r.board.indexOf(activeID)
	to := r.board.indexOf(overID)
	if from < 0 || to < 0 {
		r.board.mu.Unlock()
		return nil
	}
	active := r.board.tasks[from]
	over := r.board.tasks[to]
	if active.Status == over.Status {
		r.board.move(from, to)
		r.board.mu.Unlock()
		return nil
	}
	target := over.Status
	r.board.mu.Unlock()

	err := r.api.UpdateTaskStatus(ctx, activeID, target)
	if err != nil {
		r.log.Warnf("status update for task %s failed: %v", activeID, err)
	}
	if rerr := r.Refresh(ctx); rerr != nil {
		r.log.Warnf("task refetch after reorder failed: %v", rerr)
		if err == nil {
			err = rerr
		}
	}
	return err
}
