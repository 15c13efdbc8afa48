package client

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	log "github.com/sirupsen/logrus"

	"agentdash/domain"
)

type stubAPI struct {
	tasksFn  func(ctx context.Context) ([]domain.Task, error)
	updateFn func(ctx context.Context, id string, status domain.Status) error

	updates []statusUpdate
}

type statusUpdate struct {
	id     string
	status domain.Status
}

func (s *stubAPI) Tasks(ctx context.Context) ([]domain.Task, error) {
	if s.tasksFn == nil {
		return nil, errors.New("unexpected Tasks call")
	}
	return s.tasksFn(ctx)
}

func (s *stubAPI) UpdateTaskStatus(ctx context.Context, id string, status domain.Status) error {
	s.updates = append(s.updates, statusUpdate{id: id, status: status})
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, id, status)
}

func boardTasks() []domain.Task {
	return []domain.Task{
		{ID: "a", Title: "A", Status: domain.StatusPermanent},
		{ID: "b", Title: "B", Status: domain.StatusBacklog},
		{ID: "c", Title: "C", Status: domain.StatusBacklog},
		{ID: "d", Title: "D", Status: domain.StatusInProgress},
	}
}

func ids(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestReorderSameStatusMovesWithinList(t *testing.T) {
	board := NewBoard()
	board.Replace(boardTasks())
	r := NewReconciler(board, &stubAPI{}, log.New())

	// Drag C before B within backlog.
	if err := r.Reorder(context.Background(), "c", "b"); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	got := ids(board.Tasks())
	want := []string{"a", "c", "b", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected order: %v", got)
	}
	for _, task := range board.Tasks() {
		orig := boardTasks()
		for _, o := range orig {
			if o.ID == task.ID && o.Status != task.Status {
				t.Fatalf("status of %s changed during same-column reorder", task.ID)
			}
		}
	}
}

func TestReorderIsPermutation(t *testing.T) {
	board := NewBoard()
	board.Replace(boardTasks())
	r := NewReconciler(board, &stubAPI{}, log.New())

	pairs := [][2]string{{"c", "b"}, {"b", "c"}, {"b", "b"}}
	for _, p := range pairs {
		if err := r.Reorder(context.Background(), p[0], p[1]); err != nil {
			t.Fatalf("reorder %v: %v", p, err)
		}
		got := ids(board.Tasks())
		sorted := append([]string(nil), got...)
		sort.Strings(sorted)
		if !reflect.DeepEqual(sorted, []string{"a", "b", "c", "d"}) {
			t.Fatalf("reorder %v duplicated or dropped tasks: %v", p, got)
		}
	}
}

func TestReorderSelfIsNoop(t *testing.T) {
	board := NewBoard()
	board.Replace(boardTasks())
	r := NewReconciler(board, &stubAPI{}, log.New())

	if err := r.Reorder(context.Background(), "b", "b"); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if got := ids(board.Tasks()); !reflect.DeepEqual(got, []string{"a", "b", "c", "d"}) {
		t.Fatalf("self-drop changed order: %v", got)
	}
}

func TestReorderMissingTargetIsNoop(t *testing.T) {
	board := NewBoard()
	board.Replace(boardTasks())
	api := &stubAPI{}
	r := NewReconciler(board, api, log.New())

	if err := r.Reorder(context.Background(), "c", ""); err != nil {
		t.Fatalf("nil target: %v", err)
	}
	if err := r.Reorder(context.Background(), "c", "zzz"); err != nil {
		t.Fatalf("unknown target: %v", err)
	}
	if err := r.Reorder(context.Background(), "zzz", "c"); err != nil {
		t.Fatalf("unknown active: %v", err)
	}
	if len(api.updates) != 0 {
		t.Fatalf("no-op reorders issued updates: %v", api.updates)
	}
	if got := ids(board.Tasks()); !reflect.DeepEqual(got, []string{"a", "b", "c", "d"}) {
		t.Fatalf("no-op reorder changed order: %v", got)
	}
}

func TestReorderCrossStatusPersistsAndRefetches(t *testing.T) {
	board := NewBoard()
	board.Replace(boardTasks())

	refetched := []domain.Task{
		{ID: "a", Title: "A", Status: domain.StatusBacklog},
		{ID: "b", Title: "B", Status: domain.StatusBacklog},
		{ID: "c", Title: "C", Status: domain.StatusBacklog},
		{ID: "d", Title: "D", Status: domain.StatusInProgress},
	}
	api := &stubAPI{
		tasksFn: func(ctx context.Context) ([]domain.Task, error) {
			return append([]domain.Task(nil), refetched...), nil
		},
	}
	r := NewReconciler(board, api, log.New())

	// Drag A (permanent) onto C (backlog): status transition.
	if err := r.Reorder(context.Background(), "a", "c"); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	if len(api.updates) != 1 {
		t.Fatalf("expected 1 status update, got %d", len(api.updates))
	}
	if api.updates[0] != (statusUpdate{id: "a", status: domain.StatusBacklog}) {
		t.Fatalf("unexpected update: %+v", api.updates[0])
	}
	if !reflect.DeepEqual(board.Tasks(), refetched) {
		t.Fatalf("board not replaced with refetched list: %#v", board.Tasks())
	}
	// Only the dragged task's status changed.
	for _, task := range board.Tasks() {
		if task.ID != "a" && task.Status != boardTasks()[indexIn(boardTasks(), task.ID)].Status {
			t.Fatalf("status of %s changed", task.ID)
		}
	}
}

func indexIn(tasks []domain.Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func TestReorderCrossStatusFailureStillRefetches(t *testing.T) {
	board := NewBoard()
	board.Replace(boardTasks())

	var refetches int
	boom := errors.New("persist failed")
	api := &stubAPI{
		updateFn: func(ctx context.Context, id string, status domain.Status) error {
			return boom
		},
		tasksFn: func(ctx context.Context) ([]domain.Task, error) {
			refetches++
			return boardTasks(), nil
		},
	}
	r := NewReconciler(board, api, log.New())

	err := r.Reorder(context.Background(), "a", "c")
	if !errors.Is(err, boom) {
		t.Fatalf("expected persistence error surfaced, got %v", err)
	}
	if refetches != 1 {
		t.Fatalf("expected refetch despite failure, got %d", refetches)
	}
	// Refetch restored the authoritative statuses.
	task, ok := board.Get("a")
	if !ok || task.Status != domain.StatusPermanent {
		t.Fatalf("expected task a rolled back to permanent, got %#v", task)
	}
}

func TestApplyRefetchesOnTaskEventsOnly(t *testing.T) {
	board := NewBoard()
	var fetches int
	api := &stubAPI{
		tasksFn: func(ctx context.Context) ([]domain.Task, error) {
			fetches++
			return boardTasks(), nil
		},
	}
	r := NewReconciler(board, api, log.New())

	for _, typ := range []string{domain.EventTaskCreated, domain.EventTaskUpdated, domain.EventTaskDeleted} {
		r.Apply(context.Background(), domain.Event{Type: typ})
	}
	if fetches != 3 {
		t.Fatalf("expected 3 refetches, got %d", fetches)
	}

	r.Apply(context.Background(), domain.Event{Type: domain.EventMetricsUpdate})
	if fetches != 3 {
		t.Fatalf("metrics event must not refetch tasks")
	}
}

func TestRefreshFailureKeepsStaleList(t *testing.T) {
	board := NewBoard()
	board.Replace(boardTasks())
	api := &stubAPI{
		tasksFn: func(ctx context.Context) ([]domain.Task, error) {
			return nil, errors.New("backend down")
		},
	}
	r := NewReconciler(board, api, log.New())

	if err := r.Refresh(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	if got := ids(board.Tasks()); !reflect.DeepEqual(got, []string{"a", "b", "c", "d"}) {
		t.Fatalf("stale list not preserved: %v", got)
	}
}

func TestByStatusIsPureFilter(t *testing.T) {
	board := NewBoard()
	board.Replace(boardTasks())

	backlog := board.ByStatus(domain.StatusBacklog)
	if got := ids(backlog); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Fatalf("unexpected backlog column: %v", got)
	}
	if got := ids(board.Tasks()); !reflect.DeepEqual(got, []string{"a", "b", "c", "d"}) {
		t.Fatalf("filter mutated board: %v", got)
	}
}
