package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"agentdash/domain"
)

func TestAPITasks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tasks" || r.Method != http.MethodGet {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tasks":[{"id":"t1","title":"one","status":"backlog"}]}`))
	}))
	t.Cleanup(srv.Close)

	api := NewAPI(srv.URL + "/")
	tasks, err := api.Tasks(context.Background())
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" || tasks[0].Status != domain.StatusBacklog {
		t.Fatalf("unexpected tasks: %#v", tasks)
	}
}

func TestAPIUpdateTaskStatusSendsStatusOnlyBody(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.Write([]byte(`{"id":"t1","status":"completed"}`))
	}))
	t.Cleanup(srv.Close)

	api := NewAPI(srv.URL)
	if err := api.UpdateTaskStatus(context.Background(), "t1", domain.StatusCompleted); err != nil {
		t.Fatalf("update: %v", err)
	}
	if gotPath != "PUT /api/tasks/t1" {
		t.Fatalf("unexpected request: %s", gotPath)
	}
	if gotBody != `{"status":"completed"}` {
		t.Fatalf("unexpected body: %s", gotBody)
	}
}

func TestAPIErrorIncludesBodySnippet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "task missing: not found", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	api := NewAPI(srv.URL)
	err := api.UpdateTaskStatus(context.Background(), "ghost", domain.StatusCompleted)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "task missing") {
		t.Fatalf("error lacks status or snippet: %v", err)
	}
}

func TestAPIIngestSendsKeyHeader(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"id":"a1"}`))
	}))
	t.Cleanup(srv.Close)

	api := NewAPI(srv.URL)
	api.SetAPIKey("secret")
	if err := api.Ingest(context.Background(), domain.ActivityInfo, "hello", "builder"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if gotKey != "secret" {
		t.Fatalf("key header = %q", gotKey)
	}
}

func TestAPIActivitiesLimitParam(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"activities":[]}`))
	}))
	t.Cleanup(srv.Close)

	api := NewAPI(srv.URL)
	if _, err := api.Activities(context.Background(), 5); err != nil {
		t.Fatalf("activities: %v", err)
	}
	if gotQuery != "limit=5" {
		t.Fatalf("query = %q", gotQuery)
	}
}
