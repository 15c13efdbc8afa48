package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"agentdash/domain"
)

const requestTimeout = 10 * time.Second

// API is the REST client for the dashboard backend.
type API struct {
	base   string
	apiKey string
	http   *http.Client
}

// NewAPI creates a client for the backend at base (http://host:port). Every
// request carries a timeout so a hung backend cannot wedge the caller.
func NewAPI(base string) *API {
	return &API{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: requestTimeout},
	}
}

// SetAPIKey sets the key sent on ingest requests.
func (a *API) SetAPIKey(key string) { a.apiKey = key }

// Tasks fetches the full ordered task list.
func (a *API) Tasks(ctx context.Context) ([]domain.Task, error) {
	var resp struct {
		Tasks []domain.Task `json:"tasks"`
	}
	if err := a.get(ctx, "/api/tasks", &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// Metrics fetches the current snapshot.
func (a *API) Metrics(ctx context.Context) (domain.Metrics, error) {
	var m domain.Metrics
	err := a.get(ctx, "/api/metrics", &m)
	return m, err
}

// Activities fetches the most recent entries, newest first.
func (a *API) Activities(ctx context.Context, limit int) ([]domain.Activity, error) {
	var resp struct {
		Activities []domain.Activity `json:"activities"`
	}
	path := "/api/activities"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := a.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Activities, nil
}

// Deliverables fetches the deliverable list.
func (a *API) Deliverables(ctx context.Context) ([]domain.Deliverable, error) {
	var resp struct {
		Deliverables []domain.Deliverable `json:"deliverables"`
	}
	if err := a.get(ctx, "/api/deliverables", &resp); err != nil {
		return nil, err
	}
	return resp.Deliverables, nil
}

// Key fetches the ingest API key.
func (a *API) Key(ctx context.Context) (string, error) {
	var resp struct {
		APIKey string `json:"api_key"`
	}
	if err := a.get(ctx, "/api/key", &resp); err != nil {
		return "", err
	}
	return resp.APIKey, nil
}

// UpdateTaskStatus persists a status-only partial update.
func (a *API) UpdateTaskStatus(ctx context.Context, id string, status domain.Status) error {
	body := struct {
		Status domain.Status `json:"status"`
	}{Status: status}
	return a.send(ctx, http.MethodPut, "/api/tasks/"+id, body, nil)
}

// Ingest reports an activity on behalf of an agent.
func (a *API) Ingest(ctx context.Context, typ domain.ActivityType, message, agentName string) error {
	body := struct {
		Type      domain.ActivityType `json:"type"`
		Message   string              `json:"message"`
		AgentName string              `json:"agent_name"`
	}{Type: typ, Message: message, AgentName: agentName}
	return a.send(ctx, http.MethodPost, "/api/ingest", body, nil)
}

func (a *API) get(ctx context.Context, path string, out any) error {
	return a.send(ctx, http.MethodGet, path, nil, out)
}

func (a *API) send(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.apiKey != "" {
		req.Header.Set("x-api-key", a.apiKey)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return sonic.Unmarshal(data, out)
}
