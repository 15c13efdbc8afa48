package domain

import "encoding/json"

// Event types pushed over the live channel.
const (
	EventMetricsUpdate     = "metrics_update"
	EventTaskCreated       = "task_created"
	EventTaskUpdated       = "task_updated"
	EventTaskDeleted       = "task_deleted"
	EventActivityCreated   = "activity_created"
	EventIngestReceived    = "ingest_received"
	EventFindingDiscovered = "finding_discovered"
	EventTaskCompleted     = "task_completed"
)

// Event is the envelope every live-channel message is wrapped in.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEvent wraps the given payload in an envelope of the given type.
func NewEvent(typ string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Data: raw}, nil
}

// TouchesTasks reports whether the event invalidates the client's task list.
// Scanner events carry task payloads too, so they count.
func (e Event) TouchesTasks() bool {
	switch e.Type {
	case EventTaskCreated, EventTaskUpdated, EventTaskDeleted,
		EventFindingDiscovered, EventTaskCompleted:
		return true
	}
	return false
}
