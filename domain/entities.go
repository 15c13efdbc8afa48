package domain

import (
	"fmt"
	"time"
)

// Metrics is the dashboard snapshot. It is always replaced wholesale, never
// merged field by field.
type Metrics struct {
	TotalRequests int64     `json:"total_requests"`
	SuccessRate   float64   `json:"success_rate"`
	AvgLatency    float64   `json:"avg_latency"`
	ActiveAgents  int       `json:"active_agents"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (m Metrics) Validate() error {
	if m.TotalRequests < 0 {
		return fmt.Errorf("%w: total_requests must not be negative", ErrValidation)
	}
	if m.SuccessRate < 0 || m.SuccessRate > 100 {
		return fmt.Errorf("%w: success_rate must be within [0,100]", ErrValidation)
	}
	if m.AvgLatency < 0 {
		return fmt.Errorf("%w: avg_latency must not be negative", ErrValidation)
	}
	if m.ActiveAgents < 0 {
		return fmt.Errorf("%w: active_agents must not be negative", ErrValidation)
	}
	return nil
}

// ActivityType is the severity class of a feed entry.
type ActivityType string

const (
	ActivityInfo    ActivityType = "info"
	ActivitySuccess ActivityType = "success"
	ActivityWarning ActivityType = "warning"
	ActivityError   ActivityType = "error"
)

func (t ActivityType) Valid() bool {
	switch t {
	case ActivityInfo, ActivitySuccess, ActivityWarning, ActivityError:
		return true
	}
	return false
}

// Activity is a single feed entry. Append-only from the client's perspective.
type Activity struct {
	ID        string       `json:"id" gorm:"primaryKey"`
	Type      ActivityType `json:"type"`
	Message   string       `json:"message"`
	AgentName string       `json:"agent_name,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Deliverable is an artifact produced by an agent. Read-only for clients.
type Deliverable struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	FilePath    string    `json:"file_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
