package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"agentdash/domain"
)

// Scanner webhook event types.
const (
	webhookTaskCreated       = "task.created"
	webhookTaskCompleted     = "task.completed"
	webhookFindingDiscovered = "finding.discovered"
)

// WebhookConfig controls the scanner integration endpoint.
type WebhookConfig struct {
	// Token, when set, must match the webhook_token field of every payload.
	Token string
	// AutoCreateTasks mirrors scanner scans onto the board as tasks.
	AutoCreateTasks bool
	// SeverityPriority maps finding severities to task priorities. Unknown
	// severities fall back to low.
	SeverityPriority map[string]domain.Priority
}

// DefaultSeverityPriority is the mapping used when none is configured.
func DefaultSeverityPriority() map[string]domain.Priority {
	return map[string]domain.Priority{
		"critical": domain.PriorityCritical,
		"high":     domain.PriorityHigh,
		"medium":   domain.PriorityMedium,
		"low":      domain.PriorityLow,
		"info":     domain.PriorityLow,
	}
}

type webhookPayload struct {
	SourceIP     string          `json:"source_ip"`
	WebhookToken string          `json:"webhook_token"`
	EventType    string          `json:"event_type"`
	Data         json.RawMessage `json:"data"`
	Timestamp    time.Time       `json:"timestamp"`
}

type scannerTask struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Target string `json:"target_ip"`
	Scan   string `json:"scan_type"`
}

type scannerFinding struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Target      string `json:"target"`
	Port        int    `json:"port"`
	Service     string `json:"service"`
}

// RegisterWebhook wires up the scanner webhook endpoint.
func RegisterWebhook(e *echo.Echo, store Storage, bc Broadcaster, cfg WebhookConfig, logger *log.Logger) {
	if cfg.SeverityPriority == nil {
		cfg.SeverityPriority = DefaultSeverityPriority()
	}
	e.POST("/api/webhook", handleWebhook(store, bc, cfg, logger))
}

func handleWebhook(store Storage, bc Broadcaster, cfg WebhookConfig, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var payload webhookPayload
		if err := decodeBody(c, &payload); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if cfg.Token != "" && payload.WebhookToken != cfg.Token {
			return c.NoContent(http.StatusUnauthorized)
		}

		switch payload.EventType {
		case webhookTaskCreated:
			if !cfg.AutoCreateTasks {
				return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
			}
			return webhookCreateScanTask(c, ctx, store, bc, logger, payload)
		case webhookFindingDiscovered:
			return webhookCreateFinding(c, ctx, store, bc, cfg, logger, payload)
		case webhookTaskCompleted:
			return webhookCompleteScanTask(c, ctx, store, bc, logger, payload)
		default:
			logger.WithFields(log.Fields{"event_type": payload.EventType, "source": payload.SourceIP}).Debug("unhandled webhook event")
			return c.JSON(http.StatusOK, map[string]string{"status": "received"})
		}
	}
}

func webhookCreateScanTask(c echo.Context, ctx context.Context, store Storage, bc Broadcaster, logger *log.Logger, payload webhookPayload) error {
	var scan scannerTask
	if err := json.Unmarshal(payload.Data, &scan); err != nil {
		return c.String(http.StatusBadRequest, "invalid task data")
	}
	status := domain.StatusInProgress
	if scan.Status == "pending" {
		status = domain.StatusBacklog
	}
	task := domain.Task{
		ID:          "scan-" + scan.ID,
		Title:       "Scan: " + scan.Name,
		Description: describeScan(scan),
		Status:      status,
		Priority:    domain.PriorityHigh,
		TaskType:    domain.TypeMonitoring,
	}
	if err := store.CreateTask(ctx, &task); err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	recordActivity(ctx, store, logger, domain.ActivityInfo, "Scanner task created: "+scan.Name, "scanner")
	broadcast(bc, domain.EventTaskCreated, task)
	return c.JSON(http.StatusOK, map[string]string{"status": "success", "action": "task_created"})
}

func webhookCreateFinding(c echo.Context, ctx context.Context, store Storage, bc Broadcaster, cfg WebhookConfig, logger *log.Logger, payload webhookPayload) error {
	var finding scannerFinding
	if err := json.Unmarshal(payload.Data, &finding); err != nil {
		return c.String(http.StatusBadRequest, "invalid finding data")
	}
	priority, ok := cfg.SeverityPriority[finding.Severity]
	if !ok {
		priority = domain.PriorityLow
	}
	task := domain.Task{
		ID:          "finding-" + finding.ID,
		Title:       finding.Title,
		Description: describeFinding(finding),
		Status:      domain.StatusBacklog,
		Priority:    priority,
		TaskType:    domain.TypeMonitoring,
	}
	if err := store.CreateTask(ctx, &task); err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if finding.Severity == "critical" || finding.Severity == "high" {
		recordActivity(ctx, store, logger, domain.ActivityWarning,
			fmt.Sprintf("%s finding: %s on %s", finding.Severity, finding.Title, finding.Target), "scanner")
	}
	broadcast(bc, domain.EventFindingDiscovered, task)
	return c.JSON(http.StatusOK, map[string]string{"status": "success", "action": "finding_logged"})
}

func webhookCompleteScanTask(c echo.Context, ctx context.Context, store Storage, bc Broadcaster, logger *log.Logger, payload webhookPayload) error {
	var scan scannerTask
	if err := json.Unmarshal(payload.Data, &scan); err != nil {
		return c.String(http.StatusBadRequest, "invalid task data")
	}
	status := domain.StatusCompleted
	task, err := store.UpdateTask(ctx, "scan-"+scan.ID, domain.TaskUpdate{Status: &status})
	if err != nil {
		// A completion for a scan the dashboard never saw is not an error.
		logger.WithFields(log.Fields{"scan": scan.ID}).Warnf("scan completion for unknown task: %v", err)
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}
	recordActivity(ctx, store, logger, domain.ActivitySuccess, "Scan completed: "+scan.Name, "scanner")
	broadcast(bc, domain.EventTaskCompleted, task)
	return c.JSON(http.StatusOK, map[string]string{"status": "success", "action": "task_completed"})
}

func describeScan(scan scannerTask) string {
	desc := "Scanner scan"
	if scan.Scan != "" {
		desc = "Scanner scan: " + scan.Scan
	}
	if scan.Target != "" {
		desc += "\nTarget: " + scan.Target
	}
	return desc
}

func describeFinding(f scannerFinding) string {
	desc := f.Description
	if desc == "" {
		desc = "Security finding"
	}
	if f.Target != "" {
		desc += fmt.Sprintf("\n\nTarget: %s:%d", f.Target, f.Port)
	}
	if f.Service != "" {
		desc += "\nService: " + f.Service
	}
	return desc
}
