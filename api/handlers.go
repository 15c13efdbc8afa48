package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"agentdash/domain"
)

const (
	maxBodySize          = 1 << 20
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// Storage is the persistence surface the handlers need.
type Storage interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	CreateTask(ctx context.Context, task *domain.Task) error
	UpdateTask(ctx context.Context, id string, upd domain.TaskUpdate) (*domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	Metrics(ctx context.Context) (domain.Metrics, error)
	ReplaceMetrics(ctx context.Context, m domain.Metrics) error
	RecordActivity(ctx context.Context, a *domain.Activity) error
	ListActivities(ctx context.Context, limit int) ([]domain.Activity, error)
	ListDeliverables(ctx context.Context) ([]domain.Deliverable, error)
	CreateDeliverable(ctx context.Context, d *domain.Deliverable) error
	APIKey(ctx context.Context) (string, error)
	RegenerateAPIKey(ctx context.Context) (string, error)
}

// Broadcaster pushes an event to every live-channel subscriber.
type Broadcaster interface {
	Broadcast(ev domain.Event)
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, bc Broadcaster, logger *log.Logger) {
	e.GET("/api/key", getKey(store))
	e.POST("/api/key/regenerate", regenerateKey(store))
	e.GET("/api/metrics", getMetrics(store))
	e.POST("/api/metrics", postMetrics(store, bc))
	e.GET("/api/tasks", getTasks(store, logger))
	e.POST("/api/tasks", createTask(store, bc, logger))
	e.PUT("/api/tasks/:id", updateTask(store, bc, logger))
	e.DELETE("/api/tasks/:id", deleteTask(store, bc, logger))
	e.GET("/api/activities", getActivities(store))
	e.GET("/api/deliverables", getDeliverables(store))
	e.POST("/api/deliverables", createDeliverable(store))
	e.POST("/api/ingest", postIngest(store, bc, logger))
	e.GET("/healthz", healthz())
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type keyResponse struct {
	APIKey string `json:"api_key"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getKey(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		key, err := store.APIKey(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, keyResponse{APIKey: key})
	}
}

func regenerateKey(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		key, err := store.RegenerateAPIKey(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, keyResponse{APIKey: key})
	}
}

func getMetrics(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		m, err := store.Metrics(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, m)
	}
}

func postMetrics(store Storage, bc Broadcaster) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var m domain.Metrics
		if err := decodeBody(c, &m); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := store.ReplaceMetrics(ctx, m); err != nil {
			if errors.Is(err, domain.ErrValidation) {
				return c.String(http.StatusBadRequest, err.Error())
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		broadcast(bc, domain.EventMetricsUpdate, m)
		return c.JSON(http.StatusOK, m)
	}
}

func getTasks(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		if spanCtx != nil {
			req := c.Request().WithContext(spanCtx)
			c.SetRequest(req)
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		fetchStart := time.Now()
		tasks, fetchErr := store.ListTasks(ctx)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, fetchErr.Error())
			return err
		}
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

type taskRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      domain.Status   `json:"status"`
	Priority    domain.Priority `json:"priority"`
	TaskType    domain.TaskType `json:"task_type"`
	IsRecurring int             `json:"is_recurring"`
}

func createTask(store Storage, bc Broadcaster, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req taskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		task := domain.Task{
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
			Priority:    req.Priority,
			TaskType:    req.TaskType,
			IsRecurring: req.IsRecurring,
		}
		if task.Status == "" {
			task.Status = domain.StatusBacklog
		}
		if task.Priority == "" {
			task.Priority = domain.PriorityMedium
		}
		if task.TaskType == "" {
			task.TaskType = domain.TypeCustom
		}
		if err := store.CreateTask(ctx, &task); err != nil {
			if errors.Is(err, domain.ErrValidation) {
				return c.String(http.StatusBadRequest, err.Error())
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		recordActivity(ctx, store, logger, domain.ActivityInfo, "New task created: "+task.Title, "")
		broadcast(bc, domain.EventTaskCreated, task)
		return c.JSON(http.StatusCreated, task)
	}
}

func updateTask(store Storage, bc Broadcaster, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id := c.Param("id")
		var upd domain.TaskUpdate
		if err := decodeBody(c, &upd); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if upd.Empty() {
			return c.String(http.StatusBadRequest, "update had no fields")
		}
		task, err := store.UpdateTask(ctx, id, upd)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				return c.String(http.StatusNotFound, err.Error())
			case errors.Is(err, domain.ErrValidation):
				return c.String(http.StatusBadRequest, err.Error())
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if upd.Status != nil {
			recordActivity(ctx, store, logger, domain.ActivityInfo, "Task \""+task.Title+"\" moved to "+string(task.Status), "")
		}
		broadcast(bc, domain.EventTaskUpdated, task)
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(store Storage, bc Broadcaster, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id := c.Param("id")
		if err := store.DeleteTask(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return c.String(http.StatusNotFound, err.Error())
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		broadcast(bc, domain.EventTaskDeleted, map[string]string{"id": id})
		return c.NoContent(http.StatusNoContent)
	}
}

func getActivities(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := defaultActivityLimit
		if raw := c.QueryParam("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return c.String(http.StatusBadRequest, "invalid limit")
			}
			limit = n
		}
		if limit > maxActivityLimit {
			limit = maxActivityLimit
		}
		activities, err := store.ListActivities(c.Request().Context(), limit)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, map[string][]domain.Activity{"activities": activities})
	}
}

func getDeliverables(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		deliverables, err := store.ListDeliverables(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, map[string][]domain.Deliverable{"deliverables": deliverables})
	}
}

func createDeliverable(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		var d domain.Deliverable
		if err := decodeBody(c, &d); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := store.CreateDeliverable(c.Request().Context(), &d); err != nil {
			if errors.Is(err, domain.ErrValidation) {
				return c.String(http.StatusBadRequest, err.Error())
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusCreated, d)
	}
}

type ingestRequest struct {
	Type      domain.ActivityType `json:"type"`
	Message   string              `json:"message"`
	AgentName string              `json:"agent_name"`
}

func postIngest(store Storage, bc Broadcaster, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		key, err := store.APIKey(ctx)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if c.Request().Header.Get("x-api-key") != key {
			return c.NoContent(http.StatusUnauthorized)
		}

		var req ingestRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Message == "" {
			return c.String(http.StatusBadRequest, "message is required")
		}
		if req.Type == "" {
			req.Type = domain.ActivityInfo
		}
		if !req.Type.Valid() {
			return c.String(http.StatusBadRequest, "invalid activity type")
		}

		activity := domain.Activity{Type: req.Type, Message: req.Message, AgentName: req.AgentName}
		if err := store.RecordActivity(ctx, &activity); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		broadcast(bc, domain.EventActivityCreated, activity)
		broadcast(bc, domain.EventIngestReceived, activity)
		return c.JSON(http.StatusAccepted, activity)
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// recordActivity persists a server-generated feed entry. Failures are logged
// only; an activity that cannot be written never fails the mutation it
// describes.
func recordActivity(ctx context.Context, store Storage, logger *log.Logger, typ domain.ActivityType, message, agent string) {
	a := domain.Activity{Type: typ, Message: message, AgentName: agent}
	if err := store.RecordActivity(ctx, &a); err != nil {
		logger.WithFields(log.Fields{"message": message}).Errorf("record activity: %v", err)
	}
}

func broadcast(bc Broadcaster, typ string, data any) {
	ev, err := domain.NewEvent(typ, data)
	if err != nil {
		return
	}
	bc.Broadcast(ev)
}
