package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"agentdash/domain"
)

const apiKeySetting = "api_key"

// Store provides access to the embedded sqlite database.
type Store struct {
	db *gorm.DB
}

type metricsRow struct {
	ID             int `gorm:"primaryKey"`
	domain.Metrics `gorm:"embedded"`
}

type settingRow struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// New opens (or creates) the database at the given path and migrates the
// schema. A default metrics row and API key are seeded on first run.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=journal_mode(WAL)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	err := s.db.AutoMigrate(&domain.Task{}, &metricsRow{}, &domain.Activity{}, &domain.Deliverable{}, &settingRow{})
	if err != nil {
		return fmt.Errorf("auto migrating tables: %w", err)
	}

	var count int64
	if err := s.db.Model(&metricsRow{}).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		seed := metricsRow{ID: 1, Metrics: domain.Metrics{UpdatedAt: time.Now().UTC()}}
		if err := s.db.Create(&seed).Error; err != nil {
			return err
		}
	}

	var key settingRow
	err = s.db.First(&key, "key = ?", apiKeySetting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&settingRow{Key: apiKeySetting, Value: uuid.NewString()}).Error
	}
	return err
}

// ListTasks returns every task ordered by creation time.
func (s *Store) ListTasks(ctx context.Context) ([]domain.Task, error) {
	tasks := []domain.Task{}
	result := s.db.WithContext(ctx).Order("created_at, id").Find(&tasks)
	if result.Error != nil {
		return nil, fmt.Errorf("querying tasks: %w", result.Error)
	}
	return tasks, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	result := s.db.WithContext(ctx).First(&task, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("querying task: %w", result.Error)
	}
	return &task, nil
}

// CreateTask persists a new task, assigning id and timestamps when unset.
func (s *Store) CreateTask(ctx context.Context, task *domain.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if err := task.Validate(); err != nil {
		return err
	}
	if result := s.db.WithContext(ctx).Create(task); result.Error != nil {
		return fmt.Errorf("inserting task: %w", result.Error)
	}
	return nil
}

// UpdateTask applies a partial update and returns the updated task.
func (s *Store) UpdateTask(ctx context.Context, id string, upd domain.TaskUpdate) (*domain.Task, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	upd.ApplyTo(task)
	task.UpdatedAt = time.Now().UTC()
	if result := s.db.WithContext(ctx).Save(task); result.Error != nil {
		return nil, fmt.Errorf("updating task: %w", result.Error)
	}
	return task, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&domain.Task{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("deleting task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Metrics returns the current snapshot.
func (s *Store) Metrics(ctx context.Context) (domain.Metrics, error) {
	var row metricsRow
	if result := s.db.WithContext(ctx).First(&row, 1); result.Error != nil {
		return domain.Metrics{}, fmt.Errorf("querying metrics: %w", result.Error)
	}
	return row.Metrics, nil
}

// ReplaceMetrics overwrites the snapshot wholesale.
func (s *Store) ReplaceMetrics(ctx context.Context, m domain.Metrics) error {
	if err := m.Validate(); err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()
	row := metricsRow{ID: 1, Metrics: m}
	if result := s.db.WithContext(ctx).Save(&row); result.Error != nil {
		return fmt.Errorf("replacing metrics: %w", result.Error)
	}
	return nil
}

// RecordActivity persists a feed entry, assigning id and timestamp when unset.
func (s *Store) RecordActivity(ctx context.Context, a *domain.Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if !a.Type.Valid() {
		return fmt.Errorf("%w: invalid activity type %q", domain.ErrValidation, a.Type)
	}
	if result := s.db.WithContext(ctx).Create(a); result.Error != nil {
		return fmt.Errorf("inserting activity: %w", result.Error)
	}
	return nil
}

// ListActivities returns the most recent entries, newest first.
func (s *Store) ListActivities(ctx context.Context, limit int) ([]domain.Activity, error) {
	activities := []domain.Activity{}
	result := s.db.WithContext(ctx).Order("created_at desc, id desc").Limit(limit).Find(&activities)
	if result.Error != nil {
		return nil, fmt.Errorf("querying activities: %w", result.Error)
	}
	return activities, nil
}

func (s *Store) ListDeliverables(ctx context.Context) ([]domain.Deliverable, error) {
	deliverables := []domain.Deliverable{}
	result := s.db.WithContext(ctx).Order("created_at desc, id desc").Find(&deliverables)
	if result.Error != nil {
		return nil, fmt.Errorf("querying deliverables: %w", result.Error)
	}
	return deliverables, nil
}

func (s *Store) CreateDeliverable(ctx context.Context, d *domain.Deliverable) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.Title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if result := s.db.WithContext(ctx).Create(d); result.Error != nil {
		return fmt.Errorf("inserting deliverable: %w", result.Error)
	}
	return nil
}

// APIKey returns the ingest API key.
func (s *Store) APIKey(ctx context.Context) (string, error) {
	var row settingRow
	if result := s.db.WithContext(ctx).First(&row, "key = ?", apiKeySetting); result.Error != nil {
		return "", fmt.Errorf("querying api key: %w", result.Error)
	}
	return row.Value, nil
}

// RegenerateAPIKey replaces the ingest API key and returns the new value.
func (s *Store) RegenerateAPIKey(ctx context.Context) (string, error) {
	key := uuid.NewString()
	row := settingRow{Key: apiKeySetting, Value: key}
	if result := s.db.WithContext(ctx).Save(&row); result.Error != nil {
		return "", fmt.Errorf("regenerating api key: %w", result.Error)
	}
	return key, nil
}
