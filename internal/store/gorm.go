package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"maskflow/internal/domain"
)

type connectionRow struct {
	ID              string `gorm:"primaryKey;type:varchar(64)"`
	Name            string `gorm:"not null"`
	Kind            string `gorm:"type:varchar(32);not null"`
	Host            string `gorm:"not null"`
	Database        string
	Username        string
	PasswordRef     string
	Port            int
	Params          datatypes.JSON `gorm:"type:jsonb"`
	Status          string         `gorm:"type:varchar(16)"`
	LastTestMessage string
	OwnerID         string `gorm:"index;not null"`
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (connectionRow) TableName() string { return "maskflow_connections" }

type workflowRow struct {
	ID                      string `gorm:"primaryKey;type:varchar(64)"`
	Name                    string `gorm:"not null"`
	Description             string
	SourceConnectionID      string         `gorm:"not null"`
	DestinationConnectionID string         `gorm:"not null"`
	TableMappings           datatypes.JSON `gorm:"type:jsonb"`
	Status                  string         `gorm:"type:varchar(16)"`
	OwnerID                 string         `gorm:"index;not null"`
	Active                  bool
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (workflowRow) TableName() string { return "maskflow_workflows" }

type executionRow struct {
	ID               string `gorm:"primaryKey;type:varchar(64)"`
	WorkflowID       string `gorm:"index:idx_exec_workflow_started,priority:1;not null"`
	UserID           string
	Status           string    `gorm:"type:varchar(16)"`
	StartedAt        time.Time `gorm:"index:idx_exec_workflow_started,priority:2"`
	CompletedAt      *time.Time
	RecordsProcessed int64
	Logs             datatypes.JSON `gorm:"type:jsonb"`
	ErrorMessage     string
}

func (executionRow) TableName() string { return "maskflow_executions" }

// GormStore persists definitions and executions in PostgreSQL through GORM.
type GormStore struct {
	db *gorm.DB
}

// OpenGorm connects to dsn, pings it and migrates the schema.
func OpenGorm(ctx context.Context, dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to store database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping store database: %w", err)
	}
	return NewGormStore(ctx, db)
}

// NewGormStore wraps an open gorm.DB and migrates the schema.
func NewGormStore(ctx context.Context, db *gorm.DB) (*GormStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&connectionRow{}, &workflowRow{}, &executionRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate store schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(what, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s %s: %w", what, id, err)
}

func marshalJSON(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func toConnectionRow(c *domain.Connection) (*connectionRow, error) {
	params, err := marshalJSON(c.Params)
	if err != nil {
		return nil, fmt.Errorf("encode connection params: %w", err)
	}
	return &connectionRow{
		ID:              c.ID,
		Name:            c.Name,
		Kind:            string(c.Kind),
		Host:            c.Host,
		Database:        c.Database,
		Username:        c.Username,
		PasswordRef:     c.PasswordRef,
		Port:            c.Port,
		Params:          params,
		Status:          string(c.Status),
		LastTestMessage: c.LastTestMessage,
		OwnerID:         c.OwnerID,
		Active:          c.Active,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}, nil
}

func (r *connectionRow) toDomain() (*domain.Connection, error) {
	c := &domain.Connection{
		ID:              r.ID,
		Name:            r.Name,
		Kind:            domain.BackendKind(r.Kind),
		Host:            r.Host,
		Database:        r.Database,
		Username:        r.Username,
		PasswordRef:     r.PasswordRef,
		Port:            r.Port,
		Status:          domain.ConnectionStatus(r.Status),
		LastTestMessage: r.LastTestMessage,
		OwnerID:         r.OwnerID,
		Active:          r.Active,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if len(r.Params) > 0 {
		if err := json.Unmarshal(r.Params, &c.Params); err != nil {
			return nil, fmt.Errorf("decode connection %s params: %w", r.ID, err)
		}
	}
	return c, nil
}

func toWorkflowRow(w *domain.Workflow) (*workflowRow, error) {
	mappings, err := marshalJSON(w.TableMappings)
	if err != nil {
		return nil, fmt.Errorf("encode table mappings: %w", err)
	}
	return &workflowRow{
		ID:                      w.ID,
		Name:                    w.Name,
		Description:             w.Description,
		SourceConnectionID:      w.SourceConnectionID,
		DestinationConnectionID: w.DestinationConnectionID,
		TableMappings:           mappings,
		Status:                  string(w.Status),
		OwnerID:                 w.OwnerID,
		Active:                  w.Active,
		CreatedAt:               w.CreatedAt,
		UpdatedAt:               w.UpdatedAt,
	}, nil
}

func (r *workflowRow) toDomain() (*domain.Workflow, error) {
	w := &domain.Workflow{
		ID:                      r.ID,
		Name:                    r.Name,
		Description:             r.Description,
		SourceConnectionID:      r.SourceConnectionID,
		DestinationConnectionID: r.DestinationConnectionID,
		Status:                  domain.WorkflowStatus(r.Status),
		OwnerID:                 r.OwnerID,
		Active:                  r.Active,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
	if len(r.TableMappings) > 0 {
		if err := json.Unmarshal(r.TableMappings, &w.TableMappings); err != nil {
			return nil, fmt.Errorf("decode workflow %s mappings: %w", r.ID, err)
		}
	}
	return w, nil
}

func toExecutionRow(e *domain.Execution) (*executionRow, error) {
	logs := e.Logs
	if logs == nil {
		logs = []string{}
	}
	raw, err := marshalJSON(logs)
	if err != nil {
		return nil, fmt.Errorf("encode execution logs: %w", err)
	}
	return &executionRow{
		ID:               e.ID,
		WorkflowID:       e.WorkflowID,
		UserID:           e.UserID,
		Status:           string(e.Status),
		StartedAt:        e.StartedAt,
		CompletedAt:      e.CompletedAt,
		RecordsProcessed: e.RecordsProcessed,
		Logs:             raw,
		ErrorMessage:     e.ErrorMessage,
	}, nil
}

func (r *executionRow) toDomain() (*domain.Execution, error) {
	e := &domain.Execution{
		ID:               r.ID,
		WorkflowID:       r.WorkflowID,
		UserID:           r.UserID,
		Status:           domain.ExecutionStatus(r.Status),
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		RecordsProcessed: r.RecordsProcessed,
		ErrorMessage:     r.ErrorMessage,
	}
	if len(r.Logs) > 0 {
		if err := json.Unmarshal(r.Logs, &e.Logs); err != nil {
			return nil, fmt.Errorf("decode execution %s logs: %w", r.ID, err)
		}
	}
	return e, nil
}

func (s *GormStore) CreateConnection(ctx context.Context, c *domain.Connection) error {
	row, err := toConnectionRow(c)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}
	c.CreatedAt, c.UpdatedAt = row.CreatedAt, row.UpdatedAt
	return nil
}

func (s *GormStore) UpdateConnection(ctx context.Context, c *domain.Connection) error {
	row, err := toConnectionRow(c)
	if err != nil {
		return err
	}
	row.UpdatedAt = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&connectionRow{}).Where("id = ?", c.ID).
		Select("*").Omit("id", "created_at").Updates(row)
	if res.Error != nil {
		return fmt.Errorf("failed to update connection: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("connection %s: %w", c.ID, ErrNotFound)
	}
	c.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *GormStore) GetConnection(ctx context.Context, id string) (*domain.Connection, error) {
	var row connectionRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound("connection", id, err)
	}
	return row.toDomain()
}

func (s *GormStore) ListConnections(ctx context.Context, ownerID string) ([]*domain.Connection, error) {
	var rows []connectionRow
	q := s.db.WithContext(ctx).Order("created_at, id")
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	out := make([]*domain.Connection, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *GormStore) CreateWorkflow(ctx context.Context, w *domain.Workflow) error {
	row, err := toWorkflowRow(w)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	w.CreatedAt, w.UpdatedAt = row.CreatedAt, row.UpdatedAt
	return nil
}

func (s *GormStore) UpdateWorkflow(ctx context.Context, w *domain.Workflow) error {
	row, err := toWorkflowRow(w)
	if err != nil {
		return err
	}
	row.UpdatedAt = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&workflowRow{}).Where("id = ?", w.ID).
		Select("*").Omit("id", "created_at").Updates(row)
	if res.Error != nil {
		return fmt.Errorf("failed to update workflow: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("workflow %s: %w", w.ID, ErrNotFound)
	}
	w.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *GormStore) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	var row workflowRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound("workflow", id, err)
	}
	return row.toDomain()
}

func (s *GormStore) ListWorkflows(ctx context.Context, ownerID string) ([]*domain.Workflow, error) {
	var rows []workflowRow
	q := s.db.WithContext(ctx).Order("created_at, id")
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	out := make([]*domain.Workflow, 0, len(rows))
	for i := range rows {
		w, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *GormStore) SetWorkflowStatus(ctx context.Context, id string, status domain.WorkflowStatus) error {
	res := s.db.WithContext(ctx).Model(&workflowRow{}).Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("failed to set workflow status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *GormStore) CreateExecution(ctx context.Context, e *domain.Execution) error {
	row, err := toExecutionRow(e)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

func (s *GormStore) SaveExecution(ctx context.Context, e *domain.Execution) error {
	row, err := toExecutionRow(e)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&executionRow{}).Where("id = ?", e.ID).
		Select("*").Omit("id").Updates(row)
	if res.Error != nil {
		return fmt.Errorf("failed to save execution: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("execution %s: %w", e.ID, ErrNotFound)
	}
	return nil
}

func (s *GormStore) GetExecution(ctx context.Context, id string) (*domain.Execution, error) {
	var row executionRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound("execution", id, err)
	}
	return row.toDomain()
}

func (s *GormStore) ListExecutions(ctx context.Context, workflowID string, offset, limit int) ([]*domain.Execution, error) {
	var rows []executionRow
	q := s.db.WithContext(ctx).Where("workflow_id = ?", workflowID).
		Order("started_at DESC, id DESC").Offset(max(offset, 0))
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	out := make([]*domain.Execution, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
