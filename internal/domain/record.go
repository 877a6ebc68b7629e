// Package domain holds the business objects shared by the masking engine:
// connections, workflows with their table/column mappings, and executions.
// The types carry json/yaml tags so they can be loaded from definition files
// and validate tags so services can reject bad input before anything runs.
package domain

import "time"

// Connection describes one database endpoint. The password is never held in
// plaintext; PasswordRef is an opaque, encrypted secret reference.
type Connection struct {
	ID              string            `json:"id" yaml:"id" validate:"required"`
	Name            string            `json:"name" yaml:"name" validate:"required,min=1,max=200"`
	Kind            BackendKind       `json:"kind" yaml:"kind" validate:"required,backend_kind"`
	Host            string            `json:"host" yaml:"host" validate:"required,max=255"`
	Database        string            `json:"database,omitempty" yaml:"database,omitempty" validate:"max=255"`
	Username        string            `json:"username" yaml:"username" validate:"max=100"`
	PasswordRef     string            `json:"-" yaml:"-"`
	Port            int               `json:"port,omitempty" yaml:"port,omitempty" validate:"gte=0,lte=65535"`
	Params          map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Status          ConnectionStatus  `json:"status" yaml:"status"`
	LastTestMessage string            `json:"last_test_message,omitempty" yaml:"last_test_message,omitempty"`
	OwnerID         string            `json:"owner_id" yaml:"owner_id" validate:"required"`
	Active          bool              `json:"active" yaml:"active"`
	CreatedAt       time.Time         `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" yaml:"updated_at"`
}

// Workflow pairs one source connection with one destination connection and
// lists, in order, the tables to copy.
type Workflow struct {
	ID                      string         `json:"id" yaml:"id" validate:"required"`
	Name                    string         `json:"name" yaml:"name" validate:"required,min=1"`
	Description             string         `json:"description,omitempty" yaml:"description,omitempty"`
	SourceConnectionID      string         `json:"source_connection_id" yaml:"source_connection_id" validate:"required"`
	DestinationConnectionID string         `json:"destination_connection_id" yaml:"destination_connection_id" validate:"required"`
	TableMappings           []TableMapping `json:"table_mappings" yaml:"table_mappings" validate:"dive"`
	Status                  WorkflowStatus `json:"status" yaml:"status"`
	OwnerID                 string         `json:"owner_id" yaml:"owner_id" validate:"required"`
	Active                  bool           `json:"active" yaml:"active"`
	CreatedAt               time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at" yaml:"updated_at"`
}

// TableMapping copies SourceTable into DestinationTable. Columns are
// positional: index i is read from the source and written to the destination.
type TableMapping struct {
	ID               string          `json:"id,omitempty" yaml:"id,omitempty"`
	SourceTable      string          `json:"source_table" yaml:"source_table" validate:"required,min=1,max=255"`
	DestinationTable string          `json:"destination_table" yaml:"destination_table" validate:"required,min=1,max=255"`
	Columns          []ColumnMapping `json:"column_mappings" yaml:"column_mappings" validate:"dive"`
}

// ColumnMapping maps one source column to one destination column and flags
// whether its values are PII and which category of synthetic value replaces them.
type ColumnMapping struct {
	SourceColumn      string      `json:"source_column" yaml:"source_column" validate:"required,min=1,max=255"`
	DestinationColumn string      `json:"destination_column" yaml:"destination_column" validate:"required,min=1,max=255"`
	IsPII             bool        `json:"is_pii" yaml:"is_pii"`
	Category          PIICategory `json:"pii_attribute,omitempty" yaml:"pii_attribute,omitempty"`
}

// Execution is one concrete run of a workflow.
type Execution struct {
	ID               string          `json:"id"`
	WorkflowID       string          `json:"workflow_id"`
	UserID           string          `json:"user_id"`
	Status           ExecutionStatus `json:"status"`
	StartedAt        time.Time       `json:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	RecordsProcessed int64           `json:"records_processed"`
	Logs             []string        `json:"execution_logs"`
	ErrorMessage     string          `json:"error_message,omitempty"`
}

// Terminal reports whether the execution reached COMPLETED or FAILED.
func (e *Execution) Terminal() bool {
	return e.Status == ExecutionCompleted || e.Status == ExecutionFailed
}

// SourceColumns returns the source column names in declared order.
func (t TableMapping) SourceColumns() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.SourceColumn
	}
	return out
}

// DestinationColumns returns the destination column names in declared order.
func (t TableMapping) DestinationColumns() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.DestinationColumn
	}
	return out
}
