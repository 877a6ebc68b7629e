package domain

import (
	"fmt"
	"strings"
)

// BackendKind is the closed set of database backends a Connection can target.
type BackendKind string

const (
	KindSQLServer  BackendKind = "sql_server"
	KindAzureSQL   BackendKind = "azure_sql"
	KindPostgreSQL BackendKind = "postgresql"
	KindSQLite     BackendKind = "sqlite"
)

// BackendKinds lists every supported kind in a stable order.
var BackendKinds = []BackendKind{KindSQLServer, KindAzureSQL, KindPostgreSQL, KindSQLite}

// ParseBackendKind accepts the canonical names plus a few common aliases.
func ParseBackendKind(s string) (BackendKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sql_server", "sqlserver", "mssql":
		return KindSQLServer, nil
	case "azure_sql", "azuresql", "azure":
		return KindAzureSQL, nil
	case "postgresql", "postgres", "pg":
		return KindPostgreSQL, nil
	case "sqlite", "sqlite3":
		return KindSQLite, nil
	}
	return "", fmt.Errorf("unsupported backend kind %q (supported: sql_server, azure_sql, postgresql, sqlite)", s)
}

// Valid reports whether k is a member of the closed set.
func (k BackendKind) Valid() bool {
	for _, v := range BackendKinds {
		if v == k {
			return true
		}
	}
	return false
}

// SQLServerFamily is true for both on-prem SQL Server and Azure SQL.
func (k BackendKind) SQLServerFamily() bool {
	return k == KindSQLServer || k == KindAzureSQL
}

// ConnectionStatus is the last known health of a Connection.
type ConnectionStatus string

const (
	ConnectionActive   ConnectionStatus = "active"
	ConnectionInactive ConnectionStatus = "inactive"
	ConnectionError    ConnectionStatus = "error"
)

// WorkflowStatus follows DRAFT → READY → RUNNING → COMPLETED/FAILED.
type WorkflowStatus string

const (
	WorkflowDraft     WorkflowStatus = "draft"
	WorkflowReady     WorkflowStatus = "ready"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
)

// ExecutionStatus mirrors the run states of WorkflowStatus only.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)
