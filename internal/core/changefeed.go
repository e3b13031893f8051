package core

import (
	"context"
	"time"
)

// OperationType represents the kind of entity write that produced an event.
type OperationType string

const (
	// OperationCreate represents an INSERT.
	OperationCreate OperationType = "CREATE"

	// OperationUpdate represents an UPDATE of changed columns.
	OperationUpdate OperationType = "UPDATE"

	// OperationDelete represents a physical DELETE.
	OperationDelete OperationType = "DELETE"

	// OperationSoftDelete represents stamping the deleted-at column.
	OperationSoftDelete OperationType = "SOFT_DELETE"

	// OperationRestore represents clearing the deleted-at column.
	OperationRestore OperationType = "RESTORE"
)

// ChangeEvent describes one successful entity write.
type ChangeEvent struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Table is the name of the table that was written.
	Table string `json:"table"`

	// Operation is the kind of write.
	Operation OperationType `json:"operation"`

	// Key is the primary key value of the written row.
	Key interface{} `json:"key"`

	// Data holds the columns that were written, nil for deletes.
	Data map[string]interface{} `json:"data,omitempty"`

	// Timestamp is when the write completed.
	Timestamp time.Time `json:"timestamp"`
}

// ChangeFeed publishes entity change events to interested consumers.
type ChangeFeed interface {
	// Publish hands an event to the feed. It must not block indefinitely.
	Publish(ctx context.Context, event *ChangeEvent) error

	// Close releases the feed's resources.
	Close() error
}
