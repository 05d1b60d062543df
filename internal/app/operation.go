package app

import (
	"errors"

	"shelf-go/internal/shelf"
)

// Operation status values stored with each record.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusAborted = "aborted"
)

// Operation tracks a CLI command that may mutate the library.
// Operations are created in memory with ID=0. Only mutating commands
// persist them (giving them an auto-increment ID from the database).
type Operation struct {
	ID         int64
	Name       string
	Parameters string
	Status     string
}

// NewOperation creates a new in-memory operation.
func NewOperation(name, parameters string) *Operation {
	return &Operation{
		Name:       name,
		Parameters: parameters,
		Status:     StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Record updates the status from the outcome of a step. Once an operation
// failed or was aborted it keeps that status.
func (op *Operation) Record(err error) {
	if err == nil || op.Status != StatusSuccess {
		return
	}
	if errors.Is(err, shelf.ErrAborted) {
		op.Status = StatusAborted
		return
	}
	op.Status = StatusError
}
