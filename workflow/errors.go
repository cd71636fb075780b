package workflow

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no entity exists for the given id.
	ErrNotFound = errors.New("workflow: entity not found")
	// ErrIllegalTransition is returned when the status model rejects the
	// (current, target) pair. Retrying with identical inputs fails identically.
	ErrIllegalTransition = errors.New("workflow: illegal transition")
	// ErrConflict is returned when a concurrent writer transitioned the entity
	// since it was read. Callers may re-read and retry.
	ErrConflict = errors.New("workflow: concurrent transition conflict")
	// ErrStorageTimeout is returned when a persistence call exceeded its
	// caller-supplied deadline. The entity remains in its last-committed state.
	ErrStorageTimeout = errors.New("workflow: storage timeout")
	// ErrStorageUnavailable is returned when the storage collaborator cannot
	// be reached at all.
	ErrStorageUnavailable = errors.New("workflow: storage unavailable")
)

// StorageError classifies a failed storage call into the error taxonomy.
// Deadline and cancellation failures map to ErrStorageTimeout, everything
// else to ErrStorageUnavailable. The core never retries either; retry policy
// belongs to the calling service.
func StorageError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, ErrStorageTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
