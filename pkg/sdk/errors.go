package sdk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrCursorConsumed is returned when a cursor is materialized a second time.
	ErrCursorConsumed = errors.New("cursor already consumed")
	// ErrDatabaseClosed is returned by every operation issued after Close.
	ErrDatabaseClosed = errors.New("database handle closed")
)

// SchemaError reports an invalid shape declaration.
type SchemaError struct {
	Shape  string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid shape %q: %s", e.Shape, e.Reason)
	}
	return fmt.Sprintf("invalid shape %q: field %q: %s", e.Shape, e.Field, e.Reason)
}

// FieldViolation is one failed constraint.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every violated field of a rejected input.
type ValidationError struct {
	Shape      string           `json:"shape"`
	Violations []FieldViolation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Field == "" {
			parts = append(parts, v.Reason)
			continue
		}
		parts = append(parts, v.Field+": "+v.Reason)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Shape, strings.Join(parts, "; "))
}

// Fields returns the names of the violated fields in report order.
func (e *ValidationError) Fields() []string {
	fields := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		fields = append(fields, v.Field)
	}
	return fields
}

type violations struct {
	shape string
	list  []FieldViolation
}

func (v *violations) add(field, reason string) {
	v.list = append(v.list, FieldViolation{Field: field, Reason: reason})
}

func (v *violations) merge(prefix string, other *ValidationError) {
	for _, fv := range other.Violations {
		field := prefix
		if fv.Field != "" {
			field = prefix + "." + fv.Field
		}
		v.list = append(v.list, FieldViolation{Field: field, Reason: fv.Reason})
	}
}

func (v *violations) err() error {
	if len(v.list) == 0 {
		return nil
	}
	return &ValidationError{Shape: v.shape, Violations: v.list}
}

// StoreError wraps a failure reported by the document store.
type StoreError struct {
	Op         string
	Collection string
	Filter     any
	Update     any
	Err        error
	// Orphaned lists ids a failed InsertMany may have written and did not remove.
	Orphaned []any
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s on %s failed", e.Op, e.Collection)
	if e.Filter != nil {
		msg += fmt.Sprintf(" (filter %v)", e.Filter)
	}
	if e.Update != nil {
		msg += fmt.Sprintf(" (update %v)", e.Update)
	}
	msg += ": " + e.Err.Error()
	if len(e.Orphaned) > 0 {
		msg += fmt.Sprintf(" (%d documents could not be rolled back)", len(e.Orphaned))
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the operation may succeed.
// No retry is performed by this package.
func (e *StoreError) Retryable() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	if mongo.IsNetworkError(e.Err) || mongo.IsTimeout(e.Err) {
		return true
	}
	var labeled mongo.LabeledError
	if errors.As(e.Err, &labeled) {
		return labeled.HasErrorLabel("RetryableWriteError") || labeled.HasErrorLabel("TransientTransactionError")
	}
	var connErr *ConnectionError
	return errors.As(e.Err, &connErr) && !errors.Is(connErr.Err, ErrDatabaseClosed)
}

// IsDuplicateKey reports a unique index violation.
func (e *StoreError) IsDuplicateKey() bool {
	return mongo.IsDuplicateKeyError(e.Err)
}

// ConnectionError reports a malformed URI or an unreachable store.
type ConnectionError struct {
	URI string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.URI, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsSchemaError(err error) bool {
	var target *SchemaError
	return errors.As(err, &target)
}

func IsStoreError(err error) bool {
	var target *StoreError
	return errors.As(err, &target)
}

func IsConnectionError(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}
