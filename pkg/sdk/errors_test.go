package sdk_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStoreError_Retryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"retryable label", mongo.CommandError{Code: 91, Labels: []string{"RetryableWriteError"}}, true},
		{"transient transaction", mongo.CommandError{Code: 112, Labels: []string{"TransientTransactionError"}}, true},
		{"plain command error", mongo.CommandError{Code: 2, Message: "bad value"}, false},
		{"unreachable store", &sdk.ConnectionError{URI: "mongodb://x", Err: io.EOF}, true},
		{"closed handle", &sdk.ConnectionError{URI: "mongodb://x", Err: sdk.ErrDatabaseClosed}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &sdk.StoreError{Op: "insert", Collection: "products", Err: tt.err}
			assert.Equal(t, tt.want, err.Retryable())
		})
	}
}

func TestStoreError_IsDuplicateKey(t *testing.T) {
	dup := &sdk.StoreError{Op: "insert", Collection: "products", Err: mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{Index: 0, Code: 11000, Message: "E11000 duplicate key error"}},
	}}
	assert.True(t, dup.IsDuplicateKey())

	other := &sdk.StoreError{Op: "insert", Collection: "products", Err: errors.New("boom")}
	assert.False(t, other.IsDuplicateKey())
}

func TestErrorMessages(t *testing.T) {
	se := &sdk.StoreError{Op: "updateOne", Collection: "products", Filter: "{title iPhone}", Err: errors.New("boom")}
	assert.Equal(t, "updateOne on products failed (filter {title iPhone}): boom", se.Error())
	assert.True(t, sdk.IsStoreError(se))

	ve := &sdk.ValidationError{Shape: "Product", Violations: []sdk.FieldViolation{
		{Field: "title", Reason: "is required"},
		{Field: "price", Reason: "must be positive"},
	}}
	assert.Equal(t, "validation failed for Product: title: is required; price: must be positive", ve.Error())

	schemaErr := &sdk.SchemaError{Shape: "Product", Field: "price", Reason: "unknown type"}
	assert.Equal(t, `invalid shape "Product": field "price": unknown type`, schemaErr.Error())

	connErr := &sdk.ConnectionError{URI: "mongodb://localhost:27017", Err: io.EOF}
	assert.True(t, errors.Is(connErr, io.EOF))
	assert.False(t, sdk.IsValidationError(connErr))
}
