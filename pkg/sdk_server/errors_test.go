package sdk_server_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
	"github.com/mattiabonardi/endor-odm-go/pkg/sdk_server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStatusOf(t *testing.T) {
	duplicate := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error"}}}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &sdk.ValidationError{Shape: "Product"}, http.StatusBadRequest},
		{"not found", fmt.Errorf("product 42: %w", sdk_server.ErrNotFound), http.StatusNotFound},
		{"schema", &sdk.SchemaError{Shape: "Product", Reason: "bad"}, http.StatusInternalServerError},
		{"duplicate key", &sdk.StoreError{Op: "insert", Collection: "products", Err: duplicate}, http.StatusConflict},
		{"timeout", &sdk.StoreError{Op: "find", Collection: "products", Err: context.DeadlineExceeded}, http.StatusServiceUnavailable},
		{"store failure", &sdk.StoreError{Op: "find", Collection: "products", Err: errors.New("boom")}, http.StatusInternalServerError},
		{"connection", &sdk.ConnectionError{URI: "mongodb://localhost:27017", Err: io.EOF}, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sdk_server.StatusOf(tt.err))
		})
	}
}

func TestFromError(t *testing.T) {
	status, body := sdk_server.FromError(&sdk.ValidationError{Shape: "Product", Violations: []sdk.FieldViolation{
		{Field: "title", Reason: "is required"},
	}})
	assert.Equal(t, http.StatusBadRequest, status)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, sdk_server.ResponseMessageGravityError, body.Messages[0].Gravity)
	assert.Len(t, body.Messages[0].Violations, 1)
	assert.Nil(t, body.Data)

	status, body = sdk_server.FromError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, sdk_server.ResponseMessageGravityFatal, body.Messages[0].Gravity)
	assert.Empty(t, body.Messages[0].Violations)
}

func TestResponseEnvelopes(t *testing.T) {
	data := sdk_server.DataResponse([]string{"a", "b"})
	require.NotNil(t, data.Data)
	assert.Equal(t, []string{"a", "b"}, *data.Data)
	assert.Empty(t, data.Messages)

	message := sdk_server.MessageResponse(sdk_server.ResponseMessageGravityInfo, "Product deleted successfully")
	assert.Nil(t, message.Data)
	require.Len(t, message.Messages, 1)
	assert.Equal(t, "Product deleted successfully", message.Messages[0].Value)
}
