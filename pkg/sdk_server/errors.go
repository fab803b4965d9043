package sdk_server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
)

// ErrNotFound is returned by handlers when the addressed record does not exist.
var ErrNotFound = errors.New("record not found")

// StatusOf maps an error of the document layer to an HTTP status.
func StatusOf(err error) int {
	var (
		validationErr *sdk.ValidationError
		schemaErr     *sdk.SchemaError
		connErr       *sdk.ConnectionError
		storeErr      *sdk.StoreError
	)
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &schemaErr):
		return http.StatusInternalServerError
	case errors.As(err, &storeErr):
		if storeErr.IsDuplicateKey() {
			return http.StatusConflict
		}
		if storeErr.Retryable() {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	case errors.As(err, &connErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromError builds the response envelope for err.
func FromError(err error) (int, *Response[map[string]any]) {
	status := StatusOf(err)
	gravity := ResponseMessageGravityError
	if status >= http.StatusInternalServerError {
		gravity = ResponseMessageGravityFatal
	}
	var validationErr *sdk.ValidationError
	if errors.As(err, &validationErr) {
		return status, NewDefaultResponseBuilder().AddMessage(NewViolationMessage(validationErr)).Build()
	}
	return status, MessageResponse(gravity, err.Error())
}

// ThrowError aborts the request with the status and envelope of err.
func ThrowError(c *gin.Context, err error) {
	status, body := FromError(err)
	c.AbortWithStatusJSON(status, body)
}

// print to http response bad request error
func ThrowBadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, MessageResponse(ResponseMessageGravityError, err.Error()))
}

// print to http response not found error
func ThrowNotFound(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusNotFound, MessageResponse(ResponseMessageGravityError, err.Error()))
}
