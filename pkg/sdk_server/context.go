package sdk_server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
)

// Handler registers its routes on a group of the server router.
type Handler interface {
	Route(r *gin.RouterGroup)
}

// RequestContext bridges a gin request with the request scoped logger.
type RequestContext struct {
	RequestID string
	Logger    *sdk.Logger

	// bridge with gin framework
	GinContext *gin.Context
}

// Context returns the RequestContext of the current request. It works without the
// request id middleware too, with an empty id and a no-op logger.
func Context(c *gin.Context) *RequestContext {
	ctx := &RequestContext{GinContext: c, Logger: sdk.NopLogger()}
	if id, ok := c.Get(requestIDKey); ok {
		ctx.RequestID, _ = id.(string)
	}
	if logger, ok := c.Get(loggerKey); ok {
		if l, ok := logger.(*sdk.Logger); ok {
			ctx.Logger = l
		}
	}
	return ctx
}

// End writes data in the response envelope with status 200.
func End[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, DataResponse(data))
}

// Created writes data in the response envelope with status 201.
func Created[T any](c *gin.Context, data T) {
	c.JSON(http.StatusCreated, DataResponse(data))
}

// Fail logs err and aborts the request with the mapped status.
func (r *RequestContext) Fail(err error) {
	status := StatusOf(err)
	fields := map[string]interface{}{
		"path":   r.GinContext.FullPath(),
		"status": status,
		"error":  err.Error(),
	}
	if status >= http.StatusInternalServerError {
		r.Logger.ErrorWithFields("Request failed", fields)
	} else {
		r.Logger.WarnWithFields("Request rejected", fields)
	}
	ThrowError(r.GinContext, err)
}

// Dispatch binds the JSON body to T before calling callback.
func Dispatch[T any](callback func(T, *gin.Context)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload T
		if err := c.ShouldBindJSON(&payload); err != nil {
			ThrowBadRequest(c, err)
			return
		}
		callback(payload, c)
	}
}
