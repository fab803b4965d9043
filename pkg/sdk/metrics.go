package sdk

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK      = "ok"
	outcomeInvalid = "invalid"
	outcomeError   = "error"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "endor_odm_operations_total",
		Help: "Collection operations by collection, operation and outcome.",
	}, []string{"collection", "operation", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "endor_odm_operation_duration_seconds",
		Help:    "Duration of collection operations, validation included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection", "operation"})
)

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case IsValidationError(err):
		return outcomeInvalid
	default:
		return outcomeError
	}
}

func observe(collection, operation string, start time.Time, err error) {
	operationsTotal.WithLabelValues(collection, operation, outcomeOf(err)).Inc()
	operationDuration.WithLabelValues(collection, operation).Observe(time.Since(start).Seconds())
}
