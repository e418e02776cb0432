package dto

import "time"

type TelemetryMetric struct {
	Name      string            `json:"name" validate:"required"`
	Value     interface{}       `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags,omitempty"`
}

type TelemetryBatchRequest struct {
	Timestamp time.Time         `json:"timestamp"`
	Metrics   []TelemetryMetric `json:"metrics" validate:"required,dive"`
}

type TelemetryBatchResponse struct {
	Received int `json:"received"`
}

type TaskResultsResponse struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped,omitempty"`
}
