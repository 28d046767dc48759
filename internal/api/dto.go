package api

import (
	"github.com/starford/dagaz/internal/query"
	"github.com/starford/dagaz/internal/service"
)

// QueryRequest is the request body for record queries (aliased from the domain layer).
type QueryRequest = query.Request

// QueryResponse is the tabular query result (aliased from the domain layer).
type QueryResponse = query.Result

// StatusResponse reports store readiness and last-sync state (aliased from the domain layer).
type StatusResponse = service.Status

// PropertiesResponse wraps the distinct property names across all records.
type PropertiesResponse struct {
	Properties []string `json:"properties" validate:"required"`
}

// SyncRequest is the request body for starting a sync pass.
type SyncRequest struct {
	Full bool `json:"full" example:"false"`
}

// SyncAcceptedResponse is returned once a background sync pass has started.
type SyncAcceptedResponse struct {
	Started bool `json:"started" example:"true" validate:"required"`
}

// FilterDTO mirrors query.Filter with explicit types for swag.
type FilterDTO struct {
	Property string `json:"property" example:"className" validate:"required"`
	Operator string `json:"operator" example:"includes" enums:"includes,not_includes,equals,not_equals,exists,not_exists"`
	Value    string `json:"value" example:"PrimaryButton"`
}

// QueryRequestDTO mirrors QueryRequest for swag.
type QueryRequestDTO struct {
	Filters []FilterDTO `json:"filters"`
	Columns []string    `json:"columns" example:"fileName,controlTitle,type"`
	Limit   int         `json:"limit,omitempty" example:"50"`
}
