package dto

import "github.com/conces/conces-api/internal/models"

// ExportRequest captures POST /exports payload. Filters take the same
// keys as the query parameters of the matching list endpoint.
type ExportRequest struct {
	Resource models.ExportResource `json:"resource" validate:"required,oneof=alumni users branches"`
	Format   models.ExportFormat   `json:"format" validate:"required,oneof=csv json pdf"`
	Filters  map[string]string     `json:"filters,omitempty"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID     string              `json:"id"`
	Status models.ExportStatus `json:"status"`
}

// ExportStatusResponse exposes job state and, once finished, the signed
// download URL.
type ExportStatusResponse struct {
	ID        string                `json:"id"`
	Resource  models.ExportResource `json:"resource"`
	Format    models.ExportFormat   `json:"format"`
	Status    models.ExportStatus   `json:"status"`
	ResultURL *string               `json:"result_url,omitempty"`
	Error     *string               `json:"error,omitempty"`
}
