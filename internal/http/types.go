package http

import "github.com/fyrsmithlabs/cigen/internal/workflows"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// RedactRequest is the request body for POST /api/v1/redact.
type RedactRequest struct {
	Content string `json:"content"`
}

// RedactResponse is the response body for POST /api/v1/redact.
type RedactResponse struct {
	Content       string `json:"content"`
	FindingsCount int    `json:"findings_count"`
}

// SubmitBatchRequest is the request body for POST /api/v1/batches.
type SubmitBatchRequest struct {
	Repos       []string `json:"repos"`
	Model       string   `json:"model"`
	Concurrency int      `json:"concurrency,omitempty"`
	SummaryPath string   `json:"summary_path,omitempty"`
}

// BatchConfig converts the request into workflow input.
func (r SubmitBatchRequest) BatchConfig() workflows.BatchConfig {
	return workflows.BatchConfig{
		Repos:       r.Repos,
		Model:       r.Model,
		Concurrency: r.Concurrency,
		SummaryPath: r.SummaryPath,
	}
}

// SubmitBatchResponse is the response body for POST /api/v1/batches.
type SubmitBatchResponse = workflows.BatchRef

// BatchStatusResponse is the response body for GET /api/v1/batches/:id.
type BatchStatusResponse = workflows.BatchStatus
