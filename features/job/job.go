package job

import (
	"errors"
	"time"

	"github.com/timrodz/cards-oracle/internal/pipeline"
)

var ErrNotFound = errors.New("job not found")

type Status string

const (
	StatusQueued           Status = "queued"
	StatusRunning          Status = "running"
	StatusSucceeded        Status = "succeeded"
	StatusFailed           Status = "failed"
	StatusFailedSubmission Status = "failed_submission"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusFailedSubmission:
		return true
	}
	return false
}

// Job is one tracked pipeline run. Request is a snapshot of the submission.
type Job struct {
	ID            string
	Status        Status
	ExternalRunID string
	Request       pipeline.Request
	Error         *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Message is the dispatch payload handed to a worker.
type Message struct {
	JobID         string `json:"job_id"`
	RunID         string `json:"run_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type SubmitResponse struct {
	Message       string `json:"message"`
	JobID         string `json:"job_id"`
	Status        Status `json:"status"`
	ExternalRunID string `json:"external_run_id"`
}

type StatusResponse struct {
	JobID            string  `json:"job_id"`
	Status           Status  `json:"status"`
	ExternalRunID    string  `json:"external_run_id"`
	ExternalStatus   string  `json:"external_status,omitempty"`
	SourceCollection string  `json:"source_collection"`
	TargetCollection string  `json:"target_collection"`
	ChunkMappings    *string `json:"chunk_mappings,omitempty"`
	Limit            *int    `json:"limit,omitempty"`
	Normalize        bool    `json:"normalize"`
	Error            *string `json:"error,omitempty"`
}

func (j *Job) Submitted() SubmitResponse {
	return SubmitResponse{Message: "Embeddings task accepted.", JobID: j.ID, Status: j.Status, ExternalRunID: j.ExternalRunID}
}

func (j *Job) StatusResponse(external string) StatusResponse {
	return StatusResponse{
		JobID:            j.ID,
		Status:           j.Status,
		ExternalRunID:    j.ExternalRunID,
		ExternalStatus:   external,
		SourceCollection: j.Request.SourceCollection,
		TargetCollection: j.Request.TargetCollection,
		ChunkMappings:    j.Request.ChunkMappings,
		Limit:            j.Request.Limit,
		Normalize:        j.Request.Normalize,
		Error:            j.Error,
	}
}
