package pipeline

import (
	ragerr "agentic_rag/backend/go/pkg/errors"
)

// Status is the outcome flag of a pipeline operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// IngestionResult reports one ingestion attempt.
type IngestionResult struct {
	Status        Status
	Message       string
	ChunksCreated int
	// Err is the underlying cause of a failure, nil on success.
	Err error
	// Provenance is the metadata of the first loaded document, if any.
	Provenance map[string]interface{}
}

func (r IngestionResult) OK() bool { return r.Status == StatusSuccess }

// Code is the error code of a failed result, "" on success.
func (r IngestionResult) Code() ragerr.Code { return ragerr.CodeOf(r.Err) }

// QAResult reports one question answered, or why it could not be.
type QAResult struct {
	Status       Status
	Result       string
	SourceChunks []string
	Err          error
}

func (r QAResult) OK() bool { return r.Status == StatusSuccess }

func (r QAResult) Code() ragerr.Code { return ragerr.CodeOf(r.Err) }
