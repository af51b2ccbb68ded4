package entity

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusGenerating RunStatus = "generating"
	RunStatusValidating RunStatus = "validating"
	RunStatusExecuting  RunStatus = "executing"
	RunStatusSucceeded  RunStatus = "succeeded"
	RunStatusFailed     RunStatus = "failed"
)

// Run records a single pipeline invocation.
type Run struct {
	ID            string              `json:"id" bson:"id"`
	Topic         string              `json:"topic" bson:"topic"`
	Status        RunStatus           `json:"status" bson:"status"`
	Model         string              `json:"model,omitempty" bson:"model"`
	Code          string              `json:"-" bson:"code"`
	Text          string              `json:"text,omitempty" bson:"text"`
	SearchSummary string              `json:"search_summary,omitempty" bson:"search_summary"`
	ArtifactPath  string              `json:"artifact_path,omitempty" bson:"artifact_path"`
	Error         string              `json:"error,omitempty" bson:"error"`
	Findings      []ValidationFinding `json:"findings,omitempty" bson:"findings"`
	CreatedAt     time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" bson:"updated_at"`
}

func NewRun(topic string) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:        uuid.NewString(),
		Topic:     topic,
		Status:    RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *Run) UpdateStatus(status RunStatus) {
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
}

func (r *Run) Fail(err error) {
	r.Error = err.Error()
	r.UpdateStatus(RunStatusFailed)
}

func (r *Run) IsFinished() bool {
	return r.Status == RunStatusSucceeded || r.Status == RunStatusFailed
}
