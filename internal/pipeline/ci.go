// Package pipeline runs a task as a single-job pipeline on the CI service.
//
// Start prepares a per-task branch carrying a generated CI definition, pushes
// it, waits for the CI service to register it, creates the pipeline and hands
// back a Run. Attach resumes a Run for a pipeline created before a restart.
package pipeline

import (
	"context"
)

// Status is a CI pipeline or job status.
type Status string

const (
	StatusCreated            Status = "created"
	StatusWaitingForResource Status = "waiting_for_resource"
	StatusPreparing          Status = "preparing"
	StatusPending            Status = "pending"
	StatusRunning            Status = "running"
	StatusManual             Status = "manual"
	StatusScheduled          Status = "scheduled"
	StatusSuccess            Status = "success"
	StatusFailed             Status = "failed"
	StatusCanceled           Status = "canceled"
	StatusSkipped            Status = "skipped"
)

// IsTerminal reports whether the pipeline will not change status again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCanceled, StatusSkipped:
		return true
	}
	return false
}

// CreatedPipeline is the CI service's answer to a pipeline creation request.
type CreatedPipeline struct {
	ID        int64
	ProjectID int64
	WebURL    string
}

// CIJob is one job of a pipeline.
type CIJob struct {
	ID     int64
	Name   string
	Status Status
	WebURL string
}

// CIClient is the subset of the CI service REST API the driver needs.
// Implementations authenticate with a header-carried token and must never
// log it.
type CIClient interface {
	// BranchExists reports whether project already knows branch.
	BranchExists(ctx context.Context, project, branch string) (bool, error)
	CreatePipeline(ctx context.Context, project, ref string) (*CreatedPipeline, error)
	ListPipelineJobs(ctx context.Context, projectID, pipelineID int64) ([]CIJob, error)
	PipelineStatus(ctx context.Context, projectID, pipelineID int64) (Status, error)
	// CancelPipeline must succeed for pipelines that already finished.
	CancelPipeline(ctx context.Context, projectID, pipelineID int64) error
}
