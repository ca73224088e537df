package model

import (
	"encoding/json"
	"time"
)

// JobType identifies which pipeline a background job runs.
type JobType string

const (
	JobDiscovery      JobType = "discovery"
	JobFunnelBuild    JobType = "funnel_build"
	JobFunnelRefresh  JobType = "funnel_refresh"
	JobCompanySignals JobType = "company_signals"
	JobPersonaSignals JobType = "persona_signals"
)

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusComplete  JobStatus = "complete"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is the persisted handle for an asynchronous batch operation. Workers
// write progress counters onto the row so a poller can observe them.
type Job struct {
	ID             string          `json:"id" db:"id"`
	ClientID       string          `json:"client_id" db:"client_id"`
	Type           JobType         `json:"type" db:"type"`
	Status         JobStatus       `json:"status" db:"status"`
	Input          json.RawMessage `json:"input,omitempty" db:"input"`
	Output         json.RawMessage `json:"output,omitempty" db:"output"`
	Error          string          `json:"error,omitempty" db:"error"`
	ProcessedItems int             `json:"processed_items" db:"processed_items"`
	TotalItems     int             `json:"total_items" db:"total_items"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobStatusComplete, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}
