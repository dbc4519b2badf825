package opportunity

import (
	"context"
	"errors"
	"time"
)

// RunStatus is the lifecycle state of a refresh run.
type RunStatus string

// Run statuses.
const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed
}

// RunCounters summarise one refresh pass.
type RunCounters struct {
	Sources  int `json:"sources"`
	Fetched  int `json:"fetched"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	Records  int `json:"records"`
	Archived int `json:"archived"`
}

// Run is one background refresh pass over a scope.
type Run struct {
	ID       string      `json:"id"`
	Scope    string      `json:"scope"`
	Status   RunStatus   `json:"status"`
	Counters RunCounters `json:"counters"`
	Error    string      `json:"error,omitempty"`
	Created  time.Time   `json:"created"`
	Started  *time.Time  `json:"started,omitempty"`
	Finished *time.Time  `json:"finished,omitempty"`
}

// ErrRunNotFound is returned by RunStore lookups for unknown IDs.
var ErrRunNotFound = errors.New("run not found")

// RunStore tracks refresh runs.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRun(ctx context.Context, id string, status RunStatus, errText string, counters RunCounters) error
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
