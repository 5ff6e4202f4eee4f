package task

import (
	"time"

	"github.com/crawlerd/crawlerd/pkg/artifact"
	crawlerrors "github.com/crawlerd/crawlerd/pkg/errors"
)

// ActionStatus is the outcome of one action.
type ActionStatus string

const (
	StatusOK      ActionStatus = "ok"
	StatusFailed  ActionStatus = "failed"
	StatusSkipped ActionStatus = "skipped"
)

// TaskStatus is the terminal status of a whole task.
type TaskStatus string

const (
	TaskSuccess        TaskStatus = "success"
	TaskPartialFailure TaskStatus = "partial_failure"
	TaskFailure        TaskStatus = "failure"
)

// ErrorInfo is the serializable error attached to a failed action or task.
// It never carries credential material; login failures name only the
// failing sub-step.
type ErrorInfo struct {
	Kind    crawlerrors.Code `json:"kind"`
	Message string           `json:"message"`
	Substep string           `json:"substep,omitempty"`
}

// ActionResult is the immutable outcome record for one action.
type ActionResult struct {
	Index       int            `json:"index"`
	Type        ActionKind     `json:"type"`
	Status      ActionStatus   `json:"status"`
	Error       *ErrorInfo     `json:"error,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	ArtifactRef *artifact.Ref  `json:"artifact_ref,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
}

// Result is the outcome record for a whole task. action_results is always
// a prefix-or-full trace of the task's actions in original order.
type Result struct {
	TaskID        string         `json:"task_id"`
	URL           string         `json:"url"`
	Status        TaskStatus     `json:"status"`
	ActionResults []ActionResult `json:"action_results"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
}

// Report is the final record handed back to the caller: the task result
// plus merged extracted data and artifact references.
type Report struct {
	TaskID        string            `json:"task_id"`
	URL           string            `json:"url"`
	Status        TaskStatus        `json:"status"`
	ActionResults []ActionResult    `json:"action_results"`
	Data          map[string]any    `json:"data,omitempty"`
	Screenshots   []artifact.Ref    `json:"screenshots,omitempty"`
	Error         *ErrorInfo        `json:"error,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    time.Time         `json:"finished_at"`
	DurationMS    int64             `json:"duration_ms"`

	// SkippedBackfilled records that trailing skipped entries were added
	// for audit after an abort. Stated explicitly so consumers can tell
	// policy from execution.
	SkippedBackfilled bool `json:"skipped_backfilled,omitempty"`

	// ResultRef points at the persisted copy of this report, when the
	// artifact store accepted it.
	ResultRef *artifact.Ref `json:"result_ref,omitempty"`
}
