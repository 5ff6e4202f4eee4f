package runner

import (
	"context"
	"encoding/json"
	"time"

	"github.com/crawlerd/crawlerd/pkg/logging"
	"github.com/crawlerd/crawlerd/pkg/task"
)

// assemble packages the action trace into the final report: merged
// extracted data, collected screenshot refs, derived terminal status, and
// optional skipped-entry backfill. When PersistReports is set, the report
// is also written to the artifact store; a persist failure is logged but
// never changes the outcome the caller sees.
func (r *Runner) assemble(ctx context.Context, t *task.Task, results []task.ActionResult, taskErr *task.ErrorInfo, startedAt time.Time, aborted bool) *task.Report {
	finishedAt := time.Now()

	report := &task.Report{
		TaskID:        t.TaskID,
		URL:           t.URL,
		ActionResults: results,
		Error:         taskErr,
		Metadata:      t.Metadata,
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		DurationMS:    finishedAt.Sub(startedAt).Milliseconds(),
	}

	for _, res := range results {
		for k, v := range res.Data {
			if report.Data == nil {
				report.Data = make(map[string]any)
			}
			report.Data[k] = v
		}
		if res.Type == task.ActionScreenshot && res.ArtifactRef != nil {
			report.Screenshots = append(report.Screenshots, *res.ArtifactRef)
		}
	}

	report.Status = deriveStatus(results, taskErr)
	if report.Error == nil && report.Status != task.TaskSuccess {
		report.Error = firstFailure(results)
	}

	if aborted && r.opts.BackfillSkipped {
		for i := len(results); i < len(t.Actions); i++ {
			report.ActionResults = append(report.ActionResults, task.ActionResult{
				Index:  i,
				Type:   t.Actions[i].Type,
				Status: task.StatusSkipped,
			})
		}
		report.SkippedBackfilled = true
	}

	r.persist(ctx, report)
	return report
}

// deriveStatus folds the trace into the terminal task status: success
// when every result is ok, failure when nothing succeeded, partial
// failure in between.
func deriveStatus(results []task.ActionResult, taskErr *task.ErrorInfo) task.TaskStatus {
	if taskErr != nil {
		return task.TaskFailure
	}

	var ok, failed int
	for _, res := range results {
		switch res.Status {
		case task.StatusOK:
			ok++
		case task.StatusFailed:
			failed++
		}
	}
	switch {
	case failed == 0:
		return task.TaskSuccess
	case ok > 0:
		return task.TaskPartialFailure
	default:
		return task.TaskFailure
	}
}

func firstFailure(results []task.ActionResult) *task.ErrorInfo {
	for _, res := range results {
		if res.Status == task.StatusFailed && res.Error != nil {
			return res.Error
		}
	}
	return nil
}

func (r *Runner) persist(ctx context.Context, report *task.Report) {
	if !r.opts.PersistReports || r.opts.Artifacts == nil {
		return
	}

	data, err := json.Marshal(report)
	if err != nil {
		r.logger.Error(logging.CategoryStorage, "report_marshal_failed", err.Error(),
			map[string]any{"task_id": report.TaskID})
		return
	}

	// Persist with a short grace window even when the task deadline has
	// already fired, so an aborted task still leaves a record.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	ref, err := r.opts.Artifacts.Put(persistCtx, report.TaskID, "result", data, "application/json")
	if err != nil {
		r.logger.Warn(logging.CategoryStorage, "report_persist_failed", err.Error(),
			map[string]any{"task_id": report.TaskID})
		return
	}
	report.ResultRef = &ref
}
