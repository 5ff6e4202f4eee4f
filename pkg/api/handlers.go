package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/crawlerd/crawlerd/pkg/logging"
	"github.com/crawlerd/crawlerd/pkg/task"
)

// submissionResult is the per-task outcome of a submission request.
type submissionResult struct {
	TaskID   string `json:"task_id,omitempty"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

type submissionResponse struct {
	Accepted int                `json:"accepted"`
	Rejected int                `json:"rejected"`
	Results  []submissionResult `json:"results"`
}

const maxSubmissionBytes = 4 << 20

// handleSubmitTasks accepts a single task object or an array of 1-N
// tasks. Every element is validated independently: valid tasks are
// enqueued, invalid ones are reported per-item without failing the batch.
func (s *Server) handleSubmitTasks(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSubmissionBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	raws, err := splitSubmission(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(raws) == 0 {
		s.writeError(w, http.StatusBadRequest, "submission contains no tasks")
		return
	}

	q := s.opts.Bus.Queue(s.opts.QueueName)
	resp := submissionResponse{Results: make([]submissionResult, 0, len(raws))}

	for _, raw := range raws {
		t, err := task.Decode(raw)
		if err != nil {
			resp.Rejected++
			resp.Results = append(resp.Results, submissionResult{Error: err.Error()})
			continue
		}

		// Re-encode so the queued record carries the assigned task ID
		// and normalized defaults.
		payload, err := json.Marshal(t)
		if err == nil {
			err = q.Push(r.Context(), payload)
		}
		if err != nil {
			s.logger.Error(logging.CategoryAPI, "enqueue_failed", err.Error(), map[string]any{
				"task_id": t.TaskID,
			})
			resp.Rejected++
			resp.Results = append(resp.Results, submissionResult{
				TaskID: t.TaskID,
				Error:  "failed to enqueue task",
			})
			continue
		}

		resp.Accepted++
		resp.Results = append(resp.Results, submissionResult{TaskID: t.TaskID, Accepted: true})
	}

	status := http.StatusAccepted
	if resp.Accepted == 0 {
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, resp)
}

// splitSubmission splits a request body into individual raw task records,
// accepting either one JSON object or an array of objects.
func splitSubmission(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errInvalidBody
	}

	if trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, errInvalidBody
		}
		return raws, nil
	}

	var single json.RawMessage
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, errInvalidBody
	}
	return []json.RawMessage{single}, nil
}

var errInvalidBody = &apiError{"request body must be a task object or an array of tasks"}

type apiError struct{ msg string }

func (e *apiError) Error() string { return e.msg }

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	q := s.opts.Bus.Queue(s.opts.QueueName)
	n, err := q.Len(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"queue":   q.Name(),
		"pending": n,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.opts.Bus.Queue(s.opts.QueueName).Len(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(logging.CategoryAPI, "response_encode_failed", err.Error(), nil)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
