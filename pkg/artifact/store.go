// Package artifact stores execution byproducts: screenshots and persisted
// task reports. Artifacts are referenced by opaque key, never embedded in
// result payloads.
package artifact

import (
	"context"
	"fmt"
	"time"
)

// Ref points at one stored artifact.
type Ref struct {
	Name string `json:"name"`
	Key  string `json:"key"`
	URL  string `json:"url,omitempty"`
}

// Store is the durable storage collaborator. Implementations must apply
// their own timeouts via ctx; a slow store must not stall a task past its
// deadline.
type Store interface {
	Put(ctx context.Context, taskID, name string, data []byte, contentType string) (Ref, error)
}

// ScreenshotKey builds the storage key for a captured screenshot.
func ScreenshotKey(taskID, name string) string {
	return fmt.Sprintf("screenshots/%s/%s/%s.png", day(), taskID, name)
}

// ResultKey builds the storage key for a persisted task report.
func ResultKey(taskID string) string {
	return fmt.Sprintf("results/%s/%s.json", day(), taskID)
}

func day() string {
	return time.Now().UTC().Format("2006-01-02")
}

// keyFor picks the key scheme from the content type: JSON payloads are
// task reports, everything else is treated as a screenshot capture.
func keyFor(taskID, name, contentType string) string {
	if contentType == "application/json" {
		return ResultKey(taskID)
	}
	return ScreenshotKey(taskID, name)
}
