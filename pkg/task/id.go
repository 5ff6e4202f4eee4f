package task

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// GenerateID returns a unique task ID for submissions that omit one.
// ULIDs sort by creation time, which keeps stored reports browseable.
func GenerateID() string {
	return "task-" + strings.ToLower(ulid.Make().String())
}
