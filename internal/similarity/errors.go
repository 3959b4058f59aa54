package similarity

import (
	"fmt"
	"strings"
)

// NotFoundError is returned when none of the requested seed ids resolve.
// It is the only failure that short-circuits a ranking before scoring.
type NotFoundError struct {
	IDs []int64
}

func (e *NotFoundError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("no input companies found for ids: %s", strings.Join(ids, ", "))
}

// ValidationError reports a malformed request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConfigError reports an engine misconfiguration, such as a candidate pool
// larger than the configured ceiling.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "similarity: configuration error: " + e.Reason
}
