package fileserver

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the file server reports 404 for a file id.
// Callers check it with errors.Is to translate to their own 404.
var ErrNotFound = errors.New("fileserver: file not found")

// UpstreamError covers every other remote failure: non-2xx statuses,
// network errors, and unparseable responses. The boundary maps it to 502.
type UpstreamError struct {
	Detail string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("fileserver: upstream error: %s", e.Detail)
}

func upstreamf(format string, args ...any) *UpstreamError {
	return &UpstreamError{Detail: fmt.Sprintf(format, args...)}
}
