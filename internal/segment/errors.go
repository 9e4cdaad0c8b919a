package segment

import (
	"errors"
	"fmt"
)

var (
	// ErrAborted is returned when the shared abort flag is raised between fetches.
	ErrAborted = errors.New("download aborted")

	// ErrNoURLs is returned when there is nothing to fetch.
	ErrNoURLs = errors.New("no segment urls")

	// ErrStalled is returned when a response body delivers no data for
	// longer than the idle timeout.
	ErrStalled = errors.New("segment transfer stalled")
)

// HTTPError is a non-2xx response for a segment.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}
