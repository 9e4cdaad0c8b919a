package queue

import "errors"

var (
	// ErrNotFound is returned when no item has the given ID.
	ErrNotFound = errors.New("queue item not found")

	// ErrInProgress is returned when removing the item being downloaded.
	ErrInProgress = errors.New("queue item is downloading")

	// ErrInvalidTransition is returned for a status change the item
	// lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ErrAborted is returned by Worker.Run when the abort flag is raised.
var ErrAborted = errors.New("worker aborted")
