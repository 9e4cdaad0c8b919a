package queue

// Status is a queue item's position in its lifecycle.
type Status string

const (
	StatusWaiting     Status = "waiting"
	StatusDownloading Status = "downloading"
	StatusFinished    Status = "finished"
	StatusFailed      Status = "failed"
	StatusSkipped     Status = "skipped"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusWaiting, StatusDownloading, StatusFinished, StatusFailed, StatusSkipped}

// validTransitions defines allowed state transitions.
// Key is the "from" status, value is list of valid "to" statuses.
var validTransitions = map[Status][]Status{
	StatusWaiting:     {StatusDownloading},
	StatusDownloading: {StatusFinished, StatusFailed, StatusSkipped},
	StatusFinished:    {}, // terminal
	StatusFailed:      {}, // terminal
	StatusSkipped:     {}, // terminal
}

// CanTransitionTo returns true if transitioning from s to target is valid.
func (s Status) CanTransitionTo(target Status) bool {
	for _, v := range validTransitions[s] {
		if v == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this status has no valid outgoing transitions.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed || s == StatusSkipped
}
