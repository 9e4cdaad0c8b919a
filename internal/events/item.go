package events

// EntityItem is the entity type of queue items.
const EntityItem = "item"

// Event type constants
const (
	EventItemQueued      = "item.queued"
	EventItemDownloading = "item.downloading"
	EventItemProgressed  = "item.progressed"
	EventItemFinished    = "item.finished"
	EventItemFailed      = "item.failed"
	EventItemSkipped     = "item.skipped"
	EventItemRemoved     = "item.removed"
)

// ItemQueued is emitted when a task is enqueued.
type ItemQueued struct {
	BaseEvent
	Ref     string `json:"ref"`
	Name    string `json:"name,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// ItemDownloading is emitted when the worker picks an item up.
type ItemDownloading struct {
	BaseEvent
	Ref string `json:"ref"`
}

// ItemProgressed reports fetch progress. It is not persisted.
type ItemProgressed struct {
	BaseEvent
	Ref     string  `json:"ref"` // member ref for collections
	Percent float64 `json:"percent"`
	Bytes   int64   `json:"bytes"`
}

func (ItemProgressed) Ephemeral() bool { return true }

// ItemFinished is emitted when an item downloaded at least one file.
type ItemFinished struct {
	BaseEvent
	Ref   string `json:"ref"`
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// ItemFailed is emitted when processing an item returned an error.
type ItemFailed struct {
	BaseEvent
	Ref    string `json:"ref"`
	Reason string `json:"reason"`
}

// ItemSkipped is emitted when nothing was downloaded and nothing failed.
type ItemSkipped struct {
	BaseEvent
	Ref    string `json:"ref"`
	Reason string `json:"reason"` // unavailable, duplicate, exists
	Path   string `json:"path,omitempty"`
}

// ItemRemoved is emitted when an item is removed from the queue.
type ItemRemoved struct {
	BaseEvent
}
