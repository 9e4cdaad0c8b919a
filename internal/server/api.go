package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/vmunix/streamgrab/internal/control"
	"github.com/vmunix/streamgrab/internal/download"
	"github.com/vmunix/streamgrab/internal/events"
	"github.com/vmunix/streamgrab/internal/history"
	"github.com/vmunix/streamgrab/internal/media"
	"github.com/vmunix/streamgrab/internal/metrics"
	"github.com/vmunix/streamgrab/internal/queue"
)

const defaultEventLimit = 100

// API is the local control surface over a running queue.
type API struct {
	queue   *queue.Queue
	gate    *control.Gate
	abort   *control.Flag
	history *history.Store
	events  *events.EventLog
	opts    download.TaskOptions
}

// APIDeps are the components the API reads and drives. History and Events
// may be nil; their routes then answer 503.
type APIDeps struct {
	Queue   *queue.Queue
	Gate    *control.Gate
	Abort   *control.Flag
	History *history.Store
	Events  *events.EventLog
}

// NewAPI creates the API. opts are applied to enqueued refs unless the
// request overrides them.
func NewAPI(deps APIDeps, opts download.TaskOptions) *API {
	return &API{
		queue:   deps.Queue,
		gate:    deps.Gate,
		abort:   deps.Abort,
		history: deps.History,
		events:  deps.Events,
		opts:    opts,
	}
}

// RegisterRoutes registers API routes on the given mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	// Queue
	mux.HandleFunc("GET /api/v1/queue", a.listQueue)
	mux.HandleFunc("POST /api/v1/queue", a.enqueue)
	mux.HandleFunc("GET /api/v1/queue/{id}", a.getItem)
	mux.HandleFunc("DELETE /api/v1/queue/{id}", a.removeItem)
	mux.HandleFunc("POST /api/v1/queue/clear", a.clearFinished)

	// Worker control
	mux.HandleFunc("POST /api/v1/pause", a.pause)
	mux.HandleFunc("POST /api/v1/resume", a.resume)
	mux.HandleFunc("POST /api/v1/abort", a.abortRun)

	// History
	mux.HandleFunc("GET /api/v1/history", a.listHistory)
	mux.HandleFunc("GET /api/v1/history/stats", a.historyStats)
	mux.HandleFunc("DELETE /api/v1/history/{id}", a.removeHistory)

	// Events
	mux.HandleFunc("GET /api/v1/events", a.listEvents)
	mux.HandleFunc("GET /api/v1/queue/{id}/events", a.itemEvents)

	// System
	mux.HandleFunc("GET /api/v1/status", a.status)
	mux.Handle("GET /metrics", metrics.Handler())
}

// Error response
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message, Code: errCode})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

// Queue

type itemResponse struct {
	ID         string     `json:"id"`
	Ref        string     `json:"ref"`
	Name       string     `json:"name,omitempty"`
	Quality    string     `json:"quality,omitempty"`
	Status     string     `json:"status"`
	Path       string     `json:"path,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Count      int        `json:"count,omitempty"`
	Error      string     `json:"error,omitempty"`
	QueuedAt   time.Time  `json:"queued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func itemToResponse(it queue.Item) itemResponse {
	return itemResponse{
		ID:         it.ID,
		Ref:        it.Task.Ref.String(),
		Name:       it.Task.Name,
		Quality:    string(it.Task.Quality),
		Status:     string(it.Status),
		Path:       it.Path,
		Reason:     string(it.Reason),
		Count:      it.Count,
		Error:      it.Error,
		QueuedAt:   it.QueuedAt,
		StartedAt:  optionalTime(it.StartedAt),
		FinishedAt: optionalTime(it.FinishedAt),
	}
}

type listQueueResponse struct {
	Items []itemResponse `json:"items"`
	Total int            `json:"total"`
}

func (a *API) listQueue(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("status")
	if filter != "" && !validStatus(filter) {
		writeError(w, http.StatusBadRequest, "INVALID_STATUS", "unknown status: "+filter)
		return
	}

	items := a.queue.List()
	resp := listQueueResponse{Items: make([]itemResponse, 0, len(items))}
	for _, it := range items {
		if filter != "" && string(it.Status) != filter {
			continue
		}
		resp.Items = append(resp.Items, itemToResponse(it))
	}
	resp.Total = len(resp.Items)
	writeJSON(w, http.StatusOK, resp)
}

func validStatus(s string) bool {
	for _, st := range queue.Statuses {
		if string(st) == s {
			return true
		}
	}
	return false
}

type enqueueRequest struct {
	Refs    []string `json:"refs"`
	Quality string   `json:"quality,omitempty"`
	Skip    string   `json:"skip,omitempty"`
	Delay   *bool    `json:"delay,omitempty"`
}

func (a *API) enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if len(req.Refs) == 0 {
		writeError(w, http.StatusBadRequest, "MISSING_REFS", "at least one ref is required")
		return
	}

	opts := a.opts
	if req.Quality != "" {
		opts.Quality = media.Quality(req.Quality)
	}
	if req.Skip != "" {
		p, err := download.ParseSkipPolicy(req.Skip)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_SKIP", err.Error())
			return
		}
		opts.Skip = p
	}
	if req.Delay != nil {
		opts.Delay = *req.Delay
	}

	// Parse everything before enqueueing anything.
	refs := make([]media.Ref, 0, len(req.Refs))
	for _, s := range req.Refs {
		ref, err := media.ParseRef(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REF", err.Error())
			return
		}
		refs = append(refs, ref)
	}

	resp := listQueueResponse{Items: make([]itemResponse, 0, len(refs))}
	for _, ref := range refs {
		it := a.queue.Enqueue(r.Context(), download.NewTask(ref, opts))
		resp.Items = append(resp.Items, itemToResponse(it))
	}
	resp.Total = len(resp.Items)
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) getItem(w http.ResponseWriter, r *http.Request) {
	it, err := a.queue.Get(r.PathValue("id"))
	if errors.Is(err, queue.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "item not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, itemToResponse(it))
}

func (a *API) removeItem(w http.ResponseWriter, r *http.Request) {
	err := a.queue.Remove(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "item not found")
	case errors.Is(err, queue.ErrInProgress):
		writeError(w, http.StatusConflict, "IN_PROGRESS", "item is downloading")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type clearResponse struct {
	Removed int `json:"removed"`
}

func (a *API) clearFinished(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, clearResponse{Removed: a.queue.ClearFinished()})
}

// Worker control

type controlResponse struct {
	Running bool `json:"running"`
	Abort   bool `json:"abort"`
}

func (a *API) controlState() controlResponse {
	return controlResponse{Running: a.gate.IsOpen(), Abort: a.abort.IsSet()}
}

func (a *API) pause(w http.ResponseWriter, _ *http.Request) {
	a.gate.Close()
	writeJSON(w, http.StatusOK, a.controlState())
}

func (a *API) resume(w http.ResponseWriter, _ *http.Request) {
	a.gate.Open()
	writeJSON(w, http.StatusOK, a.controlState())
}

func (a *API) abortRun(w http.ResponseWriter, _ *http.Request) {
	if a.abort == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "abort is not available")
		return
	}
	a.abort.Set()
	writeJSON(w, http.StatusAccepted, a.controlState())
}

// History

type historyResponse struct {
	TrackID      string  `json:"track_id"`
	SourceType   string  `json:"source_type"`
	SourceID     *string `json:"source_id"`
	SourceName   *string `json:"source_name"`
	DownloadDate string  `json:"download_date"`
}

type listHistoryResponse struct {
	Items []historyResponse `json:"items"`
	Total int               `json:"total"`
}

func (a *API) listHistory(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "history is not configured")
		return
	}

	var records []history.Record
	if q := r.URL.Query().Get("q"); q != "" {
		records = a.history.Search(q)
	} else {
		records = a.history.Records()
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		if limit < len(records) {
			records = records[:limit]
		}
	}

	resp := listHistoryResponse{Items: make([]historyResponse, 0, len(records))}
	for _, rec := range records {
		resp.Items = append(resp.Items, historyResponse{
			TrackID:      rec.TrackID,
			SourceType:   rec.SourceType,
			SourceID:     rec.SourceID,
			SourceName:   rec.SourceName,
			DownloadDate: rec.DownloadDate,
		})
	}
	resp.Total = len(resp.Items)
	writeJSON(w, http.StatusOK, resp)
}

type historyStatsResponse struct {
	Total             int            `json:"total"`
	BySourceType      map[string]int `json:"by_source_type"`
	Oldest            *time.Time     `json:"oldest,omitempty"`
	Newest            *time.Time     `json:"newest,omitempty"`
	PreventDuplicates bool           `json:"prevent_duplicates"`
}

func (a *API) historyStats(w http.ResponseWriter, _ *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "history is not configured")
		return
	}
	stats := a.history.Statistics()
	writeJSON(w, http.StatusOK, historyStatsResponse{
		Total:             stats.Total,
		BySourceType:      stats.BySourceType,
		Oldest:            optionalTime(stats.Oldest),
		Newest:            optionalTime(stats.Newest),
		PreventDuplicates: a.history.Settings().PreventDuplicates,
	})
}

func (a *API) removeHistory(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "history is not configured")
		return
	}
	removed, err := a.history.Remove(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "track not in history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Events

type eventResponse struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type listEventsResponse struct {
	Events []eventResponse `json:"events"`
	Total  int             `json:"total"`
}

func writeEvents(w http.ResponseWriter, raw []events.RawEvent) {
	resp := listEventsResponse{Events: make([]eventResponse, 0, len(raw))}
	for _, e := range raw {
		resp.Events = append(resp.Events, eventResponse{
			ID:         e.ID,
			Type:       e.EventType,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Payload:    json.RawMessage(e.Payload),
			OccurredAt: e.OccurredAt,
		})
	}
	resp.Total = len(resp.Events)
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	if a.events == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "event log is disabled")
		return
	}

	var (
		raw []events.RawEvent
		err error
	)
	if s := r.URL.Query().Get("since"); s != "" {
		d, perr := time.ParseDuration(s)
		if perr != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_SINCE", "since must be a positive duration")
			return
		}
		raw, err = a.events.Since(time.Now().Add(-d))
	} else {
		limit := defaultEventLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			limit, err = strconv.Atoi(s)
			if err != nil || limit < 1 {
				writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
				return
			}
		}
		raw, err = a.events.Recent(limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeEvents(w, raw)
}

func (a *API) itemEvents(w http.ResponseWriter, r *http.Request) {
	if a.events == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "event log is disabled")
		return
	}
	raw, err := a.events.ForEntity(events.EntityItem, r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeEvents(w, raw)
}

// System

type statusResponse struct {
	Status  string         `json:"status"`
	Running bool           `json:"running"`
	Abort   bool           `json:"abort"`
	Queue   map[string]int `json:"queue"`
	History *int           `json:"history,omitempty"`
	Events  bool           `json:"events"`
}

func (a *API) status(w http.ResponseWriter, _ *http.Request) {
	counts := make(map[string]int, len(queue.Statuses))
	for st, n := range a.queue.Counts() {
		counts[string(st)] = n
	}
	resp := statusResponse{
		Status:  "ok",
		Running: a.gate.IsOpen(),
		Abort:   a.abort.IsSet(),
		Queue:   counts,
		Events:  a.events != nil,
	}
	if a.history != nil {
		n := a.history.Statistics().Total
		resp.History = &n
	}
	writeJSON(w, http.StatusOK, resp)
}
