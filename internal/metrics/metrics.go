// Package metrics exposes Prometheus instrumentation for the download engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgrab",
		Name:      "items_total",
		Help:      "Queue items reaching a terminal state by status",
	}, []string{"status"}) // status=finished|failed|skipped

	bytesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamgrab",
		Name:      "downloaded_bytes_total",
		Help:      "Bytes written to temp files by the segment downloader",
	})

	segmentFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgrab",
		Name:      "segment_failures_total",
		Help:      "Segment HTTP failures by position in the segment list",
	}, []string{"position"}) // position=last|inner

	sessionSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgrab",
		Name:      "session_switches_total",
		Help:      "Credential profile switches by target mode and outcome",
	}, []string{"mode", "outcome"})

	historyWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgrab",
		Name:      "history_writes_total",
		Help:      "History file writes by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	historyEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamgrab",
		Name:      "history_entries",
		Help:      "Entries in the download history after the last write",
	})

	historyResets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamgrab",
		Name:      "history_corruption_resets_total",
		Help:      "History files backed up and reset after failing to load",
	})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgrab",
		Name:      "events_dropped_total",
		Help:      "Events not delivered to a full subscriber, by event type",
	}, []string{"type"})

	eventPersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamgrab",
		Name:      "event_persist_failures_total",
		Help:      "Events that could not be written to the event log",
	})

	queueItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamgrab",
		Name:      "queue_items",
		Help:      "Queue items by status",
	}, []string{"status"})
)

// RecordItem counts an item reaching a terminal status.
func RecordItem(status string) {
	itemsTotal.WithLabelValues(status).Inc()
}

// AddDownloadedBytes adds n to the downloaded byte counter.
func AddDownloadedBytes(n int) {
	bytesDownloaded.Add(float64(n))
}

// RecordSegmentFailure counts a failed segment fetch.
func RecordSegmentFailure(last bool) {
	position := "inner"
	if last {
		position = "last"
	}
	segmentFailures.WithLabelValues(position).Inc()
}

// RecordSessionSwitch counts a credential profile switch.
func RecordSessionSwitch(mode string, ok bool) {
	sessionSwitches.WithLabelValues(mode, outcome(ok)).Inc()
}

// RecordHistoryWrite counts a history write and tracks the entry count.
func RecordHistoryWrite(ok bool, entries int) {
	historyWrites.WithLabelValues(outcome(ok)).Inc()
	if ok {
		historyEntries.Set(float64(entries))
	}
}

// RecordHistoryReset counts a corrupted history file being reset.
func RecordHistoryReset() {
	historyResets.Inc()
}

// RecordEventDropped counts an event a subscriber missed.
func RecordEventDropped(eventType string) {
	eventsDropped.WithLabelValues(eventType).Inc()
}

// RecordEventPersistFailure counts a failed event log append.
func RecordEventPersistFailure() {
	eventPersistFailures.Inc()
}

// SetQueueItems publishes the number of queue items per status.
func SetQueueItems(counts map[string]int) {
	queueItems.Reset()
	for status, n := range counts {
		queueItems.WithLabelValues(status).Set(float64(n))
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
