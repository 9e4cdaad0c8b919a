package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordItem(t *testing.T) {
	before := testutil.ToFloat64(itemsTotal.WithLabelValues("finished"))
	RecordItem("finished")
	assert.InDelta(t, before+1, testutil.ToFloat64(itemsTotal.WithLabelValues("finished")), 0.001)
}

func TestRecordSegmentFailure(t *testing.T) {
	before := testutil.ToFloat64(segmentFailures.WithLabelValues("last"))
	RecordSegmentFailure(true)
	assert.InDelta(t, before+1, testutil.ToFloat64(segmentFailures.WithLabelValues("last")), 0.001)
}

func TestSetQueueItems(t *testing.T) {
	SetQueueItems(map[string]int{"waiting": 3, "downloading": 1})
	assert.InDelta(t, 3, testutil.ToFloat64(queueItems.WithLabelValues("waiting")), 0.001)

	SetQueueItems(map[string]int{"finished": 2})
	assert.Equal(t, 1, testutil.CollectAndCount(queueItems), "stale statuses are dropped")
}

func TestHandler(t *testing.T) {
	RecordHistoryWrite(true, 7)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "streamgrab_history_entries 7")
}

func TestRecordEventDropped(t *testing.T) {
	before := testutil.ToFloat64(eventsDropped.WithLabelValues("item.progressed"))
	RecordEventDropped("item.progressed")
	assert.InDelta(t, before+1, testutil.ToFloat64(eventsDropped.WithLabelValues("item.progressed")), 0.001)
}
