package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelpipe/sentinel/pkg/bus"
	"github.com/sentinelpipe/sentinel/pkg/dlq"
	"github.com/sentinelpipe/sentinel/pkg/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeNormalizer struct {
	evt model.Event
	err error
}

func (f fakeNormalizer) Normalize(raw map[string]any, source string) (model.Event, error) {
	return f.evt, f.err
}

type fakeBus struct {
	enqueueErr error
	enqueued   []model.Event
	stats      bus.Health
}

func (f *fakeBus) Enqueue(evt model.Event) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.enqueued = append(f.enqueued, evt)
	return nil
}

func (f *fakeBus) Stats() bus.Health { return f.stats }

type fakeDLQStore struct {
	entries map[int64]dlq.Entry
	deleted []int64
}

func (f *fakeDLQStore) Get(ctx context.Context, id int64) (dlq.Entry, error) {
	e, ok := f.entries[id]
	if !ok {
		return dlq.Entry{}, assert.AnError
	}
	return e, nil
}

func (f *fakeDLQStore) List(ctx context.Context, limit int) ([]dlq.Entry, error) {
	var out []dlq.Entry
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeDLQStore) Delete(ctx context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	delete(f.entries, id)
	return nil
}

func (f *fakeDLQStore) Depth(ctx context.Context) (int, error) {
	return len(f.entries), nil
}

func postJSON(t *testing.T, srv *Server, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSubmitFindingAccepted(t *testing.T) {
	evt := model.Event{EventID: "evt-1"}
	srv := New(fakeNormalizer{evt: evt}, &fakeBus{}, &fakeDLQStore{entries: map[int64]dlq.Entry{}}, nil)

	rec := postJSON(t, srv, "/v1/findings/guardduty", map[string]any{"id": "evt-1"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["accepted"])
	assert.Equal(t, "evt-1", resp["event_id"])
}

func TestSubmitFindingMalformedSourceReturns400(t *testing.T) {
	srv := New(fakeNormalizer{err: assert.AnError}, &fakeBus{}, &fakeDLQStore{entries: map[int64]dlq.Entry{}}, nil)

	rec := postJSON(t, srv, "/v1/findings/guardduty", map[string]any{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitFindingBackpressureReturns429WithRetryAfter(t *testing.T) {
	srv := New(fakeNormalizer{evt: model.Event{EventID: "evt-1"}}, &fakeBus{enqueueErr: bus.ErrBackpressure}, &fakeDLQStore{entries: map[int64]dlq.Entry{}}, nil)

	rec := postJSON(t, srv, "/v1/findings/guardduty", map[string]any{"id": "evt-1"})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestSubmitFindingDrainingReturns503(t *testing.T) {
	draining := true
	srv := New(fakeNormalizer{evt: model.Event{EventID: "evt-1"}}, &fakeBus{}, &fakeDLQStore{entries: map[int64]dlq.Entry{}}, &draining)

	rec := postJSON(t, srv, "/v1/findings/guardduty", map[string]any{"id": "evt-1"})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthzReportsBusAndDLQDepth(t *testing.T) {
	fb := &fakeBus{stats: bus.Health{TotalDepth: 3}}
	fd := &fakeDLQStore{entries: map[int64]dlq.Entry{1: {ID: 1}, 2: {ID: 2}}}
	srv := New(fakeNormalizer{}, fb, fd, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ready"])
	assert.Equal(t, float64(3), resp["bus_depth"])
	assert.Equal(t, float64(2), resp["dlq_depth"])
	assert.NotEmpty(t, resp["version"])
}

func TestRequestIDIsGeneratedWhenAbsent(t *testing.T) {
	srv := New(fakeNormalizer{}, &fakeBus{}, &fakeDLQStore{entries: map[int64]dlq.Entry{}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDReusesIncomingHeader(t *testing.T) {
	srv := New(fakeNormalizer{}, &fakeBus{}, &fakeDLQStore{entries: map[int64]dlq.Entry{}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "caller-supplied-id", rec.Header().Get("X-Request-ID"))
}

func TestReplayDLQReEnqueuesAndDeletes(t *testing.T) {
	fb := &fakeBus{}
	fd := &fakeDLQStore{entries: map[int64]dlq.Entry{7: {ID: 7, Event: model.Event{EventID: "evt-7"}}}}
	srv := New(fakeNormalizer{}, fb, fd, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/dlq/7/replay", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, fb.enqueued, 1)
	assert.Equal(t, "evt-7", fb.enqueued[0].EventID)
	assert.Contains(t, fd.deleted, int64(7))
}

func TestReplayDLQUnknownIDReturns404(t *testing.T) {
	srv := New(fakeNormalizer{}, &fakeBus{}, &fakeDLQStore{entries: map[int64]dlq.Entry{}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/dlq/99/replay", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
