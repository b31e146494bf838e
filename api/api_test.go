package api

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

	"github.com/ilovepumpkin/dsa-historian/internal/bus"
	"github.com/ilovepumpkin/dsa-historian/internal/database"
	"github.com/ilovepumpkin/dsa-historian/internal/provider"
	"github.com/ilovepumpkin/dsa-historian/internal/value"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeBus struct{}

func (fakeBus) Subscribe(path string, h bus.Handler) error { return nil }
func (fakeBus) Unsubscribe(path string) error              { return nil }
func (fakeBus) Connected() bool                            { return true }

type fakeDB struct {
	rows []database.Row
}

func (d *fakeDB) Write(ctx context.Context, path string, v value.Value, timeMillis int64) error {
	d.rows = append(d.rows, database.Row{Value: v.WithTimestamp(timeMillis)})
	return nil
}

func (d *fakeDB) Query(ctx context.Context, path string, from, to int64, h database.RowHandler) error {
	for _, r := range d.rows {
		if err := h(r); err != nil {
			return err
		}
	}
	return nil
}

func (d *fakeDB) Close() error { return nil }

func newTestServer(t *testing.T) (*Server, *provider.Provider) {
	t.Helper()
	p := provider.New(fakeBus{}, func(groupID string) (database.Database, error) {
		return &fakeDB{}, nil
	})
	return New(p), p
}

func doRequest(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestCreateGroupReturns201AndView(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/groups", createGroupRequest{ID: "line1"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "line1", body["id"])
	assert.Equal(t, "ALL_DATA", body["loggingType"])
}

func TestCreateGroupDuplicateReturns409(t *testing.T) {
	s, _ := newTestServer(t)
	doRequest(s, http.MethodPost, "/groups", createGroupRequest{ID: "line1"})

	rec := doRequest(s, http.MethodPost, "/groups", createGroupRequest{ID: "line1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateGroupMissingIDReturns400(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/groups", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListGroupsReturnsEveryGroup(t *testing.T) {
	s, _ := newTestServer(t)
	doRequest(s, http.MethodPost, "/groups", createGroupRequest{ID: "a"})
	doRequest(s, http.MethodPost, "/groups", createGroupRequest{ID: "b"})

	rec := doRequest(s, http.MethodGet, "/groups", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, 2)
}

func TestEditGroupSettingsAppliesPartialUpdate(t *testing.T) {
	s, _ := newTestServer(t)
	doRequest(s, http.MethodPost, "/groups", createGroupRequest{ID: "line1"})

	rec := doRequest(s, http.MethodPatch, "/groups/line1", map[string]any{"loggingType": "INTERVAL", "intervalSeconds": 10})
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INTERVAL", body["loggingType"])
	assert.Equal(t, float64(10), body["intervalSeconds"])
	assert.Equal(t, float64(5), body["bufferFlushSeconds"], "fields not present in the request must be left untouched")
}

func TestEditGroupSettingsUnknownGroupReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodPatch, "/groups/missing", map[string]any{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteGroupReturns204(t *testing.T) {
	s, _ := newTestServer(t)
	doRequest(s, http.MethodPost, "/groups", createGroupRequest{ID: "line1"})

	rec := doRequest(s, http.MethodDelete, "/groups/line1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(s, http.MethodDelete, "/groups/line1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddWatchReturns201(t *testing.T) {
	s, _ := newTestServer(t)
	doRequest(s, http.MethodPost, "/groups", createGroupRequest{ID: "line1"})

	rec := doRequest(s, http.MethodPost, "/groups/line1/watches", addWatchRequest{Path: "sensor1"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "sensor1", body["path"])
	assert.Equal(t, true, body["enabled"])
}

func TestAddWatchUnknownGroupReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/groups/missing/watches", addWatchRequest{Path: "sensor1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func addTestWatch(t *testing.T, s *Server, p *provider.Provider, groupID, path string) string {
	t.Helper()
	w, err := p.AddWatch(groupID, path)
	require.NoError(t, err)
	return w.ID.String()
}

func TestGetWatchReturnsView(t *testing.T) {
	s, p := newTestServer(t)
	doRequest(s, http.MethodPost, "/groups", createGroupRequest{ID: "line1"})
	watchID := addTestWatch(t, s, p, "line1", "sensor1")

	rec := doRequest(s, http.MethodGet, "/groups/line1/watches/"+watchID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, watchID, body["id"])
}

func TestGetWatchUnknownWatchReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	doRequest(s, http.MethodPost, "/groups", createGroupRequest{ID: "line1"})

	rec := doRequest(s, http.MethodGet, "/groups/line1/watches/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetWatchEnabledTogglesState(t *testing.T) {
	s, p := newTestServer(t)
	doRequest(s, http.MethodPost, "/groups", createGroupRequest{ID: "line1"})
	watchID := addTestWatch(t, s, p, "line1", "sensor1")

	rec := doRequest(s, http.MethodPatch, "/groups/line1/watches/"+watchID, setWatchEnabledRequest{Enabled: false})
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["enabled"])
}

func TestDeleteWatchReturns204(t *testing.T) {
	s, p := newTestServer(t)
	doRequest(s, http.MethodPost, "/groups", createGroupRequest{ID: "line1"})
	watchID := addTestWatch(t, s, p, "line1", "sensor1")

	rec := doRequest(s, http.MethodDelete, "/groups/line1/watches/"+watchID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGetWatchHistoryStreamsRows(t *testing.T) {
	s, p := newTestServer(t)
	doRequest(s, http.MethodPost, "/groups", createGroupRequest{ID: "line1"})
	watchID := addTestWatch(t, s, p, "line1", "sensor1")
	// Disable buffering so the write lands directly instead of sitting
	// in the queue until the next flush tick.
	doRequest(s, http.MethodPatch, "/groups/line1", map[string]any{"bufferFlushSeconds": 0})

	g, ok := p.Group("line1")
	require.True(t, ok)
	w, ok := g.FindWatch(watchID)
	require.True(t, ok)
	g.Write(w, value.SubscriptionUpdate{Path: "sensor1", Value: value.NewNumber(42, 100)})

	rec := doRequest(s, http.MethodGet, "/groups/line1/watches/"+watchID+"/history", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, float64(42), rows[0]["value"])
}

func TestGetWatchHistoryInvalidFromReturns400(t *testing.T) {
	s, p := newTestServer(t)
	doRequest(s, http.MethodPost, "/groups", createGroupRequest{ID: "line1"})
	watchID := addTestWatch(t, s, p, "line1", "sensor1")

	rec := doRequest(s, http.MethodGet, "/groups/line1/watches/"+watchID+"/history?from=not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRestoreGetHistoryReturns204(t *testing.T) {
	s, p := newTestServer(t)
	doRequest(s, http.MethodPost, "/groups", createGroupRequest{ID: "line1"})
	addTestWatch(t, s, p, "line1", "sensor1")

	rec := doRequest(s, http.MethodPost, "/groups/line1/restore-get-history", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	groupID, ok := p.ResolveGroupForPath("sensor1")
	require.True(t, ok)
	assert.Equal(t, "line1", groupID)
}
