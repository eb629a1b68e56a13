package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"sprintboard/internal/config"
	"sprintboard/internal/dashboard"
	"sprintboard/internal/dataset"
	"sprintboard/internal/events"
	"sprintboard/internal/metrics"
	"sprintboard/internal/pipeline"
)

type fixedSnapshot struct{ snap *dataset.Snapshot }

func (f fixedSnapshot) Current() *dataset.Snapshot { return f.snap }

func testConfig() config.Config {
	overview := dashboard.Overview()
	status := dashboard.ViewSpec{Name: "status", Panels: []dashboard.Panel{dashboard.PanelStatusShare}}
	return config.Config{
		Dashboard: config.DashboardConfig{
			PlaceholderLabel:  overview.PlaceholderLabel,
			PadSingleCategory: true,
			Views:             map[string]dashboard.ViewSpec{overview.Name: overview, status.Name: status},
		},
	}
}

func testSnapshot() *dataset.Snapshot {
	return dataset.RestoreSnapshot("snap-1", "test.csv", []dataset.Record{
		{ProjectName: "A", SprintName: "S1", SprintID: "1", StoryKey: "A-1", StoryType: "Bug", Status: "done", ParentID: "E-1"},
		{ProjectName: "A", SprintName: "S2", SprintID: "2", StoryKey: "A-2", StoryType: "Story", Status: "not done"},
		{ProjectName: "B", SprintName: "S3", SprintID: "3", StoryKey: "B-1", StoryType: "Story", Status: "done", ParentID: "E-1"},
	}, time.Now())
}

func setupTest(t *testing.T, snap *dataset.Snapshot) (http.Handler, *events.Bus, *metrics.Metrics) {
	t.Helper()
	bus := events.NewBus()
	m := metrics.New()
	router := NewRouter(testConfig(), fixedSnapshot{snap: snap}, bus, m, nil, nil)
	return router.Handler(), bus, m
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestViewEndpoint(t *testing.T) {
	h, _, m := setupTest(t, testSnapshot())
	rr := get(t, h, "/api/view?project=A")
	require.Equal(t, http.StatusOK, rr.Code)

	var view dashboard.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, dashboard.StateOK, view.State)
	assert.Equal(t, "snap-1", view.SnapshotID)
	assert.Equal(t, "A", view.Selection[pipeline.DimProject])
	assert.Equal(t, 2, view.KPIs.StoryCount.Value)
	assert.Equal(t, "sprintName", view.Tables[dashboard.PanelStatusBar].Columns[0])
	assert.Equal(t, int64(1), m.Snapshot()["views_served"])
}

func TestViewEndpointAllMeansUnfiltered(t *testing.T) {
	h, _, _ := setupTest(t, testSnapshot())
	rr := get(t, h, "/api/view?project=All&view=overview")
	require.Equal(t, http.StatusOK, rr.Code)
	var view dashboard.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, 3, view.KPIs.StoryCount.Value)
	assert.Empty(t, view.Selection)
}

func TestViewEndpointInvalidFilterReturnsPlaceholder(t *testing.T) {
	h, _, m := setupTest(t, testSnapshot())
	rr := get(t, h, "/api/view?project=B&sprint=S1")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var view dashboard.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, dashboard.StateInvalidFilter, view.State)
	assert.Empty(t, view.Tables)
	assert.Equal(t, int64(1), m.Snapshot()["views_failed"])
}

func TestViewEndpointNamedView(t *testing.T) {
	h, _, _ := setupTest(t, testSnapshot())
	rr := get(t, h, "/api/view?view=status")
	require.Equal(t, http.StatusOK, rr.Code)
	var view dashboard.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Nil(t, view.KPIs)
	assert.Len(t, view.Tables, 1)

	rr = get(t, h, "/api/view?view=gantt")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestViewEndpointWithoutSnapshot(t *testing.T) {
	h, _, _ := setupTest(t, nil)
	rr := get(t, h, "/api/view")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), dashboard.StateUnavailable)

	rr = get(t, h, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestOptionsEndpoint(t *testing.T) {
	h, _, _ := setupTest(t, testSnapshot())
	rr := get(t, h, "/api/options?project=A")
	require.Equal(t, http.StatusOK, rr.Code)

	var opts []pipeline.DimensionOptions
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &opts))
	require.Len(t, opts, 3)
	assert.Equal(t, []string{pipeline.All, "S1", "S2"}, opts[1].Values)

	rr = get(t, h, "/api/options?project=Z")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var body OptionsError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, dashboard.StateInvalidFilter, body.State)
	assert.Equal(t, "Z", body.Selection[pipeline.DimProject])
	assert.NotEmpty(t, body.Message)
}

func TestOptionsEndpointWithoutSnapshot(t *testing.T) {
	h, _, _ := setupTest(t, nil)
	rr := get(t, h, "/api/options")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body OptionsError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, dashboard.StateUnavailable, body.State)
}

func TestRespondJSONLogsToRouterLogger(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	router := NewRouter(testConfig(), fixedSnapshot{}, nil, nil, nil, zap.New(core))

	rr := httptest.NewRecorder()
	router.respondJSON(rr, http.StatusOK, make(chan int))
	require.Equal(t, 1, logs.FilterMessage("write json").Len())
}

func TestViewsAndStatusEndpoints(t *testing.T) {
	h, _, _ := setupTest(t, testSnapshot())
	rr := get(t, h, "/api/views")
	require.Equal(t, http.StatusOK, rr.Code)
	var views []dashboard.ViewSpec
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "overview", views[0].Name)

	rr = get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"rows":3`)
}

func TestHealthEndpoint(t *testing.T) {
	h, _, _ := setupTest(t, testSnapshot())
	rr := get(t, h, "/api/health")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestStreamPushesReloadEvents(t *testing.T) {
	h, bus, _ := setupTest(t, testSnapshot())
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	bus.Publish(events.Event{Kind: events.KindSnapshotReloaded, SnapshotID: "snap-2", Rows: 7, At: time.Now()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.KindSnapshotReloaded, ev.Kind)
	assert.Equal(t, "snap-2", ev.SnapshotID)
}
