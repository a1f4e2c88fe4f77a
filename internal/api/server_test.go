package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fossabot/gfw-data-api/internal/assets"
	"github.com/fossabot/gfw-data-api/internal/pipeline"
	"github.com/fossabot/gfw-data-api/internal/status"
)

type nopLauncher struct{ launched []assets.Request }

func (l *nopLauncher) Launch(_ context.Context, req assets.Request) error {
	l.launched = append(l.launched, req)
	return nil
}

type testServer struct {
	srv      *httptest.Server
	store    *status.MemoryStore
	agg      *status.Aggregator
	launcher *nopLauncher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := status.NewMemoryStore()
	agg := status.NewAggregator(store, nil)
	launcher := &nopLauncher{}
	svc := assets.NewService(store, agg, launcher, nil)
	srv := httptest.NewServer(NewServer(svc, agg, nil).Handler())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: store, agg: agg, launcher: launcher}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

const vectorBody = `{"source_type":"vector","source_uri":["s3://bucket/countries.shp.zip"],"is_default":true}`

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"ok"`, string(body["status"]))
}

func TestCreateAsset(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/datasets/countries/v2024/assets", vectorBody)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body["message"]))

	var asset status.Asset
	require.NoError(t, json.Unmarshal(body["data"], &asset))
	assert.Equal(t, "countries", asset.Dataset)
	assert.Equal(t, "/countries/v2024/features", asset.AssetURI)
	assert.Equal(t, status.Pending, asset.Status)

	require.Len(t, ts.launcher.launched, 1)
	assert.Equal(t, asset.AssetID, ts.launcher.launched[0].AssetID)

	resp, body = ts.do(t, http.MethodGet, "/assets/"+asset.AssetID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/datasets/countries/v2024", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/datasets/countries/v2024/assets", vectorBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateAsset_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"source_type":`},
		{"unknown field", `{"source_type":"table","source_uri":["s3://b/a.csv"],"extra":1}`},
		{"unknown source type", `{"source_type":"raster","source_uri":["s3://b/a.tif"]}`},
		{"no uris", `{"source_type":"table","source_uri":[]}`},
		{"server file", `{"source_type":"table","source_uri":["file:///etc/passwd"]}`},
		{"bad creation options", `{"source_type":"table","source_uri":["s3://b/a.csv"],"creation_options":{"latitude":"lat"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, http.MethodPost, "/datasets/ds/v1/assets", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.JSONEq(t, `"failed"`, string(body["status"]))
		})
	}
	assert.Empty(t, ts.launcher.launched)
}

func TestUpdateTask(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	resp, body := ts.do(t, http.MethodPost, "/datasets/ds/v1/assets", vectorBody)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var asset status.Asset
	require.NoError(t, json.Unmarshal(body["data"], &asset))

	_, err := ts.agg.OnEvent(ctx, asset.AssetID, pipeline.Event{
		TaskID: "job-1", JobName: "import_vector_data", Status: pipeline.StatusPending, Message: "Scheduled job import_vector_data",
	})
	require.NoError(t, err)

	update := `{"change_log":[
		{"date_time":"2024-01-01T00:00:02Z","status":"success","message":"Loaded data"},
		{"date_time":"2024-01-01T00:00:01Z","status":"pending","message":"Loading data"}
	]}`
	resp, body = ts.do(t, http.MethodPatch, "/tasks/job-1", update)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body["message"]))

	var task status.Task
	require.NoError(t, json.Unmarshal(body["data"], &task))
	assert.Equal(t, pipeline.StatusSuccess, task.Status)
	require.Len(t, task.ChangeLog, 3)
	assert.Equal(t, "Loading data", task.ChangeLog[1].Message)
	assert.Equal(t, "Loaded data", task.ChangeLog[2].Message)

	resp, body = ts.do(t, http.MethodGet, "/assets/"+asset.AssetID+"/tasks", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tasks []status.Task
	require.NoError(t, json.Unmarshal(body["data"], &tasks))
	assert.Len(t, tasks, 1)

	stored, err := ts.store.GetAsset(ctx, asset.AssetID)
	require.NoError(t, err)
	assert.Equal(t, status.Saved, stored.Status)
}

func TestUpdateTask_Errors(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodPatch, "/tasks/missing",
		`{"change_log":[{"date_time":"2024-01-01T00:00:00Z","status":"success","message":"done"}]}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPatch, "/tasks/missing", `{"change_log":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := ts.do(t, http.MethodPost, "/datasets/ds/v1/assets", vectorBody)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var asset status.Asset
	require.NoError(t, json.Unmarshal(body["data"], &asset))
	_, err := ts.agg.OnEvent(context.Background(), asset.AssetID, pipeline.Event{TaskID: "job-1", Status: pipeline.StatusPending, Message: "Scheduled job a"})
	require.NoError(t, err)

	resp, _ = ts.do(t, http.MethodPatch, "/tasks/job-1",
		`{"change_log":[{"date_time":"2024-01-01T00:00:00Z","status":"saved","message":"wrong vocabulary"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
