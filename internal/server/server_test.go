package server_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attrib-app/attrib/internal/model"
	"github.com/attrib-app/attrib/internal/server"
	"github.com/attrib-app/attrib/internal/store"
	"github.com/attrib-app/attrib/internal/testutil"
)

// scenarioA is the three-row upload: A converts alone, then B, B converts.
const scenarioA = "channel,conversion\nA,1\nB,0\nB,1\n"

type client struct {
	t       *testing.T
	srv     *server.Server
	cookies []*http.Cookie
	logs    *testutil.Logs
}

func setupTestServer(t *testing.T) (*client, *store.SQLiteStore) {
	t.Helper()

	s := testutil.SetupTestStore(t)
	logger, logs := testutil.NewRecordingLogger(t)
	srv, err := server.New(server.Config{
		Store:          s,
		Port:           0,
		SessionSecret:  "test-secret-key-32-bytes-long!!",
		MaxUploadBytes: 1 << 20,
		UploadTTL:      time.Hour,
		ShapleySeed:    42,
		ShapleyWorkers: 2,
		Logger:         logger,
	})
	require.NoError(t, err)

	return &client{t: t, srv: srv, logs: logs}, s
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	c.srv.Handler().ServeHTTP(w, req)
	if set := w.Result().Cookies(); len(set) > 0 {
		c.cookies = set
	}
	return w
}

func (c *client) upload(name, body string) *httptest.ResponseRecorder {
	c.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(c.t, err)
	_, err = fw.Write([]byte(body))
	require.NoError(c.t, err)
	require.NoError(c.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func (c *client) post(path string, signals any) *httptest.ResponseRecorder {
	c.t.Helper()

	body, err := json.Marshal(signals)
	require.NoError(c.t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	c.t.Helper()
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func TestIndex_NoUpload(t *testing.T) {
	// scenario B: only the selector and uploader, no result
	c, _ := setupTestServer(t)

	w := c.get("/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	body := w.Body.String()
	for _, want := range []string{
		"<title>Marketing Attribution Models - Attribution</title>",
		"Choose an Attribution Model",
		`name="file"`,
		"Upload a CSV file to get started.",
		"Based on cooperative game theory",
	} {
		assert.Contains(t, body, want)
	}
	assert.NotContains(t, body, "<iframe")
	assert.NotContains(t, body, "Download Results as CSV")
}

func TestRun_NoUpload(t *testing.T) {
	c, _ := setupTestServer(t)

	w := c.post("/run", model.DefaultSignals())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Upload a CSV file to get started.")
	assert.NotContains(t, w.Body.String(), "Download Results as CSV")
}

func TestUpload_ThenIndexShowsResult(t *testing.T) {
	c, s := setupTestServer(t)

	w := c.upload("journeys.csv", scenarioA)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	require.NotEmpty(t, c.cookies, "expected a session cookie")

	assert.True(t, c.logs.Contains("upload cached", "filename=journeys.csv"))

	body := c.get("/").Body.String()
	assert.Contains(t, body, "journeys.csv")
	assert.Contains(t, body, "Heuristic Model Results")
	assert.Contains(t, body, "<iframe")

	w = c.get("/health")
	assert.Equal(t, http.StatusOK, w.Code)
	var health server.HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.UploadsCached)

	// a second upload replaces the first in the cache
	c.upload("again.csv", scenarioA)
	n, err := s.CountUploads(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_HeuristicLastTouch(t *testing.T) {
	// scenario A
	c, _ := setupTestServer(t)
	c.upload("journeys.csv", scenarioA)

	w := c.post("/run", model.DefaultSignals())
	assert.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "Heuristic Model Results")
	assert.Contains(t, body, `<tr><td class="label">A</td><td class="num">1.0000</td></tr>`)
	assert.Contains(t, body, `<tr><td class="label">B</td><td class="num">1.0000</td></tr>`)
	assert.Contains(t, body, "Download Results as CSV")
	assert.Contains(t, body, "Channel Reach")
}

func TestRun_SwitchModelResetsParams(t *testing.T) {
	// scenario C
	c, _ := setupTestServer(t)
	c.upload("journeys.csv", scenarioA)

	sig := model.DefaultSignals()
	sig.Model = "Markov"
	sig.Order = 4

	w := c.post("/run", sig)
	body := w.Body.String()
	assert.Contains(t, body, "datastar-patch-signals")
	assert.Contains(t, body, `"order":1`)
	assert.Contains(t, body, `"lastModel":"Markov"`)
	assert.Contains(t, body, "Output Type")
	assert.Contains(t, body, "Markov Model Results")
	assert.NotContains(t, body, "Choose a Heuristic Model")
}

func TestUpload_KeepsWidgetState(t *testing.T) {
	c, _ := setupTestServer(t)
	c.upload("journeys.csv", scenarioA)

	sig := model.DefaultSignals()
	sig.Model = "Markov"
	sig.LastModel = "Markov"
	sig.Output = "attribution"
	c.post("/run", sig)

	c.upload("again.csv", scenarioA)
	body := c.get("/").Body.String()
	assert.Contains(t, body, "again.csv")
	assert.Contains(t, body, "Markov Model Results")
	assert.Contains(t, body, "markov_attribution")
	assert.NotContains(t, body, "Heuristic Model Results")
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		edit func(*model.Signals)
		want string
	}{
		{
			name: "missing column",
			edit: func(s *model.Signals) { s.ChannelCol = "source" },
			want: "Check the column names",
		},
		{
			name: "order out of range",
			edit: func(s *model.Signals) { s.Model, s.LastModel, s.Order = "Markov", "Markov", 6 },
			want: "Invalid parameters",
		},
		{
			name: "simulations out of range",
			edit: func(s *model.Signals) { s.Model, s.LastModel, s.Simulations = "Shapley", "Shapley", 500 },
			want: "Invalid parameters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := setupTestServer(t)
			c.upload("journeys.csv", scenarioA)

			sig := model.DefaultSignals()
			tt.edit(&sig)

			w := c.post("/run", sig)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
			assert.NotContains(t, w.Body.String(), "<iframe")
		})
	}
}

func TestRun_ComputationErrorKeepsSession(t *testing.T) {
	c, _ := setupTestServer(t)
	c.upload("journeys.csv", "channel,conversion\nA,maybe\n")

	w := c.post("/run", model.DefaultSignals())
	assert.Contains(t, w.Body.String(), "The model could not be computed")

	// the session still works afterwards
	c.upload("journeys.csv", scenarioA)
	w = c.post("/run", model.DefaultSignals())
	assert.Contains(t, w.Body.String(), "Heuristic Model Results")
}

func TestExport(t *testing.T) {
	c, _ := setupTestServer(t)
	c.upload("journeys.csv", scenarioA)

	w := c.post("/export", model.DefaultSignals())
	assert.Equal(t, http.StatusOK, w.Code)

	want := "channel,last_touch\nA,1\nB,1\n"
	href := "data:text/csv;base64," + base64.StdEncoding.EncodeToString([]byte(want))
	// html/template escapes '+' inside attribute values
	href = strings.ReplaceAll(href, "+", "&#43;")
	assert.Contains(t, w.Body.String(), `download="results.csv"`)
	assert.Contains(t, w.Body.String(), href)
}

func TestExport_NoUpload(t *testing.T) {
	c, _ := setupTestServer(t)

	w := c.post("/export", model.DefaultSignals())
	assert.Contains(t, w.Body.String(), `id="download"`)
	assert.Contains(t, w.Body.String(), "Upload a CSV file to get started.")
	assert.NotContains(t, w.Body.String(), "data:text/csv")
}

func TestExportCSV(t *testing.T) {
	c, _ := setupTestServer(t)
	c.upload("journeys.csv", scenarioA)

	w := c.get("/export.csv")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "results.csv")
	assert.Equal(t, "channel,last_touch\nA,1\nB,1\n", w.Body.String())

	sig := model.DefaultSignals()
	sig.Rule = "first_touch"
	raw, err := json.Marshal(sig)
	require.NoError(t, err)

	w = c.get("/export.csv?" + url.Values{"datastar": {string(raw)}}.Encode())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "channel,first_touch\n"))
}

func TestExportCSV_ResetsParamsOnModelSwitch(t *testing.T) {
	c, _ := setupTestServer(t)
	c.upload("journeys.csv", scenarioA)

	// the model changed since the last run, so order 3 gives way to the default
	sig := model.DefaultSignals()
	sig.Model = "Markov"
	sig.Order = 3
	raw, err := json.Marshal(sig)
	require.NoError(t, err)

	w := c.get("/export.csv?" + url.Values{"datastar": {string(raw)}}.Encode())
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "from,"))
	assert.NotContains(t, w.Body.String(), "B > B")

	want := model.DefaultSignals()
	want.Model = "Markov"
	want.LastModel = "Markov"
	w2 := c.get("/export.csv?" + url.Values{"datastar": {string(mustJSON(t, want))}}.Encode())
	assert.Equal(t, w2.Body.String(), w.Body.String())
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestExportCSV_Errors(t *testing.T) {
	c, _ := setupTestServer(t)

	w := c.get("/export.csv")
	assert.Equal(t, http.StatusConflict, w.Code)

	c.upload("journeys.csv", scenarioA)
	sig := model.DefaultSignals()
	sig.ConversionCol = "converted"
	raw, err := json.Marshal(sig)
	require.NoError(t, err)

	w = c.get("/export.csv?" + url.Values{"datastar": {string(raw)}}.Encode())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "converted")
}

func TestUpload_Rejected(t *testing.T) {
	c, _ := setupTestServer(t)

	w := c.upload("bad.csv", "a,b\n1,2,3\n")
	assert.Equal(t, http.StatusSeeOther, w.Code)

	body := c.get("/").Body.String()
	assert.Contains(t, body, "Could not read bad.csv as CSV")
	assert.Contains(t, body, "Upload a CSV file to get started.")

	// the flash is shown once
	assert.NotContains(t, c.get("/").Body.String(), "Could not read bad.csv")
}

func TestUpload_TooLarge(t *testing.T) {
	c, _ := setupTestServer(t)

	big := "channel,conversion\n" + strings.Repeat("A,0\n", 300000)
	c.upload("big.csv", big)

	body := c.get("/").Body.String()
	assert.Contains(t, body, "The file is too large")
}

func TestFeedback_NegativeFlow(t *testing.T) {
	// scenario D
	c, _ := setupTestServer(t)

	w := c.post("/feedback/down", map[string]string{})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Submit Feedback")
	assert.Contains(t, w.Body.String(), "<textarea")

	w = c.post("/feedback/submit", map[string]string{"feedbackText": "Add a U-shaped model"})
	body := w.Body.String()
	assert.Contains(t, body, "Thank you for your feedback!")
	assert.NotContains(t, body, "Submit Feedback")
	assert.Contains(t, body, `"feedbackText":""`)
	// no computation happens on the feedback path
	assert.NotContains(t, body, "Model Results")

	// the acknowledgement survives a reload
	assert.Contains(t, c.get("/").Body.String(), "Thank you for your feedback!")
}

func TestFeedback_Positive(t *testing.T) {
	c, _ := setupTestServer(t)

	w := c.post("/feedback/up", map[string]string{})
	assert.Contains(t, w.Body.String(), "Thank you for your positive feedback!")
	assert.NotContains(t, w.Body.String(), "<textarea")
}

func TestFeedback_InvalidTransitionRendersInline(t *testing.T) {
	c, _ := setupTestServer(t)

	w := c.post("/feedback/submit", map[string]string{"feedbackText": "hi"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "That action is not available right now.")
	assert.NotContains(t, w.Body.String(), "Thank you")

	w = c.post("/feedback/sideways", map[string]string{})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "That action is not available right now.")
}
