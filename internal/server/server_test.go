package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ajramos/keycheck/internal/agent"
	"github.com/ajramos/keycheck/internal/config"
	"github.com/ajramos/keycheck/internal/db"
	"github.com/ajramos/keycheck/internal/report"
	"github.com/ajramos/keycheck/internal/services"
	"github.com/ajramos/keycheck/internal/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRunService is a testify mock for services.RunService
type MockRunService struct {
	mock.Mock
}

func (m *MockRunService) Run(ctx context.Context, cfg *config.Config, f verify.Filter) (*services.RunOutcome, error) {
	args := m.Called(ctx, cfg, f)
	out, _ := args.Get(0).(*services.RunOutcome)
	return out, args.Error(1)
}

// newTestServer wires the real services over a temporary history database
// and the bundled replay recording
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "history.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	runs := db.NewRunStore(store)

	s := &Server{
		Config:  config.NewManager(),
		Runs:    services.NewRunService(runs, agent.Deps{}, nil),
		History: services.NewHistoryService(runs),
	}
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, body
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func TestHealthAndIndex(t *testing.T) {
	ts := newTestServer(t)

	res, body := do(t, http.MethodGet, ts.URL+"/api/health")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, true, decode[map[string]any](t, body)["ok"])

	res, body = do(t, http.MethodGet, ts.URL+"/")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "Slashy Mail shortcut runner")
	assert.Contains(t, string(body), "28 shortcuts")

	res, _ = do(t, http.MethodGet, ts.URL+"/nothing-here")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

type catalogResponse struct {
	Application string        `json:"application"`
	Count       int           `json:"count"`
	Items       []catalogItem `json:"items"`
}

func TestCatalog(t *testing.T) {
	ts := newTestServer(t)
	res, body := do(t, http.MethodGet, ts.URL+"/api/catalog")
	require.Equal(t, http.StatusOK, res.StatusCode)

	got := decode[catalogResponse](t, body)
	assert.Equal(t, "Slashy Mail", got.Application)
	assert.Equal(t, 28, got.Count)
	require.Len(t, got.Items, 28)
	assert.Equal(t, "c@any", got.Items[0].ID)
	assert.Equal(t, "Compose", got.Items[0].Category)
}

func TestRunAndHistory(t *testing.T) {
	ts := newTestServer(t)

	res, body := do(t, http.MethodGet, ts.URL+"/api/runs/latest")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, string(body), "no runs")

	res, body = do(t, http.MethodPost, ts.URL+"/api/run")
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	first := decode[runResponse](t, body)
	assert.NotEmpty(t, first.RunID)
	assert.Nil(t, first.Delta)
	assert.Equal(t, 28, first.Report.TotalCount)
	assert.Equal(t, 19, first.Report.PassCount)
	assert.Equal(t, 7, first.Report.FailCount)
	assert.Len(t, first.Report.Failures, 7)

	res, body = do(t, http.MethodPost, ts.URL+"/api/run?context=Message")
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	second := decode[runResponse](t, body)
	assert.Equal(t, 2, second.Report.TotalCount)
	require.NotNil(t, second.Delta)
	assert.Len(t, second.Delta.Removed, 26)

	res, body = do(t, http.MethodGet, ts.URL+"/api/runs?limit=500")
	require.Equal(t, http.StatusOK, res.StatusCode)
	list := decode[struct {
		Items []db.RunSummary `json:"items"`
		Limit int             `json:"limit"`
	}](t, body)
	assert.Equal(t, 200, list.Limit)
	require.Len(t, list.Items, 2)
	assert.Equal(t, second.RunID, list.Items[0].ID)

	res, body = do(t, http.MethodGet, ts.URL+"/api/runs/"+first.RunID)
	require.Equal(t, http.StatusOK, res.StatusCode)
	doc := decode[report.Document](t, body)
	assert.Equal(t, first.RunID, doc.Metadata.RunID)
	assert.Equal(t, 19, doc.PassCount)

	res, body = do(t, http.MethodGet, ts.URL+"/api/runs/latest")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 2, decode[report.Document](t, body).TotalCount)

	res, body = do(t, http.MethodGet, ts.URL+"/api/runs/compare?prev="+second.RunID+"&next="+first.RunID)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, decode[report.Delta](t, body).Added, 26)

	res, body = do(t, http.MethodGet, ts.URL+"/api/runs/"+first.RunID+"/report?format=md")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/markdown")
	assert.Contains(t, string(body), "Slashy Mail")

	res, _ = do(t, http.MethodGet, ts.URL+"/api/runs/"+first.RunID+"/report?format=pdf")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = do(t, http.MethodGet, ts.URL+"/api/runs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestRunTestsReturnsBareDocument(t *testing.T) {
	ts := newTestServer(t)
	res, body := do(t, http.MethodGet, ts.URL+"/run-tests?id=P%2BA@Any")
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	doc := decode[report.Document](t, body)
	assert.Equal(t, 1, doc.TotalCount)
	assert.Equal(t, report.VerdictFail, doc.Results[0].Verdict)
	assert.Equal(t, 0.0, doc.PassRate)
}

func TestRunErrors(t *testing.T) {
	runs := new(MockRunService)
	s := &Server{Config: config.NewManager(), Runs: runs, History: services.NewHistoryService(nil)}
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	res, body := do(t, http.MethodPost, ts.URL+"/api/run?category=Settings")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, string(body), "unknown category")

	runs.On("Run", mock.Anything, mock.Anything, verify.Filter{}).Return(nil, services.ErrRunInProgress).Once()
	res, _ = do(t, http.MethodPost, ts.URL+"/api/run")
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	runs.On("Run", mock.Anything, mock.Anything, verify.Filter{}).Return(nil, errors.New("catalog exploded")).Once()
	res, body = do(t, http.MethodPost, ts.URL+"/api/run")
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Contains(t, string(body), "catalog exploded")

	res, body = do(t, http.MethodGet, ts.URL+"/api/runs")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.True(t, strings.Contains(string(body), services.ErrHistoryDisabled.Error()))

	runs.AssertExpectations(t)
}

func TestRunPassesFilter(t *testing.T) {
	runs := new(MockRunService)
	s := &Server{Config: config.NewManager(), Runs: runs, History: services.NewHistoryService(nil)}
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	want := verify.Filter{Contexts: []string{"Inbox", "Any"}, IDPrefix: "cmd"}
	runs.On("Run", mock.Anything, mock.AnythingOfType("*config.Config"), want).
		Return(nil, services.ErrRunInProgress).Once()

	res, _ := do(t, http.MethodPost, ts.URL+"/api/run?context=Inbox,Any&prefix=cmd")
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	runs.AssertExpectations(t)
}
