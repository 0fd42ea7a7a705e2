package api

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gosurv/adapters/excel"
	"gosurv/internal"
	"gosurv/internal/errors"
	"gosurv/internal/session"
	"gosurv/internal/survival"
	"gosurv/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := internal.NewDiscardLogger()
	store := session.NewStore(time.Hour, time.Minute, logger)
	workflow := session.NewWorkflow(store, excel.NewDataReader(nil, logger),
		survival.NewPipeline(nil, survival.DefaultFitConfig(), logger), logger)

	srv := httptest.NewServer(NewHandler(Deps{Workflow: workflow, MaxUploadBytes: 1 << 20, Logger: logger}).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func cohortCSV(t *testing.T, subjects int) []byte {
	t.Helper()
	config := testkit.DefaultCohortConfig()
	config.Subjects = subjects
	table, err := testkit.NewCohortGenerator(config).Generate()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, testkit.WriteCSV(table, &buf))
	return buf.Bytes()
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.ID)
	return body.ID
}

func upload(t *testing.T, srv *httptest.Server, id, name string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/sessions/"+id+"/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	defer resp.Body.Close()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	return resp
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{errors.CodeNotFound, http.StatusNotFound},
		{errors.CodeParseError, http.StatusBadRequest},
		{errors.CodeInvalidSelection, http.StatusBadRequest},
		{errors.CodeInvalidChart, http.StatusBadRequest},
		{errors.CodeInvalidInput, http.StatusBadRequest},
		{errors.CodeInvalidEvent, http.StatusUnprocessableEntity},
		{errors.CodeNoEvents, http.StatusUnprocessableEntity},
		{errors.CodeSingularMatrix, http.StatusUnprocessableEntity},
		{errors.CodeInternalError, http.StatusInternalServerError},
		{"UNKNOWN", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.code); got != tt.want {
			t.Errorf("StatusFor(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestFloatMarshalsNonFiniteAsNull(t *testing.T) {
	data, err := json.Marshal([]Float{1.5, Float(math.NaN()), Float(math.Inf(1))})
	require.NoError(t, err)
	assert.Equal(t, "[1.5,null,null]", string(data))
}

func TestUnknownSession(t *testing.T) {
	srv := newTestServer(t)

	resp := get(t, srv.URL+"/sessions/not-a-uuid/summary")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errors.CodeNotFound, decodeError(t, resp).Code)

	resp = get(t, srv.URL+"/sessions/0190d2a4-1b6e-7c3f-9a55-2f1e8c0b7d11")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSessionWithoutTable(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	resp := get(t, srv.URL+"/sessions/"+id+"/summary")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp).Error, "uploaded table")
}

func TestUploadRejectsUnreadableFiles(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	resp := upload(t, srv, id, "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, errors.CodeParseError, decodeError(t, resp).Code)

	resp = upload(t, srv, id, "broken.xlsx", []byte("not a zip archive"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, errors.CodeParseError, decodeError(t, resp).Code)
}

func TestUploadTooLarge(t *testing.T) {
	logger := internal.NewDiscardLogger()
	store := session.NewStore(time.Hour, time.Minute, logger)
	workflow := session.NewWorkflow(store, excel.NewDataReader(nil, logger),
		survival.NewPipeline(nil, survival.DefaultFitConfig(), logger), logger)
	routes := NewHandler(Deps{Workflow: workflow, MaxUploadBytes: 1 << 10, Logger: logger}).Routes()
	id := store.Create().ID

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "big.csv")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("a,b\n"), 4096))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id.String()+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	state, err := store.Get(id)
	require.NoError(t, err)
	assert.False(t, state.HasTable())
}

func TestExploreEndpoints(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	base := srv.URL + "/sessions/" + id

	resp := upload(t, srv, id, "cohort.csv", cohortCSV(t, 60))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sess SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	resp.Body.Close()
	assert.Equal(t, 60, sess.Rows)
	assert.Len(t, sess.Columns, len(testkit.CohortColumns))

	resp = get(t, base+"/preview?n=3")
	var preview PreviewResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&preview))
	resp.Body.Close()
	assert.Len(t, preview.Rows, 3)
	assert.Equal(t, testkit.CohortColumns, preview.Columns)

	resp = get(t, base+"/summary")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	resp.Body.Close()
	assert.EqualValues(t, 60, summary["rows"])

	resp = get(t, base+"/correlation")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = get(t, base+"/value-counts/site")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var counts []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&counts))
	resp.Body.Close()
	assert.NotEmpty(t, counts)

	resp = get(t, base+"/value-counts/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCharts(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	base := srv.URL + "/sessions/" + id
	upload(t, srv, id, "cohort.csv", cohortCSV(t, 40)).Body.Close()

	resp := get(t, base+"/charts/scatter?columns=age,time")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.vegalite.v5+json", resp.Header.Get("Content-Type"))
	var spec map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&spec))
	resp.Body.Close()
	assert.Contains(t, spec, "$schema")

	resp = get(t, base+"/charts/scatter?columns=age")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, errors.CodeInvalidChart, decodeError(t, resp).Code)

	resp = get(t, base+"/charts/survival")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "no fit yet")
	resp.Body.Close()

	resp = get(t, base+"/charts/radar")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func postAssignment(t *testing.T, url, body string) (*http.Response, OutcomeResponse) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var outcome OutcomeResponse
	require.NoError(t, json.Unmarshal(raw, &outcome), string(raw))
	return resp, outcome
}

func TestSurvivalFit(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	base := srv.URL + "/sessions/" + id
	upload(t, srv, id, "cohort.csv", cohortCSV(t, 150)).Body.Close()

	resp, outcome := postAssignment(t, base+"/survival", `{"duration":"time","event":"event"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, survival.StatusPrompt, outcome.Status)
	assert.Contains(t, outcome.Message, "at least one predictor")

	resp, outcome = postAssignment(t, base+"/survival",
		`{"duration":"time","event":"event","predictors":["treatment","age"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, outcome.Message)
	assert.Equal(t, survival.StatusFitted, outcome.Status)
	require.NotNil(t, outcome.Cox)
	assert.Len(t, outcome.Cox.Coefficients, 2)
	assert.Equal(t, 150, outcome.RowsUsed)
	require.NotNil(t, outcome.KaplanMeier)
	assert.Equal(t, Float(1), outcome.KaplanMeier.Points[0].Survival)
	require.NotNil(t, outcome.PHTest)
	assert.Len(t, outcome.PHTest.Rows, 2)

	got := get(t, base+"/survival")
	assert.Equal(t, http.StatusOK, got.StatusCode)
	got.Body.Close()

	chart := get(t, base+"/charts/survival")
	assert.Equal(t, http.StatusOK, chart.StatusCode)
	chart.Body.Close()

	resp, outcome = postAssignment(t, base+"/survival",
		`{"duration":"time","event":"time","predictors":["age"]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, survival.StatusFailed, outcome.Status)
	assert.Equal(t, errors.CodeInvalidSelection, outcome.Code)
}

func TestSurvivalFitFailure(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	base := srv.URL + "/sessions/" + id

	csv := "t,e,x\n5,1,2\n3,0,n/a\n5,1,1\n"
	upload(t, srv, id, "tiny.csv", []byte(csv)).Body.Close()

	resp, outcome := postAssignment(t, base+"/survival", `{"duration":"t","event":"e","predictors":["x"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, errors.CodeInsufficientData, outcome.Code)
	assert.Nil(t, outcome.Cox)
	assert.Contains(t, outcome.Message, "at least 3")
	assert.Equal(t, 2, outcome.RowsUsed)

	resp, err := http.Post(base+"/survival", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestReportAndDelete(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	base := srv.URL + "/sessions/" + id
	upload(t, srv, id, "cohort.csv", cohortCSV(t, 30)).Body.Close()

	resp := get(t, base+"/report")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "# Survival analysis report: cohort.csv")

	resp = get(t, base+"/report?format=html")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodDelete, base, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = get(t, base)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

const strayCellCSV = "time,event,x\n1,1,3\n2,1,1\n?,0,2\n3,0,5\n4,1,2\n5,1,4\n6,0,1\n7,1,3\n8,1,5\n9,0,2\n10,1,4\n11,1,1\n"

func TestColumnTypesAndStrayDurationCell(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	base := srv.URL + "/sessions/" + id

	resp := upload(t, srv, id, "stray.csv", []byte(strayCellCSV))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	require.Len(t, info.Columns, 3)

	timeCol := info.Columns[0]
	assert.Equal(t, "time", timeCol.Name)
	assert.False(t, timeCol.Numeric)
	assert.InDelta(t, 11.0/12.0, timeCol.NumericRatio, 1e-12)
	assert.Equal(t, "numeric", info.Columns[1].Type)

	fit, outcome := postAssignment(t, base+"/survival", `{"duration":"time","event":"event","predictors":["x"]}`)
	require.Equal(t, http.StatusOK, fit.StatusCode, outcome.Message)
	assert.Equal(t, survival.StatusFitted, outcome.Status)
	assert.Equal(t, 11, outcome.RowsUsed)
	assert.Equal(t, 1, outcome.RowsDropped)
}
