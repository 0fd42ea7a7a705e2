package ui

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"gosurv/adapters/excel"
	"gosurv/internal"
	"gosurv/internal/api"
	"gosurv/internal/config"
	"gosurv/internal/session"
	"gosurv/internal/survival"
	"gosurv/internal/testkit"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cookieName = "test_session"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := internal.NewDiscardLogger()
	cfg := &config.Config{
		Upload:  config.UploadConfig{MaxBytes: 1 << 20},
		Session: config.SessionConfig{TTL: time.Hour, CleanupInterval: time.Minute, CookieName: cookieName},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	store := session.NewStore(cfg.Session.TTL, cfg.Session.CleanupInterval, logger)
	workflow := session.NewWorkflow(store, excel.NewDataReader(nil, logger),
		survival.NewPipeline(nil, survival.DefaultFitConfig(), logger), logger)

	srv, err := NewServer(Deps{
		Config:   cfg,
		Workflow: workflow,
		API:      api.NewHandler(api.Deps{Workflow: workflow, Logger: logger}).Routes(),
		Logger:   logger,
	})
	require.NoError(t, err)
	return srv
}

// client replays the session cookie the server hands out
type client struct {
	t      *testing.T
	srv    *Server
	cookie *http.Cookie
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.srv.Handler().ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == cookieName {
			c.cookie = ck
		}
	}
	return rec
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) upload(name string, content []byte) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(c.t, err)
	_, err = part.Write(content)
	require.NoError(c.t, err)
	require.NoError(c.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func (c *client) fit(form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/survival", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func cohortXLSX(t *testing.T, subjects int) []byte {
	t.Helper()
	config := testkit.DefaultCohortConfig()
	config.Subjects = subjects
	table, err := testkit.NewCohortGenerator(config).Generate()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, testkit.WriteXLSX(table, &buf))
	return buf.Bytes()
}

func TestHealthAndMetrics(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t)}

	rec := c.get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = c.get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gosurv_active_sessions")
}

func TestIndexStartsSession(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t)}

	rec := c.get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Upload a spreadsheet")
	require.NotNil(t, c.cookie)
	assert.True(t, c.cookie.HttpOnly)

	first := c.cookie.Value
	c.get("/")
	assert.Equal(t, first, c.cookie.Value, "the session is reused")
}

func TestPagesRedirectWithoutTable(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t)}
	for _, path := range []string{"/explore", "/survival", "/report", "/report.md"} {
		rec := c.get(path)
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, "/", rec.Header().Get("Location"), path)
	}
}

func TestUploadAndExplore(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t)}

	rec := c.upload("cohort.xlsx", cohortXLSX(t, 80))
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/explore", rec.Header().Get("Location"))

	rec = c.get("/explore?rows=3&counts=site")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Descriptive statistics")
	assert.Contains(t, body, "subject_0001")
	assert.NotContains(t, body, "subject_0004", "only three preview rows")
	assert.Contains(t, body, "Correlation")
	assert.Contains(t, body, "north")

	rec = c.get("/")
	assert.Contains(t, rec.Body.String(), "cohort.xlsx")
}

func TestUploadRejected(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t)}

	rec := c.upload("notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "PARSE_ERROR")

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(""))
	rec = c.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSurvivalPage(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t)}
	c.upload("cohort.xlsx", cohortXLSX(t, 150))

	rec := c.get("/survival")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="predictors"`)

	rec = c.fit(url.Values{"duration": {"time"}, "event": {"event"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least one predictor")

	rec = c.fit(url.Values{"duration": {"time"}, "event": {"event"}, "predictors": {"treatment", "age"}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Cox proportional hazards")
	assert.Contains(t, body, "Proportional hazards test")
	assert.Contains(t, body, "/charts/survival")
	assert.NotContains(t, body, `class="alert"`)

	rec = c.get("/report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<code>treatment</code>")

	rec = c.get("/report.md")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "cohort-report.md")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "# Survival analysis report"))
}

func TestSurvivalPageShowsFitFailure(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t)}
	c.upload("tiny.csv", []byte("duration,event,x\n5,1,2\n3,0,n/a\n5,1,1\n"))

	rec := c.fit(url.Values{"duration": {"duration"}, "event": {"event"}, "predictors": {"x"}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "INSUFFICIENT_DATA")
	assert.Equal(t, 1, strings.Count(body, `class="alert"`), "the failure is rendered once")
	assert.NotContains(t, body, "Cox proportional hazards")
}

func TestSurvivalAcceptsColumnWithStrayCell(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t)}
	csv := "time,event,x\n1,1,3\n2,1,1\n?,0,2\n3,0,5\n4,1,2\n5,1,4\n6,0,1\n7,1,3\n8,1,5\n9,0,2\n10,1,4\n11,1,1\n"
	rec := c.upload("stray.csv", []byte(csv))
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	rec = c.get("/survival")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<option value="time" >time (mostly numeric)</option>`)
	assert.Equal(t, 2, strings.Count(body, `<option value="time"`), "offered as duration and event")

	rec = c.fit(url.Values{"duration": {"time"}, "event": {"event"}, "predictors": {"x"}})
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.NotContains(t, body, `class="alert"`)
	assert.Contains(t, body, "Cox proportional hazards")
	assert.Contains(t, body, "coef lower 95%")
}

func TestAPIIsMounted(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t)}
	c.upload("cohort.xlsx", cohortXLSX(t, 30))
	require.NotNil(t, c.cookie)

	rec := c.get(APIPrefix + "/sessions/" + c.cookie.Value + "/summary")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rows":30`)

	rec = c.get(APIPrefix + "/sessions/" + c.cookie.Value + "/charts/heatmap")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.vegalite.v5+json", rec.Header().Get("Content-Type"))
}

func TestStaticAssets(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t)}
	rec := c.get("/static/app.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vegaEmbed")
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{3, "3"},
		{0.123456, "0.1235"},
		{-2.5, "-2.5"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
	assert.Equal(t, "<0.005", formatPValue(0.001))
	assert.Equal(t, "0.250", formatPValue(0.25))
}

func TestPanicsAreRecovered(t *testing.T) {
	srv := newTestServer(t)
	srv.router.GET("/boom", func(*gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSessionCookieIsReissuedOnEachRequest(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t)}
	c.get("/")
	require.NotNil(t, c.cookie)
	first := c.cookie.Value

	rec := c.get("/")
	var reissued *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == cookieName {
			reissued = ck
		}
	}
	require.NotNil(t, reissued, "a resolved session should still get its cookie back")
	assert.Equal(t, first, reissued.Value)
	assert.Equal(t, int(time.Hour.Seconds()), reissued.MaxAge)
	assert.True(t, reissued.HttpOnly)
}
