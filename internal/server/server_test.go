package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/failwarn/corstester/internal/config"
	corspolicy "github.com/failwarn/corstester/internal/cors"
	"github.com/failwarn/corstester/internal/output"
)

type ServerTestSuite struct {
	suite.Suite
	target     *httptest.Server
	reflecting *httptest.Server
	api        *httptest.Server
	srv        *Server
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
}

func (suite *ServerTestSuite) SetupTest() {
	suite.target = httptest.NewServer(cors.New(cors.Options{
		AllowedOrigins:   []string{"https://app.example"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders:   []string{"X-Token"},
		AllowCredentials: true,
	}).Handler(okHandler()))
	suite.reflecting = httptest.NewServer(cors.New(cors.Options{
		AllowOriginFunc:  func(string) bool { return true },
		AllowCredentials: true,
	}).Handler(okHandler()))

	var err error
	suite.srv, err = New(config.ServerOptions{
		AllowedOrigins: []string{"https://ui.example"},
		Timeout:        5 * time.Second,
	}, quietLogger())
	suite.Require().NoError(err)
	suite.api = httptest.NewServer(suite.srv.Handler())
}

func (suite *ServerTestSuite) TearDownTest() {
	suite.api.Close()
	suite.target.Close()
	suite.reflecting.Close()
}

// TestServerTestSuite runs the API tests.
func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (suite *ServerTestSuite) post(body string) (int, []byte) {
	resp, err := http.Post(suite.api.URL+"/api/v1/check", "application/json", strings.NewReader(body))
	suite.Require().NoError(err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	suite.Require().NoError(err)
	return resp.StatusCode, data
}

func (suite *ServerTestSuite) get(path string) (*http.Response, []byte) {
	resp, err := http.Get(suite.api.URL + path)
	suite.Require().NoError(err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	suite.Require().NoError(err)
	return resp, data
}

func (suite *ServerTestSuite) check(req map[string]any) output.Entry {
	body, err := json.Marshal(req)
	suite.Require().NoError(err)
	code, data := suite.post(string(body))
	suite.Require().Equal(http.StatusOK, code, string(data))

	var entry output.Entry
	suite.Require().NoError(json.Unmarshal(data, &entry))
	return entry
}

func (suite *ServerTestSuite) TestCheckAllowed() {
	entry := suite.check(map[string]any{
		"url":    suite.target.URL,
		"origin": "https://app.example",
	})
	suite.True(entry.Allowed)
	suite.Equal(http.MethodGet, entry.Method)
	suite.Equal(corspolicy.KindSupplied, entry.Kind)
	suite.Equal("https://app.example", entry.Policy.AllowOrigin)
	suite.False(entry.Preflight)
	suite.NotNil(entry.Findings)
}

func (suite *ServerTestSuite) TestCheckPreflight() {
	entry := suite.check(map[string]any{
		"url":         suite.target.URL,
		"method":      http.MethodPut,
		"origin":      "https://app.example",
		"headers":     []string{"X-Token"},
		"credentials": true,
		"actual":      true,
	})
	suite.True(entry.Preflight)
	suite.True(entry.Allowed, entry.Reason)
	suite.True(entry.Policy.AllowCredentials)
}

func (suite *ServerTestSuite) TestCheckBlocked() {
	entry := suite.check(map[string]any{
		"url":    suite.target.URL,
		"origin": "https://evil.example",
		"kind":   "arbitrary",
	})
	suite.False(entry.Allowed)
	suite.NotEmpty(entry.Reason)
	suite.Equal(corspolicy.KindArbitrary, entry.Kind)
	suite.Equal(corspolicy.SeverityNone, entry.Severity)
}

func (suite *ServerTestSuite) TestCheckReflectedOrigin() {
	entry := suite.check(map[string]any{
		"url":         suite.reflecting.URL,
		"origin":      "https://evil.example",
		"kind":        "arbitrary",
		"credentials": true,
	})
	suite.True(entry.Allowed)
	suite.Equal(corspolicy.SeverityCritical, entry.Severity)
	suite.NotEmpty(entry.Findings)
}

func (suite *ServerTestSuite) TestCheckNullOriginKind() {
	entry := suite.check(map[string]any{
		"url":    suite.reflecting.URL,
		"origin": "null",
	})
	suite.Equal(corspolicy.KindNull, entry.Kind)
}

func (suite *ServerTestSuite) TestCheckRejectsInvalidInput() {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"not a url", `{"url":"not a url","origin":"https://app.example"}`, "url"},
		{"empty url", `{"origin":"https://app.example"}`, "url"},
		{"url with spaces", `{"url":" https://a.example","origin":"https://app.example"}`, "url"},
		{"ftp url", `{"url":"ftp://files.example/","origin":"https://app.example"}`, "url"},
		{"lowercase method", `{"url":"https://a.example","method":"get","origin":"https://app.example"}`, "method"},
		{"unsupported method", `{"url":"https://a.example","method":"TRACE","origin":"https://app.example"}`, "method"},
		{"missing origin", `{"url":"https://a.example"}`, "origin"},
		{"origin with path", `{"url":"https://a.example","origin":"https://app.example/x"}`, "origin"},
		{"bad header name", `{"url":"https://a.example","origin":"https://app.example","headers":["x token"]}`, "headers"},
		{"unknown kind", `{"url":"https://a.example","origin":"https://app.example","kind":"bogus"}`, "kind"},
		{"broken json", `{"url":`, ""},
		{"unknown field", `{"url":"https://a.example","origin":"https://app.example","extra":1}`, ""},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			code, data := suite.post(tt.body)
			suite.Equal(http.StatusBadRequest, code)

			var resp errorResponse
			suite.Require().NoError(json.Unmarshal(data, &resp))
			suite.NotEmpty(resp.Error)
			suite.Equal(tt.field, resp.Field)
		})
	}

	_, metrics := suite.get("/metrics")
	suite.Contains(string(metrics), `corstester_validation_failures_total{field="method"} 2`)
	suite.Contains(string(metrics), `corstester_validation_failures_total{field="body"} 2`)
}

func (suite *ServerTestSuite) TestCheckUnreachableTarget() {
	dead := httptest.NewServer(okHandler())
	url := dead.URL
	dead.Close()

	code, data := suite.post(`{"url":"` + url + `","origin":"https://app.example"}`)
	suite.Equal(http.StatusBadGateway, code)

	var resp errorResponse
	suite.Require().NoError(json.Unmarshal(data, &resp))
	suite.NotEmpty(resp.Error)
}

func (suite *ServerTestSuite) TestCheckBlockPrivate() {
	srv, err := New(config.ServerOptions{BlockPrivate: true}, quietLogger())
	suite.Require().NoError(err)
	api := httptest.NewServer(srv.Handler())
	defer api.Close()

	resp, err := http.Post(api.URL+"/api/v1/check", "application/json",
		strings.NewReader(`{"url":"`+suite.target.URL+`","origin":"https://app.example"}`))
	suite.Require().NoError(err)
	resp.Body.Close()
	suite.Equal(http.StatusBadGateway, resp.StatusCode)
}

func (suite *ServerTestSuite) TestBodyTooLarge() {
	srv, err := New(config.ServerOptions{MaxBodyBytes: 16}, quietLogger())
	suite.Require().NoError(err)
	api := httptest.NewServer(srv.Handler())
	defer api.Close()

	resp, err := http.Post(api.URL+"/api/v1/check", "application/json",
		strings.NewReader(`{"url":"https://a.example","origin":"https://app.example"}`))
	suite.Require().NoError(err)
	resp.Body.Close()
	suite.Equal(http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func (suite *ServerTestSuite) TestMethods() {
	resp, data := suite.get("/api/v1/methods")
	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.Equal("application/json", resp.Header.Get("Content-Type"))

	var body struct {
		Methods []string `json:"methods"`
	}
	suite.Require().NoError(json.Unmarshal(data, &body))
	suite.Equal([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}, body.Methods)
}

func (suite *ServerTestSuite) TestHealth() {
	resp, data := suite.get("/healthz")
	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.JSONEq(`{"status":"ok"}`, string(data))
}

func (suite *ServerTestSuite) TestNotFoundAndWrongMethod() {
	resp, data := suite.get("/nope")
	suite.Equal(http.StatusNotFound, resp.StatusCode)
	suite.JSONEq(`{"error":"not found"}`, string(data))

	resp, _ = suite.get("/api/v1/check")
	suite.Equal(http.StatusMethodNotAllowed, resp.StatusCode)
}

func (suite *ServerTestSuite) TestUnmatchedRequestsAreCounted() {
	resp, _ := suite.get("/nope")
	suite.Equal(http.StatusNotFound, resp.StatusCode)
	resp, _ = suite.get("/also/missing")
	suite.Equal(http.StatusNotFound, resp.StatusCode)
	resp, _ = suite.get("/api/v1/check")
	suite.Equal(http.StatusMethodNotAllowed, resp.StatusCode)

	_, data := suite.get("/metrics")
	text := string(data)
	suite.Contains(text, `corstester_http_requests_total{code="404",route="unmatched"} 2`)
	suite.Contains(text, `corstester_http_requests_total{code="405",route="unmatched"} 1`)
	suite.NotContains(text, `route="/nope"`)
}

func (suite *ServerTestSuite) TestRequestID() {
	req, err := http.NewRequest(http.MethodGet, suite.api.URL+"/healthz", nil)
	suite.Require().NoError(err)
	req.Header.Set(headerRequestID, "trace-42")
	resp, err := http.DefaultClient.Do(req)
	suite.Require().NoError(err)
	resp.Body.Close()
	suite.Equal("trace-42", resp.Header.Get(headerRequestID))

	resp, _ = suite.get("/healthz")
	_, err = uuid.Parse(resp.Header.Get(headerRequestID))
	suite.NoError(err)
}

func (suite *ServerTestSuite) TestAPIPreflight() {
	preflight := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, suite.api.URL+"/api/v1/check", nil)
		suite.Require().NoError(err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "content-type")
		resp, err := http.DefaultClient.Do(req)
		suite.Require().NoError(err)
		resp.Body.Close()
		return resp
	}

	resp := preflight("https://ui.example")
	suite.Equal("https://ui.example", resp.Header.Get("Access-Control-Allow-Origin"))
	suite.NotEmpty(resp.Header.Get(headerRequestID))

	resp = preflight("https://other.example")
	suite.Empty(resp.Header.Get("Access-Control-Allow-Origin"))
}

func (suite *ServerTestSuite) TestMetrics() {
	suite.check(map[string]any{
		"url":    suite.target.URL,
		"origin": "https://app.example",
	})

	resp, data := suite.get("/metrics")
	suite.Equal(http.StatusOK, resp.StatusCode)
	text := string(data)
	suite.Contains(text, `corstester_checks_total{result="allowed"} 1`)
	suite.Contains(text, `corstester_http_requests_total{code="200",route="/api/v1/check"} 1`)
	suite.Contains(text, "corstester_check_duration_seconds_count 1")
	suite.Contains(text, "go_goroutines")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv, err := New(config.ServerOptions{CloseTimeout: time.Second}, quietLogger())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	_, err = http.Get(base + "/healthz")
	assert.Error(t, err)
}

func TestListenAndServeBadAddress(t *testing.T) {
	srv, err := New(config.ServerOptions{Listen: "127.0.0.1:-1"}, quietLogger())
	require.NoError(t, err)
	err = srv.ListenAndServe(context.Background())
	assert.ErrorContains(t, err, "listening on")
}
