package scanner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/cors"

	"github.com/failwarn/corstester/internal/config"
	corspolicy "github.com/failwarn/corstester/internal/cors"
	"github.com/failwarn/corstester/internal/validate"
)

const trustedOrigin = "https://app.example"

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

// strictServer allows only trustedOrigin, PUT in addition to the simple
// methods, and the X-Token header.
func strictServer(t *testing.T) *httptest.Server {
	t.Helper()
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{trustedOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders:   []string{"X-Token"},
		AllowCredentials: true,
	})
	srv := httptest.NewServer(c.Handler(okHandler))
	t.Cleanup(srv.Close)
	return srv
}

// reflectingServer echoes any origin back with credentials.
func reflectingServer(t *testing.T) *httptest.Server {
	t.Helper()
	c := cors.New(cors.Options{
		AllowOriginFunc:  func(string) bool { return true },
		AllowCredentials: true,
	})
	srv := httptest.NewServer(c.Handler(okHandler))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRequester(t *testing.T, target string) *Requester {
	t.Helper()
	req, err := NewRequester(&config.Options{URL: target, Threads: 2, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewRequester: %v", err)
	}
	return req
}

func TestNewRequesterRejectsBadTargets(t *testing.T) {
	for _, target := range []string{"", "not a url", "/api", "mailto:a@example.com", " https://example.com"} {
		_, err := NewRequester(&config.Options{URL: target})
		if !errors.Is(err, validate.ErrInvalidURL) {
			t.Errorf("NewRequester(%q) error = %v, want ErrInvalidURL", target, err)
		}
	}
}

func TestProbeSimpleRequest(t *testing.T) {
	srv := strictServer(t)
	req := newTestRequester(t, srv.URL)

	res := Probe(context.Background(), req, WorkItem{Origin: trustedOrigin, Kind: corspolicy.KindSupplied, Method: "GET"}, ProbeConfig{})
	if res.Error != nil {
		t.Fatal(res.Error)
	}
	if res.Preflight {
		t.Error("simple GET should not be preflighted")
	}
	if !res.Verdict.Allowed {
		t.Errorf("trusted origin denied: %s", res.Verdict.Reason)
	}
	if res.StatusCode != 200 {
		t.Errorf("status = %d", res.StatusCode)
	}

	res = Probe(context.Background(), req, WorkItem{Origin: "https://corstester.invalid", Kind: corspolicy.KindArbitrary, Method: "GET"}, ProbeConfig{})
	if res.Verdict.Allowed {
		t.Error("arbitrary origin allowed by strict server")
	}
	if len(res.Verdict.Findings) != 0 {
		t.Errorf("unexpected findings: %+v", res.Verdict.Findings)
	}
}

func TestProbePreflight(t *testing.T) {
	srv := strictServer(t)
	req := newTestRequester(t, srv.URL)
	cfg := ProbeConfig{RequestHeaders: []string{"X-Token"}, Credentials: true}

	res := Probe(context.Background(), req, WorkItem{Origin: trustedOrigin, Method: "PUT"}, cfg)
	if res.Error != nil {
		t.Fatal(res.Error)
	}
	if !res.Preflight {
		t.Error("PUT should be preflighted")
	}
	if !res.Verdict.Allowed {
		t.Fatalf("PUT with X-Token denied: %s (policy %+v)", res.Verdict.Reason, res.Policy)
	}
	if !res.Policy.AllowCredentials {
		t.Error("expected credentials to be allowed")
	}

	res = Probe(context.Background(), req, WorkItem{Origin: trustedOrigin, Method: "DELETE"}, cfg)
	if res.Verdict.Allowed {
		t.Error("DELETE should be denied")
	}

	res = Probe(context.Background(), req, WorkItem{Origin: trustedOrigin, Method: "PUT"}, ProbeConfig{RequestHeaders: []string{"X-Other"}})
	if res.Verdict.Allowed {
		t.Error("X-Other header should be denied")
	}
}

func TestProbeReflectingServer(t *testing.T) {
	srv := reflectingServer(t)
	req := newTestRequester(t, srv.URL)

	res := Probe(context.Background(), req, WorkItem{Origin: "https://corstester.invalid", Kind: corspolicy.KindArbitrary, Method: "GET"}, ProbeConfig{Credentials: true})
	if res.Error != nil {
		t.Fatal(res.Error)
	}
	if !res.Verdict.Allowed {
		t.Fatalf("reflecting server denied: %s", res.Verdict.Reason)
	}
	if got := res.Verdict.MaxSeverity(); got != corspolicy.SeverityCritical {
		t.Errorf("severity = %s, want critical (findings %+v)", got, res.Verdict.Findings)
	}
}

func TestProbePreflightStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(corspolicy.HeaderAllowOrigin, r.Header.Get(corspolicy.HeaderOrigin))
		w.Header().Set(corspolicy.HeaderAllowMethods, "PUT")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	res := Probe(context.Background(), newTestRequester(t, srv.URL), WorkItem{Origin: trustedOrigin, Method: "PUT"}, ProbeConfig{})
	if res.Verdict.Allowed {
		t.Fatal("preflight with 403 must not be allowed")
	}
	if !strings.Contains(res.Verdict.Reason, "403") {
		t.Errorf("reason = %q", res.Verdict.Reason)
	}
}

func TestProbeActualAfterPreflight(t *testing.T) {
	// Preflight says yes, the real response forgets the header.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			if got := r.Header.Get(corspolicy.HeaderRequestHeaders); got != "x-a,x-b" {
				t.Errorf("Access-Control-Request-Headers = %q", got)
			}
			w.Header().Set(corspolicy.HeaderAllowOrigin, r.Header.Get(corspolicy.HeaderOrigin))
			w.Header().Set(corspolicy.HeaderAllowMethods, "PATCH")
			w.Header().Set(corspolicy.HeaderAllowHeaders, "x-a, x-b")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req := newTestRequester(t, srv.URL)
	item := WorkItem{Origin: trustedOrigin, Method: "PATCH"}
	headers := []string{"X-B", "x-a", "X-A"}

	res := Probe(context.Background(), req, item, ProbeConfig{RequestHeaders: headers})
	if !res.Verdict.Allowed {
		t.Fatalf("preflight-only probe denied: %s", res.Verdict.Reason)
	}

	res = Probe(context.Background(), req, item, ProbeConfig{RequestHeaders: headers, Actual: true})
	if res.Verdict.Allowed {
		t.Fatal("expected actual response to be blocked")
	}
	if !strings.HasPrefix(res.Verdict.Reason, "actual response:") {
		t.Errorf("reason = %q", res.Verdict.Reason)
	}
}

func TestRunWorkerPool(t *testing.T) {
	srv := strictServer(t)
	req := newTestRequester(t, srv.URL)

	items := []WorkItem{
		{Origin: trustedOrigin, Kind: corspolicy.KindSupplied, Method: "GET"},
		{Origin: trustedOrigin, Kind: corspolicy.KindSupplied, Method: "PUT"},
		{Origin: "null", Kind: corspolicy.KindNull, Method: "GET"},
		{Origin: "https://corstester.invalid", Kind: corspolicy.KindArbitrary, Method: "GET"},
	}

	results := RunWorkerPool(context.Background(), req, items, WorkerConfig{
		Threads:   2,
		Throttler: NewThrottler(0, false, nil),
	})

	allowed := map[string]bool{}
	n := 0
	for r := range results {
		if r.Error != nil {
			t.Fatalf("%s: %v", r.Key(), r.Error)
		}
		allowed[r.Key()] = r.Verdict.Allowed
		n++
	}
	if n != len(items) {
		t.Fatalf("got %d results, want %d", n, len(items))
	}
	if !allowed["GET "+trustedOrigin] || !allowed["PUT "+trustedOrigin] {
		t.Errorf("trusted origin denied: %v", allowed)
	}
	if allowed["GET null"] || allowed["GET https://corstester.invalid"] {
		t.Errorf("untrusted origin allowed: %v", allowed)
	}
}

func TestRunWorkerPoolCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	items := make([]WorkItem, 50)
	for i := range items {
		items[i] = WorkItem{Origin: trustedOrigin, Method: "GET"}
	}
	results := RunWorkerPool(ctx, newTestRequester(t, srv.URL), items, WorkerConfig{Threads: 4})
	cancel()

	done := make(chan struct{})
	go func() {
		for range results {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("results channel not closed after cancel")
	}
}

func TestRequestHeaderList(t *testing.T) {
	if got := requestHeaderList(nil); got != "" {
		t.Errorf("empty list = %q", got)
	}
	if got := requestHeaderList([]string{"X-Token", " content-type ", "x-token", ""}); got != "content-type,x-token" {
		t.Errorf("got %q", got)
	}
}
