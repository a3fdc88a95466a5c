package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/failwarn/corstester/internal/cors"
	"github.com/failwarn/corstester/internal/output"
	"github.com/failwarn/corstester/internal/scanner"
	"github.com/failwarn/corstester/internal/validate"
)

type checkRequest struct {
	URL         string   `json:"url"`
	Method      string   `json:"method"`
	Origin      string   `json:"origin"`
	Headers     []string `json:"headers"`
	Credentials bool     `json:"credentials"`
	Actual      bool     `json:"actual"`
	Kind        string   `json:"kind"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// invalidField is a rejected check request, reported as 400.
type invalidField struct {
	field string
	err   error
}

func (e *invalidField) Error() string { return e.err.Error() }

// item validates the decoded request and turns it into a probe.
func (c *checkRequest) item() (scanner.WorkItem, *invalidField) {
	if !validate.IsValidURL(c.URL) {
		return scanner.WorkItem{}, &invalidField{"url", fmt.Errorf("%w: %q", validate.ErrInvalidURL, c.URL)}
	}

	method := c.Method
	if method == "" {
		method = http.MethodGet
	}
	if !validate.IsValidHTTPMethod(method) {
		return scanner.WorkItem{}, &invalidField{"method", fmt.Errorf("%w: %q", validate.ErrInvalidMethod, method)}
	}

	if c.Origin == "" {
		return scanner.WorkItem{}, &invalidField{"origin", fmt.Errorf("%w: origin is required", validate.ErrInvalidOrigin)}
	}
	origin, err := validate.Origin(c.Origin)
	if err != nil {
		return scanner.WorkItem{}, &invalidField{"origin", err}
	}

	for _, h := range c.Headers {
		if !httpguts.ValidHeaderFieldName(h) {
			return scanner.WorkItem{}, &invalidField{"headers", fmt.Errorf("invalid header name %q", h)}
		}
	}

	kind := cors.KindSupplied
	switch {
	case c.Kind != "":
		if kind, err = cors.ParseKind(c.Kind); err != nil {
			return scanner.WorkItem{}, &invalidField{"kind", err}
		}
	case origin == validate.NullOrigin:
		kind = cors.KindNull
	}

	return scanner.WorkItem{Origin: origin, Kind: kind, Method: method}, nil
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.metrics.invalid.WithLabelValues("body").Inc()
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	var requester *scanner.Requester
	item, bad := req.item()
	if bad == nil {
		// Validity says nothing about the scheme; only http(s) can be probed.
		var err error
		if requester, err = scanner.NewRequesterWithClient(s.client, req.URL, nil, s.opts.UserAgent); err != nil {
			bad = &invalidField{"url", err}
		}
	}
	if bad != nil {
		s.metrics.invalid.WithLabelValues(bad.field).Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: bad.Error(), Field: bad.field})
		return
	}

	start := time.Now()
	result := scanner.Probe(r.Context(), requester, item, scanner.ProbeConfig{
		RequestHeaders: req.Headers,
		Credentials:    req.Credentials,
		Actual:         req.Actual,
	})
	s.metrics.checkTime.Observe(time.Since(start).Seconds())

	if result.Error != nil {
		s.metrics.checks.WithLabelValues("error").Inc()
		s.log.Warn("check failed", "url", req.URL, "origin", item.Origin, "error", result.Error)
		writeError(w, http.StatusBadGateway, result.Error.Error())
		return
	}

	outcome := "blocked"
	if result.Verdict.Allowed {
		outcome = "allowed"
	}
	s.metrics.checks.WithLabelValues(outcome).Inc()
	for _, f := range result.Verdict.Findings {
		s.metrics.findings.WithLabelValues(f.Severity.String()).Inc()
	}
	writeJSON(w, http.StatusOK, output.NewEntry(&result))
}

func (s *Server) handleMethods(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"methods": validate.Methods()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
