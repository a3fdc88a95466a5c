package scanner

import (
	"context"
	"fmt"

	"github.com/failwarn/corstester/internal/cors"
)

// ProbeConfig describes the simulated page making the request.
type ProbeConfig struct {
	RequestHeaders []string // header names the page sets
	Credentials    bool
	Actual         bool // after an allowed preflight, send the real request too
}

// Probe runs the request sequence a browser would for item and evaluates
// the result. Simple requests are judged on the actual response; others on
// the preflight, optionally followed by the actual request.
func Probe(ctx context.Context, req *Requester, item WorkItem, cfg ProbeConfig) ScanResult {
	result := ScanResult{WorkItem: item}
	creq := cors.Request{
		Origin:      item.Origin,
		Kind:        item.Kind,
		Method:      item.Method,
		Headers:     cfg.RequestHeaders,
		Credentials: cfg.Credentials,
	}

	if cors.IsSimple(creq) {
		resp, err := req.Actual(ctx, item)
		if err != nil {
			result.Error = err
			return result
		}
		fill(&result, resp)
		result.Verdict = cors.Evaluate(creq, result.Policy)
		return result
	}

	resp, err := req.Preflight(ctx, item, cfg.RequestHeaders)
	if err != nil {
		result.Error = err
		return result
	}
	fill(&result, resp)
	result.Preflight = true
	result.Verdict = cors.Evaluate(creq, result.Policy)

	// A preflight needs an ok status regardless of its headers.
	if result.Verdict.Allowed && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		result.Verdict.Allowed = false
		result.Verdict.Reason = fmt.Sprintf("preflight returned status %d", resp.StatusCode)
	}

	if !cfg.Actual || !result.Verdict.Allowed {
		return result
	}

	actual, err := req.Actual(ctx, item)
	if err != nil {
		result.Error = fmt.Errorf("actual request after preflight: %w", err)
		return result
	}
	result.StatusCode = actual.StatusCode
	actualPolicy := cors.ParsePolicy(actual.Header)
	if reason := cors.CheckResponse(creq, actualPolicy); reason != "" {
		result.Verdict.Allowed = false
		result.Verdict.Reason = "actual response: " + reason
	}
	result.Verdict.Findings = mergeFindings(result.Verdict.Findings, cors.Evaluate(creq, actualPolicy).Findings)
	return result
}

func fill(result *ScanResult, resp *Response) {
	result.URL = resp.URL
	result.StatusCode = resp.StatusCode
	result.Duration = resp.Duration
	result.Policy = cors.ParsePolicy(resp.Header)
}

func mergeFindings(a, b []cors.Finding) []cors.Finding {
	seen := make(map[string]struct{}, len(a))
	for _, f := range a {
		seen[f.ID] = struct{}{}
	}
	for _, f := range b {
		if _, ok := seen[f.ID]; !ok {
			seen[f.ID] = struct{}{}
			a = append(a, f)
		}
	}
	return a
}
