package output

import (
	"encoding/json"
	"io"

	"github.com/failwarn/corstester/internal/cors"
	"github.com/failwarn/corstester/internal/scanner"
)

// Entry is the JSON form of a result. The API server returns the same shape.
type Entry struct {
	URL        string          `json:"url"`
	Origin     string          `json:"origin"`
	Kind       cors.OriginKind `json:"kind"`
	Method     string          `json:"method"`
	Preflight  bool            `json:"preflight"`
	StatusCode int             `json:"status"`
	Policy     cors.Policy     `json:"policy"`
	Allowed    bool            `json:"allowed"`
	Reason     string          `json:"reason,omitempty"`
	Severity   cors.Severity   `json:"severity"`
	Findings   []cors.Finding  `json:"findings"`
}

// NewEntry converts a result to its JSON form.
func NewEntry(result *scanner.ScanResult) Entry {
	findings := result.Verdict.Findings
	if findings == nil {
		findings = []cors.Finding{}
	}
	return Entry{
		URL:        result.URL,
		Origin:     result.Origin,
		Kind:       result.Kind,
		Method:     result.Method,
		Preflight:  result.Preflight,
		StatusCode: result.StatusCode,
		Policy:     result.Policy,
		Allowed:    result.Verdict.Allowed,
		Reason:     result.Verdict.Reason,
		Severity:   result.Verdict.MaxSeverity(),
		Findings:   findings,
	}
}

// JSONWriter writes results as a JSON array.
type JSONWriter struct {
	w       io.Writer
	closer  io.Closer
	entries []Entry
}

// NewJSONWriter creates a JSON output writer.
func NewJSONWriter(outputFile string) (*JSONWriter, error) {
	w, closer, err := destination(outputFile)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{w: w, closer: closer, entries: []Entry{}}, nil
}

func (j *JSONWriter) WriteHeader() error { return nil }

func (j *JSONWriter) WriteResult(result *scanner.ScanResult) error {
	j.entries = append(j.entries, NewEntry(result))
	return nil
}

func (j *JSONWriter) WriteFooter(_ Stats) error {
	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")
	return enc.Encode(j.entries)
}

func (j *JSONWriter) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
