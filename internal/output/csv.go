package output

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/failwarn/corstester/internal/scanner"
)

// CSVWriter writes one row per result. Findings are joined into a single
// column as "id:severity" pairs separated by semicolons.
type CSVWriter struct {
	w      *csv.Writer
	closer io.Closer
}

// NewCSVWriter creates a CSV output writer.
func NewCSVWriter(outputFile string) (*CSVWriter, error) {
	w, closer, err := destination(outputFile)
	if err != nil {
		return nil, err
	}
	return &CSVWriter{w: csv.NewWriter(w), closer: closer}, nil
}

func (c *CSVWriter) WriteHeader() error {
	return c.w.Write([]string{
		"url", "origin", "kind", "method", "preflight", "status",
		"allowed", "reason", "severity", "allow_origin", "allow_credentials", "findings",
	})
}

func (c *CSVWriter) WriteResult(result *scanner.ScanResult) error {
	ids := make([]string, len(result.Verdict.Findings))
	for i, f := range result.Verdict.Findings {
		ids[i] = f.ID + ":" + f.Severity.String()
	}
	return c.w.Write([]string{
		result.URL,
		result.Origin,
		result.Kind.String(),
		result.Method,
		strconv.FormatBool(result.Preflight),
		strconv.Itoa(result.StatusCode),
		strconv.FormatBool(result.Verdict.Allowed),
		result.Verdict.Reason,
		result.Verdict.MaxSeverity().String(),
		result.Policy.AllowOrigin,
		strconv.FormatBool(result.Policy.AllowCredentials),
		strings.Join(ids, ";"),
	})
}

func (c *CSVWriter) WriteFooter(_ Stats) error {
	c.w.Flush()
	return c.w.Error()
}

func (c *CSVWriter) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
