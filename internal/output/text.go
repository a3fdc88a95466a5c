package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/failwarn/corstester/internal/cors"
	"github.com/failwarn/corstester/internal/scanner"
)

// ANSI color codes.
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorGreen  = "\033[32m"
	colorCyan   = "\033[36m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
)

// TextWriter writes one line per result, followed by one indented line per
// finding. A "# <url>" line is written whenever the target changes.
type TextWriter struct {
	w       io.Writer
	closer  io.Closer
	log     io.Writer // footer destination
	noColor bool
	quiet   bool
	lastURL string
}

// NewTextWriter creates a text output writer. If outputFile is empty, stdout
// is used. noColor disables ANSI escape codes.
func NewTextWriter(outputFile string, noColor, quiet bool) (*TextWriter, error) {
	w, closer, err := destination(outputFile)
	if err != nil {
		return nil, err
	}
	// Escape codes are useless in a file.
	if outputFile != "" {
		noColor = true
	}
	return &TextWriter{w: w, closer: closer, log: os.Stderr, noColor: noColor, quiet: quiet}, nil
}

func (t *TextWriter) WriteHeader() error {
	if t.quiet {
		return nil
	}
	_, err := fmt.Fprintf(t.w, "%sSeverity  Method   Code  Origin (kind)  Verdict%s\n", t.c(colorDim), t.c(colorReset))
	return err
}

func (t *TextWriter) WriteResult(result *scanner.ScanResult) error {
	if result.URL != "" && result.URL != t.lastURL {
		t.lastURL = result.URL
		if _, err := fmt.Fprintf(t.w, "# %s\n", result.URL); err != nil {
			return err
		}
	}

	sev := result.Verdict.MaxSeverity()
	label := "-"
	if sev > cors.SeverityNone {
		label = strings.ToUpper(sev.String())
	}

	verdict := t.c(colorGreen) + "allowed" + t.c(colorReset)
	if !result.Verdict.Allowed {
		verdict = "blocked: " + result.Verdict.Reason
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s%-8s%s  %-7s  %3d  %s %s(%s)%s  %s\n",
		t.colorForSeverity(sev), label, t.c(colorReset),
		result.Method,
		result.StatusCode,
		result.Origin, t.c(colorDim), result.Kind, t.c(colorReset),
		verdict,
	)
	for _, f := range result.Verdict.Findings {
		fmt.Fprintf(&b, "          %s%s%s %s: %s\n",
			t.colorForSeverity(f.Severity), f.Severity, t.c(colorReset), f.ID, f.Message)
	}
	_, err := io.WriteString(t.w, b.String())
	return err
}

func (t *TextWriter) WriteFooter(stats Stats) error {
	if t.quiet {
		return nil
	}
	_, err := fmt.Fprintf(t.log,
		"\nCompleted: %d requests | Findings: %d | Filtered: %d | Errors: %d | Duration: %s | %.1f req/s\n",
		stats.TotalRequests,
		stats.FindingCount,
		stats.FilteredCount,
		stats.ErrorCount,
		stats.Duration.Round(time.Millisecond),
		stats.RequestsPerSec,
	)
	return err
}

func (t *TextWriter) Close() error {
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

func (t *TextWriter) c(code string) string {
	if t.noColor {
		return ""
	}
	return code
}

func (t *TextWriter) colorForSeverity(s cors.Severity) string {
	if t.noColor {
		return ""
	}
	switch s {
	case cors.SeverityCritical:
		return colorBold + colorRed
	case cors.SeverityHigh:
		return colorRed
	case cors.SeverityMedium:
		return colorYellow
	case cors.SeverityLow:
		return colorCyan
	case cors.SeverityInfo:
		return colorDim
	default:
		return ""
	}
}
