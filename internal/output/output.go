package output

import (
	"io"
	"os"
	"time"

	"github.com/failwarn/corstester/internal/scanner"
)

// Stats holds aggregate scan statistics.
type Stats struct {
	TotalRequests  int
	FilteredCount  int
	ErrorCount     int
	FindingCount   int // reported results with at least one finding
	Duration       time.Duration
	RequestsPerSec float64
}

// Writer is implemented by each output format.
type Writer interface {
	WriteHeader() error
	WriteResult(result *scanner.ScanResult) error
	WriteFooter(stats Stats) error
	Close() error
}

// destination opens outputFile for writing, or returns stdout when it is
// empty. The closer is nil for stdout.
func destination(outputFile string) (io.Writer, io.Closer, error) {
	if outputFile == "" {
		return os.Stdout, nil, nil
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}
