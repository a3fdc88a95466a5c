// Package hook runs a user command for every reported scan result.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/failwarn/corstester/internal/output"
	"github.com/failwarn/corstester/internal/scanner"
)

// DefaultTimeout bounds a single hook invocation.
const DefaultTimeout = 30 * time.Second

// Runner executes a shell command for each non-filtered scan result.
type Runner struct {
	cmd     string
	quiet   bool
	timeout time.Duration
	log     io.Writer
}

// NewRunner creates a hook runner. cmd is the shell command to execute.
func NewRunner(cmd string, quiet bool) *Runner {
	return &Runner{cmd: cmd, quiet: quiet, timeout: DefaultTimeout, log: os.Stderr}
}

// Run executes the hook command with the result as JSON on stdin.
// Placeholders in the command are replaced with shell-quoted values.
// Errors are logged but do not halt the scan.
func (r *Runner) Run(ctx context.Context, result *scanner.ScanResult) {
	data, err := json.Marshal(output.NewEntry(result))
	if err != nil {
		fmt.Fprintf(r.log, "[hook] marshal error: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	shell, args := shellCommand()
	cmd := exec.CommandContext(ctx, shell, append(args, Expand(r.cmd, result))...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stderr = r.log
	// Children of the shell may hold stdout open past the timeout.
	cmd.WaitDelay = time.Second

	out, err := cmd.Output()
	if err != nil {
		if !r.quiet {
			fmt.Fprintf(r.log, "[hook] error: %v\n", err)
		}
		return
	}

	if len(out) > 0 && !r.quiet {
		fmt.Fprintf(r.log, "[hook] %s", out)
	}
}

// Expand replaces {url}, {origin}, {kind}, {method}, {status}, {severity}
// and {allowed} in command.
func Expand(command string, result *scanner.ScanResult) string {
	return strings.NewReplacer(
		"{url}", quote(result.URL),
		"{origin}", quote(result.Origin),
		"{kind}", quote(result.Kind.String()),
		"{method}", quote(result.Method),
		"{status}", strconv.Itoa(result.StatusCode),
		"{severity}", result.Verdict.MaxSeverity().String(),
		"{allowed}", strconv.FormatBool(result.Verdict.Allowed),
	).Replace(command)
}

// quote makes s a single shell word. Target URLs and origins come from
// files and servers, so they are not trusted.
func quote(s string) string {
	if runtime.GOOS == "windows" {
		return s
	}
	if s != "" && strings.Trim(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_.:/") == "" {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func shellCommand() (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C"}
	}
	return "sh", []string{"-c"}
}
