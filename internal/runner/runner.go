package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/failwarn/corstester/internal/config"
	"github.com/failwarn/corstester/internal/cors"
	"github.com/failwarn/corstester/internal/filter"
	"github.com/failwarn/corstester/internal/hook"
	"github.com/failwarn/corstester/internal/origins"
	"github.com/failwarn/corstester/internal/output"
	"github.com/failwarn/corstester/internal/resume"
	"github.com/failwarn/corstester/internal/scanner"
	"github.com/failwarn/corstester/internal/validate"
	"github.com/failwarn/corstester/pkg/version"
)

// ErrFindings is returned by Run after all output is written when a
// reported finding reaches the --fail-on severity.
var ErrFindings = errors.New("findings at or above fail-on severity")

// ErrTargetFailed is returned by Run, after all output is written, when at
// least one target could not be scanned.
var ErrTargetFailed = errors.New("target scan failed")

// scan carries the state shared by every target of one Run.
type scan struct {
	opts      *config.Options
	methods   []string
	supplied  []origins.Probe
	chain     *filter.Chain
	out       output.Writer
	progress  *output.Progress
	throttler *scanner.Throttler
	pauser    *scanner.Pauser
	hook      *hook.Runner
	resume    *resume.File
	stats     output.Stats
	reported  []*scanner.ScanResult
	worst     cors.Severity
}

// Run executes the full scan pipeline against every target given by -u
// and -l.
func Run(ctx context.Context, opts *config.Options) error {
	failOn, err := parseSeverity("fail-on", opts.FailOn)
	if err != nil {
		return err
	}
	minSeverity, err := parseSeverity("min-severity", opts.MinSeverity)
	if err != nil {
		return err
	}
	targets, err := resolveTargets(opts)
	if err != nil {
		return err
	}
	methods, err := resolveMethods(opts.Methods)
	if err != nil {
		return err
	}
	supplied, err := suppliedOrigins(opts)
	if err != nil {
		return err
	}
	if opts.NoGenerate && len(supplied) == 0 {
		return fmt.Errorf("--no-generate needs at least one --origin or --origins-file entry")
	}

	out, err := createWriter(opts)
	if err != nil {
		return fmt.Errorf("creating output writer: %w", err)
	}
	defer out.Close()

	if err := out.WriteHeader(); err != nil {
		return err
	}

	if !opts.Quiet {
		printBanner(opts, len(targets), len(supplied), methods)
	}

	var throttleLog io.Writer
	if !opts.Quiet {
		throttleLog = os.Stderr
	}

	s := &scan{
		opts:      opts,
		methods:   methods,
		supplied:  supplied,
		chain:     buildChain(opts, minSeverity),
		out:       out,
		throttler: scanner.NewThrottler(opts.Delay, opts.AdaptiveThrottle, throttleLog),
	}
	if opts.OnResultCmd != "" {
		s.hook = hook.NewRunner(opts.OnResultCmd, opts.Quiet)
	}

	if opts.ResumeFile != "" {
		if s.resume, err = resume.Open(opts.ResumeFile); err != nil {
			return err
		}
	}

	pauser, cleanup := startStdinToggle(opts.Quiet)
	defer cleanup()
	s.pauser = pauser

	s.progress = output.NewProgress(os.Stderr, 0, opts.Quiet)
	s.progress.Start()
	startTime := time.Now()

	failed := 0
	for idx, target := range targets {
		if len(targets) > 1 && !opts.Quiet {
			s.progress.ClearLine()
			fmt.Fprintf(os.Stderr, "[*] Target %d/%d: %s\n", idx+1, len(targets), target)
			s.progress.Redraw()
		}
		targetOpts := *opts
		targetOpts.URL = target
		if err := s.runTarget(ctx, &targetOpts); err != nil {
			if ctx.Err() != nil {
				break
			}
			failed++
			s.progress.ClearLine()
			fmt.Fprintf(os.Stderr, "[!] Error scanning %s: %v\n", target, err)
			s.progress.Redraw()
		}
	}

	s.finishResume(ctx)
	s.progress.Stop()

	s.stats.Duration = time.Since(startTime) - s.pauser.PausedDuration()
	if s.stats.Duration.Seconds() > 0 {
		s.stats.RequestsPerSec = float64(s.stats.TotalRequests) / s.stats.Duration.Seconds()
	}
	if err := out.WriteFooter(s.stats); err != nil {
		return err
	}
	if (opts.OutputFormat == "text" || opts.OutputFormat == "") && !opts.Quiet {
		output.PrintFindings(os.Stderr, s.reported)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d targets could not be scanned", ErrTargetFailed, failed, len(targets))
	}
	if failOn > cors.SeverityNone && s.worst >= failOn {
		return fmt.Errorf("%w: worst finding is %s", ErrFindings, s.worst)
	}
	return nil
}

func (s *scan) runTarget(ctx context.Context, opts *config.Options) error {
	req, err := scanner.NewRequester(opts)
	if err != nil {
		return fmt.Errorf("creating requester: %w", err)
	}

	probes := s.supplied
	if !opts.NoGenerate {
		attacker := opts.AttackerDomain
		if attacker == "" {
			attacker = origins.DefaultAttackerDomain
		}
		probes = origins.Merge(origins.Generate(req.Target(), attacker), s.supplied)
	}
	items := expandItems(probes, s.methods)

	var resumeState *resume.State
	if s.resume != nil {
		resumeState = s.resume.Target(opts.URL, len(items))
		before := len(items)
		items = resumeState.FilterRemaining(items)
		if skipped := before - len(items); skipped > 0 {
			s.logf("[+] Resuming %s: skipping %d already completed probes\n", opts.URL, skipped)
		}
	}

	if len(items) == 0 {
		s.logf("[+] All probes against %s already completed\n", opts.URL)
		if s.resume != nil {
			s.resume.Finish(opts.URL)
		}
		return nil
	}

	s.progress.AddTotal(len(items))
	s.stats.TotalRequests += len(items)

	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := scanner.RunWorkerPool(poolCtx, req, items, scanner.WorkerConfig{
		Threads:   opts.Threads,
		Throttler: s.throttler,
		Pauser:    s.pauser,
		Probe: scanner.ProbeConfig{
			RequestHeaders: opts.RequestHeaders,
			Credentials:    opts.Credentials,
			Actual:         opts.ActualRequest,
		},
	})

	for result := range results {
		if err := s.handle(ctx, &result); err != nil {
			cancel()
			for range results {
			}
			return err
		}
		if resumeState != nil && result.Error == nil {
			resumeState.MarkCompleted(result.WorkItem)
		}
	}

	if s.resume != nil && ctx.Err() == nil {
		s.resume.Finish(opts.URL)
	}
	return ctx.Err()
}

// finishResume saves the progress of unfinished targets, or removes the
// resume file once every target has completed.
func (s *scan) finishResume(ctx context.Context) {
	if s.resume == nil {
		return
	}
	if ctx.Err() == nil && s.resume.Pending() == 0 {
		_ = s.resume.Remove()
		return
	}
	if err := s.resume.Save(); err != nil {
		s.logf("[!] Could not save progress: %v\n", err)
		return
	}
	if ctx.Err() != nil {
		s.logf("[*] Progress saved to %s, resume with --resume-file\n", s.opts.ResumeFile)
	}
}

// handle filters, writes and hooks one result.
func (s *scan) handle(ctx context.Context, result *scanner.ScanResult) error {
	s.progress.Increment()

	if result.Error != nil {
		s.stats.ErrorCount++
		s.progress.IncrementErrors()
		return nil
	}

	if filtered, reason := s.chain.Apply(result); filtered {
		result.Filtered = true
		result.FilterReason = reason
		s.stats.FilteredCount++
		s.progress.IncrementFiltered()
		return nil
	}

	if len(result.Verdict.Findings) > 0 {
		s.stats.FindingCount++
		s.progress.IncrementFindings()
	}
	s.worst = max(s.worst, result.Verdict.MaxSeverity())

	s.progress.ClearLine()
	err := s.out.WriteResult(result)
	s.progress.Redraw()
	if err != nil {
		return err
	}

	if s.hook != nil {
		s.hook.Run(ctx, result)
	}
	s.reported = append(s.reported, result)
	return nil
}

func (s *scan) logf(format string, args ...any) {
	if s.opts.Quiet {
		return
	}
	s.progress.ClearLine()
	fmt.Fprintf(os.Stderr, format, args...)
	s.progress.Redraw()
}

// resolveTargets builds the list of URLs to scan from -u and -l. Lines of
// the URL file without a scheme are taken as https hosts.
func resolveTargets(opts *config.Options) ([]string, error) {
	var targets []string

	if opts.URL != "" {
		if err := checkTarget(opts.URL); err != nil {
			return nil, err
		}
		targets = append(targets, opts.URL)
	}

	if opts.URLsFile != "" {
		f, err := os.Open(opts.URLsFile)
		if err != nil {
			return nil, fmt.Errorf("opening URLs file: %w", err)
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for n := 1; sc.Scan(); n++ {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if !strings.Contains(line, "://") {
				line = "https://" + line
			}
			if err := checkTarget(line); err != nil {
				return nil, fmt.Errorf("%s line %d: %w", opts.URLsFile, n, err)
			}
			targets = append(targets, line)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("reading URLs file: %w", err)
		}
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets specified (-u, -l or -r)")
	}
	return targets, nil
}

// checkTarget accepts valid URLs that can be probed over HTTP.
func checkTarget(target string) error {
	u, err := validate.URL(target)
	if err != nil {
		return fmt.Errorf("%q: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q: scheme %q is not http or https", validate.ErrInvalidURL, target, u.Scheme)
	}
	return nil
}

// resolveMethods validates the requested methods and drops duplicates.
// Methods are matched exactly, so "get" is rejected rather than guessed.
func resolveMethods(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return []string{"GET"}, nil
	}
	methods := make([]string, 0, len(requested))
	for _, m := range requested {
		if !validate.IsValidHTTPMethod(m) {
			return nil, fmt.Errorf("%w: %q (one of %s)", validate.ErrInvalidMethod, m, strings.Join(validate.Methods(), ", "))
		}
		if !slices.Contains(methods, m) {
			methods = append(methods, m)
		}
	}
	return methods, nil
}

// suppliedOrigins collects --origin values and the --origins-file list.
func suppliedOrigins(opts *config.Options) ([]origins.Probe, error) {
	probes, err := origins.Parse(opts.Origins)
	if err != nil {
		return nil, fmt.Errorf("--origin: %w", err)
	}
	if opts.OriginsFile != "" {
		fromFile, err := origins.Load(opts.OriginsFile)
		if err != nil {
			return nil, fmt.Errorf("loading origins file: %w", err)
		}
		probes = origins.Merge(probes, fromFile)
	}
	return probes, nil
}

func parseSeverity(flag, value string) (cors.Severity, error) {
	if value == "" {
		return cors.SeverityNone, nil
	}
	sev, err := cors.ParseSeverity(value)
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", flag, err)
	}
	return sev, nil
}

func buildChain(opts *config.Options, minSeverity cors.Severity) *filter.Chain {
	chain := filter.NewChain()
	if len(opts.IncludeStatus) > 0 || len(opts.ExcludeStatus) > 0 {
		chain.Add(filter.NewStatusFilter(opts.IncludeStatus, opts.ExcludeStatus))
	}
	if minSeverity > cors.SeverityNone {
		chain.Add(filter.NewSeverityFilter(minSeverity))
	}
	if opts.AllowedOnly {
		chain.Add(filter.NewAllowedFilter())
	}
	// Last, so only results that survived the other filters count as seen.
	if opts.MaxDuplicates > 0 {
		chain.Add(filter.NewDuplicateFilter(opts.MaxDuplicates))
	}
	return chain
}

func createWriter(opts *config.Options) (output.Writer, error) {
	var (
		w   output.Writer
		err error
	)
	switch opts.OutputFormat {
	case "json":
		w, err = output.NewJSONWriter(opts.OutputFile)
	case "csv":
		w, err = output.NewCSVWriter(opts.OutputFile)
	case "text", "":
		w, err = output.NewTextWriter(opts.OutputFile, opts.NoColor, opts.Quiet)
	default:
		return nil, fmt.Errorf("unknown output format %q (text, json, csv)", opts.OutputFormat)
	}
	if err != nil {
		return nil, err
	}

	if opts.SortBy != "" {
		if !slices.Contains(output.SortKeys, opts.SortBy) {
			w.Close()
			return nil, fmt.Errorf("unknown sort key %q (%s)", opts.SortBy, strings.Join(output.SortKeys, ", "))
		}
		w = output.NewSortedWriter(w, opts.SortBy)
	}
	return w, nil
}

func expandItems(probes []origins.Probe, methods []string) []scanner.WorkItem {
	items := make([]scanner.WorkItem, 0, len(probes)*len(methods))
	for _, p := range probes {
		for _, m := range methods {
			items = append(items, scanner.WorkItem{Origin: p.Origin, Kind: p.Kind, Method: m})
		}
	}
	return items
}

func printBanner(opts *config.Options, targets, supplied int, methods []string) {
	const (
		cyan   = "\033[36m"
		white  = "\033[97m"
		dim    = "\033[2m"
		green  = "\033[32m"
		red    = "\033[31m"
		yellow = "\033[33m"
		reset  = "\033[0m"
	)

	c, w, d, g, r, y, rs := cyan, white, dim, green, red, yellow, reset
	if opts.NoColor {
		c, w, d, g, r, y, rs = "", "", "", "", "", "", ""
	}

	fmt.Fprintf(os.Stderr, `
%s   ___ ___  ___  ___ _____       _           %s
%s  / __/ _ \| _ \/ __|_   _|__ __| |_ ___ _ _ %s
%s | (_| (_) |   /\__ \ | |/ -_|_-<  _/ -_) '_|%s
%s  \___\___/|_|_\|___/ |_|\___/__/\__\___|_|  %s %sv%s%s
%s    Cross-Origin Resource Sharing probe       %s
`,
		c, rs,
		c, rs,
		c, rs,
		c, rs, d, version.Version, rs,
		w, rs,
	)

	onOff := func(b bool) string {
		if b {
			return g + "ON" + rs
		}
		return r + "OFF" + rs
	}

	target := opts.URL
	if targets > 1 || target == "" {
		target = fmt.Sprintf("%d targets", targets)
	}
	originSummary := fmt.Sprintf("%d supplied", supplied)
	if !opts.NoGenerate {
		originSummary += " + generated"
	}

	fmt.Fprintf(os.Stderr, "%s  ──────────────────────────────────────%s\n", d, rs)
	fmt.Fprintf(os.Stderr, "  %sTarget:%s       %s%s%s\n", d, rs, w, target, rs)
	fmt.Fprintf(os.Stderr, "  %sThreads:%s      %s%d%s\n", d, rs, y, opts.Threads, rs)
	fmt.Fprintf(os.Stderr, "  %sOrigins:%s      %s%s%s\n", d, rs, w, originSummary, rs)
	fmt.Fprintf(os.Stderr, "  %sMethods:%s      %s%s%s\n", d, rs, w, strings.Join(methods, ", "), rs)
	if len(opts.RequestHeaders) > 0 {
		fmt.Fprintf(os.Stderr, "  %sHeaders:%s      %s%s%s\n", d, rs, w, strings.Join(opts.RequestHeaders, ", "), rs)
	}
	fmt.Fprintf(os.Stderr, "  %sCredentials:%s  %s\n", d, rs, onOff(opts.Credentials))
	fmt.Fprintf(os.Stderr, "  %sActual:%s       %s\n", d, rs, onOff(opts.ActualRequest))
	fmt.Fprintf(os.Stderr, "%s  ──────────────────────────────────────%s\n\n", d, rs)
}
