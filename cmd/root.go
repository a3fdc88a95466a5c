package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/net/http/httpguts"

	"github.com/failwarn/corstester/internal/config"
	"github.com/failwarn/corstester/internal/reqparse"
	"github.com/failwarn/corstester/internal/runner"
	"github.com/failwarn/corstester/pkg/version"
)

// Exit codes.
const (
	exitError       = 1
	exitFindings    = 2
	exitInterrupted = 130
)

var (
	opts       config.Options
	configPath string
)

type flagGroup struct {
	title string
	flags []string
}

var helpGroups = []flagGroup{
	{"TARGET", []string{"url", "urls-file", "request-file"}},
	{"PROBES", []string{"origin", "origins-file", "attacker-domain", "no-generate", "methods", "request-headers", "credentials", "actual"}},
	{"HTTP", []string{"header", "user-agent", "timeout", "proxy", "follow-redirects", "insecure", "block-private"}},
	{"RATE-LIMIT", []string{"threads", "delay", "adaptive-throttle"}},
	{"FILTERS", []string{"include-status", "exclude-status", "min-severity", "allowed-only", "max-duplicates"}},
	{"OUTPUT", []string{"output", "format", "sort", "quiet", "no-color", "on-result", "fail-on"}},
	{"CONFIGURATION", []string{"config", "resume-file"}},
}

var rootCmd = &cobra.Command{
	Use:     "corstester -u <url> [flags]",
	Short:   "Probe a site's CORS policy the way a browser would",
	Version: version.Version,
	Long: `corstester sends the requests a browser makes for cross-origin calls
(simple requests and OPTIONS preflights) from a set of origins, and reports
which ones the target lets read its responses. Generated origins cover the
usual trust bugs: reflection, null, prefix/suffix matches, http downgrades
and subdomains.`,
	Example: `  corstester -u https://api.example.com
  corstester -u https://api.example.com --origin https://app.example.com -m GET,PUT
  corstester -u https://api.example.com --credentials --request-headers X-Token --actual
  corstester -l hosts.txt --min-severity medium -o findings.json --format json
  corstester -r burp.req --fail-on high
  corstester -u https://api.example.com --allowed-only --max-duplicates 3
  corstester -u https://api.example.com --resume-file scan.state
  corstester -u https://api.example.com --on-result "notify-send {severity} {origin}"
  corstester serve --listen :8080 --allowed-origin https://failwarn.com`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := applyConfigFile(cmd); err != nil {
			return err
		}
		// Replay a raw HTTP request (e.g. Burp export). Anything already set
		// by a flag or the config file wins.
		if opts.RequestFile != "" {
			parsed, err := reqparse.ParseFile(opts.RequestFile)
			if err != nil {
				return fmt.Errorf("parsing request file: %w", err)
			}
			seedFromRequest(cmd, parsed)
			if !opts.Quiet {
				fmt.Fprintf(os.Stderr, "[+] Loaded request from %s -> %s %s\n", opts.RequestFile, parsed.Method, opts.URL)
			}
		}
		if opts.URL == "" && opts.URLsFile == "" {
			_ = cmd.Help()
			fmt.Fprintln(os.Stderr)
			return fmt.Errorf("target required: use -u, -l or --request-file")
		}
		if opts.URL != "" && !strings.Contains(opts.URL, "://") {
			opts.URL = "https://" + opts.URL
		}
		if len(opts.IncludeStatus) > 0 && len(opts.ExcludeStatus) > 0 {
			return fmt.Errorf("--include-status and --exclude-status are mutually exclusive")
		}
		if opts.Threads < 1 {
			return fmt.Errorf("--threads must be at least 1")
		}
		if opts.MaxDuplicates < 0 {
			return fmt.Errorf("--max-duplicates must be >= 0")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return runner.Run(ctx, &opts)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (flags given on the command line win)")

	f := rootCmd.Flags()

	// Target
	f.StringVarP(&opts.URL, "url", "u", "", "Target URL")
	f.StringVarP(&opts.URLsFile, "urls-file", "l", "", "File with one URL per line (bare hosts get https://)")
	f.StringVarP(&opts.RequestFile, "request-file", "r", "", "Raw HTTP request file (e.g. Burp Suite export)")

	// Probes
	f.StringArrayVar(&opts.Origins, "origin", nil, "Origin to probe, repeatable (trusted unless it is generated)")
	f.StringVar(&opts.OriginsFile, "origins-file", "", "File with one origin per line")
	f.StringVar(&opts.AttackerDomain, "attacker-domain", "", "Domain used for generated hostile origins (default corstester.invalid)")
	f.BoolVar(&opts.NoGenerate, "no-generate", false, "Only probe the supplied origins")
	f.StringSliceVarP(&opts.Methods, "methods", "m", nil, "HTTP methods to probe (e.g. GET,PUT,DELETE)")
	f.StringSliceVar(&opts.RequestHeaders, "request-headers", nil, "Header names the page sets (forces a preflight)")
	f.BoolVar(&opts.Credentials, "credentials", false, "Probe as a credentialed request (cookies)")
	f.BoolVar(&opts.ActualRequest, "actual", false, "Send the actual request after an allowed preflight")

	// HTTP
	f.StringSliceVarP(new([]string), "header", "H", nil, "Custom headers (Key: Value)")
	f.StringVar(&opts.UserAgent, "user-agent", "", "Custom User-Agent string")
	f.DurationVar(&opts.Timeout, "timeout", config.DefaultTimeout, "HTTP request timeout")
	f.StringVar(&opts.Proxy, "proxy", "", "HTTP proxy URL")
	f.BoolVar(&opts.FollowRedirects, "follow-redirects", false, "Follow redirects on actual requests")
	f.BoolVarP(&opts.Insecure, "insecure", "k", false, "Skip TLS certificate verification")
	f.BoolVar(&opts.BlockPrivate, "block-private", false, "Refuse to connect to private, loopback and link-local addresses")

	// Performance
	f.IntVarP(&opts.Threads, "threads", "t", config.DefaultThreads, "Number of concurrent probes")
	f.DurationVar(&opts.Delay, "delay", 0, "Delay between requests per thread")
	f.BoolVar(&opts.AdaptiveThrottle, "adaptive-throttle", false, "Auto back-off on 429/rate limits")

	// Filtering
	f.VarP(&intSliceValue{target: &opts.IncludeStatus}, "include-status", "i", "Only show these status codes (comma-separated)")
	f.VarP(&intSliceValue{target: &opts.ExcludeStatus}, "exclude-status", "x", "Hide these status codes (comma-separated)")
	f.StringVar(&opts.MinSeverity, "min-severity", "", "Only show results with a finding at or above this severity")
	f.BoolVar(&opts.AllowedOnly, "allowed-only", false, "Only show origins the target allows")
	f.IntVar(&opts.MaxDuplicates, "max-duplicates", 0, "Hide identical denials after this many (0 shows all)")

	// Output
	f.StringVarP(&opts.OutputFile, "output", "o", "", "Output file path")
	f.StringVar(&opts.OutputFormat, "format", "text", "Output format: text, json, csv")
	f.StringVar(&opts.SortBy, "sort", "", "Sort results: severity, origin, method, status (buffers until scan completes)")
	f.BoolVarP(&opts.Quiet, "quiet", "q", false, "Minimal output")
	f.BoolVar(&opts.NoColor, "no-color", false, "Disable colored output")
	f.StringVar(&opts.OnResultCmd, "on-result", "", "Shell command to run for each result (receives JSON on stdin)")
	f.StringVar(&opts.FailOn, "fail-on", "", "Exit with status 2 if a finding reaches this severity")

	// Resume
	f.StringVar(&opts.ResumeFile, "resume-file", "", "File to save/load scan progress for resume")

	rootCmd.AddCommand(serveCmd)

	// Custom help: categorized flags. Subcommands keep cobra's default.
	defaultHelp := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != rootCmd {
			defaultHelp(cmd, args)
			return
		}
		w := os.Stderr
		fmt.Fprint(w, helpBanner(cmd.Version))
		fmt.Fprintf(w, "%s\n\nUsage:\n  %s\n  corstester serve [flags]\n", cmd.Long, cmd.UseLine())
		fmt.Fprintf(w, "\nExamples:\n%s\n", cmd.Example)
		fmt.Fprintf(w, "\nFlags:\n")
		for _, g := range helpGroups {
			fmt.Fprintf(w, "\n%s:\n", g.title)
			for _, name := range g.flags {
				f := cmd.Flags().Lookup(name)
				if f == nil {
					f = cmd.PersistentFlags().Lookup(name)
				}
				if f != nil {
					fmt.Fprintln(w, formatFlag(f))
				}
			}
		}
		fmt.Fprintln(w)
	})

	// Parse -H into a map first so the request file and config only fill
	// in headers the user did not give.
	rootCmd.PreRunE = chainPreRun(func(cmd *cobra.Command, args []string) error {
		headers, _ := f.GetStringSlice("header")
		if len(headers) == 0 {
			return nil
		}
		parsed, err := parseHeaders(headers)
		if err != nil {
			return err
		}
		opts.Headers = parsed
		return nil
	}, rootCmd.PreRunE)
}

// Execute runs the root command and exits with the scan's status.
func Execute() {
	err := rootCmd.Execute()
	switch {
	case err == nil:
		return
	case errors.Is(err, runner.ErrFindings):
		fmt.Fprintf(os.Stderr, "[!] %v\n", err)
		os.Exit(exitFindings)
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "[!] Interrupted")
		os.Exit(exitInterrupted)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
}

// applyConfigFile merges the --config file's scan section into opts.
func applyConfigFile(cmd *cobra.Command) error {
	if configPath == "" {
		return nil
	}
	file, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	file.ApplyScan(&opts, cmd.Flags().Changed)
	return nil
}

// seedFromRequest fills options the user left empty from a parsed request.
func seedFromRequest(cmd *cobra.Command, parsed *reqparse.ParsedRequest) {
	if opts.URL == "" && !cmd.Flags().Changed("url") {
		opts.URL = parsed.URL
	}
	if len(opts.Methods) == 0 {
		opts.Methods = []string{parsed.Method}
	}
	if len(opts.Origins) == 0 && parsed.Origin != "" {
		opts.Origins = []string{parsed.Origin}
	}
	if len(opts.RequestHeaders) == 0 {
		opts.RequestHeaders = parsed.RequestHeaders
	}
	if !cmd.Flags().Changed("credentials") && parsed.Credentials {
		opts.Credentials = true
	}

	if opts.Headers == nil {
		opts.Headers = make(map[string]string, len(parsed.Headers))
	}
	for key, val := range parsed.Headers {
		if strings.EqualFold(key, "User-Agent") {
			if opts.UserAgent == "" {
				opts.UserAgent = val
			}
			continue
		}
		// -H wins.
		if _, exists := opts.Headers[key]; !exists {
			opts.Headers[key] = val
		}
	}
}

func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		key, val, ok := strings.Cut(h, ":")
		key = strings.TrimSpace(key)
		if !ok || !httpguts.ValidHeaderFieldName(key) {
			return nil, fmt.Errorf("invalid header format %q, expected 'Key: Value'", h)
		}
		headers[key] = strings.TrimSpace(val)
	}
	return headers, nil
}

// chainPreRun combines two PreRunE functions.
func chainPreRun(first, second func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if first != nil {
			if err := first(cmd, args); err != nil {
				return err
			}
		}
		return second(cmd, args)
	}
}

// intSliceValue implements pflag.Value for comma-separated int slices.
type intSliceValue struct {
	target *[]int
}

func (v *intSliceValue) String() string {
	if v.target == nil || len(*v.target) == 0 {
		return ""
	}
	parts := make([]string, len(*v.target))
	for i, val := range *v.target {
		parts[i] = strconv.Itoa(val)
	}
	return strings.Join(parts, ",")
}

func (v *intSliceValue) Set(s string) error {
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid status code %q: %w", p, err)
		}
		if n < 100 || n > 599 {
			return fmt.Errorf("status code %d out of range", n)
		}
		*v.target = append(*v.target, n)
	}
	return nil
}

func (v *intSliceValue) Type() string { return "ints" }

func formatFlag(f *pflag.Flag) string {
	var left string
	if f.Shorthand != "" {
		left = fmt.Sprintf("-%s, --%s", f.Shorthand, f.Name)
	} else {
		left = fmt.Sprintf("    --%s", f.Name)
	}

	typ := f.Value.Type()
	if typ != "bool" {
		left += " " + typ
	}

	// Pad to fixed column width for aligned descriptions.
	const col = 36
	for len(left) < col {
		left += " "
	}

	right := f.Usage
	def := f.DefValue
	if def != "" && def != "false" && def != "0" && def != "0s" && def != "[]" {
		right += fmt.Sprintf(" (default %s)", def)
	}

	return "   " + left + right
}

func helpBanner(ver string) string {
	if ver != "dev" && ver != "" && !strings.HasPrefix(ver, "v") {
		ver = "v" + ver
	}
	return fmt.Sprintf(`
   ___ ___  ___  ___ _____       _
  / __/ _ \| _ \/ __|_   _|__ __| |_ ___ _ _
 | (_| (_) |   /\__ \ | |/ -_|_-<  _/ -_) '_|
  \___\___/|_|_\|___/ |_|\___/__/\__\___|_|   %s

`, ver)
}
