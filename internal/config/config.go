package config

import "time"

// Options holds all configuration for a corstester scan.
type Options struct {
	// Target
	URL         string `yaml:"url"`
	URLsFile    string `yaml:"urls-file"`
	RequestFile string `yaml:"request-file"` // raw HTTP request (e.g. Burp export)

	// Probes
	Origins        []string `yaml:"origin"`
	OriginsFile    string   `yaml:"origins-file"`
	AttackerDomain string   `yaml:"attacker-domain"`
	NoGenerate     bool     `yaml:"no-generate"`
	Methods        []string `yaml:"methods"`
	RequestHeaders []string `yaml:"request-headers"` // names sent in Access-Control-Request-Headers
	Credentials    bool     `yaml:"credentials"`
	ActualRequest  bool     `yaml:"actual"`

	// Performance
	Threads          int           `yaml:"threads"`
	Timeout          time.Duration `yaml:"timeout"`
	Delay            time.Duration `yaml:"delay"`
	AdaptiveThrottle bool          `yaml:"adaptive-throttle"`

	// Filtering
	IncludeStatus []int  `yaml:"include-status"`
	ExcludeStatus []int  `yaml:"exclude-status"`
	MinSeverity   string `yaml:"min-severity"`
	AllowedOnly   bool   `yaml:"allowed-only"`
	MaxDuplicates int    `yaml:"max-duplicates"` // identical denials shown before hiding; 0 = unlimited

	// Output
	OutputFile   string `yaml:"output"`
	OutputFormat string `yaml:"format"` // "text", "json", "csv"
	SortBy       string `yaml:"sort"`
	Quiet        bool   `yaml:"quiet"`
	NoColor      bool   `yaml:"no-color"`
	OnResultCmd  string `yaml:"on-result"`
	FailOn       string `yaml:"fail-on"`

	// State
	ResumeFile string `yaml:"resume-file"`

	// HTTP
	Headers         map[string]string `yaml:"header"`
	UserAgent       string            `yaml:"user-agent"`
	Proxy           string            `yaml:"proxy"`
	FollowRedirects bool              `yaml:"follow-redirects"`
	Insecure        bool              `yaml:"insecure"`
	BlockPrivate    bool              `yaml:"block-private"`
}

// ServerOptions configures the JSON API.
type ServerOptions struct {
	Listen         string        `yaml:"listen"`
	AllowedOrigins []string      `yaml:"allowed-origin"`
	CloseTimeout   time.Duration `yaml:"close-timeout"`
	Timeout        time.Duration `yaml:"timeout"`
	UserAgent      string        `yaml:"user-agent"`
	BlockPrivate   bool          `yaml:"block-private"`
	MaxBodyBytes   int64         `yaml:"max-body-bytes"`
}

// Defaults. Flags register these as their default values.
const (
	DefaultThreads      = 10
	DefaultTimeout      = 10 * time.Second
	DefaultListen       = ":8080"
	DefaultCloseTimeout = 3 * time.Second
	DefaultMaxBodyBytes = 64 << 10
	DefaultUserAgent    = "corstester/1.0"
)
