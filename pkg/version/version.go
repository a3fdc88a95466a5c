package version

// Version is set at build time via -ldflags "-X github.com/failwarn/corstester/pkg/version.Version=...".
var Version = "dev"
