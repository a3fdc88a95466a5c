package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/failwarn/corstester/internal/config"
	"github.com/failwarn/corstester/internal/server"
)

var (
	serverOpts config.ServerOptions
	logLevel   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON check API",
	Long: `serve exposes single CORS checks over HTTP:

  POST /api/v1/check    {"url", "origin", "method", "headers", "credentials", "actual", "kind"}
  GET  /api/v1/methods  methods the checker accepts
  GET  /healthz
  GET  /metrics         Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			file, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			file.ApplyServer(&serverOpts, cmd.Flags().Changed)
		}

		var level slog.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
		log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		srv, err := server.New(serverOpts, log)
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return srv.ListenAndServe(ctx)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serverOpts.Listen, "listen", config.DefaultListen, "Address to listen on")
	f.StringSliceVar(&serverOpts.AllowedOrigins, "allowed-origin", nil, "Origins allowed to call the API from a browser")
	f.DurationVar(&serverOpts.CloseTimeout, "close-timeout", config.DefaultCloseTimeout, "Time given to in-flight checks on shutdown")
	f.DurationVar(&serverOpts.Timeout, "timeout", config.DefaultTimeout, "Timeout for requests to the checked URL")
	f.StringVar(&serverOpts.UserAgent, "user-agent", "", "User-Agent sent to checked URLs")
	f.BoolVar(&serverOpts.BlockPrivate, "block-private", true, "Refuse to check private, loopback and link-local addresses")
	f.Int64Var(&serverOpts.MaxBodyBytes, "max-body-bytes", config.DefaultMaxBodyBytes, "Largest accepted request body")
	f.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
}
