package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agentworkforce/homepage/internal/contentsync"
	"github.com/agentworkforce/homepage/internal/logging"
	"github.com/agentworkforce/homepage/internal/temporal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	baseURL   string
	timezone  string
	logLevel  string
	logFormat string
	timeout   time.Duration

	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "homepagectl",
		Short: "Read, edit and mirror homepage content",
		Long: `homepagectl talks to a homepage content store.

Sections are always merged onto their defaults before they are shown, and
timestamps are displayed as ISO-8601 while the store keeps them in the
"YYYY-MM-DD HH:MM:SS" wire form.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(opts.logLevel, opts.logFormat)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.baseURL, "base-url", envOrDefault("HOMEPAGE_BASE_URL", "http://127.0.0.1:8080"), "content store base URL")
	flags.StringVar(&opts.timezone, "timezone", envOrDefault("HOMEPAGE_TIMEZONE", "UTC"), "IANA zone used for timestamps without an offset")
	flags.StringVar(&opts.logLevel, "log-level", envOrDefault("HOMEPAGE_LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", envOrDefault("HOMEPAGE_LOG_FORMAT", "console"), "log format (console or json)")
	flags.DurationVar(&opts.timeout, "timeout", durationEnv("HOMEPAGE_TIMEOUT", 15*time.Second), "HTTP request timeout")

	cmd.AddCommand(
		newGetCmd(opts),
		newSaveCmd(opts),
		newWatchCmd(opts),
		newCountdownCmd(opts),
		newMirrorCmd(opts),
		newTestimonialsCmd(opts),
	)
	return cmd
}

func (o *rootOptions) normalizer() (temporal.Normalizer, error) {
	name := strings.TrimSpace(o.timezone)
	if name == "" {
		return temporal.Normalizer{}, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return temporal.Normalizer{}, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return temporal.Normalizer{Location: loc}, nil
}

func (o *rootOptions) client() *contentsync.HTTPClient {
	return contentsync.NewHTTPClient(o.baseURL, &http.Client{Timeout: o.timeout})
}

func (o *rootOptions) session() (*contentsync.Session, error) {
	n, err := o.normalizer()
	if err != nil {
		return nil, err
	}
	return contentsync.NewSession(o.client(), contentsync.Options{
		Normalizer: n,
		Logger:     o.logger,
	})
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		zap.L().Warn("invalid duration env, using fallback", zap.String("name", name), zap.String("value", raw), zap.Duration("fallback", fallback))
		return fallback
	}
	return value
}

func floatEnv(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		zap.L().Warn("invalid float env, using fallback", zap.String("name", name), zap.String("value", raw), zap.Float64("fallback", fallback))
		return fallback
	}
	return value
}
