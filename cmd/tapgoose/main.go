// Package main provides the CLI entrypoint for tapgoose.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/tapgoose/internal/api"
	"github.com/verte-zerg/tapgoose/internal/config"
	"github.com/verte-zerg/tapgoose/internal/engine"
	"github.com/verte-zerg/tapgoose/internal/logging"
	"github.com/verte-zerg/tapgoose/internal/model"
	"github.com/verte-zerg/tapgoose/internal/session"
	"github.com/verte-zerg/tapgoose/internal/store"
)

const (
	defaultBaseURL = "http://localhost:3000"
	defaultTimeout = 15 * time.Second
	dotEnvFile     = ".env"
)

var (
	baseURL  string
	timeout  time.Duration
	tick     time.Duration
	logLevel string
	logFile  string

	cfg       model.Config
	logCloser io.Closer
)

var (
	errNotSignedIn    = errors.New("not signed in: run `tapgoose login`")
	errSessionExpired = errors.New("session expired: run `tapgoose login`")
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	closeLog()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "tapgoose",
		Short:             "Tap the goose from your terminal",
		SilenceUsage:      true,
		SilenceErrors:     false,
		PersistentPreRunE: loadSettings,
		RunE:              runTUICmd,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&baseURL, "base-url", defaultBaseURL, "API server base URL")
	flags.DurationVar(&timeout, "timeout", defaultTimeout, "HTTP request timeout")
	flags.DurationVar(&tick, "tick", engine.DefaultTick, "countdown refresh period")
	flags.StringVar(&logLevel, "log-level", logging.DefaultLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&logFile, "log-file", config.DefaultLogPath(), "log file path")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newWhoamiCmd())
	rootCmd.AddCommand(newRoundsCmd())
	rootCmd.AddCommand(newRoundCmd())
	rootCmd.AddCommand(newCreateCmd())
	rootCmd.AddCommand(newTapCmd())
	rootCmd.AddCommand(newWatchCmd())

	return rootCmd
}

// loadSettings resolves flags over environment over the config file, then
// sets up logging.
func loadSettings(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "config" {
		return nil
	}
	if err := config.LoadDotEnv(dotEnvFile); err != nil {
		return err
	}
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	config.ApplyEnv(&fileCfg)

	applyStringConfig(cmd, "base-url", &baseURL, fileCfg.Server.BaseURL)
	if err := applyDurationConfig(cmd, "timeout", &timeout, fileCfg.Server.Timeout); err != nil {
		return err
	}
	if err := applyDurationConfig(cmd, "tick", &tick, fileCfg.UI.Tick); err != nil {
		return err
	}
	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)
	applyStringConfig(cmd, "log-file", &logFile, fileCfg.Log.File)

	cfg = model.Config{
		BaseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Timeout:  timeout,
		Tick:     tick,
		LogLevel: logLevel,
		LogFile:  logFile,
		DBPath:   config.DefaultDBPath(),
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	closer, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	closeLog()
	logCloser = closer
	log.Debug().
		Str("command", cmd.Name()).
		Str("base_url", cfg.BaseURL).
		Dur("timeout", cfg.Timeout).
		Dur("tick", cfg.Tick).
		Msg("settings loaded")
	return nil
}

func closeLog() {
	if logCloser == nil {
		return
	}
	if err := logCloser.Close(); err != nil {
		logErrf("failed to close log file: %v\n", err)
	}
	logCloser = nil
}

func validateConfig(cfg model.Config) error {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("--base-url must be an http(s) URL with a host, got %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("--timeout must be > 0")
	}
	if cfg.Tick <= 0 {
		return fmt.Errorf("--tick must be > 0")
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	return nil
}

// clientEnv bundles what the API commands need: the session store and an
// API client for the configured server.
type clientEnv struct {
	store   *store.Store
	session *session.Manager
	client  *api.Client
}

func openClientEnv(ctx context.Context) (*clientEnv, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	mgr, err := session.NewManager(ctx, st)
	if err != nil {
		if cerr := st.Close(); cerr != nil {
			// Best-effort close; the load error is reported.
			_ = cerr
		}
		return nil, err
	}
	return &clientEnv{
		store:   st,
		session: mgr,
		client:  api.New(cfg.BaseURL, api.WithTimeout(cfg.Timeout)),
	}, nil
}

func (e *clientEnv) Close() {
	if cerr := e.store.Close(); cerr != nil {
		logErrf("failed to close db: %v\n", cerr)
	}
}

func (e *clientEnv) token() (string, error) {
	if !e.session.IsAuthenticated() {
		return "", errNotSignedIn
	}
	return e.session.Get().Token, nil
}

// check clears the stored session when the server rejected its token.
func (e *clientEnv) check(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if !api.IsUnauthorized(err) {
		return err
	}
	log.Warn().Err(err).Msg("token rejected, clearing session")
	if cerr := e.session.ClearAuth(ctx); cerr != nil {
		logErrf("failed to clear session: %v\n", cerr)
	}
	return errSessionExpired
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyDurationConfig(cmd *cobra.Command, name string, target *time.Duration, value *string) error {
	if value == nil {
		return nil
	}
	if cmd.Flags().Changed(name) {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(*value))
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", name, *value, err)
	}
	*target = d
	return nil
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# tapgoose configuration
# Uncomment a value to enable it. Environment variables (%s, %s,
# %s, %s, %s) override this file; CLI flags override both.

[server]
# base-url = %q     # API server base URL
# timeout = %q               # HTTP request timeout

[ui]
# tick = %q                   # Countdown refresh period

[log]
# level = %q               # debug, info, warn, error
# file = %q
`,
		config.EnvBaseURL,
		config.EnvTimeout,
		config.EnvTick,
		config.EnvLogLevel,
		config.EnvLogFile,
		defaultBaseURL,
		defaultTimeout.String(),
		engine.DefaultTick.String(),
		logging.DefaultLevel,
		config.DefaultLogPath(),
	)
}

func printLines(cmd *cobra.Command, lines ...string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
