package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/greg-hellings/forgeclient/pkg/config"
	"github.com/greg-hellings/forgeclient/pkg/forge"
)

// build-time override (e.g. -ldflags "-X main.version=1.2.3")
var version = "dev"

// Global (root-level) flag variables
var (
	flagVerbose   bool
	flagDebug     bool
	flagBackend   string
	flagToken     string
	flagBaseURL   string
	flagRemote    string
	flagConfig    string
	flagCacheFile string
	flagFormat    string
	flagTimeout   time.Duration
)

// baseTransport performs the HTTP attempts of every adapter. Tests point
// it at an httptest server.
var baseTransport http.RoundTripper

func main() {
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root Cobra command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forgeclient",
		Short: "Query GitHub and GitLab through one interface",
		Long: strings.TrimSpace(`
forgeclient - unified code hosting client

Reads repositories, issues, pull requests, branches and diffs from GitHub or
GitLab. The backend is taken from --backend, the config file's
default_backend, the --remote URL host, or whichever token is present in
the environment, in that order.`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initLogging()
			switch flagFormat {
			case "table", "json":
				return nil
			}
			return fmt.Errorf("unsupported format: %s (expected table or json)", flagFormat)
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose (info) logging")
	pf.BoolVar(&flagDebug, "debug", false, "Enable debug logging (overrides --verbose)")
	pf.StringVar(&flagBackend, "backend", "", "Backend to use: github|gitlab (default: detected)")
	pf.StringVar(&flagToken, "token", "", "API token (default: resolved from environment or config)")
	pf.StringVar(&flagBaseURL, "base-url", "", "REST API root, e.g. https://gitlab.example.com/api/v4/")
	pf.StringVar(&flagRemote, "remote", "", "Git remote URL used to detect the backend")
	pf.StringVar(&flagConfig, "config", "", "Config file (default: <user config dir>/forgeclient/config.yaml)")
	pf.StringVar(&flagCacheFile, "cache-file", "", "Persist the conditional request cache to this file")
	pf.StringVarP(&flagFormat, "format", "f", "table", "Output format: table|json")
	pf.DurationVar(&flagTimeout, "timeout", 30*time.Second, "Timeout for the whole command")
	cmd.Version = version

	cmd.AddCommand(
		newWhoamiCmd(),
		newRepoCmd(),
		newIssuesCmd(),
		newPullRequestsCmd(),
		newBranchesCmd(),
		newDiffCmd(),
		newRateLimitCmd(),
		newVersionCmd(),
	)

	return cmd
}

// newVersionCmd prints version info.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "forgeclient version: %s\n", version)
		},
	}
}

func initLogging() {
	var level slog.Level
	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	default:
		level = slog.LevelWarn
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging initialized", "level", level.String())
}

// loadConfig reads --config, or the default path when it exists.
func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		def, err := config.DefaultPath()
		if err != nil {
			slog.Debug("No default config location", "error", err)
			return nil, nil
		}
		if _, err := os.Stat(def); errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		path = def
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.Debug("Loaded config", "path", path)
	return cfg, nil
}

// openAdapter builds the adapter selected by the global flags and a
// context bounded by --timeout.
func openAdapter() (forge.Adapter, context.Context, context.CancelFunc, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if flagCacheFile != "" {
		if cfg == nil {
			cfg = &config.Config{}
		}
		cfg.Cache.Path = flagCacheFile
	}

	factory := forge.NewFactory(cfg, slog.Default())
	factory.BaseTransport = baseTransport
	factory.UserAgent = "forgeclient/" + version

	adapter, err := factory.Create(forge.Options{
		Backend:   forge.Backend(strings.ToLower(flagBackend)),
		Token:     flagToken,
		BaseURL:   flagBaseURL,
		RemoteURL: flagRemote,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
	return adapter, ctx, cancel, nil
}

// resolveRepo turns a command line repository reference into an ID. A
// numeric argument is used as is; an owner/name path is looked up.
func resolveRepo(ctx context.Context, adapter forge.Adapter, arg string) (forge.ID, error) {
	id := forge.ParseID(arg)
	switch id.Kind() {
	case forge.IDNumeric:
		return id, nil
	case forge.IDSlug:
		repo, err := adapter.FindRepository(ctx, arg)
		if err != nil {
			return forge.ID{}, err
		}
		return repo.ID, nil
	}
	return forge.ID{}, errors.New("repository reference cannot be empty")
}
