package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrPrayat/DA235X/internal/config"
	"github.com/MrPrayat/DA235X/internal/home"
	"github.com/MrPrayat/DA235X/internal/llmcall"
	"github.com/MrPrayat/DA235X/internal/output"
	"github.com/MrPrayat/DA235X/internal/pipeline"
	"github.com/MrPrayat/DA235X/internal/prompts"
	"github.com/MrPrayat/DA235X/internal/providers"
	"github.com/MrPrayat/DA235X/internal/schema"
	"github.com/MrPrayat/DA235X/internal/svcctx"
	"github.com/MrPrayat/DA235X/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

// skipServices marks commands that run without config or providers.
const skipServices = "skip-services"

var rootCmd = &cobra.Command{
	Use:   "besiktning",
	Short: "Extract structured data from Swedish housing inspection reports",
	Long: `besiktning turns scanned housing inspection reports (PDF) into structured
records using vision language models, and scores those records against
hand-labeled ground truth.

The pipeline:
  - Downloads each report and renders its pages
  - Stops at the trailing appendix (bilagor) found by a page classifier
  - Extracts the schema fields from every remaining page
  - Combines the page fragments into one record per report
  - Tracks tokens and cost per document and per batch`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or <home>/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "besiktning home directory (default: ~/.besiktning)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml, json or text",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "debug, info, warn or error (default: config log_level)",
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := output.SetFormat(outputFormat); err != nil {
			return err
		}
		if cmd.Annotations[skipServices] == "true" {
			return nil
		}
		svcs, err := loadServices(cmd)
		if err != nil {
			return err
		}
		cmd.SetContext(svcctx.WithServices(cmd.Context(), svcs))
		return nil
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if svcs := svcctx.ServicesFrom(cmd.Context()); svcs != nil && svcs.Registry != nil {
			svcs.Registry.Close()
		}
	}

	rootCmd.AddCommand(versionCmd)
}

// loadServices wires config, providers, prompts and logging for a command.
func loadServices(cmd *cobra.Command) (*svcctx.Services, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}

	mgr, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	level := logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	logger, err := newLogger(level)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	mgr.SetLogger(logger)

	s, err := schema.Load(h.Resolve(cfg.SchemaFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	resolver := prompts.NewResolver(prompts.NewStore(h.PromptsDir(), logger), logger)
	pipeline.RegisterPrompts(resolver)

	registry := providers.NewRegistry()
	registry.SetLogger(logger)
	registry.Reload(cfg.ToProviderRegistryConfig())

	// Provider settings follow config edits while a long batch runs.
	if mgr.ConfigFile() != "" {
		mgr.OnChange(func(c *config.Config) {
			registry.Reload(c.ToProviderRegistryConfig())
		})
		mgr.WatchConfig()
	}

	var calls *llmcall.Recorder
	if cfg.Extraction.TraceCalls {
		calls = llmcall.NewRecorder(h.CallLogPath(), logger)
	}

	return &svcctx.Services{
		Config:   mgr,
		Registry: registry,
		Home:     h,
		Schema:   s,
		Prompts:  resolver,
		Calls:    calls,
		Logger:   logger,
	}, nil
}

func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l = slog.LevelDebug
	case "", "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}

// services returns the command's services; PersistentPreRunE guarantees
// they exist for every command that does not skip them.
func services(cmd *cobra.Command) *svcctx.Services {
	return svcctx.ServicesFrom(cmd.Context())
}
