package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Diduck/notion-idea-pipeline/internal/config"
	"github.com/Diduck/notion-idea-pipeline/internal/output"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var (
	configPath  string
	logLevelArg string
	jsonOutput  bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "ideasync",
	Short:         "Send idea lines to a Notion database",
	Long:          "Collect one-line ideas in three sections (MON MOI, MES RÉSULTATS, MON PRODUIT) and create one Notion page per line.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		output.Writer = cmd.OutOrStdout()

		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		if logLevelArg != "" {
			loaded.Log.Level = logLevelArg
		}
		cfg = loaded
		logger = newLogger(cmd.ErrOrStderr(), cfg.Log)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file path (overrides IDEASYNC_CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevelArg, "log-level", "",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(credentialsCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(importCmd)
}

func loadConfig() (*config.Config, error) {
	if strings.TrimSpace(configPath) != "" {
		return config.LoadPath(configPath, true)
	}
	return config.Load()
}

// newLogger writes to stderr so command output on stdout stays parseable.
func newLogger(w io.Writer, logCfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(logCfg.Level)}
	if strings.EqualFold(logCfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		output.Writer = os.Stderr
		output.Error("%v", err)
		os.Exit(1)
	}
}
