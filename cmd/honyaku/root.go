package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/honyaku/internal/config"
	"github.com/jackzampolin/honyaku/internal/home"
	"github.com/jackzampolin/honyaku/internal/output"
	"github.com/jackzampolin/honyaku/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
	logFormat    string

	logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "honyaku",
	Short: "Translate Japanese light novel EPUBs with a language model",
	Long: `Honyaku translates Japanese EPUB books into English with a local or hosted
language model and rebuilds a translated EPUB from the results.

The workflow:
  - translate: split each chapter into units and translate them, exporting
    one part-tagged markdown file per chapter
  - build: rebuild an EPUB from the original book and the translated files
  - extract: transcribe scanned page images or PDFs before translating`,
	Version:      version.GitRelease,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		output.SetFormat(outputFormat)
		l, err := newLogger(logLevel, logFormat)
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ~/.honyaku/config.yaml or ./config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "honyaku home directory (default: ~/.honyaku)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "text", "output format: text, yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn or error",
	)
	rootCmd.PersistentFlags().StringVar(
		&logFormat, "log-format", "text", "log format: text or json",
	)

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the stderr logger selected by the persistent flags.
func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", format)
	}
}

// env bundles what most commands need.
type env struct {
	home *home.Dir
	cfg  *config.Manager
}

// loadEnv resolves the home directory and loads configuration. The home
// config file is used when --config is not given and it exists.
func loadEnv() (*env, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	path := cfgFile
	if path == "" && h.ConfigExists() {
		path = h.ConfigPath()
	}
	mgr, err := config.NewManager(path)
	if err != nil {
		return nil, err
	}
	return &env{home: h, cfg: mgr}, nil
}
