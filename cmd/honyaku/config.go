package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/honyaku/internal/config"
	"github.com/jackzampolin/honyaku/internal/home"
	"github.com/jackzampolin/honyaku/internal/output"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Long: `Write the default configuration to <home>/config.yaml, or to --config.

Examples:
  honyaku config init
  honyaku config init --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		path := cfgFile
		if path == "" {
			path = h.ConfigPath()
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		logger.Info("wrote default configuration", "path", path)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show every configuration key with its current value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		return output.Output(entryList(e.cfg.List()))
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key in the config file",
	Long: `Set a configuration key and write the config file.

Examples:
  honyaku config set translation.backend gemini
  honyaku config set backends.gemini.enabled true
  honyaku config set backends.lan.base_url http://10.0.0.2:8000/v1/`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		if err := e.cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		logger.Info("configuration updated", "key", args[0], "path", e.cfg.Path())
		return nil
	},
}

type entryList []config.Entry

func (l entryList) Text() string {
	var sb strings.Builder
	for _, e := range l {
		fmt.Fprintf(&sb, "%-28s %v", e.Key, e.Value)
		if e.Description != "" {
			fmt.Fprintf(&sb, "  # %s", e.Description)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing config file")

	configCmd.AddCommand(configInitCmd, configListCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
