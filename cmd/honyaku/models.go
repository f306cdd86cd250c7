package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/honyaku/internal/output"
)

var modelsBackend string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models a backend offers",
	Long: `List the models of a configured backend. The first model is the one
translate and extract select when --model is not given.

Examples:
  honyaku models
  honyaku models --backend gemini`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		cfg := e.cfg.Get()
		backend, err := selectBackend(newRegistry(cfg, false), cfg, modelsBackend, false)
		if err != nil {
			return err
		}
		models, err := backend.ListModels(cmd.Context())
		if err != nil {
			return err
		}
		return output.Output(modelList{Backend: backend.Name(), Models: models})
	},
}

func init() {
	modelsCmd.Flags().StringVar(&modelsBackend, "backend", "", "backend name (default: translation.backend)")
	rootCmd.AddCommand(modelsCmd)
}

type modelList struct {
	Backend string   `json:"backend" yaml:"backend"`
	Models  []string `json:"models" yaml:"models"`
}

func (m modelList) Text() string {
	return strings.Join(m.Models, "\n")
}
