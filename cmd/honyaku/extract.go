package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/jackzampolin/honyaku/internal/extract"
	"github.com/jackzampolin/honyaku/internal/output"
	"github.com/jackzampolin/honyaku/internal/translate"
)

var extractFlags struct {
	backend string
	model   string
	method  string
	think   bool
	skip    []string
	out     string
	dryRun  bool
}

var extractCmd = &cobra.Command{
	Use:   "extract <image-dir|scan.pdf>",
	Short: "Transcribe the Japanese text of scanned pages",
	Long: `Transcribe the text of page images with a vision model. The input is a
folder of images, read in natural file name order, or a scanned PDF whose
page images are extracted first.

The result is one markdown file with a <page>NAME</page> header before the
text of every page.

Examples:
  honyaku extract ./scans --skip cover.jpg --skip credits.jpg
  honyaku extract volume1.pdf --backend gemini --method chain`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	f := extractCmd.Flags()
	f.StringVar(&extractFlags.backend, "backend", "", "backend name (default: translation.backend)")
	f.StringVar(&extractFlags.model, "model", "", "vision model (default: first model the backend lists)")
	f.StringVar(&extractFlags.method, "method", "", "chain, batch or batch:N (default: translation.method)")
	f.BoolVar(&extractFlags.think, "think", false, "let the model reason before answering")
	f.StringArrayVar(&extractFlags.skip, "skip", nil, "page file name to leave out (repeatable)")
	f.StringVar(&extractFlags.out, "out", "", "output file (default: <home>/extractions/<source>.md)")
	f.BoolVar(&extractFlags.dryRun, "dry-run", false, "use the mock backend")

	rootCmd.AddCommand(extractCmd)
}

type extractResult struct {
	Source    string `json:"source" yaml:"source"`
	Output    string `json:"output" yaml:"output"`
	Pages     int    `json:"pages" yaml:"pages"`
	Skipped   int    `json:"skipped" yaml:"skipped"`
	Extracted int    `json:"extracted" yaml:"extracted"`
}

func (r extractResult) Text() string {
	return fmt.Sprintf("extracted %d of %d pages (%d skipped) from %s to %s",
		r.Extracted, r.Pages, r.Skipped, r.Source, r.Output)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	src := args[0]

	e, err := loadEnv()
	if err != nil {
		return err
	}
	cfg := e.cfg.Get()

	method, err := cfg.TranslationMethod()
	if err != nil {
		return err
	}
	if extractFlags.method != "" {
		if method, err = translate.ParseMethod(extractFlags.method); err != nil {
			return err
		}
	}

	scratch := e.home.ScratchDir(src)
	pages, err := extract.Load(src, scratch)
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)
	if len(pages) == 0 {
		return fmt.Errorf("no page images found in %s", src)
	}
	skipped := extract.Skip(pages, extractFlags.skip...)

	backend, err := selectBackend(newRegistry(cfg, extractFlags.dryRun), cfg, extractFlags.backend, extractFlags.dryRun)
	if err != nil {
		return err
	}
	model := extractFlags.model
	if model == "" {
		models, err := backend.ListModels(ctx)
		if err != nil {
			return err
		}
		if len(models) > 0 {
			model = models[0]
		}
	}

	ex := extract.New(extract.Config{
		Backend: backend,
		Model:   model,
		Method:  method,
		Think:   extractFlags.think,
		Retry:   cfg.RetryPolicy(),
		Logger:  logger,
	})
	runErr := ex.Run(ctx, pages)
	if errors.Is(runErr, context.Canceled) {
		logger.Warn("extraction interrupted, saving progress")
		runErr = nil
	}

	out := extractFlags.out
	if out == "" {
		out = e.home.ExtractionPath(src)
	}
	if err := writeOutput(out, extract.Render(pages)); err != nil {
		return multierr.Append(runErr, err)
	}

	res := extractResult{Source: src, Output: out, Pages: len(pages), Skipped: skipped}
	for _, p := range pages {
		if p.Complete {
			res.Extracted++
		}
	}
	return multierr.Append(runErr, output.Output(res))
}

// writeOutput writes text to path, creating parent directories.
func writeOutput(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
