package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/jackzampolin/honyaku/internal/config"
	"github.com/jackzampolin/honyaku/internal/document"
	"github.com/jackzampolin/honyaku/internal/epub"
	"github.com/jackzampolin/honyaku/internal/home"
	"github.com/jackzampolin/honyaku/internal/output"
	"github.com/jackzampolin/honyaku/internal/translate"
)

var translateFlags struct {
	backend   string
	model     string
	method    string
	think     bool
	pause     time.Duration
	page      int
	part      int
	noAdvance bool
	out       string
	resume    string
	threshold int
	dryRun    bool
}

var translateCmd = &cobra.Command{
	Use:   "translate <book.epub>",
	Short: "Translate a Japanese EPUB into part-tagged markdown",
	Long: `Translate every chapter of an EPUB, starting at --page and advancing until
the end of the book. Each chapter is written to <out>/<chapter>.md with its
units wrapped in <part>N</part> tags.

Pages whose translation is not mostly ASCII letters and digits are marked as
errors and can be retried with --page and --no-advance, or one unit at a time
with --part. Interrupting the command saves every page translated so far.

Examples:
  honyaku translate book.epub
  honyaku translate book.epub --backend gemini --method chain
  honyaku translate book.epub --resume ~/.honyaku/translations/book
  honyaku translate book.epub --page 4 --part 2
  honyaku translate book.epub --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runTranslate,
}

func init() {
	f := translateCmd.Flags()
	f.StringVar(&translateFlags.backend, "backend", "", "backend name (default: translation.backend)")
	f.StringVar(&translateFlags.model, "model", "", "model name (default: first model the backend lists)")
	f.StringVar(&translateFlags.method, "method", "", "chain, batch or batch:N (default: translation.method)")
	f.BoolVar(&translateFlags.think, "think", true, "let the model reason before answering")
	f.DurationVar(&translateFlags.pause, "pause", 0, "delay between pages")
	f.IntVar(&translateFlags.page, "page", 0, "page to start from (0-based)")
	f.IntVar(&translateFlags.part, "part", -1, "retranslate a single unit of --page")
	f.BoolVar(&translateFlags.noAdvance, "no-advance", false, "translate only --page")
	f.StringVar(&translateFlags.out, "out", "", "export folder (default: <home>/translations/<book>)")
	f.StringVar(&translateFlags.resume, "resume", "", "export folder to resume from; complete pages are kept")
	f.IntVar(&translateFlags.threshold, "threshold", 0, "completion threshold percent (default: translation.threshold)")
	f.BoolVar(&translateFlags.dryRun, "dry-run", false, "use the mock backend")

	rootCmd.AddCommand(translateCmd)
}

// translateResult summarises a translate run.
type translateResult struct {
	Book       string `json:"book" yaml:"book"`
	Output     string `json:"output" yaml:"output"`
	Backend    string `json:"backend" yaml:"backend"`
	Model      string `json:"model" yaml:"model"`
	Pages      int    `json:"pages" yaml:"pages"`
	Resumed    int    `json:"resumed" yaml:"resumed"`
	Complete   int    `json:"complete" yaml:"complete"`
	Errors     int    `json:"errors" yaml:"errors"`
	Incomplete int    `json:"incomplete" yaml:"incomplete"`
	Finished   bool   `json:"finished" yaml:"finished"`
}

func (r translateResult) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s -> %s\n", r.Book, r.Output)
	fmt.Fprintf(&sb, "  backend:    %s (%s)\n", r.Backend, r.Model)
	fmt.Fprintf(&sb, "  pages:      %d (%d resumed)\n", r.Pages, r.Resumed)
	fmt.Fprintf(&sb, "  complete:   %d\n", r.Complete)
	fmt.Fprintf(&sb, "  errors:     %d\n", r.Errors)
	fmt.Fprintf(&sb, "  incomplete: %d", r.Incomplete)
	if r.Finished {
		sb.WriteString("\n  finished")
	}
	return sb.String()
}

func runTranslate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	bookPath := args[0]

	e, err := loadEnv()
	if err != nil {
		return err
	}
	cfg := e.cfg.Get()

	method, err := cfg.TranslationMethod()
	if err != nil {
		return err
	}
	if translateFlags.method != "" {
		if method, err = translate.ParseMethod(translateFlags.method); err != nil {
			return err
		}
	}
	settings := sessionSettings(cmd, cfg)

	book, err := epub.Open(bookPath)
	if err != nil {
		return err
	}
	doc, err := document.Load(book, home.Slug(bookPath), logger)
	if err != nil {
		return err
	}
	if len(doc.Pages) == 0 {
		return fmt.Errorf("%s has no text to translate", bookPath)
	}

	outDir := translateFlags.out
	if outDir == "" {
		outDir = e.home.TranslationDir(bookPath)
	}

	resumed := 0
	if translateFlags.resume != "" {
		if resumed, err = doc.ApplyExports(translateFlags.resume, settings.Threshold); err != nil {
			return err
		}
		settings.SkipComplete = true
		logger.Info("resuming", "from", translateFlags.resume, "pages", resumed)
	}

	reg := newRegistry(cfg, translateFlags.dryRun)
	backend, err := selectBackend(reg, cfg, translateFlags.backend, translateFlags.dryRun)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	var session *translate.Session
	session = translate.NewSession(doc,
		translate.WithLogger(logger),
		translate.WithMethod(method),
		translate.WithSettings(settings),
		translate.WithRetry(cfg.RetryPolicy()),
		translate.WithObserver(func(ev translate.Event) {
			switch ev.Kind {
			case translate.EventContent:
				logger.Debug("chunk", "page", ev.Page, "part", ev.Part, "runes", len([]rune(ev.Chunk)))
			case translate.EventPageComplete:
				// Incremental save so an interrupted run keeps finished pages
				if err := document.SavePage(outDir, session.Pages()[ev.Page]); err != nil {
					logger.Warn("failed to save page", "page", ev.Page, "error", err)
				}
			}
		}),
	)

	// Settings edited in the config file apply from the next page on;
	// explicit flags keep precedence.
	if cfgFile != "" || e.home.ConfigExists() {
		e.cfg.OnChange(func(c *config.Config) {
			reg.Reload(c.ToProviderRegistryConfig())
			st := sessionSettings(cmd, c)
			st.SkipComplete = settings.SkipComplete
			session.SetSettings(st)
			logger.Info("configuration reloaded", "think", st.Think, "pause", st.Pause, "threshold", st.Threshold)
		})
		e.cfg.WatchConfig()
	}

	if err := session.Connect(ctx, backend); err != nil {
		return err
	}
	if translateFlags.model != "" {
		if err := session.SelectModel(translateFlags.model); err != nil {
			return err
		}
	}

	runErr := runSession(ctx, session)
	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, translate.ErrAborted) {
		logger.Warn("translation interrupted, saving progress")
		runErr = nil
	}
	if err := session.SaveTo(outDir); err != nil {
		runErr = multierr.Append(runErr, fmt.Errorf("failed to save translation: %w", err))
	}

	conn, _ := session.Connection().(translate.Connected)
	counts := session.Document().Counts()
	res := translateResult{
		Book:       bookPath,
		Output:     outDir,
		Backend:    backend.Name(),
		Model:      conn.Model,
		Pages:      session.Len(),
		Resumed:    resumed,
		Complete:   counts[document.ActivityComplete],
		Errors:     counts[document.ActivityError],
		Incomplete: counts[document.ActivityIncomplete] + counts[document.ActivityActive],
		Finished:   session.Finished(),
	}
	if err := output.Output(res); err != nil {
		runErr = multierr.Append(runErr, err)
	}
	return runErr
}

// runSession dispatches on --part and --no-advance.
func runSession(ctx context.Context, s *translate.Session) error {
	page := translateFlags.page
	switch {
	case translateFlags.part >= 0:
		return s.TranslatePart(ctx, page, translateFlags.part)
	case translateFlags.noAdvance:
		return s.TranslatePage(ctx, page)
	default:
		return s.Translate(ctx, page)
	}
}

// sessionSettings merges the translation config with flags the user set.
func sessionSettings(cmd *cobra.Command, cfg *config.Config) translate.Settings {
	st := cfg.Settings()
	flags := cmd.Flags()
	if flags.Changed("think") {
		st.Think = translateFlags.think
	}
	if flags.Changed("pause") {
		st.Pause = translateFlags.pause
	}
	if flags.Changed("threshold") {
		st.Threshold = translateFlags.threshold
	}
	return st
}
