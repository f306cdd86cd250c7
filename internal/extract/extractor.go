package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/honyaku/internal/providers"
	"github.com/jackzampolin/honyaku/internal/transcode"
	"github.com/jackzampolin/honyaku/internal/translate"
)

// Config configures an Extractor.
type Config struct {
	Backend providers.Backend
	Model   string
	Method  translate.Method
	Think   bool
	Retry   translate.RetryPolicy
	Logger  *slog.Logger

	// OnChunk, when set, receives streamed text per page index.
	OnChunk func(page int, chunk string)
}

// Extractor runs the extraction prompt over page images.
type Extractor struct {
	cfg    Config
	mu     sync.Mutex
	logger *slog.Logger
}

// New creates an Extractor.
func New(cfg Config) *Extractor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = translate.DefaultRetryPolicy()
	}
	return &Extractor{cfg: cfg, logger: cfg.Logger.With("component", "extract")}
}

// Run transcribes every page not marked Skip. Pages are scheduled with the
// configured method; the first failure cancels the rest.
func (e *Extractor) Run(ctx context.Context, pages []*Page) error {
	if e.cfg.Backend == nil {
		return translate.ErrNotConnected
	}
	if e.cfg.Model == "" {
		return translate.ErrNoModel
	}

	var todo []int
	for i, p := range pages {
		if !p.Skip {
			todo = append(todo, i)
		}
	}
	e.logger.Info("extracting", "pages", len(todo), "skipped", len(pages)-len(todo), "method", e.cfg.Method.String())

	for _, stage := range e.cfg.Method.Plan(len(todo)) {
		g, gctx := errgroup.WithContext(ctx)
		for _, i := range stage {
			idx := todo[i]
			g.Go(func() error {
				return e.extractPage(gctx, idx, pages[idx])
			})
		}
		if err := g.Wait(); err != nil {
			e.cfg.Backend.ClearHistory()
			return err
		}
	}
	return nil
}

func (e *Extractor) extractPage(ctx context.Context, idx int, p *Page) error {
	req := &providers.StreamRequest{
		Model:  e.cfg.Model,
		Prompt: providers.ExtractionPrompt,
		Images: [][]byte{p.Image},
		Think:  e.cfg.Think,
	}

	_, err := e.cfg.Retry.Do(ctx, func(int) error {
		e.setText(p, "", false)
		return e.cfg.Backend.Stream(ctx, req, func(chunk string) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.mu.Lock()
			p.Text += chunk
			e.mu.Unlock()
			if e.cfg.OnChunk != nil {
				e.cfg.OnChunk(idx, chunk)
			}
			return nil
		})
	}, func(n uint, err error) {
		e.logger.Warn("backend unavailable, retrying", "page", p.Name, "attempt", n+1, "error", err)
	})
	if err != nil {
		return fmt.Errorf("extracting %s: %w", p.Name, err)
	}

	e.mu.Lock()
	p.Text = transcode.StripThink(p.Text)
	p.Complete = true
	e.mu.Unlock()
	e.logger.Debug("page extracted", "page", p.Name, "runes", len([]rune(p.Text)))
	return nil
}

func (e *Extractor) setText(p *Page, text string, complete bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p.Text = text
	p.Complete = complete
}
