// Package translate drives a backend over the units of a document: it
// schedules calls per page, streams text into the document, retries
// transient failures and supports aborting everything in flight.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/honyaku/internal/document"
	"github.com/jackzampolin/honyaku/internal/providers"
)

// Settings tune a translation run. They are read-only while a run is active.
type Settings struct {
	Think        bool          // let the model reason before answering
	Pause        time.Duration // delay between auto-advanced pages
	Threshold    int           // completion heuristic, see document.IsEnglish
	SkipComplete bool          // auto-advance skips pages already complete
}

// DefaultSettings returns thinking enabled, no pause and the default
// completion threshold.
func DefaultSettings() Settings {
	return Settings{Think: true, Threshold: document.DefaultThreshold}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithMethod sets the scheduling method.
func WithMethod(m Method) Option {
	return func(s *Session) { s.method = m }
}

// WithSettings sets the run settings.
func WithSettings(st Settings) Option {
	return func(s *Session) { s.settings = st }
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(p RetryPolicy) Option {
	return func(s *Session) { s.retry = p }
}

// WithObserver registers a callback for session events. It is called
// outside the session lock, possibly from several goroutines.
func WithObserver(fn func(Event)) Option {
	return func(s *Session) { s.observer = fn }
}

// Session translates one document. All methods are safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	doc      *document.Document
	conn     Connection
	current  int
	finished bool
	epoch    uint64 // incremented by Abort

	method   Method
	settings Settings
	retry    RetryPolicy
	observer func(Event)
	handles  *Handles
	logger   *slog.Logger
}

// NewSession creates a disconnected session over doc. The session owns doc
// from here on; use Pages or Document for snapshots.
func NewSession(doc *document.Document, opts ...Option) *Session {
	s := &Session{
		doc:      doc,
		conn:     Disconnected{},
		method:   Batch(DefaultBatchSize),
		settings: DefaultSettings(),
		retry:    DefaultRetryPolicy(),
		handles:  NewHandles(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.settings.Threshold <= 0 {
		s.settings.Threshold = document.DefaultThreshold
	}
	s.logger = s.logger.With("component", "translate", "document", doc.Name)
	return s
}

// Connect lists the backend's models and selects the first one. On error
// the connection is left unchanged.
func (s *Session) Connect(ctx context.Context, backend providers.Backend) error {
	models, err := backend.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", backend.Name(), err)
	}
	conn := Connected{Backend: backend, Models: models}
	if len(models) > 0 {
		conn.Model = models[0]
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("connected", "backend", backend.Name(), "models", len(models), "model", conn.Model)
	return nil
}

// Disconnect aborts any work and drops the backend.
func (s *Session) Disconnect() {
	s.Abort()
	s.mu.Lock()
	s.conn = Disconnected{}
	s.mu.Unlock()
}

// Connection returns the current connection state.
func (s *Session) Connection() Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conn.(Connected); ok {
		c.Models = slices.Clone(c.Models)
		return c
	}
	return s.conn
}

// SelectModel chooses one of the connected backend's models.
func (s *Session) SelectModel(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conn.(Connected)
	if !ok {
		return ErrNotConnected
	}
	if !slices.Contains(c.Models, name) {
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	c.Model = name
	s.conn = c
	return nil
}

// Settings returns the current settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings replaces the settings. Units already in flight keep the
// settings they started with.
func (s *Session) SetSettings(st Settings) {
	if st.Threshold <= 0 {
		st.Threshold = document.DefaultThreshold
	}
	s.mu.Lock()
	s.settings = st
	s.mu.Unlock()
}

// Len returns the number of pages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.doc.Pages)
}

// Current returns the page the last run worked on.
func (s *Session) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Finished reports whether an auto-advancing run passed the last page.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Busy reports whether backend calls are in flight.
func (s *Session) Busy() bool {
	return s.handles.Len() > 0
}

// Pages returns a snapshot of every page.
func (s *Session) Pages() []*document.Page {
	return s.Document().Pages
}

// Document returns a snapshot of the document.
func (s *Session) Document() *document.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// SaveTo exports a snapshot of every page to dir.
func (s *Session) SaveTo(dir string) error {
	return s.Document().SavePages(dir)
}

// Translate translates page and every following page in turn, pausing
// Settings.Pause between pages. Passing the last page finishes the session.
func (s *Session) Translate(ctx context.Context, page int) error {
	if _, err := s.backend(); err != nil {
		return err
	}
	s.mu.Lock()
	s.finished = false
	epoch := s.epoch
	s.mu.Unlock()

	for p := page; ; p++ {
		if s.abortedSince(epoch) {
			return ErrAborted
		}
		if p >= s.Len() {
			s.finish()
			return nil
		}
		st := s.Settings()
		if st.SkipComplete && s.activity(p) == document.ActivityComplete {
			s.logger.Debug("skipping complete page", "page", p)
			continue
		}
		if err := s.runPage(ctx, p, nil); err != nil {
			return err
		}
		if p+1 < s.Len() && st.Pause > 0 {
			if err := s.pause(ctx, st.Pause); err != nil {
				return s.failRun(epoch, err)
			}
		}
	}
}

// TranslatePage translates a single page. An out-of-range page is ignored.
func (s *Session) TranslatePage(ctx context.Context, page int) error {
	if _, err := s.backend(); err != nil {
		return err
	}
	defer s.handles.Drain()
	if page < 0 || page >= s.Len() {
		return nil
	}
	return s.runPage(ctx, page, nil)
}

// TranslatePart re-translates one unit of a page, leaving the others as
// they are. An out-of-range page is ignored; an out-of-range part is an
// error.
func (s *Session) TranslatePart(ctx context.Context, page, part int) error {
	if _, err := s.backend(); err != nil {
		return err
	}
	defer s.handles.Drain()
	if page < 0 || page >= s.Len() {
		return nil
	}
	s.mu.Lock()
	n := len(s.doc.Pages[page].Text)
	s.mu.Unlock()
	if part < 0 || part >= n {
		s.logger.Error("invalid part", "page", page, "part", part, "parts", n)
		return fmt.Errorf("%w: page %d has %d parts, got %d", ErrInvalidPart, page, n, part)
	}
	return s.runPage(ctx, page, []int{part})
}

// Abort cancels every in-flight and pending call, returns active pages to
// incomplete and clears backend history. No text changes after Abort
// returns.
func (s *Session) Abort() {
	s.mu.Lock()
	cancelled := s.handles.Drain()
	s.epoch++
	for _, p := range s.doc.Pages {
		if p.Activity == document.ActivityActive {
			p.Activity = document.ActivityIncomplete
		}
	}
	var backend providers.Backend
	if c, ok := s.conn.(Connected); ok {
		backend = c.Backend
	}
	s.mu.Unlock()

	if backend != nil {
		backend.ClearHistory()
	}
	s.logger.Info("aborted", "cancelled", cancelled)
	s.emit(Event{Kind: EventAborted})
}

// backend returns the connected backend and model, or why there is none.
func (s *Session) backend() (Connected, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch c := s.conn.(type) {
	case Connected:
		if c.Model == "" {
			return Connected{}, ErrNoModel
		}
		return c, nil
	default:
		return Connected{}, ErrNotConnected
	}
}

func (s *Session) activity(page int) document.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Pages[page].Activity
}

func (s *Session) finish() {
	s.handles.Drain()
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.logger.Info("translation finished")
	s.emit(Event{Kind: EventFinished})
}

func (s *Session) pause(ctx context.Context, d time.Duration) error {
	ctx, release := s.handles.Bind(ctx)
	defer release()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runPage translates the given units of a page (all when parts is nil) and
// classifies the page. Any failure aborts the session.
func (s *Session) runPage(ctx context.Context, page int, parts []int) error {
	conn, err := s.backend()
	if err != nil {
		return err
	}

	s.mu.Lock()
	epoch := s.epoch
	p := s.doc.Pages[page]
	if parts == nil {
		parts = make([]int, len(p.Sections))
		for i := range parts {
			parts[i] = i
		}
	}
	sections := make([]string, len(parts))
	for i, part := range parts {
		p.Text[part] = ""
		sections[i] = p.Sections[part]
	}
	p.Activity = document.ActivityActive
	s.current = page
	s.mu.Unlock()

	logger := s.logger.With("page", page)
	logger.Info("translating page", "units", len(parts), "method", s.method.String(), "model", conn.Model)

	for _, stage := range s.method.Plan(len(parts)) {
		g, gctx := errgroup.WithContext(ctx)
		for _, i := range stage {
			part, section := parts[i], sections[i]
			g.Go(func() error {
				return s.translateUnit(gctx, conn, page, part, section)
			})
		}
		if err := g.Wait(); err != nil {
			return s.failRun(epoch, err)
		}
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrAborted
	}
	act := p.ClassifyThreshold(s.settings.Threshold)
	p.Activity = act
	s.mu.Unlock()

	logger.Info("page translated", "activity", act.String())
	s.emit(Event{Kind: EventPageComplete, Page: page, Activity: act})
	return nil
}

func (s *Session) translateUnit(ctx context.Context, conn Connected, page, part int, section string) error {
	ctx, release := s.handles.Bind(ctx)
	defer release()

	req := &providers.StreamRequest{
		Model:  conn.Model,
		System: providers.TranslationPrompt,
		Prompt: section,
		Think:  s.Settings().Think,
	}
	onChunk := func(chunk string) error {
		return s.appendChunk(ctx, page, part, chunk)
	}

	attempts, err := s.retry.Do(ctx, func(attempt int) error {
		if attempt > 1 {
			if err := s.clearUnit(ctx, page, part); err != nil {
				return err
			}
		}
		return conn.Backend.Stream(ctx, req, onChunk)
	}, func(n uint, err error) {
		s.logger.Warn("backend unavailable, retrying", "page", page, "part", part, "attempt", n+1, "error", err)
	})
	if err == nil {
		return nil
	}
	if providers.IsTransient(err) {
		return &RetryExhaustedError{Page: page, Part: part, Attempts: attempts, Err: err}
	}
	return fmt.Errorf("translating page %d part %d: %w", page, part, err)
}

// appendChunk adds a streamed chunk unless the call was cancelled. The check
// and the write happen under the session lock, as does Abort's cancel.
func (s *Session) appendChunk(ctx context.Context, page, part int, chunk string) error {
	s.mu.Lock()
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.doc.Pages[page].Text[part] += chunk
	s.mu.Unlock()

	s.emit(Event{Kind: EventContent, Page: page, Part: part, Chunk: chunk})
	return nil
}

func (s *Session) clearUnit(ctx context.Context, page, part int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.doc.Pages[page].Text[part] = ""
	return nil
}

func (s *Session) abortedSince(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch != epoch
}

// failRun aborts after a failed run unless the run was already aborted.
func (s *Session) failRun(epoch uint64, err error) error {
	if s.abortedSince(epoch) {
		return ErrAborted
	}
	return s.fail(err)
}

func (s *Session) fail(err error) error {
	s.logger.Error("translation failed", "error", err)
	s.Abort()
	return err
}

func (s *Session) emit(ev Event) {
	if s.observer != nil {
		s.observer(ev)
	}
}
