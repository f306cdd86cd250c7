package translate

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/honyaku/internal/document"
	"github.com/jackzampolin/honyaku/internal/providers"
)

func newDoc(pages ...[]string) *document.Document {
	doc := &document.Document{Name: "test"}
	for i, sections := range pages {
		doc.Pages = append(doc.Pages, document.NewPage(
			"Text/p"+string(rune('a'+i))+".xhtml", sections))
	}
	return doc
}

func fastRetry() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func connect(t *testing.T, s *Session, b providers.Backend) {
	t.Helper()
	if err := s.Connect(context.Background(), b); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
}

// recorder collects events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func TestMethodPlan(t *testing.T) {
	tests := []struct {
		method Method
		n      int
		want   [][]int
	}{
		{Chain, 3, [][]int{{0}, {1}, {2}}},
		{Batch(6), 2, [][]int{{0, 1}}},
		{Batch(2), 5, [][]int{{0, 1}, {2, 3}, {4}}},
		{Batch(6), 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.method.String(), func(t *testing.T) {
			if got := tt.method.Plan(tt.n); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Plan(%d): expected %v, got %v", tt.n, tt.want, got)
			}
		})
	}
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{"chain", Chain, false},
		{"batch", Batch(6), false},
		{"BATCH:3", Batch(3), false},
		{"batch:0", Method{}, true},
		{"parallel", Method{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestHandles(t *testing.T) {
	h := NewHandles()
	ctx1, release1 := h.Bind(context.Background())
	ctx2, _ := h.Bind(context.Background())
	if h.Len() != 2 {
		t.Fatalf("expected 2 handles, got %d", h.Len())
	}

	release1()
	release1()
	if ctx1.Err() == nil {
		t.Error("expected released context to be cancelled")
	}
	if h.Len() != 1 {
		t.Errorf("expected 1 handle, got %d", h.Len())
	}

	if n := h.Drain(); n != 1 {
		t.Errorf("expected to drain 1 handle, got %d", n)
	}
	if ctx2.Err() == nil {
		t.Error("expected drained context to be cancelled")
	}
}

func TestPreconditions(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		s := NewSession(newDoc([]string{"一"}))
		if err := s.Translate(context.Background(), 0); !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
		if s.Pages()[0].Activity != document.ActivityIncomplete {
			t.Error("expected page state unchanged")
		}
	})

	t.Run("no model", func(t *testing.T) {
		s := NewSession(newDoc([]string{"一"}))
		m := providers.NewMockBackend()
		m.Models = nil
		connect(t, s, m)
		if err := s.TranslatePage(context.Background(), 0); !errors.Is(err, ErrNoModel) {
			t.Errorf("expected ErrNoModel, got %v", err)
		}
		if len(m.Calls()) != 0 {
			t.Error("expected no backend calls")
		}
	})

	t.Run("select model", func(t *testing.T) {
		s := NewSession(newDoc([]string{"一"}))
		if err := s.SelectModel("x"); !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
		m := providers.NewMockBackend()
		m.Models = []string{"a", "b"}
		connect(t, s, m)
		if c := s.Connection().(Connected); c.Model != "a" {
			t.Errorf("expected first model selected, got %q", c.Model)
		}
		if err := s.SelectModel("b"); err != nil {
			t.Fatalf("SelectModel() error = %v", err)
		}
		if err := s.SelectModel("z"); !errors.Is(err, ErrUnknownModel) {
			t.Errorf("expected ErrUnknownModel, got %v", err)
		}
		if c := s.Connection().(Connected); c.Model != "b" {
			t.Errorf("expected model b, got %q", c.Model)
		}
	})

	t.Run("disconnect", func(t *testing.T) {
		s := NewSession(newDoc([]string{"一"}))
		connect(t, s, providers.NewMockBackend())
		s.Disconnect()
		if _, ok := s.Connection().(Disconnected); !ok {
			t.Errorf("expected Disconnected, got %T", s.Connection())
		}
	})
}

func TestBatchRunsUnitsConcurrently(t *testing.T) {
	m := providers.NewMockBackend()
	m.Latency = 30 * time.Millisecond

	s := NewSession(newDoc([]string{"一。", "二。"}), WithMethod(Batch(6)))
	connect(t, s, m)

	if err := s.TranslatePage(context.Background(), 0); err != nil {
		t.Fatalf("TranslatePage() error = %v", err)
	}
	if m.MaxConcurrency() != 2 {
		t.Errorf("expected 2 concurrent calls, got %d", m.MaxConcurrency())
	}
	if got := s.Pages()[0].Activity; got != document.ActivityComplete {
		t.Errorf("expected complete, got %s", got)
	}
}

func TestChainRunsUnitsInOrder(t *testing.T) {
	m := providers.NewMockBackend()
	m.Latency = 5 * time.Millisecond
	m.Respond = func(req *providers.StreamRequest) string { return "Echo " + req.Prompt }

	s := NewSession(newDoc([]string{"一。", "二。", "三。"}), WithMethod(Chain))
	connect(t, s, m)

	if err := s.TranslatePage(context.Background(), 0); err != nil {
		t.Fatalf("TranslatePage() error = %v", err)
	}
	if m.MaxConcurrency() != 1 {
		t.Errorf("expected sequential calls, got max concurrency %d", m.MaxConcurrency())
	}
	calls := m.Calls()
	for i, want := range []string{"一。", "二。", "三。"} {
		if calls[i].Prompt != want {
			t.Errorf("call %d: expected %s, got %s", i, want, calls[i].Prompt)
		}
		if calls[i].System != providers.TranslationPrompt {
			t.Errorf("call %d: expected translation system prompt", i)
		}
		if !calls[i].Think {
			t.Errorf("call %d: expected think enabled by default", i)
		}
	}
	if got := s.Pages()[0].Text[1]; got != "Echo 二。" {
		t.Errorf("expected streamed text for part 1, got %q", got)
	}
}

func TestTranslateAdvancesAndFinishes(t *testing.T) {
	rec := &recorder{}
	m := providers.NewMockBackend()
	s := NewSession(newDoc([]string{"一"}, []string{"二", "三"}, []string{"四"}),
		WithObserver(rec.observe), WithSettings(Settings{Pause: 10 * time.Millisecond}))
	connect(t, s, m)

	start := time.Now()
	if err := s.Translate(context.Background(), 1); err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("expected pause between pages, run took %v", elapsed)
	}

	pages := s.Pages()
	if pages[0].Activity != document.ActivityIncomplete {
		t.Errorf("expected page 0 untouched, got %s", pages[0].Activity)
	}
	for _, i := range []int{1, 2} {
		if pages[i].Activity != document.ActivityComplete {
			t.Errorf("expected page %d complete, got %s", i, pages[i].Activity)
		}
	}
	if !s.Finished() {
		t.Error("expected session finished")
	}
	if rec.count(EventFinished) != 1 {
		t.Errorf("expected 1 finished event, got %d", rec.count(EventFinished))
	}
	if rec.count(EventPageComplete) != 2 {
		t.Errorf("expected 2 page events, got %d", rec.count(EventPageComplete))
	}
	if rec.count(EventContent) == 0 {
		t.Error("expected content events")
	}
	if s.Busy() {
		t.Error("expected no handles after finishing")
	}
}

func TestTranslateSkipsCompletePages(t *testing.T) {
	doc := newDoc([]string{"一"}, []string{"二"})
	doc.Pages[0].Text[0] = "Already done."
	doc.Pages[0].Activity = document.ActivityComplete

	m := providers.NewMockBackend()
	s := NewSession(doc, WithSettings(Settings{SkipComplete: true}))
	connect(t, s, m)

	if err := s.Translate(context.Background(), 0); err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if len(m.Calls()) != 1 || m.Calls()[0].Prompt != "二" {
		t.Errorf("expected only page 1 translated, got %+v", m.Calls())
	}
	if s.Pages()[0].Text[0] != "Already done." {
		t.Error("expected complete page untouched")
	}
}

func TestClassifiesUntranslatedAsError(t *testing.T) {
	m := providers.NewMockBackend()
	m.Respond = func(*providers.StreamRequest) string { return "これは翻訳されていない。" }

	s := NewSession(newDoc([]string{"一"}))
	connect(t, s, m)

	if err := s.TranslatePage(context.Background(), 0); err != nil {
		t.Fatalf("TranslatePage() error = %v", err)
	}
	if got := s.Pages()[0].Activity; got != document.ActivityError {
		t.Errorf("expected error activity, got %s", got)
	}
}

func TestTranslatePart(t *testing.T) {
	m := providers.NewMockBackend()
	m.Respond = func(req *providers.StreamRequest) string { return "New " + req.Prompt }

	doc := newDoc([]string{"一", "二"})
	doc.Pages[0].Text[0] = "Old one."
	doc.Pages[0].Text[1] = "Old two."
	s := NewSession(doc)
	connect(t, s, m)

	if err := s.TranslatePart(context.Background(), 0, 1); err != nil {
		t.Fatalf("TranslatePart() error = %v", err)
	}
	p := s.Pages()[0]
	if p.Text[0] != "Old one." {
		t.Errorf("expected part 0 untouched, got %q", p.Text[0])
	}
	if p.Text[1] != "New 二" {
		t.Errorf("expected part 1 retranslated, got %q", p.Text[1])
	}
	if p.Activity != document.ActivityError {
		t.Errorf("expected reclassification to error (part 1 is mostly Japanese), got %s", p.Activity)
	}

	if err := s.TranslatePart(context.Background(), 0, 5); !errors.Is(err, ErrInvalidPart) {
		t.Errorf("expected ErrInvalidPart, got %v", err)
	}
	if err := s.TranslatePart(context.Background(), 9, 0); err != nil {
		t.Errorf("expected out-of-range page to be ignored, got %v", err)
	}
	if err := s.TranslatePage(context.Background(), 9); err != nil {
		t.Errorf("expected out-of-range page to be ignored, got %v", err)
	}
}

func TestTransientFailureRetried(t *testing.T) {
	m := providers.NewMockBackend()
	m.TransientFailures = 2

	s := NewSession(newDoc([]string{"一"}), WithRetry(fastRetry()))
	connect(t, s, m)

	if err := s.TranslatePage(context.Background(), 0); err != nil {
		t.Fatalf("TranslatePage() error = %v", err)
	}
	if len(m.Calls()) != 3 {
		t.Errorf("expected 3 calls, got %d", len(m.Calls()))
	}
	p := s.Pages()[0]
	if p.Text[0] != "This is a translated sentence." {
		t.Errorf("expected clean text after retries, got %q", p.Text[0])
	}
	if p.Activity != document.ActivityComplete {
		t.Errorf("expected complete, got %s", p.Activity)
	}
}

func TestRetriesExhausted(t *testing.T) {
	rec := &recorder{}
	m := providers.NewMockBackend()
	m.TransientFailures = 100

	s := NewSession(newDoc([]string{"一"}), WithRetry(fastRetry()), WithObserver(rec.observe))
	connect(t, s, m)

	err := s.TranslatePage(context.Background(), 0)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *RetryExhaustedError, got %T", err)
	}
	if exhausted.Attempts != 3 || exhausted.Page != 0 || exhausted.Part != 0 {
		t.Errorf("unexpected error fields: %+v", exhausted)
	}
	if len(m.Calls()) != 3 {
		t.Errorf("expected 3 calls, got %d", len(m.Calls()))
	}
	if got := s.Pages()[0].Activity; got != document.ActivityIncomplete {
		t.Errorf("expected incomplete after abort, got %s", got)
	}
	if rec.count(EventAborted) != 1 {
		t.Errorf("expected 1 aborted event, got %d", rec.count(EventAborted))
	}
}

func TestHardErrorAborts(t *testing.T) {
	rec := &recorder{}
	m := providers.NewMockBackend()
	m.FailWith = providers.ErrMockFailure

	s := NewSession(newDoc([]string{"一", "二"}), WithRetry(fastRetry()), WithObserver(rec.observe))
	connect(t, s, m)

	err := s.Translate(context.Background(), 0)
	if !errors.Is(err, providers.ErrMockFailure) {
		t.Fatalf("expected mock failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "translating page 0 part") {
		t.Errorf("expected page/part in error, got %v", err)
	}
	if len(m.Calls()) > 2 {
		t.Errorf("expected no retries of a hard error, got %d calls", len(m.Calls()))
	}
	if got := s.Pages()[0].Activity; got != document.ActivityIncomplete {
		t.Errorf("expected incomplete, got %s", got)
	}
	if m.Cleared() != 1 {
		t.Errorf("expected backend history cleared once, got %d", m.Cleared())
	}
	if rec.count(EventAborted) != 1 {
		t.Errorf("expected 1 aborted event, got %d", rec.count(EventAborted))
	}
	if s.Finished() {
		t.Error("expected session not finished")
	}
}

func TestAbortStopsMutation(t *testing.T) {
	started := make(chan struct{}, 1)
	m := providers.NewMockBackend()
	m.Chunks = 20
	m.Latency = 10 * time.Millisecond

	s := NewSession(newDoc([]string{"一", "二"}, []string{"三"}), WithObserver(func(ev Event) {
		if ev.Kind == EventContent {
			select {
			case started <- struct{}{}:
			default:
			}
		}
	}))
	connect(t, s, m)

	done := make(chan error, 1)
	go func() { done <- s.Translate(context.Background(), 0) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("translation never started")
	}

	s.Abort()
	snapshot := s.Pages()

	var err error
	select {
	case err = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Translate did not return after Abort")
	}
	if !errors.Is(err, ErrAborted) {
		t.Errorf("expected ErrAborted, got %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	after := s.Pages()
	for i := range after {
		if !reflect.DeepEqual(after[i].Text, snapshot[i].Text) {
			t.Errorf("page %d text changed after Abort: %q -> %q", i, snapshot[i].Text, after[i].Text)
		}
		if after[i].Activity == document.ActivityActive {
			t.Errorf("page %d still active after Abort", i)
		}
	}
	if snapshot[0].Text[0]+snapshot[0].Text[1] == "" {
		t.Error("expected partial text to survive Abort")
	}
	if len(m.Calls()) > 2 {
		t.Errorf("expected no calls for later pages, got %d", len(m.Calls()))
	}
	if s.Busy() {
		t.Error("expected no handles after Abort")
	}
}

func TestCallerCancellation(t *testing.T) {
	m := providers.NewMockBackend()
	m.Latency = time.Second

	s := NewSession(newDoc([]string{"一"}))
	connect(t, s, m)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Translate(ctx, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if got := s.Pages()[0].Activity; got != document.ActivityIncomplete {
		t.Errorf("expected incomplete, got %s", got)
	}
}

func TestSaveTo(t *testing.T) {
	m := providers.NewMockBackend()
	s := NewSession(newDoc([]string{"一"}))
	connect(t, s, m)
	if err := s.TranslatePage(context.Background(), 0); err != nil {
		t.Fatalf("TranslatePage() error = %v", err)
	}

	dir := t.TempDir()
	if err := s.SaveTo(dir); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}
	pages, err := document.LoadMarkdownDir(dir)
	if err != nil {
		t.Fatalf("LoadMarkdownDir() error = %v", err)
	}
	if len(pages) != 1 || !strings.Contains(pages[0].Content, "<part>1</part>This is a translated sentence.") {
		t.Errorf("unexpected export: %+v", pages)
	}
}

func TestSetSettings(t *testing.T) {
	m := providers.NewMockBackend()
	m.Respond = func(*providers.StreamRequest) string { return "一二三四五六 abcd" }
	s := NewSession(newDoc([]string{"一"}))
	connect(t, s, m)

	s.SetSettings(Settings{Think: false, Threshold: 0})
	if got := s.Settings().Threshold; got != document.DefaultThreshold {
		t.Errorf("expected default threshold, got %d", got)
	}

	s.SetSettings(Settings{Threshold: 10})
	if err := s.TranslatePage(context.Background(), 0); err != nil {
		t.Fatalf("TranslatePage() error = %v", err)
	}
	if act := s.Pages()[0].Activity; act != document.ActivityComplete {
		t.Errorf("expected complete under a low threshold, got %s", act)
	}
	if calls := m.Calls(); len(calls) != 1 || calls[0].Think {
		t.Errorf("expected one call without thinking, got %+v", calls)
	}
}

func TestRetryPolicyHonorsRetryAfter(t *testing.T) {
	tests := []struct {
		name       string
		policy     RetryPolicy
		retryAfter time.Duration
	}{
		{
			name:       "shorter than backoff",
			policy:     RetryPolicy{Attempts: 2, Delay: time.Hour, MaxDelay: time.Hour},
			retryAfter: time.Millisecond,
		},
		{
			name:       "capped at max delay",
			policy:     RetryPolicy{Attempts: 2, Delay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
			retryAfter: time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			made, err := tt.policy.Do(ctx, func(attempt int) error {
				if attempt == 1 {
					return &providers.UnavailableError{Backend: "test", StatusCode: 429, RetryAfter: tt.retryAfter}
				}
				return nil
			}, nil)
			if err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			if made != 2 {
				t.Errorf("expected 2 attempts, got %d", made)
			}
		})
	}
}
