package extract

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/honyaku/internal/providers"
	"github.com/jackzampolin/honyaku/internal/translate"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func writeImages(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), pngBytes, 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoadImages(t *testing.T) {
	dir := writeImages(t, "p10.png", "p2.jpg", "p1.png")
	if err := os.WriteFile(filepath.Join(dir, "notes.png"), []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	pages, err := Load(dir, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"p1.png", "p2.jpg", "p10.png"}
	if len(pages) != len(want) {
		t.Fatalf("expected %d pages, got %d", len(want), len(pages))
	}
	for i, w := range want {
		if pages[i].Name != w {
			t.Errorf("pages[%d]: expected %s, got %s", i, w, pages[i].Name)
		}
	}
}

func TestLoadRejectsOtherFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, t.TempDir()); err == nil {
		t.Error("expected error for a text file")
	}
}

func TestRender(t *testing.T) {
	pages := []*Page{
		{Name: "p1.png", Text: "一行目"},
		{Name: "p2.png", Text: ""},
		{Name: "p3.png", Text: "三", Skip: true},
		{Name: "p4.png", Text: "四"},
	}
	got := Render(pages)
	want := "\n<page>p1.png</page>\n\n一行目\n\n<page>p4.png</page>\n\n四\n"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSkip(t *testing.T) {
	pages := []*Page{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	if n := Skip(pages, "b", "z"); n != 1 {
		t.Errorf("expected 1 skipped, got %d", n)
	}
	if !pages[1].Skip || pages[0].Skip {
		t.Error("unexpected skip flags")
	}
}

func TestExtractorRun(t *testing.T) {
	m := providers.NewMockBackend()
	m.Latency = 10 * time.Millisecond
	m.Respond = func(*providers.StreamRequest) string { return "<think>reading</think>本文。" }

	pages := []*Page{
		{Name: "p1.png", Image: pngBytes},
		{Name: "p2.png", Image: pngBytes, Skip: true},
		{Name: "p3.png", Image: pngBytes},
	}

	var chunks atomic.Int32
	e := New(Config{
		Backend: m,
		Model:   "vision",
		Method:  translate.Batch(6),
		OnChunk: func(int, string) { chunks.Add(1) },
	})
	if err := e.Run(context.Background(), pages); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	calls := m.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	for _, c := range calls {
		if c.Prompt != providers.ExtractionPrompt {
			t.Error("expected extraction prompt")
		}
		if len(c.Images) != 1 || !bytes.Equal(c.Images[0], pngBytes) {
			t.Error("expected page image in request")
		}
	}
	if m.MaxConcurrency() != 2 {
		t.Errorf("expected both pages in one batch, got max concurrency %d", m.MaxConcurrency())
	}
	if pages[0].Text != "本文。" || !pages[0].Complete {
		t.Errorf("unexpected page 0: %+v", pages[0])
	}
	if pages[1].Text != "" || pages[1].Complete {
		t.Errorf("expected skipped page untouched: %+v", pages[1])
	}
	if chunks.Load() == 0 {
		t.Error("expected chunk callbacks")
	}
}

func TestExtractorChainAndErrors(t *testing.T) {
	t.Run("chain is sequential", func(t *testing.T) {
		m := providers.NewMockBackend()
		m.Latency = 5 * time.Millisecond
		pages := []*Page{{Name: "a", Image: pngBytes}, {Name: "b", Image: pngBytes}}
		if err := New(Config{Backend: m, Model: "v", Method: translate.Chain}).Run(context.Background(), pages); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if m.MaxConcurrency() != 1 {
			t.Errorf("expected sequential calls, got %d", m.MaxConcurrency())
		}
	})

	t.Run("no model", func(t *testing.T) {
		err := New(Config{Backend: providers.NewMockBackend()}).Run(context.Background(), nil)
		if !errors.Is(err, translate.ErrNoModel) {
			t.Errorf("expected ErrNoModel, got %v", err)
		}
	})

	t.Run("hard failure", func(t *testing.T) {
		m := providers.NewMockBackend()
		m.FailWith = providers.ErrMockFailure
		pages := []*Page{{Name: "a", Image: pngBytes}}
		err := New(Config{Backend: m, Model: "v"}).Run(context.Background(), pages)
		if !errors.Is(err, providers.ErrMockFailure) {
			t.Errorf("expected mock failure, got %v", err)
		}
		if m.Cleared() != 1 {
			t.Errorf("expected history cleared, got %d", m.Cleared())
		}
	})
}
