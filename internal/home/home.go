// Package home lays out the honyaku home directory.
package home

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
)

const (
	// DefaultDirName is the default name for the honyaku home directory.
	DefaultDirName = ".honyaku"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	translationsDirName = "translations"
	exportsDirName      = "exports"
	extractionsDirName  = "extractions"
	workDirName         = "work"
)

// Dir represents the honyaku home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.honyaku).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.TranslationsDir(), d.ExportsDir(), d.ExtractionsDir(), d.WorkDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// TranslationsDir returns the root of exported translation folders.
func (d *Dir) TranslationsDir() string {
	return filepath.Join(d.path, translationsDirName)
}

// TranslationDir returns the export folder for a book.
func (d *Dir) TranslationDir(book string) string {
	return filepath.Join(d.TranslationsDir(), Slug(book))
}

// ExportsDir returns the directory for rebuilt EPUB files.
func (d *Dir) ExportsDir() string {
	return filepath.Join(d.path, exportsDirName)
}

// ExportPath returns the default output path of a rebuilt book.
func (d *Dir) ExportPath(book string) string {
	return filepath.Join(d.ExportsDir(), Slug(book)+".epub")
}

// ExtractionsDir returns the directory for extracted page text.
func (d *Dir) ExtractionsDir() string {
	return filepath.Join(d.path, extractionsDirName)
}

// ExtractionPath returns the default output path of an extraction.
func (d *Dir) ExtractionPath(source string) string {
	return filepath.Join(d.ExtractionsDir(), Slug(source)+".md")
}

// WorkDir returns the directory for temporary files.
func (d *Dir) WorkDir() string {
	return filepath.Join(d.path, workDirName)
}

// ScratchDir returns a per-source directory under WorkDir, used for
// images expanded from a PDF.
func (d *Dir) ScratchDir(source string) string {
	return filepath.Join(d.WorkDir(), Slug(source))
}

// Slug turns a book title or file name into a file system friendly name.
// A .epub, .pdf or .md extension is dropped.
func Slug(name string) string {
	base := filepath.Base(name)
	switch strings.ToLower(filepath.Ext(base)) {
	case ".epub", ".pdf", ".md":
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	s := slug.Make(base)
	if s == "" {
		return "book"
	}
	return s
}
