package epub

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArchive matches every *DocumentError.
	ErrInvalidArchive = errors.New("invalid epub archive")

	// ErrFileNotFound is returned when an archive entry does not exist.
	ErrFileNotFound = errors.New("file not found in archive")
)

// DocumentError reports an archive that cannot be opened as an EPUB.
type DocumentError struct {
	Op   string // "open", "container", "package", ...
	Path string // archive entry involved, if any
	Err  error
}

func (e *DocumentError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("epub %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("epub %s: %v", e.Op, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// Is reports whether target is ErrInvalidArchive.
func (e *DocumentError) Is(target error) bool {
	return target == ErrInvalidArchive
}

func docErr(op, path string, err error) error {
	return &DocumentError{Op: op, Path: path, Err: err}
}
