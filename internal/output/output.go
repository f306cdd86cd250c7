// Package output renders command results as YAML, JSON or plain text.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Format defines the output format for CLI commands.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Default is the default output format.
var Default = FormatText

// globalFormat is set by the root command's --output flag.
var globalFormat = Default

// Texter is implemented by results with a human-readable rendering.
type Texter interface {
	Text() string
}

// SetFormat sets the global output format. Unknown formats fall back to the
// default.
func SetFormat(format string) {
	switch Format(format) {
	case FormatJSON, FormatYAML, FormatText:
		globalFormat = Format(format)
	default:
		globalFormat = Default
	}
}

// GetFormat returns the current global output format.
func GetFormat() Format {
	return globalFormat
}

// Output writes data to stdout in the configured format.
func Output(data any) error {
	return To(os.Stdout, globalFormat, data)
}

// To writes data to the given writer in the specified format.
func To(w io.Writer, format Format, data any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	case FormatText:
		if t, ok := data.(Texter); ok {
			_, err := fmt.Fprintln(w, t.Text())
			return err
		}
		_, err := fmt.Fprintf(w, "%v\n", data)
		return err
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// IsStructured returns true if the output format is structured (JSON/YAML).
// Commands print progress messages only when it is false.
func IsStructured() bool {
	return globalFormat == FormatJSON || globalFormat == FormatYAML
}
