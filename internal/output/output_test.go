package output

import (
	"bytes"
	"testing"
)

type summary struct {
	Name  string `json:"name" yaml:"name"`
	Pages int    `json:"pages" yaml:"pages"`
}

func (s summary) Text() string { return s.Name }

func TestTo(t *testing.T) {
	data := summary{Name: "vol1", Pages: 3}

	tests := []struct {
		format Format
		want   string
	}{
		{FormatJSON, "{\n  \"name\": \"vol1\",\n  \"pages\": 3\n}\n"},
		{FormatYAML, "name: vol1\npages: 3\n"},
		{FormatText, "vol1\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := To(&buf, tt.format, data); err != nil {
				t.Fatalf("To() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, buf.String())
			}
		})
	}

	t.Run("text without Texter", func(t *testing.T) {
		var buf bytes.Buffer
		if err := To(&buf, FormatText, 42); err != nil {
			t.Fatal(err)
		}
		if buf.String() != "42\n" {
			t.Errorf("expected 42, got %q", buf.String())
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		if err := To(&bytes.Buffer{}, "xml", data); err == nil {
			t.Error("expected error")
		}
	})
}

func TestSetFormat(t *testing.T) {
	defer SetFormat(string(Default))

	SetFormat("json")
	if GetFormat() != FormatJSON || !IsStructured() {
		t.Errorf("expected json, got %s", GetFormat())
	}
	SetFormat("bogus")
	if GetFormat() != Default || IsStructured() {
		t.Errorf("expected default, got %s", GetFormat())
	}
}
