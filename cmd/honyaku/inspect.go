package main

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/honyaku/internal/document"
	"github.com/jackzampolin/honyaku/internal/epub"
	"github.com/jackzampolin/honyaku/internal/home"
	"github.com/jackzampolin/honyaku/internal/output"
	"github.com/jackzampolin/honyaku/internal/partition"
)

var inspectShow int

var inspectCmd = &cobra.Command{
	Use:   "inspect <book.epub>",
	Short: "Show how a book is split into pages and units",
	Long: `Inspect an EPUB the way translate sees it: its metadata, table of contents
and the translation units of every page.

Examples:
  honyaku inspect book.epub
  honyaku inspect book.epub --show 3
  honyaku inspect book.epub -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := epub.Open(args[0])
		if err != nil {
			return err
		}
		doc, err := document.Load(book, home.Slug(args[0]), logger)
		if err != nil {
			return err
		}

		if inspectShow >= 0 {
			if inspectShow >= len(doc.Pages) {
				return fmt.Errorf("page %d out of range (%d pages)", inspectShow, len(doc.Pages))
			}
			fmt.Fprintln(cmd.OutOrStdout(), partition.Join(doc.Pages[inspectShow].Sections))
			return nil
		}

		res := inspectResult{
			Title:     book.Title(),
			Language:  book.Language(),
			Spine:     len(book.Spine()),
			Resources: len(book.Manifest()),
		}
		for _, entry := range book.TOC() {
			res.TOC = append(res.TOC, entry.Title)
		}
		for i, p := range doc.Pages {
			pi := pageInfo{Index: i, Path: p.Path, Units: len(p.Sections)}
			for _, s := range p.Sections {
				pi.Chars += utf8.RuneCountInString(s)
			}
			res.Pages = append(res.Pages, pi)
			res.Units += pi.Units
			res.Chars += pi.Chars
		}
		return output.Output(res)
	},
}

func init() {
	inspectCmd.Flags().IntVar(&inspectShow, "show", -1, "print the source text of one page")
	rootCmd.AddCommand(inspectCmd)
}

type pageInfo struct {
	Index int    `json:"index" yaml:"index"`
	Path  string `json:"path" yaml:"path"`
	Units int    `json:"units" yaml:"units"`
	Chars int    `json:"chars" yaml:"chars"`
}

type inspectResult struct {
	Title     string     `json:"title" yaml:"title"`
	Language  string     `json:"language" yaml:"language"`
	Spine     int        `json:"spine" yaml:"spine"`
	Resources int        `json:"resources" yaml:"resources"`
	TOC       []string   `json:"toc" yaml:"toc"`
	Units     int        `json:"units" yaml:"units"`
	Chars     int        `json:"chars" yaml:"chars"`
	Pages     []pageInfo `json:"pages" yaml:"pages"`
}

func (r inspectResult) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s]\n", r.Title, r.Language)
	fmt.Fprintf(&sb, "%d spine documents, %d resources, %d pages, %d units, %d characters\n",
		r.Spine, r.Resources, len(r.Pages), r.Units, r.Chars)
	if len(r.TOC) > 0 {
		sb.WriteString("\ncontents:\n")
		for _, t := range r.TOC {
			fmt.Fprintf(&sb, "  %s\n", t)
		}
	}
	sb.WriteString("\npages:\n")
	for _, p := range r.Pages {
		fmt.Fprintf(&sb, "  %3d  %-40s %3d units %7d chars\n", p.Index, p.Path, p.Units, p.Chars)
	}
	return strings.TrimRight(sb.String(), "\n")
}
