package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/honyaku/internal/document"
	"github.com/jackzampolin/honyaku/internal/epub"
	"github.com/jackzampolin/honyaku/internal/output"
)

var buildFlags struct {
	toc      string
	out      string
	title    string
	imageDir string
}

var buildCmd = &cobra.Command{
	Use:   "build <original.epub> <translated-dir>",
	Short: "Rebuild an EPUB from the original book and translated markdown",
	Long: `Build a new EPUB from an original book and a folder of translated markdown
files. Each spine document of the original is replaced by the markdown file
with the same stem; documents without a translation are carried over with
their image references rewritten. Every image of the original is copied.

Chapter titles come from --toc, a markdown list of links to the original
chapter files, or else from the original table of contents.

Examples:
  honyaku build book.epub ~/.honyaku/translations/book
  honyaku build book.epub ./translated --toc toc.md --out book-en.epub`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		srcPath, dir := args[0], args[1]

		e, err := loadEnv()
		if err != nil {
			return err
		}
		cfg := e.cfg.Get()

		src, err := epub.Open(srcPath)
		if err != nil {
			return err
		}
		pages, err := document.LoadMarkdownDir(dir)
		if err != nil {
			return err
		}

		opts := []epub.Option{epub.WithLogger(logger), epub.WithImageDir(cfg.Build.ImageDir)}
		if buildFlags.imageDir != "" {
			opts = append(opts, epub.WithImageDir(buildFlags.imageDir))
		}
		if buildFlags.title != "" {
			opts = append(opts, epub.WithTitle(buildFlags.title))
		}
		if buildFlags.toc != "" {
			toc, err := os.ReadFile(buildFlags.toc)
			if err != nil {
				return fmt.Errorf("failed to read table of contents: %w", err)
			}
			opts = append(opts, epub.WithTOC(string(toc)))
		}

		out := buildFlags.out
		if out == "" {
			out = e.home.ExportPath(srcPath)
		}
		if err := epub.NewBuilder(src, opts...).Build(ctx, out, pages); err != nil {
			return err
		}

		return output.Output(buildResult{Source: srcPath, Translations: len(pages), Output: out})
	},
}

func init() {
	buildCmd.Flags().StringVar(&buildFlags.toc, "toc", "", "markdown table of contents")
	buildCmd.Flags().StringVar(&buildFlags.out, "out", "", "output file (default: <home>/exports/<book>.epub)")
	buildCmd.Flags().StringVar(&buildFlags.title, "title", "", "book title (default: the original's)")
	buildCmd.Flags().StringVar(&buildFlags.imageDir, "image-dir", "", "image folder inside the EPUB (default: build.image_dir)")

	rootCmd.AddCommand(buildCmd)
}

type buildResult struct {
	Source       string `json:"source" yaml:"source"`
	Translations int    `json:"translations" yaml:"translations"`
	Output       string `json:"output" yaml:"output"`
}

func (r buildResult) Text() string {
	return fmt.Sprintf("built %s from %s (%d translated files)", r.Output, r.Source, r.Translations)
}
