package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/talent-match/internal/extraction"
	"github.com/jonathan/talent-match/internal/observability"
)

func newExtractCmd(c *cli) *cobra.Command {
	var (
		file    string
		mode    string
		timeout time.Duration
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract profile fields from a resume document",
		Long: `Extract profile fields from a PDF, HTML or plain text resume and print the draft.
The llm and hybrid modes need a Gemini API key (GEMINI_API_KEY).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := c.cfg.Extraction.Mode
			if mode != "" {
				parsed, err := extraction.ParseMode(mode)
				if err != nil {
					return err
				}
				m = parsed
			}

			ref := extraction.DocumentRef{URI: file}
			if !strings.HasPrefix(file, "http://") && !strings.HasPrefix(file, "https://") {
				abs, err := filepath.Abs(file)
				if err != nil {
					return fmt.Errorf("failed to resolve %s: %w", file, err)
				}
				c.cfg.Extraction.DocumentRoot = filepath.Dir(abs)
				ref.URI = filepath.Base(abs)
			} else {
				c.cfg.Extraction.AllowRemote = true
			}

			tax, err := c.seededTaxonomy()
			if err != nil {
				return err
			}
			pipeline, release, err := c.buildPipeline(cmd.Context(), tax, nil)
			if err != nil {
				return err
			}
			defer release()

			draft := pipeline.ExtractMode(cmd.Context(), ref, m, timeout)
			return render(cmd.OutOrStdout(), asJSON, draft, func(p *observability.Printer) { p.PrintExtractionDraft(draft) })
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path or http(s) URL of the document")
	cmd.Flags().StringVar(&mode, "mode", "", "extraction mode: heuristic, llm or hybrid (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "extraction deadline (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the draft as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
