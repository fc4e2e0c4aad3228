package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/talent-match/internal/normalize"
	"github.com/jonathan/talent-match/internal/observability"
	"github.com/jonathan/talent-match/internal/scoring"
	"github.com/jonathan/talent-match/internal/types"
)

func newScoreCmd(c *cli) *cobra.Command {
	var (
		jobFile     string
		profileFile string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one raw job against one raw profile",
		Long:  "Normalize a raw job and a raw candidate profile against the taxonomy seed and print the match record.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tax, err := c.seededTaxonomy()
			if err != nil {
				return err
			}
			snap := tax.Snapshot()
			norm := normalize.New()

			var rawJob normalize.RawJob
			if err := readJSON(jobFile, &rawJob); err != nil {
				return err
			}
			jobFields, err := norm.NormalizeJob(rawJob, snap)
			if err != nil {
				return fmt.Errorf("invalid job: %w", err)
			}

			var rawProfile normalize.RawProfile
			if err := readJSON(profileFile, &rawProfile); err != nil {
				return err
			}
			profileFields, err := norm.NormalizeProfile(rawProfile, snap)
			if err != nil {
				return fmt.Errorf("invalid profile: %w", err)
			}

			engine, err := scoring.New(c.cfg.Scoring)
			if err != nil {
				return fmt.Errorf("invalid scoring config: %w", err)
			}
			record := engine.Score(
				&types.CanonicalJob{JobID: fileID(jobFile), JobFields: *jobFields, Revision: 1},
				&types.CanonicalProfile{CandidateID: fileID(profileFile), ProfileFields: *profileFields, Revision: 1},
				snap,
			)
			return render(cmd.OutOrStdout(), asJSON, record, func(p *observability.Printer) {
				p.PrintMatchRecord(&record)
			})
		},
	}

	cmd.Flags().StringVar(&jobFile, "job", "", "path to a raw job JSON file")
	cmd.Flags().StringVar(&profileFile, "profile", "", "path to a raw profile JSON file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the match record as JSON")
	_ = cmd.MarkFlagRequired("job")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// fileID names an entity after its file, without directory or extension.
func fileID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
