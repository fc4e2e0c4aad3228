package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/talent-match/internal/normalize"
	"github.com/jonathan/talent-match/internal/observability"
)

func newNormalizeCmd(c *cli) *cobra.Command {
	var (
		jobFile     string
		profileFile string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Print the canonical form of a raw profile or job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tax, err := c.seededTaxonomy()
			if err != nil {
				return err
			}
			norm := normalize.New()
			out := cmd.OutOrStdout()

			if profileFile != "" {
				var raw normalize.RawProfile
				if err := readJSON(profileFile, &raw); err != nil {
					return err
				}
				fields, err := norm.NormalizeProfile(raw, tax.Snapshot())
				if err != nil {
					return fmt.Errorf("invalid profile: %w", err)
				}
				return render(out, asJSON, fields, func(p *observability.Printer) { p.PrintProfileFields(fields) })
			}

			var raw normalize.RawJob
			if err := readJSON(jobFile, &raw); err != nil {
				return err
			}
			fields, err := norm.NormalizeJob(raw, tax.Snapshot())
			if err != nil {
				return fmt.Errorf("invalid job: %w", err)
			}
			return render(out, asJSON, fields, func(p *observability.Printer) { p.PrintJobFields(fields) })
		},
	}

	cmd.Flags().StringVar(&profileFile, "profile", "", "path to a raw profile JSON file")
	cmd.Flags().StringVar(&jobFile, "job", "", "path to a raw job JSON file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a summary")
	cmd.MarkFlagsMutuallyExclusive("profile", "job")
	cmd.MarkFlagsOneRequired("profile", "job")
	return cmd
}
