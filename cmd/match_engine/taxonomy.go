package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTaxonomyCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Inspect the skill taxonomy seed",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "resolve <text>...",
		Short: "Resolve free-text skills to canonical ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tax, err := c.seededTaxonomy()
			if err != nil {
				return err
			}
			snap := tax.Snapshot()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "QUERY\tCANONICAL\tCATEGORY")
			for _, q := range args {
				res, ok := snap.Resolve(q)
				if !ok {
					_, _ = fmt.Fprintf(w, "%s\t-\t-\n", q)
					continue
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", q, res.CanonicalID, res.Category)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List canonical skills with their synonyms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tax, err := c.seededTaxonomy()
			if err != nil {
				return err
			}
			snap := tax.Snapshot()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "# taxonomy version %d\n", snap.Version())
			_, _ = fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tSYNONYMS")
			for _, e := range snap.Entries() {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CanonicalID, e.DisplayName, e.Category, strings.Join(e.Synonyms, ", "))
			}
			return w.Flush()
		},
	})
	return cmd
}
