package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jonathan/talent-match/internal/config"
	"github.com/jonathan/talent-match/internal/logger"
	"github.com/jonathan/talent-match/internal/observability"
	"github.com/jonathan/talent-match/internal/taxonomy"
)

const app = "match_engine"

// cli carries the state shared by every subcommand once the root pre-run has
// loaded configuration.
type cli struct {
	viper   *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{viper: config.New()}

	cmd := &cobra.Command{
		Use:   app,
		Short: "Deterministic, explainable candidate-job matching engine",
		Long: `match_engine normalizes candidate profiles and job postings against a skill
taxonomy, scores every pair with an explainable breakdown and keeps rankings
fresh as inputs change. It runs as an HTTP API (serve) or offline.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.load,
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is match-engine.yaml in the current directory)")
	flags.BoolP("debug", "d", false, "verbose/debug output")
	flags.BoolP("json", "j", false, "json format for logging")
	c.bind(flags, "log.debug", "debug")
	c.bind(flags, "log.json", "json")

	cmd.AddCommand(
		newServeCmd(c),
		newScoreCmd(c),
		newNormalizeCmd(c),
		newExtractCmd(c),
		newTaxonomyCmd(c),
	)
	return cmd
}

// bind maps a flag onto a config key so an explicit flag beats file and environment.
func (c *cli) bind(flags *pflag.FlagSet, key, name string) {
	if err := c.viper.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", name, err))
	}
}

func (c *cli) load(*cobra.Command, []string) error {
	cfg, err := config.Load(c.viper, c.cfgFile)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		return fmt.Errorf("creating a logger: %w", err)
	}
	c.cfg = cfg
	c.logger = log
	return nil
}

// seed returns the configured taxonomy seed, or the built-in one.
func (c *cli) seed() ([]byte, error) {
	if c.cfg.Taxonomy.SeedFile == "" {
		return taxonomy.DefaultSeed(), nil
	}
	data, err := os.ReadFile(c.cfg.Taxonomy.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy seed: %w", err)
	}
	return data, nil
}

// seededTaxonomy builds an in-memory taxonomy for the offline commands.
func (c *cli) seededTaxonomy() (*taxonomy.Taxonomy, error) {
	data, err := c.seed()
	if err != nil {
		return nil, err
	}
	tax := taxonomy.New(c.logger)
	if _, err := tax.LoadSeed(data); err != nil {
		return nil, err
	}
	return tax, nil
}

// render writes v as indented JSON, or through the box printer.
func render(out io.Writer, asJSON bool, v any, box func(*observability.Printer)) error {
	if !asJSON {
		box(observability.NewPrinter(out))
		return nil
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
