package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/rs/zerolog/log"

	"github.com/basekick-labs/drift/internal/config"
	"github.com/basekick-labs/drift/internal/logger"
)

// Version is set at build time
var Version = "dev"

type Args struct {
	Config   string `arg:"-c,--config" help:"Path to drift.toml (default: search ., /etc/drift, ~/.drift)"`
	LogLevel string `arg:"--log-level" help:"Override log.level"`

	Build   *BuildCmd   `arg:"subcommand:build" help:"Build the consolidated ragged array archive"`
	Inspect *InspectCmd `arg:"subcommand:inspect" help:"Print the size and identity of drifter files"`
	Verify  *VerifyCmd  `arg:"subcommand:verify" help:"Cross-check a Parquet archive with DuckDB"`
	Schema  *SchemaCmd  `arg:"subcommand:schema" help:"Print the archive field table"`
	Builds  *BuildsCmd  `arg:"subcommand:builds" help:"List builds recorded in the catalog"`
}

func (Args) Version() string {
	return "drift " + Version
}

func (Args) Description() string {
	return "drift consolidates per-drifter netCDF files into one contiguous ragged array."
}

func main() {
	var args Args
	parser := arg.MustParse(&args)
	if parser.Subcommand() == nil {
		fmt.Fprintln(os.Stderr, "Error: passing a subcommand is required.")
		fmt.Fprintln(os.Stderr)
		parser.WriteHelp(os.Stderr)
		os.Exit(2)
	}

	cfg, err := config.Load(args.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if args.LogLevel != "" {
		cfg.Log.Level = args.LogLevel
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Debug().Str("version", Version).Msg("Starting drift")

	if err := args.Execute(context.Background(), cfg); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// Execute runs the selected subcommand.
func (a *Args) Execute(ctx context.Context, cfg *config.Config) error {
	switch {
	case a.Build != nil:
		return a.Build.Execute(ctx, cfg)
	case a.Inspect != nil:
		return a.Inspect.Execute(ctx, cfg)
	case a.Verify != nil:
		return a.Verify.Execute(ctx, cfg)
	case a.Schema != nil:
		return a.Schema.Execute(ctx, cfg)
	case a.Builds != nil:
		return a.Builds.Execute(ctx, cfg)
	default:
		return fmt.Errorf("no subcommand")
	}
}
