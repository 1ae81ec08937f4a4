package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/basekick-labs/drift/internal/catalog"
	"github.com/basekick-labs/drift/internal/config"
)

type BuildsCmd struct {
	Limit int    `arg:"-n,--limit" default:"20" help:"Number of builds to list (0 lists all)"`
	ID    string `arg:"positional" help:"Show one build in detail"`
}

func (c *BuildsCmd) Execute(ctx context.Context, cfg *config.Config) error {
	cat, err := catalog.Open(cfg.Catalog.Path, log.Logger)
	if err != nil {
		return err
	}
	defer cat.Close()

	if c.ID != "" {
		b, err := cat.Get(ctx, c.ID)
		if err != nil {
			return err
		}
		printBuild(os.Stdout, b)
		return nil
	}

	builds, err := cat.List(ctx, c.Limit)
	if err != nil {
		return err
	}
	return printBuilds(os.Stdout, builds)
}

func printBuilds(w io.Writer, builds []*catalog.Build) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tTRAJ\tOBS\tSKIPPED\tELAPSED")
	for _, b := range builds {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			b.ID, b.CreatedAt.Format(time.RFC3339), b.Trajectories, b.Observations, b.Skipped, b.Elapsed)
	}
	return tw.Flush()
}

func printBuild(w io.Writer, b *catalog.Build) {
	fmt.Fprintf(w, "id:           %s\n", b.ID)
	fmt.Fprintf(w, "created:      %s\n", b.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "trajectories: %d\n", b.Trajectories)
	fmt.Fprintf(w, "observations: %d\n", b.Observations)
	fmt.Fprintf(w, "skipped:      %d (on_error=%s)\n", b.Skipped, b.Policy)
	fmt.Fprintf(w, "elapsed:      %s\n", b.Elapsed)
	fmt.Fprintf(w, "outputs:\n  %s\n", strings.Join(b.Outputs, "\n  "))
	fmt.Fprintf(w, "sources:      %d files\n", len(b.Sources))
}
