package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"

	"github.com/basekick-labs/drift/internal/config"
	"github.com/basekick-labs/drift/internal/ragged"
	"github.com/basekick-labs/drift/internal/schema"
	"github.com/basekick-labs/drift/internal/source"
)

type InspectCmd struct {
	Inputs []string `arg:"positional,required" help:"Drifter files or directories"`
}

func (c *InspectCmd) Execute(ctx context.Context, cfg *config.Config) error {
	paths, err := source.Expand(c.Inputs, cfg.Source.Pattern)
	if err != nil {
		return err
	}

	stager, err := source.NewStager(source.StagerOptions{
		Dir:     cfg.Source.StagingDir,
		Workers: cfg.Build.Workers,
		MaxSize: cfg.Source.MaxFileSize,
		Logger:  log.Logger,
	})
	if err != nil {
		return err
	}
	defer stager.Close()

	sources, err := stager.StageLocal(ctx, paths)
	if err != nil {
		return err
	}
	return inspect(ctx, os.Stdout, sources)
}

// inspect prints one line per source: observation count, ID and buoy type.
func inspect(ctx context.Context, w io.Writer, sources []ragged.Source) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tOBS\tID\tTYPE\tLOCATION")

	var total int
	for _, src := range sources {
		rec, err := src.Open(ctx)
		if err != nil {
			return fmt.Errorf("open %s: %w", src.Name(), err)
		}
		n, err := rec.Len()
		if err != nil {
			rec.Close()
			return fmt.Errorf("%s: %w", src.Name(), err)
		}
		total += n

		id := "-"
		if v, err := rec.Var(schema.IDField); err == nil {
			id = fmt.Sprint(first(v))
		}
		buoy, _ := rec.Attr("BuoyTypeManufacturer")
		loc, _ := rec.Attr("location_type")
		rec.Close()

		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", src.Name(), n, id, orDash(buoy), orDash(loc))
	}
	fmt.Fprintf(tw, "TOTAL\t%d\t\t\t\n", total)
	return tw.Flush()
}

// first returns the first element of a slice value, or v itself.
func first(v any) any {
	switch s := v.(type) {
	case []int64:
		if len(s) > 0 {
			return s[0]
		}
	case []int32:
		if len(s) > 0 {
			return s[0]
		}
	case []float64:
		if len(s) > 0 {
			return s[0]
		}
	default:
		return v
	}
	return "-"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
