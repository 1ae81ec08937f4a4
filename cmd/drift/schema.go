package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/basekick-labs/drift/internal/config"
	"github.com/basekick-labs/drift/internal/schema"
)

type SchemaCmd struct {
	Dim string `arg:"--dim" help:"Only print fields along traj or obs"`
}

func (c *SchemaCmd) Execute(ctx context.Context, cfg *config.Config) error {
	return printSchema(os.Stdout, schema.GDP(), c.Dim)
}

var origins = map[schema.Origin]string{
	schema.Derived:   "derived",
	schema.Variable:  "variable",
	schema.Attribute: "attribute",
}

func printSchema(w io.Writer, s *schema.Schema, dim string) error {
	switch dim {
	case "", "traj", "obs":
	default:
		return fmt.Errorf("invalid dim %q (use traj or obs)", dim)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDIM\tKIND\tSOURCE\tUNITS\tLONG NAME")
	for _, f := range s.Fields() {
		if dim != "" && f.Dim.String() != dim {
			continue
		}
		src := origins[f.Origin]
		if f.Source != "" {
			src += ":" + f.Source
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", f.Name, f.Dim, f.Kind, src, orDash(f.Units), f.LongName)
	}
	return tw.Flush()
}
