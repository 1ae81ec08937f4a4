package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/basekick-labs/drift/internal/catalog"
	"github.com/basekick-labs/drift/internal/config"
	"github.com/basekick-labs/drift/internal/storage"
	"github.com/basekick-labs/drift/internal/verify"
)

type VerifyCmd struct {
	Archive      string `arg:"positional,required" help:"Object path of the Parquet archive on the storage backend"`
	Build        string `arg:"-b,--build" help:"Catalog build ID providing the expected dimensions"`
	Trajectories int    `arg:"--trajectories" help:"Expected number of trajectories"`
	Observations int64  `arg:"--observations" help:"Expected number of observations"`
	MemoryLimit  string `arg:"--memory-limit" help:"DuckDB memory_limit, e.g. 2GB"`
}

func (c *VerifyCmd) expect(ctx context.Context, cfg *config.Config) (*verify.Expect, error) {
	if c.Build != "" {
		cat, err := catalog.Open(cfg.Catalog.Path, log.Logger)
		if err != nil {
			return nil, err
		}
		defer cat.Close()
		b, err := cat.Get(ctx, c.Build)
		if err != nil {
			return nil, err
		}
		return &verify.Expect{Trajectories: b.Trajectories, Observations: b.Observations}, nil
	}
	if c.Trajectories > 0 || c.Observations > 0 {
		return &verify.Expect{Trajectories: c.Trajectories, Observations: c.Observations}, nil
	}
	return nil, nil
}

func (c *VerifyCmd) Execute(ctx context.Context, cfg *config.Config) error {
	exp, err := c.expect(ctx, cfg)
	if err != nil {
		return err
	}

	backend, err := storage.New(cfg.StorageFor(""), log.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer backend.Close()

	v, err := verify.New(verify.Config{MemoryLimit: c.MemoryLimit}, nil, log.Logger)
	if err != nil {
		return err
	}
	defer v.Close()

	// Without expectations the archive is only checked for internal
	// consistency against its own rowsize.
	want := verify.Expect{}
	if exp != nil {
		want = *exp
	}
	report, err := v.VerifyObject(ctx, backend, c.Archive, cfg.Source.StagingDir, want)
	if report != nil {
		printReport(os.Stdout, report)
	}
	if err != nil && exp == nil && report != nil {
		want = verify.Expect{Trajectories: int(report.Trajectories), Observations: report.Observations}
		err = report.Compare(want)
	}
	return err
}

func printReport(w io.Writer, r *verify.Report) {
	fmt.Fprintf(w, "%s: %d trajectories, %d observations\n", r.Path, r.Trajectories, r.Observations)
	for _, f := range r.Fields {
		status := "ok"
		if f.Mismatches > 0 {
			status = fmt.Sprintf("%d rowsize mismatches", f.Mismatches)
		}
		fmt.Fprintf(w, "  %-14s %10d  %s\n", f.Name, f.Observations, status)
	}
}
