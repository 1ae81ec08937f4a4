package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/basekick-labs/drift/internal/archive"
	"github.com/basekick-labs/drift/internal/catalog"
	"github.com/basekick-labs/drift/internal/config"
	"github.com/basekick-labs/drift/internal/metrics"
	"github.com/basekick-labs/drift/internal/progress"
	"github.com/basekick-labs/drift/internal/ragged"
	"github.com/basekick-labs/drift/internal/shutdown"
	"github.com/basekick-labs/drift/internal/source"
	"github.com/basekick-labs/drift/internal/storage"
	"github.com/basekick-labs/drift/internal/verify"
)

type BuildCmd struct {
	Inputs      []string `arg:"positional" help:"Drifter files or directories. Without inputs, source.prefix is listed on the source backend"`
	Output      string   `arg:"-o,--output" help:"Archive object path without extension (default: archive.output)"`
	Formats     []string `arg:"-f,--format" help:"Output formats: netcdf, parquet, csv"`
	Workers     int      `arg:"-w,--workers" help:"Concurrent records per pass (default: build.workers)"`
	OnError     string   `arg:"--on-error" help:"fail or skip (default: build.on_error)"`
	NoProgress  bool     `arg:"--no-progress" help:"Disable the progress bars"`
	Verify      bool     `arg:"--verify" help:"Check the Parquet archive with DuckDB after writing"`
	MetricsFile string   `arg:"--metrics-file" help:"Write build counters in Prometheus text format to this file"`
}

// apply overlays the command line flags on cfg.
func (c *BuildCmd) apply(cfg *config.Config) error {
	if c.Output != "" {
		cfg.Archive.Output = c.Output
	}
	if len(c.Formats) > 0 {
		cfg.Archive.Formats = c.Formats
	}
	if c.Workers > 0 {
		cfg.Build.Workers = c.Workers
	}
	if c.OnError != "" {
		cfg.Build.OnError = c.OnError
	}
	return cfg.Validate()
}

func (c *BuildCmd) Execute(ctx context.Context, cfg *config.Config) (err error) {
	if err := c.apply(cfg); err != nil {
		return err
	}

	coord := shutdown.New(ctx, 30*time.Second, log.Logger)
	defer func() {
		if serr := coord.Shutdown(); serr != nil && err == nil {
			err = serr
		}
	}()
	ctx = coord.Context()

	var observer ragged.Observer = progress.Nop{}
	if !c.NoProgress {
		observer = progress.New(os.Stderr)
	}

	backend, err := storage.New(cfg.StorageFor(""), log.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	coord.Register("storage", backend, shutdown.PriorityStorage)

	m := metrics.NewBuild()
	stagerOpts := source.StagerOptions{
		Dir:      cfg.Source.StagingDir,
		Workers:  cfg.Build.Workers,
		MaxSize:  cfg.Source.MaxFileSize,
		Metrics:  m,
		Observer: observer,
		Logger:   log.Logger,
	}

	var sources []ragged.Source
	var stager *source.Stager
	if len(c.Inputs) > 0 {
		paths, err := source.Expand(c.Inputs, cfg.Source.Pattern)
		if err != nil {
			return err
		}
		stager, err = source.NewStager(stagerOpts)
		if err != nil {
			return err
		}
		coord.Register("staging", stager, shutdown.PriorityStaging)
		sources, err = stager.StageLocal(ctx, paths)
		if err != nil {
			return err
		}
	} else {
		srcBackend := backend
		if cfg.Source.Backend != "" && cfg.Source.Backend != cfg.Storage.Backend {
			srcBackend, err = storage.New(cfg.StorageFor(cfg.Source.Backend), log.Logger)
			if err != nil {
				return fmt.Errorf("failed to initialize source storage: %w", err)
			}
			coord.Register("source-storage", srcBackend, shutdown.PriorityStorage)
		}
		stagerOpts.Backend = srcBackend
		stager, err = source.NewStager(stagerOpts)
		if err != nil {
			return err
		}
		coord.Register("staging", stager, shutdown.PriorityStaging)
		sources, err = stager.StageRemote(ctx, cfg.Source.Prefix, cfg.Source.Pattern)
		if err != nil {
			return err
		}
	}

	p := &pipeline{
		cfg:      cfg,
		backend:  backend,
		metrics:  m,
		observer: observer,
		verify:   c.Verify,
		tempDir:  stager.Dir(),
		out:      os.Stdout,
		logger:   log.Logger,
	}
	if cfg.Catalog.Enabled {
		cat, err := catalog.Open(cfg.Catalog.Path, log.Logger)
		if err != nil {
			return err
		}
		coord.Register("catalog", cat, shutdown.PriorityCatalog)
		p.catalog = cat
	}

	if _, err := p.run(ctx, sources); err != nil {
		return err
	}

	if c.MetricsFile != "" {
		if err := os.WriteFile(c.MetricsFile, []byte(m.PrometheusFormat()), 0644); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

// pipeline builds, archives, verifies and records one ragged array.
type pipeline struct {
	cfg      *config.Config
	backend  storage.Backend
	catalog  *catalog.Catalog // nil disables recording
	metrics  *metrics.Build
	observer ragged.Observer
	verify   bool
	tempDir  string
	out      io.Writer
	logger   zerolog.Logger
}

func (p *pipeline) archiveOptions() archive.Options {
	a := p.cfg.Archive
	meta := p.cfg.Metadata
	return archive.Options{
		Formats: a.Formats,
		Output:  a.Output,
		Parquet: archive.ParquetOptions{
			Compression:      a.Compression,
			CompressionLevel: a.CompressionLevel,
			RowGroupSize:     a.RowGroupSize,
			Dictionary:       true,
			Statistics:       true,
		},
		StreamCompression: a.StreamCompression,
		Metadata: archive.DefaultMetadata().Merge(archive.Metadata{
			Title:           meta.Title,
			Summary:         meta.Summary,
			PublisherName:   meta.PublisherName,
			PublisherEmail:  meta.PublisherEmail,
			PublisherURL:    meta.PublisherURL,
			Institution:     meta.Institution,
			ContributorName: meta.ContributorName,
			ContributorRole: meta.ContributorRole,
			Licence:         meta.Licence,
		}),
		TempDir: p.tempDir,
	}
}

func (p *pipeline) run(ctx context.Context, sources []ragged.Source) (_ *archive.Result, err error) {
	policy, err := ragged.ParsePolicy(p.cfg.Build.OnError)
	if err != nil {
		return nil, err
	}

	ar, err := archive.New(p.backend, p.archiveOptions(), p.metrics, p.logger)
	if err != nil {
		return nil, err
	}

	arr, err := ragged.Build(ctx, sources, ragged.Options{
		Workers:  p.cfg.Build.Workers,
		OnError:  policy,
		Metrics:  p.metrics,
		Observer: p.observer,
		Logger:   p.logger,
	})
	if err != nil {
		return nil, err
	}

	res, err := ar.Write(ctx, arr)
	if err != nil {
		return nil, err
	}
	// a build that fails verification or cataloguing leaves no archive behind
	defer func() {
		if err != nil {
			ar.Discard(ctx, res)
		}
	}()

	if p.verify && slices.Contains(p.cfg.Archive.Formats, archive.FormatParquet) {
		v, err := verify.New(verify.Config{}, arr.Schema(), p.logger)
		if err != nil {
			return nil, err
		}
		defer v.Close()
		report, err := v.VerifyObject(ctx, p.backend, ar.Key(archive.FormatParquet), p.tempDir, verify.ExpectArray(arr))
		if err != nil {
			return nil, err
		}
		p.logger.Info().
			Str("archive", report.Path).
			Int64("trajectories", report.Trajectories).
			Int64("observations", report.Observations).
			Msg("Archive verified")
	}

	uris := make([]string, len(res.Outputs))
	for i, o := range res.Outputs {
		uris[i] = o.URI
	}

	if p.catalog != nil {
		err := p.catalog.Record(ctx, &catalog.Build{
			ID:           res.ID,
			CreatedAt:    res.Created,
			Trajectories: arr.NumTrajectories(),
			Observations: int64(arr.NumObservations()),
			Skipped:      p.metrics.Skipped(),
			Policy:       policy.String(),
			Sources:      arr.Sources(),
			Outputs:      uris,
			Elapsed:      p.metrics.Elapsed(),
		})
		if err != nil {
			return nil, err
		}
	}

	p.metrics.Log(p.logger)
	fmt.Fprintf(p.out, "build %s: %d trajectories, %d observations, %d skipped\n",
		res.ID, arr.NumTrajectories(), arr.NumObservations(), p.metrics.Skipped())
	for _, uri := range uris {
		fmt.Fprintf(p.out, "  %s\n", uri)
	}
	return res, nil
}
