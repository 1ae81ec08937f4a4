package ragged

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/basekick-labs/drift/internal/metrics"
	"github.com/basekick-labs/drift/internal/schema"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Policy selects how the sizing pass reacts to a malformed record.
type Policy int

const (
	// FailFast aborts the build on the first malformed record.
	FailFast Policy = iota
	// SkipMalformed logs and excludes records that fail the sizing pass.
	// Failures during the fill pass still abort the build.
	SkipMalformed
)

func (p Policy) String() string {
	if p == SkipMalformed {
		return "skip"
	}
	return "fail"
}

// ParsePolicy parses "fail" or "skip".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail":
		return FailFast, nil
	case "skip":
		return SkipMalformed, nil
	default:
		return FailFast, fmt.Errorf("invalid on_error policy %q (valid: fail, skip)", s)
	}
}

// Pass names one of the two build passes.
type Pass string

const (
	SizingPass Pass = "sizing"
	FillPass   Pass = "fill"
)

// Observer receives build progress. Done is called concurrently.
type Observer interface {
	Start(pass Pass, total int)
	Done(pass Pass)
	Finish(pass Pass)
}

// Options configures a Builder.
type Options struct {
	Schema   *schema.Schema // defaults to schema.GDP()
	Workers  int            // defaults to runtime.NumCPU()
	OnError  Policy
	Metrics  *metrics.Build
	Observer Observer
	Logger   zerolog.Logger
}

// Builder builds contiguous ragged arrays from single-trajectory records.
type Builder struct {
	schema   *schema.Schema
	workers  int
	policy   Policy
	metrics  *metrics.Build
	observer Observer
	logger   zerolog.Logger
}

// NewBuilder validates opts and returns a Builder.
func NewBuilder(opts Options) (*Builder, error) {
	s := opts.Schema
	if s == nil {
		s = schema.GDP()
	}
	if err := checkDerived(s); err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Builder{
		schema:   s,
		workers:  workers,
		policy:   opts.OnError,
		metrics:  opts.Metrics,
		observer: opts.Observer,
		logger:   opts.Logger.With().Str("component", "ragged-builder").Logger(),
	}, nil
}

// checkDerived makes sure the fields derived values read from exist with
// the right kind.
func checkDerived(s *schema.Schema) error {
	need := func(name string, dim schema.Dim, kind schema.Kind) error {
		f, ok := s.Lookup(name)
		if !ok || f.Dim != dim || f.Kind != kind {
			return fmt.Errorf("%w: derived fields require %s %s field %q", schema.ErrInvalidField, dim, kind, name)
		}
		return nil
	}
	for _, f := range s.Fields() {
		switch f.Decode {
		case schema.RepeatID:
			if err := need(schema.IDField, schema.Trajectory, schema.Int64); err != nil {
				return err
			}
		case schema.DroguePresence:
			if err := need(schema.DrogueLostField, schema.Trajectory, schema.Time); err != nil {
				return err
			}
			if err := need(schema.TimeField, schema.Observation, schema.Time); err != nil {
				return err
			}
		}
	}
	return nil
}

// Build is a shorthand for NewBuilder(opts) followed by Builder.Build.
func Build(ctx context.Context, sources []Source, opts Options) (*Array, error) {
	b, err := NewBuilder(opts)
	if err != nil {
		return nil, err
	}
	return b.Build(ctx, sources)
}

// Build sizes every source, allocates the flat buffers once, then fills
// them. Trajectories keep the order of sources. No array is returned
// unless both passes succeed.
func (b *Builder) Build(ctx context.Context, sources []Source) (*Array, error) {
	start := time.Now()

	rowsize, kept, err := b.size(ctx, sources)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(kept))
	for i, src := range kept {
		names[i] = src.Name()
	}
	a, err := newArray(b.schema, names, rowsize)
	if err != nil {
		return nil, err
	}

	b.logger.Info().
		Int("records", len(sources)).
		Int("trajectories", a.NumTrajectories()).
		Int("observations", a.NumObservations()).
		Int("skipped", len(sources)-len(kept)).
		Dur("elapsed", time.Since(start)).
		Msg("Sizing pass complete")

	fillStart := time.Now()
	if err := b.fill(ctx, a, kept); err != nil {
		return nil, err
	}

	b.logger.Info().
		Int("trajectories", a.NumTrajectories()).
		Int("observations", a.NumObservations()).
		Dur("elapsed", time.Since(fillStart)).
		Msg("Fill pass complete")

	return a, nil
}

// size runs the sizing pass and returns the row sizes of the kept
// sources, in input order.
func (b *Builder) size(ctx context.Context, sources []Source) ([]int64, []Source, error) {
	b.start(SizingPass, len(sources))
	defer b.finish(SizingPass)

	counts := make([]int64, len(sources))
	failed := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, src := range sources {
		g.Go(func() error {
			defer b.done(SizingPass)
			n, err := b.sizeOne(gctx, i, src)
			if err != nil {
				if b.policy == SkipMalformed && gctx.Err() == nil {
					failed[i] = err
					b.metrics.IncRecordsSkipped()
					b.logger.Warn().Err(err).Str("source", src.Name()).Msg("Skipping malformed record")
					return nil
				}
				return err
			}
			counts[i] = n
			b.metrics.IncRecordsSized()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	rowsize := make([]int64, 0, len(sources))
	kept := make([]Source, 0, len(sources))
	for i, src := range sources {
		if failed[i] != nil {
			continue
		}
		rowsize = append(rowsize, counts[i])
		kept = append(kept, src)
	}
	return rowsize, kept, nil
}

func (b *Builder) sizeOne(ctx context.Context, i int, src Source) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	wrap := func(field string, err error) error {
		return &RecordError{Index: i, Name: src.Name(), Field: field, Err: err}
	}

	rec, err := src.Open(ctx)
	if err != nil {
		return 0, wrap("", err)
	}
	defer rec.Close()

	n, err := rec.Len()
	if err != nil {
		return 0, wrap("", err)
	}
	if n < 0 {
		return 0, wrap("", fmt.Errorf("%w: negative observation count %d", ErrShapeMismatch, n))
	}

	for _, f := range b.schema.Fields() {
		switch f.Origin {
		case schema.Variable:
			if !rec.Has(f.Source) {
				return 0, wrap(f.Name, fmt.Errorf("%w: variable %s", ErrMissingField, f.Source))
			}
		case schema.Attribute:
			if _, ok := rec.Attr(f.Source); !ok {
				return 0, wrap(f.Name, fmt.Errorf("%w: attribute %s", ErrMissingField, f.Source))
			}
		}
	}

	b.logger.Debug().Str("source", src.Name()).Int("obs", n).Msg("Sized record")
	return int64(n), nil
}

// fill runs the fill pass. Every worker writes slot i of the trajectory
// columns and range [index[i], index[i+1]) of the observation columns,
// so workers never share a destination element.
func (b *Builder) fill(ctx context.Context, a *Array, sources []Source) error {
	b.start(FillPass, len(sources))
	defer b.finish(FillPass)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, src := range sources {
		g.Go(func() error {
			defer b.done(FillPass)
			if err := b.fillOne(gctx, a, i, src); err != nil {
				var re *RecordError
				if errors.As(err, &re) {
					return err
				}
				return &RecordError{Index: i, Name: src.Name(), Err: err}
			}
			b.metrics.IncRecordsFilled()
			b.metrics.AddObservations(a.rowsize[i])
			return nil
		})
	}
	return g.Wait()
}

func (b *Builder) fillOne(ctx context.Context, a *Array, i int, src Source) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rec, err := src.Open(ctx)
	if err != nil {
		return err
	}
	defer rec.Close()

	lo, hi := a.Bounds(i)
	n, err := rec.Len()
	if err != nil {
		return err
	}
	if n != hi-lo {
		return fmt.Errorf("%w: record has %d observations, sized as %d", ErrShapeMismatch, n, hi-lo)
	}

	// Derived observation fields read decoded trajectory and time
	// values, so they go last.
	var derived []Column
	for _, col := range a.columns {
		f := col.Field()
		if f.Decode == schema.RepeatID || f.Decode == schema.DroguePresence {
			derived = append(derived, col)
			continue
		}
		if err := b.decode(rec, col, i, lo, hi); err != nil {
			return &RecordError{Index: i, Name: src.Name(), Field: f.Name, Err: err}
		}
	}
	for _, col := range derived {
		if err := b.derive(a, col, i, lo, hi); err != nil {
			return &RecordError{Index: i, Name: src.Name(), Field: col.Field().Name, Err: err}
		}
	}

	b.logger.Debug().Str("source", src.Name()).Int("offset", lo).Int("obs", n).Msg("Filled record")
	return nil
}

// decode reads one field of record i into col.
func (b *Builder) decode(rec Record, col Column, i, lo, hi int) error {
	f := col.Field()
	traj := f.Dim == schema.Trajectory

	switch f.Decode {
	case schema.RowSize:
		return nil

	case schema.Copy:
		v, err := rec.Var(f.Source)
		if err != nil {
			return err
		}
		if traj {
			return assignFirst(col, i, v)
		}
		return assign(col, lo, hi, v)

	case schema.FillValue:
		v, err := rec.Var(f.Source)
		if err != nil {
			return err
		}
		if traj {
			lo, hi = i, i+1
			if err := assignFirst(col, i, v); err != nil {
				return err
			}
		} else if err := assign(col, lo, hi, v); err != nil {
			return err
		}
		var n int
		switch c := col.(type) {
		case *Values[float32]:
			n = FillValues(c.data[lo:hi])
		case *Values[float64]:
			n = FillValues(c.data[lo:hi])
		}
		b.metrics.AddFillRewrites(int64(n))
		return nil

	case schema.Epoch:
		v, err := rec.Var(f.Source)
		if err != nil {
			return err
		}
		secs, err := toSlice[float64](v)
		if err != nil {
			return err
		}
		c, ok := col.(*Values[int64])
		if !ok {
			return fmt.Errorf("%w: time column %s", ErrKindMismatch, f.Name)
		}
		if traj {
			if len(secs) == 0 {
				return fmt.Errorf("%w: empty trajectory value", ErrShapeMismatch)
			}
			secs, lo, hi = secs[:1], i, i+1
		} else if len(secs) != hi-lo {
			return fmt.Errorf("%w: got %d values, want %d", ErrShapeMismatch, len(secs), hi-lo)
		}
		var nat int64
		dst := c.data[lo:hi]
		for k, s := range secs {
			dst[k] = DecodeTime(s)
			if dst[k] == NaT {
				nat++
			}
		}
		b.metrics.AddNaT(nat)
		return nil

	case schema.Truncate:
		s, err := textField(rec, f)
		if err != nil {
			return err
		}
		c, ok := col.(*Values[string])
		if !ok || !traj {
			return fmt.Errorf("%w: text column %s", ErrKindMismatch, f.Name)
		}
		c.data[i] = Truncate(s, f.Width)
		if len(c.data[i]) < len(s) {
			b.metrics.IncTruncations()
		}
		return nil

	case schema.Numeric:
		s, ok := rec.Attr(f.Source)
		if !ok {
			return fmt.Errorf("%w: attribute %s", ErrMissingField, f.Source)
		}
		v, parsed := ParseNumericText(s, f.SuffixWidth, f.Fallback)
		if !parsed {
			b.metrics.IncParseFallbacks()
		}
		return setNumber(col, i, v)

	case schema.LocationType:
		s, ok := rec.Attr(f.Source)
		if !ok {
			return fmt.Errorf("%w: attribute %s", ErrMissingField, f.Source)
		}
		return setNumber(col, i, boolValue(s != "Argos"))

	default:
		return fmt.Errorf("%w: decode %d for %s", ErrUnsupportedType, f.Decode, f.Name)
	}
}

// derive computes a derived observation field of trajectory i.
func (b *Builder) derive(a *Array, col Column, i, lo, hi int) error {
	switch c := col.(type) {
	case *Values[int64]:
		ids, err := Get[int64](a, schema.IDField)
		if err != nil {
			return err
		}
		dst := c.data[lo:hi]
		for k := range dst {
			dst[k] = ids[i]
		}
		return nil
	case *Values[bool]:
		lost, err := Get[int64](a, schema.DrogueLostField)
		if err != nil {
			return err
		}
		times, err := Get[int64](a, schema.TimeField)
		if err != nil {
			return err
		}
		DroguePresence(lost[i], times[lo:hi], c.data[lo:hi])
		return nil
	default:
		return fmt.Errorf("%w: derived column %s", ErrKindMismatch, col.Field().Name)
	}
}

func textField(rec Record, f *schema.Field) (string, error) {
	if f.Origin == schema.Attribute {
		s, ok := rec.Attr(f.Source)
		if !ok {
			return "", fmt.Errorf("%w: attribute %s", ErrMissingField, f.Source)
		}
		return s, nil
	}
	v, err := rec.Var(f.Source)
	if err != nil {
		return "", err
	}
	return text(v)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (b *Builder) start(pass Pass, total int) {
	if b.observer != nil {
		b.observer.Start(pass, total)
	}
}

func (b *Builder) done(pass Pass) {
	if b.observer != nil {
		b.observer.Done(pass)
	}
}

func (b *Builder) finish(pass Pass) {
	if b.observer != nil {
		b.observer.Finish(pass)
	}
}
