package metrics

import (
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Build holds the counters of one ragged array build. All methods are
// safe for concurrent use by the pass workers; a nil *Build discards
// every update.
type Build struct {
	startTime time.Time

	// Sizing and fill passes
	recordsSized   atomic.Int64
	recordsFilled  atomic.Int64
	recordsSkipped atomic.Int64
	observations   atomic.Int64

	// Per-value decoding
	fillRewrites   atomic.Int64
	natDecoded     atomic.Int64
	parseFallbacks atomic.Int64
	truncations    atomic.Int64

	// Source staging
	bytesStaged   atomic.Int64
	filesStaged   atomic.Int64
	stagingErrors atomic.Int64

	// Archive output
	archivesWritten atomic.Int64
	archiveBytes    atomic.Int64
}

// NewBuild starts a counter set.
func NewBuild() *Build {
	return &Build{startTime: time.Now()}
}

func (m *Build) IncRecordsSized() {
	if m != nil {
		m.recordsSized.Add(1)
	}
}

func (m *Build) IncRecordsFilled() {
	if m != nil {
		m.recordsFilled.Add(1)
	}
}

func (m *Build) IncRecordsSkipped() {
	if m != nil {
		m.recordsSkipped.Add(1)
	}
}

func (m *Build) AddObservations(n int64) {
	if m != nil {
		m.observations.Add(n)
	}
}

func (m *Build) AddFillRewrites(n int64) {
	if m != nil && n > 0 {
		m.fillRewrites.Add(n)
	}
}

func (m *Build) AddNaT(n int64) {
	if m != nil && n > 0 {
		m.natDecoded.Add(n)
	}
}

func (m *Build) IncParseFallbacks() {
	if m != nil {
		m.parseFallbacks.Add(1)
	}
}

func (m *Build) IncTruncations() {
	if m != nil {
		m.truncations.Add(1)
	}
}

// RecordStaged counts one staged source file of n bytes.
func (m *Build) RecordStaged(n int64) {
	if m != nil {
		m.filesStaged.Add(1)
		m.bytesStaged.Add(n)
	}
}

func (m *Build) IncStagingErrors() {
	if m != nil {
		m.stagingErrors.Add(1)
	}
}

// RecordArchive counts one written archive of n bytes.
func (m *Build) RecordArchive(n int64) {
	if m != nil {
		m.archivesWritten.Add(1)
		m.archiveBytes.Add(n)
	}
}

// Skipped returns the number of records excluded from the build.
func (m *Build) Skipped() int64 {
	if m == nil {
		return 0
	}
	return m.recordsSkipped.Load()
}

// Elapsed returns the time since the counters were created.
func (m *Build) Elapsed() time.Duration {
	if m == nil {
		return 0
	}
	return time.Since(m.startTime)
}

// Snapshot returns the current counter values.
func (m *Build) Snapshot() map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	return map[string]int64{
		"records_sized":    m.recordsSized.Load(),
		"records_filled":   m.recordsFilled.Load(),
		"records_skipped":  m.recordsSkipped.Load(),
		"observations":     m.observations.Load(),
		"fill_rewrites":    m.fillRewrites.Load(),
		"nat_decoded":      m.natDecoded.Load(),
		"parse_fallbacks":  m.parseFallbacks.Load(),
		"truncations":      m.truncations.Load(),
		"files_staged":     m.filesStaged.Load(),
		"bytes_staged":     m.bytesStaged.Load(),
		"staging_errors":   m.stagingErrors.Load(),
		"archives_written": m.archivesWritten.Load(),
		"archive_bytes":    m.archiveBytes.Load(),
	}
}

// Log writes the counters as one structured line.
func (m *Build) Log(logger zerolog.Logger) {
	snap := m.Snapshot()
	ev := logger.Info()
	for _, name := range counterNames {
		ev = ev.Int64(name, snap[name])
	}
	ev.Dur("elapsed", m.Elapsed()).Msg("Build metrics")
}

var counterNames = []string{
	"records_sized", "records_filled", "records_skipped", "observations",
	"fill_rewrites", "nat_decoded", "parse_fallbacks", "truncations",
	"files_staged", "bytes_staged", "staging_errors",
	"archives_written", "archive_bytes",
}

var counterHelp = map[string]string{
	"records_sized":    "Records whose observation count was read",
	"records_filled":   "Records copied into the ragged array",
	"records_skipped":  "Malformed records excluded from the build",
	"observations":     "Observations in the ragged array",
	"fill_rewrites":    "Fill values rewritten to NaN",
	"nat_decoded":      "Timestamps decoded as NaT",
	"parse_fallbacks":  "Numeric attributes that fell back to their default",
	"truncations":      "Text values cut to their field width",
	"files_staged":     "Source files staged locally",
	"bytes_staged":     "Bytes of source files staged locally",
	"staging_errors":   "Source files that failed to stage",
	"archives_written": "Archive files written",
	"archive_bytes":    "Bytes of archive files written",
}

// PrometheusFormat returns the counters in Prometheus text exposition
// format, suitable for a node exporter textfile collector.
func (m *Build) PrometheusFormat() string {
	snap := m.Snapshot()

	var b []byte
	for _, name := range counterNames {
		metric := "drift_build_" + name
		b = append(b, "# HELP "+metric+" "+counterHelp[name]+"\n"...)
		b = append(b, "# TYPE "+metric+" gauge\n"...)
		b = appendMetric(b, metric, float64(snap[name]))
	}

	b = append(b, "# HELP drift_build_duration_seconds Wall time of the build\n"...)
	b = append(b, "# TYPE drift_build_duration_seconds gauge\n"...)
	b = appendMetric(b, "drift_build_duration_seconds", m.Elapsed().Seconds())

	b = append(b, "# HELP drift_build_info Build environment\n"...)
	b = append(b, "# TYPE drift_build_info gauge\n"...)
	b = appendMetricWithLabel(b, "drift_build_info", "go_version", runtime.Version(), 1)

	return string(b)
}

func appendMetric(b []byte, name string, value float64) []byte {
	b = append(b, name...)
	b = append(b, ' ')
	b = strconv.AppendFloat(b, value, 'f', -1, 64)
	b = append(b, '\n')
	return b
}

func appendMetricWithLabel(b []byte, name, labelName, labelValue string, value float64) []byte {
	b = append(b, name...)
	b = append(b, '{')
	b = append(b, labelName...)
	b = append(b, '=', '"')
	b = append(b, labelValue...)
	b = append(b, '"', '}', ' ')
	b = strconv.AppendFloat(b, value, 'f', -1, 64)
	b = append(b, '\n')
	return b
}
