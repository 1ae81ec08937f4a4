package metrics

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildCountersConcurrent(t *testing.T) {
	m := NewBuild()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.IncRecordsFilled()
				m.AddObservations(3)
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, int64(800), snap["records_filled"])
	assert.Equal(t, int64(2400), snap["observations"])
}

func TestNilBuildIsNoop(t *testing.T) {
	var m *Build
	m.IncRecordsSkipped()
	m.AddFillRewrites(4)
	m.RecordArchive(10)

	assert.Equal(t, int64(0), m.Skipped())
	assert.Empty(t, m.Snapshot())
}

func TestPrometheusFormat(t *testing.T) {
	m := NewBuild()
	m.AddFillRewrites(2)
	m.AddFillRewrites(0)
	m.RecordStaged(1024)

	out := m.PrometheusFormat()
	assert.Contains(t, out, "drift_build_fill_rewrites 2\n")
	assert.Contains(t, out, "drift_build_bytes_staged 1024\n")
	assert.Contains(t, out, "# TYPE drift_build_observations gauge\n")
	assert.True(t, strings.Contains(out, `drift_build_info{go_version="go`))
}
