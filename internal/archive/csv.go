package archive

import (
	"fmt"
	"io"
	"time"

	"github.com/basekick-labs/drift/internal/nested"
	"github.com/basekick-labs/drift/internal/ragged"
	"github.com/basekick-labs/drift/internal/schema"
	"github.com/gocarina/gocsv"
)

// TrajectoryRow is one line of the CSV trajectory table.
type TrajectoryRow struct {
	ID             int64   `csv:"ID"`
	RowSize        int64   `csv:"rowsize"`
	WMO            int32   `csv:"WMO"`
	ExpNo          int32   `csv:"expno"`
	LocationType   string  `csv:"location_type"`
	DeployDate     string  `csv:"deploy_date"`
	DeployLat      float32 `csv:"deploy_lat"`
	DeployLon      float32 `csv:"deploy_lon"`
	EndDate        string  `csv:"end_date"`
	EndLat         float32 `csv:"end_lat"`
	EndLon         float32 `csv:"end_lon"`
	DrogueLostDate string  `csv:"drogue_lost_date"`
	TypeDeath      int8    `csv:"type_death"`
	TypeBuoy       string  `csv:"type_buoy"`
	FirstTime      string  `csv:"first_time"`
	LastTime       string  `csv:"last_time"`
	Source         string  `csv:"source"`
}

// formatTime renders a decoded time, or an empty cell for NaT.
func formatTime(v int64) string {
	t, ok := ragged.TimeOf(v)
	if !ok {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// TrajectoryTable returns one row per trajectory of a GDP array.
func TrajectoryTable(a *ragged.Array) ([]*TrajectoryRow, error) {
	view, err := nested.New(a, nested.ZeroCopy)
	if err != nil {
		return nil, err
	}

	var (
		ids, rowsize      []int64
		wmo, expno        []int32
		deploy, end, lost []int64
		dLat, dLon        []float32
		eLat, eLon        []float32
		death             []int8
		buoy              []string
		location          []bool
		firstErr          error
	)
	take := func(dst any, name string) {
		if firstErr != nil {
			return
		}
		switch d := dst.(type) {
		case *[]int64:
			*d, firstErr = nested.Trajectory[int64](view, name)
		case *[]int32:
			*d, firstErr = nested.Trajectory[int32](view, name)
		case *[]float32:
			*d, firstErr = nested.Trajectory[float32](view, name)
		case *[]int8:
			*d, firstErr = nested.Trajectory[int8](view, name)
		case *[]string:
			*d, firstErr = nested.Trajectory[string](view, name)
		case *[]bool:
			*d, firstErr = nested.Trajectory[bool](view, name)
		}
	}
	take(&ids, schema.IDField)
	take(&rowsize, "rowsize")
	take(&wmo, "WMO")
	take(&expno, "expno")
	take(&location, "location_type")
	take(&deploy, "deploy_date")
	take(&dLat, "deploy_lat")
	take(&dLon, "deploy_lon")
	take(&end, "end_date")
	take(&eLat, "end_lat")
	take(&eLon, "end_lon")
	take(&lost, schema.DrogueLostField)
	take(&death, "type_death")
	take(&buoy, "type_buoy")
	if firstErr != nil {
		return nil, fmt.Errorf("trajectory table: %w", firstErr)
	}

	times, err := nested.Observations[int64](view, schema.TimeField)
	if err != nil {
		return nil, fmt.Errorf("trajectory table: %w", err)
	}

	sources := a.Sources()
	rows := make([]*TrajectoryRow, view.Len())
	for i := range rows {
		loc := "Argos"
		if location[i] {
			loc = "GPS"
		}
		row := &TrajectoryRow{
			ID:             ids[i],
			RowSize:        rowsize[i],
			WMO:            wmo[i],
			ExpNo:          expno[i],
			LocationType:   loc,
			DeployDate:     formatTime(deploy[i]),
			DeployLat:      dLat[i],
			DeployLon:      dLon[i],
			EndDate:        formatTime(end[i]),
			EndLat:         eLat[i],
			EndLon:         eLon[i],
			DrogueLostDate: formatTime(lost[i]),
			TypeDeath:      death[i],
			TypeBuoy:       buoy[i],
		}
		if obs := times.At(i); len(obs) > 0 {
			row.FirstTime = formatTime(obs[0])
			row.LastTime = formatTime(obs[len(obs)-1])
		}
		if i < len(sources) {
			row.Source = sources[i]
		}
		rows[i] = row
	}
	return rows, nil
}

// WriteCSV writes the trajectory table of a to w.
func WriteCSV(w io.Writer, a *ragged.Array) error {
	rows, err := TrajectoryTable(a)
	if err != nil {
		return err
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}
