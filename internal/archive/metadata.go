// Package archive serializes a built ragged array to netCDF, Parquet and
// CSV, and pushes the results to a storage backend.
package archive

import (
	"time"

	"github.com/basekick-labs/drift/internal/ragged"
	"github.com/basekick-labs/drift/internal/schema"
	"github.com/rickb777/period"
)

// Metadata holds the descriptive global attributes of an archive.
type Metadata struct {
	Title           string
	History         string
	Conventions     string
	PublisherName   string
	PublisherEmail  string
	PublisherURL    string
	Licence         string
	ProcessingLevel string
	MetadataLink    string
	ContributorName string
	ContributorRole string
	Institution     string
	Acknowledgement string
	Summary         string
}

// DefaultMetadata returns the attributes of the hourly GDP product.
func DefaultMetadata() Metadata {
	return Metadata{
		Title:           "Global Drifter Program hourly drifting buoy collection",
		History:         "Version 2.00.  Metadata from dirall.dat and deplog.dat",
		Conventions:     "CF-1.6",
		PublisherName:   "GDP Drifter DAC",
		PublisherEmail:  "aoml.dftr@noaa.gov",
		PublisherURL:    "https://www.aoml.noaa.gov/phod/gdp",
		Licence:         "MIT License",
		ProcessingLevel: "Level 2 QC by GDP drifter DAC",
		MetadataLink:    "https://www.aoml.noaa.gov/phod/dac/dirall.html",
		ContributorName: "NOAA Global Drifter Program",
		ContributorRole: "Data Acquisition Center",
		Institution:     "NOAA Atlantic Oceanographic and Meteorological Laboratory",
		Acknowledgement: "Elipot et al. (2022) to be submitted. Elipot et al. (2016). Global Drifter Program " +
			"quality-controlled hourly interpolated data from ocean surface drifting buoys, version 2.00. " +
			"NOAA National Centers for Environmental Information. " +
			"https://agupubs.onlinelibrary.wiley.com/doi/full/10.1002/2016JC011716TBA. Accessed [date].",
		Summary: "Global Drifter Program hourly data",
	}
}

// Merge returns m with every non-empty field of o applied on top.
func (m Metadata) Merge(o Metadata) Metadata {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&m.Title, o.Title)
	set(&m.History, o.History)
	set(&m.Conventions, o.Conventions)
	set(&m.PublisherName, o.PublisherName)
	set(&m.PublisherEmail, o.PublisherEmail)
	set(&m.PublisherURL, o.PublisherURL)
	set(&m.Licence, o.Licence)
	set(&m.ProcessingLevel, o.ProcessingLevel)
	set(&m.MetadataLink, o.MetadataLink)
	set(&m.ContributorName, o.ContributorName)
	set(&m.ContributorRole, o.ContributorRole)
	set(&m.Institution, o.Institution)
	set(&m.Acknowledgement, o.Acknowledgement)
	set(&m.Summary, o.Summary)
	return m
}

// Attribute is one global attribute, in output order.
type Attribute struct {
	Name  string
	Value string
}

// Coverage returns the earliest and latest valid observation times of a.
// ok is false when a has no valid time.
func Coverage(a *ragged.Array) (start, end time.Time, ok bool) {
	times, err := ragged.Get[int64](a, schema.TimeField)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	lo, hi := int64(0), int64(0)
	for _, t := range times {
		if t == ragged.NaT {
			continue
		}
		if !ok || t < lo {
			lo = t
		}
		if !ok || t > hi {
			hi = t
		}
		ok = true
	}
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return time.Unix(lo, 0).UTC(), time.Unix(hi, 0).UTC(), true
}

// GlobalAttributes returns the archive attributes of a: the descriptive
// metadata followed by the id, creation time and time coverage.
func GlobalAttributes(a *ragged.Array, meta Metadata, id string, created time.Time) []Attribute {
	attrs := []Attribute{
		{"title", meta.Title},
		{"history", meta.History},
		{"Conventions", meta.Conventions},
		{"date_created", created.UTC().Format(time.RFC3339)},
		{"publisher_name", meta.PublisherName},
		{"publisher_email", meta.PublisherEmail},
		{"publisher_url", meta.PublisherURL},
		{"licence", meta.Licence},
		{"processing_level", meta.ProcessingLevel},
		{"metadata_link", meta.MetadataLink},
		{"contributor_name", meta.ContributorName},
		{"contributor_role", meta.ContributorRole},
		{"institution", meta.Institution},
		{"acknowledgement", meta.Acknowledgement},
		{"summary", meta.Summary},
		{"id", id},
	}
	if start, end, ok := Coverage(a); ok {
		attrs = append(attrs,
			Attribute{"time_coverage_start", start.Format(time.RFC3339)},
			Attribute{"time_coverage_end", end.Format(time.RFC3339)},
			Attribute{"time_coverage_duration", period.Between(start, end).String()},
		)
	}
	return attrs
}

// attrMap returns attrs as a name to value map.
func attrMap(attrs []Attribute) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, at := range attrs {
		m[at.Name] = at.Value
	}
	return m
}
