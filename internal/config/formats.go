package config

import (
	"fmt"
	"strings"
)

// Archive formats
const (
	FormatNetCDF  = "netcdf"
	FormatParquet = "parquet"
	FormatCSV     = "csv"
)

var formatAliases = map[string]string{
	"netcdf":  FormatNetCDF,
	"nc":      FormatNetCDF,
	"cdf":     FormatNetCDF,
	"parquet": FormatParquet,
	"pq":      FormatParquet,
	"csv":     FormatCSV,
}

// ParseFormats normalizes archive format names. Entries may be comma
// separated ("netcdf,parquet"), are matched case-insensitively and are
// de-duplicated in first-seen order.
func ParseFormats(entries []string) ([]string, error) {
	var formats []string
	seen := make(map[string]bool)

	for _, entry := range entries {
		for _, name := range strings.Split(entry, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			format, ok := formatAliases[name]
			if !ok {
				return nil, fmt.Errorf("unknown archive format %q (use netcdf, parquet or csv)", name)
			}
			if !seen[format] {
				seen[format] = true
				formats = append(formats, format)
			}
		}
	}

	if len(formats) == 0 {
		return nil, fmt.Errorf("archive.formats must name at least one format")
	}
	return formats, nil
}
