package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var sizeUnits = map[string]int64{
	"":    1,
	"B":   1,
	"K":   1 << 10,
	"KB":  1 << 10,
	"KIB": 1 << 10,
	"M":   1 << 20,
	"MB":  1 << 20,
	"MIB": 1 << 20,
	"G":   1 << 30,
	"GB":  1 << 30,
	"GIB": 1 << 30,
	"T":   1 << 40,
	"TB":  1 << 40,
	"TIB": 1 << 40,
}

// ParseSize parses a size such as "512MB" or "1.5GiB" to bytes. Units
// are binary and case-insensitive; a bare number is bytes.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	split := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.' && r != '-'
	})
	num, unit := s, ""
	if split >= 0 {
		num, unit = strings.TrimSpace(s[:split]), strings.TrimSpace(s[split:])
	}

	mult, ok := sizeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("invalid size unit %q in %q (use B, KB, MB, GB or TB)", unit, s)
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size number %q in %q", num, s)
	}
	if v < 0 {
		return 0, fmt.Errorf("size cannot be negative: %s", s)
	}
	bytes := v * float64(mult)
	if bytes > math.MaxInt64 {
		return 0, fmt.Errorf("size out of range: %s", s)
	}
	return int64(bytes), nil
}
