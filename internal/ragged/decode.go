package ragged

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/basekick-labs/drift/internal/schema"
)

// NaT marks a missing timestamp in time fields.
const NaT int64 = math.MinInt64

// Tolerances used to match the fill sentinel.
const (
	sentinelAbsTol = 1e-8
	sentinelRelTol = 1e-5
)

// IsSentinel reports whether v matches the GDP fill value.
func IsSentinel(v float64) bool {
	return math.Abs(v-schema.Sentinel) <= sentinelAbsTol+sentinelRelTol*math.Abs(schema.Sentinel)
}

// IsMissing reports whether v is the fill value or not finite.
func IsMissing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || IsSentinel(v)
}

// FillValues rewrites missing values in vals to NaN and returns how many
// were rewritten.
func FillValues[T ~float32 | ~float64](vals []T) int {
	n := 0
	nan := T(math.NaN())
	for i, v := range vals {
		if IsMissing(float64(v)) {
			vals[i] = nan
			n++
		}
	}
	return n
}

// DecodeTime converts seconds since the Unix epoch to whole seconds,
// returning NaT for missing values and values outside the int64 range.
func DecodeTime(secs float64) int64 {
	if IsMissing(secs) {
		return NaT
	}
	r := math.Round(secs)
	// -2^63 is NaT itself; 2^63 does not fit
	if r <= math.MinInt64 || r >= -math.MinInt64 {
		return NaT
	}
	return int64(r)
}

// TimeOf converts a decoded time to a time.Time. ok is false for NaT.
func TimeOf(v int64) (t time.Time, ok bool) {
	if v == NaT {
		return time.Time{}, false
	}
	return time.Unix(v, 0).UTC(), true
}

// ParseFloat parses a decimal number, returning fallback when the text
// is not a number or is NaN.
func ParseFloat(s string, fallback float64) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) {
		return fallback, false
	}
	return v, true
}

// ParseNumericText strips suffixWidth trailing characters (a unit such
// as " cm") and parses the remainder.
func ParseNumericText(s string, suffixWidth int, fallback float64) (float64, bool) {
	if suffixWidth > 0 {
		r := []rune(s)
		if len(r) <= suffixWidth {
			return fallback, false
		}
		s = string(r[:len(r)-suffixWidth])
	}
	return ParseFloat(s, fallback)
}

// Truncate cuts s to at most width runes.
func Truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	n := 0
	for i := range s {
		if n == width {
			return s[:i]
		}
		n++
	}
	return s
}

// DroguePresence fills dst with the drogue status of each observation.
// The drogue counts as attached for the whole record when lost is NaT or
// not before the last observation; otherwise only strictly earlier
// observations are drogued.
func DroguePresence(lost int64, times []int64, dst []bool) {
	if len(times) == 0 {
		return
	}
	last := times[len(times)-1]
	if lost == NaT || (last != NaT && lost >= last) {
		for i := range dst {
			dst[i] = true
		}
		return
	}
	for i, t := range times {
		dst[i] = t != NaT && t < lost
	}
}
