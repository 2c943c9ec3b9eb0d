package logsource

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// months maps the syslog month abbreviation at the start of each line to a
// calendar month.
var months = map[string]time.Month{
	"Jan": time.January,
	"Feb": time.February,
	"Mar": time.March,
	"Apr": time.April,
	"May": time.May,
	"Jun": time.June,
	"Jul": time.July,
	"Aug": time.August,
	"Sep": time.September,
	"Oct": time.October,
	"Nov": time.November,
	"Dec": time.December,
}

// FormatError reports a line whose leading timestamp fragment could not be
// parsed as a syslog month/day/time.
type FormatError struct {
	Fragment string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("cannot parse syslog timestamp from %q", e.Fragment)
}

// fragment trims a line to the fixed-width timestamp region for error
// reporting, mirroring how much context fits in a diagnostic message.
func fragment(line string) string {
	if len(line) > 32 {
		return line[:32]
	}
	return line
}

// ParseTimestamp resolves the year-less syslog timestamp at the head of line
// into an absolute UTC time. The layout is fixed-offset: month abbreviation
// at [0:3], space-padded day at [4:6], HH:MM:SS at [7:15].
//
// year is the hint used for the candidate. prev is the previously resolved
// timestamp (zero for the first line) and drives two corrections: a candidate
// that jumps backward across a December→January boundary is treated as a year
// rollover and advanced to prev.Year()+1; otherwise a candidate whose year
// lags prev (stale hint) is forced onto prev's year. The heuristic is
// forward-only and assumes at most one New Year boundary per run.
func ParseTimestamp(line string, year int, prev time.Time) (time.Time, error) {
	if len(line) < 15 {
		return time.Time{}, &FormatError{Fragment: fragment(line)}
	}
	month, ok := months[line[0:3]]
	if !ok {
		return time.Time{}, &FormatError{Fragment: fragment(line)}
	}
	day, err := strconv.Atoi(strings.TrimSpace(line[4:6]))
	if err != nil {
		return time.Time{}, &FormatError{Fragment: fragment(line)}
	}
	hms, err := time.Parse("15:04:05", line[7:15])
	if err != nil {
		return time.Time{}, &FormatError{Fragment: fragment(line)}
	}

	hour, min, sec := hms.Clock()
	candidate := time.Date(year, month, day, hour, min, sec, 0, time.UTC)
	if !prev.IsZero() {
		switch {
		case candidate.Before(prev) && month == time.January && prev.Month() == time.December:
			candidate = time.Date(prev.Year()+1, month, day, hour, min, sec, 0, time.UTC)
		case candidate.Year() < prev.Year():
			candidate = time.Date(prev.Year(), month, day, hour, min, sec, 0, time.UTC)
		}
	}
	return candidate, nil
}
