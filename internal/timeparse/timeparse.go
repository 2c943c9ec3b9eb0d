// Package timeparse recognizes the datetime string formats that appear in
// benchmark inputs: ISO 8601 UTC stamps written by the action hook and the
// day-first forms used by ground-truth exports.
package timeparse

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnrecognizedFormat reports a datetime string matching none of the
// supported layouts.
var ErrUnrecognizedFormat = errors.New("unrecognized datetime format")

// layouts are tried in order. The bare ISO layout also accepts fractional
// seconds of any width, because Go parses a fraction adjacent to the seconds
// field even when the layout omits it.
var layouts = [...]string{
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02T15:04:05Z",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
}

// Parse converts a datetime string in one of the supported layouts to a UTC
// time. All layouts are zone-less; values are interpreted as UTC.
func Parse(s string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognizedFormat, s)
}

// Stamp formats t as the UTC microsecond stamp the action hook writes,
// e.g. 2024-12-17T00:00:01.000123Z.
func Stamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}
