// Package datetime defines the text payload the server writes on every
// connection: local time as YYYY-MM-DD HH:MM:SS.
package datetime

import (
	"regexp"
	"time"
)

// Layout is the wire format of the payload.
const Layout = "2006-01-02 15:04:05"

var payloadPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)

// Format renders t in the local zone.
func Format(t time.Time) string {
	return t.Local().Format(Layout)
}

// Parse reads a payload back as a local time.
func Parse(s string) (time.Time, error) {
	return time.ParseInLocation(Layout, s, time.Local)
}

// Valid reports whether s is a well formed payload naming a real calendar time.
func Valid(s string) bool {
	if !payloadPattern.MatchString(s) {
		return false
	}
	_, err := Parse(s)
	return err == nil
}
