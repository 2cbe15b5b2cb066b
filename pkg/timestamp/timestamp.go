// Package timestamp parses the time a log line claims it was written.
// Log sources disagree wildly on format, so parsing is best-effort: a
// line whose timestamp cannot be read simply has no logged time.
package timestamp

import (
	"strconv"
	"time"
)

// syslogLayout is the classic BSD syslog header time, which carries no
// year or zone.
const syslogLayout = "Jan _2 15:04:05"

// layouts tried in order for full timestamps.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	time.ANSIC,
}

// Parse reads a timestamp string in any supported format. ref supplies
// the year and zone for formats that omit them.
func Parse(s string, ref time.Time) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	if t, ok := ParseSyslog(s, ref); ok {
		return t, true
	}

	// Epoch seconds or milliseconds
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		if n > 1e12 {
			return time.UnixMilli(n), true
		}
		return time.Unix(n, 0), true
	}

	return time.Time{}, false
}

// ParseSyslog reads a BSD syslog header time. The missing year comes
// from ref; a result more than a day ahead of ref is assumed to belong
// to the previous year (logs from around New Year).
func ParseSyslog(s string, ref time.Time) (time.Time, bool) {
	t, err := time.ParseInLocation(syslogLayout, s, ref.Location())
	if err != nil {
		return time.Time{}, false
	}

	t = t.AddDate(ref.Year(), 0, 0)
	if t.After(ref.Add(24 * time.Hour)) {
		t = t.AddDate(-1, 0, 0)
	}
	return t, true
}

// Format renders a logged time for responses. The zero time renders as
// empty, meaning no timestamp was recognized.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
