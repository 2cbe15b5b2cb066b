package engine

import (
	"time"
)

// Event is the decoded form of one raw log line. It is what rule
// conditions evaluate against and what sessions keep in their rolling
// history for temporal conditions.
type Event struct {
	// Raw is the original log line as submitted.
	Raw string

	// Timestamp is when the line was processed, not when it was logged.
	Timestamp time.Time

	// LoggedAt is the time the line claims it was written, zero when no
	// timestamp was recognized in the line.
	LoggedAt time.Time

	// Hostname and Program come from the syslog-style header, when present.
	Hostname string
	Program  string

	// Content is the message body after the header is stripped.
	Content string

	// DecoderName identifies the decoder that produced Fields; empty for
	// undecoded lines.
	DecoderName string

	// Fields holds the named values extracted by the decoder.
	Fields map[string]string

	// RuleID and Level record the rule match outcome, 0 when unmatched.
	// They are filled in after matching so history-based conditions can
	// chain on previous matches.
	RuleID int
	Level  int
}

// Field resolves a field by name, including the built-in header fields.
func (e *Event) Field(name string) string {
	switch name {
	case "program_name":
		return e.Program
	case "hostname":
		return e.Hostname
	}
	if e.Fields == nil {
		return ""
	}
	return e.Fields[name]
}

// Decoded reports whether a decoder extracted fields from this event.
func (e *Event) Decoded() bool {
	return e.DecoderName != ""
}
