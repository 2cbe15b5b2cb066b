// Package engine implements the analysis core: decoding raw log lines into
// events and matching events against compiled rule trees. It carries no
// session state of its own; callers supply the ruleset and the rolling
// event history each call.
package engine

import (
	"log/slog"
	"strings"
	"time"

	"github.com/c360/logtest/cdb"
	"github.com/c360/logtest/errors"
	"github.com/c360/logtest/pkg/timestamp"
)

// Engine decodes and matches log lines against compiled rulesets. It is
// stateless and safe for concurrent use.
type Engine struct {
	logger *slog.Logger
}

// New creates an analysis engine.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger.With("component", "engine")}
}

// Decode parses a raw log line into an event. The syslog header, when
// present, supplies hostname and program name; the matching decoder (if
// any) supplies named fields. The returned event is always usable; the
// bool reports whether a decoder recognized the line.
func (e *Engine) Decode(line string, trees *DecoderTrees) (*Event, bool) {
	ev := &Event{
		Raw:       line,
		Timestamp: time.Now(),
		Content:   line,
	}

	if groups := syslogHeader.FindStringSubmatch(line); groups != nil {
		if logged, ok := timestamp.ParseSyslog(groups[1], ev.Timestamp); ok {
			ev.LoggedAt = logged
		}
		ev.Hostname = groups[2]
		ev.Program = groups[3]
		ev.Content = groups[5]
	}

	for _, d := range trees.candidates(ev.Program) {
		fields, ok := d.match(ev.Content)
		if !ok {
			continue
		}
		ev.DecoderName = d.name
		ev.Fields = fields
		e.logger.Debug("line decoded",
			"decoder", d.name,
			"program", ev.Program,
			"fields", len(fields))
		return ev, true
	}

	e.logger.Debug("line undecoded", "program", ev.Program)
	return ev, false
}

// Match evaluates an event against the rule tree. It returns the winning
// rule (nil when nothing matched) and any advisory messages produced while
// evaluating conditions. An error is returned only for empty input, never
// for a clean non-match.
func (e *Engine) Match(ev *Event, tree *RuleTree, history []*Event, lists *cdb.ListSet) (*Rule, []string, error) {
	if ev == nil || strings.TrimSpace(ev.Raw) == "" {
		return nil, nil, errors.WrapInvalid(errors.ErrEmptyLogLine, "Engine", "Match", "evaluate event")
	}

	var msgs []string
	matched := tree.match(ev, history, lists, &msgs)
	if matched == nil {
		return nil, msgs, nil
	}

	e.logger.Debug("rule matched",
		"rule_id", matched.ID,
		"level", matched.Level,
		"decoder", ev.DecoderName)
	return matched, msgs, nil
}
