package engine

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/c360/logtest/cdb"
)

// ListCheck is a rule condition testing key membership in a lookup list.
type ListCheck struct {
	Name   string // list name within the ruleset's list set
	Field  string // decoded field supplying the lookup key
	Negate bool   // condition holds when the key is absent
}

// Rule is one compiled detection rule. Rules form a tree: a child refines
// its parent and overrides it when both match.
type Rule struct {
	ID          int
	Level       int
	Description string
	Groups      []string

	// Conditions over the current event
	decodedAs   string
	match       string
	regex       *regexp.Regexp
	fieldChecks []fieldCheck

	// Temporal condition over the session history
	ifMatchedSID int
	frequency    int
	timeframe    time.Duration
	sameField    string

	// Lookup-list condition
	list *ListCheck

	// FTS holds the fields composing the first-time-seen fingerprint;
	// empty means the rule does not request FTS filtering.
	FTS []string

	parentID int
	children []*Rule
}

// Correlates reports whether the rule tracks event frequency and so
// needs accumulator bookkeeping.
func (r *Rule) Correlates() bool {
	return r.frequency > 0
}

// CorrelationField returns the field whose value keys this rule's
// accumulator entries; empty means entries are keyed by rule alone.
func (r *Rule) CorrelationField() string {
	return r.sameField
}

type fieldCheck struct {
	name  string
	regex *regexp.Regexp // nil means presence check only
}

// matches evaluates this rule's own conditions against an event. Warnings
// produced along the way (for example unresolvable lists) are appended to
// msgs.
func (r *Rule) matches(ev *Event, history []*Event, lists *cdb.ListSet, msgs *[]string) bool {
	if r.decodedAs != "" && ev.DecoderName != r.decodedAs {
		return false
	}

	if r.match != "" && !strings.Contains(ev.Content, r.match) {
		return false
	}

	if r.regex != nil && !r.regex.MatchString(ev.Content) {
		return false
	}

	for _, fc := range r.fieldChecks {
		value := ev.Field(fc.name)
		if value == "" {
			return false
		}
		if fc.regex != nil && !fc.regex.MatchString(value) {
			return false
		}
	}

	if r.list != nil {
		key := ev.Field(r.list.Field)
		if key == "" {
			return false
		}
		_, found, err := lists.Lookup(r.list.Name, key)
		if err != nil {
			*msgs = append(*msgs, fmt.Sprintf("rule %d: list %q not available", r.ID, r.list.Name))
			return false
		}
		if found == r.list.Negate {
			return false
		}
	}

	if r.frequency > 0 && !r.frequencySatisfied(ev, history) {
		return false
	}

	return true
}

// frequencySatisfied counts prior events matching the chained rule inside
// the timeframe. History is most-recent-first, so the scan stops at the
// first event older than the window.
func (r *Rule) frequencySatisfied(ev *Event, history []*Event) bool {
	cutoff := ev.Timestamp.Add(-r.timeframe)
	count := 0
	for _, prev := range history {
		if r.timeframe > 0 && prev.Timestamp.Before(cutoff) {
			break
		}
		if prev.RuleID != r.ifMatchedSID {
			continue
		}
		if r.sameField != "" && prev.Field(r.sameField) != ev.Field(r.sameField) {
			continue
		}
		count++
		if count >= r.frequency {
			return true
		}
	}
	return false
}

// RuleTree is the compiled rule hierarchy for one ruleset.
type RuleTree struct {
	roots []*Rule
	byID  map[int]*Rule
}

// Lookup returns the rule with the given id, if compiled into this tree.
func (t *RuleTree) Lookup(id int) (*Rule, bool) {
	r, ok := t.byID[id]
	return r, ok
}

// Len returns the number of rules in the tree.
func (t *RuleTree) Len() int {
	return len(t.byID)
}

// match evaluates every root against the event. Among matching rules the
// highest level wins; ties go to definition order. A level-0 winner is
// still returned so the caller can suppress the event it matched.
func (t *RuleTree) match(ev *Event, history []*Event, lists *cdb.ListSet, msgs *[]string) *Rule {
	var best *Rule
	for _, root := range t.roots {
		matched := matchSubtree(root, ev, history, lists, msgs)
		if matched == nil {
			continue
		}
		if best == nil || matched.Level > best.Level {
			best = matched
		}
	}
	return best
}

// matchSubtree resolves one root's subtree. A matching child always
// refines its parent, even at a lower level, which is how level-0
// children silence a noisy parent. Among matching siblings the highest
// level wins.
func matchSubtree(r *Rule, ev *Event, history []*Event, lists *cdb.ListSet, msgs *[]string) *Rule {
	if !r.matches(ev, history, lists, msgs) {
		return nil
	}
	var refined *Rule
	for _, child := range r.children {
		matched := matchSubtree(child, ev, history, lists, msgs)
		if matched == nil {
			continue
		}
		if refined == nil || matched.Level > refined.Level {
			refined = matched
		}
	}
	if refined != nil {
		return refined
	}
	return r
}
