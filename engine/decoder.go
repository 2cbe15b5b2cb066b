package engine

import (
	"regexp"
)

// syslogHeader matches the classic "Mon DD HH:MM:SS host program[pid]:"
// prefix. Lines without it are decoded against the fallback tree only.
var syslogHeader = regexp.MustCompile(
	`^(\w{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+(\S+)\s+([^\s:\[]+)(?:\[(\d+)\])?:\s?(.*)$`)

// Decoder extracts named fields from log lines it recognizes.
type Decoder struct {
	name     string
	program  string // exact program-name binding, empty for any
	prematch *regexp.Regexp
	regex    *regexp.Regexp
	fields   []string
}

// Name returns the decoder name.
func (d *Decoder) Name() string { return d.name }

// match tests the decoder against a message body and extracts fields.
func (d *Decoder) match(content string) (map[string]string, bool) {
	if d.prematch != nil && !d.prematch.MatchString(content) {
		return nil, false
	}

	if d.regex == nil {
		// Prematch-only decoders classify the line without extracting
		// anything.
		return nil, true
	}

	groups := d.regex.FindStringSubmatch(content)
	if groups == nil {
		return nil, false
	}

	fields := make(map[string]string, len(d.fields))
	for i, name := range d.fields {
		if i+1 < len(groups) && name != "" {
			fields[name] = groups[i+1]
		}
	}
	return fields, true
}

// DecoderTrees holds the two decoder lookup structures: one indexed by
// program name for lines with a recognizable program, one flat list for
// lines without.
type DecoderTrees struct {
	byProgram map[string][]*Decoder
	fallback  []*Decoder
}

// newDecoderTrees builds the lookup structures from compiled decoders,
// preserving definition order within each bucket.
func newDecoderTrees(decoders []*Decoder) *DecoderTrees {
	trees := &DecoderTrees{
		byProgram: make(map[string][]*Decoder),
	}
	for _, d := range decoders {
		if d.program != "" {
			trees.byProgram[d.program] = append(trees.byProgram[d.program], d)
		} else {
			trees.fallback = append(trees.fallback, d)
		}
	}
	return trees
}

// candidates returns the decoders to try for a given program name, the
// program-bound bucket first.
func (t *DecoderTrees) candidates(program string) []*Decoder {
	if program == "" {
		return t.fallback
	}
	bound := t.byProgram[program]
	if len(bound) == 0 {
		return t.fallback
	}
	out := make([]*Decoder, 0, len(bound)+len(t.fallback))
	out = append(out, bound...)
	out = append(out, t.fallback...)
	return out
}
