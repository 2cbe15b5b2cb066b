package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/c360/logtest/cdb"
	"github.com/c360/logtest/errors"
)

// DecoderSpec is the JSON form of one decoder definition.
type DecoderSpec struct {
	Name     string   `json:"name"`
	Program  string   `json:"program_name,omitempty"`
	Prematch string   `json:"prematch,omitempty"`
	Regex    string   `json:"regex,omitempty"`
	Fields   []string `json:"fields,omitempty"`
}

// ListCheckSpec is the JSON form of a rule's lookup-list condition.
type ListCheckSpec struct {
	Name   string `json:"name"`
	Field  string `json:"field"`
	Negate bool   `json:"negate,omitempty"`
}

// RuleSpec is the JSON form of one rule definition.
type RuleSpec struct {
	ID          int               `json:"id"`
	Level       int               `json:"level"`
	Description string            `json:"description,omitempty"`
	Groups      []string          `json:"groups,omitempty"`
	DecodedAs   string            `json:"decoded_as,omitempty"`
	Match       string            `json:"match,omitempty"`
	Regex       string            `json:"regex,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	IfSID       int               `json:"if_sid,omitempty"`
	IfMatched   int               `json:"if_matched_sid,omitempty"`
	Frequency   int               `json:"frequency,omitempty"`
	Timeframe   int               `json:"timeframe,omitempty"` // seconds
	SameField   string            `json:"same_field,omitempty"`
	List        *ListCheckSpec    `json:"list,omitempty"`
	FTS         []string          `json:"fts,omitempty"`
}

// RulesetSpec is the JSON form of a complete ruleset: decoders, rules and
// inline lookup lists. Session overrides arrive in this shape.
type RulesetSpec struct {
	Decoders []DecoderSpec                `json:"decoders"`
	Rules    []RuleSpec                   `json:"rules"`
	Lists    map[string]map[string]string `json:"cdb_lists,omitempty"`
}

// Ruleset is a compiled, immutable decoder/rule/list bundle. The default
// production ruleset is shared across sessions; override rulesets are
// private to the session that supplied them.
type Ruleset struct {
	Decoders *DecoderTrees
	Rules    *RuleTree
	Lists    *cdb.ListSet
}

// Loader compiles rulesets from files or raw JSON documents.
type Loader struct {
	lists *cdb.Loader
}

// NewLoader creates a ruleset loader.
func NewLoader() *Loader {
	return &Loader{lists: cdb.NewLoader()}
}

// LoadFiles compiles the default ruleset from a decoders file, a rules
// file and an optional directory of lookup-list files.
func (l *Loader) LoadFiles(decodersPath, rulesPath, cdbDir string) (*Ruleset, error) {
	var spec RulesetSpec

	if err := readJSON(decodersPath, &spec.Decoders); err != nil {
		return nil, errors.WrapFatal(err, "Loader", "LoadFiles", "read decoders file")
	}
	if err := readJSON(rulesPath, &spec.Rules); err != nil {
		return nil, errors.WrapFatal(err, "Loader", "LoadFiles", "read rules file")
	}

	ruleset, err := l.Compile(&spec)
	if err != nil {
		return nil, err
	}

	if cdbDir != "" {
		set, err := l.lists.LoadDir(cdbDir)
		if err != nil {
			return nil, errors.WrapFatal(err, "Loader", "LoadFiles", "load lookup lists")
		}
		ruleset.Lists = set
	}

	return ruleset, nil
}

// CompileRaw compiles an override ruleset from a raw JSON document, as
// supplied by clients testing unreleased rules.
func (l *Loader) CompileRaw(raw json.RawMessage) (*Ruleset, error) {
	var spec RulesetSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "CompileRaw", "parse override ruleset")
	}
	return l.Compile(&spec)
}

// Compile turns a ruleset document into its immutable compiled form.
// Compilation is all-or-nothing: any bad regex or dangling parent
// reference fails the whole ruleset.
func (l *Loader) Compile(spec *RulesetSpec) (*Ruleset, error) {
	decoders := make([]*Decoder, 0, len(spec.Decoders))
	for _, ds := range spec.Decoders {
		d, err := compileDecoder(ds)
		if err != nil {
			return nil, err
		}
		decoders = append(decoders, d)
	}

	tree, err := compileRules(spec.Rules)
	if err != nil {
		return nil, err
	}

	lists := cdb.NewListSet()
	for name, entries := range spec.Lists {
		lists.Add(cdb.FromEntries(name, entries))
	}

	return &Ruleset{
		Decoders: newDecoderTrees(decoders),
		Rules:    tree,
		Lists:    lists,
	}, nil
}

func compileDecoder(ds DecoderSpec) (*Decoder, error) {
	if ds.Name == "" {
		return nil, errors.WrapInvalid(errors.ErrRulesetCompile, "Loader", "Compile",
			"decoder missing name")
	}

	d := &Decoder{
		name:    ds.Name,
		program: ds.Program,
		fields:  ds.Fields,
	}

	var err error
	if ds.Prematch != "" {
		if d.prematch, err = regexp.Compile(ds.Prematch); err != nil {
			return nil, compileError("decoder", ds.Name, "prematch", err)
		}
	}
	if ds.Regex != "" {
		if d.regex, err = regexp.Compile(ds.Regex); err != nil {
			return nil, compileError("decoder", ds.Name, "regex", err)
		}
	}

	if d.prematch == nil && d.regex == nil {
		return nil, errors.WrapInvalid(errors.ErrRulesetCompile, "Loader", "Compile",
			fmt.Sprintf("decoder %q has no prematch or regex", ds.Name))
	}

	return d, nil
}

func compileRules(specs []RuleSpec) (*RuleTree, error) {
	tree := &RuleTree{byID: make(map[int]*Rule, len(specs))}

	for _, rs := range specs {
		if rs.ID <= 0 {
			return nil, errors.WrapInvalid(errors.ErrRulesetCompile, "Loader", "Compile",
				"rule id must be positive")
		}
		if _, dup := tree.byID[rs.ID]; dup {
			return nil, errors.WrapInvalid(errors.ErrRulesetCompile, "Loader", "Compile",
				fmt.Sprintf("duplicate rule id %d", rs.ID))
		}

		r := &Rule{
			ID:           rs.ID,
			Level:        rs.Level,
			Description:  rs.Description,
			Groups:       rs.Groups,
			decodedAs:    rs.DecodedAs,
			match:        rs.Match,
			ifMatchedSID: rs.IfMatched,
			frequency:    rs.Frequency,
			timeframe:    time.Duration(rs.Timeframe) * time.Second,
			sameField:    rs.SameField,
			FTS:          rs.FTS,
			parentID:     rs.IfSID,
		}

		var err error
		if rs.Regex != "" {
			if r.regex, err = regexp.Compile(rs.Regex); err != nil {
				return nil, compileError("rule", fmt.Sprint(rs.ID), "regex", err)
			}
		}
		for name, pattern := range rs.Fields {
			fc := fieldCheck{name: name}
			if pattern != "" {
				if fc.regex, err = regexp.Compile(pattern); err != nil {
					return nil, compileError("rule", fmt.Sprint(rs.ID), "field "+name, err)
				}
			}
			r.fieldChecks = append(r.fieldChecks, fc)
		}
		if rs.List != nil {
			if rs.List.Name == "" || rs.List.Field == "" {
				return nil, errors.WrapInvalid(errors.ErrRulesetCompile, "Loader", "Compile",
					fmt.Sprintf("rule %d: list condition needs name and field", rs.ID))
			}
			check := ListCheck(*rs.List)
			r.list = &check
		}
		if r.frequency > 0 && r.ifMatchedSID == 0 {
			return nil, errors.WrapInvalid(errors.ErrRulesetCompile, "Loader", "Compile",
				fmt.Sprintf("rule %d: frequency condition needs if_matched_sid", rs.ID))
		}

		tree.byID[r.ID] = r
	}

	// Second pass links children to parents so definition order between
	// related rules does not matter.
	for _, rs := range specs {
		r := tree.byID[rs.ID]
		if r.parentID == 0 {
			tree.roots = append(tree.roots, r)
			continue
		}
		parent, ok := tree.byID[r.parentID]
		if !ok {
			return nil, errors.WrapInvalid(errors.ErrRulesetCompile, "Loader", "Compile",
				fmt.Sprintf("rule %d references unknown parent %d", r.ID, r.parentID))
		}
		parent.children = append(parent.children, r)
	}

	return tree, nil
}

func compileError(kind, name, part string, err error) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s %s: bad %s: %v", errors.ErrRulesetCompile, kind, name, part, err),
		"Loader", "Compile", "regex compilation")
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
