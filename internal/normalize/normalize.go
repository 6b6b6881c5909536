// Package normalize applies an ordered find/replace rule table to a merged
// transcript and reports what changed.
package normalize

import (
	"fmt"
	"os"
	"strings"

	"github.com/fmueller/longscribe/internal/transcript"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

type Rule struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML rule table of the form:
//
//	rules:
//	  - from: दर्पन
//	    to: दर्पण
//
// Rules apply in file order.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if err := Validate(file.Rules); err != nil {
		return nil, fmt.Errorf("invalid rules file %s: %w", path, err)
	}

	return file.Rules, nil
}

func Validate(rules []Rule) error {
	seen := make(map[string]int, len(rules))
	for i, r := range rules {
		from := norm.NFC.String(r.From)
		if strings.TrimSpace(from) == "" {
			return fmt.Errorf("rule[%d]: from cannot be empty", i)
		}
		if prev, ok := seen[from]; ok {
			return fmt.Errorf("rule[%d]: duplicate of rule[%d] (%q)", i, prev, r.From)
		}
		seen[from] = i
	}
	return nil
}

type Result struct {
	Refined transcript.Final
	// Hits counts replacements per rule, keyed by Rule.From.
	Hits         map[string]int
	ChangedLines int
}

// Apply rewrites every segment text with the rules. Texts and rules are
// compared in Unicode NFC so composed and decomposed spellings match alike.
// Timing and confidence are carried over untouched.
func Apply(raw transcript.Final, rules []Rule) (Result, error) {
	if err := Validate(rules); err != nil {
		return Result{}, err
	}

	compiled := make([]Rule, len(rules))
	for i, r := range rules {
		compiled[i] = Rule{From: norm.NFC.String(r.From), To: norm.NFC.String(r.To)}
	}

	res := Result{
		Refined: transcript.Final{
			AvgConfidence: raw.AvgConfidence,
			Segments:      make([]transcript.Segment, len(raw.Segments)),
		},
		Hits: map[string]int{},
	}

	for i, seg := range raw.Segments {
		original := norm.NFC.String(seg.Text)
		text := original
		for j, r := range compiled {
			if n := strings.Count(text, r.From); n > 0 {
				res.Hits[rules[j].From] += n
				text = strings.ReplaceAll(text, r.From, r.To)
			}
		}
		// A segment that only changed by NFC composition is not a rule edit.
		if text != original {
			res.ChangedLines++
		}
		seg.Text = text
		res.Refined.Segments[i] = seg
	}
	res.Refined.Text = transcript.JoinText(res.Refined.Segments)

	return res, nil
}
