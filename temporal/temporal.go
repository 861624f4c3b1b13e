// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

// Package temporal separates tampering from benign timestamp drift. It
// post-processes the matches of the correlation engine with one rule set
// per detection family.
package temporal

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"github.com/forensicanalysis/evidencegraph/correlate"
	"github.com/forensicanalysis/evidencegraph/evidence"
)

// Bindings read by the validator.
const (
	EventType      = "event_type"
	ClearTime      = "clear_time"
	TruncationTime = "truncation_time"
	SICreated      = "mft_si_created"
	FNCreated      = "mft_fn_created"
)

// Witnesses are bindings that independently record the creation time of a
// file, in order of preference.
var Witnesses = []string{"lnk_target_created", "lnk_shortcut_created", "office_created"} // nolint:gochecknoglobals

// timeBindings are used to order contradictions.
var timeBindings = []string{TruncationTime, "usn_time", SICreated, "time", ClearTime} // nolint:gochecknoglobals

// Rules are the tolerances and policies of the validator. A zero tolerance
// is strict, DefaultRules holds the usual values.
type Rules struct {
	// TimestompTolerance is the largest $SI/$FN divergence considered
	// ordinary filesystem behavior. The boundary is exclusive.
	TimestompTolerance time.Duration `mapstructure:"timestomp_tolerance" yaml:"timestomp_tolerance"`
	// WitnessTolerance is the largest distance between a witness and $FN
	// that still corroborates $FN.
	WitnessTolerance time.Duration `mapstructure:"witness_tolerance" yaml:"witness_tolerance"`
	// AllowSimultaneousTruncation confirms a truncation that carries the
	// same timestamp as the clear event.
	AllowSimultaneousTruncation bool `mapstructure:"allow_simultaneous_truncation" yaml:"allow_simultaneous_truncation"`
	// Suppress lists CEL expressions over family, pattern and bindings.
	// Matches for which any expression is true are discarded.
	Suppress []string `mapstructure:"suppress" yaml:"suppress"`
}

// DefaultRules returns the default tolerances.
func DefaultRules() Rules {
	return Rules{
		TimestompTolerance: 60 * time.Second,
		WitnessTolerance:   2 * time.Second,
	}
}

// Contradiction is a confirmed match.
type Contradiction struct {
	Family       correlate.Family       `json:"family"`
	Pattern      string                 `json:"pattern"`
	Bindings     map[string]interface{} `json:"bindings"`
	Time         time.Time              `json:"time,omitempty"`
	Delta        time.Duration          `json:"delta,omitempty"`
	Witness      string                 `json:"witness,omitempty"`
	Corroborated bool                   `json:"corroborated,omitempty"`
	Notes        string                 `json:"notes,omitempty"`
}

// Result is the outcome of a validation.
type Result struct {
	Confirmed []Contradiction
	// Anchors are context rows, e.g. the clear event itself.
	Anchors []correlate.Match
	// Skipped counts matches with missing or unparseable timestamps.
	Skipped int
	// Rejected counts matches within tolerance or in benign order.
	Rejected int
	// Suppressed counts matches discarded by a suppress expression.
	Suppressed int
}

// Validator applies the family rules to matches.
type Validator struct {
	rules    Rules
	programs []cel.Program
}

// New compiles the suppress expressions of rules.
func New(rules Rules) (*Validator, error) {
	if rules.TimestompTolerance < 0 || rules.WitnessTolerance < 0 {
		return nil, errors.Errorf("negative tolerance %s/%s", rules.TimestompTolerance, rules.WitnessTolerance)
	}

	v := &Validator{rules: rules}
	if len(rules.Suppress) == 0 {
		return v, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("family", cel.StringType),
		cel.Variable("pattern", cel.StringType),
		cel.Variable("bindings", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "could not create CEL env")
	}
	for _, expr := range rules.Suppress {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, errors.Wrapf(issues.Err(), "suppress expression %q", expr)
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, errors.Wrapf(err, "suppress expression %q", expr)
		}
		v.programs = append(v.programs, prg)
	}
	return v, nil
}

// Rules returns the rules of the validator.
func (v *Validator) Rules() Rules {
	return v.rules
}

// Validate is a shortcut for New(rules) and Validator.Validate.
func Validate(matches []correlate.Match, rules Rules) (*Result, error) {
	v, err := New(rules)
	if err != nil {
		return nil, err
	}
	return v.Validate(matches), nil
}

// Validate confirms or discards every match. Confirmed contradictions are
// ordered by family, then by time, then by input order.
func (v *Validator) Validate(matches []correlate.Match) *Result {
	result := &Result{Confirmed: []Contradiction{}}
	for _, match := range matches {
		if v.suppressed(match) {
			result.Suppressed++
			continue
		}

		var (
			c   *Contradiction
			err error
		)
		switch match.Family {
		case correlate.LogClear:
			if isAnchor(match) {
				result.Anchors = append(result.Anchors, match)
				continue
			}
			c, err = v.logClear(match)
		case correlate.Timestomp:
			c, err = v.timestomp(match)
		default:
			c = structural(match)
		}

		switch {
		case err != nil:
			result.Skipped++
		case c == nil:
			result.Rejected++
		default:
			result.Confirmed = append(result.Confirmed, *c)
		}
	}

	order := map[correlate.Family]int{}
	for i, family := range correlate.Families {
		order[family] = i
	}
	sort.SliceStable(result.Confirmed, func(i, j int) bool {
		a, b := result.Confirmed[i], result.Confirmed[j]
		if order[a.Family] != order[b.Family] {
			return order[a.Family] < order[b.Family]
		}
		return a.Time.Before(b.Time)
	})
	return result
}

func (v *Validator) suppressed(match correlate.Match) bool {
	if len(v.programs) == 0 {
		return false
	}
	vars := map[string]interface{}{
		"family":   string(match.Family),
		"pattern":  match.Pattern,
		"bindings": match.Bindings,
	}
	for _, prg := range v.programs {
		out, _, err := prg.Eval(vars)
		if err != nil {
			// e.g. a binding the pattern does not produce
			continue
		}
		if b, ok := out.Value().(bool); ok && b {
			return true
		}
	}
	return false
}

func isAnchor(match correlate.Match) bool {
	return strings.Contains(match.String(EventType), "1102") && !match.Has(TruncationTime)
}

// logClear confirms a truncation of the Security log that precedes the
// clear event. A later truncation is normal log rotation.
func (v *Validator) logClear(match correlate.Match) (*Contradiction, error) {
	truncation, err := bindingTime(match, TruncationTime)
	if err != nil {
		return nil, err
	}
	cleared, err := bindingTime(match, ClearTime)
	if err != nil {
		return nil, err
	}

	delta := cleared.Sub(truncation)
	if delta < 0 || (delta == 0 && !v.rules.AllowSimultaneousTruncation) {
		return nil, nil
	}
	return &Contradiction{
		Family:   match.Family,
		Pattern:  match.Pattern,
		Bindings: match.Bindings,
		Time:     truncation,
		Delta:    delta,
		Notes:    fmt.Sprintf("log truncated %s before the clear event", delta),
	}, nil
}

// timestomp confirms a divergence of $SI and $FN created beyond the
// tolerance. A witness close to $FN corroborates $FN as ground truth.
func (v *Validator) timestomp(match correlate.Match) (*Contradiction, error) {
	si, err := bindingTime(match, SICreated)
	if err != nil {
		return nil, err
	}
	fn, err := bindingTime(match, FNCreated)
	if err != nil {
		return nil, err
	}

	delta := si.Sub(fn)
	if abs(delta) <= v.rules.TimestompTolerance {
		return nil, nil
	}

	c := &Contradiction{
		Family:   match.Family,
		Pattern:  match.Pattern,
		Bindings: match.Bindings,
		Time:     si,
		Delta:    delta,
		Notes:    fmt.Sprintf("$SI created differs from $FN created by %s", abs(delta)),
	}
	for _, witness := range Witnesses {
		if !match.Has(witness) {
			continue
		}
		t, err := bindingTime(match, witness)
		if err != nil {
			continue
		}
		if abs(t.Sub(fn)) <= v.rules.WitnessTolerance {
			c.Witness = witness
			c.Corroborated = true
			c.Notes += fmt.Sprintf(", %s corroborates $FN", witness)
			break
		}
	}
	return c, nil
}

// structural contradictions need no temporal test.
func structural(match correlate.Match) *Contradiction {
	c := &Contradiction{Family: match.Family, Pattern: match.Pattern, Bindings: match.Bindings}
	for _, name := range timeBindings {
		if !match.Has(name) {
			continue
		}
		if t, err := evidence.ParseTime(match.String(name)); err == nil {
			c.Time = t
			break
		}
	}
	return c
}

func bindingTime(match correlate.Match, name string) (time.Time, error) {
	if !match.Has(name) {
		return time.Time{}, errors.Wrapf(evidence.ErrMalformedEvidence, "missing %s", name)
	}
	return evidence.ParseTime(match.String(name))
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
