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

package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/evidencegraph"
	"github.com/forensicanalysis/evidencegraph/correlate"
	"github.com/forensicanalysis/evidencegraph/temporal"
)

// Exit codes shared by all families.
const (
	ExitNoContradiction = 0
	ExitError           = 1
	ExitContradiction   = 2
)

// PatternRun describes the evaluation of one pattern.
type PatternRun struct {
	Name      string   `json:"name"`
	Sources   []string `json:"sources"`
	Missing   []string `json:"missing,omitempty"`
	Evaluated bool     `json:"evaluated"`
	Matches   int      `json:"matches"`
}

// Report is the outcome of a detect run.
type Report struct {
	Family         correlate.Family          `json:"family"`
	Sources        []evidencegraph.LoadStats `json:"sources"`
	Patterns       []PatternRun              `json:"patterns"`
	Contradictions []temporal.Contradiction  `json:"contradictions"`
	Anchors        []correlate.Match         `json:"anchors,omitempty"`
	Matches        int                       `json:"matches"`
	Skipped        int                       `json:"skipped"`
	Rejected       int                       `json:"rejected"`
	Suppressed     int                       `json:"suppressed"`
}

// Confirmed reports whether tampering was found.
func (r *Report) Confirmed() bool {
	return r != nil && len(r.Contradictions) > 0
}

// ExitCode maps the outcome of a run to the process exit code.
func ExitCode(report *Report, err error) int {
	switch {
	case err != nil:
		return ExitError
	case report.Confirmed():
		return ExitContradiction
	default:
		return ExitNoContradiction
	}
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes a plain text rendering of the report.
func (r *Report) WriteText(w io.Writer) error {
	b := &strings.Builder{}
	fmt.Fprintf(b, "Family: %s\n", r.Family)
	for _, s := range r.Sources {
		fmt.Fprintf(b, "Source: %s (%d loaded, %d skipped, %d invalid)\n", s.Source, s.Loaded, s.Skipped, s.Invalid)
	}
	for _, p := range r.Patterns {
		if p.Evaluated {
			fmt.Fprintf(b, "Pattern: %s (%d matches)\n", p.Name, p.Matches)
		} else {
			fmt.Fprintf(b, "Pattern: %s (not evaluated, missing %s)\n", p.Name, strings.Join(p.Missing, ", "))
		}
	}
	fmt.Fprintf(b, "Matches: %d confirmed, %d rejected, %d skipped, %d suppressed\n",
		len(r.Contradictions), r.Rejected, r.Skipped, r.Suppressed)

	for i, c := range r.Contradictions {
		fmt.Fprintf(b, "\n[%d] %s %s\n", i+1, c.Family, c.Pattern)
		lines, err := flatten(c)
		if err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Fprintf(b, "    %s\n", line)
		}
	}
	for _, a := range r.Anchors {
		fmt.Fprintf(b, "\nContext: %s %s\n", a.String("event_type"), a.String("time"))
	}

	if r.Confirmed() {
		b.WriteString("\nResult: contradiction confirmed\n")
	} else {
		b.WriteString("\nResult: no contradiction\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// flatten renders a value as sorted "key: value" lines with nested keys
// joined by dots, e.g. "bindings.domain: www.example.com".
func flatten(v interface{}) ([]string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var nested interface{}
	if err := json.Unmarshal(b, &nested); err != nil {
		return nil, err
	}

	flat := map[string]interface{}{}
	if err := flattenInto(flat, "", nested); err != nil {
		return nil, err
	}
	var keys []string
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var lines []string
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", key, flat[key]))
	}
	return lines, nil
}

func flattenInto(flat map[string]interface{}, prefix string, nested interface{}) error {
	if nested == nil {
		return nil
	}

	value := reflect.ValueOf(nested)
	switch value.Kind() { // nolint:exhaustive
	case reflect.Map:
		for _, k := range value.MapKeys() {
			if err := flattenInto(flat, join(prefix, fmt.Sprint(k.Interface())), value.MapIndex(k).Interface()); err != nil {
				return err
			}
		}
	case reflect.Slice:
		for i := 0; i < value.Len(); i++ {
			if err := flattenInto(flat, join(prefix, strconv.Itoa(i)), value.Index(i).Interface()); err != nil {
				return err
			}
		}
	case reflect.Float64:
		f := value.Float()
		if f == float64(int64(f)) {
			flat[prefix] = int64(f)
		} else {
			flat[prefix] = f
		}
	default:
		if prefix == "" {
			return errors.Errorf("cannot flatten %T", nested)
		}
		if s, ok := nested.(string); ok && s == "" {
			return nil
		}
		flat[prefix] = nested
	}
	return nil
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
