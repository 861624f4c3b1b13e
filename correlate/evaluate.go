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

package correlate

import (
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/evidencegraph"
)

var (
	// ErrPartitionNotLoaded is returned if a pattern reads a source that
	// was not loaded.
	ErrPartitionNotLoaded = errors.New("partition not loaded")
	// ErrMissingBinding is returned if a query does not produce a declared
	// binding.
	ErrMissingBinding = errors.New("missing binding")
)

// Querier is the read side of an evidence graph.
type Querier interface {
	Loaded(source string) bool
	Query(query string) (*evidencegraph.Table, error)
}

// Match is one result row of a pattern.
type Match struct {
	Family   Family                 `json:"family"`
	Pattern  string                 `json:"pattern"`
	Bindings map[string]interface{} `json:"bindings"`
}

// Has reports whether a binding is bound to a non null value.
func (m Match) Has(name string) bool {
	v, ok := m.Bindings[name]
	return ok && v != nil
}

// String returns a binding as string, or "" if unbound.
func (m Match) String(name string) string {
	switch v := m.Bindings[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Names returns the sorted binding names.
func (m Match) Names() []string {
	var names []string
	for name := range m.Bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Missing returns the sources of the pattern that are not loaded.
func (p *Pattern) Missing(q Querier) []string {
	var missing []string
	for _, source := range p.Sources {
		if !q.Loaded(source) {
			missing = append(missing, source)
		}
	}
	return missing
}

// Evaluate runs a pattern and returns every row as a match. Rows are
// neither deduplicated nor reduced to the earliest candidate; relevance
// is decided by temporal validation. Patterns cannot modify the evidence
// graph, a writing query fails.
func Evaluate(q Querier, p *Pattern) ([]Match, error) {
	if missing := p.Missing(q); len(missing) > 0 {
		return nil, errors.Wrapf(ErrPartitionNotLoaded, "pattern %s: %v", p.Name, missing)
	}

	table, err := q.Query(p.Query)
	if err != nil {
		return nil, errors.Wrapf(err, "pattern %s", p.Name)
	}

	columns := map[string]bool{}
	for _, column := range table.Columns {
		columns[column] = true
	}
	for _, binding := range p.Bindings {
		if !columns[binding] {
			return nil, errors.Wrapf(ErrMissingBinding, "pattern %s: %s", p.Name, binding)
		}
	}

	matches := make([]Match, 0, len(table.Rows))
	for _, row := range table.Rows {
		matches = append(matches, Match{Family: p.Family, Pattern: p.Name, Bindings: row})
	}
	return matches, nil
}
