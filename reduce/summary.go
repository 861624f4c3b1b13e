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

package reduce

import (
	"encoding/json"
	"io"
	"reflect"

	"github.com/fatih/structs"
	"github.com/stoewer/go-strcase"
)

// Summary describes the reduction of one source.
type Summary struct {
	Source     string
	Input      string
	Output     string
	InputSize  int64
	OutputSize int64
	Matched    int
	Scanned    int
	Malformed  int
	Faceless   int
	Reduction  float64
	Keys       int `structs:",omitempty"`
}

// NewSummary fills a Summary from a reduction result.
func NewSummary(source string, result *Result) Summary {
	return Summary{
		Source:    source,
		Matched:   result.Matched,
		Scanned:   result.Scanned,
		Malformed: result.Malformed,
		Faceless:  result.Faceless,
		Reduction: result.Reduction(),
	}
}

// Map converts the summary into a map with snake case keys.
func (s Summary) Map() map[string]interface{} {
	return lower(structs.Map(s)).(map[string]interface{})
}

// WriteSummaries writes the summaries as a JSON list.
func WriteSummaries(w io.Writer, summaries []Summary) error {
	var list []map[string]interface{}
	for _, s := range summaries {
		list = append(list, s.Map())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}

func lower(f interface{}) interface{} {
	switch f := f.(type) {
	case []interface{}:
		for i := range f {
			if !isEmptyValue(reflect.ValueOf(f[i])) {
				f[i] = lower(f[i])
			}
		}
		return f
	case map[string]interface{}:
		lf := make(map[string]interface{}, len(f))
		for k, v := range f {
			if !isEmptyValue(reflect.ValueOf(v)) {
				lf[strcase.SnakeCase(k)] = lower(v)
			}
		}
		return lf
	default:
		return f
	}
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() { // nolint:exhaustive
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	case reflect.Invalid:
		return true
	}
	return false
}
