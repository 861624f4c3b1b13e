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
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/evidencegraph/evidence"
)

const indexedDBFile = `{"@id":"kb:mft-1","@type":"observable:File","core:hasFacet":[{"@type":"dfc-ext:MftFacet","dfc-ext:entryNumber":100,"dfc-ext:parentPath":"C:\\Users\\bob\\AppData\\Local\\Google\\Chrome\\User Data\\Default\\IndexedDB","dfc-ext:created0x10":"2024-01-01T00:00:00Z"},{"@type":"observable:FileFacet","observable:fileName":"https_www.example.com_0.indexeddb.leveldb"}]}`

const otherFile = `{"@id":"kb:mft-2","@type":"observable:File","core:hasFacet":[{"@type":"dfc-ext:MftFacet","dfc-ext:entryNumber":101,"dfc-ext:parentPath":"C:\\Windows"},{"@type":"observable:FileFacet","observable:fileName":"notepad.exe"}]}`

const historyTruncation = `{"@id":"kb:usn-1","@type":"observable:File","core:hasFacet":[{"@type":"dfc-ext:UsnFacet","dfc-ext:updateReasons":["DataTruncation"],"dfc-ext:timestamp":"2024-02-01T10:00:00Z"},{"@type":"observable:FileFacet","observable:fileName":"History"}]}`

const faceless = `{"@id":"kb:nothing","@type":"observable:File"}`

func document(context string, records ...string) string {
	graph := "[" + strings.Join(records, ",") + "]"
	if context == "" {
		return graph
	}
	return `{"@context":` + context + `,"@graph":` + graph + `}`
}

func TestScanner(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantRecords int
		wantContext bool
		wantErr     bool
	}{
		{"graph", document(`{"core":"https://ontology.unifiedcyberontology.org/uco/core/"}`, indexedDBFile, otherFile), 2, true, false},
		{"context after graph", `{"@graph":[` + indexedDBFile + `],"@context":{"a":"b"}}`, 1, true, false},
		{"bare array", document("", indexedDBFile, otherFile, faceless), 3, false, false},
		{"single object", indexedDBFile, 1, false, false},
		{"nested documents", `[{"@context":{"a":"b"},"@graph":[` + indexedDBFile + `]},{"@graph":[` + otherFile + `,` + faceless + `]}]`, 3, true, false},
		{"empty graph", document(`{}`), 0, true, false},
		{"empty input", "", 0, false, true},
		{"truncated", `{"@graph":[` + indexedDBFile, 1, false, true},
		{"scalar", `42`, 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := NewScanner(strings.NewReader(tt.in))
			count := 0
			for scanner.Next() {
				assert.True(t, json.Valid(scanner.Record()), string(scanner.Record()))
				count++
			}
			if tt.wantErr {
				assert.Error(t, scanner.Err())
				assert.True(t, errors.Is(scanner.Err(), evidence.ErrMalformedEvidence))
				return
			}
			require.NoError(t, scanner.Err())
			assert.Equal(t, tt.wantRecords, count)
			assert.Equal(t, tt.wantContext, scanner.Context() != nil)
		})
	}
}

func TestScanner_SingleObjectKeepsFacets(t *testing.T) {
	scanner := NewScanner(strings.NewReader(indexedDBFile))
	require.True(t, scanner.Next())
	record, err := evidence.Parse(scanner.Record())
	require.NoError(t, err)
	assert.Len(t, record.Facets, 2)
	assert.Equal(t, "100", record.Identity)
	assert.False(t, scanner.Next())
}

func TestReduce(t *testing.T) {
	in := document(`{"dfc-ext":"http://example.org/dfc-ext#"}`, indexedDBFile, otherFile, faceless, `{"@id":`+"\n"+`"x"`+`, "core:hasFacet": "broken"}`)
	result, err := Reduce(strings.NewReader(in), IndexedDB)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 4, result.Scanned)
	assert.Equal(t, 2, result.Faceless)
	assert.Equal(t, 0, result.Malformed)
	assert.Equal(t, 75.0, result.Reduction())
	require.Len(t, result.Records, 1)
	assert.Equal(t, indexedDBFile, string(result.Records[0]))
	assert.JSONEq(t, `{"dfc-ext":"http://example.org/dfc-ext#"}`, string(result.Context))
}

func TestReduce_NeverKeepsFaceless(t *testing.T) {
	result, err := Reduce(strings.NewReader(document("", faceless, faceless)), All)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Matched)
	assert.Equal(t, 2, result.Faceless)
	assert.Empty(t, result.Records)
}

func TestReduce_Completeness(t *testing.T) {
	extra := `{"@id":"kb:mft-3","@type":"observable:File","core:hasFacet":[{"@type":"observable:FileFacet","observable:filePath":"C:\\IndexedDB\\a"},{"@type":"foo:Unknown","foo:bar":{"nested":[1,2,3]}},{"@type":"dfc-ext:UsnFacet","dfc-ext:usn":12}]}`
	result, err := Reduce(strings.NewReader(document(`{}`, extra)), IndexedDB)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	in, err := evidence.Parse([]byte(extra))
	require.NoError(t, err)
	out, err := evidence.Parse(result.Records[0])
	require.NoError(t, err)
	require.Equal(t, len(in.Facets), len(out.Facets))
	for i := range in.Facets {
		assert.Equal(t, in.Facets[i].Type(), out.Facets[i].Type())
		assert.Equal(t, in.Facets[i].Attributes(), out.Facets[i].Attributes())
	}
}

func TestReduce_Idempotence(t *testing.T) {
	tests := []struct {
		name    string
		context string
	}{
		{"with context", `{"core":"https://ontology.unifiedcyberontology.org/uco/core/"}`},
		{"bare array", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := document(tt.context, indexedDBFile, otherFile, historyTruncation)

			first, err := Reduce(strings.NewReader(in), IndexedDB)
			require.NoError(t, err)
			var once bytes.Buffer
			_, err = first.WriteTo(&once)
			require.NoError(t, err)
			assert.True(t, json.Valid(once.Bytes()))

			second, err := Reduce(bytes.NewReader(once.Bytes()), IndexedDB)
			require.NoError(t, err)
			var twice bytes.Buffer
			_, err = second.WriteTo(&twice)
			require.NoError(t, err)

			assert.Equal(t, once.String(), twice.String())
			assert.Equal(t, second.Matched, second.Scanned)
		})
	}
}

func TestResult_WriteTo(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   string
	}{
		{"empty bare", &Result{}, "[]\n"},
		{"empty context", &Result{Context: json.RawMessage(`{}`)}, "{\"@context\": {}, \"@graph\": []}\n"},
		{"records", &Result{Records: []json.RawMessage{json.RawMessage(`{"a":1}`), json.RawMessage(`{"b":2}`)}}, "[\n{\"a\":1},\n{\"b\":2}\n]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := tt.result.WriteTo(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.want, buf.String())
			assert.Equal(t, int64(len(tt.want)), n)
		})
	}
}

func TestSummary_Map(t *testing.T) {
	result := &Result{Matched: 1, Scanned: 4}
	summary := NewSummary("mft", result)
	summary.Output = "mft_indexeddb_filtered.jsonld"

	m := summary.Map()
	assert.Equal(t, "mft", m["source"])
	assert.Equal(t, "mft_indexeddb_filtered.jsonld", m["output"])
	assert.Equal(t, 1, m["matched"])
	assert.Equal(t, 75.0, m["reduction"])
	assert.NotContains(t, m, "input")
	assert.NotContains(t, m, "keys")

	var buf bytes.Buffer
	require.NoError(t, WriteSummaries(&buf, []Summary{summary}))
	assert.Contains(t, buf.String(), `"input_size": 0`)
}
