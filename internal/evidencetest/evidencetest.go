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

// Package evidencetest builds JSON-LD evidence fixtures for tests.
package evidencetest

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/evidencegraph/evidence"
)

// Context is the vocabulary header used by all fixtures.
const Context = `{"core":"https://ontology.unifiedcyberontology.org/uco/core/",` +
	`"observable":"https://ontology.unifiedcyberontology.org/uco/observable/",` +
	`"dfc-ext":"https://www.w3.org/dfc-ext/"}`

// Mft is a file of the master file table.
type Mft struct {
	ID         string
	Entry      int
	ParentPath string
	FileName   string
	FilePath   string
	SICreated  string
	FNCreated  string
}

func (m Mft) JSON() string {
	facet := map[string]interface{}{
		"@type":                 "dfc-ext:MftFacet",
		evidence.KeyEntryNumber: map[string]interface{}{"@value": m.Entry, "@type": "xsd:integer"},
	}
	set(facet, evidence.KeyParentPath, m.ParentPath)
	set(facet, evidence.KeySICreated, m.SICreated)
	set(facet, evidence.KeyFNCreated, m.FNCreated)
	return node(m.ID, "observable:File", facet, fileFacet(m.FileName, m.FilePath))
}

// Usn is an entry of the change journal.
type Usn struct {
	ID        string
	FileName  string
	FilePath  string
	Timestamp string
	Reasons   []string
}

func (u Usn) JSON() string {
	reasons := u.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	facet := map[string]interface{}{
		"@type":                   "dfc-ext:UsnFacet",
		evidence.KeyUpdateReasons: reasons,
	}
	set(facet, evidence.KeyUsnTimestamp, u.Timestamp)
	return node(u.ID, "observable:File", facet, fileFacet(u.FileName, u.FilePath))
}

// Event is a Windows event log record.
type Event struct {
	ID       string
	EventID  int
	RecordID string
	Channel  string
	Computer string
	Created  string
	// EventCreated is the observable event time, set instead of or in
	// addition to Created.
	EventCreated string
}

func (e Event) JSON() string {
	record := map[string]interface{}{
		"@type":             "observable:EventRecordFacet",
		evidence.KeyEventID: map[string]interface{}{"@value": e.EventID},
	}
	set(record, evidence.KeyEventRecordID, e.RecordID)
	set(record, evidence.KeyTimeCreated, e.Created)
	set(record, evidence.KeyEventTime, e.EventCreated)
	log := map[string]interface{}{"@type": "dfc-ext:EventLogFacet"}
	set(log, evidence.KeyChannel, e.Channel)
	set(log, evidence.KeyComputer, e.Computer)
	return node(e.ID, "observable:EventRecord", record, log)
}

// Lnk is a Windows shortcut file.
type Lnk struct {
	ID              string
	FilePath        string
	Target          string
	TargetPath      string
	TargetCreated   string
	ShortcutCreated string
}

func (l Lnk) JSON() string {
	facet := map[string]interface{}{"@type": "dfc-ext:WindowsLnkFacet"}
	if l.Target != "" {
		facet[evidence.KeyTargetEntryNumber] = map[string]interface{}{"@value": l.Target}
	}
	set(facet, evidence.KeyTargetPath, l.TargetPath)
	set(facet, evidence.KeyTargetCreated, l.TargetCreated)
	set(facet, evidence.KeyShortcutCreated, l.ShortcutCreated)
	facets := []map[string]interface{}{facet}
	if l.FilePath != "" {
		facets = append(facets, fileFacet("", l.FilePath))
	}
	return node(l.ID, "observable:File", facets...)
}

// Office is a document with embedded metadata.
type Office struct {
	ID       string
	FileName string
	FilePath string
	Created  string
}

func (o Office) JSON() string {
	facet := map[string]interface{}{"@type": "dfc-ext:OfficeMetadataFacet"}
	set(facet, evidence.KeyOfficeCreated, o.Created)
	return node(o.ID, "observable:File", facet, fileFacet(o.FileName, o.FilePath))
}

// URL is a browser history entry.
type URL struct {
	ID    string
	URL   string
	Title string
}

func (u URL) JSON() string {
	facet := map[string]interface{}{"@type": "observable:URLFacet"}
	set(facet, evidence.KeyFullValue, u.URL)
	set(facet, evidence.KeyURLTitle, u.Title)
	return node(u.ID, "observable:URL", facet)
}

// Document wraps nodes into a JSON-LD document with Context.
func Document(nodes ...string) string {
	return `{"@context":` + Context + `,"@graph":[` + strings.Join(nodes, ",") + `]}`
}

// Records parses nodes. Nodes without facets are kept.
func Records(t testing.TB, nodes ...string) []*evidence.Record {
	t.Helper()
	var records []*evidence.Record
	for _, raw := range nodes {
		record, err := evidence.Parse([]byte(raw))
		if err != nil && !errors.Is(err, evidence.ErrNoFacets) {
			t.Fatal(err)
		}
		records = append(records, record)
	}
	return records
}

func fileFacet(name, path string) map[string]interface{} {
	if name == "" && path == "" {
		return nil
	}
	facet := map[string]interface{}{"@type": "observable:FileFacet"}
	set(facet, evidence.KeyFileName, name)
	set(facet, evidence.KeyFilePath, path)
	return facet
}

func node(id, typ string, facets ...map[string]interface{}) string {
	var list []map[string]interface{}
	for _, facet := range facets {
		if facet != nil {
			list = append(list, facet)
		}
	}
	n := map[string]interface{}{"@type": typ, evidence.KeyFacets: list}
	if id != "" {
		n["@id"] = id
	}
	b, err := json.Marshal(n)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func set(m map[string]interface{}, key, value string) {
	if value != "" {
		m[key] = value
	}
}
