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

// Package evidence provides the normalized representation of forensic
// evidence records. A record is one observable entity, typically a file or
// an event, with one or more typed facets. Records are parsed from CASE/UCO
// JSON-LD graph nodes and always keep their original bytes, so a record can
// be written back unmodified.
package evidence

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// ErrMalformedEvidence marks records or values that cannot be used for
// correlation. Such records are skipped and counted, never fatal.
var ErrMalformedEvidence = errors.New("malformed evidence")

// ErrNoFacets is returned for records without any facet.
var ErrNoFacets = errors.Wrap(ErrMalformedEvidence, "record has no facets")

// Kind is the coarse type of an observable entity.
type Kind int

// Record kinds.
const (
	Other Kind = iota
	File
	Event
	Document
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Event:
		return "event"
	case Document:
		return "document"
	default:
		return "other"
	}
}

// Record is one observable entity of an evidence source.
type Record struct {
	ID   string
	Type string
	Kind Kind
	// Identity is the source local key: MFT entry number, event record id,
	// file path or @id in this order. It is not unique across sources.
	Identity string
	Facets   []Facet
	// Raw holds the exact input bytes of the record.
	Raw json.RawMessage
}

// Parse decodes a single JSON-LD graph node.
func Parse(raw []byte) (*Record, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.Wrap(ErrMalformedEvidence, "invalid json")
	}
	node := gjson.ParseBytes(raw)
	if !node.IsObject() {
		return nil, errors.Wrap(ErrMalformedEvidence, "record is not an object")
	}

	record := &Record{Raw: json.RawMessage(raw)}
	var topLevel map[string]interface{}
	node.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case KeyID:
			record.ID = value.String()
		case KeyType:
			record.Type = tagString(value)
		case KeyFacets:
			if value.IsArray() {
				for _, f := range value.Array() {
					if f.IsObject() {
						record.Facets = append(record.Facets, parseFacet(f))
					}
				}
			} else if value.IsObject() {
				record.Facets = append(record.Facets, parseFacet(value))
			}
		case KeyEntryNumber:
			if topLevel == nil {
				topLevel = map[string]interface{}{}
			}
			topLevel[key.String()] = unwrap(value).Value()
		}
		return true
	})

	if len(record.Facets) == 0 {
		return record, ErrNoFacets
	}

	record.Kind = kindOf(record)
	record.Identity = identityOf(record, topLevel)
	return record, nil
}

func kindOf(record *Record) Kind {
	switch {
	case strings.Contains(record.Type, "Event"):
		return Event
	case strings.Contains(record.Type, "Document"):
		return Document
	case strings.Contains(record.Type, "File"):
		if record.Office() != nil {
			return Document
		}
		return File
	}
	for _, f := range record.Facets {
		switch f.Type() {
		case EventRecordFacetType, EventLogFacetType:
			return Event
		case OfficeMetadataFacetType:
			return Document
		case MftFacetType, UsnFacetType, FileFacetType, LnkFacetType:
			return File
		}
	}
	return Other
}

func identityOf(record *Record, topLevel map[string]interface{}) string {
	if mft := record.Mft(); mft != nil && mft.EntryNumber != "" {
		return mft.EntryNumber
	}
	if v, ok := topLevel[KeyEntryNumber]; ok && v != nil {
		return stringify(v)
	}
	if ev := record.EventRecord(); ev != nil && ev.RecordID != "" {
		return ev.RecordID
	}
	if file := record.File(); file != nil && file.FilePath != "" {
		return file.FilePath
	}
	return record.ID
}

// Facet returns the first facet of the given type or nil.
func (r *Record) Facet(t FacetType) Facet {
	for _, f := range r.Facets {
		if f.Type() == t {
			return f
		}
	}
	return nil
}

// HasFacet reports whether a facet of the given type is attached.
func (r *Record) HasFacet(t FacetType) bool {
	return r.Facet(t) != nil
}

func (r *Record) Mft() *MftFacet {
	f, _ := r.Facet(MftFacetType).(*MftFacet)
	return f
}

func (r *Record) Usn() *UsnFacet {
	f, _ := r.Facet(UsnFacetType).(*UsnFacet)
	return f
}

func (r *Record) File() *FileFacet {
	f, _ := r.Facet(FileFacetType).(*FileFacet)
	return f
}

func (r *Record) EventRecord() *EventRecordFacet {
	f, _ := r.Facet(EventRecordFacetType).(*EventRecordFacet)
	return f
}

func (r *Record) EventLog() *EventLogFacet {
	f, _ := r.Facet(EventLogFacetType).(*EventLogFacet)
	return f
}

func (r *Record) Lnk() *LnkFacet {
	f, _ := r.Facet(LnkFacetType).(*LnkFacet)
	return f
}

func (r *Record) Office() *OfficeMetadataFacet {
	f, _ := r.Facet(OfficeMetadataFacetType).(*OfficeMetadataFacet)
	return f
}

// FileName returns the file name of the record, falling back to the base
// of the file path.
func (r *Record) FileName() string {
	file := r.File()
	if file == nil {
		return ""
	}
	if file.FileName != "" {
		return file.FileName
	}
	path := strings.ReplaceAll(file.FilePath, "\\", "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// unwrap returns the value of a JSON-LD literal {"@value": ...} or the
// value itself.
func unwrap(value gjson.Result) gjson.Result {
	if !value.IsObject() {
		return value
	}
	inner := value
	found := false
	value.ForEach(func(key, v gjson.Result) bool {
		if key.String() == KeyValue {
			inner, found = v, true
			return false
		}
		return true
	})
	if !found {
		return value
	}
	return inner
}

// tagString flattens a string or list @type into a single string.
func tagString(value gjson.Result) string {
	if !value.IsArray() {
		return value.String()
	}
	var tags []string
	for _, t := range value.Array() {
		tags = append(tags, t.String())
	}
	return strings.Join(tags, " ")
}

func stringify(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case map[string]interface{}:
		if inner, ok := v[KeyValue]; ok {
			return stringify(inner)
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
