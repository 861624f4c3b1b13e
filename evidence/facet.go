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

package evidence

import (
	"strings"

	"github.com/tidwall/gjson"
)

// FacetType is the short tag of a facet variant. It is also used as the
// suffix of the per facet store views, e.g. "mft_usn".
type FacetType string

// Known facet variants.
const (
	MftFacetType            FacetType = "mft"
	UsnFacetType            FacetType = "usn"
	FileFacetType           FacetType = "file"
	EventRecordFacetType    FacetType = "event_record"
	EventLogFacetType       FacetType = "event_log"
	LnkFacetType            FacetType = "lnk"
	OfficeMetadataFacetType FacetType = "office"
	URLFacetType            FacetType = "url"
	GenericFacetType        FacetType = "other"
)

// FacetTypes lists all facet variants in a stable order.
var FacetTypes = []FacetType{ // nolint:gochecknoglobals
	MftFacetType, UsnFacetType, FileFacetType, EventRecordFacetType, EventLogFacetType,
	LnkFacetType, OfficeMetadataFacetType, URLFacetType, GenericFacetType,
}

// Facet is a typed attribute bundle attached to a record. The set of
// implementations is closed.
type Facet interface {
	Type() FacetType
	// Tag returns the original @type of the facet.
	Tag() string
	// Attributes returns all attributes with JSON-LD literals unwrapped,
	// keyed by their vocabulary key.
	Attributes() map[string]interface{}
	facet()
}

type attributes struct {
	tag   string
	attrs map[string]interface{}
}

func (a attributes) Tag() string                        { return a.tag }
func (a attributes) Attributes() map[string]interface{} { return a.attrs }
func (a attributes) facet()                             {}

func (a attributes) str(key string) string {
	v, ok := a.attrs[key]
	if !ok || v == nil {
		return ""
	}
	return stringify(v)
}

// MftFacet holds the master file table view of a file.
type MftFacet struct {
	attributes
	EntryNumber string
	ParentPath  string
	// SICreated is the $STANDARD_INFORMATION created timestamp.
	SICreated string
	// FNCreated is the $FILE_NAME created timestamp.
	FNCreated string
}

func (*MftFacet) Type() FacetType { return MftFacetType }

// UsnFacet holds one change journal entry.
type UsnFacet struct {
	attributes
	UpdateReasons []string
	Timestamp     string
}

func (*UsnFacet) Type() FacetType { return UsnFacetType }

// HasReason reports whether any of the reasons is part of the update reasons.
func (f *UsnFacet) HasReason(reasons ...string) bool {
	for _, have := range f.UpdateReasons {
		for _, want := range reasons {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

type FileFacet struct {
	attributes
	FileName string
	FilePath string
}

func (*FileFacet) Type() FacetType { return FileFacetType }

type EventRecordFacet struct {
	attributes
	EventID     string
	RecordID    string
	TimeCreated string
}

func (*EventRecordFacet) Type() FacetType { return EventRecordFacetType }

type EventLogFacet struct {
	attributes
	Channel string
}

func (*EventLogFacet) Type() FacetType { return EventLogFacetType }

// LnkFacet holds the metadata of a Windows shortcut file.
type LnkFacet struct {
	attributes
	TargetEntryNumber string
	TargetPath        string
	TargetCreated     string
	ShortcutCreated   string
}

func (*LnkFacet) Type() FacetType { return LnkFacetType }

// OfficeMetadataFacet holds metadata embedded in an office document.
type OfficeMetadataFacet struct {
	attributes
	Created string
}

func (*OfficeMetadataFacet) Type() FacetType { return OfficeMetadataFacetType }

// URLFacet holds a browser history entry.
type URLFacet struct {
	attributes
	FullValue string
}

func (*URLFacet) Type() FacetType { return URLFacetType }

// GenericFacet keeps facets of unknown type so no attribute is lost.
type GenericFacet struct {
	attributes
}

func (*GenericFacet) Type() FacetType { return GenericFacetType }

var tagTypes = []struct { // nolint:gochecknoglobals
	marker    string
	facetType FacetType
}{
	{"MftFacet", MftFacetType},
	{"UsnFacet", UsnFacetType},
	{"EventRecordFacet", EventRecordFacetType},
	{"EventLogFacet", EventLogFacetType},
	{"LnkFacet", LnkFacetType},
	{"Office", OfficeMetadataFacetType},
	{"URLFacet", URLFacetType},
	{"UrlFacet", URLFacetType},
	{"FileFacet", FileFacetType},
}

var keyTypes = []struct { // nolint:gochecknoglobals
	key       string
	facetType FacetType
}{
	{KeyEntryNumber, MftFacetType},
	{KeyParentPath, MftFacetType},
	{KeyUpdateReasons, UsnFacetType},
	{KeyTargetEntryNumber, LnkFacetType},
	{KeyEventID, EventRecordFacetType},
	{KeyChannel, EventLogFacetType},
	{KeyOfficeCreated, OfficeMetadataFacetType},
	{KeyFullValue, URLFacetType},
	{KeyFilePath, FileFacetType},
	{KeyFileName, FileFacetType},
}

func detectFacetType(tag string, attrs map[string]interface{}) FacetType {
	for _, t := range tagTypes {
		if strings.Contains(tag, t.marker) {
			return t.facetType
		}
	}
	for _, t := range keyTypes {
		if _, ok := attrs[t.key]; ok {
			return t.facetType
		}
	}
	return GenericFacetType
}

// parseFacet converts a JSON object into its facet variant.
func parseFacet(obj gjson.Result) Facet {
	a := attributes{attrs: map[string]interface{}{}}
	obj.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case KeyType:
			a.tag = tagString(value)
		case KeyID:
		default:
			a.attrs[key.String()] = unwrap(value).Value()
		}
		return true
	})

	switch detectFacetType(a.tag, a.attrs) {
	case MftFacetType:
		return &MftFacet{
			attributes:  a,
			EntryNumber: a.str(KeyEntryNumber),
			ParentPath:  a.str(KeyParentPath),
			SICreated:   a.str(KeySICreated),
			FNCreated:   a.str(KeyFNCreated),
		}
	case UsnFacetType:
		return &UsnFacet{
			attributes:    a,
			UpdateReasons: reasons(a.attrs[KeyUpdateReasons]),
			Timestamp:     a.str(KeyUsnTimestamp),
		}
	case FileFacetType:
		return &FileFacet{attributes: a, FileName: a.str(KeyFileName), FilePath: a.str(KeyFilePath)}
	case EventRecordFacetType:
		created := a.str(KeyTimeCreated)
		if created == "" {
			created = a.str(KeyEventTime)
		}
		return &EventRecordFacet{
			attributes:  a,
			EventID:     a.str(KeyEventID),
			RecordID:    a.str(KeyEventRecordID),
			TimeCreated: created,
		}
	case EventLogFacetType:
		return &EventLogFacet{attributes: a, Channel: a.str(KeyChannel)}
	case LnkFacetType:
		return &LnkFacet{
			attributes:        a,
			TargetEntryNumber: a.str(KeyTargetEntryNumber),
			TargetPath:        a.str(KeyTargetPath),
			TargetCreated:     a.str(KeyTargetCreated),
			ShortcutCreated:   a.str(KeyShortcutCreated),
		}
	case OfficeMetadataFacetType:
		return &OfficeMetadataFacet{attributes: a, Created: a.str(KeyOfficeCreated)}
	case URLFacetType:
		return &URLFacet{attributes: a, FullValue: a.str(KeyFullValue)}
	default:
		return &GenericFacet{attributes: a}
	}
}

// reasons accepts a list of reasons or a single, possibly
// separator joined, reason string.
func reasons(v interface{}) []string {
	var out []string
	switch v := v.(type) {
	case []interface{}:
		for _, r := range v {
			out = append(out, reasons(r)...)
		}
	case map[string]interface{}:
		if inner, ok := v[KeyValue]; ok {
			out = append(out, reasons(inner)...)
		}
	case string:
		out = append(out, strings.FieldsFunc(v, func(c rune) bool { return c == '|' || c == ',' || c == ' ' })...)
	case nil:
	default:
		out = append(out, stringify(v))
	}
	return out
}
