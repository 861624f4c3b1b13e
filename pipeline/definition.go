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

// Package pipeline wires the detection families: every family is a
// definition of evidence sources, reduction predicates and default rules
// run by one generic filter and one generic detect operation.
package pipeline

import (
	"github.com/pkg/errors"

	"github.com/forensicanalysis/evidencegraph/correlate"
	"github.com/forensicanalysis/evidencegraph/reduce"
)

// Source partition names.
const (
	MFT         = "mft"
	USN         = "usn"
	History     = "history"
	SecurityLog = "security_log"
	SystemLog   = "system_log"
	LNK         = "lnk"
	Office      = "office"
)

// Source is one evidence source of a family.
type Source struct {
	// Name is the partition the source is loaded into.
	Name string
	// Output is the file name of the reduced source.
	Output    string
	Predicate reduce.Predicate
	// Anchor names the source whose keys select the records of this source.
	Anchor   string
	Required bool
}

// Definition describes a detection family.
type Definition struct {
	Family  correlate.Family
	Sources []Source
	// Rules are the default rule files of the family.
	Rules []string
}

// Source returns the source with the given name.
func (d Definition) Source(name string) (Source, bool) {
	for _, source := range d.Sources {
		if source.Name == name {
			return source, true
		}
	}
	return Source{}, false
}

// Definitions of all detection families.
var Definitions = map[correlate.Family]Definition{ // nolint:gochecknoglobals
	correlate.SelectiveDeletion: {
		Family: correlate.SelectiveDeletion,
		Sources: []Source{
			{Name: MFT, Output: "mft_indexeddb_filtered.jsonld", Predicate: reduce.IndexedDB, Required: true},
			{Name: USN, Output: "usn_history_filtered.jsonld", Predicate: reduce.HistoryTampering, Required: true},
			{Name: History, Output: "history_all.jsonld", Predicate: reduce.All, Required: true},
		},
		Rules: []string{"selective_deletion.yaml"},
	},
	correlate.VSSPurge: {
		Family: correlate.VSSPurge,
		Sources: []Source{
			{Name: MFT, Output: "mft_vss_filtered.jsonld", Predicate: reduce.VSSInfrastructure, Required: true},
			{Name: USN, Output: "usn_vss_filtered.jsonld", Predicate: reduce.VSSDeletion, Required: true},
		},
		Rules: []string{"vss_purge.yaml"},
	},
	correlate.LogClear: {
		Family: correlate.LogClear,
		Sources: []Source{
			{Name: SecurityLog, Output: "security_1102_filtered.jsonld", Predicate: reduce.Event1102, Required: true},
			{Name: USN, Output: "usn_security_filtered.jsonld", Predicate: reduce.SecurityLogUSN, Required: true},
			{Name: SystemLog, Output: "system_events.jsonld", Predicate: reduce.All},
		},
		Rules: []string{"log_clear.yaml"},
	},
	correlate.Timestomp: {
		Family: correlate.Timestomp,
		Sources: []Source{
			{Name: LNK, Output: "lnk_files.jsonld", Predicate: reduce.All, Required: true},
			{Name: MFT, Output: "mft_lnk_filtered.jsonld", Anchor: LNK, Required: true},
			{Name: Office, Output: "office_metadata.jsonld", Predicate: reduce.All},
		},
		Rules: []string{"timestomp_lnk.yaml", "timestomp_office.yaml"},
	},
}

// Lookup returns the definition of a family.
func Lookup(family correlate.Family) (Definition, error) {
	def, ok := Definitions[family]
	if !ok {
		return Definition{}, errors.Wrap(correlate.ErrUnknownFamily, string(family))
	}
	return def, nil
}
