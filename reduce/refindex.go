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
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/evidencegraph/evidence"
)

// ErrEmptyReferenceSet is returned if an anchor source does not reference
// any record. This almost always means the anchor source does not use the
// expected vocabulary.
var ErrEmptyReferenceSet = errors.New("reference set is empty")

// KeySet is a set of foreign keys collected from an anchor source.
type KeySet map[string]struct{}

// Has reports whether key is part of the set.
func (k KeySet) Has(key string) bool {
	_, ok := k[key]
	return ok
}

// sorted returns the sorted keys.
func (k KeySet) sorted() []string {
	var keys []string
	for key := range k {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// KeyFunc extracts foreign keys of a record.
type KeyFunc func(record *evidence.Record) []string

// LnkTargets returns the MFT entry numbers referenced by shortcut facets.
func LnkTargets(record *evidence.Record) []string {
	var keys []string
	for _, f := range record.Facets {
		if lnk, ok := f.(*evidence.LnkFacet); ok && lnk.TargetEntryNumber != "" {
			keys = append(keys, lnk.TargetEntryNumber)
		}
	}
	return keys
}

// BuildKeySet scans an anchor source and collects all keys returned by fn.
func BuildKeySet(r io.Reader, fn KeyFunc) (KeySet, error) {
	keys := KeySet{}
	_, _, err := Each(r, func(record *evidence.Record) error {
		for _, key := range fn(record) {
			keys[key] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, ErrEmptyReferenceSet
	}
	return keys, nil
}

// Referenced keeps MFT records whose entry number is in keys and that carry
// a $STANDARD_INFORMATION created timestamp.
func Referenced(keys KeySet) Predicate {
	return func(record *evidence.Record) bool {
		mft := record.Mft()
		if mft == nil || mft.SICreated == "" {
			return false
		}
		return keys.Has(mft.EntryNumber)
	}
}

// ReduceReferenced runs both passes of a reference index reduction: keys
// are collected from anchor, then source is reduced to the referenced
// MFT records.
func ReduceReferenced(anchor, source io.Reader) (*Result, KeySet, error) {
	keys, err := BuildKeySet(anchor, LnkTargets)
	if err != nil {
		return nil, nil, err
	}
	result, err := Reduce(source, Referenced(keys))
	if err != nil {
		return nil, nil, err
	}
	return result, keys, nil
}
