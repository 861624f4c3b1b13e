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

// Package reduce shrinks large evidence documents to the records relevant
// for one detection family. Documents are read in a single forward pass;
// memory grows with the kept records only.
package reduce

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/evidencegraph/evidence"
)

// Predicate decides whether a record is kept. It must only inspect the
// facets of the given record.
type Predicate func(record *evidence.Record) bool

// Result holds the kept records of a reduction together with the
// vocabulary header of the input document.
type Result struct {
	Context json.RawMessage
	Records []json.RawMessage

	Matched   int
	Scanned   int
	Malformed int
	Faceless  int
}

// Reduce streams all records of r and keeps those matching pred. Records
// are kept byte for byte, including facets pred did not look at. Records
// without facets and records that cannot be parsed are never kept.
func Reduce(r io.Reader, pred Predicate) (*Result, error) {
	result := &Result{}
	scanner := NewScanner(r)
	for scanner.Next() {
		result.Scanned++
		record, err := evidence.Parse(scanner.Record())
		if err != nil {
			if errors.Is(err, evidence.ErrNoFacets) {
				result.Faceless++
			} else {
				result.Malformed++
			}
			continue
		}
		if pred(record) {
			result.Matched++
			result.Records = append(result.Records, record.Raw)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	result.Context = scanner.Context()
	return result, nil
}

// Each streams all records of r and calls fn for every parseable record
// with facets. It returns the number of scanned and skipped records.
func Each(r io.Reader, fn func(record *evidence.Record) error) (scanned, skipped int, err error) {
	scanner := NewScanner(r)
	for scanner.Next() {
		scanned++
		record, err := evidence.Parse(scanner.Record())
		if err != nil {
			skipped++
			continue
		}
		if err := fn(record); err != nil {
			return scanned, skipped, err
		}
	}
	return scanned, skipped, scanner.Err()
}

// WriteTo writes the kept records using the envelope of the input: an
// object with @context and @graph, or a bare array if the input had no
// @context.
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	cw := &countWriter{w: bufio.NewWriter(w)}
	if r.Context != nil {
		cw.write(`{"@context": `)
		cw.writeBytes(r.Context)
		cw.write(`, "@graph": [`)
	} else {
		cw.write("[")
	}
	for i, record := range r.Records {
		if i > 0 {
			cw.write(",")
		}
		cw.write("\n")
		cw.writeBytes(record)
	}
	if len(r.Records) > 0 {
		cw.write("\n")
	}
	if r.Context != nil {
		cw.write("]}\n")
	} else {
		cw.write("]\n")
	}
	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, cw.w.Flush()
}

// Reduction returns the share of scanned records that was dropped in percent.
func (r *Result) Reduction() float64 {
	if r.Scanned == 0 {
		return 0
	}
	return 100 * float64(r.Scanned-r.Matched) / float64(r.Scanned)
}

type countWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countWriter) write(s string) {
	if c.err != nil {
		return
	}
	n, err := c.w.WriteString(s)
	c.n += int64(n)
	c.err = err
}

func (c *countWriter) writeBytes(b []byte) {
	if c.err != nil {
		return
	}
	n, err := c.w.Write(b)
	c.n += int64(n)
	c.err = err
}
