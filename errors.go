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

package evidencegraph

import (
	"github.com/pkg/errors"

	"github.com/forensicanalysis/evidencegraph/evidence"
	"github.com/forensicanalysis/evidencegraph/reduce"
)

// Error taxonomy shared by all stages.
var (
	// ErrInputNotFound is returned for missing source or rule files.
	ErrInputNotFound = errors.New("input not found")
	// ErrMalformedEvidence marks skipped records and values.
	ErrMalformedEvidence = evidence.ErrMalformedEvidence
	// ErrEmptyReferenceSet is returned if a reference index has no keys.
	ErrEmptyReferenceSet = reduce.ErrEmptyReferenceSet
	// ErrSourceLoaded is returned if a source is loaded twice.
	ErrSourceLoaded = errors.New("source already loaded")
)
