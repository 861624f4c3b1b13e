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
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/forensicanalysis/evidencegraph/evidence"
)

type scanState int

const (
	stateStart scanState = iota
	stateArray
	stateObject
	stateGraph
	stateDone
)

type field struct {
	key   string
	value json.RawMessage
}

// Scanner reads the graph nodes of a JSON-LD evidence document one at a
// time. Supported documents are {"@context": ..., "@graph": [...]} in any
// key order, a bare array of nodes, a single node, and arrays of documents
// carrying their own @graph. Only the current node and the @context are
// held in memory.
type Scanner struct {
	dec      *json.Decoder
	state    scanState
	pending  []json.RawMessage
	record   json.RawMessage
	context  json.RawMessage
	fields   []field
	sawGraph bool
	err      error
}

// NewScanner creates a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	dec := json.NewDecoder(bufio.NewReaderSize(r, 1<<20))
	dec.UseNumber()
	return &Scanner{dec: dec}
}

// Next advances to the next node. It returns false at the end of the
// document or on error.
func (s *Scanner) Next() bool {
	for {
		if len(s.pending) > 0 {
			s.record = s.pending[0]
			s.pending = s.pending[1:]
			return true
		}
		if s.err != nil || s.state == stateDone {
			s.record = nil
			return false
		}
		if err := s.advance(); err != nil {
			s.err = errors.Wrap(evidence.ErrMalformedEvidence, err.Error())
		}
	}
}

// Record returns the raw bytes of the current node.
func (s *Scanner) Record() json.RawMessage { return s.record }

// Context returns the @context of the document, if any has been read yet.
func (s *Scanner) Context() json.RawMessage { return s.context }

// Err returns the first error that stopped the scan.
func (s *Scanner) Err() error { return s.err }

func (s *Scanner) advance() error { // nolint:gocyclo
	switch s.state {
	case stateStart:
		tok, err := s.dec.Token()
		if err == io.EOF {
			return errors.New("empty document")
		}
		if err != nil {
			return err
		}
		switch tok {
		case json.Delim('['):
			s.state = stateArray
		case json.Delim('{'):
			s.state = stateObject
		default:
			return errors.Errorf("unexpected token %v", tok)
		}
	case stateArray, stateGraph:
		if s.dec.More() {
			var raw json.RawMessage
			if err := s.dec.Decode(&raw); err != nil {
				return err
			}
			s.expand(raw)
			return nil
		}
		if _, err := s.dec.Token(); err != nil {
			return err
		}
		if s.state == stateGraph {
			s.state = stateObject
		} else {
			s.state = stateDone
		}
	case stateObject:
		if !s.dec.More() {
			if _, err := s.dec.Token(); err != nil {
				return err
			}
			if !s.sawGraph {
				s.pending = append(s.pending, s.reassemble())
			}
			s.fields = nil
			s.state = stateDone
			return nil
		}
		tok, err := s.dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errors.Errorf("unexpected token %v", tok)
		}
		if key == evidence.KeyGraph {
			tok, err := s.dec.Token()
			if err != nil {
				return err
			}
			if tok != json.Delim('[') {
				return errors.New("@graph must be an array")
			}
			s.sawGraph = true
			s.state = stateGraph
			return nil
		}
		var raw json.RawMessage
		if err := s.dec.Decode(&raw); err != nil {
			return err
		}
		if key == evidence.KeyContext {
			s.context = raw
		}
		if !s.sawGraph {
			s.fields = append(s.fields, field{key: key, value: raw})
		}
	}
	return nil
}

// expand queues a node, or the nodes of an embedded document.
func (s *Scanner) expand(raw json.RawMessage) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		s.pending = append(s.pending, raw)
		return
	}

	var graph, context gjson.Result
	gjson.ParseBytes(trimmed).ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case evidence.KeyGraph:
			graph = value
		case evidence.KeyContext:
			context = value
		}
		return true
	})
	if !graph.Exists() {
		s.pending = append(s.pending, raw)
		return
	}

	if s.context == nil && context.Exists() {
		s.context = json.RawMessage(context.Raw)
	}
	if !graph.IsArray() {
		s.expand(json.RawMessage(graph.Raw))
		return
	}
	for _, node := range graph.Array() {
		s.expand(json.RawMessage(node.Raw))
	}
}

// reassemble rebuilds a document without @graph as a single node.
func (s *Scanner) reassemble() json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(f.key)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(f.value)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}
