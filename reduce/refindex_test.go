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
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildKeySet(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []string
		wantErr error
	}{
		{"flat", document(`{}`, lnkNode("10"), lnkNode("12"), lnkNode("10")), []string{"10", "12"}, nil},
		{"nested documents", `[{"@graph":[` + lnkNode("10") + `]},{"@graph":[` + lnkNode("11") + `]}]`, []string{"10", "11"}, nil},
		{"no shortcuts", document(`{}`, otherFile), nil, ErrEmptyReferenceSet},
		{"empty", document(`{}`), nil, ErrEmptyReferenceSet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, err := BuildKeySet(strings.NewReader(tt.in), LnkTargets)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "BuildKeySet() error = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, keys.sorted())
		})
	}
}

func TestReduceReferenced(t *testing.T) {
	lnk := document(`{}`, lnkNode("10"), lnkNode("12"), lnkNode("99"))
	mft := document(`{"a":"b"}`,
		mftNode(10, `C:\Users\bob\Documents`, "report.docx", "2024-01-01T00:00:00Z"),
		mftNode(11, `C:\Users\bob\Documents`, "unrelated.docx", "2024-01-01T00:00:00Z"),
		mftNode(12, `C:\Users\bob\Documents`, "no-si.docx", ""),
		mftNode(13, `C:\Users\bob\Documents`, "other.docx", "2024-01-01T00:00:00Z"),
	)

	result, keys, err := ReduceReferenced(strings.NewReader(lnk), strings.NewReader(mft))
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "12", "99"}, keys.sorted())
	assert.Equal(t, 4, result.Scanned)
	require.Equal(t, 1, result.Matched)

	kept := parse(t, string(result.Records[0]))
	assert.True(t, keys.Has(kept.Mft().EntryNumber))
	assert.Equal(t, "10", kept.Mft().EntryNumber)
}

func TestReduceReferenced_FailsClosed(t *testing.T) {
	mft := document(`{}`, mftNode(10, `C:\`, "a", "2024-01-01T00:00:00Z"))
	_, _, err := ReduceReferenced(strings.NewReader(document(`{}`, otherFile)), strings.NewReader(mft))
	assert.True(t, errors.Is(err, ErrEmptyReferenceSet))
}
