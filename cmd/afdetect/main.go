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

// Package main implements the afdetect command line tool. Every detection
// family exposes the same subcommands:
//
//	filter    Reduce raw evidence sources to the relevant records
//	detect    Correlate sources and report confirmed contradictions
//	query     Run SQL against the loaded evidence of a family
//	families  List families, their sources and rules
//
// Reduce the sources of a family:
//
//	afdetect filter selective-deletion --mft mft.jsonld --usn usn.jsonld --history history.jsonld
//
// Detect from the reduced sources:
//
//	afdetect detect selective-deletion filtered_selective_deletion
//
// Detect with an own rule file:
//
//	afdetect detect timestomp --lnk lnk.jsonld --mft mft.jsonld --rule-file timestomp.yaml
//
// The process exits with 0 if no contradiction was found, 1 on errors and 2
// if a contradiction was confirmed.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/evidencegraph/cmd"
)

func main() {
	err := cmd.Root().Execute()
	if err != nil && !errors.Is(err, cmd.ErrContradiction) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cmd.ExitCode(err))
}
