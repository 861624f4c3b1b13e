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

// Package correlate evaluates declarative contradiction patterns against
// an evidence graph. A pattern is a single SQL query over the partition
// views of the store. It names the partitions it reads and the bindings
// every result row carries. The engine does not interpret the query.
package correlate

import (
	"bufio"
	"bytes"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Family is a class of contradiction.
type Family string

// Detection families.
const (
	SelectiveDeletion Family = "selective-deletion"
	VSSPurge          Family = "vss-purge"
	LogClear          Family = "log-clear"
	Timestomp         Family = "timestomp"
)

// Families lists all detection families.
var Families = []Family{SelectiveDeletion, VSSPurge, LogClear, Timestomp} // nolint:gochecknoglobals

var familyAliases = map[string]Family{ // nolint:gochecknoglobals
	"af-002":          SelectiveDeletion,
	"af-004":          VSSPurge,
	"af-007":          LogClear,
	"af-timestomping": Timestomp,
}

// ErrUnknownFamily is returned for unknown family names.
var ErrUnknownFamily = errors.New("unknown family")

// ParseFamily returns the family of a name or alias.
func ParseFamily(name string) (Family, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for _, family := range Families {
		if string(family) == normalized {
			return family, nil
		}
	}
	if family, ok := familyAliases[normalized]; ok {
		return family, nil
	}
	return "", errors.Wrap(ErrUnknownFamily, name)
}

// Pattern is a contradiction pattern of one family.
type Pattern struct {
	Family      Family   `yaml:"family"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Sources     []string `yaml:"sources"`
	Bindings    []string `yaml:"bindings"`
	Query       string   `yaml:"query"`
}

// Validate checks that a pattern can be evaluated.
func (p *Pattern) Validate() error {
	if _, err := ParseFamily(string(p.Family)); err != nil {
		return err
	}
	if strings.TrimSpace(p.Query) == "" {
		return errors.Errorf("pattern %s has no query", p.Name)
	}
	if len(p.Sources) == 0 {
		return errors.Errorf("pattern %s reads no sources", p.Name)
	}
	return nil
}

// ParsePattern decodes a YAML rule file.
func ParsePattern(data []byte) (*Pattern, error) {
	p := &Pattern{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, errors.Wrap(err, "could not decode rule")
	}
	family, err := ParseFamily(string(p.Family))
	if err != nil {
		return nil, err
	}
	p.Family = family
	return p, p.Validate()
}

// ParseSQLPattern reads a plain SQL rule. Sources, bindings and name are
// declared in header comments:
//
//	-- name: vss purge
//	-- sources: mft, usn
//	-- bindings: deleted_guid, usn_time
func ParseSQLPattern(family Family, data []byte) (*Pattern, error) {
	p := &Pattern{Family: family, Query: string(data)}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "--") {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "--")), ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "name":
			p.Name = strings.TrimSpace(value)
		case "family":
			f, err := ParseFamily(value)
			if err != nil {
				return nil, err
			}
			p.Family = f
		case "sources":
			p.Sources = append(p.Sources, splitList(value)...)
		case "bindings":
			p.Bindings = append(p.Bindings, splitList(value)...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p, p.Validate()
}

// LoadPattern reads a rule file. YAML files carry their family, plain SQL
// files get family assigned unless their header names one. If family is
// set, a YAML rule of another family is rejected.
func LoadPattern(fs afero.Fs, path string, family Family) (*Pattern, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read rule %s", path)
	}

	var p *Pattern
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sql", ".rq":
		p, err = ParseSQLPattern(family, data)
	default:
		p, err = ParsePattern(data)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "invalid rule %s", path)
	}
	if family != "" && p.Family != family {
		return nil, errors.Errorf("rule %s belongs to %s, not %s", path, p.Family, family)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
