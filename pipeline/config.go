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

package pipeline

import (
	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/forensicanalysis/evidencegraph/correlate"
	"github.com/forensicanalysis/evidencegraph/temporal"
)

// Config holds the settings of a run.
//
//	temporal:
//	  timestomp_tolerance: 60s
//	  witness_tolerance: 2s
//	  allow_simultaneous_truncation: false
//	suppress:
//	  selective-deletion:
//	    - bindings.domain.endsWith(".corp")
//	rules_dir: ./rules
type Config struct {
	Temporal temporal.Rules `mapstructure:"temporal"`
	// Suppress holds CEL expressions per family.
	Suppress map[string][]string `mapstructure:"suppress"`
	// RulesDir replaces the built-in rules. Rule files are looked up by
	// their default name.
	RulesDir string `mapstructure:"rules_dir"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{Temporal: temporal.DefaultRules()}
}

// SetDefaults registers the built-in settings as viper defaults, so config
// files, environment and flags may set any value including zero.
func SetDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault("temporal.timestomp_tolerance", defaults.Temporal.TimestompTolerance)
	v.SetDefault("temporal.witness_tolerance", defaults.Temporal.WitnessTolerance)
	v.SetDefault("temporal.allow_simultaneous_truncation", defaults.Temporal.AllowSimultaneousTruncation)
	v.SetDefault("rules_dir", defaults.RulesDir)
}

// LoadConfig reads the config from v. Keys v does not know keep their
// default.
func LoadConfig(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	config := DefaultConfig()
	if err := v.Unmarshal(&config); err != nil {
		return config, errors.Wrap(err, "could not decode config")
	}
	return config, nil
}

// Rules returns the temporal rules of a family. The suppress expressions
// of the family are appended to the global ones.
func (c Config) Rules(family correlate.Family) (temporal.Rules, error) {
	rules := c.Temporal
	rules.Suppress = append([]string{}, c.Temporal.Suppress...)
	extra := temporal.Rules{Suppress: c.Suppress[string(family)]}
	if err := mergo.Merge(&rules, extra, mergo.WithAppendSlice); err != nil {
		return rules, errors.Wrap(err, "could not merge suppress expressions")
	}
	return rules, nil
}
