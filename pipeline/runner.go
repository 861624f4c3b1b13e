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
	"context"
	"path"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/forensicanalysis/evidencegraph"
	"github.com/forensicanalysis/evidencegraph/correlate"
	"github.com/forensicanalysis/evidencegraph/reduce"
	"github.com/forensicanalysis/evidencegraph/rules"
	"github.com/forensicanalysis/evidencegraph/temporal"
)

// SummaryFile is written next to the reduced sources.
const SummaryFile = "summary.json"

// Inputs maps source names to file paths.
type Inputs map[string]string

// Runner executes the filter and detect operations of all families.
type Runner struct {
	Fs     afero.Fs
	Log    *zap.Logger
	Config Config
}

// NewRunner creates a runner. A nil logger discards all logs.
func NewRunner(fs afero.Fs, log *zap.Logger, config Config) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{Fs: fs, Log: log, Config: config}
}

// checkInputs fails with ErrInputNotFound before any work is done if a
// required source is missing or an input file does not exist.
func (r *Runner) checkInputs(def Definition, inputs Inputs) error {
	for name := range inputs {
		if _, ok := def.Source(name); !ok {
			return errors.Errorf("%s reads no source %s", def.Family, name)
		}
	}
	for _, source := range def.Sources {
		p, ok := inputs[source.Name]
		if !ok || p == "" {
			if source.Required {
				return errors.Wrapf(evidencegraph.ErrInputNotFound, "no %s input", source.Name)
			}
			continue
		}
		if err := r.exists(p); err != nil {
			return errors.Wrapf(err, "%s input", source.Name)
		}
		if source.Anchor != "" && inputs[source.Anchor] == "" {
			return errors.Wrapf(evidencegraph.ErrInputNotFound, "%s requires %s input", source.Name, source.Anchor)
		}
	}
	return nil
}

func (r *Runner) exists(p string) error {
	info, err := r.Fs.Stat(p)
	if err != nil {
		return errors.Wrap(evidencegraph.ErrInputNotFound, p)
	}
	if info.IsDir() {
		return errors.Wrapf(evidencegraph.ErrInputNotFound, "%s is a directory", p)
	}
	return nil
}

/* ################################
#   Filter
################################ */

// Filter reduces every given source of a family into outDir and writes a
// summary. Sources are reduced concurrently.
func (r *Runner) Filter(ctx context.Context, family correlate.Family, inputs Inputs, outDir string) ([]reduce.Summary, error) {
	def, err := Lookup(family)
	if err != nil {
		return nil, err
	}
	if err := r.checkInputs(def, inputs); err != nil {
		return nil, err
	}
	if err := r.Fs.MkdirAll(outDir, 0755); err != nil {
		return nil, errors.Wrap(err, "could not create output directory")
	}

	summaries := make([]*reduce.Summary, len(def.Sources))
	g, ctx := errgroup.WithContext(ctx)
	for i, source := range def.Sources {
		i, source := i, source
		if inputs[source.Name] == "" {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			summary, err := r.filter(source, inputs, path.Join(outDir, source.Output))
			if err != nil {
				return errors.Wrapf(err, "could not filter %s", source.Name)
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var list []reduce.Summary
	for _, summary := range summaries {
		if summary != nil {
			list = append(list, *summary)
		}
	}

	f, err := r.Fs.Create(path.Join(outDir, SummaryFile))
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint:errcheck
	if err := reduce.WriteSummaries(f, list); err != nil {
		return nil, errors.Wrap(err, "could not write summary")
	}
	return list, nil
}

func (r *Runner) filter(source Source, inputs Inputs, out string) (*reduce.Summary, error) {
	start := time.Now()
	in := inputs[source.Name]

	f, err := r.Fs.Open(in)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint:errcheck

	var (
		result *reduce.Result
		keys   reduce.KeySet
	)
	if source.Anchor != "" {
		anchor, err := r.Fs.Open(inputs[source.Anchor])
		if err != nil {
			return nil, err
		}
		defer anchor.Close() // nolint:errcheck
		result, keys, err = reduce.ReduceReferenced(anchor, f)
		if err != nil {
			return nil, err
		}
	} else {
		result, err = reduce.Reduce(f, source.Predicate)
		if err != nil {
			return nil, err
		}
	}

	o, err := r.Fs.Create(out)
	if err != nil {
		return nil, err
	}
	defer o.Close() // nolint:errcheck
	written, err := result.WriteTo(o)
	if err != nil {
		return nil, err
	}

	summary := reduce.NewSummary(source.Name, result)
	summary.Input, summary.Output = in, out
	summary.OutputSize, summary.Keys = written, len(keys)
	if info, err := r.Fs.Stat(in); err == nil {
		summary.InputSize = info.Size()
	}

	r.Log.Info("filtered source",
		zap.String("source", source.Name),
		zap.Int("matched", result.Matched),
		zap.Int("scanned", result.Scanned),
		zap.Int("malformed", result.Malformed),
		zap.Int("keys", len(keys)),
		zap.Duration("duration", time.Since(start)),
	)
	return &summary, nil
}

/* ################################
#   Detect
################################ */

// Detect loads the given sources of a family, evaluates every rule whose
// sources are loaded and validates the matches. Without rule paths the
// default rules of the family are used.
func (r *Runner) Detect(ctx context.Context, family correlate.Family, inputs Inputs, rulePaths []string) (*Report, error) {
	def, err := Lookup(family)
	if err != nil {
		return nil, err
	}
	if err := r.checkInputs(def, inputs); err != nil {
		return nil, err
	}
	patterns, err := r.patterns(def, rulePaths)
	if err != nil {
		return nil, err
	}
	rules, err := r.Config.Rules(family)
	if err != nil {
		return nil, err
	}
	validator, err := temporal.New(rules)
	if err != nil {
		return nil, err
	}

	store, stats, err := r.load(ctx, def, inputs)
	if err != nil {
		return nil, err
	}
	defer store.Close() // nolint:errcheck

	report := &Report{Family: family, Sources: stats}
	var matches []correlate.Match
	for _, pattern := range patterns {
		run := PatternRun{Name: pattern.Name, Sources: pattern.Sources, Missing: pattern.Missing(store)}
		if len(run.Missing) > 0 {
			r.Log.Info("pattern not evaluated", zap.String("pattern", pattern.Name), zap.Strings("missing", run.Missing))
			report.Patterns = append(report.Patterns, run)
			continue
		}
		found, err := correlate.Evaluate(store, pattern)
		if err != nil {
			return nil, err
		}
		run.Evaluated, run.Matches = true, len(found)
		r.Log.Info("pattern evaluated", zap.String("pattern", pattern.Name), zap.Int("matches", len(found)))
		report.Patterns = append(report.Patterns, run)
		matches = append(matches, found...)
	}

	result := validator.Validate(matches)
	report.Matches = len(matches)
	report.Contradictions = result.Confirmed
	report.Anchors = result.Anchors
	report.Skipped = result.Skipped
	report.Rejected = result.Rejected
	report.Suppressed = result.Suppressed
	r.Log.Info("validated matches",
		zap.String("family", string(family)),
		zap.Int("confirmed", len(result.Confirmed)),
		zap.Int("skipped", result.Skipped),
		zap.Int("rejected", result.Rejected),
		zap.Int("suppressed", result.Suppressed),
	)
	return report, nil
}

// Load loads the given sources of a family into a new store. The caller
// owns the store.
func (r *Runner) Load(ctx context.Context, family correlate.Family, inputs Inputs) (*evidencegraph.Store, []evidencegraph.LoadStats, error) {
	def, err := Lookup(family)
	if err != nil {
		return nil, nil, err
	}
	if err := r.checkInputs(def, inputs); err != nil {
		return nil, nil, err
	}
	return r.load(ctx, def, inputs)
}

func (r *Runner) load(ctx context.Context, def Definition, inputs Inputs) (*evidencegraph.Store, []evidencegraph.LoadStats, error) {
	store, err := evidencegraph.New()
	if err != nil {
		return nil, nil, err
	}

	var loaded []evidencegraph.LoadStats
	for _, source := range def.Sources {
		p := inputs[source.Name]
		if p == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		start := time.Now()
		stats, err := store.LoadFile(r.Fs, source.Name, p)
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		r.Log.Info("loaded source",
			zap.String("source", stats.Source),
			zap.Int("loaded", stats.Loaded),
			zap.Int("skipped", stats.Skipped),
			zap.Int("invalid", stats.Invalid),
			zap.Duration("duration", time.Since(start)),
		)
		loaded = append(loaded, stats)
	}
	return store, loaded, nil
}

// patterns loads the rule files. All rule files are checked for existence
// before any is parsed.
func (r *Runner) patterns(def Definition, rulePaths []string) ([]*correlate.Pattern, error) {
	var fs afero.Fs
	switch {
	case len(rulePaths) > 0:
		fs = r.Fs
	case r.Config.RulesDir != "":
		fs = r.Fs
		for _, name := range def.Rules {
			rulePaths = append(rulePaths, path.Join(r.Config.RulesDir, name))
		}
	default:
		fs = afero.FromIOFS{FS: rules.FS}
		rulePaths = def.Rules
	}

	for _, p := range rulePaths {
		if _, err := fs.Stat(p); err != nil {
			return nil, errors.Wrapf(evidencegraph.ErrInputNotFound, "rule %s", p)
		}
	}

	var patterns []*correlate.Pattern
	for _, p := range rulePaths {
		pattern, err := correlate.LoadPattern(fs, p, def.Family)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, pattern)
	}
	return patterns, nil
}

// ResolveDir finds the reduced sources of a family written by Filter.
func (r *Runner) ResolveDir(family correlate.Family, dir string) (Inputs, error) {
	def, err := Lookup(family)
	if err != nil {
		return nil, err
	}
	inputs := Inputs{}
	for _, source := range def.Sources {
		p := path.Join(dir, source.Output)
		if _, err := r.Fs.Stat(p); err == nil {
			inputs[source.Name] = p
		} else if source.Required {
			return nil, errors.Wrapf(evidencegraph.ErrInputNotFound, "%s in %s", source.Output, dir)
		}
	}
	return inputs, nil
}

// Sources returns the source names of a family in load order.
func Sources(family correlate.Family) []string {
	def, err := Lookup(family)
	if err != nil {
		return nil
	}
	var names []string
	for _, source := range def.Sources {
		names = append(names, source.Name)
	}
	return names
}
