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

package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/evidencegraph"
	"github.com/forensicanalysis/evidencegraph/correlate"
	"github.com/forensicanalysis/evidencegraph/pipeline"
)

func filterCommand(a *app) *cobra.Command {
	var outDir string
	filterCommand := &cobra.Command{
		Use:   "filter <family>",
		Short: "Reduce evidence sources to the records relevant for a family",
		Example: `  afdetect filter selective-deletion --mft mft.jsonld --usn usn.jsonld --history history.jsonld
  afdetect filter timestomp --lnk lnk.jsonld --mft mft.jsonld --output-dir out`,
		Args: cobra.MatchAll(cobra.ExactArgs(1), requireFamily),
		RunE: func(cmd *cobra.Command, args []string) error {
			family, _ := correlate.ParseFamily(args[0])
			if err := unexpectedSources(cmd, family); err != nil {
				return err
			}
			runner, err := a.runner()
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = "filtered_" + strings.ReplaceAll(string(family), "-", "_")
			}

			summaries, err := runner.Filter(cmd.Context(), family, inputs(cmd, family), outDir)
			if err != nil {
				return err
			}
			for _, s := range summaries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: kept %d of %d records (%.1f%% reduction) -> %s\n",
					s.Source, s.Matched, s.Scanned, s.Reduction, s.Output)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "summary: %s\n", path.Join(outDir, pipeline.SummaryFile))
			return nil
		},
	}
	filterCommand.Flags().StringVarP(&outDir, "output-dir", "o", "", "output directory (default filtered_<family>)")
	sourceFlags(filterCommand.Flags())
	return filterCommand
}

func detectCommand(a *app) *cobra.Command {
	var (
		ruleFiles []string
		asJSON    bool
	)
	detectCommand := &cobra.Command{
		Use:   "detect <family> [directory]",
		Short: "Correlate evidence sources and report confirmed contradictions",
		Long: `detect loads the evidence sources of a family, evaluates the rules of the
family and validates the matches. Sources are given as flags or found by
their reduced file names in a directory written by filter. Flags take
precedence over the directory.`,
		Example: `  afdetect detect vss-purge filtered_vss_purge
  afdetect detect log-clear --security-log security.jsonld --usn usn.jsonld --rule-file log_clear.yaml`,
		Args: cobra.MatchAll(cobra.RangeArgs(1, 2), requireFamily), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			family, _ := correlate.ParseFamily(args[0])
			if err := unexpectedSources(cmd, family); err != nil {
				return err
			}
			runner, err := a.runner()
			if err != nil {
				return err
			}

			in := pipeline.Inputs{}
			if len(args) == 2 { //nolint:gomnd
				if err := requireDir(a.fs, args[1]); err != nil {
					return err
				}
				if in, err = runner.ResolveDir(family, args[1]); err != nil {
					return err
				}
			}
			for source, p := range inputs(cmd, family) {
				in[source] = p
			}

			report, err := runner.Detect(cmd.Context(), family, in, ruleFiles)
			if err != nil {
				return err
			}
			if asJSON {
				err = report.WriteJSON(cmd.OutOrStdout())
			} else {
				err = report.WriteText(cmd.OutOrStdout())
			}
			if err != nil {
				return err
			}
			if pipeline.ExitCode(report, nil) == pipeline.ExitContradiction {
				return ErrContradiction
			}
			return nil
		},
	}
	detectCommand.Flags().StringArrayVarP(&ruleFiles, "rule-file", "r", nil, "rule file, replaces the built-in rules (repeatable)")
	detectCommand.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	sourceFlags(detectCommand.Flags())
	return detectCommand
}

func queryCommand(a *app) *cobra.Command {
	var (
		source string
		where  []string
	)
	queryCommand := &cobra.Command{
		Use:   "query <family> [sql]",
		Short: "Run a SQL query against the loaded evidence of a family",
		Long: `Run a read-only SQL query against the loaded evidence of a family and
print one JSON object per row. With --source the raw records of a partition
are printed instead, optionally restricted by --where column=pattern. Without
either the loaded partitions are listed.`,
		Example: `  afdetect query timestomp --lnk lnk.jsonld --mft mft.jsonld \
    "SELECT file_name, created0x10, created0x30 FROM mft"
  afdetect query selective-deletion --mft mft.jsonld --usn usn.jsonld --history history.jsonld \
    --source mft --where "file_name=%.indexeddb.%"`,
		Args: cobra.MatchAll(cobra.RangeArgs(1, 2), requireFamily), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			family, _ := correlate.ParseFamily(args[0])
			if err := unexpectedSources(cmd, family); err != nil {
				return err
			}
			if len(args) == 2 && source != "" {
				return errors.New("sql and --source are mutually exclusive")
			}
			if len(where) > 0 && source == "" {
				return errors.New("--where requires --source")
			}
			condition, err := parseWhere(where)
			if err != nil {
				return err
			}

			runner, err := a.runner()
			if err != nil {
				return err
			}
			store, _, err := runner.Load(cmd.Context(), family, inputs(cmd, family))
			if err != nil {
				return err
			}
			defer store.Close() // nolint:errcheck

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			switch {
			case len(args) == 2:
				table, err := store.Query(args[1])
				if err != nil {
					return err
				}
				for _, row := range table.Rows {
					if err := enc.Encode(row); err != nil {
						return err
					}
				}
			case source != "":
				var elements []evidencegraph.JSONElement
				if condition == nil {
					elements, err = store.All(source)
				} else {
					elements, err = store.Select(source, []map[string]string{condition})
				}
				if err != nil {
					return err
				}
				for _, element := range elements {
					buf := &bytes.Buffer{}
					if err := json.Compact(buf, element); err != nil {
						return errors.Wrap(err, "invalid record")
					}
					buf.WriteByte('\n')
					if _, err := out.Write(buf.Bytes()); err != nil {
						return err
					}
				}
			default:
				for _, name := range store.Sources() {
					stats, _ := store.Stats(name)
					if err := enc.Encode(stats); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	sourceFlags(queryCommand.Flags())
	queryCommand.Flags().StringVarP(&source, "source", "s", "", "print the raw records of a loaded partition")
	queryCommand.Flags().StringArrayVar(&where, "where", nil, "restrict --source to records whose column matches a LIKE pattern, as column=pattern")
	return queryCommand
}

// parseWhere turns column=pattern pairs into a single condition.
func parseWhere(where []string) (map[string]string, error) {
	if len(where) == 0 {
		return nil, nil
	}
	condition := map[string]string{}
	for _, w := range where {
		parts := strings.SplitN(w, "=", 2) //nolint:gomnd
		if len(parts) != 2 || parts[0] == "" {
			return nil, errors.Errorf("invalid condition %q, expected column=pattern", w)
		}
		condition[parts[0]] = parts[1]
	}
	return condition, nil
}

func familiesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "families",
		Short: "List the detection families and their sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, family := range correlate.Families {
				def, err := pipeline.Lookup(family)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", family)
				for _, source := range def.Sources {
					required := ""
					if source.Required {
						required = " (required)"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "  --%s -> %s%s\n", flagName(source.Name), source.Output, required)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  rules: %s\n", strings.Join(def.Rules, ", "))
			}
			return nil
		},
	}
}
