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
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/forensicanalysis/evidencegraph"
	"github.com/forensicanalysis/evidencegraph/correlate"
	"github.com/forensicanalysis/evidencegraph/pipeline"
)

// ErrContradiction is returned by the detect command if tampering was
// confirmed.
var ErrContradiction = errors.New("contradiction confirmed")

// ExitCode maps the error of a command to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return pipeline.ExitNoContradiction
	case errors.Is(err, ErrContradiction):
		return pipeline.ExitContradiction
	default:
		return pipeline.ExitError
	}
}

const sourceAnnotation = "source"

type app struct {
	fs         afero.Fs
	v          *viper.Viper
	configFile string
	verbose    bool
}

// Root is the afdetect command with all subcommands.
func Root() *cobra.Command {
	return newRoot(afero.NewOsFs())
}

func newRoot(fs afero.Fs) *cobra.Command {
	a := &app{fs: fs, v: viper.New()}
	a.v.SetFs(fs)
	rootCommand := &cobra.Command{
		Use:   "afdetect",
		Short: "Detect anti-forensic tampering in forensic evidence",
		Long: `afdetect reduces large evidence sources to the records relevant for a
detection family and correlates them to find contradictions left by
anti-forensic tools.

Exit codes: 0 no contradiction, 1 error, 2 contradiction confirmed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
	}

	flags := rootCommand.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default is ./afdetect.yaml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	defaults := pipeline.DefaultConfig().Temporal
	flags.Duration("timestomp-tolerance", defaults.TimestompTolerance, "largest benign $SI/$FN divergence, 0 is strict")
	flags.Duration("witness-tolerance", defaults.WitnessTolerance, "largest witness distance to $FN")
	flags.Bool("allow-simultaneous-truncation", false, "confirm truncations at the time of the clear event")
	flags.String("rules-dir", "", "directory with rule files replacing the built-in rules")
	for key, flag := range map[string]string{
		"temporal.timestomp_tolerance":           "timestomp-tolerance",
		"temporal.witness_tolerance":             "witness-tolerance",
		"temporal.allow_simultaneous_truncation": "allow-simultaneous-truncation",
		"rules_dir":                              "rules-dir",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCommand.AddCommand(filterCommand(a), detectCommand(a), queryCommand(a), familiesCommand())
	return rootCommand
}

func (a *app) initConfig() error {
	if a.configFile != "" {
		a.v.SetConfigFile(a.configFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("afdetect")
		a.v.SetConfigType("yaml")
	}
	a.v.SetEnvPrefix("AFDETECT")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.configFile != "" || !errors.As(err, &notFound) {
			return errors.Wrap(err, "could not read config")
		}
	}
	return nil
}

func (a *app) runner() (*pipeline.Runner, error) {
	config, err := pipeline.LoadConfig(a.v)
	if err != nil {
		return nil, err
	}
	log := zap.NewNop()
	if a.verbose {
		if log, err = zap.NewDevelopment(); err != nil {
			return nil, err
		}
	}
	return pipeline.NewRunner(a.fs, log, config), nil
}

// sourceFlags adds one path flag per evidence source, e.g. --security-log.
func sourceFlags(flags *pflag.FlagSet) {
	seen := map[string]bool{}
	for _, family := range correlate.Families {
		for _, source := range pipeline.Sources(family) {
			if seen[source] {
				continue
			}
			seen[source] = true
			flags.String(flagName(source), "", fmt.Sprintf("%s evidence file", source))
			_ = flags.SetAnnotation(flagName(source), sourceAnnotation, []string{source})
		}
	}
}

func flagName(source string) string {
	return strings.ReplaceAll(source, "_", "-")
}

// inputs collects the source flags that are set for a family.
func inputs(cmd *cobra.Command, family correlate.Family) pipeline.Inputs {
	in := pipeline.Inputs{}
	for _, source := range pipeline.Sources(family) {
		if p, _ := cmd.Flags().GetString(flagName(source)); p != "" {
			in[source] = p
		}
	}
	return in
}

// unexpectedSources fails on set source flags the family does not read.
func unexpectedSources(cmd *cobra.Command, family correlate.Family) error {
	known := map[string]bool{}
	for _, source := range pipeline.Sources(family) {
		known[flagName(source)] = true
	}
	var unknown []string
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if f.Annotations[sourceAnnotation] != nil && !known[f.Name] {
			unknown = append(unknown, "--"+f.Name)
		}
	})
	if len(unknown) > 0 {
		return errors.Errorf("%s does not read %s", family, strings.Join(unknown, ", "))
	}
	return nil
}

func requireFamily(_ *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("requires a detection family")
	}
	_, err := correlate.ParseFamily(args[0])
	return err
}

func requireDir(fs afero.Fs, dir string) error {
	if ok, err := afero.DirExists(fs, dir); err != nil || !ok {
		return errors.Wrap(evidencegraph.ErrInputNotFound, dir)
	}
	return nil
}
