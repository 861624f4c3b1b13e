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
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/evidencegraph"
	"github.com/forensicanalysis/evidencegraph/correlate"
	et "github.com/forensicanalysis/evidencegraph/internal/evidencetest"
)

const indexedDBFolder = `C:\Users\bob\AppData\Local\Google\Chrome\User Data\Default\IndexedDB`

func write(t *testing.T, fs afero.Fs, name string, nodes ...string) string {
	require.NoError(t, afero.WriteFile(fs, name, []byte(et.Document(nodes...)), 0644))
	return name
}

func newRunner(fs afero.Fs) *Runner {
	return NewRunner(fs, nil, DefaultConfig())
}

func selectiveDeletionInputs(t *testing.T, fs afero.Fs) Inputs {
	return Inputs{
		MFT: write(t, fs, "/raw/mft.jsonld",
			et.Mft{Entry: 10, ParentPath: indexedDBFolder, FileName: "https_www.example.com_0.indexeddb.leveldb"}.JSON(),
			et.Mft{Entry: 11, ParentPath: `C:\Windows`, FileName: "notepad.exe"}.JSON(),
		),
		USN: write(t, fs, "/raw/usn.jsonld",
			et.Usn{FileName: "History", Timestamp: "2024-02-01T10:00:00Z", Reasons: []string{"DataTruncation"}}.JSON(),
			et.Usn{FileName: "notepad.exe", Timestamp: "2024-02-01T10:00:00Z", Reasons: []string{"DataTruncation"}}.JSON(),
		),
		History: write(t, fs, "/raw/history.jsonld",
			et.URL{URL: "https://news.test/"}.JSON(),
		),
	}
}

func TestLookup(t *testing.T) {
	for _, family := range correlate.Families {
		def, err := Lookup(family)
		require.NoError(t, err)
		assert.Equal(t, family, def.Family)
		assert.NotEmpty(t, def.Rules)
	}
	_, err := Lookup("nothing")
	assert.True(t, errors.Is(err, correlate.ErrUnknownFamily))

	assert.Equal(t, []string{LNK, MFT, Office}, Sources(correlate.Timestomp))
}

func TestRunner_Filter(t *testing.T) {
	fs := afero.NewMemMapFs()
	inputs := selectiveDeletionInputs(t, fs)

	summaries, err := newRunner(fs).Filter(context.Background(), correlate.SelectiveDeletion, inputs, "/out")
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, MFT, summaries[0].Source)
	assert.Equal(t, 1, summaries[0].Matched)
	assert.Equal(t, 2, summaries[0].Scanned)
	assert.Equal(t, 50.0, summaries[0].Reduction)
	assert.Equal(t, 1, summaries[1].Matched)
	assert.Equal(t, 1, summaries[2].Matched)

	for _, name := range []string{"mft_indexeddb_filtered.jsonld", "usn_history_filtered.jsonld", "history_all.jsonld"} {
		ok, err := afero.Exists(fs, "/out/"+name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}

	b, err := afero.ReadFile(fs, "/out/"+SummaryFile)
	require.NoError(t, err)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &list))
	require.Len(t, list, 3)
	assert.Equal(t, "mft", list[0]["source"])
	assert.Contains(t, list[0], "output_size")

	// filtering a filtered source changes nothing
	first, err := afero.ReadFile(fs, "/out/mft_indexeddb_filtered.jsonld")
	require.NoError(t, err)
	inputs[MFT] = "/out/mft_indexeddb_filtered.jsonld"
	_, err = newRunner(fs).Filter(context.Background(), correlate.SelectiveDeletion, inputs, "/again")
	require.NoError(t, err)
	second, err := afero.ReadFile(fs, "/again/mft_indexeddb_filtered.jsonld")
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestRunner_InputErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	inputs := selectiveDeletionInputs(t, fs)
	runner := newRunner(fs)

	tests := []struct {
		name   string
		inputs Inputs
		rules  []string
	}{
		{"missing file", Inputs{MFT: "/raw/missing.jsonld", USN: inputs[USN], History: inputs[History]}, nil},
		{"missing source", Inputs{MFT: inputs[MFT], USN: inputs[USN]}, nil},
		{"directory", Inputs{MFT: "/raw", USN: inputs[USN], History: inputs[History]}, nil},
		{"missing rule", inputs, []string{"/rules/missing.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := runner.Detect(context.Background(), correlate.SelectiveDeletion, tt.inputs, tt.rules)
			assert.True(t, errors.Is(err, evidencegraph.ErrInputNotFound), "Detect() error = %v", err)
			assert.Equal(t, ExitError, ExitCode(report, err))

			if tt.rules == nil {
				_, err = runner.Filter(context.Background(), correlate.SelectiveDeletion, tt.inputs, "/out")
				assert.True(t, errors.Is(err, evidencegraph.ErrInputNotFound), "Filter() error = %v", err)
			}
		})
	}

	_, err := runner.Detect(context.Background(), correlate.SelectiveDeletion, Inputs{"registry": "/raw/mft.jsonld"}, nil)
	assert.Error(t, err)
}

func TestRunner_DetectSelectiveDeletion(t *testing.T) {
	fs := afero.NewMemMapFs()
	runner := newRunner(fs)
	_, err := runner.Filter(context.Background(), correlate.SelectiveDeletion, selectiveDeletionInputs(t, fs), "/out")
	require.NoError(t, err)

	inputs, err := runner.ResolveDir(correlate.SelectiveDeletion, "/out")
	require.NoError(t, err)
	assert.Len(t, inputs, 3)

	report, err := runner.Detect(context.Background(), correlate.SelectiveDeletion, inputs, nil)
	require.NoError(t, err)
	require.Len(t, report.Contradictions, 1)
	assert.Equal(t, "www.example.com", report.Contradictions[0].Bindings["domain"])
	assert.Equal(t, ExitContradiction, ExitCode(report, nil))
	assert.Len(t, report.Sources, 3)

	buf := &bytes.Buffer{}
	require.NoError(t, report.WriteText(buf))
	assert.Contains(t, buf.String(), "bindings.domain: www.example.com")
	assert.Contains(t, buf.String(), "Result: contradiction confirmed")

	buf.Reset()
	require.NoError(t, report.WriteJSON(buf))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "selective-deletion", decoded["family"])
}

func TestRunner_DetectSelectiveDeletionFilePath(t *testing.T) {
	historyPath := `C:\Users\bob\AppData\Local\Google\Chrome\User Data\Default\History`
	tests := []struct {
		name string
		mft  et.Mft
		usn  et.Usn
	}{
		{"file path only", et.Mft{Entry: 10, FilePath: indexedDBFolder + `\https_www.example.com_0.indexeddb.leveldb`},
			et.Usn{FileName: "History", Timestamp: "2024-02-01T10:00:00Z", Reasons: []string{"DataTruncation"}}},
		{"file path only journal", et.Mft{Entry: 10, ParentPath: indexedDBFolder, FileName: "https_www.example.com_0.indexeddb.leveldb"},
			et.Usn{FilePath: historyPath, Timestamp: "2024-02-01T10:00:00Z", Reasons: []string{"DataTruncation"}}},
		{"forward slashes", et.Mft{Entry: 10, FilePath: "C:/Users/bob/AppData/Local/Google/Chrome/User Data/Default/IndexedDB/https_www.example.com_0.indexeddb.leveldb"},
			et.Usn{FileName: "History", Timestamp: "2024-02-01T10:00:00Z", Reasons: []string{"DataTruncation"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			inputs := Inputs{
				MFT:     write(t, fs, "/raw/mft.jsonld", tt.mft.JSON()),
				USN:     write(t, fs, "/raw/usn.jsonld", tt.usn.JSON()),
				History: write(t, fs, "/raw/history.jsonld", et.URL{URL: "https://news.test/"}.JSON()),
			}
			runner := newRunner(fs)
			summaries, err := runner.Filter(context.Background(), correlate.SelectiveDeletion, inputs, "/out")
			require.NoError(t, err)
			require.Len(t, summaries, 3)
			assert.Equal(t, 1, summaries[0].Matched)
			assert.Equal(t, 1, summaries[1].Matched)

			inputs, err = runner.ResolveDir(correlate.SelectiveDeletion, "/out")
			require.NoError(t, err)
			report, err := runner.Detect(context.Background(), correlate.SelectiveDeletion, inputs, nil)
			require.NoError(t, err)
			require.Len(t, report.Contradictions, 1)
			assert.Equal(t, "www.example.com", report.Contradictions[0].Bindings["domain"])
			assert.Equal(t, "https_www.example.com_0.indexeddb.leveldb", report.Contradictions[0].Bindings["mft_file"])
			assert.Equal(t, ExitContradiction, ExitCode(report, nil))
		})
	}
}

func TestRunner_DetectSuppressed(t *testing.T) {
	fs := afero.NewMemMapFs()
	config := DefaultConfig()
	config.Suppress = map[string][]string{"selective-deletion": {`bindings.domain == "www.example.com"`}}
	runner := NewRunner(fs, nil, config)

	report, err := runner.Detect(context.Background(), correlate.SelectiveDeletion, selectiveDeletionInputs(t, fs), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Contradictions)
	assert.Equal(t, 1, report.Suppressed)
	assert.Equal(t, ExitNoContradiction, ExitCode(report, nil))
}

func TestRunner_DetectVSSPurge(t *testing.T) {
	fs := afero.NewMemMapFs()
	inputs := Inputs{
		MFT: write(t, fs, "/raw/mft.jsonld", et.Mft{Entry: 11, ParentPath: `C:\Windows`, FileName: "notepad.exe"}.JSON()),
		USN: write(t, fs, "/raw/usn.jsonld", et.Usn{FileName: "notepad.exe", Timestamp: "2024-02-01T10:00:00Z", Reasons: []string{"Close"}}.JSON()),
	}

	report, err := newRunner(fs).Detect(context.Background(), correlate.VSSPurge, inputs, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Contradictions)
	assert.Zero(t, report.Matches)
	assert.Equal(t, ExitNoContradiction, ExitCode(report, nil))
}

func TestRunner_DetectLogClear(t *testing.T) {
	tests := []struct {
		name       string
		clear      et.Event
		truncation string
		want       int
	}{
		{"one second earlier", et.Event{Created: "2024-02-01T10:00:05Z"}, "2024-02-01T10:00:04Z", 1},
		{"simultaneous", et.Event{Created: "2024-02-01T10:00:05Z"}, "2024-02-01T10:00:05Z", 0},
		{"rotation", et.Event{Created: "2024-02-01T10:00:05Z"}, "2024-02-01T12:00:00Z", 0},
		{"event created time only", et.Event{EventCreated: "2024-02-01T10:00:05Z"}, "2024-02-01T10:00:04Z", 1},
		{"event created time rotation", et.Event{EventCreated: "2024-02-01T10:00:05Z"}, "2024-02-01T12:00:00Z", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			event := tt.clear
			event.ID, event.EventID, event.Channel, event.Computer = "kb:clear", 1102, "Security", "WS01"
			inputs := Inputs{
				SecurityLog: write(t, fs, "/raw/security.jsonld",
					event.JSON(),
					et.Event{EventID: 4624, Channel: "Security", Created: "2024-02-01T09:00:00Z"}.JSON(),
				),
				USN: write(t, fs, "/raw/usn.jsonld",
					et.Usn{FileName: "Security.evtx", Timestamp: tt.truncation, Reasons: []string{"DataTruncation"}}.JSON(),
				),
			}
			runner := newRunner(fs)
			summaries, err := runner.Filter(context.Background(), correlate.LogClear, inputs, "/out")
			require.NoError(t, err)
			require.Len(t, summaries, 2)
			assert.Equal(t, 1, summaries[0].Matched)

			inputs, err = runner.ResolveDir(correlate.LogClear, "/out")
			require.NoError(t, err)
			report, err := runner.Detect(context.Background(), correlate.LogClear, inputs, nil)
			require.NoError(t, err)
			assert.Len(t, report.Contradictions, tt.want)
			assert.Len(t, report.Anchors, 1)
			assert.Zero(t, report.Skipped)
			if tt.want > 0 {
				assert.Equal(t, ExitContradiction, ExitCode(report, nil))
			}
		})
	}
}

func TestRunner_DetectTimestomp(t *testing.T) {
	fs := afero.NewMemMapFs()
	inputs := Inputs{
		LNK: write(t, fs, "/raw/lnk.jsonld",
			et.Lnk{FilePath: `C:\Users\bob\Recent\report.lnk`, Target: "4711", TargetCreated: "2023-06-01T00:00:01Z"}.JSON(),
		),
		MFT: write(t, fs, "/raw/mft.jsonld",
			et.Mft{Entry: 4711, ParentPath: `C:\Users\bob\Documents`, FileName: "report.docx", SICreated: "2024-01-01T00:00:00Z", FNCreated: "2023-06-01T00:00:00Z"}.JSON(),
			et.Mft{Entry: 4712, ParentPath: `C:\Users\bob\Documents`, FileName: "other.docx", SICreated: "2024-01-01T00:00:00Z", FNCreated: "2023-06-01T00:00:00Z"}.JSON(),
		),
	}
	runner := newRunner(fs)
	summaries, err := runner.Filter(context.Background(), correlate.Timestomp, inputs, "/out")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, MFT, summaries[1].Source)
	assert.Equal(t, 1, summaries[1].Matched)
	assert.Equal(t, 1, summaries[1].Keys)

	inputs, err = runner.ResolveDir(correlate.Timestomp, "/out")
	require.NoError(t, err)
	report, err := runner.Detect(context.Background(), correlate.Timestomp, inputs, nil)
	require.NoError(t, err)
	require.Len(t, report.Contradictions, 1)
	c := report.Contradictions[0]
	assert.True(t, c.Corroborated)
	assert.Equal(t, "lnk_target_created", c.Witness)
	assert.Equal(t, 5136*time.Hour, c.Delta)

	require.Len(t, report.Patterns, 2)
	assert.True(t, report.Patterns[0].Evaluated)
	assert.False(t, report.Patterns[1].Evaluated)
	assert.Equal(t, []string{Office}, report.Patterns[1].Missing)
}

func TestRunner_EmptyReferenceSet(t *testing.T) {
	fs := afero.NewMemMapFs()
	inputs := Inputs{
		LNK: write(t, fs, "/raw/lnk.jsonld", et.Lnk{FilePath: `C:\a.lnk`, TargetPath: `C:\a.txt`}.JSON()),
		MFT: write(t, fs, "/raw/mft.jsonld", et.Mft{Entry: 1, FileName: "a.txt", SICreated: "2024-01-01T00:00:00Z"}.JSON()),
	}
	_, err := newRunner(fs).Filter(context.Background(), correlate.Timestomp, inputs, "/out")
	assert.True(t, errors.Is(err, evidencegraph.ErrEmptyReferenceSet), "Filter() error = %v", err)
}

func TestRunner_RuleFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	inputs := selectiveDeletionInputs(t, fs)
	require.NoError(t, afero.WriteFile(fs, "/rules/domains.sql", []byte(
		"-- sources: mft\n-- bindings: mft_file\nSELECT fileName AS mft_file FROM mft WHERE parentPath LIKE '%IndexedDB%'\n"), 0644))

	report, err := newRunner(fs).Detect(context.Background(), correlate.SelectiveDeletion, inputs, []string{"/rules/domains.sql"})
	require.NoError(t, err)
	require.Len(t, report.Contradictions, 1)
	assert.Equal(t, "domains", report.Contradictions[0].Pattern)

	config := DefaultConfig()
	config.RulesDir = "/custom"
	_, err = NewRunner(fs, nil, config).Detect(context.Background(), correlate.SelectiveDeletion, inputs, nil)
	assert.True(t, errors.Is(err, evidencegraph.ErrInputNotFound), "Detect() error = %v", err)
}

func TestLoadConfig(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
temporal:
  timestomp_tolerance: 90s
  suppress:
    - pattern == "x"
suppress:
  timestomp:
    - has(bindings.office_file)
`)))

	config, err := LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, config.Temporal.TimestompTolerance)
	assert.Equal(t, 2*time.Second, config.Temporal.WitnessTolerance)

	rules, err := config.Rules(correlate.Timestomp)
	require.NoError(t, err)
	assert.Equal(t, []string{`pattern == "x"`, "has(bindings.office_file)"}, rules.Suppress)
	rules, err = config.Rules(correlate.VSSPurge)
	require.NoError(t, err)
	assert.Equal(t, []string{`pattern == "x"`}, rules.Suppress)
	assert.Equal(t, 90*time.Second, rules.TimestompTolerance)
	assert.Equal(t, []string{`pattern == "x"`}, config.Temporal.Suppress)
}

func TestLoadConfig_ZeroTolerance(t *testing.T) {
	tests := []struct {
		name          string
		config        string
		wantTolerance time.Duration
	}{
		{"empty", "", 60 * time.Second},
		{"zero", "temporal:\n  timestomp_tolerance: 0s\n", 0},
		{"zero seconds", "temporal:\n  timestomp_tolerance: 0\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.SetConfigType("yaml")
			require.NoError(t, v.ReadConfig(strings.NewReader(tt.config)))

			config, err := LoadConfig(v)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTolerance, config.Temporal.TimestompTolerance)
			assert.Equal(t, 2*time.Second, config.Temporal.WitnessTolerance)
		})
	}
}
