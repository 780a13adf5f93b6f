package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags clears sticky flag state left by a previous invocation.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd is a helper to execute the root command with args and capture stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfg = nil
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCmd(t, args...)
	require.NoError(t, err, "command %v", args)
	return out
}

// exportDir writes a small export with steps and heart rate only.
func exportDir(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, "export")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	files := map[string]string{
		"StepCount.csv": "sourceName,startDate,endDate,value\n" +
			"phone,2024-01-01 08:00:00 +0100,2024-01-01 08:10:00 +0100,1000\n" +
			"phone,2024-01-02 08:00:00 +0100,2024-01-02 08:10:00 +0100,3000\n" +
			"watch,2024-01-02 09:00:00 +0100,2024-01-02 09:05:00 +0100,500\n",
		"HeartRate.csv": "sourceName,startDate,endDate,value\n" +
			"watch,2024-01-01 08:00:00 +0100,2024-01-01 08:00:00 +0100,60\n" +
			"watch,2024-01-02 08:00:00 +0100,2024-01-02 08:00:00 +0100,80\n",
		"notes.txt": "ignored",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestCLI_DatasetsAndOverview(t *testing.T) {
	dir := exportDir(t)
	out := mustRun(t, "datasets", "-d", dir)
	assert.Contains(t, out, "[DATASETS]")
	assert.Contains(t, out, "| StepCount |")
	assert.Contains(t, out, "| HeartRate |")

	out = mustRun(t, "overview", "-d", dir)
	assert.Contains(t, out, "- Average heart rate: 70.00 bpm")
	assert.Contains(t, out, "- Average sleep: unavailable")
}

func TestCLI_AggregateFormats(t *testing.T) {
	dir := exportDir(t)
	out := mustRun(t, "aggregate", "StepCount", "--by", "dow", "-d", dir)
	assert.Contains(t, out, "[STEPCOUNT BY DOW]")
	assert.Contains(t, out, "| Monday | 1000.00 | 1 |")
	assert.Contains(t, out, "| Tuesday | 3500.00 | 2 |")
	assert.Contains(t, out, "| Sunday | - | 0 |")

	out = mustRun(t, "aggregate", "StepCount", "--source", "watch", "-f", "json", "-d", dir)
	var got struct {
		GroupKey string `json:"group_key"`
		Buckets  []struct {
			Key   string  `json:"key"`
			Value float64 `json:"value"`
		} `json:"buckets"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, "date", got.GroupKey)
	require.Len(t, got.Buckets, 1)
	assert.Equal(t, 500.0, got.Buckets[0].Value)

	_, err := runCmd(t, "aggregate", "StepCount", "--by", "fortnight", "-d", dir)
	assert.Error(t, err)
	_, err = runCmd(t, "aggregate", "StepCount", "--since", "a week", "-d", dir)
	assert.Error(t, err)
}

func TestCLI_UnavailableIsNotFatal(t *testing.T) {
	dir := exportDir(t)
	out := mustRun(t, "sleep", "-d", dir)
	assert.Contains(t, out, "[SLEEP]\nUnavailable:")

	out = mustRun(t, "bmi", "-d", dir, "--height", "180")
	assert.Contains(t, out, "Unavailable:")
	assert.Contains(t, out, "BodyMass")

	out = mustRun(t, "aggregate", "VO2Max", "-d", dir)
	assert.Contains(t, out, "Unavailable:")
}

func TestCLI_Correlate(t *testing.T) {
	dir := exportDir(t)
	out := mustRun(t, "correlate", "StepCount", "HeartRate", "-d", dir)
	assert.Contains(t, out, "[CORRELATION]")
	assert.Contains(t, out, "StepCount ~ HeartRate: r=1.000 (n=2)")

	_, err := runCmd(t, "correlate", "StepCount", "-d", dir)
	assert.Error(t, err)
}

func TestCLI_NoDataPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := runCmd(t, "overview")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--data")
}

func TestCLI_ExportWritesDatabase(t *testing.T) {
	dir := exportDir(t)
	db := filepath.Join(t.TempDir(), "out", "health.sqlite")
	out := mustRun(t, "export", "--db", db, "-f", "json", "-d", dir)
	var sum struct {
		RunID       string `json:"run_id"`
		Aggregates  int    `json:"aggregates"`
		Unavailable int    `json:"unavailable"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &sum), out)
	assert.NotEmpty(t, sum.RunID)
	assert.Positive(t, sum.Aggregates)
	assert.Positive(t, sum.Unavailable)
	_, err := os.Stat(db)
	assert.NoError(t, err)
}

func TestCLI_OutFileAndPanels(t *testing.T) {
	dir := exportDir(t)
	target := filepath.Join(t.TempDir(), "reports", "panels.md")
	out := mustRun(t, "panels", "-d", dir, "-o", target)
	assert.Empty(t, out)
	b, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(b), "## Activity")
	assert.Contains(t, string(b), "[STEPCOUNT BY DATE]")
	assert.Contains(t, string(b), "[SLEEP]\nUnavailable:")

	out = mustRun(t, "panels", "--id", "steps-by-weekday", "-d", dir)
	assert.Contains(t, out, "[STEPCOUNT BY DOW]")
	assert.NotContains(t, out, "[STEPCOUNT BY DATE]")

	_, err = runCmd(t, "panels", "--id", "nope", "-d", dir)
	assert.Error(t, err)
}

func TestCLI_ConfigSetShow(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	mustRun(t, "config", "set", "height_cm", "182")
	mustRun(t, "config", "set", "canonical_sources", "StepCount=My iPhone, My Watch")
	out := mustRun(t, "config", "show")
	assert.Contains(t, out, "height_cm: 182")
	assert.Contains(t, out, "stepcount: My iPhone, My Watch")

	_, err := runCmd(t, "config", "set", "output_format", "html")
	assert.Error(t, err)
	_, err = runCmd(t, "config", "set", "nope", "1")
	assert.Error(t, err)

	out = mustRun(t, "config", "path")
	assert.Contains(t, out, filepath.Join(".healthloom", "config.yaml"))
}
