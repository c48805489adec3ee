package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/infrastructure/artifact"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/infrastructure/tabular"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/pipeline"
)

func writeFixtures(t *testing.T, dir string) (alignment, reference string) {
	t.Helper()

	alignment = filepath.Join(dir, "alignment.csv")
	require.NoError(t, tabular.WriteFile(alignment,
		[]string{"PROVIDER_FIRST_NAME", "PROVIDER_LAST_NAME", "NPI", "Practice Name", "Practice NPI"},
		[][]string{
			{"Amardeep", "Majhail", "", "City General Hospital", ""},
			{"Jane", "Doe", "1333333333", "Valley Medical Grp", "1444444444"},
		}))

	reference = filepath.Join(dir, "complete.csv")
	require.NoError(t, tabular.WriteFile(reference,
		[]string{"npi", "record_type", "organization_name", "first_name", "last_name", "state", "primary_hospital"},
		[][]string{
			{"1043325483", "provider", "", "Amardeep", "Majhail", "CA", "City General Hospital, Inc."},
			{"1568131365", "organization", "City General Hospital", "", "", "CA", ""},
			{"1333333333", "provider", "", "Jane", "Doe", "NY", "Valley Medical Group"},
			{"1444444444", "organization", "Valley Medical Group", "", "", "NY", ""},
		}))
	return alignment, reference
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	root := newApp().rootCommand()
	root.SetArgs(append([]string{"--log-format", "json", "--log-level", "warn"}, args...))
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRunCommand_Offline(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	alignment, reference := writeFixtures(t, dir)
	outDir := filepath.Join(dir, "out")

	stdout, err := execute(t, "run",
		"--out-dir", outDir,
		"--registry-reference", reference,
		"--alignment", alignment,
		"--reference", reference)
	require.NoError(t, err)

	store := artifact.NewStore(outDir)
	for _, stage := range []string{
		pipeline.StageNormalize, pipeline.StageEnhance, pipeline.StageMatch,
		pipeline.StageCoverage, pipeline.StageValidate,
	} {
		t.Run(stage, func(t *testing.T) {
			runDir, err := store.Latest(stage)
			require.NoError(t, err)
			assert.FileExists(t, filepath.Join(runDir, artifact.ManifestFile))
			assert.Contains(t, stdout, stage+" output: "+runDir)
		})
	}
}

func TestValidateCommand_UsesLatestMatch(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	alignment, reference := writeFixtures(t, dir)
	outDir := filepath.Join(dir, "out")

	_, err := execute(t, "match", "--out-dir", outDir, "--targets", alignment, "--candidates", reference)
	require.NoError(t, err)

	stdout, err := execute(t, "validate", "--out-dir", outDir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "validate output:")

	runDir, err := artifact.NewStore(outDir).Latest(pipeline.StageValidate)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(runDir, pipeline.FileValidation))
}

func TestCommands_Errors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	outDir := filepath.Join(dir, "out")

	tests := []struct {
		name string
		args []string
	}{
		{"missing required flag", []string{"normalize", "--out-dir", outDir}},
		{"no previous stage output", []string{"validate", "--out-dir", outDir}},
		{"missing input file", []string{"normalize", "--out-dir", outDir, "--input", filepath.Join(dir, "absent.csv")}},
		{"threshold out of range", []string{"match", "--out-dir", outDir, "--candidates", "x.csv", "--threshold", "150"}},
		{"bad log level", []string{"normalize", "--out-dir", outDir, "--input", "x.csv", "--log-level", "loud"}},
		{"missing config file", []string{"normalize", "--config", filepath.Join(dir, "absent.yaml"), "--input", "x.csv"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}

	_, statErr := os.Stat(filepath.Join(outDir, pipeline.StageValidate))
	assert.True(t, os.IsNotExist(statErr))
}
