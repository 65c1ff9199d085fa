package pascalgt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGroundTruthConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "project.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "project_name": "sample-job-clone",
  "external_location": "s3://bucket/images"
}`), 0644))

	cfg, err := LoadGroundTruthConfig(path)
	require.NoError(t, err)
	assert.Equal(t, GroundTruthConfig{
		ProjectName:      "sample-job-clone",
		ExternalLocation: "s3://bucket/images",
	}, cfg)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "labeling-job/sample-job-clone", cfg.jobName())
}

func TestLoadGroundTruthConfig_Invalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("project_name: x"), 0644))
	_, err := LoadGroundTruthConfig(yamlPath)
	assert.Error(t, err)

	_, err = LoadGroundTruthConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	unknown := filepath.Join(dir, "unknown.json")
	require.NoError(t, os.WriteFile(unknown, []byte(`{"project": "x"}`), 0644))
	_, err = LoadGroundTruthConfig(unknown)
	assert.Error(t, err)

	large := filepath.Join(dir, "large.json")
	require.NoError(t, os.WriteFile(large, make([]byte, maxConfigFileSize+1), 0644))
	_, err = LoadGroundTruthConfig(large)
	assert.Error(t, err)
}

func TestGroundTruthConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cfg   GroundTruthConfig
		valid bool
	}{
		{"ok", GroundTruthConfig{ProjectName: "p", ExternalLocation: "s3://b"}, true},
		{"no project", GroundTruthConfig{ExternalLocation: "s3://b"}, false},
		{"source-ref project", GroundTruthConfig{ProjectName: "source-ref", ExternalLocation: "s3://b"}, false},
		{"metadata project", GroundTruthConfig{ProjectName: "p-metadata", ExternalLocation: "s3://b"}, false},
		{"no location", GroundTruthConfig{ProjectName: "p"}, false},
	}
	for _, tt := range tests {
		err := tt.cfg.Validate()
		if tt.valid {
			assert.NoError(t, err, tt.name)
		} else {
			assert.Error(t, err, tt.name)
		}
	}
}
