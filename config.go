package pascalgt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GroundTruthConfig configures the records written by ToGroundTruth.
type GroundTruthConfig struct {
	// ProjectName is the manifest key of the label data. The metadata is stored under
	// "<ProjectName>-metadata".
	ProjectName string `json:"project_name"`

	// ExternalLocation is prepended to image file names to form the source-ref, e.g.
	// "s3://bucket/images".
	ExternalLocation string `json:"external_location"`

	// JobName defaults to "labeling-job/<ProjectName>".
	JobName string `json:"job_name,omitempty"`
}

const maxConfigFileSize = 1 * 1024 * 1024

// LoadGroundTruthConfig loads a GroundTruthConfig from a JSON file. Unknown fields are rejected.
func LoadGroundTruthConfig(path string) (GroundTruthConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return GroundTruthConfig{}, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return GroundTruthConfig{}, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return GroundTruthConfig{}, fmt.Errorf("config file too large: %d bytes (max %d)",
			fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return GroundTruthConfig{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg GroundTruthConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return GroundTruthConfig{}, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return cfg, nil
}

// Validate checks that the project name and external location are usable.
func (c GroundTruthConfig) Validate() error {
	switch {
	case c.ProjectName == "":
		return fmt.Errorf("missing project name")
	case c.ProjectName == sourceRefKey || strings.HasSuffix(c.ProjectName, metadataKeySuffix):
		return fmt.Errorf("invalid project name %q", c.ProjectName)
	case c.ExternalLocation == "":
		return fmt.Errorf("missing external location")
	}
	return nil
}

func (c GroundTruthConfig) jobName() string {
	if c.JobName != "" {
		return c.JobName
	}
	return "labeling-job/" + c.ProjectName
}
