package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// JobSpec describes one job entry of the jobs file.
type JobSpec struct {
	Name     string        `yaml:"name"`
	Interval time.Duration `yaml:"interval"`
	Kind     string        `yaml:"kind"`
	URL      string        `yaml:"url,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// JobsFile is the top-level document of the jobs file.
type JobsFile struct {
	Jobs []JobSpec `yaml:"jobs"`
}

// LoadJobs reads and validates the jobs file at path.
func LoadJobs(path string) ([]JobSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs file: %w", err)
	}
	return ParseJobs(data)
}

// ParseJobs decodes a jobs document. Interval and timeout use Go duration
// syntax ("1s", "5m").
func ParseJobs(data []byte) ([]JobSpec, error) {
	var file JobsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &ConfigurationError{Field: "jobs file", Err: err}
	}

	seen := make(map[string]bool, len(file.Jobs))
	for i, spec := range file.Jobs {
		if spec.Name == "" {
			return nil, &ConfigurationError{Field: fmt.Sprintf("jobs[%d].name", i), Err: errors.New("must not be empty")}
		}
		if seen[spec.Name] {
			return nil, &ConfigurationError{Field: fmt.Sprintf("jobs[%d].name", i), Err: fmt.Errorf("duplicate job %q", spec.Name)}
		}
		seen[spec.Name] = true
		if spec.Interval <= 0 {
			return nil, &ConfigurationError{Field: fmt.Sprintf("jobs[%d].interval", i), Err: fmt.Errorf("must be positive for job %q", spec.Name)}
		}
	}

	return file.Jobs, nil
}
