package jobs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	ProfilePostgresClient = "postgresql_client"
	ProfileGDALImport     = "gdal_python_import"
)

// Profile carries the batch placement and resource settings shared by every
// job of one kind.
type Profile struct {
	Queue                 string `yaml:"queue"`
	Definition            string `yaml:"definition"`
	VCPUs                 int    `yaml:"vcpus"`
	MemoryMiB             int    `yaml:"memory"`
	RetryAttempts         int    `yaml:"retryAttempts"`
	AttemptTimeoutSeconds int    `yaml:"attemptTimeoutSeconds"`
}

// Profiles maps profile names to their settings.
type Profiles map[string]Profile

// DefaultProfiles returns the compiled-in job profiles.
func DefaultProfiles() Profiles {
	return Profiles{
		ProfilePostgresClient: {
			Queue:                 "aurora_jq",
			Definition:            "postgresql_client_jd",
			VCPUs:                 1,
			MemoryMiB:             1500,
			RetryAttempts:         1,
			AttemptTimeoutSeconds: 7500,
		},
		ProfileGDALImport: {
			Queue:                 "data_lake_jq",
			Definition:            "gdal_python_jd",
			VCPUs:                 1,
			MemoryMiB:             2500,
			RetryAttempts:         1,
			AttemptTimeoutSeconds: 7500,
		},
	}
}

// LoadProfiles returns the default profiles overlaid with the entries of the
// YAML file at path. Fields left at zero in the file keep their default.
func LoadProfiles(path string) (Profiles, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job profiles: %w", err)
	}

	var overrides struct {
		Profiles map[string]Profile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse job profiles %s: %w", path, err)
	}

	for name, o := range overrides.Profiles {
		p := profiles[name]
		if o.Queue != "" {
			p.Queue = o.Queue
		}
		if o.Definition != "" {
			p.Definition = o.Definition
		}
		if o.VCPUs > 0 {
			p.VCPUs = o.VCPUs
		}
		if o.MemoryMiB > 0 {
			p.MemoryMiB = o.MemoryMiB
		}
		if o.RetryAttempts > 0 {
			p.RetryAttempts = o.RetryAttempts
		}
		if o.AttemptTimeoutSeconds > 0 {
			p.AttemptTimeoutSeconds = o.AttemptTimeoutSeconds
		}
		profiles[name] = p
	}
	return profiles, nil
}

func (p Profiles) lookup(name string) (Profile, error) {
	prof, ok := p[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown job profile %q", name)
	}
	if prof.Queue == "" || prof.Definition == "" {
		return Profile{}, fmt.Errorf("job profile %q needs a queue and a definition", name)
	}
	return prof, nil
}
