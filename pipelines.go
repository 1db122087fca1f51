package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

// Configuration error classes. Callers match them with errors.Is.
var (
	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigMalformed indicates the configuration file is not valid JSON.
	ErrConfigMalformed = errors.New("config file is not valid JSON")

	// ErrConfigIncomplete indicates the remote_config section is missing.
	ErrConfigIncomplete = errors.New("config file missing remote_config section")

	// ErrPipelineNotFound indicates the requested pipeline is not configured.
	ErrPipelineNotFound = errors.New("pipeline not found in config")

	// ErrPipelineInvalid indicates a pipeline entry is missing required fields.
	ErrPipelineInvalid = errors.New("invalid pipeline configuration")
)

// RemoteConfig identifies the remote host and user.
type RemoteConfig struct {
	Host string `json:"host"`
	User string `json:"user"`
}

// RemotePaths holds the remote directories a pipeline operates on.
type RemotePaths struct {
	InputDir  string `json:"input_dir"`
	OutputDir string `json:"output_dir"`
	Database  string `json:"database"`
}

// Pipeline is one configured remote job: a command template plus the
// remote paths interpolated into it.
type Pipeline struct {
	RemotePaths *RemotePaths `json:"remote_paths"`
	Command     string       `json:"pipeline_command"`
}

// PipelineFile is the parsed configuration document: one remote_config
// section and one entry per pipeline name. Loaded once per run and
// immutable thereafter.
type PipelineFile struct {
	Remote    RemoteConfig
	Pipelines map[string]Pipeline
}

// LoadPipelineFile reads and parses the JSON configuration at path.
func LoadPipelineFile(path string) (*PipelineFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigMalformed, path, err)
	}

	rawRemote, ok := raw["remote_config"]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConfigIncomplete, path)
	}

	file := &PipelineFile{Pipelines: make(map[string]Pipeline, len(raw)-1)}
	if err := json.Unmarshal(rawRemote, &file.Remote); err != nil {
		return nil, fmt.Errorf("%w: remote_config: %v", ErrConfigMalformed, err)
	}

	for name, msg := range raw {
		if name == "remote_config" {
			continue
		}
		var p Pipeline
		if err := json.Unmarshal(msg, &p); err != nil {
			return nil, fmt.Errorf("%w: pipeline %q: %v", ErrConfigMalformed, name, err)
		}
		file.Pipelines[name] = p
	}

	return file, nil
}

// Pipeline returns the named pipeline, validating that it defines both
// remote_paths and pipeline_command.
func (f *PipelineFile) Pipeline(name string) (Pipeline, error) {
	p, ok := f.Pipelines[name]
	if !ok {
		return Pipeline{}, fmt.Errorf("%w: %q", ErrPipelineNotFound, name)
	}
	if p.RemotePaths == nil || p.Command == "" {
		return Pipeline{}, fmt.Errorf("%w: %q must define remote_paths and pipeline_command", ErrPipelineInvalid, name)
	}
	return p, nil
}

var placeholderPattern = regexp.MustCompile(`\{([^{}]*)\}`)

// FormatCommand substitutes the {input_dir}, {output_dir} and {database}
// placeholders in a pipeline command template. Any other placeholder is an
// error.
func FormatCommand(template string, paths RemotePaths) (string, error) {
	var unknown string
	out := placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		switch strings.Trim(m, "{}") {
		case "input_dir":
			return paths.InputDir
		case "output_dir":
			return paths.OutputDir
		case "database":
			return paths.Database
		}
		if unknown == "" {
			unknown = m
		}
		return m
	})
	if unknown != "" {
		return "", fmt.Errorf("unknown placeholder %s in pipeline command", unknown)
	}
	return out, nil
}
