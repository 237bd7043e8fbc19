// Package config loads the optional pgquerier.yaml project manifest. The
// manifest carries the same settings as the generate command's flags; flags
// and PG* environment variables take precedence, the manifest fills in
// whatever they left unset.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the manifest looked up in the working directory when
// --config is not given.
const DefaultFileName = "pgquerier.yaml"

// Connection mirrors the connection flags of the generate command.
type Connection struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Config is the parsed project manifest.
type Config struct {
	Queries     string     `yaml:"queries"`
	Out         string     `yaml:"out"`
	Package     string     `yaml:"package"`
	SchemaFiles []string   `yaml:"schema_files"`
	Concurrency int        `yaml:"concurrency"`
	Connection  Connection `yaml:"connection"`
}

// Load reads and parses a manifest file. Unknown keys are rejected so a
// typoed setting fails loudly instead of being silently ignored.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault loads pgquerier.yaml from the working directory when it
// exists. A missing file is not an error; the manifest is optional.
func LoadDefault() (*Config, error) {
	cfg, err := Load(DefaultFileName)
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	return cfg, err
}

// Parse decodes manifest bytes.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &Config{}, nil
		}
		return nil, err
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency must not be negative, got %d", cfg.Concurrency)
	}
	return &cfg, nil
}
