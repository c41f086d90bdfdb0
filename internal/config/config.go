// Package config holds the command-line configuration of ptafilter and its
// optional YAML file form.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Flag names. The YAML keys of a config file use the same spelling.
const (
	FlagOptLevel  = "opt-level"
	FlagWorkers   = "workers"
	FlagJSON      = "json"
	FlagBuildTags = "build-tags"
	FlagUnsafePkg = "unsafe-pkg"
	FlagVerbose   = "verbose"
	FlagProfile   = "profile"
	FlagConfig    = "config"
	FlagVerify    = "verify"
)

// DefaultOptLevel enables the pass.
const DefaultOptLevel = 1

// Config holds all command-line configuration options.
type Config struct {
	Inputs     []string // mirfiles or Go package patterns
	OptLevel   int      // the pass runs above ptafilter.MinOptLevel
	Workers    int      // parallel workers; zero means NumCPU
	JSON       bool     // enables JSON output format
	BuildTags  []string // build tags to use during package loading
	UnsafePkg  bool     // scopes that use package unsafe are unsafe
	Verbose    bool     // enables logging and statistics
	Profile    bool     // enables CPU and memory profiling
	ConfigFile string   // optional YAML file merged under the flags
	Verify     bool     // callsites: decode every handle
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{OptLevel: DefaultOptLevel}
}

// File is the content of a config file. Absent keys stay nil and leave the
// corresponding setting alone.
type File struct {
	OptLevel  *int     `yaml:"opt-level"`
	Workers   *int     `yaml:"workers"`
	JSON      *bool    `yaml:"json"`
	BuildTags []string `yaml:"build-tags"`
	UnsafePkg *bool    `yaml:"unsafe-pkg"`
	Verbose   *bool    `yaml:"verbose"`
}

// ErrInvalid is wrapped by errors for values no flag would accept.
var ErrInvalid = errors.New("invalid config")

// Load reads a config file.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	f, err := Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return f, nil
}

// Decode parses a config file. Unknown keys are errors.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if f.Workers != nil && *f.Workers < 0 {
		return nil, fmt.Errorf("%w: workers %d is negative", ErrInvalid, *f.Workers)
	}
	return &f, nil
}

// Apply copies every value of f into c whose flag was not set explicitly.
// changed reports whether a flag was given on the command line.
func (f *File) Apply(c *Config, changed func(flag string) bool) {
	if f == nil {
		return
	}
	if f.OptLevel != nil && !changed(FlagOptLevel) {
		c.OptLevel = *f.OptLevel
	}
	if f.Workers != nil && !changed(FlagWorkers) {
		c.Workers = *f.Workers
	}
	if f.JSON != nil && !changed(FlagJSON) {
		c.JSON = *f.JSON
	}
	if f.BuildTags != nil && !changed(FlagBuildTags) {
		c.BuildTags = f.BuildTags
	}
	if f.UnsafePkg != nil && !changed(FlagUnsafePkg) {
		c.UnsafePkg = *f.UnsafePkg
	}
	if f.Verbose != nil && !changed(FlagVerbose) {
		c.Verbose = *f.Verbose
	}
}
