// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/downlink/lib/fnpattern"
	"github.com/bureau-foundation/downlink/lib/reffile"
	"github.com/bureau-foundation/downlink/lib/retention"
	"github.com/bureau-foundation/downlink/lib/timeslot"
	"github.com/bureau-foundation/downlink/lib/unpack"
)

// DefaultQueueDepth is the per-target backlog of landed files waiting
// for the worker.
const DefaultQueueDepth = 64

// Config is the landing pipeline configuration.
type Config struct {
	// Ledger is the SQLite database recording landed files. Empty
	// disables the ledger.
	Ledger string `yaml:"ledger" json:"ledger"`

	// LedgerRetention bounds how long ledger entries are kept, as a Go
	// duration ("720h"). Empty keeps entries forever.
	LedgerRetention string `yaml:"ledger_retention" json:"ledger_retention"`

	// QueueDepth is the per-target queue capacity.
	QueueDepth int `yaml:"queue_depth" json:"queue_depth"`

	Targets []Target `yaml:"targets" json:"targets"`
}

// Target is one watched landing directory and what to do with the
// files arriving in it.
type Target struct {
	// Name identifies the target in logs, the ledger and the CLI.
	Name string `yaml:"name" json:"name"`

	// Watch is the directory files land in.
	Watch string `yaml:"watch" json:"watch"`

	// Origin is the filename pattern landed names must match. Fields
	// it extracts feed Align, Destination and Reference.Path. Empty
	// accepts every name and extracts nothing.
	Origin string `yaml:"origin" json:"origin"`

	// Compression names the unpack strategy: none, bzip2, xrit, gzip,
	// zstd or lz4.
	Compression string `yaml:"compression" json:"compression"`

	// Program overrides the xrit decompression tool.
	Program string `yaml:"program" json:"program"`

	// Delete removes the landed file after a successful unpack when
	// truthy (1, yes, true, on).
	Delete string `yaml:"delete" json:"delete"`

	// Destination is the output directory pattern, composed from the
	// aligned metadata.
	Destination string `yaml:"destination" json:"destination"`

	// Align is a single-field alignment template such as
	// "{time:%Y%m%d%H%M|align(15)}".
	Align string `yaml:"align" json:"align"`

	Reference *ReferenceConfig `yaml:"reference,omitempty" json:"reference,omitempty"`
	Retention *RetentionConfig `yaml:"retention,omitempty" json:"retention,omitempty"`
}

// ReferenceConfig enables reference files for a target.
type ReferenceConfig struct {
	// Path is the reference file pattern, composed like Destination.
	Path string `yaml:"path" json:"path"`

	// Filter is written to the reference file's filter line. Empty
	// or "*" means ".*".
	Filter string `yaml:"filter" json:"filter"`

	// Rule restricts which completion markers generate: "*" (the
	// default) allows every marker, anything else must be a
	// substring of the name.
	Rule string `yaml:"rule" json:"rule"`

	// Marker is the completion token. Default "-EPI".
	Marker string `yaml:"marker" json:"marker"`
}

// RetentionConfig enables periodic purging for a target.
type RetentionConfig struct {
	// Base holds the dated subdirectories.
	Base string `yaml:"base" json:"base"`

	// Limit is the number of subdirectories kept.
	Limit int `yaml:"limit" json:"limit"`

	// Interval ("10m") and Schedule ("0 * * * *") are mutually
	// exclusive.
	Interval string `yaml:"interval" json:"interval"`
	Schedule string `yaml:"schedule" json:"schedule"`
}

// Default returns the default configuration. Fields the file sets
// replace these.
func Default() *Config {
	return &Config{
		Ledger:     "${DOWNLINK_STATE:-/var/lib/downlink}/ledger.db",
		QueueDepth: DefaultQueueDepth,
	}
}

// Load loads configuration from the DOWNLINK_CONFIG environment
// variable. There is no fallback when it is unset.
func Load() (*Config, error) {
	configPath := os.Getenv("DOWNLINK_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("DOWNLINK_CONFIG environment variable not set; " +
			"set it to the path of your downlink.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path, applies defaults and expands
// variables. It does not validate.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	cfg.applyTargetDefaults()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		return decoder.Decode(c)
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	}
}

func (c *Config) applyTargetDefaults() {
	if c.QueueDepth <= 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	for index := range c.Targets {
		target := &c.Targets[index]
		if target.Reference != nil {
			if target.Reference.Rule == "" {
				target.Reference.Rule = "*"
			}
			if target.Reference.Marker == "" {
				target.Reference.Marker = reffile.DefaultMarker
			}
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Ledger = expandVars(c.Ledger, vars)
	for index := range c.Targets {
		target := &c.Targets[index]
		target.Watch = expandVars(target.Watch, vars)
		target.Program = expandVars(target.Program, vars)
		target.Destination = expandVars(target.Destination, vars)
		if target.Reference != nil {
			target.Reference.Path = expandVars(target.Reference.Path, vars)
		}
		if target.Retention != nil {
			target.Retention.Base = expandVars(target.Retention.Base, vars)
		}
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.LedgerRetention != "" {
		if d, err := time.ParseDuration(c.LedgerRetention); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("ledger_retention %q must be a positive duration", c.LedgerRetention))
		}
	}
	if len(c.Targets) == 0 {
		errs = append(errs, errors.New("at least one target is required"))
	}

	names := make(map[string]bool)
	for index, target := range c.Targets {
		label := fmt.Sprintf("targets[%d]", index)
		if target.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", label))
		} else {
			if names[target.Name] {
				errs = append(errs, fmt.Errorf("%s.name %q is used more than once", label, target.Name))
			}
			names[target.Name] = true
			label = fmt.Sprintf("target %q", target.Name)
		}
		errs = append(errs, target.validate(label)...)
	}

	return errors.Join(errs...)
}

func (t *Target) validate(label string) []error {
	var errs []error

	if t.Watch == "" {
		errs = append(errs, fmt.Errorf("%s: watch is required", label))
	}

	compression, err := unpack.ParseCompression(t.Compression)
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", label, err))
	}
	if compression != unpack.CompressionNone && t.Destination == "" {
		errs = append(errs, fmt.Errorf("%s: destination is required with compression %s", label, compression))
	}

	if t.Origin != "" {
		if _, err := fnpattern.Compile(t.Origin); err != nil {
			errs = append(errs, fmt.Errorf("%s: origin: %w", label, err))
		}
	}
	if t.Destination != "" {
		if _, err := fnpattern.Compile(t.Destination); err != nil {
			errs = append(errs, fmt.Errorf("%s: destination: %w", label, err))
		}
	}

	if t.Align != "" {
		pattern, ok := timeslot.ParsePattern(t.Align)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("%s: align %q is not a {key|align(...)} template", label, t.Align))
		case pattern.Transform != "":
			if _, err := timeslot.ParseAlign(pattern.Transform); err != nil {
				errs = append(errs, fmt.Errorf("%s: align: %w", label, err))
			}
		}
	}

	if t.Reference != nil {
		if t.Reference.Path == "" {
			errs = append(errs, fmt.Errorf("%s: reference.path is required", label))
		} else if _, err := fnpattern.Compile(t.Reference.Path); err != nil {
			errs = append(errs, fmt.Errorf("%s: reference.path: %w", label, err))
		}
	}

	if t.Retention != nil {
		if t.Retention.Base == "" {
			errs = append(errs, fmt.Errorf("%s: retention.base is required", label))
		}
		if t.Retention.Limit < 0 {
			errs = append(errs, fmt.Errorf("%s: retention.limit must not be negative", label))
		}
		if _, err := t.Retention.PurgeSchedule(); err != nil {
			errs = append(errs, fmt.Errorf("%s: retention: %w", label, err))
		}
	}

	return errs
}

// PurgeSchedule returns the schedule named by Interval or Schedule.
func (r *RetentionConfig) PurgeSchedule() (retention.Schedule, error) {
	switch {
	case r.Interval != "" && r.Schedule != "":
		return retention.Schedule{}, errors.New("interval and schedule are mutually exclusive")
	case r.Interval != "":
		interval, err := time.ParseDuration(r.Interval)
		if err != nil {
			return retention.Schedule{}, fmt.Errorf("interval: %w", err)
		}
		return retention.Every(interval)
	case r.Schedule != "":
		return retention.Cron(r.Schedule)
	default:
		return retention.Schedule{}, errors.New("one of interval or schedule is required")
	}
}

// LedgerMaxAge returns the parsed LedgerRetention, or zero when
// entries are kept forever.
func (c *Config) LedgerMaxAge() time.Duration {
	d, err := time.ParseDuration(c.LedgerRetention)
	if err != nil {
		return 0
	}
	return d
}

// Target returns the target called name.
func (c *Config) Target(name string) (*Target, error) {
	for index := range c.Targets {
		if c.Targets[index].Name == name {
			return &c.Targets[index], nil
		}
	}
	return nil, fmt.Errorf("no target named %q", name)
}

// EnsurePaths creates the watch directories and the ledger's parent
// directory.
func (c *Config) EnsurePaths() error {
	var paths []string
	if c.Ledger != "" {
		paths = append(paths, filepath.Dir(c.Ledger))
	}
	for _, target := range c.Targets {
		paths = append(paths, target.Watch)
		if target.Retention != nil {
			paths = append(paths, target.Retention.Base)
		}
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
