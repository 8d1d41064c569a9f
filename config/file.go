package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"simcheck/explorer"
	"simcheck/reduction"
)

// File is the YAML form of the options. Unset fields keep their default.
type File struct {
	Reduction          string  `yaml:"reduction"`
	Explorer           string  `yaml:"explorer"`
	MaxDepth           *int    `yaml:"max_depth"`
	Threshold          *int    `yaml:"befs_threshold"`
	CheckpointInterval *int    `yaml:"checkpoint_interval"`
	MaxCheckpoints     *int    `yaml:"max_checkpoints"`
	Workers            *int    `yaml:"workers"`
	CriticalTransition *bool   `yaml:"critical_transition"`
	Strategy           string  `yaml:"strategy"`
	Seed               int64   `yaml:"seed"`
	OptimalityCheck    bool    `yaml:"optimality_check"`
	Timeout            *string `yaml:"timeout"`
}

// Load reads the YAML file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML configuration. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "parsing config")
	}
	return &f, nil
}

// Options converts f into exploration options.
func (f *File) Options() ([]Option, error) {
	var opts []Option
	if f.Reduction != "" {
		kind, err := reduction.ParseKind(f.Reduction)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ReductionOption{Reduction: kind})
	}
	if f.Explorer != "" {
		kind, err := explorer.ParseKind(f.Explorer)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ExplorerOption{Explorer: kind})
	}
	if f.MaxDepth != nil {
		opts = append(opts, MaxDepthOption{MaxDepth: *f.MaxDepth})
	}
	if f.Threshold != nil {
		opts = append(opts, BeFSThresholdOption{Threshold: *f.Threshold})
	}
	if f.CheckpointInterval != nil {
		opts = append(opts, CheckpointIntervalOption{Interval: *f.CheckpointInterval})
	}
	if f.MaxCheckpoints != nil {
		opts = append(opts, MaxCheckpointsOption{Max: *f.MaxCheckpoints})
	}
	if f.Workers != nil {
		opts = append(opts, WorkersOption{N: *f.Workers})
	}
	if f.CriticalTransition != nil {
		opts = append(opts, CriticalTransitionOption{Enabled: *f.CriticalTransition})
	}
	if f.Strategy != "" || f.Seed != 0 {
		opts = append(opts, StrategyOption{Name: f.Strategy, Seed: f.Seed})
	}
	if f.OptimalityCheck {
		opts = append(opts, OptimalityCheckOption{})
	}
	if f.Timeout != nil {
		d, err := time.ParseDuration(*f.Timeout)
		if err != nil {
			return nil, errors.Wrapf(err, "timeout %q", *f.Timeout)
		}
		opts = append(opts, TimeoutOption{Timeout: d})
	}
	return opts, nil
}
