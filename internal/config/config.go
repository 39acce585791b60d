// Copyright (C) 2021 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads and saves the YAML settings file of stainlight.
// Missing files and missing keys fall back to the defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/mlnoga/stainlight/internal/augment"
	"github.com/mlnoga/stainlight/internal/normalize"
	"github.com/mlnoga/stainlight/internal/tissue"
	"gopkg.in/yaml.v3"
)

// Default name of the settings file in the working directory
const DefaultFileName = "stainlight.yaml"

// Settings of the command line tool
type Config struct {
	// Stain normalization, also used by the hematoxylin and stains commands
	Normalize normalize.Config `yaml:"normalize"`

	// Stain augmentation
	Augment struct {
		augment.Config `yaml:",inline"`
		Count          int    `yaml:"count"` // variants per input image
		Seed           uint32 `yaml:"seed"`  // 0 for unseeded
	} `yaml:"augment"`

	// Reinhard color normalization
	Reinhard struct {
		StandardizeBrightness bool    `yaml:"standardizeBrightness"`
		BrightnessPercentile  float64 `yaml:"brightnessPercentile"`
	} `yaml:"reinhard"`

	// Batch processing
	Batch struct {
		// Maximum number of images processed in parallel. 0 for the number of CPUs
		MaxThreads int `yaml:"maxThreads"`

		// Working set estimate per image in flight, bounding parallelism by memory
		PatchMemoryMB int `yaml:"patchMemoryMB"`

		// Drop images without tissue instead of failing
		SkipEmpty bool `yaml:"skipEmpty"`
	} `yaml:"batch"`

	// REST server
	Serve struct {
		Port   int    `yaml:"port"`
		Chroot string `yaml:"chroot"` // empty for none
		Setuid int    `yaml:"setuid"` // -1 for none
	} `yaml:"serve"`
}

const (
	DefaultAugmentCount = 10
	DefaultPort         = 8080
	DefaultPatchMemory  = 256
)

// Returns the settings with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize = normalize.DefaultConfig()

	cfg.Augment.Config = augment.DefaultConfig()
	cfg.Augment.Count = DefaultAugmentCount
	cfg.Augment.Seed = 0

	cfg.Reinhard.StandardizeBrightness = false
	cfg.Reinhard.BrightnessPercentile = tissue.DefaultBrightnessPercentile

	cfg.Batch.MaxThreads = runtime.NumCPU()
	cfg.Batch.PatchMemoryMB = DefaultPatchMemory
	cfg.Batch.SkipEmpty = false

	cfg.Serve.Port = DefaultPort
	cfg.Serve.Chroot = ""
	cfg.Serve.Setuid = -1
	return cfg
}

// Loads settings from a YAML file on top of the defaults.
// Returns the defaults if the file does not exist
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// Saves the settings to a YAML file, creating its directory if needed
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Checks value ranges which would otherwise only fail deep inside a batch run
func (cfg *Config) Validate() error {
	checkPercentile := func(name string, p float64) error {
		if p <= 0 || p > 100 {
			return fmt.Errorf("%s %g outside (0,100]", name, p)
		}
		return nil
	}
	for _, c := range []struct {
		name string
		p    float64
	}{
		{"normalize.brightnessPercentile", cfg.Normalize.BrightnessPercentile},
		{"normalize.angularPercentile", cfg.Normalize.AngularPercentile},
		{"augment.brightnessPercentile", cfg.Augment.BrightnessPercentile},
		{"augment.angularPercentile", cfg.Augment.AngularPercentile},
		{"reinhard.brightnessPercentile", cfg.Reinhard.BrightnessPercentile},
	} {
		if err := checkPercentile(c.name, c.p); err != nil {
			return err
		}
	}
	if cfg.Augment.Count < 1 {
		return fmt.Errorf("augment.count %d below 1", cfg.Augment.Count)
	}
	if cfg.Augment.Sigma1 < 0 || cfg.Augment.Sigma2 < 0 {
		return fmt.Errorf("augment sigmas %g, %g must not be negative", cfg.Augment.Sigma1, cfg.Augment.Sigma2)
	}
	if cfg.Batch.MaxThreads < 0 || cfg.Batch.PatchMemoryMB < 0 {
		return fmt.Errorf("batch maxThreads %d, patchMemoryMB %d must not be negative", cfg.Batch.MaxThreads, cfg.Batch.PatchMemoryMB)
	}
	if cfg.Serve.Port < 0 || cfg.Serve.Port > 65535 {
		return fmt.Errorf("serve.port %d outside [0,65535]", cfg.Serve.Port)
	}
	return nil
}
