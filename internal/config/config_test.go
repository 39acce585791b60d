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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlnoga/stainlight/internal/stain"
	"github.com/mlnoga/stainlight/internal/tissue"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Normalize.Method != stain.MethodEigen || cfg.Augment.Method != stain.MethodFixed {
		t.Errorf("default methods %v, %v", cfg.Normalize.Method, cfg.Augment.Method)
	}
	if cfg.Augment.Count != DefaultAugmentCount || cfg.Serve.Setuid != -1 {
		t.Errorf("got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestLoadPartialFile(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "stainlight.yaml")
	data := `
normalize:
  method: vahadane
  luminosityThreshold: 0.7
augment:
  sigma1: 0.3
  count: 4
serve:
  port: 9000
`
	if err := os.WriteFile(fileName, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(fileName)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Normalize.Method != stain.MethodDictionary || cfg.Normalize.LuminosityThreshold != 0.7 {
		t.Errorf("normalize section %+v", cfg.Normalize)
	}
	if cfg.Augment.Sigma1 != 0.3 || cfg.Augment.Count != 4 {
		t.Errorf("augment section %+v", cfg.Augment)
	}
	if cfg.Augment.LuminosityThreshold != tissue.DefaultLuminosityThreshold {
		t.Errorf("unset augment key lost its default: %g", cfg.Augment.LuminosityThreshold)
	}
	if cfg.Serve.Port != 9000 || cfg.Serve.Setuid != -1 {
		t.Errorf("serve section %+v", cfg.Serve)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name, data string
	}{
		{"syntax", "normalize: [unclosed"},
		{"method", "normalize:\n  method: unknown\n"},
		{"percentile", "reinhard:\n  brightnessPercentile: 120\n"},
		{"count", "augment:\n  count: 0\n"},
		{"sigma", "augment:\n  sigma2: -1\n"},
	}
	for _, tt := range tests {
		fileName := filepath.Join(dir, tt.name+".yaml")
		if err := os.WriteFile(fileName, []byte(tt.data), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(fileName); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestSaveAndLoad(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "sub", "dir", "stainlight.yaml")
	cfg := DefaultConfig()
	cfg.Normalize.Method = stain.MethodFixed
	cfg.Augment.Seed = 1234
	cfg.Augment.AugmentBackground = true
	if err := SaveConfig(cfg, fileName); err != nil {
		t.Fatal(err)
	}

	bs, err := os.ReadFile(fileName)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(bs), "method: fixed") {
		t.Errorf("method not written by name:\n%s", bs)
	}

	loaded, err := LoadConfig(fileName)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Normalize.Method != stain.MethodFixed || loaded.Augment.Seed != 1234 || !loaded.Augment.AugmentBackground {
		t.Errorf("round trip lost values: %+v", loaded)
	}
	if loaded.Normalize.DictionaryMaxSamples != cfg.Normalize.DictionaryMaxSamples {
		t.Errorf("inlined options lost: %+v", loaded.Normalize.Options)
	}
}
