package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config must validate, got: %v", err)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Embedding.Model = "stats"
	cfg.Embedding.PatchWidth = 128
	cfg.Store.InMemory = true

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Embedding.Model != "stats" || loaded.Embedding.PatchWidth != 128 {
		t.Errorf("loaded = %+v, want saved values back", loaded.Embedding)
	}
	if !loaded.Store.InMemory {
		t.Error("store.in_memory not preserved")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty model", func(c *Config) { c.Embedding.Model = "" }},
		{"zero patch width", func(c *Config) { c.Embedding.PatchWidth = 0 }},
		{"level below unset", func(c *Config) { c.Embedding.Level = -2 }},
		{"negative magnification", func(c *Config) { c.Embedding.Magnification = -1 }},
		{"negative overlap", func(c *Config) { c.Embedding.Overlap = -1 }},
		{"overlap eats patch", func(c *Config) { c.Embedding.Overlap = c.Embedding.PatchWidth }},
		{"zero batch size", func(c *Config) { c.Embedding.BatchSize = 0 }},
		{"zero synthesize levels", func(c *Config) { c.Pyramid.SynthesizeLevels = 0 }},
		{"no store path", func(c *Config) { c.Store.Path = ""; c.Store.InMemory = false }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}
