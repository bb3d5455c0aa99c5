package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the application configuration
type Config struct {
	Embedding EmbeddingConfig `json:"embedding"`
	Pyramid   PyramidConfig   `json:"pyramid"`
	Store     StoreConfig     `json:"store"`
}

// EmbeddingConfig holds configuration for the embedding run
type EmbeddingConfig struct {
	Model         string  `json:"model"`
	PatchWidth    int     `json:"patch_width"`
	Level         int     `json:"level"`
	Magnification float64 `json:"magnification"`
	Overlap       int     `json:"overlap"`
	BatchSize     int     `json:"batch_size"`
	Device        string  `json:"device"`
}

// PyramidConfig holds configuration for reading the source pyramid
type PyramidConfig struct {
	// SynthesizeLevels is how many levels to build when the source is a
	// single-resolution file. 1 keeps it as-is.
	SynthesizeLevels int     `json:"synthesize_levels"`
	ObjectivePower   float64 `json:"objective_power"`
	MPPX             float64 `json:"microns_per_pixel_x"`
}

// StoreConfig holds configuration for the output container
type StoreConfig struct {
	Path     string `json:"path"`
	InMemory bool   `json:"in_memory"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Model:      "dummy",
			PatchWidth: 224,
			Level:      -1,
			Overlap:    0,
			BatchSize:  32,
			Device:     "cpu",
		},
		Pyramid: PyramidConfig{
			SynthesizeLevels: 1,
		},
		Store: StoreConfig{
			Path: "./patchembed.db",
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model must be set")
	}

	if c.Embedding.PatchWidth < 1 {
		return fmt.Errorf("embedding.patch_width must be positive")
	}

	if c.Embedding.Level < -1 {
		return fmt.Errorf("embedding.level must be -1 (unset) or non-negative")
	}

	if c.Embedding.Magnification < 0 {
		return fmt.Errorf("embedding.magnification must be non-negative")
	}

	if c.Embedding.Overlap < 0 {
		return fmt.Errorf("embedding.overlap must be non-negative")
	}

	if c.Embedding.Overlap >= c.Embedding.PatchWidth {
		return fmt.Errorf("embedding.overlap must be smaller than embedding.patch_width")
	}

	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("embedding.batch_size must be positive")
	}

	if c.Pyramid.SynthesizeLevels < 1 {
		return fmt.Errorf("pyramid.synthesize_levels must be at least 1")
	}

	if c.Pyramid.ObjectivePower < 0 || c.Pyramid.MPPX < 0 {
		return fmt.Errorf("pyramid metadata values must be non-negative")
	}

	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path must be set unless store.in_memory is enabled")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "patchembed", "config.json")
}
