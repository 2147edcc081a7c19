package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical mapping defaults file.
const DefaultConfigPath = "config/mapping.defaults.json"

// MappingConfig holds the parameters of a mapping run. Every field is
// optional; the Get* methods supply defaults for omitted fields, so partial
// files are safe.
type MappingConfig struct {
	// Grid params
	Resolution *float64 `json:"resolution,omitempty"` // cells per metre
	PatchSize  *float64 `json:"patch_size,omitempty"` // metres

	// Cache params
	DatabasePath *string `json:"database_path,omitempty"`
	SurveyID     *string `json:"survey_id,omitempty"`
	CacheTimeout *string `json:"cache_timeout,omitempty"` // duration string like "30s"

	// Output params
	RenderDir *string `json:"render_dir,omitempty"` // empty disables rendering

	// Logging
	EnableDiagnostics *bool `json:"enable_diagnostics,omitempty"`
	EnableTrace       *bool `json:"enable_trace,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrBool(v bool) *bool          { return &v }

// EmptyMappingConfig returns a MappingConfig with all fields set to nil.
func EmptyMappingConfig() *MappingConfig {
	return &MappingConfig{}
}

// DefaultMappingConfig returns a config with every field populated from the
// Get* defaults.
func DefaultMappingConfig() *MappingConfig {
	c := EmptyMappingConfig()
	return &MappingConfig{
		Resolution:        ptrFloat64(c.GetResolution()),
		PatchSize:         ptrFloat64(c.GetPatchSize()),
		DatabasePath:      ptrString(c.GetDatabasePath()),
		SurveyID:          ptrString(c.GetSurveyID()),
		CacheTimeout:      ptrString(c.GetCacheTimeout().String()),
		RenderDir:         ptrString(c.GetRenderDir()),
		EnableDiagnostics: ptrBool(c.GetEnableDiagnostics()),
		EnableTrace:       ptrBool(c.GetEnableTrace()),
	}
}

// LoadMappingConfig loads a MappingConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadMappingConfig(path string) (*MappingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyMappingConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents up to the repository root.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *MappingConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/ or cmd/sss-map/
		"../../../" + DefaultConfigPath, // from internal/sonar/<pkg>/
	}
	for _, path := range candidates {
		if cfg, err := LoadMappingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// Validate checks that the configuration values are valid.
func (c *MappingConfig) Validate() error {
	if c.Resolution != nil && !finitePositive(*c.Resolution) {
		return fmt.Errorf("resolution must be positive and finite, got %v", *c.Resolution)
	}
	if c.PatchSize != nil && !finitePositive(*c.PatchSize) {
		return fmt.Errorf("patch_size must be positive and finite, got %v", *c.PatchSize)
	}
	if c.Resolution != nil && c.PatchSize != nil && int(*c.Resolution**c.PatchSize) < 1 {
		return fmt.Errorf("patch_size %v m is smaller than one cell at resolution %v", *c.PatchSize, *c.Resolution)
	}
	if c.CacheTimeout != nil && *c.CacheTimeout != "" {
		d, err := time.ParseDuration(*c.CacheTimeout)
		if err != nil {
			return fmt.Errorf("invalid cache_timeout '%s': %w", *c.CacheTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("cache_timeout must be positive, got %s", d)
		}
	}
	if c.SurveyID != nil && *c.SurveyID == "" {
		return fmt.Errorf("survey_id must not be empty")
	}
	return nil
}

// GetResolution returns the grid resolution in cells per metre.
func (c *MappingConfig) GetResolution() float64 {
	if c.Resolution == nil {
		return 1.0
	}
	return *c.Resolution
}

// GetPatchSize returns the patch edge length in metres.
func (c *MappingConfig) GetPatchSize() float64 {
	if c.PatchSize == nil {
		return 8.0
	}
	return *c.PatchSize
}

// GetDatabasePath returns the map image cache path.
func (c *MappingConfig) GetDatabasePath() string {
	if c.DatabasePath == nil {
		return "sss_maps.db"
	}
	return *c.DatabasePath
}

func (c *MappingConfig) GetSurveyID() string {
	if c.SurveyID == nil {
		return "default"
	}
	return *c.SurveyID
}

// GetCacheTimeout parses and returns the CacheTimeout as a time.Duration.
func (c *MappingConfig) GetCacheTimeout() time.Duration {
	if c.CacheTimeout == nil || *c.CacheTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(*c.CacheTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetRenderDir returns the PNG output directory; empty disables rendering.
func (c *MappingConfig) GetRenderDir() string {
	if c.RenderDir == nil {
		return ""
	}
	return *c.RenderDir
}

func (c *MappingConfig) GetEnableDiagnostics() bool {
	if c.EnableDiagnostics == nil {
		return false
	}
	return *c.EnableDiagnostics
}

func (c *MappingConfig) GetEnableTrace() bool {
	if c.EnableTrace == nil {
		return false
	}
	return *c.EnableTrace
}
