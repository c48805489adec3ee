package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/logging"
)

// Config holds all configuration for the application
type Config struct {
	Output   OutputConfig   `mapstructure:"output"`
	Registry RegistryConfig `mapstructure:"registry"`
	Enhance  EnhanceConfig  `mapstructure:"enhance"`
	Match    MatchConfig    `mapstructure:"match"`
	Coverage CoverageConfig `mapstructure:"coverage"`
	Validate ValidateConfig `mapstructure:"validate"`
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
}

// OutputConfig holds where stage runs are written
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// RegistryConfig holds NPI Registry API configuration
type RegistryConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Version           string        `mapstructure:"version"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	Backoff           time.Duration `mapstructure:"backoff"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	ResultLimit       int           `mapstructure:"result_limit"`
}

// EnhanceConfig holds enhancer configuration
type EnhanceConfig struct {
	Concurrency            int           `mapstructure:"concurrency"`
	CacheTTL               time.Duration `mapstructure:"cache_ttl"`
	ProviderFirstNameField string        `mapstructure:"provider_first_name_field"`
	ProviderLastNameField  string        `mapstructure:"provider_last_name_field"`
	ProviderNPIField       string        `mapstructure:"provider_npi_field"`
	PracticeNameField      string        `mapstructure:"practice_name_field"`
	PracticeNPIField       string        `mapstructure:"practice_npi_field"`
	FlagField              string        `mapstructure:"flag_field"`
	Force                  bool          `mapstructure:"force"`
	Sample                 int           `mapstructure:"sample"`
}

// MatchConfig holds matcher configuration
type MatchConfig struct {
	Threshold          float64  `mapstructure:"threshold"`
	TargetField        string   `mapstructure:"target_field"`
	TargetNPIField     string   `mapstructure:"target_npi_field"`
	CandidateFields    []string `mapstructure:"candidate_fields"`
	CandidateNPIFields []string `mapstructure:"candidate_npi_fields"`
	DistinctCandidates bool     `mapstructure:"distinct_candidates"`
	StripLegalSuffixes bool     `mapstructure:"strip_legal_suffixes"`
}

// CategoryConfig names the columns of one coverage category
type CategoryConfig struct {
	Name       string `mapstructure:"name"`
	IDField    string `mapstructure:"id_field"`
	NameField  string `mapstructure:"name_field"`
	StateField string `mapstructure:"state_field"`
}

// OverlapConfig names two identifier columns to compare
type OverlapConfig struct {
	Left  string `mapstructure:"left"`
	Right string `mapstructure:"right"`
}

// CoverageConfig holds coverage analyzer configuration
type CoverageConfig struct {
	TopN                int              `mapstructure:"top_n"`
	Categories          []CategoryConfig `mapstructure:"categories"`
	ReferenceNPIFields  []string         `mapstructure:"reference_npi_fields"`
	ReferenceNameFields []string         `mapstructure:"reference_name_fields"`
	Overlaps            []OverlapConfig  `mapstructure:"overlaps"`
}

// ValidateConfig holds match validator configuration
type ValidateConfig struct {
	ResolveUnknown bool   `mapstructure:"resolve_unknown"`
	ResolveType    string `mapstructure:"resolve_type"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds offline registry server configuration
type ServerConfig struct {
	Port        string `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// Load loads configuration from .env, environment variables and config files.
// configFile, when set, replaces the config search path.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("npimatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/npimatch/")
	}

	// Environment variable settings
	v.SetEnvPrefix("NPIMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("output.dir", "output")

	// Registry defaults
	v.SetDefault("registry.base_url", "https://npiregistry.cms.hhs.gov/api/")
	v.SetDefault("registry.version", "2.1")
	v.SetDefault("registry.timeout", "15s")
	v.SetDefault("registry.max_attempts", 3)
	v.SetDefault("registry.backoff", "500ms")
	v.SetDefault("registry.requests_per_second", 1.0)
	v.SetDefault("registry.burst", 1)
	v.SetDefault("registry.result_limit", 5)

	// Enhancer defaults
	v.SetDefault("enhance.concurrency", 4)
	v.SetDefault("enhance.cache_ttl", "1h")
	v.SetDefault("enhance.provider_first_name_field", "PROVIDER_FIRST_NAME")
	v.SetDefault("enhance.provider_last_name_field", "PROVIDER_LAST_NAME")
	v.SetDefault("enhance.provider_npi_field", "NPI")
	v.SetDefault("enhance.practice_name_field", "Practice Name")
	v.SetDefault("enhance.practice_npi_field", "Practice NPI")
	v.SetDefault("enhance.flag_field", "")
	v.SetDefault("enhance.force", false)
	v.SetDefault("enhance.sample", 0)

	// Matcher defaults
	v.SetDefault("match.threshold", 70.0)
	v.SetDefault("match.target_field", "Practice Name")
	v.SetDefault("match.target_npi_field", "NPI-2")
	v.SetDefault("match.candidate_fields", []string{})
	v.SetDefault("match.candidate_npi_fields", []string{})
	v.SetDefault("match.distinct_candidates", true)
	v.SetDefault("match.strip_legal_suffixes", false)

	// Coverage defaults
	v.SetDefault("coverage.top_n", 10)
	v.SetDefault("coverage.categories", []map[string]any{
		{"name": "NPI-1", "id_field": "NPI-1", "name_field": "NPI-1_Name", "state_field": "NPI-1_State"},
		{"name": "NPI-2", "id_field": "NPI-2", "name_field": "NPI-2_Name", "state_field": "NPI-2_State"},
	})
	v.SetDefault("coverage.reference_npi_fields", []string{})
	v.SetDefault("coverage.reference_name_fields", []string{"organization_name", "first_name+last_name"})
	v.SetDefault("coverage.overlaps", []map[string]any{
		{"left": "NPI", "right": "NPI-1"},
		{"left": "Practice NPI", "right": "NPI-2"},
	})

	// Validator defaults
	v.SetDefault("validate.resolve_unknown", false)
	v.SetDefault("validate.resolve_type", "NPI-2")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatAuto)

	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
}

// Validate checks value ranges. It is also called after flag overrides.
func Validate(c *Config) error {
	if c.Output.Dir == "" {
		return fmt.Errorf("output directory is required (set NPIMATCH_OUTPUT_DIR)")
	}

	if c.Match.Threshold < 0 || c.Match.Threshold > 100 {
		return fmt.Errorf("match threshold must be between 0 and 100, got: %v", c.Match.Threshold)
	}

	if c.Enhance.Concurrency < 1 {
		return fmt.Errorf("enhance concurrency must be at least 1, got: %d", c.Enhance.Concurrency)
	}

	if c.Coverage.TopN < 1 {
		return fmt.Errorf("coverage top_n must be at least 1, got: %d", c.Coverage.TopN)
	}

	if c.Registry.MaxAttempts < 1 {
		return fmt.Errorf("registry max_attempts must be at least 1, got: %d", c.Registry.MaxAttempts)
	}

	if c.Registry.RequestsPerSecond <= 0 {
		return fmt.Errorf("registry requests_per_second must be positive, got: %v", c.Registry.RequestsPerSecond)
	}

	if c.Registry.Timeout <= 0 {
		return fmt.Errorf("registry timeout must be positive, got: %v", c.Registry.Timeout)
	}

	switch strings.ToUpper(c.Validate.ResolveType) {
	case "NPI-1", "NPI-2":
	default:
		return fmt.Errorf("validate resolve_type must be 'NPI-1' or 'NPI-2', got: %s", c.Validate.ResolveType)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}

	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return err
	}

	return nil
}
