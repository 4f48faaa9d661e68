// config.go: This file contains the configuration for the nameatlas application. It defines the settings struct and functions to load and save the settings.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// AggregatorSettings contains settings for the combination pipeline.
type AggregatorSettings struct {
	MaxCombinations      int // refuse requests that would expand beyond this many combinations
	MaxConcurrentLookups int // bounded fan-out width for distinct part lookups
	ProviderTimeout      int // per-lookup timeout in milliseconds
}

// GatewaySettings contains settings for the provider gateway.
type GatewaySettings struct {
	Debug      bool // true to enable debug mode
	CacheTTL   int  // merged lookup cache TTL in minutes
	CacheSweep int  // expired cache entry sweep interval in minutes
}

// BehindTheNameSettings contains settings for the keyed name-data API.
type BehindTheNameSettings struct {
	Enabled   bool   // true to enable this provider
	APIKey    string // API key issued for lookups
	BaseURL   string // API endpoint, overridable for testing
	RateLimit int    // minimum milliseconds between requests
}

// DemographSettings contains settings for the gender/culture probability APIs.
type DemographSettings struct {
	Enabled    bool   // true to enable this provider
	GenderURL  string // gender probability endpoint
	CultureURL string // nationality probability endpoint
}

// WikinameSettings contains settings for the MediaWiki name-page provider.
type WikinameSettings struct {
	Enabled   bool    // true to enable this provider
	APIURL    string  // MediaWiki api.php endpoint
	RateLimit float64 // requests per second toward the wiki API
}

// ProviderSettings groups all upstream name-data providers.
type ProviderSettings struct {
	Debug         bool                  // true to enable provider debug logging
	BehindTheName BehindTheNameSettings // keyed name-data API settings
	Demograph     DemographSettings     // gender/culture probability API settings
	Wikiname      WikinameSettings      // MediaWiki name-page settings
}

// SentrySettings contains settings for error telemetry. Opt-in only.
type SentrySettings struct {
	Enabled bool   // true to enable Sentry error telemetry
	DSN     string // Sentry project DSN
	Debug   bool   // true to log telemetry events and privacy filtering
}

// ObservabilitySettings contains settings for the dedicated Prometheus
// metrics listener. The API server exposes /metrics regardless; this
// listener exists for deployments that keep scraping off the public port.
type ObservabilitySettings struct {
	Enabled bool   // true to serve metrics on a dedicated listener
	Listen  string // listen address for the metrics endpoint, e.g. "0.0.0.0:8090"
}

// InputConfig holds one-shot CLI analysis input.
type InputConfig struct {
	FirstNames  []string `yaml:"-"` // first name candidates, runtime value
	MiddleNames []string `yaml:"-"` // middle name candidates, runtime value
	LastName    string   `yaml:"-"` // family name, runtime value
	JSON        bool     `yaml:"-"` // true to print JSON instead of a table
}

// Settings contains all configuration options for the nameatlas application.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"` // Version from build
	BuildDate string `yaml:"-"` // Build date from build

	Main struct {
		Name string    // name of this nameatlas node, used to identify log source
		Log  LogConfig // logging configuration
	}

	Aggregator AggregatorSettings // combination pipeline settings

	Gateway GatewaySettings // provider gateway settings

	Providers ProviderSettings // upstream name-data providers

	Input InputConfig `yaml:"-"` // one-shot CLI analysis input

	WebServer struct {
		Debug   bool      // true to enable debug mode
		Enabled bool      // true to enable web server
		Port    string    // port for web server
		AutoTLS bool      // true to enable automatic TLS via Let's Encrypt
		Host    string    // hostname used for TLS certificates
		Log     LogConfig // logging configuration for web server
	}

	Sentry SentrySettings // error telemetry settings

	Observability ObservabilitySettings // dedicated metrics listener settings
}

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled     bool         // true to enable this log
	Path        string       // Path to the log file
	Rotation    RotationType // Type of log rotation
	MaxSize     int64        // Max size in bytes for RotationSize
	RotationDay string       // Day of the week for RotationWeekly (as a string: "Sunday", "Monday", etc.)
}

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new Settings instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	// Create a new settings struct
	settings := &Settings{}

	// Initialize viper and read config
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	// Unmarshal the config into settings
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	// Validate settings
	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	// Save settings instance
	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Get OS specific config paths
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	// Assign config paths to Viper
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	// Read configuration file
	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	// Create directories for config file
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	// Write default config file
	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveSettings saves the current settings to the configuration file.
// It uses SaveYAMLConfig to handle the atomic write process.
func SaveSettings() error {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()

	// Create a copy of the settings so the instance cannot change mid-write
	settingsCopy := *settingsInstance

	// Find the path of the current config file
	configPath, err := FindConfigFile()
	if err != nil {
		return fmt.Errorf("error finding config file: %w", err)
	}

	// Save the settings to the config file
	if err := SaveYAMLConfig(configPath, &settingsCopy); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	log.Printf("Settings saved successfully to %s", configPath)
	return nil
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// SaveYAMLConfig updates the YAML configuration file with new settings.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	// Marshal the settings struct to YAML
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write the YAML data to a temporary file first so the replacement of the
	// original config file is atomic
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	// Ensure the temporary file is removed in case of any failure
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	// Rename is atomic on most filesystems; fall back to copy & delete when
	// the temp directory sits on a different filesystem
	if err := os.Rename(tempFileName, configPath); err != nil {
		if err := moveFile(tempFileName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}

	return nil
}

// ProviderTimeoutDuration returns the per-lookup timeout as a time.Duration.
func (s *AggregatorSettings) ProviderTimeoutDuration() time.Duration {
	return time.Duration(s.ProviderTimeout) * time.Millisecond
}
