// pkg/config/config.go - configuration settings for the catalog client.

package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the YAML settings file inside the config dir.
const FileName = "config.yaml"

// PolicyRegistryPath is read on Windows for machine-wide overrides.
const PolicyRegistryPath = `SOFTWARE\AviUtl2Catalog\Config`

const (
	DefaultHostProcessName = "aviutl2.exe"
	DefaultUserAgent       = "AviUtl2Catalog"
	DefaultGitHubAPIBase   = "https://api.github.com"
	DefaultDriveBaseURL    = "https://drive.google.com"
	DefaultLogMaxLines     = 1000
	DefaultVendorTimeout   = 30
)

// Configuration holds the configurable options for the catalog client in YAML format
type Configuration struct {
	AviUtl2Root  string `yaml:"AviUtl2Root"`
	PortableMode bool   `yaml:"PortableMode"`
	ConfigDir    string `yaml:"ConfigDir"`
	CatalogPath  string `yaml:"CatalogPath"`
	DevMode      bool   `yaml:"DevMode"` // keeps installer temp dirs after a run

	LogLevel      string `yaml:"LogLevel"`
	LogMaxLines   int    `yaml:"LogMaxLines"`
	EnableJSONLog bool   `yaml:"EnableJSONLog"`
	ConsoleColor  bool   `yaml:"ConsoleColor"`

	HostProcessName string `yaml:"HostProcessName"`
	UserAgent       string `yaml:"UserAgent"`
	GitHubAPIBase   string `yaml:"GitHubAPIBase"`
	DriveBaseURL    string `yaml:"DriveBaseURL"`

	TelemetryEndpoint string `yaml:"TelemetryEndpoint"`
	TelemetryOptOut   bool   `yaml:"TelemetryOptOut"`

	VendorSetupTimeoutSeconds int `yaml:"VendorSetupTimeoutSeconds"`

	// Path the configuration was loaded from (not exposed in YAML)
	Path string `yaml:"-"`
}

// Directories are the resolved absolute host application paths.
type Directories struct {
	InstallRoot string
	DataDir     string
	PluginDir   string
	ScriptDir   string
}

// DefaultConfigDir returns <UserConfigDir>/aviutl2-catalog.
func DefaultConfigDir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "aviutl2-catalog")
}

// DefaultPath is the default location of the settings file.
func DefaultPath() string {
	return filepath.Join(DefaultConfigDir(), FileName)
}

// LoadConfig loads the configuration from a YAML file.
// A missing file is not an error; defaults (plus policy and environment
// overrides) are returned instead.
func LoadConfig(path string) (*Configuration, error) {
	if path == "" {
		path = DefaultPath()
	}

	config := GetDefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Printf("Configuration file does not exist: %s, using defaults", path)
	case err != nil:
		return nil, fmt.Errorf("reading configuration file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing configuration file %s: %w", path, err)
		}
	}
	config.Path = path

	if err := loadPolicyOverrides(config); err != nil {
		log.Printf("Policy overrides not applied: %v", err)
	}
	ApplyEnv(config, os.Getenv)
	config.fillDefaults()

	// Create required directories
	for _, dir := range []string{config.ConfigDir, config.LogDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %v", dir, err)
		}
	}

	return config, nil
}

// SaveConfig saves the current configuration to a YAML file.
func SaveConfig(config *Configuration) error {
	path := config.Path
	if path == "" {
		path = DefaultPath()
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("serializing configuration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating configuration directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing configuration file: %w", err)
	}
	return nil
}

// GetDefaultConfig provides default configuration values.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		ConfigDir:                 DefaultConfigDir(),
		LogLevel:                  "INFO",
		LogMaxLines:               DefaultLogMaxLines,
		ConsoleColor:              true,
		HostProcessName:           DefaultHostProcessName,
		UserAgent:                 DefaultUserAgent,
		GitHubAPIBase:             DefaultGitHubAPIBase,
		DriveBaseURL:              DefaultDriveBaseURL,
		VendorSetupTimeoutSeconds: DefaultVendorTimeout,
	}
}

// ApplyEnv overlays AVIUTL2_CATALOG_* environment variables.
func ApplyEnv(config *Configuration, getenv func(string) string) {
	if v := strings.TrimSpace(getenv("AVIUTL2_CATALOG_ROOT")); v != "" {
		config.AviUtl2Root = v
	}
	if v := getenv("AVIUTL2_CATALOG_PORTABLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.PortableMode = b
		}
	}
	if v := getenv("AVIUTL2_CATALOG_DEV"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.DevMode = b
		}
	}
	if v := getenv("AVIUTL2_CATALOG_TELEMETRY_ENDPOINT"); v != "" {
		config.TelemetryEndpoint = strings.TrimSpace(v)
	}
}

func (c *Configuration) fillDefaults() {
	d := GetDefaultConfig()
	if c.ConfigDir == "" {
		c.ConfigDir = d.ConfigDir
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogMaxLines <= 0 {
		c.LogMaxLines = d.LogMaxLines
	}
	if c.HostProcessName == "" {
		c.HostProcessName = d.HostProcessName
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.GitHubAPIBase == "" {
		c.GitHubAPIBase = d.GitHubAPIBase
	}
	if c.DriveBaseURL == "" {
		c.DriveBaseURL = d.DriveBaseURL
	}
	if c.VendorSetupTimeoutSeconds <= 0 {
		c.VendorSetupTimeoutSeconds = d.VendorSetupTimeoutSeconds
	}
	c.TelemetryEndpoint = strings.TrimSpace(c.TelemetryEndpoint)
}

// VendorSetupTimeout is how long the auo_setup dialog may take to appear.
func (c *Configuration) VendorSetupTimeout() time.Duration {
	return time.Duration(c.VendorSetupTimeoutSeconds) * time.Second
}

// LogDir is where app.log lives.
func (c *Configuration) LogDir() string {
	return filepath.Join(c.ConfigDir, "logs")
}

// Directories derives the host application paths from the current settings.
// In portable mode the data dir sits under the install root, otherwise it is
// the machine-wide %ProgramData%\aviutl2.
func (c *Configuration) Directories() (Directories, error) {
	root := strings.TrimSpace(c.AviUtl2Root)
	if root == "" {
		return Directories{}, fmt.Errorf("AviUtl2Root is not configured")
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return Directories{}, fmt.Errorf("resolving AviUtl2Root: %w", err)
	}

	var data string
	if c.PortableMode {
		data = filepath.Join(root, "data")
	} else {
		data = filepath.Join(programDataDir(), "aviutl2")
	}
	return Directories{
		InstallRoot: root,
		DataDir:     data,
		PluginDir:   filepath.Join(data, "Plugin"),
		ScriptDir:   filepath.Join(data, "Script"),
	}, nil
}

func programDataDir() string {
	if v := os.Getenv("ProgramData"); v != "" {
		return v
	}
	if os.PathSeparator == '\\' {
		return `C:\ProgramData`
	}
	return DefaultConfigDir()
}
