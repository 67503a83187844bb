package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Procurement   Procurement   `yaml:"procurement"`
	Sync          Sync          `yaml:"sync"`
	Normalization Normalization `yaml:"normalization"`
	Output        Output        `yaml:"output"`
	Server        Server        `yaml:"server"`
	Logging       Logging       `yaml:"logging"`
}

// Procurement configures the upstream delivery-request detail API.
type Procurement struct {
	BaseURL                    string        `yaml:"base_url"`
	Operation                  string        `yaml:"operation"`
	ServiceKeyEnv              string        `yaml:"service_key_env"`
	ResponseType               string        `yaml:"response_type"`
	InquiryDiv                 int           `yaml:"inquiry_div"`
	NumOfRows                  int           `yaml:"num_of_rows"`
	Timeout                    time.Duration `yaml:"timeout"`
	RetryCount                 int           `yaml:"retry_count"`
	RetryDelay                 time.Duration `yaml:"retry_delay"`
	PageDelay                  time.Duration `yaml:"page_delay"`
	MaxConsecutivePageFailures int           `yaml:"max_consecutive_page_failures"`
	UserAgent                  string        `yaml:"user_agent"`
}

type Sync struct {
	BatchName string `yaml:"batch_name"`
	Filtering bool   `yaml:"filtering"`
}

type Normalization struct {
	BatchName string `yaml:"batch_name"`
	BatchSize int    `yaml:"batch_size"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port          int    `yaml:"port"`
	AdminTokenEnv string `yaml:"admin_token_env"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for procsync.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "procsync")
}

// DataDir returns the XDG data directory for procsync.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "procsync")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/procsync/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'procsync init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns a config populated with built-in defaults only.
func Default() *Config {
	return &Config{
		Procurement: Procurement{
			BaseURL:                    "https://apis.data.go.kr/1230000/at/ShoppingMallPrdctInfoService",
			Operation:                  "getDlvrReqDtlInfoList",
			ServiceKeyEnv:              "PROCUREMENT_SERVICE_KEY",
			ResponseType:               "json",
			InquiryDiv:                 1,
			NumOfRows:                  100,
			Timeout:                    30 * time.Second,
			RetryCount:                 3,
			RetryDelay:                 5 * time.Second,
			PageDelay:                  time.Second,
			MaxConsecutivePageFailures: 3,
			UserAgent:                  "procsync/1.0",
		},
		Sync: Sync{
			BatchName: "procurement_delivery_sync",
			Filtering: true,
		},
		Normalization: Normalization{
			BatchName: "data_normalization",
			BatchSize: 1000,
		},
		Server: Server{
			Port:          8080,
			AdminTokenEnv: "PROCSYNC_ADMIN_TOKEN",
		},
		Logging: Logging{Level: "info"},
	}
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the batches cannot run with.
func (c *Config) Validate() error {
	p := c.Procurement
	if p.BaseURL == "" {
		return fmt.Errorf("procurement.base_url is required")
	}
	if p.NumOfRows <= 0 || p.NumOfRows > 100 {
		return fmt.Errorf("procurement.num_of_rows must be between 1 and 100, got %d", p.NumOfRows)
	}
	if p.RetryCount < 0 {
		return fmt.Errorf("procurement.retry_count must not be negative, got %d", p.RetryCount)
	}
	if p.MaxConsecutivePageFailures <= 0 {
		return fmt.Errorf("procurement.max_consecutive_page_failures must be positive, got %d", p.MaxConsecutivePageFailures)
	}
	if c.Normalization.BatchSize <= 0 {
		return fmt.Errorf("normalization.batch_size must be positive, got %d", c.Normalization.BatchSize)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// ServiceKey returns the upstream API key from the configured environment variable.
func (c *Config) ServiceKey() string {
	return os.Getenv(c.Procurement.ServiceKeyEnv)
}

// AdminToken returns the admin server token from the configured environment variable.
func (c *Config) AdminToken() string {
	return os.Getenv(c.Server.AdminTokenEnv)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
