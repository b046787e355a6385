package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete worker configuration
type Config struct {
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Browser    BrowserConfig    `yaml:"browser" envconfig:"BROWSER"`
	Portal     PortalConfig     `yaml:"portal" envconfig:"PORTAL"`
	Output     OutputConfig     `yaml:"output" envconfig:"OUTPUT"`
	Normalizer NormalizerConfig `yaml:"normalizer" envconfig:"NORMALIZER"`
	Reconcile  ReconcileConfig  `yaml:"reconcile" envconfig:"RECONCILE"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// LoggingConfig contains logging configuration. The job log path is not part
// of it: it is a positional argument of the worker.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// BrowserConfig controls the automated browser and the two timeout tiers.
type BrowserConfig struct {
	Headless        bool          `yaml:"headless" envconfig:"HEADLESS"`
	ExecPath        string        `yaml:"exec_path" envconfig:"EXEC_PATH"`
	DefaultTimeout  time.Duration `yaml:"default_timeout" envconfig:"DEFAULTTIMEOUT"`
	ExtendedTimeout time.Duration `yaml:"extended_timeout" envconfig:"EXTENDEDTIMEOUT"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout" envconfig:"PROBETIMEOUT"`
	PaceInterval    time.Duration `yaml:"pace_interval" envconfig:"PACEINTERVAL"`
	PaceBurst       int           `yaml:"pace_burst" envconfig:"PACEBURST"`
}

// PortalConfig holds the portal endpoints. Detail and toll URLs are
// fmt templates taking the bill number.
type PortalConfig struct {
	LoginURL  string `yaml:"login_url" envconfig:"LOGINURL"`
	ReportURL string `yaml:"report_url" envconfig:"REPORTURL"`
	DetailURL string `yaml:"detail_url" envconfig:"DETAILURL"`
	TollURL   string `yaml:"toll_url" envconfig:"TOLLURL"`
}

// OutputConfig locates the per-taxpayer output tree.
type OutputConfig struct {
	RootDir string `yaml:"root_dir" envconfig:"ROOTDIR"`
}

// NormalizerConfig configures legacy spreadsheet conversion.
type NormalizerConfig struct {
	EnginePath string        `yaml:"engine_path" envconfig:"ENGINEPATH"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// ReconcileConfig holds the quantity scale rule: any quantity above
// ScaleThreshold is divided by ScaleDivisor.
type ReconcileConfig struct {
	ScaleThreshold float64 `yaml:"scale_threshold" envconfig:"SCALETHRESHOLD"`
	ScaleDivisor   float64 `yaml:"scale_divisor" envconfig:"SCALEDIVISOR"`
}

// TelemetryConfig controls metrics and tracing. An empty MetricsAddr keeps
// the status endpoint off.
type TelemetryConfig struct {
	MetricsAddr   string `yaml:"metrics_addr" envconfig:"METRICSADDR"`
	TraceExporter string `yaml:"trace_exporter" envconfig:"TRACEEXPORTER"`
}

// Load builds the configuration from defaults, the optional config file and
// the environment, then validates it.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is Load with an explicit config file path. An empty path skips the file.
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// No default tags on the struct: unset variables leave file values alone.
	if err := envconfig.Process("EWB", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Browser.DefaultTimeout <= 0 {
		return fmt.Errorf("browser default timeout must be positive")
	}
	if c.Browser.ExtendedTimeout < c.Browser.DefaultTimeout {
		return fmt.Errorf("browser extended timeout (%s) must not be shorter than default timeout (%s)",
			c.Browser.ExtendedTimeout, c.Browser.DefaultTimeout)
	}
	if c.Browser.ProbeTimeout <= 0 {
		return fmt.Errorf("browser probe timeout must be positive")
	}
	if c.Browser.PaceInterval < 0 {
		return fmt.Errorf("browser pace interval must not be negative")
	}
	if c.Browser.PaceBurst <= 0 {
		c.Browser.PaceBurst = 1
	}

	for name, url := range map[string]string{
		"login_url":  c.Portal.LoginURL,
		"report_url": c.Portal.ReportURL,
		"detail_url": c.Portal.DetailURL,
		"toll_url":   c.Portal.TollURL,
	} {
		if url == "" {
			return fmt.Errorf("portal %s must be set", name)
		}
	}
	if !strings.Contains(c.Portal.DetailURL, "%s") || !strings.Contains(c.Portal.TollURL, "%s") {
		return fmt.Errorf("portal detail_url and toll_url must contain a %%s placeholder for the bill number")
	}

	if c.Output.RootDir == "" {
		return fmt.Errorf("output root dir must be set")
	}

	if c.Reconcile.ScaleDivisor == 0 {
		return fmt.Errorf("reconcile scale divisor must not be zero")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		c.Logging.Format = "json"
	}

	switch c.Telemetry.TraceExporter {
	case "", "none", "stdout":
	default:
		return fmt.Errorf("unsupported trace exporter: %s", c.Telemetry.TraceExporter)
	}

	return nil
}

// getConfigFilePath returns the first config file found in the usual locations
func getConfigFilePath() string {
	if path := os.Getenv("EWB_CONFIG_FILE"); path != "" {
		return path
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"input/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Browser: BrowserConfig{
			Headless:        false,
			DefaultTimeout:  3 * time.Minute,
			ExtendedTimeout: 5 * time.Minute,
			ProbeTimeout:    100 * time.Millisecond,
			PaceInterval:    500 * time.Millisecond,
			PaceBurst:       1,
		},
		Portal: PortalConfig{
			LoginURL:  "https://gstsso.nic.in/",
			ReportURL: "https://mis.ewaybillgst.gov.in/Verification/GSTINBasedRpt.aspx",
			DetailURL: "https://mis.ewaybillgst.gov.in/Verify/EwayBillPrint.aspx?ewb_no=%s&cal=1",
			TollURL:   "https://mis.ewaybillgst.gov.in/RFID_Reports/Ewb_rpt.aspx?id=1&ewayno=%s",
		},
		Output: OutputConfig{
			RootDir: "output",
		},
		Normalizer: NormalizerConfig{
			EnginePath: "soffice",
			Timeout:    2 * time.Minute,
		},
		Reconcile: ReconcileConfig{
			ScaleThreshold: 100,
			ScaleDivisor:   1000,
		},
		Telemetry: TelemetryConfig{
			TraceExporter: "none",
		},
	}
}
