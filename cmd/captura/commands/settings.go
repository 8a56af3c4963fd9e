package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/acederberg/captura-deploy/pkg/telemetry"
)

// Settings is the TOML tool configuration, loaded from --config or from
// the default location. Flags override settings; settings override
// defaults.
type Settings struct {
	// StatePath is the SQLite state database file.
	StatePath string `toml:"state_path"`

	// Provider selects the adapter set: "digitalocean" or "mock".
	Provider string `toml:"provider"`

	DigitalOcean DigitalOceanSettings `toml:"digitalocean"`
	Apply        ApplySettings        `toml:"apply"`
	Bootstrap    BootstrapSettings    `toml:"bootstrap"`
	Telemetry    TelemetrySettings    `toml:"telemetry"`
}

// DigitalOceanSettings configures the DigitalOcean provider. The token
// falls back to the DIGITALOCEAN_TOKEN environment variable so it never
// has to live in the file.
type DigitalOceanSettings struct {
	Token            string   `toml:"token"`
	PollInterval     duration `toml:"poll_interval"`
	ProvisionTimeout duration `toml:"provision_timeout"`
}

// ApplySettings are the default execution knobs, overridable per run via
// flags.
type ApplySettings struct {
	Parallelism     int      `toml:"parallelism"`
	MaxRetries      int      `toml:"max_retries"`
	RetryBackoff    duration `toml:"retry_backoff"`
	ContinueOnError bool     `toml:"continue_on_error"`
}

// BootstrapSettings configure the SSH connection 'captura bootstrap' uses
// to push the platform payload onto a compute instance.
type BootstrapSettings struct {
	User           string   `toml:"user"`
	PrivateKeyPath string   `toml:"private_key"`
	KnownHostsPath string   `toml:"known_hosts"`
	Insecure       bool     `toml:"insecure"`
	Port           int      `toml:"port"`
	ConnectTimeout duration `toml:"connect_timeout"`
	CommandTimeout duration `toml:"command_timeout"`
}

// TelemetrySettings mirror telemetry.Config in TOML form.
type TelemetrySettings struct {
	LogLevel      string  `toml:"log_level"`
	LogFormat     string  `toml:"log_format"`
	MetricsListen string  `toml:"metrics_listen"`
	TraceExporter string  `toml:"trace_exporter"`
	TraceEndpoint string  `toml:"trace_endpoint"`
	SamplingRate  float64 `toml:"sampling_rate"`
}

// duration lets TOML carry Go duration strings like "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func defaultSettings() Settings {
	return Settings{
		StatePath: "captura.db",
		Provider:  "digitalocean",
		Apply: ApplySettings{
			Parallelism:  4,
			MaxRetries:   3,
			RetryBackoff: duration{500 * time.Millisecond},
		},
		Telemetry: TelemetrySettings{
			LogLevel:      "info",
			LogFormat:     "console",
			TraceExporter: "none",
			SamplingRate:  1.0,
		},
	}
}

// loadSettings reads the TOML file at path, or the default location when
// path is empty. A missing default file is not an error; a missing
// explicit file is.
func loadSettings(path string) (Settings, error) {
	settings := defaultSettings()

	explicit := path != ""
	if !explicit {
		path = "captura.toml"
		if _, err := os.Stat(path); err != nil {
			home, herr := os.UserHomeDir()
			if herr != nil {
				return settings, nil
			}
			path = filepath.Join(home, ".config", "captura", "config.toml")
		}
	}

	meta, err := toml.DecodeFile(path, &settings)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return settings, nil
		}
		return settings, fmt.Errorf("failed to load settings from %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return settings, fmt.Errorf("unknown settings key %q in %s", undecoded[0].String(), path)
	}

	if settings.DigitalOcean.Token == "" {
		settings.DigitalOcean.Token = os.Getenv("DIGITALOCEAN_TOKEN")
	}
	return settings, nil
}

// telemetryConfig converts the TOML settings into the telemetry package
// config, applying the CLI log flag overrides.
func (s Settings) telemetryConfig(logLevel, logFormat string) telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = s.Telemetry.LogLevel
	cfg.Logging.Format = s.Telemetry.LogFormat
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	cfg.Metrics.Enabled = s.Telemetry.MetricsListen != ""
	cfg.Tracing.Enabled = s.Telemetry.TraceExporter != "" && s.Telemetry.TraceExporter != "none"
	cfg.Tracing.Exporter = s.Telemetry.TraceExporter
	cfg.Tracing.Endpoint = s.Telemetry.TraceEndpoint
	cfg.Tracing.SamplingRate = s.Telemetry.SamplingRate
	return cfg
}
