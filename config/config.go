// Package config resolves the credentials and tunables the facade needs to
// start a session: a .env/environment-sourced credential set, plus an
// optional YAML file for non-secret overrides (WS reconnect backoff, REST
// keep-alive interval).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Credentials holds the venue login the facade authenticates with. These
// are never read from a YAML file, only from the environment (optionally
// populated by a .env file), so they never end up committed alongside
// non-secret config.
type Credentials struct {
	Username  string
	Password  string
	AccountID string
}

// Config carries the non-secret tunables an operator may want to override
// per environment without touching code.
type Config struct {
	WS      WSConfig      `yaml:"ws"`
	RestAPI RestAPIConfig `yaml:"rest_api"`
}

type WSConfig struct {
	ReconnectBackoff Duration `yaml:"reconnect_backoff"`
}

type RestAPIConfig struct {
	KeepAliveInterval Duration `yaml:"keep_alive_interval"`
}

func defaults() Config {
	return Config{
		WS:      WSConfig{ReconnectBackoff: Duration(time.Second)},
		RestAPI: RestAPIConfig{KeepAliveInterval: Duration(60 * time.Second)},
	}
}

// Duration wraps time.Duration so YAML values are written the human way
// ("1s", "500ms") rather than as a raw nanosecond count, which
// gopkg.in/yaml.v3 has no built-in support for.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// LoadCredentials loads a .env file if one is present (a missing file is
// not an error) and reads TD365_USERNAME, TD365_PASSWORD and
// TD365_ACCOUNT_ID from the environment.
func LoadCredentials() (Credentials, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Credentials{}, fmt.Errorf("config: load .env: %w", err)
	}

	creds := Credentials{
		Username:  strings.TrimSpace(os.Getenv("TD365_USERNAME")),
		Password:  strings.TrimSpace(os.Getenv("TD365_PASSWORD")),
		AccountID: strings.TrimSpace(os.Getenv("TD365_ACCOUNT_ID")),
	}

	if creds.Username == "" {
		return Credentials{}, fmt.Errorf("config: TD365_USERNAME is required")
	}
	if creds.Password == "" {
		return Credentials{}, fmt.Errorf("config: TD365_PASSWORD is required")
	}
	if creds.AccountID == "" {
		return Credentials{}, fmt.Errorf("config: TD365_ACCOUNT_ID is required")
	}

	return creds, nil
}

// Load reads path as YAML and overlays it on top of the built-in defaults.
// A missing file is not an error; the caller gets defaults back.
func Load(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := validate(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.WS.ReconnectBackoff <= 0 {
		return fmt.Errorf("ws.reconnect_backoff must be greater than 0")
	}
	if cfg.RestAPI.KeepAliveInterval <= 0 {
		return fmt.Errorf("rest_api.keep_alive_interval must be greater than 0")
	}
	return nil
}
