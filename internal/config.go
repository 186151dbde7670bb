package internal

import (
	"errors"
	"fmt"
	"github.com/spf13/viper"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Settings configure the launcher itself, as opposed to the services it runs.
type Settings struct {
	Project           string        `mapstructure:"project"`
	File              string        `mapstructure:"file"`
	Network           string        `mapstructure:"network"`
	Label             string        `mapstructure:"label"` // KEY=VALUE put on every resource, used for cleanup
	StatePath         string        `mapstructure:"state_path"`
	LogLevel          string        `mapstructure:"log_level"`
	StopTimeout       time.Duration `mapstructure:"stop_timeout"`
	RestartBackoff    time.Duration `mapstructure:"restart_backoff"`
	RestartBackoffMax time.Duration `mapstructure:"restart_backoff_max"`
}

// NetworkName returns the network the project's services are attached to.
func (s Settings) NetworkName() string {
	if s.Network != "" {
		return s.Network
	}
	return s.Project + "_default"
}

// NewViper returns a viper instance with wharf's defaults, reading WHARF_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("project", "")
	v.SetDefault("network", "")
	v.SetDefault("file", "docker-compose.yml")
	v.SetDefault("label", "used-by=wharf")
	v.SetDefault("state_path", defaultStatePath())
	v.SetDefault("log_level", "info")
	v.SetDefault("stop_timeout", 10*time.Second)
	v.SetDefault("restart_backoff", time.Second)
	v.SetDefault("restart_backoff_max", 30*time.Second)

	v.SetEnvPrefix("wharf")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadSettings reads the optional settings file and unmarshals everything v knows into Settings.
// Without an explicit configFile, wharf.yaml is looked up in the working directory.
func LoadSettings(v *viper.Viper, configFile string) (Settings, error) {
	var settings Settings

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("wharf")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return settings, fmt.Errorf("can't read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&settings); err != nil {
		return settings, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	if settings.Project == "" {
		settings.Project = defaultProjectName(settings.File)
	}
	if settings.RestartBackoff <= 0 {
		return settings, fmt.Errorf("restart_backoff must be positive, got %v", settings.RestartBackoff)
	}
	if settings.RestartBackoffMax < settings.RestartBackoff {
		settings.RestartBackoffMax = settings.RestartBackoff
	}
	return settings, nil
}

var projectNameInvalid = regexp.MustCompile(`[^a-z0-9_-]+`)

// defaultProjectName derives the project from the directory holding the descriptor.
func defaultProjectName(file string) string {
	dir, err := filepath.Abs(filepath.Dir(file))
	if err != nil {
		dir, _ = os.Getwd()
	}
	name := projectNameInvalid.ReplaceAllString(strings.ToLower(filepath.Base(dir)), "")
	if name == "" {
		return "wharf"
	}
	return name
}

// defaultStatePath resolves $XDG_STATE_HOME/wharf/events.db or ~/.local/state/wharf/events.db.
func defaultStatePath() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "wharf", "events.db")
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "wharf", "events.db")
}
