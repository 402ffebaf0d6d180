// Package config loads the service configuration from configs/config.yml,
// an optional .env file and MOUNT_MODELING_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "MOUNT_MODELING"

type Config struct {
	Port       string           `mapstructure:"port"`
	DB         DBConfig         `mapstructure:"db"`
	Log        LogConfig        `mapstructure:"log"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Mount      MountConfig      `mapstructure:"mount"`
	Refraction RefractionConfig `mapstructure:"refraction"`
	Imaging    ImagingConfig    `mapstructure:"imaging"`
	Modeling   ModelingConfig   `mapstructure:"modeling"`
	Simulator  SimulatorConfig  `mapstructure:"simulator"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type MountConfig struct {
	Address           string        `mapstructure:"address"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	ReplyTimeout      time.Duration `mapstructure:"reply_timeout"`
	CommandInterval   time.Duration `mapstructure:"command_interval"`
	StatusInterval    time.Duration `mapstructure:"status_interval"`
	FastInterval      time.Duration `mapstructure:"fast_interval"`
	AlignmentInterval time.Duration `mapstructure:"alignment_interval"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
}

// RefractionConfig selects when refraction is pushed and the static
// weather reading used for it.
type RefractionConfig struct {
	Auto            bool    `mapstructure:"auto"`
	WhenNotTracking bool    `mapstructure:"when_not_tracking"`
	Temperature     float64 `mapstructure:"temperature"`
	Pressure        float64 `mapstructure:"pressure"`
}

type ImagingConfig struct {
	Backend        string        `mapstructure:"backend"`
	URL            string        `mapstructure:"url"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	CaptureTimeout time.Duration `mapstructure:"capture_timeout"`
	SolveTimeout   time.Duration `mapstructure:"solve_timeout"`
	Binning        int           `mapstructure:"binning"`
	Exposure       time.Duration `mapstructure:"exposure"`
	ScaleHint      float64       `mapstructure:"scale_hint"`
	Blind          bool          `mapstructure:"blind"`
}

type ModelingConfig struct {
	ImageDir        string        `mapstructure:"image_dir"`
	SettleTime      time.Duration `mapstructure:"settle_time"`
	SlewStartDelay  time.Duration `mapstructure:"slew_start_delay"`
	SlewTimeout     time.Duration `mapstructure:"slew_timeout"`
	KeepImages      bool          `mapstructure:"keep_images"`
	ClearModelFirst bool          `mapstructure:"clear_model_first"`
	Simulation      bool          `mapstructure:"simulation"`
	PointsFile      string        `mapstructure:"points_file"`
}

type SimulatorConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Address      string        `mapstructure:"address"`
	Latitude     float64       `mapstructure:"latitude"`
	Longitude    float64       `mapstructure:"longitude"`
	Elevation    float64       `mapstructure:"elevation"`
	SlewDuration time.Duration `mapstructure:"slew_duration"`
}

var defaults = map[string]any{
	"port":      "8080",
	"db.path":   "app.db",
	"log.level": "info",

	"auth.signing_key": "",
	"auth.token_ttl":   time.Hour,

	"mount.address":            "127.0.0.1:3492",
	"mount.connect_timeout":    2 * time.Second,
	"mount.reply_timeout":      5 * time.Second,
	"mount.command_interval":   200 * time.Millisecond,
	"mount.status_interval":    3 * time.Second,
	"mount.fast_interval":      time.Second,
	"mount.alignment_interval": 10 * time.Second,
	"mount.reconnect_interval": 3 * time.Second,

	"refraction.auto":              false,
	"refraction.when_not_tracking": false,
	"refraction.temperature":       10.0,
	"refraction.pressure":          950.0,

	"imaging.backend":         "none",
	"imaging.url":             "http://127.0.0.1:59590",
	"imaging.poll_interval":   200 * time.Millisecond,
	"imaging.capture_timeout": 2 * time.Minute,
	"imaging.solve_timeout":   3 * time.Minute,
	"imaging.binning":         1,
	"imaging.exposure":        3 * time.Second,
	"imaging.scale_hint":      1.3,
	"imaging.blind":           false,

	"modeling.image_dir":         "images",
	"modeling.settle_time":       time.Second,
	"modeling.slew_start_delay":  500 * time.Millisecond,
	"modeling.slew_timeout":      3 * time.Minute,
	"modeling.keep_images":       false,
	"modeling.clear_model_first": true,
	"modeling.simulation":        false,
	"modeling.points_file":       "",

	"simulator.enabled":       false,
	"simulator.address":       "127.0.0.1:3492",
	"simulator.latitude":      48.0,
	"simulator.longitude":     11.0,
	"simulator.elevation":     500.0,
	"simulator.slew_duration": 3 * time.Second,
}

// Load reads the configuration. An empty path searches configs/config.yml;
// a missing default file is not an error, the built-in defaults apply.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Mount.Address == "" && !c.Simulator.Enabled {
		return errors.New("mount.address is required unless the simulator is enabled")
	}
	switch strings.ToLower(c.Imaging.Backend) {
	case "none", "simulation", "sgpro":
	default:
		return fmt.Errorf("imaging.backend %q: want none, simulation or sgpro", c.Imaging.Backend)
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	return nil
}
