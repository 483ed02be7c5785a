package utils

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment variable overrides, e.g. FIRESIM_SERVER_ADDR
const EnvPrefix = "FIRESIM"

// Config holds the configuration for the service and the CLI
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Gzip           bool          `mapstructure:"gzip"`
}

type OracleConfig struct {
	ModelPath      string `mapstructure:"model_path"`
	MaxConcurrency int    `mapstructure:"max_concurrency"`
}

type SimulationConfig struct {
	DefaultRows     int  `mapstructure:"default_rows"`
	DefaultCols     int  `mapstructure:"default_cols"`
	DefaultSteps    int  `mapstructure:"default_steps"`
	MaxRows         int  `mapstructure:"max_rows"`
	MaxCols         int  `mapstructure:"max_cols"`
	MaxSteps        int  `mapstructure:"max_steps"`
	Workers         int  `mapstructure:"workers"`
	StopWhenSettled bool `mapstructure:"stop_when_settled"`
	UseMemoryPool   bool `mapstructure:"use_memory_pool"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Timestamp bool   `mapstructure:"timestamp"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":5000",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   60 * time.Second,
			RequestTimeout: 30 * time.Second,
			Gzip:           true,
		},
		Oracle: OracleConfig{
			ModelPath: "forest_fire_model.yaml",
		},
		Simulation: SimulationConfig{
			DefaultRows:   10,
			DefaultCols:   10,
			DefaultSteps:  5,
			MaxRows:       500,
			MaxCols:       500,
			MaxSteps:      1000,
			UseMemoryPool: true,
		},
		Log: LogConfig{
			Level:     "info",
			Timestamp: true,
		},
	}
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("server.addr", c.Server.Addr)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.gzip", c.Server.Gzip)
	v.SetDefault("oracle.model_path", c.Oracle.ModelPath)
	v.SetDefault("oracle.max_concurrency", c.Oracle.MaxConcurrency)
	v.SetDefault("simulation.default_rows", c.Simulation.DefaultRows)
	v.SetDefault("simulation.default_cols", c.Simulation.DefaultCols)
	v.SetDefault("simulation.default_steps", c.Simulation.DefaultSteps)
	v.SetDefault("simulation.max_rows", c.Simulation.MaxRows)
	v.SetDefault("simulation.max_cols", c.Simulation.MaxCols)
	v.SetDefault("simulation.max_steps", c.Simulation.MaxSteps)
	v.SetDefault("simulation.workers", c.Simulation.Workers)
	v.SetDefault("simulation.stop_when_settled", c.Simulation.StopWhenSettled)
	v.SetDefault("simulation.use_memory_pool", c.Simulation.UseMemoryPool)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.timestamp", c.Log.Timestamp)
}

// LoadConfig loads configuration from a YAML file and FIRESIM_* environment
// variables. An empty filename skips the file and uses defaults plus environment.
func LoadConfig(filename string) (Config, error) {
	config := DefaultConfig()

	v := viper.New()
	setDefaults(v, config)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		v.SetConfigFile(filename)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return config, errors.Wrapf(err, "[LoadConfig] failed to read file: %+v", filename)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, errors.Wrapf(err, "[LoadConfig] failed to unmarshal config from: %+v", filename)
	}
	if err := config.Validate(); err != nil {
		return config, errors.Wrapf(err, "[LoadConfig] invalid config from: %+v", filename)
	}
	return config, nil
}

// Validate checks limits that would make every request fail
func (c Config) Validate() error {
	s := c.Simulation
	switch {
	case s.DefaultRows <= 0 || s.DefaultCols <= 0:
		return errors.Errorf("default grid must be positive, got %dx%d", s.DefaultRows, s.DefaultCols)
	case s.DefaultSteps < 0:
		return errors.Errorf("default steps must be non-negative, got %d", s.DefaultSteps)
	case s.MaxRows < s.DefaultRows || s.MaxCols < s.DefaultCols:
		return errors.Errorf("max grid %dx%d smaller than default %dx%d", s.MaxRows, s.MaxCols, s.DefaultRows, s.DefaultCols)
	case s.MaxSteps < s.DefaultSteps:
		return errors.Errorf("max steps %d smaller than default %d", s.MaxSteps, s.DefaultSteps)
	case c.Server.RequestTimeout < 0:
		return errors.New("request timeout must be non-negative")
	}
	return nil
}
