package lbstats

import (
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSocketPath = "/tmp/haproxy.sock"
	DefaultDataDir    = "/tmp/haproxy-stats"
	DefaultGmetric    = "gmetric"
	DefaultTimeoutSec = 5
)

type Global struct {
	LogLevel string `yaml:"log_level" toml:"log_level"`
}

type SourceConfig struct {
	SocketPath string `yaml:"socket_path" toml:"socket_path"`
	TimeoutSec int    `yaml:"timeout_sec" toml:"timeout_sec"`
	// StatsFile, when set, replaces the socket with a CSV dump on disk.
	StatsFile  string `yaml:"stats_file" toml:"stats_file"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir" toml:"data_dir"`
}

type EmitterConfig struct {
	Binary      string `yaml:"binary" toml:"binary"`
	TTL         int    `yaml:"ttl" toml:"ttl"`
	DryRun      bool   `yaml:"dry_run" toml:"dry_run"`
	ResetPolicy string `yaml:"reset_policy" toml:"reset_policy"`
}

type Config struct {
	Global  Global        `yaml:"global" toml:"global"`
	Source  SourceConfig  `yaml:"source" toml:"source"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Emitter EmitterConfig `yaml:"emitter" toml:"emitter"`
}

func DefaultConfig() *Config {
	return &Config{
		Global: Global{LogLevel: "info"},
		Source: SourceConfig{
			SocketPath: DefaultSocketPath,
			TimeoutSec: DefaultTimeoutSec,
		},
		Storage: StorageConfig{DataDir: DefaultDataDir},
		Emitter: EmitterConfig{
			Binary:      DefaultGmetric,
			TTL:         DefaultTTL,
			ResetPolicy: string(ResetClamp),
		},
	}
}

// LoadConfig reads a .toml or .yaml file. Settings left out of the file take
// the values of DefaultConfig.
func LoadConfig(filePath string) (*Config, error) {
	file, err := ioutil.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	config := &Config{}
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".toml":
		err = toml.Unmarshal(file, config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(file, config)
	default:
		return nil, errors.Errorf("unsupported config format: %s", filePath)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse config %s", filePath)
	}
	applyDefaults(config)
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func applyDefaults(config *Config) {
	defaults := DefaultConfig()
	if config.Global.LogLevel == "" {
		config.Global.LogLevel = defaults.Global.LogLevel
	}
	if config.Source.SocketPath == "" {
		config.Source.SocketPath = defaults.Source.SocketPath
	}
	if config.Source.TimeoutSec == 0 {
		config.Source.TimeoutSec = defaults.Source.TimeoutSec
	}
	if config.Storage.DataDir == "" {
		config.Storage.DataDir = defaults.Storage.DataDir
	}
	if config.Emitter.Binary == "" {
		config.Emitter.Binary = defaults.Emitter.Binary
	}
	if config.Emitter.TTL == 0 {
		config.Emitter.TTL = defaults.Emitter.TTL
	}
	if config.Emitter.ResetPolicy == "" {
		config.Emitter.ResetPolicy = defaults.Emitter.ResetPolicy
	}
}

func validateConfig(config *Config) error {
	if _, err := ParseResetPolicy(config.Emitter.ResetPolicy); err != nil {
		return err
	}
	if config.Emitter.TTL <= 0 {
		return errors.Errorf("emitter ttl must be positive, got %d", config.Emitter.TTL)
	}
	if config.Source.TimeoutSec <= 0 {
		return errors.Errorf("source timeout_sec must be positive, got %d", config.Source.TimeoutSec)
	}
	if config.Source.SocketPath == "" && config.Source.StatsFile == "" {
		return errors.New("either source socket_path or stats_file is required")
	}
	if config.Storage.DataDir == "" {
		return errors.New("storage data_dir is required")
	}
	return nil
}
