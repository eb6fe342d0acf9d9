package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "AFFECT"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Scorer    ScorerConfig    `mapstructure:"scorer"`
	ASR       ASRConfig       `mapstructure:"asr"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

type PipelineConfig struct {
	Workers           int           `mapstructure:"workers"`
	QueueSize         int           `mapstructure:"queue_size"`
	ProcessingTimeout time.Duration `mapstructure:"processing_timeout"`
}

type AudioConfig struct {
	TargetSampleRate int `mapstructure:"target_sample_rate"`
	// TopDB is how far below the peak a frame may fall before it counts as silence.
	TopDB           float64 `mapstructure:"top_db"`
	MinDuration     float64 `mapstructure:"min_duration"`
	ResampleQuality int     `mapstructure:"resample_quality"`
}

type TranscodeConfig struct {
	Binary  string        `mapstructure:"binary"`
	Timeout time.Duration `mapstructure:"timeout"`
	TempDir string        `mapstructure:"temp_dir"`
}

type ScorerConfig struct {
	URL       string        `mapstructure:"url"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Threshold float64       `mapstructure:"threshold"`
}

type ASRConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.max_upload_bytes", 32<<20)

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_size", 100)
	v.SetDefault("pipeline.processing_timeout", 2*time.Minute)

	v.SetDefault("audio.target_sample_rate", 16000)
	v.SetDefault("audio.top_db", 25.0)
	v.SetDefault("audio.min_duration", 0.4)
	v.SetDefault("audio.resample_quality", 4)

	v.SetDefault("transcode.binary", "ffmpeg")
	v.SetDefault("transcode.timeout", 60*time.Second)
	v.SetDefault("transcode.temp_dir", "")

	v.SetDefault("scorer.url", "http://localhost:5005")
	v.SetDefault("scorer.model", "superb/hubert-base-superb-er")
	v.SetDefault("scorer.timeout", 30*time.Second)
	v.SetDefault("scorer.threshold", 0.50)

	v.SetDefault("asr.url", "http://localhost:5006")
	v.SetDefault("asr.timeout", 2*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load builds the configuration from defaults, an optional YAML file and
// AFFECT_* environment variables, in increasing order of precedence. A .env
// file in the working directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.Workers < 1 {
		errs = append(errs, errors.New("pipeline.workers must be at least 1"))
	}
	if c.Pipeline.QueueSize < 1 {
		errs = append(errs, errors.New("pipeline.queue_size must be at least 1"))
	}
	if c.Audio.TargetSampleRate <= 0 {
		errs = append(errs, errors.New("audio.target_sample_rate must be positive"))
	}
	if c.Audio.ResampleQuality < 1 || c.Audio.ResampleQuality > 64 {
		errs = append(errs, errors.New("audio.resample_quality must be within [1, 64]"))
	}
	if c.Scorer.Threshold < 0 || c.Scorer.Threshold > 1 {
		errs = append(errs, errors.New("scorer.threshold must be within [0, 1]"))
	}
	if c.Scorer.URL == "" {
		errs = append(errs, errors.New("scorer.url is required"))
	}
	return errors.Join(errs...)
}
