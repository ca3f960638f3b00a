// Package config loads the pipeline configuration. The main file is read
// through viper (with defaults and HSIE_ env overrides); standalone weighting
// files for the score command are plain YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Service struct {
	URL string `mapstructure:"url"`
}

type Services struct {
	ASR         Service `mapstructure:"asr"`
	Diarization Service `mapstructure:"diarization"`
	Acoustic    Service `mapstructure:"acoustic"`
	Semantic    Service `mapstructure:"semantic"`
	Linguistic  Service `mapstructure:"linguistic"`
	TimeoutSec  int     `mapstructure:"timeout_seconds"`
}

type Diarization struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

type Analysis struct {
	Workers    int               `mapstructure:"workers"`
	TimeoutSec int               `mapstructure:"timeout_seconds"`
	Analyzers  []string          `mapstructure:"analyzers"`
	Versions   map[string]string `mapstructure:"versions"`
}

type Scoring struct {
	Weights       map[string]float64 `mapstructure:"weights"`
	SeverityFloor float64            `mapstructure:"severity_floor"`
	Escalation    float64            `mapstructure:"escalation"`
	MaxBoost      float64            `mapstructure:"max_boost"`
}

type Root struct {
	Pipeline struct {
		Name     string `mapstructure:"name"`
		Version  string `mapstructure:"version"`
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"pipeline"`
	Store struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"store"`
	Services    Services    `mapstructure:"services"`
	Diarization Diarization `mapstructure:"diarization"`
	Analysis    Analysis    `mapstructure:"analysis"`
	Scoring     Scoring     `mapstructure:"scoring"`
}

// Load reads the configuration file at path, or searches ./hsie.yaml and
// ./config/hsie.yaml when path is empty. A missing file is fine during
// search: defaults plus environment cover everything but service URLs.
func Load(path string) (*Root, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hsie")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
	}
	v.SetEnvPrefix("HSIE")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.name", "hsie")
	v.SetDefault("pipeline.log_level", "info")
	v.SetDefault("store.path", "hsie.db")
	v.SetDefault("services.timeout_seconds", 60)
	v.SetDefault("diarization.confidence_threshold", 0.6)
	v.SetDefault("analysis.workers", 4)
	v.SetDefault("analysis.timeout_seconds", 30)
	v.SetDefault("analysis.analyzers", []string{"acoustic", "semantic", "linguistic"})
	v.SetDefault("scoring.weights", map[string]float64{
		"acoustic":   1.0 / 3,
		"semantic":   1.0 / 3,
		"linguistic": 1.0 / 3,
	})
	v.SetDefault("scoring.severity_floor", 0.7)
	v.SetDefault("scoring.escalation", 0.25)
	v.SetDefault("scoring.max_boost", 2.0)
}

// LoadWeights decodes a standalone dimension→weight YAML mapping, used by
// `score --weights` to override the configured weighting.
func LoadWeights(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open weights file: %w", err)
	}
	defer f.Close()

	var w map[string]float64
	if err := yaml.NewDecoder(f).Decode(&w); err != nil {
		return nil, fmt.Errorf("decode weights file %s: %w", path, err)
	}
	return w, nil
}

func DurSeconds(n int) time.Duration { return time.Duration(n) * time.Second }
