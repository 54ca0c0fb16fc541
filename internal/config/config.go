package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location, overridable via CONFIG_PATH.
const ConfigPath = "configs/config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseDSN string `yaml:"databaseDSN"`

	DefaultShopID      string `yaml:"defaultShopID"`
	RetrieverIndexPath string `yaml:"retrieverIndexPath"`
	BooksSeedPath      string `yaml:"booksSeedPath"`

	LLMBaseURL     string  `yaml:"llmBaseURL"`
	LLMAPIKey      string  `yaml:"llmAPIKey"`
	LLMModel       string  `yaml:"llmModel"`
	LLMTemperature float64 `yaml:"llmTemperature"`
	LLMTopP        float64 `yaml:"llmTopP"`

	RedisAddr         string `yaml:"redisAddr"`
	RedisPassword     string `yaml:"redisPassword"`
	ChatRatePerMinute int    `yaml:"chatRatePerMinute"`
}

// Load reads config from path (defaults to ConfigPath, then CONFIG_PATH env).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
		if v := os.Getenv("CONFIG_PATH"); v != "" {
			path = v
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables.
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLMBaseURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.DefaultShopID == "" {
		cfg.DefaultShopID = "shop_books_1"
	}
	if cfg.RetrieverIndexPath == "" {
		cfg.RetrieverIndexPath = "data/retriever_index.json"
	}
	if cfg.LLMTemperature == 0 {
		cfg.LLMTemperature = 0.2
	}
	if cfg.LLMTopP == 0 {
		cfg.LLMTopP = 0.9
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: databaseDSN is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.LLMBaseURL != "" && cfg.LLMModel == "" {
		return errors.New("config: llmModel is required when llmBaseURL is set")
	}
	return nil
}
