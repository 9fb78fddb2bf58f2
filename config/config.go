package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config selects the store backend, the responder provider and the serving
// options. Values come from an optional YAML file with environment
// overrides on top.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Store struct {
		Backend      string        `yaml:"backend"` // dynamo, sqlite or memory
		Endpoint     string        `yaml:"endpoint"`
		Region       string        `yaml:"region"`
		TablePrefix  string        `yaml:"table_prefix"`
		Path         string        `yaml:"path"`
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"store"`

	Responder struct {
		Provider string `yaml:"provider"` // gemini or openai
		Model    string `yaml:"model"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"responder"`

	Cleaner struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"cleaner"`

	Locale string `yaml:"locale"` // ja or en
	UserID string `yaml:"user_id"`
}

func Default() Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Store.Backend = "dynamo"
	cfg.Store.Endpoint = "http://localhost:8000"
	cfg.Store.Region = "us-east-1"
	cfg.Store.Path = "matcha.db"
	cfg.Store.PollInterval = 2 * time.Second
	cfg.Responder.Provider = "gemini"
	cfg.Cleaner.Interval = 10 * time.Minute
	cfg.Locale = "ja"
	cfg.UserID = "anonUser"
	return cfg
}

// Load reads the YAML file when it exists and applies env overrides. A
// missing file is not an error; the defaults serve the local dev setup.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if v := os.Getenv("MATCHA_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("MATCHA_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("MATCHA_STORE_ENDPOINT"); v != "" {
		cfg.Store.Endpoint = v
	}
	if v := os.Getenv("MATCHA_RESPONDER"); v != "" {
		cfg.Responder.Provider = v
	}
	if v := os.Getenv("MATCHA_LOCALE"); v != "" {
		cfg.Locale = v
	}
	if v := os.Getenv("MATCHA_USER_ID"); v != "" {
		cfg.UserID = v
	}
	return cfg, nil
}

func GetOpenAIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func GetGeminiKey() string {
	return os.Getenv("GEMINI_API_KEY")
}
