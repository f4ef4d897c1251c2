package config

import (
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const defaultFileName = "memory.jsonl"

type Config struct {
	Log    Log    `yaml:"log"`
	Store  Store  `yaml:"store"`
	Search Search `yaml:"search"`
}

type Log struct {
	// Minimum log level: debug, info, warn or error
	Level string `yaml:"level" env:"LOG_LEVEL" example:"info" validate:"oneof=debug info warn error"`
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" env:"GRAPHMEM_TELEGRAM_TOKEN" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" env:"GRAPHMEM_TELEGRAM_CHAT_ID" example:"1001234567890"`
}

type Store struct {
	// Path to the durable graph file. A relative path is resolved against
	// the executable's directory, not the working directory.
	FilePath string `yaml:"file_path" env:"MEMORY_FILE_PATH" example:"memory.jsonl"`
	// Disable internal locking when the caller serializes access itself
	DisableLocking bool `yaml:"disable_locking" env:"STORE_DISABLE_LOCKING" example:"false"`
}

// Search holds relevance weight overrides. A zero weight keeps the built-in
// default.
type Search struct {
	NameWeight             float64 `yaml:"name_weight" env:"SEARCH_NAME_WEIGHT" example:"2.0" validate:"gte=0"`
	TypeWeight             float64 `yaml:"type_weight" env:"SEARCH_TYPE_WEIGHT" example:"1.5" validate:"gte=0"`
	ObservationWeight      float64 `yaml:"observation_weight" env:"SEARCH_OBSERVATION_WEIGHT" example:"1.0" validate:"gte=0"`
	ObservationCountWeight float64 `yaml:"observation_count_weight" env:"SEARCH_OBSERVATION_COUNT_WEIGHT" example:"0.5" validate:"gte=0"`
	ConnectivityWeight     float64 `yaml:"connectivity_weight" env:"SEARCH_CONNECTIVITY_WEIGHT" example:"0.3" validate:"gte=0"`
}

// Load assembles the config from an optional YAML file, then environment
// overrides. A missing file is fine, the env vars alone are enough.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var result Config

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		if err = yaml.Unmarshal(data, &result); err != nil {
			return nil, oops.Errorf("failed to parse YAML config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	if err = env.Parse(&result); err != nil {
		return nil, oops.Errorf("failed to parse env config: %w", err)
	}

	if result.Log.Level == "" {
		result.Log.Level = "info"
	}
	if result.Store.FilePath == "" {
		result.Store.FilePath = defaultFileName
	}

	result.Store.FilePath = resolvePath(result.Store.FilePath)

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

// resolvePath anchors a relative store path at the executable's directory,
// so the durable file does not move with the working directory.
func resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	exe, err := os.Executable()
	if err != nil {
		return path
	}

	return filepath.Join(filepath.Dir(exe), path)
}
