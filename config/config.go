package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"studyrag/internal/domain"
)

// Config holds all configuration for studyrag.
type Config struct {
	Chunking  ChunkingConfig  `yaml:"chunking" toml:"chunking"`
	Retrieve  RetrieveConfig  `yaml:"retrieve" toml:"retrieve"`
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	LLM       LLMConfig       `yaml:"llm" toml:"llm"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Ingest    IngestConfig    `yaml:"ingest" toml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Study     StudyConfig     `yaml:"study" toml:"study"`
}

// ChunkingConfig sizes are in characters (runes).
type ChunkingConfig struct {
	ChunkSize int `yaml:"chunk_size" toml:"chunk_size" validate:"gt=0,gtfield=Overlap"`
	Overlap   int `yaml:"overlap" toml:"overlap" validate:"gte=0"`
}

type RetrieveConfig struct {
	TopK         int  `yaml:"top_k" toml:"top_k" validate:"min=1"`
	Stopwords    bool `yaml:"stopwords" toml:"stopwords"` // drop English stopwords before lexical scoring
	PreviewChars int  `yaml:"preview_chars" toml:"preview_chars" validate:"gte=0"`
}

type EmbeddingConfig struct {
	Provider  string        `yaml:"provider" toml:"provider" validate:"oneof=hash openai ollama none"`
	Model     string        `yaml:"model" toml:"model"`             // e.g., "text-embedding-3-small"
	APIKeyEnv string        `yaml:"api_key_env" toml:"api_key_env"` // Environment variable for API key
	BaseURL   string        `yaml:"base_url" toml:"base_url"`
	Dimension int           `yaml:"dimension" toml:"dimension" validate:"gte=0"` // 0 uses the provider's default
	CacheSize int           `yaml:"cache_size" toml:"cache_size" validate:"gte=0"`
	CacheTTL  time.Duration `yaml:"cache_ttl" toml:"cache_ttl"`
}

type LLMConfig struct {
	Provider          string        `yaml:"provider" toml:"provider" validate:"oneof=echo openai deepseek local"`
	Model             string        `yaml:"model" toml:"model"`
	APIKeyEnv         string        `yaml:"api_key_env" toml:"api_key_env"`
	BaseURL           string        `yaml:"base_url" toml:"base_url"`
	MaxTokens         int           `yaml:"max_tokens" toml:"max_tokens" validate:"gte=0"`
	Temperature       float32       `yaml:"temperature" toml:"temperature" validate:"gte=0,lte=2"`
	Timeout           time.Duration `yaml:"timeout" toml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute" toml:"requests_per_minute" validate:"gte=0"` // 0 disables pacing
}

type StoreConfig struct {
	Documents  string      `yaml:"documents" toml:"documents" validate:"oneof=memory bolt sqlite"`
	Sessions   string      `yaml:"sessions" toml:"sessions" validate:"oneof=memory bolt sqlite redis"`
	BoltPath   string      `yaml:"bolt_path" toml:"bolt_path"` // relative paths resolve against the data dir
	SQLitePath string      `yaml:"sqlite_path" toml:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis" toml:"redis"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" toml:"addr"`
	Password string        `yaml:"password" toml:"password"`
	DB       int           `yaml:"db" toml:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix" toml:"prefix"`
	Timeout  time.Duration `yaml:"timeout" toml:"timeout"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr" toml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" toml:"max_upload_bytes" validate:"gte=0"`
}

type IngestConfig struct {
	Includes []string `yaml:"includes" toml:"includes"`
	Excludes []string `yaml:"excludes" toml:"excludes"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format" validate:"omitempty,oneof=console json"`
}

type StudyConfig struct {
	SummaryInputChars int `yaml:"summary_input_chars" toml:"summary_input_chars" validate:"gte=0"`
	QuizContextChars  int `yaml:"quiz_context_chars" toml:"quiz_context_chars" validate:"gte=0"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			ChunkSize: 1000,
			Overlap:   200,
		},
		Retrieve: RetrieveConfig{
			TopK:         3,
			Stopwords:    true,
			PreviewChars: 200,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			CacheSize: 512,
			CacheTTL:  10 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:    "echo",
			Model:       "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxTokens:   1024,
			Temperature: 0.3,
			Timeout:     60 * time.Second,
		},
		Store: StoreConfig{
			Documents:  "bolt",
			Sessions:   "bolt",
			BoltPath:   "studyrag.db",
			SQLitePath: "studyrag.sqlite",
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Prefix:  "studyrag",
				Timeout: 3 * time.Second,
			},
		},
		Server: ServerConfig{
			Addr:           ":8000",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   120 * time.Second,
			MaxUploadBytes: 10 << 20,
		},
		Ingest: IngestConfig{
			Includes: []string{"**/*.txt", "**/*.md", "**/*.markdown", "**/*.rst"},
			Excludes: []string{"**/.git/**", "**/node_modules/**", "**/.studyrag/**"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Study: StudyConfig{
			SummaryInputChars: 12000,
			QuizContextChars:  12000,
		},
	}
}

var validate = newValidator()

// newValidator reports fields by their file keys, e.g. "chunking.overlap".
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate rejects settings the pipeline cannot honor. Nothing is corrected.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}
	msgs := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		msgs[i] = describe(fe)
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfiguration, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "gtfield":
		return fmt.Sprintf("%s (%v) must be greater than %s", field, fe.Value(), strings.ToLower(fe.Param()))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s, got %v", field, fe.Param(), fe.Value())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s, got %v", field, fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be at most %s, got %v", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}

// Load loads configuration from a YAML file, or TOML when path ends in .toml.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir looks for studyrag.yaml, studyrag.toml, then .studyrag/config.yaml.
func LoadFromDir(dir string) (*Config, error) {
	for _, path := range []string{
		filepath.Join(dir, "studyrag.yaml"),
		filepath.Join(dir, "studyrag.toml"),
		filepath.Join(dir, ".studyrag", "config.yaml"),
	} {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return DefaultConfig(), nil
}

// Save writes the configuration in the format implied by the extension.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(c)
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// DBPath resolves the bolt file location for a data directory.
func (c *Config) DBPath(dir string) string {
	return resolve(dir, c.Store.BoltPath)
}

// SQLiteDBPath resolves the sqlite file location for a data directory.
func (c *Config) SQLiteDBPath(dir string) string {
	return resolve(dir, c.Store.SQLitePath)
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, ".studyrag", path)
}

// EnsureDataDir ensures the .studyrag directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".studyrag"), 0755)
}
