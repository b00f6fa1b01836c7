package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Credential keys read from the env file or the process environment.
const (
	KeySupabaseURL     = "SUPABASE_URL"
	KeyServiceRoleKey  = "SUPABASE_SERVICE_ROLE_KEY"
	KeyDatabaseURL     = "DATABASE_URL"
	KeyEmbeddingAPIKey = "EMBEDDING_API_KEY"
	KeyOpenAIAPIKey    = "OPENAI_API_KEY"
)

const (
	BackendREST     = "rest"
	BackendPostgres = "postgres"
)

type Config struct {
	Store struct {
		Backend        string        `yaml:"backend"`
		URL            string        `yaml:"-"`
		ServiceKey     string        `yaml:"-"`
		DatabaseURL    string        `yaml:"-"`
		ChunksTable    string        `yaml:"chunks_table"`
		DocumentsTable string        `yaml:"documents_table"`
		PageSize       int           `yaml:"page_size"`
		Timeout        time.Duration `yaml:"timeout"`
	} `yaml:"store"`

	Embedder struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"-"`
		CacheDir  string `yaml:"cache_dir"`
		BatchSize int    `yaml:"batch_size"`
		Dimension int    `yaml:"dimension"`
		MaxLength int    `yaml:"max_length"`
	} `yaml:"embedder"`

	Sync struct {
		ReportInterval int           `yaml:"report_interval"`
		MaxAttempts    int           `yaml:"max_attempts"`
		RetryDelay     time.Duration `yaml:"retry_delay"`
		WriteRate      float64       `yaml:"write_rate"`
	} `yaml:"sync"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// ReadEnvFile reads KEY=VALUE pairs from path. A missing file yields an empty
// map rather than an error. Lines are filtered by envLines before godotenv
// parses them.
func ReadEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("error reading env file %s: %w", path, err)
	}

	values, err := godotenv.Unmarshal(envLines(string(data)))
	if err != nil {
		return nil, fmt.Errorf("error parsing env file %s: %w", path, err)
	}
	return values, nil
}

// envLines keeps the KEY=VALUE lines of an env file. Blank lines, lines whose
// first non-blank character is '#', lines without '=' and lines whose key is
// not a single word are dropped. An unquoted value containing " #" is wrapped
// in single quotes so godotenv does not cut it at the inline comment.
func envLines(data string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		if key == "" || strings.ContainsAny(key, " \t") {
			continue
		}

		value = strings.TrimSpace(value)
		quoted := strings.HasPrefix(value, `"`) || strings.HasPrefix(value, "'")
		if !quoted && inlineComment(value) && !strings.Contains(value, "'") {
			value = "'" + value + "'"
		}

		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
		b.WriteByte('\n')
	}
	return b.String()
}

// inlineComment reports whether godotenv would treat part of an unquoted
// value as a comment: a '#' preceded by a space or a tab.
func inlineComment(value string) bool {
	return strings.Contains(value, " #") || strings.Contains(value, "\t#")
}

// LoadConfig assembles the configuration from defaults, the optional YAML
// tuning file, the env file and the process environment, in increasing order
// of precedence. overrides run last, before validation; the CLI uses them for
// flags. Validation failures are returned as ValidationErrors.
func LoadConfig(envPath, yamlPath string, overrides ...func(*Config)) (*Config, error) {
	config := &Config{}

	if yamlPath == "" {
		locations := []string{
			"embedsync.yaml",
			"embedsync.yml",
			filepath.Join(os.Getenv("HOME"), ".config/embedsync/config.yaml"),
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				yamlPath = loc
				break
			}
		}
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	applyDefaults(config)

	env, err := ReadEnvFile(envPath)
	if err != nil {
		return nil, err
	}
	mergeCredentials(config, env)
	mergeWithEnv(config)

	for _, override := range overrides {
		override(config)
	}

	if errs := config.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return config, nil
}

func applyDefaults(config *Config) {
	if config.Store.Backend == "" {
		config.Store.Backend = BackendREST
	}
	if config.Store.ChunksTable == "" {
		config.Store.ChunksTable = "norm_chunks"
	}
	if config.Store.DocumentsTable == "" {
		config.Store.DocumentsTable = "norm_documents"
	}
	if config.Store.PageSize == 0 {
		config.Store.PageSize = 1000
	}
	if config.Store.Timeout == 0 {
		config.Store.Timeout = 30 * time.Second
	}

	if config.Embedder.Provider == "" {
		config.Embedder.Provider = "openai"
	}
	if config.Embedder.BatchSize == 0 {
		config.Embedder.BatchSize = 32
	}
	if config.Embedder.MaxLength == 0 {
		config.Embedder.MaxLength = 512
	}

	if config.Sync.ReportInterval == 0 {
		config.Sync.ReportInterval = 10
	}
	if config.Sync.MaxAttempts == 0 {
		config.Sync.MaxAttempts = 3
	}
	if config.Sync.RetryDelay == 0 {
		config.Sync.RetryDelay = 500 * time.Millisecond
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "console"
	}
}

func mergeCredentials(config *Config, env map[string]string) {
	config.Store.URL = env[KeySupabaseURL]
	config.Store.ServiceKey = env[KeyServiceRoleKey]
	config.Store.DatabaseURL = env[KeyDatabaseURL]

	config.Embedder.APIKey = env[KeyEmbeddingAPIKey]
	if config.Embedder.APIKey == "" {
		config.Embedder.APIKey = env[KeyOpenAIAPIKey]
	}
}

func mergeWithEnv(config *Config) {
	if v := os.Getenv(KeySupabaseURL); v != "" {
		config.Store.URL = v
	}
	if v := os.Getenv(KeyServiceRoleKey); v != "" {
		config.Store.ServiceKey = v
	}
	if v := os.Getenv(KeyDatabaseURL); v != "" {
		config.Store.DatabaseURL = v
	}
	if v := os.Getenv(KeyEmbeddingAPIKey); v != "" {
		config.Embedder.APIKey = v
	} else if v := os.Getenv(KeyOpenAIAPIKey); v != "" && config.Embedder.APIKey == "" {
		config.Embedder.APIKey = v
	}
}
