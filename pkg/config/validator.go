package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsMissing reports whether the error is an absent required key.
func (e ValidationError) IsMissing() bool {
	return e.Message == msgRequired
}

// ValidationErrors collects every problem found by Validate so the operator
// sees all missing keys at once.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, err := range v {
		msgs[i] = err.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Missing returns the credential keys reported as absent.
func (v ValidationErrors) Missing() []string {
	var keys []string
	for _, err := range v {
		if err.IsMissing() {
			keys = append(keys, err.Field)
		}
	}
	return keys
}

const msgRequired = "is required"

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	required := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			errors = append(errors, ValidationError{Field: key, Message: msgRequired})
		}
	}

	// Validate store config
	switch c.Store.Backend {
	case BackendREST:
		required(KeySupabaseURL, c.Store.URL)
		required(KeyServiceRoleKey, c.Store.ServiceKey)
		if c.Store.URL != "" {
			if u, err := url.Parse(c.Store.URL); err != nil || u.Scheme == "" || u.Host == "" {
				errors = append(errors, ValidationError{
					Field:   KeySupabaseURL,
					Message: "invalid store URL",
				})
			}
		}
	case BackendPostgres:
		required(KeyDatabaseURL, c.Store.DatabaseURL)
	default:
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown backend %q (want rest or postgres)", c.Store.Backend),
		})
	}

	if c.Store.PageSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "store.page_size",
			Message: "page_size must be positive",
		})
	}

	if c.Store.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "store.timeout",
			Message: "timeout must not be negative",
		})
	}

	// Validate embedder config
	switch c.Embedder.Provider {
	case "openai":
	case "fastembed", "ollama":
		// Only the openai provider defaults to the multilingual e5 model.
		if strings.TrimSpace(c.Embedder.Model) == "" {
			errors = append(errors, ValidationError{
				Field:   "embedder.model",
				Message: fmt.Sprintf("must be set explicitly for provider %s", c.Embedder.Provider),
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "embedder.provider",
			Message: fmt.Sprintf("unknown provider %q (want openai, fastembed or ollama)", c.Embedder.Provider),
		})
	}

	if c.Embedder.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedder.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Embedder.Dimension < 0 {
		errors = append(errors, ValidationError{
			Field:   "embedder.dimension",
			Message: "dimension must not be negative",
		})
	}

	// Validate sync config
	if c.Sync.ReportInterval < 1 {
		errors = append(errors, ValidationError{
			Field:   "sync.report_interval",
			Message: "report_interval must be positive",
		})
	}

	if c.Sync.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "sync.max_attempts",
			Message: "max_attempts must be positive",
		})
	}

	if c.Sync.WriteRate < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.write_rate",
			Message: "write_rate must not be negative",
		})
	}

	return errors
}
