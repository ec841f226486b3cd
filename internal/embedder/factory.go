package embedder

import (
	"fmt"
	"os"
	"strings"
)

// EnvProvider selects the provider explicitly
const EnvProvider = "CONTEXTCHUNK_EMBEDDING_PROVIDER"

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	Endpoint  string
	Dimension int          // local provider only
	Retry     *RetryConfig // remote providers; nil uses DefaultRetryConfig
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. CONTEXTCHUNK_EMBEDDING_PROVIDER (jina, openai, local)
// 2. Check for API keys: JINA_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv() (Embedder, error) {
	return New(Config{Provider: DetectProvider()})
}

// New creates an embedder with explicit configuration. An empty APIKey is
// read from the provider's environment variable.
func New(cfg Config) (Embedder, error) {
	opts := ProviderOptions{Model: cfg.Model, Endpoint: cfg.Endpoint, Retry: cfg.Retry}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderJina:
		return NewJinaProvider(keyOrEnv(cfg.APIKey, EnvJinaAPIKey), opts)
	case ProviderOpenAI:
		return NewOpenAIProvider(keyOrEnv(cfg.APIKey, EnvOpenAIAPIKey), opts)
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimension)
	case "":
		cfg.Provider = DetectProvider()
		return New(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}

func keyOrEnv(key, env string) string {
	if key != "" {
		return key
	}
	return os.Getenv(env)
}
