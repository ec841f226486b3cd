package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/sethvargo/go-retry"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Environment variables holding provider secrets
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-hashing-v1"

	// Endpoints
	JinaEndpoint   = "https://api.jina.ai/v1/embeddings"
	OpenAIEndpoint = "https://api.openai.com/v1/embeddings"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// Retry configuration
	DefaultMaxRetries = 2
	InitialBackoff    = 100 * time.Millisecond
	MaxBackoff        = 5 * time.Second
)

// RetryConfig is the exponential backoff applied to transient provider
// failures
type RetryConfig struct {
	MaxRetries uint64        // retries after the first attempt
	BaseDelay  time.Duration // first backoff, doubled on each retry
	MaxDelay   time.Duration // cap on a single backoff
}

// DefaultRetryConfig returns the provider retry policy
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  InitialBackoff,
		MaxDelay:   MaxBackoff,
	}
}

func (c RetryConfig) backoff() retry.Backoff {
	base := c.BaseDelay
	if base <= 0 {
		base = InitialBackoff
	}
	b := retry.NewExponential(base)
	if c.MaxDelay > 0 {
		b = retry.WithCappedDuration(c.MaxDelay, b)
	}
	return retry.WithMaxRetries(c.MaxRetries, b)
}

// ProviderOptions overrides the defaults of a remote provider
type ProviderOptions struct {
	Model    string
	Endpoint string
	Timeout  time.Duration
	Retry    *RetryConfig
}

// HTTPProvider implements Embedder against an OpenAI-compatible
// /v1/embeddings endpoint. Jina and OpenAI share the wire format.
type HTTPProvider struct {
	name       string
	apiKey     string
	model      string
	endpoint   string
	dimension  atomic.Int64
	extra      map[string]interface{}
	retry      RetryConfig
	httpClient *http.Client
}

// NewJinaProvider creates a Jina AI embedder. jina-embeddings-v3 is
// multilingual and is asked for passage-retrieval vectors.
func NewJinaProvider(apiKey string, opts ProviderOptions) (*HTTPProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}
	p := newHTTPProvider(ProviderJina, apiKey, DefaultJinaModel, JinaEndpoint, JinaDimension, opts)
	p.extra = map[string]interface{}{"task": "retrieval.passage"}
	return p, nil
}

// NewOpenAIProvider creates an OpenAI embedder
func NewOpenAIProvider(apiKey string, opts ProviderOptions) (*HTTPProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}
	return newHTTPProvider(ProviderOpenAI, apiKey, DefaultOpenAIModel, OpenAIEndpoint, OpenAIDimension, opts), nil
}

func newHTTPProvider(name, apiKey, model, endpoint string, dimension int, opts ProviderOptions) *HTTPProvider {
	if opts.Model != "" {
		model = opts.Model
		// A non-default model may have another width; learn it from the first response
		dimension = 0
	}
	if opts.Endpoint != "" {
		endpoint = opts.Endpoint
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rc := DefaultRetryConfig()
	if opts.Retry != nil {
		rc = *opts.Retry
	}
	p := &HTTPProvider{
		name:       name,
		apiKey:     apiKey,
		model:      model,
		endpoint:   endpoint,
		retry:      rc,
		httpClient: &http.Client{Timeout: timeout},
	}
	p.dimension.Store(int64(dimension))
	return p
}

func (p *HTTPProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (p *HTTPProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var embeddings []*Embedding
	err := retry.Do(ctx, p.retry.backoff(), func(ctx context.Context) error {
		var err error
		embeddings, err = p.callAPI(ctx, req.Texts, model)
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderFailed, p.name, err)
	}

	if err := validateResponse(embeddings, len(req.Texts), p.Dimension()); err != nil {
		return nil, err
	}
	p.dimension.CompareAndSwap(0, int64(len(embeddings[0].Vector)))

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   p.name,
		Model:      model,
	}, nil
}

type embeddingAPIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// callAPI makes one request. Transport failures, 429 and 5xx are marked
// retryable; anything else ends the retry loop.
func (p *HTTPProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": model,
	}
	for k, v := range p.extra {
		reqBody[k] = v
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("api call: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, retry.RetryableError(apiErr)
		}
		return nil, apiErr
	}

	var apiResp embeddingAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, retry.RetryableError(fmt.Errorf("decode response: %w", err))
	}

	// Providers may return data out of order; index is authoritative
	sort.SliceStable(apiResp.Data, func(i, j int) bool {
		return apiResp.Data[i].Index < apiResp.Data[j].Index
	})

	if apiResp.Model == "" {
		apiResp.Model = model
	}
	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		embeddings[i] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  p.name,
			Model:     apiResp.Model,
		}
	}

	return embeddings, nil
}

// Dimension returns 0 for a custom model until its first response
func (p *HTTPProvider) Dimension() int {
	return int(p.dimension.Load())
}

func (p *HTTPProvider) Provider() string {
	return p.name
}

func (p *HTTPProvider) Model() string {
	return p.model
}

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider embeds text offline by feature hashing. Lowercased words,
// single CJK runes and CJK bigrams are hashed into a fixed number of signed
// buckets and the result is normalized, so texts sharing vocabulary score a
// higher cosine similarity. It needs no network and is fully deterministic.
type LocalProvider struct {
	model     string
	dimension int
}

// NewLocalProvider creates the offline embedder. dimension <= 0 selects
// LocalDimension.
func NewLocalProvider(dimension int) (*LocalProvider, error) {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{
		model:     DefaultLocalModel,
		dimension: dimension,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Embedding{
		Vector:    l.embed(req.Text),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     l.model,
	}, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) embed(text string) []float32 {
	vector := make([]float32, l.dimension)
	for _, feature := range features(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(feature))
		sum := h.Sum64()
		bucket := int(sum % uint64(l.dimension))
		if sum>>63 == 1 {
			vector[bucket]--
		} else {
			vector[bucket]++
		}
	}
	return NormalizeVector(vector)
}

// features returns the hashed vocabulary of text
func features(text string) []string {
	var out []string
	var word []rune
	var prevCJK rune

	flush := func() {
		if len(word) > 0 {
			out = append(out, "w:"+string(word))
			word = word[:0]
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul):
			flush()
			out = append(out, "c:"+string(r))
			if prevCJK != 0 {
				out = append(out, "b:"+string([]rune{prevCJK, r}))
			}
			prevCJK = r
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word = append(word, r)
		default:
			flush()
		}
		prevCJK = 0
	}
	flush()

	if len(out) == 0 {
		// Punctuation-only text still needs a stable non-zero vector
		out = append(out, "t:"+strings.TrimSpace(text))
	}
	return out
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}
