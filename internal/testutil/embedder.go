// Package testutil holds deterministic fakes of the external capabilities
// used across package tests.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math"
	"sync"

	"github.com/dshills/contextchunk-mcp/internal/embedder"
)

// ErrInjected is returned by fakes configured to fail
var ErrInjected = errors.New("injected failure")

// FakeEmbedder generates deterministic vectors from a hash of the text.
// Vectors registered with Set take precedence.
type FakeEmbedder struct {
	dimension int

	mu      sync.Mutex
	fixed   map[string][]float32
	batches [][]string
	failOn  map[int]error // 1-based batch call number
}

// NewFakeEmbedder creates a fake embedder
func NewFakeEmbedder(dimension int) *FakeEmbedder {
	return &FakeEmbedder{
		dimension: dimension,
		fixed:     make(map[string][]float32),
		failOn:    make(map[int]error),
	}
}

// Set pins the vector returned for text
func (m *FakeEmbedder) Set(text string, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixed[text] = vector
}

// FailOnCall makes the n-th GenerateBatch call (1-based) return err
func (m *FakeEmbedder) FailOnCall(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[n] = err
}

// Batches returns the texts of every GenerateBatch call so far
func (m *FakeEmbedder) Batches() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.batches))
	copy(out, m.batches)
	return out
}

// Calls returns the number of GenerateBatch calls so far
func (m *FakeEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

// EmbeddedTexts returns the number of texts embedded so far
func (m *FakeEmbedder) EmbeddedTexts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func (m *FakeEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	if err := embedder.ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &embedder.Embedding{
		Vector:    m.vector(req.Text),
		Dimension: m.dimension,
		Provider:  "fake",
		Model:     "fake-v1",
	}, nil
}

func (m *FakeEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	if err := embedder.ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.batches = append(m.batches, append([]string(nil), req.Texts...))
	err := m.failOn[len(m.batches)]
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	embeddings := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		embeddings[i] = &embedder.Embedding{
			Vector:    m.vector(text),
			Dimension: m.dimension,
			Provider:  "fake",
			Model:     "fake-v1",
		}
	}
	return &embedder.BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   "fake",
		Model:      "fake-v1",
	}, nil
}

func (m *FakeEmbedder) vector(text string) []float32 {
	m.mu.Lock()
	fixed, ok := m.fixed[text]
	m.mu.Unlock()
	if ok {
		return append([]float32(nil), fixed...)
	}
	return HashVector(text, m.dimension)
}

func (m *FakeEmbedder) Dimension() int   { return m.dimension }
func (m *FakeEmbedder) Provider() string { return "fake" }
func (m *FakeEmbedder) Model() string    { return "fake-v1" }
func (m *FakeEmbedder) Close() error     { return nil }

// HashVector derives a unit vector from the SHA-256 of text
func HashVector(text string, dimension int) []float32 {
	hash := sha256.Sum256([]byte(text))
	vector := make([]float32, dimension)
	var sum float64
	for i := range vector {
		idx := (i * 4) % 32
		val := binary.BigEndian.Uint32(hash[idx : idx+4])
		// Spread later dimensions so they are not copies of the first eight
		val ^= uint32(i) * 2654435761
		vector[i] = (float32(val)/float32(math.MaxUint32))*2 - 1
		sum += float64(vector[i]) * float64(vector[i])
	}
	if sum > 0 {
		norm := float32(math.Sqrt(sum))
		for i := range vector {
			vector[i] /= norm
		}
	}
	return vector
}
