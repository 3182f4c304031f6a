package embedding

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
)

// ErrUnavailable is returned whenever the pipeline cannot currently
// serve an embedding — either still loading, or the circuit breaker
// has opened after repeated failures. Callers (hybrid search) treat
// this as "vector term unavailable," never as a hard failure.
var ErrUnavailable = errors.New("embedding: pipeline unavailable")

// Pipeline lazily initializes an Embedder on first use, coalescing
// concurrent first callers onto a single load via singleflight, and
// wraps calls in a circuit breaker so a sick embedder degrades
// gracefully instead of being retried on every request.
type Pipeline struct {
	newEmbedder func() (Embedder, error)

	once     sync.Once
	initErr  error
	embedder Embedder

	group   singleflight.Group
	breaker *gobreaker.CircuitBreaker[[]float32]
}

// NewPipeline builds a Pipeline around a constructor function so
// initialization (e.g. loading model weights) is deferred until the
// first Embed call.
func NewPipeline(newEmbedder func() (Embedder, error)) *Pipeline {
	p := &Pipeline{newEmbedder: newEmbedder}
	p.breaker = gobreaker.NewCircuitBreaker[[]float32](gobreaker.Settings{
		Name:        "embedding-pipeline",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return p
}

// Default returns a Pipeline backed by the built-in HashedBoW encoder.
func Default() *Pipeline {
	return NewPipeline(func() (Embedder, error) { return HashedBoW{}, nil })
}

func (p *Pipeline) ensureLoaded() error {
	p.once.Do(func() {
		p.embedder, p.initErr = p.newEmbedder()
	})
	return p.initErr
}

// Embed computes the embedding for text, coalescing concurrent first
// calls and tripping the circuit breaker open after repeated failure.
// On any failure it returns ErrUnavailable so callers can degrade.
func (p *Pipeline) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.ensureLoaded(); err != nil {
		return nil, ErrUnavailable
	}

	key := text
	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		vec, err := p.breaker.Execute(func() ([]float32, error) {
			return p.embedder.Embed(ctx, text)
		})
		return vec, err
	})
	if err != nil {
		return nil, ErrUnavailable
	}
	return v.([]float32), nil
}

// Available reports whether the pipeline is currently able to serve
// requests (loaded and circuit closed/half-open).
func (p *Pipeline) Available() bool {
	if err := p.ensureLoaded(); err != nil {
		return false
	}
	return p.breaker.State() != gobreaker.StateOpen
}
