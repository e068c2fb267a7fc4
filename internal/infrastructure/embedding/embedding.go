// Package embedding produces dense vectors for text via a primary provider
// with an optional fallback.
package embedding

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/aria-ai/aria/pkg/errors"
)

// ErrDimensionMismatch marks a provider returning vectors of a length
// other than the configured dimension. Unlike a transport failure this
// means the configuration is wrong, and startup treats it as fatal.
var ErrDimensionMismatch = stderrors.New("embedding dimension mismatch")

// Provider generates embedding vectors.
type Provider interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Service tries the primary provider first and falls back to the secondary
// on any failure. Vector length is checked against the configured dimension
// on every response; a mismatch is an error, not a silent truncation.
type Service struct {
	primary   Provider
	fallback  Provider // may be nil
	dimension int
	batchSize int
	logger    *zap.Logger
}

// NewService builds the embedding service. fallback may be nil.
func NewService(primary, fallback Provider, dimension, batchSize int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Service{
		primary:   primary,
		fallback:  fallback,
		dimension: dimension,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Dimension returns the configured vector dimension D.
func (s *Service) Dimension() int { return s.dimension }

// Probe embeds a short text to verify the provider is reachable and its
// dimension matches the configured D. Called once at startup; a mismatch
// surfaces as ErrDimensionMismatch and is fatal, an unreachable provider
// is not.
func (s *Service) Probe(ctx context.Context) error {
	_, err := s.Embed(ctx, "dimension probe")
	return err
}

// Embed produces one vector of length D.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.primary.Embed(ctx, text)
	if err == nil {
		return s.check(vec)
	}

	if s.fallback == nil {
		return nil, errors.Wrap(errors.CodeServiceUnavail,
			fmt.Sprintf("embedding provider %s failed and no fallback configured", s.primary.Name()), err)
	}

	s.logger.Warn("Primary embedding provider failed, using fallback",
		zap.String("primary", s.primary.Name()),
		zap.String("fallback", s.fallback.Name()),
		zap.Error(err),
	)

	vec, ferr := s.fallback.Embed(ctx, text)
	if ferr != nil {
		return nil, errors.Wrap(errors.CodeServiceUnavail,
			fmt.Sprintf("both embedding providers failed (%s: %v)", s.primary.Name(), err), ferr)
	}
	return s.check(vec)
}

// EmbedBatch embeds texts in batches of the configured size, batches running
// in parallel. Returned vectors match input order.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	type batch struct {
		start int
		texts []string
	}

	var batches []batch
	for i := 0; i < len(texts); i += s.batchSize {
		end := i + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, batch{start: i, texts: texts[i:end]})
	}

	results := make([][]float32, len(texts))
	errs := make([]error, len(batches))

	var wg sync.WaitGroup
	for bi, b := range batches {
		wg.Add(1)
		go func(bi int, b batch) {
			defer wg.Done()
			vecs, err := s.embedBatchOnce(ctx, b.texts)
			if err != nil {
				errs[bi] = err
				return
			}
			copy(results[b.start:], vecs)
		}(bi, b)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (s *Service) embedBatchOnce(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := s.primary.EmbedBatch(ctx, texts)
	if err == nil {
		return s.checkAll(vecs, len(texts))
	}

	if s.fallback == nil {
		return nil, errors.Wrap(errors.CodeServiceUnavail,
			fmt.Sprintf("embedding provider %s failed and no fallback configured", s.primary.Name()), err)
	}

	vecs, ferr := s.fallback.EmbedBatch(ctx, texts)
	if ferr != nil {
		return nil, errors.Wrap(errors.CodeServiceUnavail,
			fmt.Sprintf("both embedding providers failed (%s: %v)", s.primary.Name(), err), ferr)
	}
	return s.checkAll(vecs, len(texts))
}

func (s *Service) check(vec []float32) ([]float32, error) {
	if len(vec) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), s.dimension)
	}
	return vec, nil
}

func (s *Service) checkAll(vecs [][]float32, want int) ([][]float32, error) {
	if len(vecs) != want {
		return nil, fmt.Errorf("embedding count mismatch: got %d vectors for %d texts", len(vecs), want)
	}
	for _, v := range vecs {
		if _, err := s.check(v); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}
