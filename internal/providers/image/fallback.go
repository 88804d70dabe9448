package image

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// credentialed is implemented by generators that may run without keys.
type credentialed interface {
	HasCredentials() bool
}

// FallbackGenerator calls primary and switches to fallback when primary has
// no credentials or fails transiently. Refusals are returned as-is.
type FallbackGenerator struct {
	primary  Generator
	fallback Generator
	logger   zerolog.Logger
}

// NewFallbackGenerator wires primary with an optional fallback.
func NewFallbackGenerator(primary, fallback Generator, logger zerolog.Logger) *FallbackGenerator {
	return &FallbackGenerator{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With().Str("component", "image").Logger(),
	}
}

func (g *FallbackGenerator) Name() string {
	if g == nil || g.primary == nil {
		return "fallback"
	}
	return g.primary.Name()
}

// Generate fulfils the Generator interface.
func (g *FallbackGenerator) Generate(ctx context.Context, req Request) (Artifact, error) {
	if g == nil || (g.primary == nil && g.fallback == nil) {
		return Artifact{}, fmt.Errorf("image generator not configured")
	}
	if g.primary == nil || !hasCredentials(g.primary) {
		if g.fallback != nil {
			return g.fallback.Generate(ctx, req)
		}
		return Artifact{}, fmt.Errorf("%s generator missing credentials", g.Name())
	}

	art, err := g.primary.Generate(ctx, req)
	if err == nil || g.fallback == nil || !shouldFallback(ctx, err) {
		return art, err
	}
	g.logger.Warn().Err(err).
		Str("primary", g.primary.Name()).
		Str("fallback", g.fallback.Name()).
		Str("request_id", req.RequestID).
		Msg("image: primary provider failed; using fallback")
	return g.fallback.Generate(ctx, req)
}

func hasCredentials(g Generator) bool {
	if c, ok := g.(credentialed); ok {
		return c.HasCredentials()
	}
	return true
}

func shouldFallback(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrRejected) {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "insufficient credits") {
		return true
	}
	return IsTransient(err)
}

var _ Generator = (*FallbackGenerator)(nil)
