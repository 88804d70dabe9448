package image

import (
	"context"
	"errors"
	"net/http"

	"bananabot/internal/providers/genai"
)

// GeminiClient is the subset of *genai.Client the generator needs.
type GeminiClient interface {
	GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageAsset, error)
	HasCredentials() bool
	Model() string
}

type GeminiGenerator struct {
	client GeminiClient
}

func NewGeminiGenerator(client GeminiClient) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Name() string { return "gemini" }

func (g *GeminiGenerator) HasCredentials() bool {
	return g != nil && g.client != nil && g.client.HasCredentials()
}

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (Artifact, error) {
	refs := make([]genai.Reference, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		refs = append(refs, genai.Reference{URL: in.URL, Data: in.Data, MIME: in.MIME})
	}
	asset, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		Prompt:      req.Prompt,
		References:  refs,
		AspectRatio: req.Ratio,
		RequestID:   req.RequestID,
	})
	if err != nil {
		if errors.Is(err, genai.ErrBlocked) || errors.Is(err, genai.ErrNoImage) {
			return Artifact{}, errors.Join(ErrRejected, err)
		}
		var se *genai.StatusError
		if errors.As(err, &se) && se.Status == http.StatusBadRequest {
			return Artifact{}, errors.Join(ErrRejected, err)
		}
		return Artifact{}, err
	}
	if asset == nil || len(asset.Data) == 0 {
		return Artifact{}, Rejected("empty result")
	}
	return Artifact{
		Data:     asset.Data,
		MIME:     asset.Format,
		Width:    asset.Width,
		Height:   asset.Height,
		Provider: g.Name(),
	}, nil
}

var _ Generator = (*GeminiGenerator)(nil)
