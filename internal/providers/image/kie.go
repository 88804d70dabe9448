package image

import (
	"context"
	"errors"

	"bananabot/internal/domain"
	"bananabot/internal/providers/kie"
)

// KieClient is the subset of *kie.Client the generator needs.
type KieClient interface {
	Run(ctx context.Context, model string, input kie.TaskInput) ([]byte, string, string, error)
	HasCredentials() bool
}

// KieGenerator picks a nano-banana model per request and maps client errors
// onto refusals and transient failures.
type KieGenerator struct {
	client KieClient
}

func NewKieGenerator(client KieClient) *KieGenerator {
	return &KieGenerator{client: client}
}

func (g *KieGenerator) Name() string { return "kie" }

func (g *KieGenerator) HasCredentials() bool {
	return g != nil && g.client != nil && g.client.HasCredentials()
}

func (g *KieGenerator) Generate(ctx context.Context, req Request) (Artifact, error) {
	urls, ok := req.URLs()
	if !ok {
		return Artifact{}, ErrInputUnreachable
	}
	model, input := kieTask(req, urls)
	data, mime, url, err := g.client.Run(ctx, model, input)
	if err != nil {
		return Artifact{}, classifyKieError(err)
	}
	art := Artifact{Data: data, MIME: mime, SourceURL: url, Provider: g.Name()}
	if art.Empty() {
		return Artifact{}, Rejected("empty result")
	}
	return art, nil
}

func kieTask(req Request, urls []string) (string, kie.TaskInput) {
	input := kie.TaskInput{
		"prompt":        req.Prompt,
		"output_format": "png",
	}
	switch {
	case req.Tier == domain.TierPro:
		input["aspect_ratio"] = req.Ratio
		input["resolution"] = req.Resolution
		if len(urls) > 0 {
			input["image_input"] = urls
		}
		return kie.ModelPro, input
	case len(urls) > 0:
		input["image_urls"] = urls
		input["strength"] = 0.85
		input["guidance_scale"] = 7.5
		input["image_size"] = "auto"
		return kie.ModelEdit, input
	default:
		input["image_size"] = req.Ratio
		return kie.ModelGen, input
	}
}

func classifyKieError(err error) error {
	if errors.Is(err, kie.ErrTaskFailed) || errors.Is(err, kie.ErrNoResult) {
		return errors.Join(ErrRejected, err)
	}
	var apiErr *kie.APIError
	if errors.As(err, &apiErr) && apiErr.Validation() {
		return errors.Join(ErrRejected, err)
	}
	return err
}

var _ Generator = (*KieGenerator)(nil)
