package image

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bananabot/internal/domain"
)

// Input is one reference image. URL is set when providers can fetch the
// image themselves; Data carries the bytes of locally stored artifacts.
type Input struct {
	Ref  string
	URL  string
	Data []byte
	MIME string
}

// URLInputs wraps references that are already fetchable URLs.
func URLInputs(refs []string) []Input {
	out := make([]Input, 0, len(refs))
	for _, ref := range refs {
		out = append(out, Input{Ref: ref, URL: ref})
	}
	return out
}

// Request is the finalized generation input handed to a provider.
type Request struct {
	Prompt     string
	Inputs     []Input
	Tier       domain.Tier
	Ratio      string
	Resolution string
	RequestID  string
}

// URLs returns the fetchable URL of every input. It reports false when an
// input is only available as bytes.
func (r Request) URLs() ([]string, bool) {
	urls := make([]string, 0, len(r.Inputs))
	for _, in := range r.Inputs {
		if strings.TrimSpace(in.URL) == "" {
			return nil, false
		}
		urls = append(urls, in.URL)
	}
	return urls, true
}

// Refs returns the original reference of every input.
func (r Request) Refs() []string {
	refs := make([]string, 0, len(r.Inputs))
	for _, in := range r.Inputs {
		refs = append(refs, in.Ref)
	}
	return refs
}

// Artifact is a produced image. SourceURL is the provider's canonical URL
// when one exists.
type Artifact struct {
	Data      []byte
	MIME      string
	SourceURL string
	Width     int
	Height    int
	Provider  string
}

// Empty reports whether the artifact carries no image.
func (a Artifact) Empty() bool {
	return len(a.Data) == 0 && strings.TrimSpace(a.SourceURL) == ""
}

// Generator produces one image per request.
type Generator interface {
	Generate(ctx context.Context, req Request) (Artifact, error)
	Name() string
}

// ErrRejected marks an explicit provider refusal or an empty result. Such
// requests are not retried.
var ErrRejected = errors.New("provider rejected request")

// Rejected wraps reason as an ErrRejected error.
func Rejected(reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrRejected
	}
	return fmt.Errorf("%w: %s", ErrRejected, reason)
}

// ErrInputUnreachable means an input exists only as local bytes and the
// provider accepts URLs alone. It is transient so a fallback provider that
// takes inline images gets the request.
var ErrInputUnreachable = errors.New("input image has no public url")

// IsTransient reports whether err is an infrastructure failure rather than
// a refusal.
func IsTransient(err error) bool {
	return err != nil && !errors.Is(err, ErrRejected)
}
