package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Ratios lists the aspect ratios a user may select, in menu order.
var Ratios = []string{"1:1", "4:3", "3:4", "16:9", "9:16", "3:2", "2:3"}

const (
	// DefaultRatio applies when a configuration starts or a stored record lacks one.
	DefaultRatio = "1:1"
	// DefaultResolution is the only resolution of the standard tier.
	DefaultResolution = "1K"
	// MaxInputRefs caps the number of input images per request.
	MaxInputRefs = 4
)

// ValidRatio reports whether ratio is one of Ratios.
func ValidRatio(ratio string) bool {
	for _, r := range Ratios {
		if r == ratio {
			return true
		}
	}
	return false
}

// GenerationParams is the reproducible parameter set of one generation.
type GenerationParams struct {
	Prompt     string   `json:"prompt"`
	InputRefs  []string `json:"image_urls"`
	Ratio      string   `json:"ratio"`
	Cost       int64    `json:"cost"`
	Tier       Tier     `json:"tier"`
	Resolution string   `json:"resolution"`
}

// Normalize applies defaults and canonical forms in place: references are
// trimmed into a non-nil list, unknown ratios fall back to 1:1 and the
// standard tier always renders at 1K.
func (p *GenerationParams) Normalize() {
	if p == nil {
		return
	}
	p.Prompt = strings.TrimSpace(p.Prompt)
	p.InputRefs = NormalizeRefs(p.InputRefs)
	if !ValidRatio(p.Ratio) {
		p.Ratio = DefaultRatio
	}
	p.Tier = ParseTier(string(p.Tier))
	switch {
	case p.Tier == TierStandard:
		p.Resolution = DefaultResolution
	case p.Resolution != "1K" && p.Resolution != "2K" && p.Resolution != "4K":
		p.Resolution = DefaultResolution
	}
}

// Validate reports parameter sets that can never be dispatched.
func (p GenerationParams) Validate() error {
	if p.Prompt == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	}
	if p.Cost <= 0 {
		return fmt.Errorf("%w: cost must be positive", ErrInvalidInput)
	}
	if len(p.InputRefs) > MaxInputRefs {
		return fmt.Errorf("%w: at most %d input images", ErrInvalidInput, MaxInputRefs)
	}
	return nil
}

// NormalizeRefs returns a trimmed copy of refs without blanks. It never
// returns nil.
func NormalizeRefs(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref = strings.TrimSpace(ref); ref != "" {
			out = append(out, ref)
		}
	}
	return out
}

// GenerationRecord is the immutable result of a successful generation.
type GenerationRecord struct {
	ID          string
	UserID      int64
	Params      GenerationParams
	ArtifactKey string
	SourceURL   string
	CreatedAt   time.Time
}

// ArtifactRef returns the reference used when the record becomes the input of
// an edit: the canonical provider URL when known, else the stored key.
func (r GenerationRecord) ArtifactRef() string {
	if r.SourceURL != "" {
		return r.SourceURL
	}
	return r.ArtifactKey
}

// MarshalParams encodes params for storage.
func MarshalParams(p GenerationParams) ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalParams decodes stored params and normalizes them.
func UnmarshalParams(raw []byte) (GenerationParams, error) {
	var p GenerationParams
	if len(raw) == 0 {
		return p, fmt.Errorf("%w: empty params", ErrInvalidInput)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode params: %w", err)
	}
	cost := p.Cost
	p.Normalize()
	p.Cost = cost
	return p, nil
}
