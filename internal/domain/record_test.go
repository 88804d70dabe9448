package domain

import (
	"errors"
	"testing"
)

func TestGenerationParamsNormalizeDefaults(t *testing.T) {
	p := &GenerationParams{Prompt: "  cat in space  ", Ratio: "5:7", Tier: "weird", Resolution: "4K"}
	p.Normalize()

	if p.Prompt != "cat in space" {
		t.Fatalf("Prompt = %q", p.Prompt)
	}
	if p.InputRefs == nil || len(p.InputRefs) != 0 {
		t.Fatalf("InputRefs = %#v, want empty non-nil list", p.InputRefs)
	}
	if p.Ratio != DefaultRatio {
		t.Fatalf("Ratio = %q, want %q", p.Ratio, DefaultRatio)
	}
	if p.Tier != TierStandard {
		t.Fatalf("Tier = %q, want standard", p.Tier)
	}
	if p.Resolution != "1K" {
		t.Fatalf("Resolution = %q, standard tier must render at 1K", p.Resolution)
	}
}

func TestGenerationParamsNormalizeKeepsProResolution(t *testing.T) {
	p := &GenerationParams{Prompt: "x", Ratio: "16:9", Tier: TierPro, Resolution: "4K", InputRefs: []string{" a ", "", "b"}}
	p.Normalize()

	if p.Resolution != "4K" || p.Ratio != "16:9" {
		t.Fatalf("pro params changed: %+v", p)
	}
	if len(p.InputRefs) != 2 || p.InputRefs[0] != "a" || p.InputRefs[1] != "b" {
		t.Fatalf("InputRefs = %#v", p.InputRefs)
	}
}

func TestGenerationParamsValidate(t *testing.T) {
	if err := (GenerationParams{Cost: 1}).Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty prompt err = %v", err)
	}
	if err := (GenerationParams{Prompt: "x"}).Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero cost err = %v", err)
	}
	tooMany := GenerationParams{Prompt: "x", Cost: 1, InputRefs: []string{"1", "2", "3", "4", "5"}}
	if err := tooMany.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("too many refs err = %v", err)
	}
}

func TestParamsRoundTripKeepsCost(t *testing.T) {
	raw, err := MarshalParams(GenerationParams{Prompt: "p", Cost: 4, Tier: TierPro, Ratio: "3:2", Resolution: "2K"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	p, err := UnmarshalParams(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Cost != 4 || p.Tier != TierPro || p.Resolution != "2K" || p.Ratio != "3:2" {
		t.Fatalf("decoded params = %+v", p)
	}
	if _, err := UnmarshalParams(nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty params err = %v", err)
	}
}

func TestTierToggle(t *testing.T) {
	if TierStandard.Toggle() != TierPro || TierPro.Toggle() != TierStandard {
		t.Fatalf("Toggle is not symmetric")
	}
	if ParseTier(" PRO ") != TierPro {
		t.Fatalf("ParseTier should be case-insensitive")
	}
}
