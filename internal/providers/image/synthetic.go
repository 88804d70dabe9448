package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
)

// SyntheticGenerator renders a deterministic striped PNG for each request.
// It keeps development and CI environments working without provider keys.
type SyntheticGenerator struct{}

func NewSyntheticGenerator() *SyntheticGenerator { return &SyntheticGenerator{} }

func (SyntheticGenerator) Name() string { return "synthetic" }

func (g SyntheticGenerator) Generate(ctx context.Context, req Request) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	width, height := dimensions(req.Ratio, req.Resolution)
	seed := deterministicSeed(req.RequestID, req.Prompt, req.Ratio, strings.Join(req.Refs(), ","))
	data, err := renderStripes(width, height, seed)
	if err != nil {
		return Artifact{}, fmt.Errorf("render synthetic image: %w", err)
	}
	return Artifact{Data: data, MIME: "image/png", Width: width, Height: height, Provider: g.Name()}, nil
}

func renderStripes(width, height int, seed string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{colorFromSeed(seed, 0)}, image.Point{}, draw.Src)

	accent := colorFromSeed(seed, 1)
	stripe := max(8, height/12)
	for y := 0; y < height; y += stripe * 2 {
		draw.Draw(img, image.Rect(0, y, width, min(height, y+stripe)), &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// dimensions scales the ratio so the long side matches the resolution. The
// synthetic output is kept small; 1K maps to 256px.
func dimensions(ratio, resolution string) (int, int) {
	long := 256
	switch resolution {
	case "2K":
		long = 512
	case "4K":
		long = 1024
	}
	a, b := 1, 1
	if parts := strings.SplitN(ratio, ":", 2); len(parts) == 2 {
		x, errX := strconv.Atoi(parts[0])
		y, errY := strconv.Atoi(parts[1])
		if errX == nil && errY == nil && x > 0 && y > 0 {
			a, b = x, y
		}
	}
	if a >= b {
		return long, max(1, long*b/a)
	}
	return max(1, long*a/b), long
}

func colorFromSeed(seed string, shift int) color.RGBA {
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...string) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(part))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

var _ Generator = SyntheticGenerator{}
