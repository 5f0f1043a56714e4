// Package coverart generates the optional cover illustration for the print
// sheet from a short subject prompt.
package coverart

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	// Model is the Gemini image model used for covers.
	Model = "gemini-3-pro-image-preview"

	aspectRatio = "1:1"
	imageSize   = "1K"
)

var (
	// ErrDisabled is returned when no API key was configured.
	ErrDisabled = errors.New("cover generation is disabled")
	// ErrEmptyPrompt is returned for a blank subject.
	ErrEmptyPrompt = errors.New("cover prompt is empty")
	// ErrNoImage is returned when the model answers without an image part.
	ErrNoImage = errors.New("no image returned in response")
)

// Image is a generated cover.
type Image struct {
	Data     []byte
	MIMEType string
	Prompt   string
}

// DataURI returns the image as a data: URI.
func (i *Image) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// contentGenerator is the subset of genai.Models the generator calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator produces cover art. The zero value is disabled.
type Generator struct {
	models  contentGenerator
	model   string
	timeout time.Duration
}

// NewGenerator returns a Generator backed by the Gemini API. An empty key
// returns a disabled generator and no error.
func NewGenerator(ctx context.Context, apiKey string, timeout time.Duration) (*Generator, error) {
	if apiKey == "" {
		log.Info().Msg("No Gemini API key configured, cover generation disabled")
		return &Generator{}, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Generator{models: client.Models, model: Model, timeout: timeout}, nil
}

// WithModel overrides the image model. An empty name keeps the default.
func (g *Generator) WithModel(name string) *Generator {
	if g != nil && name != "" {
		g.model = name
	}
	return g
}

// Enabled reports whether Generate can reach a model.
func (g *Generator) Enabled() bool {
	return g != nil && g.models != nil
}

// Prompt wraps a subject in the house illustration style.
func Prompt(subject string) string {
	return "A minimalist, aesthetic line-art or abstract illustration for a small book cover. " +
		"Subject: " + strings.TrimSpace(subject) + ". " +
		"Style: Bauhaus, line art, abstract shapes, neutral colors with one accent color, lots of whitespace, high design."
}

// Generate asks the model for a square cover illustrating subject.
func (g *Generator) Generate(ctx context.Context, subject string) (*Image, error) {
	if !g.Enabled() {
		return nil, ErrDisabled
	}
	if strings.TrimSpace(subject) == "" {
		return nil, ErrEmptyPrompt
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	prompt := Prompt(subject)
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: aspectRatio,
			ImageSize:   imageSize,
		},
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}}

	log.Debug().
		Str("model", g.model).
		Int("prompt_length", len(prompt)).
		Msg("Starting Gemini API call for cover generation")

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	duration := time.Since(start)
	if err != nil {
		log.Error().Err(err).Dur("duration", duration).Msg("Failed to generate cover from Gemini")
		return nil, Classify(err)
	}

	img, err := extractImage(resp)
	if err != nil {
		log.Warn().Err(err).Dur("duration", duration).Msg("Gemini returned no cover image")
		return nil, generationError("Gemini returned no cover image", err)
	}
	img.Prompt = subject

	log.Info().
		Int("output_bytes", len(img.Data)).
		Str("output_mime", img.MIMEType).
		Dur("duration", duration).
		Msg("Cover generation complete")
	return img, nil
}

// Resolve returns the cover for subject, or nil when generation is disabled,
// the subject is blank, or the model fails. Failures are logged.
func (g *Generator) Resolve(ctx context.Context, subject string) *Image {
	if !g.Enabled() || strings.TrimSpace(subject) == "" {
		return nil
	}
	img, err := g.Generate(ctx, subject)
	if err != nil {
		log.Warn().Err(err).Msg("Continuing without cover art")
		return nil
	}
	return img
}

func extractImage(resp *genai.GenerateContentResponse) (*Image, error) {
	if resp == nil {
		return nil, fmt.Errorf("received empty response from Gemini API")
	}
	var text string
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return &Image{Data: part.InlineData.Data, MIMEType: mime}, nil
			}
			text += part.Text
		}
	}
	if text != "" {
		return nil, fmt.Errorf("%w (text: %s)", ErrNoImage, truncate(text, 200))
	}
	return nil, ErrNoImage
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
