/*
Package gemini provides an ocr.Engine that reads price images with a Gemini vision model.
*/
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/shanehull/bullionscraper/internal/imageprep"
	"github.com/shanehull/bullionscraper/internal/ocr"
)

const DefaultModel = "gemini-2.5-flash"

var systemInstruction = `
You read numbers from small rendered images of commodity prices.

Return exactly the characters visible in the image. Do not correct, round, reformat or
complete the number, and do not add currency symbols. If no number is visible, return an
empty string.
`

type reading struct {
	Text string `json:"text"`
}

// generator is the subset of the genai client used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Engine struct {
	models generator
	model  string
}

// New creates an engine using the Gemini API with the given key.
func New(ctx context.Context, apiKey, model string) (*Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Engine{models: client.Models, model: model}, nil
}

func (e *Engine) Name() string { return "gemini" }

func (e *Engine) Recognize(ctx context.Context, bm imageprep.Bitmap, p ocr.Profile) (string, error) {
	data, err := bm.EncodePNG()
	if err != nil {
		return "", fmt.Errorf("encode bitmap: %w", err)
	}

	prompt := fmt.Sprintf("Read the number in this image. Layout: %s. Allowed characters: %q.",
		p.Segmentation, p.Whitelist)

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: data}},
				{Text: prompt},
			},
		},
	}

	temperature := float32(0)
	resp, err := e.models.GenerateContent(ctx, e.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(),
		Temperature:       &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	return parseReading(resp.Text(), p.Whitelist)
}

func parseReading(respText, whitelist string) (string, error) {
	var r reading
	if err := json.Unmarshal([]byte(respText), &r); err != nil {
		return "", fmt.Errorf("failed to unmarshal gemini JSON response: %w. Raw text: %s", err, respText)
	}
	if whitelist == "" {
		return strings.TrimSpace(r.Text), nil
	}
	return strings.Map(func(c rune) rune {
		if strings.ContainsRune(whitelist, c) {
			return c
		}
		return -1
	}, r.Text), nil
}

func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"text": {
				Type:        genai.TypeString,
				Description: "The characters of the number exactly as rendered.",
			},
		},
		Required: []string{"text"},
	}
}
