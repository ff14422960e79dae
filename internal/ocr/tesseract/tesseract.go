// Package tesseract provides an ocr.Engine backed by the Tesseract library via gosseract.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/shanehull/bullionscraper/internal/imageprep"
	"github.com/shanehull/bullionscraper/internal/ocr"
)

// Engine creates a fresh client per call; gosseract clients are not safe for concurrent use and
// variants are recognized in parallel.
type Engine struct {
	clientFactory func() *gosseract.Client
	language      string
}

// New constructs an engine for the given trained-data language (for example "eng").
func New(language string) *Engine {
	if language == "" {
		language = "eng"
	}
	return &Engine{clientFactory: gosseract.NewClient, language: language}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize returns the raw text Tesseract reads from the bitmap.
func (e *Engine) Recognize(ctx context.Context, bm imageprep.Bitmap, p ocr.Profile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := bm.EncodePNG()
	if err != nil {
		return "", fmt.Errorf("encode bitmap: %w", err)
	}

	client := e.clientFactory()
	defer client.Close()

	if err := client.SetLanguage(e.language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}

	// Prices are not dictionary words.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")
	_ = client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), "300")

	if p.Segmentation != 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(p.Segmentation)); err != nil {
			return "", fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	if p.Whitelist != "" {
		if err := client.SetWhitelist(p.Whitelist); err != nil {
			return "", fmt.Errorf("set whitelist: %w", err)
		}
	}

	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}

	return strings.TrimSpace(text), nil
}
