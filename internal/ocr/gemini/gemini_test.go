package gemini

import (
	"context"
	"image"
	"testing"

	"google.golang.org/genai"

	"github.com/shanehull/bullionscraper/internal/imageprep"
	"github.com/shanehull/bullionscraper/internal/ocr"
)

type fakeModels struct {
	reply    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.contents = contents
	f.config = config
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.reply}}},
		}},
	}, nil
}

func TestRecognizeSendsImageAndFiltersWhitelist(t *testing.T) {
	models := &fakeModels{reply: `{"text": "5,765 EGP"}`}
	e := &Engine{models: models, model: DefaultModel}

	bm := imageprep.Bitmap{Gray: image.NewGray(image.Rect(0, 0, 2, 2))}
	got, err := e.Recognize(context.Background(), bm, ocr.Profile{
		Segmentation: ocr.SegmentSingleLine,
		Whitelist:    ocr.PriceChars,
	})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if got != "5,765" {
		t.Fatalf("Recognize() = %q, want %q", got, "5,765")
	}
	if len(models.contents) != 1 || models.contents[0].Parts[0].InlineData == nil {
		t.Fatalf("expected inline image part, got %+v", models.contents)
	}
	if models.config.ResponseMIMEType != "application/json" {
		t.Fatalf("expected JSON response type")
	}
}

func TestParseReadingRejectsInvalidJSON(t *testing.T) {
	if _, err := parseReading("not json", ocr.PriceChars); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(context.Background(), "", ""); err == nil {
		t.Fatalf("expected error without API key")
	}
}
