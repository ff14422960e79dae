/*
Package ocr defines the contract for pluggable text-recognition engines and the bounded-time
invocation used by the extraction pipeline. Engines live in sub-packages so that callers only
link the native library or network client they actually use.
*/
package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shanehull/bullionscraper/internal/imageprep"
)

// Segmentation is the layout assumption handed to the engine. Values follow Tesseract's page
// segmentation modes.
type Segmentation int

const (
	SegmentSingleBlock Segmentation = 6
	SegmentSingleLine  Segmentation = 7
	SegmentSingleWord  Segmentation = 8
	SegmentSparseText  Segmentation = 11
	SegmentRawLine     Segmentation = 13
)

func (s Segmentation) String() string {
	switch s {
	case SegmentSingleBlock:
		return "block"
	case SegmentSingleLine:
		return "line"
	case SegmentSingleWord:
		return "word"
	case SegmentSparseText:
		return "sparse"
	case SegmentRawLine:
		return "raw-line"
	default:
		return fmt.Sprintf("psm-%d", int(s))
	}
}

// PriceChars is the whitelist for price images.
const PriceChars = "0123456789.,"

// Profile configures one recognition call.
type Profile struct {
	Segmentation Segmentation
	Whitelist    string
}

// Engine recognizes text in a bitmap. Output is not assumed to be deterministic.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, bm imageprep.Bitmap, p Profile) (string, error)
}

var ErrTimeout = errors.New("recognition timed out")

// RecognizeWithin runs engine.Recognize with a deadline. Engines backed by native calls may not
// observe ctx, so the call runs on its own goroutine and is abandoned when the deadline passes.
func RecognizeWithin(ctx context.Context, engine Engine, bm imageprep.Bitmap, p Profile, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return engine.Recognize(ctx, bm, p)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	resultChan := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultChan <- result{err: fmt.Errorf("%s panicked: %v", engine.Name(), r)}
			}
		}()
		text, err := engine.Recognize(ctx, bm, p)
		resultChan <- result{text: text, err: err}
	}()

	select {
	case r := <-resultChan:
		return r.text, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%s after %s: %w", engine.Name(), timeout, ErrTimeout)
		}
		return "", ctx.Err()
	}
}
