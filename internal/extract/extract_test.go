package extract

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shanehull/bullionscraper/internal/imageprep"
	"github.com/shanehull/bullionscraper/internal/logger"
	"github.com/shanehull/bullionscraper/internal/ocr"
	"github.com/shanehull/bullionscraper/internal/types"
)

// scriptedEngine answers by segmentation mode so each variant gets a known reading.
type scriptedEngine struct {
	replies map[ocr.Segmentation]string
	delays  map[ocr.Segmentation]time.Duration
	err     error
	panics  bool
	calls   atomic.Int32
}

func (e *scriptedEngine) Name() string { return "scripted" }

func (e *scriptedEngine) Recognize(ctx context.Context, bm imageprep.Bitmap, p ocr.Profile) (string, error) {
	e.calls.Add(1)
	if e.panics {
		panic("engine exploded")
	}
	if d := e.delays[p.Segmentation]; d > 0 {
		time.Sleep(d)
	}
	if e.err != nil {
		return "", e.err
	}
	return e.replies[p.Segmentation], nil
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *countingMetrics) ObserveVariant(variant, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[outcome]++
}

var testVariants = []Variant{
	{Name: "line", Recipe: imageprep.Recipe{Scale: 2, Threshold: 130}, Profile: ocr.Profile{Segmentation: ocr.SegmentSingleLine}},
	{Name: "word", Recipe: imageprep.Recipe{Scale: 2, Threshold: 130}, Profile: ocr.Profile{Segmentation: ocr.SegmentSingleWord}},
	{Name: "raw", Recipe: imageprep.Recipe{Scale: 3, Threshold: 140, Thicken: true}, Profile: ocr.Profile{Segmentation: ocr.SegmentRawLine}},
}

func pngImage(t *testing.T) types.RawImage {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 12, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, color.White)
		}
	}
	img.Set(5, 3, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return types.RawImage{Data: buf.Bytes(), Encoding: "image/png"}
}

func TestReduce(t *testing.T) {
	tests := []struct {
		name       string
		candidates []float64
		want       float64
		wantOK     bool
	}{
		{name: "no candidates", candidates: nil, wantOK: false},
		{name: "extra digit outlier loses to minimum", candidates: []float64{5765, 57655, 5765}, want: 5765, wantOK: true},
		{name: "outlier first still loses", candidates: []float64{57655, 5765}, want: 5765, wantOK: true},
		{name: "simple majority", candidates: []float64{100, 100, 102}, want: 100, wantOK: true},
		{name: "tie goes to first seen", candidates: []float64{102, 100, 100, 102}, want: 102, wantOK: true},
		{name: "all unique picks first", candidates: []float64{101, 100, 102}, want: 101, wantOK: true},
		{name: "minimum below floor disables outlier rule", candidates: []float64{70, 7, 70}, want: 70, wantOK: true},
		{name: "ratio at limit is not an outlier", candidates: []float64{500, 100, 500}, want: 500, wantOK: true},
		{name: "single candidate", candidates: []float64{42.5}, want: 42.5, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Reduce(tt.candidates, DefaultOutlierRatio, DefaultOutlierFloor)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("Reduce(%v) = (%v, %v), want (%v, %v)", tt.candidates, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFromImageVotesAcrossVariants(t *testing.T) {
	engine := &scriptedEngine{replies: map[ocr.Segmentation]string{
		ocr.SegmentSingleLine: "5765",
		ocr.SegmentSingleWord: "57655",
		ocr.SegmentRawLine:    "5,765",
	}}
	x := New(engine, logger.Nop(), WithVariants(testVariants))

	got, ok := x.FromImage(context.Background(), pngImage(t))
	if !ok || got != 5765 {
		t.Fatalf("FromImage() = (%v, %v), want (5765, true)", got, ok)
	}
	if n := engine.calls.Load(); n != 3 {
		t.Fatalf("engine calls = %d, want 3", n)
	}
}

func TestFromImageUndecodableIsAbsent(t *testing.T) {
	engine := &scriptedEngine{}
	m := &countingMetrics{}
	x := New(engine, logger.Nop(), WithVariants(testVariants), WithMetrics(m))

	_, ok := x.FromImage(context.Background(), types.RawImage{Data: []byte("<svg/>"), Encoding: "image/png"})
	if ok {
		t.Fatalf("FromImage() ok = true for undecodable data")
	}
	if engine.calls.Load() != 0 {
		t.Fatalf("engine should not be called without a bitmap")
	}
	if m.outcomes[OutcomeNoBitmap] != len(testVariants) {
		t.Fatalf("no_bitmap outcomes = %d, want %d", m.outcomes[OutcomeNoBitmap], len(testVariants))
	}
}

func TestFromImageTimedOutVariantIsIgnored(t *testing.T) {
	engine := &scriptedEngine{
		replies: map[ocr.Segmentation]string{
			ocr.SegmentSingleLine: "9999",
			ocr.SegmentSingleWord: "4120",
			ocr.SegmentRawLine:    "4120",
		},
		delays: map[ocr.Segmentation]time.Duration{ocr.SegmentSingleLine: 300 * time.Millisecond},
	}
	m := &countingMetrics{}
	x := New(engine, logger.Nop(), WithVariants(testVariants), WithVariantTimeout(50*time.Millisecond), WithMetrics(m))

	got, ok := x.FromImage(context.Background(), pngImage(t))
	if !ok || got != 4120 {
		t.Fatalf("FromImage() = (%v, %v), want (4120, true)", got, ok)
	}
	if m.outcomes[OutcomeTimeout] != 1 {
		t.Fatalf("timeout outcomes = %d, want 1", m.outcomes[OutcomeTimeout])
	}
}

func TestFromImageEngineFailuresAreAbsent(t *testing.T) {
	for name, engine := range map[string]*scriptedEngine{
		"error":  {err: errors.New("engine down")},
		"panic":  {panics: true},
		"silent": {replies: map[ocr.Segmentation]string{}},
	} {
		t.Run(name, func(t *testing.T) {
			x := New(engine, logger.Nop(), WithVariants(testVariants))
			if _, ok := x.FromImage(context.Background(), pngImage(t)); ok {
				t.Fatalf("FromImage() ok = true, want false")
			}
		})
	}
}

func TestFromImageCancelled(t *testing.T) {
	engine := &scriptedEngine{replies: map[ocr.Segmentation]string{ocr.SegmentSingleLine: "5765"}}
	x := New(engine, logger.Nop(), WithVariants(testVariants))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := x.FromImage(ctx, pngImage(t)); ok {
		t.Fatalf("FromImage() ok = true on cancelled context")
	}
}

func TestResolveDispatchesByKind(t *testing.T) {
	engine := &scriptedEngine{replies: map[ocr.Segmentation]string{
		ocr.SegmentSingleLine: "61.5",
		ocr.SegmentSingleWord: "61.5",
		ocr.SegmentRawLine:    "",
	}}
	x := New(engine, logger.Nop(), WithVariants(testVariants))
	ctx := context.Background()

	if v, ok := x.Resolve(ctx, types.TextField("5,765 ج.م")).Get(); !ok || v != 5765 {
		t.Fatalf("text field = (%v, %v), want 5765", v, ok)
	}
	if x.Resolve(ctx, types.TextField("--")).Present() {
		t.Fatalf("unparsable text should be absent")
	}
	if engine.calls.Load() != 0 {
		t.Fatalf("text fields must not reach the recognizer")
	}
	if v, ok := x.Resolve(ctx, types.ImageField(pngImage(t))).Get(); !ok || v != 61.5 {
		t.Fatalf("image field = (%v, %v), want 61.5", v, ok)
	}
	if x.Resolve(ctx, types.Field{}).Present() {
		t.Fatalf("zero field should be absent")
	}
}

func TestCatalogIsWellFormed(t *testing.T) {
	seen := make(map[string]bool)
	for _, v := range Catalog {
		if seen[v.Name] {
			t.Fatalf("duplicate variant %q", v.Name)
		}
		seen[v.Name] = true
		if v.Recipe.Scale < 2 || v.Recipe.Scale > 5 {
			t.Errorf("%s: scale %d outside 2..5", v.Name, v.Recipe.Scale)
		}
		if v.Profile.Whitelist != ocr.PriceChars {
			t.Errorf("%s: unexpected whitelist %q", v.Name, v.Profile.Whitelist)
		}
		if v.Recipe.Pad <= 0 {
			t.Errorf("%s: missing padding", v.Name)
		}
	}
}
