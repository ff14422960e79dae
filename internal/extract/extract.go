/*
Package extract reads one price from a located field. Text fields go straight to the numeric
parser; image fields run through every preprocessing variant and the resulting candidates are
reduced to one value by vote. Recognition noise never leaves this package as an error: a field
either yields a number or is absent.
*/
package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/shanehull/bullionscraper/internal/imageprep"
	"github.com/shanehull/bullionscraper/internal/logger"
	"github.com/shanehull/bullionscraper/internal/numparse"
	"github.com/shanehull/bullionscraper/internal/ocr"
	"github.com/shanehull/bullionscraper/internal/types"
)

// Variant outcomes reported to Metrics.
const (
	OutcomeOK         = "ok"
	OutcomeNoBitmap   = "no_bitmap"
	OutcomeEmpty      = "empty"
	OutcomeUnparsable = "unparsable"
	OutcomeTimeout    = "timeout"
	OutcomeError      = "error"
)

type Metrics interface {
	ObserveVariant(variant, outcome string)
}

type Option func(*Extractor)

// WithVariantTimeout bounds each recognition call.
func WithVariantTimeout(d time.Duration) Option {
	return func(x *Extractor) { x.timeout = d }
}

// WithWorkers bounds how many variants of one image are recognized at once.
func WithWorkers(n int) Option {
	return func(x *Extractor) {
		if n > 0 {
			x.workers = n
		}
	}
}

// WithOutlierRule sets the ratio and floor used by Reduce.
func WithOutlierRule(ratio, floor float64) Option {
	return func(x *Extractor) {
		x.ratio = ratio
		x.floor = floor
	}
}

// WithVariants replaces the catalog. Intended for tests.
func WithVariants(v []Variant) Option {
	return func(x *Extractor) { x.variants = v }
}

func WithMetrics(m Metrics) Option {
	return func(x *Extractor) { x.metrics = m }
}

type Extractor struct {
	engine   ocr.Engine
	log      *logger.Logger
	metrics  Metrics
	variants []Variant
	timeout  time.Duration
	workers  int
	ratio    float64
	floor    float64
}

func New(engine ocr.Engine, log *logger.Logger, opts ...Option) *Extractor {
	x := &Extractor{
		engine:   engine,
		log:      log,
		variants: Catalog,
		timeout:  10 * time.Second,
		workers:  3,
		ratio:    DefaultOutlierRatio,
		floor:    DefaultOutlierFloor,
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.log == nil {
		x.log = logger.Nop()
	}
	return x
}

// Resolve dispatches a located field to the path matching its kind.
func (x *Extractor) Resolve(ctx context.Context, f types.Field) types.Price {
	switch f.Kind() {
	case types.FieldText:
		if v, ok := numparse.Parse(f.Text()); ok {
			return types.Some(v)
		}
		return types.None()
	case types.FieldImage:
		if v, ok := x.FromImage(ctx, f.Image()); ok {
			return types.Some(v)
		}
		return types.None()
	default:
		return types.None()
	}
}

// FromImage runs every variant over img and reduces the candidates to one value.
func (x *Extractor) FromImage(ctx context.Context, img types.RawImage) (float64, bool) {
	src, ok := imageprep.Decode(img.Data)
	if !ok {
		for _, v := range x.variants {
			x.observe(v.Name, OutcomeNoBitmap)
		}
		x.log.Debug("image did not decode", logger.String("encoding", img.Encoding), logger.Int("bytes", len(img.Data)))
		return 0, false
	}

	type candidate struct {
		value float64
		ok    bool
	}
	results := make([]candidate, len(x.variants))

	var wg sync.WaitGroup
	sem := make(chan struct{}, x.workers)

dispatch:
	for i, v := range x.variants {
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, v Variant) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					x.observe(v.Name, OutcomeError)
					x.log.Warn("variant panicked", logger.String("variant", v.Name), logger.Error(fmt.Errorf("%v", r)))
					results[i] = candidate{}
				}
			}()

			value, ok := x.runVariant(ctx, src, v)
			results[i] = candidate{value: value, ok: ok}
		}(i, v)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return 0, false
	}

	candidates := make([]float64, 0, len(results))
	for _, c := range results {
		if c.ok {
			candidates = append(candidates, c.value)
		}
	}

	value, ok := Reduce(candidates, x.ratio, x.floor)
	x.log.Debug("image reduced",
		logger.Any("candidates", candidates),
		logger.Float("value", value),
		logger.Bool("ok", ok))
	return value, ok
}

func (x *Extractor) runVariant(ctx context.Context, src image.Image, v Variant) (float64, bool) {
	bm := imageprep.Apply(src, v.Recipe)

	text, err := ocr.RecognizeWithin(ctx, x.engine, bm, v.Profile, x.timeout)
	if err != nil {
		outcome := OutcomeError
		if errors.Is(err, ocr.ErrTimeout) {
			outcome = OutcomeTimeout
		}
		x.observe(v.Name, outcome)
		x.log.Debug("variant failed", logger.String("variant", v.Name), logger.Error(err))
		return 0, false
	}
	if text == "" {
		x.observe(v.Name, OutcomeEmpty)
		return 0, false
	}

	value, ok := numparse.Parse(text)
	if !ok {
		x.observe(v.Name, OutcomeUnparsable)
		x.log.Debug("variant text unparsable", logger.String("variant", v.Name), logger.String("text", text))
		return 0, false
	}

	x.observe(v.Name, OutcomeOK)
	return value, true
}

func (x *Extractor) observe(variant, outcome string) {
	if x.metrics != nil {
		x.metrics.ObserveVariant(variant, outcome)
	}
}
