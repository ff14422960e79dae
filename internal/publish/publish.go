/*
Package publish delivers accepted snapshots. The JSON file is the contract consumers rely on and
must be written; Redis, Kafka and ClickHouse are optional fan-out sinks whose failures are logged
and counted but never fail a run. Nothing in this package is ever handed a rejected snapshot.
*/
package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shanehull/bullionscraper/internal/logger"
	"github.com/shanehull/bullionscraper/internal/types"
)

// Sink stores or forwards one snapshot.
type Sink interface {
	Name() string
	Write(ctx context.Context, s types.Snapshot) error
	Close() error
}

type Metrics interface {
	RecordSink(sink string, err error)
	RecordLastPrice(metal, grade, side string, price float64)
}

type Publisher struct {
	required Sink
	optional []Sink
	log      *logger.Logger
	metrics  Metrics
}

// NewPublisher creates a publisher. required must succeed for Publish to succeed.
func NewPublisher(required Sink, optional []Sink, log *logger.Logger, metrics Metrics) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{required: required, optional: optional, log: log, metrics: metrics}
}

// Publish writes s to the required sink, then to every optional sink concurrently.
func (p *Publisher) Publish(ctx context.Context, s types.Snapshot) error {
	if s.IsZero() {
		return errors.New("refusing to publish an empty snapshot")
	}

	err := p.required.Write(ctx, s)
	p.record(p.required.Name(), err)
	if err != nil {
		return fmt.Errorf("write %s: %w", p.required.Name(), err)
	}
	p.log.Info("snapshot published", logger.String("sink", p.required.Name()), logger.String("source", s.Source()))

	var wg sync.WaitGroup
	for _, sink := range p.optional {
		wg.Add(1)
		go func(sink Sink) {
			defer wg.Done()

			err := sink.Write(ctx, s)
			p.record(sink.Name(), err)
			if err != nil {
				p.log.Warn("optional sink failed", logger.String("sink", sink.Name()), logger.Error(err))
				return
			}
			p.log.Debug("snapshot published", logger.String("sink", sink.Name()))
		}(sink)
	}
	wg.Wait()

	if p.metrics != nil {
		for _, k := range s.FieldKeys() {
			if v, ok := s.Price(k).Get(); ok {
				p.metrics.RecordLastPrice(string(k.Instrument.Metal), string(k.Instrument.Grade), string(k.Side), v)
			}
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (p *Publisher) Close() error {
	errs := []error{p.required.Close()}
	for _, sink := range p.optional {
		errs = append(errs, sink.Close())
	}
	return errors.Join(errs...)
}

func (p *Publisher) record(sink string, err error) {
	if p.metrics != nil {
		p.metrics.RecordSink(sink, err)
	}
}
