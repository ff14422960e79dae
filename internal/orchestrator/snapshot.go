package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/shanehull/bullionscraper/internal/logger"
	"github.com/shanehull/bullionscraper/internal/source"
	"github.com/shanehull/bullionscraper/internal/types"
)

// buildSnapshot locates every field on src and resolves them on a bounded pool of workers. Each
// worker owns one field; the only shared write is its own slot in prices, read after the join.
func (m *Machine) buildSnapshot(ctx context.Context, src source.Source) (types.Snapshot, error) {
	fields, err := src.Locate(ctx, m.cfg.Instruments)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("locate fields on %s: %w", src.Name(), err)
	}

	keys := types.FieldKeys(m.cfg.Instruments)
	prices := make([]types.Price, len(keys))

	var wg sync.WaitGroup
	sem := make(chan struct{}, m.cfg.Workers)

dispatch:
	for i, key := range keys {
		field, ok := fields[key]
		if !ok {
			m.log.Debug("field not located", logger.String("source", src.Name()), logger.String("field", key.String()))
			continue
		}

		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, key types.FieldKey, field types.Field) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("field resolution panicked", logger.String("field", key.String()), logger.Error(fmt.Errorf("%v", r)))
					prices[i] = types.None()
				}
			}()

			fctx, cancel := context.WithTimeout(ctx, m.cfg.FieldTimeout)
			defer cancel()

			prices[i] = m.resolver.Resolve(fctx, field)
			m.log.Debug("field resolved",
				logger.String("source", src.Name()),
				logger.String("field", key.String()),
				logger.String("kind", field.Kind().String()),
				logger.String("value", prices[i].String()))
		}(i, key, field)
	}
	wg.Wait()

	quotes := make(map[types.InstrumentKey]types.Quote, len(m.cfg.Instruments))
	for i, key := range keys {
		quotes[key.Instrument] = quotes[key.Instrument].WithSide(key.Side, prices[i])
	}

	return types.NewSnapshot(src.Name(), m.now(), m.cfg.Instruments, quotes), nil
}
