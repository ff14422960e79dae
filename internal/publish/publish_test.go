package publish

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shanehull/bullionscraper/internal/logger"
	"github.com/shanehull/bullionscraper/internal/types"
)

var (
	gold24   = types.InstrumentKey{Metal: types.Gold, Grade: "24"}
	silver99 = types.InstrumentKey{Metal: types.Silver, Grade: "999"}
	takenAt  = time.Date(2026, 10, 18, 8, 30, 0, 0, time.UTC)
)

func testSnapshot() types.Snapshot {
	return types.NewSnapshot("isagha", takenAt, []types.InstrumentKey{gold24, silver99}, map[types.InstrumentKey]types.Quote{
		gold24:   {Sell: types.Some(5765), Buy: types.Some(5740)},
		silver99: {Sell: types.Some(72.5)},
	})
}

type recordingSink struct {
	name   string
	err    error
	mu     sync.Mutex
	writes []types.Snapshot
	closed bool
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Write(ctx context.Context, s types.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, s)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

type sinkMetrics struct {
	mu     sync.Mutex
	errors map[string]int
	prices map[string]float64
}

func (m *sinkMetrics) RecordSink(sink string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = make(map[string]int)
	}
	if err != nil {
		m.errors[sink]++
	}
}

func (m *sinkMetrics) RecordLastPrice(metal, grade, side string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prices == nil {
		m.prices = make(map[string]float64)
	}
	m.prices[metal+"/"+grade+"/"+side] = price
}

func TestPublishOptionalFailureIsNotFatal(t *testing.T) {
	file := &recordingSink{name: "file"}
	redis := &recordingSink{name: "redis", err: errors.New("connection refused")}
	kafkaSink := &recordingSink{name: "kafka"}
	metrics := &sinkMetrics{}

	p := NewPublisher(file, []Sink{redis, kafkaSink}, logger.Nop(), metrics)
	if err := p.Publish(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(file.writes) != 1 || len(redis.writes) != 1 || len(kafkaSink.writes) != 1 {
		t.Fatalf("writes file=%d redis=%d kafka=%d", len(file.writes), len(redis.writes), len(kafkaSink.writes))
	}
	if metrics.errors["redis"] != 1 {
		t.Fatalf("redis errors = %d, want 1", metrics.errors["redis"])
	}
	if metrics.prices["gold/24/sell"] != 5765 || len(metrics.prices) != 3 {
		t.Fatalf("last prices = %v", metrics.prices)
	}

	if err := p.Close(); err != nil || !file.closed || !redis.closed {
		t.Fatalf("Close() = %v", err)
	}
}

func TestPublishRequiredFailureStops(t *testing.T) {
	file := &recordingSink{name: "file", err: errors.New("disk full")}
	redis := &recordingSink{name: "redis"}

	p := NewPublisher(file, []Sink{redis}, nil, nil)
	if err := p.Publish(context.Background(), testSnapshot()); err == nil {
		t.Fatalf("Publish() succeeded with a failing required sink")
	}
	if len(redis.writes) != 0 {
		t.Fatalf("optional sinks must not be written after the required sink fails")
	}
}

func TestPublishRefusesEmptySnapshot(t *testing.T) {
	file := &recordingSink{name: "file"}
	p := NewPublisher(file, nil, nil, nil)
	if err := p.Publish(context.Background(), types.Snapshot{}); err == nil {
		t.Fatalf("Publish() accepted a zero snapshot")
	}
	if len(file.writes) != 0 {
		t.Fatalf("zero snapshot reached a sink")
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "prices.json")
	sink := NewFileSink(path)

	if err := sink.Write(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	want := `{
  "gold": {
    "24": {
      "sell": 5765,
      "buy": 5740
    }
  },
  "silver": {
    "999": {
      "sell": 72.5,
      "buy": null
    }
  },
  "last_updated": "2026-10-18T08:30:00Z",
  "source": "isagha"
}
`
	if string(data) != want {
		t.Fatalf("file content:\n%s\nwant:\n%s", data, want)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}

	var round types.Snapshot
	if err := json.Unmarshal(data, &round); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if v, ok := round.Price(types.FieldKey{Instrument: gold24, Side: types.Buy}).Get(); !ok || v != 5740 {
		t.Fatalf("round trip gold/24/buy = %v, %v", v, ok)
	}
}

func TestRows(t *testing.T) {
	rows := Rows(testSnapshot())
	if len(rows) != 3 {
		t.Fatalf("Rows() = %d rows, want 3 (absent prices are skipped)", len(rows))
	}
	want := Row{TakenAt: takenAt, Source: "isagha", Metal: "gold", Grade: "24", Side: "sell", Price: 5765}
	if rows[0] != want {
		t.Fatalf("Rows()[0] = %+v, want %+v", rows[0], want)
	}
	if rows[2].Metal != "silver" || rows[2].Side != "sell" {
		t.Fatalf("Rows()[2] = %+v", rows[2])
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaSink(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w, topic: "bullion.snapshots"}

	if err := sink.Write(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "isagha" || !msg.Time.Equal(takenAt) {
		t.Fatalf("message key=%q time=%v", msg.Key, msg.Time)
	}
	if !strings.Contains(string(msg.Value), `"last_updated":"2026-10-18T08:30:00Z"`) {
		t.Fatalf("message value = %s", msg.Value)
	}

	if _, err := NewKafkaSink(nil, "topic", -1, time.Second); err == nil {
		t.Fatalf("NewKafkaSink() without brokers should fail")
	}
}
