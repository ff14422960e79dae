package types

import (
	"encoding/json"
	"strconv"
	"time"
)

// Price is an optional number. The zero value is absent.
type Price struct {
	value float64
	ok    bool
}

func Some(v float64) Price { return Price{value: v, ok: true} }

func None() Price { return Price{} }

func (p Price) Get() (float64, bool) { return p.value, p.ok }

func (p Price) Present() bool { return p.ok }

func (p Price) String() string {
	if !p.ok {
		return "null"
	}
	return strconv.FormatFloat(p.value, 'f', -1, 64)
}

func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Price) UnmarshalJSON(b []byte) error {
	var v *float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v == nil {
		*p = None()
		return nil
	}
	*p = Some(*v)
	return nil
}

type Quote struct {
	Sell Price `json:"sell"`
	Buy  Price `json:"buy"`
}

// Side returns the price quoted on the given side.
func (q Quote) Side(s Side) Price {
	if s == Buy {
		return q.Buy
	}
	return q.Sell
}

// WithSide returns a copy of q with the given side replaced.
func (q Quote) WithSide(s Side, p Price) Quote {
	if s == Buy {
		q.Buy = p
	} else {
		q.Sell = p
	}
	return q
}

// Snapshot is the complete set of quotes from one extraction attempt. It is immutable once built.
type Snapshot struct {
	source      string
	takenAt     time.Time
	instruments []InstrumentKey
	quotes      map[InstrumentKey]Quote
}

// NewSnapshot builds a snapshot holding an entry for every expected instrument. Quotes for
// instruments outside expected are dropped; missing ones are fully absent.
func NewSnapshot(source string, takenAt time.Time, expected []InstrumentKey, quotes map[InstrumentKey]Quote) Snapshot {
	insts := append([]InstrumentKey(nil), expected...)
	SortInstruments(insts)

	m := make(map[InstrumentKey]Quote, len(insts))
	for _, k := range insts {
		m[k] = quotes[k]
	}

	return Snapshot{
		source:      source,
		takenAt:     takenAt.UTC(),
		instruments: insts,
		quotes:      m,
	}
}

func (s Snapshot) Source() string        { return s.source }
func (s Snapshot) TakenAt() time.Time    { return s.takenAt }
func (s Snapshot) Len() int              { return len(s.instruments) }
func (s Snapshot) IsZero() bool          { return s.quotes == nil }
func (s Snapshot) FieldKeys() []FieldKey { return FieldKeys(s.instruments) }

// Instruments returns a copy of the expected instruments in output order.
func (s Snapshot) Instruments() []InstrumentKey {
	return append([]InstrumentKey(nil), s.instruments...)
}

func (s Snapshot) Quote(k InstrumentKey) (Quote, bool) {
	q, ok := s.quotes[k]
	return q, ok
}

func (s Snapshot) Price(f FieldKey) Price {
	return s.quotes[f.Instrument].Side(f.Side)
}

// WithSource returns a new snapshot carrying the given source identity.
func (s Snapshot) WithSource(source string) Snapshot {
	return NewSnapshot(source, s.takenAt, s.instruments, s.quotes)
}

// Populated counts fields holding a number.
func (s Snapshot) Populated() int {
	n := 0
	for _, f := range s.FieldKeys() {
		if s.Price(f).Present() {
			n++
		}
	}
	return n
}

// TimestampLayout is the ISO-8601 UTC layout of last_updated.
const TimestampLayout = "2006-01-02T15:04:05Z"

type snapshotJSON struct {
	Gold        map[Grade]Quote `json:"gold,omitempty"`
	Silver      map[Grade]Quote `json:"silver,omitempty"`
	LastUpdated string          `json:"last_updated"`
	Source      string          `json:"source,omitempty"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		LastUpdated: s.takenAt.Format(TimestampLayout),
		Source:      s.source,
	}
	for _, k := range s.instruments {
		var target *map[Grade]Quote
		switch k.Metal {
		case Gold:
			target = &out.Gold
		case Silver:
			target = &out.Silver
		default:
			continue
		}
		if *target == nil {
			*target = make(map[Grade]Quote)
		}
		(*target)[k.Grade] = s.quotes[k]
	}
	return json.Marshal(out)
}

func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var in snapshotJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	ts, err := time.Parse(TimestampLayout, in.LastUpdated)
	if err != nil {
		return err
	}
	quotes := make(map[InstrumentKey]Quote)
	var expected []InstrumentKey
	for metal, grades := range map[Metal]map[Grade]Quote{Gold: in.Gold, Silver: in.Silver} {
		for g, q := range grades {
			k := InstrumentKey{Metal: metal, Grade: g}
			expected = append(expected, k)
			quotes[k] = q
		}
	}
	*s = NewSnapshot(in.Source, ts, expected, quotes)
	return nil
}
