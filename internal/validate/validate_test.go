package validate

import (
	"testing"
	"time"

	"github.com/shanehull/bullionscraper/internal/types"
)

var instruments = []types.InstrumentKey{
	{Metal: types.Gold, Grade: "24"},
	{Metal: types.Gold, Grade: "21"},
	{Metal: types.Gold, Grade: "18"},
	{Metal: types.Silver, Grade: "999"},
	{Metal: types.Silver, Grade: "925"},
	{Metal: types.Silver, Grade: "800"},
}

func fullQuotes() map[types.InstrumentKey]types.Quote {
	return map[types.InstrumentKey]types.Quote{
		instruments[0]: {Sell: types.Some(5765), Buy: types.Some(5740)},
		instruments[1]: {Sell: types.Some(5045), Buy: types.Some(5020)},
		instruments[2]: {Sell: types.Some(4325), Buy: types.Some(4300)},
		instruments[3]: {Sell: types.Some(72.5), Buy: types.Some(70)},
		instruments[4]: {Sell: types.Some(67), Buy: types.Some(65)},
		instruments[5]: {Sell: types.Some(58), Buy: types.Some(56)},
	}
}

func snapshot(quotes map[types.InstrumentKey]types.Quote) types.Snapshot {
	return types.NewSnapshot("test", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), instruments, quotes)
}

func TestPlausible(t *testing.T) {
	p := DefaultPlausibility()
	tests := []struct {
		metal types.Metal
		value float64
		want  bool
	}{
		{types.Gold, 745, false},
		{types.Gold, 2000, true},
		{types.Gold, 5765, true},
		{types.Gold, 57650, false},
		{types.Silver, 72.5, true},
		{types.Silver, 7.25, false},
		{types.Metal("platinum"), 1000, false},
	}
	for _, tt := range tests {
		if got := p.Plausible(tt.metal, tt.value); got != tt.want {
			t.Errorf("Plausible(%s, %v) = %v, want %v", tt.metal, tt.value, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	v := NewSnapshotValidator(DefaultPlausibility(), DefaultCoverageThreshold)

	t.Run("complete snapshot accepted", func(t *testing.T) {
		got := v.Validate(snapshot(fullQuotes()))
		if !got.Accepted || got.ValidFields != 12 || got.TotalFields != 12 || got.Coverage != 1 {
			t.Fatalf("Validate() = %+v", got)
		}
	})

	t.Run("one implausible gold price taints everything", func(t *testing.T) {
		q := fullQuotes()
		q[instruments[0]] = q[instruments[0]].WithSide(types.Sell, types.Some(745))
		got := v.Validate(snapshot(q))
		if got.Accepted {
			t.Fatalf("Validate() accepted a snapshot with an implausible field")
		}
		want := types.FieldKey{Instrument: instruments[0], Side: types.Sell}
		if len(got.Suspicious) != 1 || got.Suspicious[0] != want {
			t.Fatalf("Suspicious = %v, want [%s]", got.Suspicious, want)
		}
		if got.ValidFields != 11 {
			t.Fatalf("ValidFields = %d, want 11", got.ValidFields)
		}
	})

	t.Run("ten of twelve accepted", func(t *testing.T) {
		q := fullQuotes()
		q[instruments[5]] = types.Quote{}
		got := v.Validate(snapshot(q))
		if !got.Accepted || got.ValidFields != 10 {
			t.Fatalf("Validate() = %+v, want accepted with 10 valid", got)
		}
		if got.Coverage < 0.833 || got.Coverage > 0.834 {
			t.Fatalf("Coverage = %v, want 0.833", got.Coverage)
		}
	})

	t.Run("coverage below threshold rejected", func(t *testing.T) {
		q := fullQuotes()
		q[instruments[4]] = types.Quote{}
		q[instruments[5]] = types.Quote{Sell: types.Some(58)}
		got := v.Validate(snapshot(q))
		if got.Accepted || got.ValidFields != 9 {
			t.Fatalf("Validate() = %+v, want rejected with 9 valid", got)
		}
	})

	t.Run("missing instruments count as absent", func(t *testing.T) {
		got := v.Validate(snapshot(nil))
		if got.Accepted || got.TotalFields != 12 || got.ValidFields != 0 {
			t.Fatalf("Validate() = %+v", got)
		}
	})

	t.Run("zero fields never accepted", func(t *testing.T) {
		lenient := NewSnapshotValidator(DefaultPlausibility(), 0)
		got := lenient.Validate(types.NewSnapshot("test", time.Now(), nil, nil))
		if got.Accepted || got.TotalFields != 0 {
			t.Fatalf("Validate() = %+v, want rejected", got)
		}
	})
}
