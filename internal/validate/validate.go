/*
Package validate decides whether extracted prices can be trusted. Plausibility checks a single
value against the closed range configured for its metal; SnapshotValidator turns a whole snapshot
into a Verdict, where one implausible value rejects everything.
*/
package validate

import (
	"fmt"

	"github.com/shanehull/bullionscraper/internal/types"
)

// DefaultCoverageThreshold is the fraction of plausible fields a snapshot must exceed.
const DefaultCoverageThreshold = 0.8

// Range is a closed price interval in the source's currency unit.
type Range struct {
	Min float64 `yaml:"min" validate:"gte=0"`
	Max float64 `yaml:"max" validate:"gtfield=Min"`
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Plausibility holds one range per metal. A metal without a range is never plausible.
type Plausibility map[types.Metal]Range

// DefaultPlausibility covers Egyptian pound quotes per gram.
func DefaultPlausibility() Plausibility {
	return Plausibility{
		types.Gold:   {Min: 2000, Max: 20000},
		types.Silver: {Min: 20, Max: 1000},
	}
}

func (p Plausibility) Plausible(metal types.Metal, v float64) bool {
	r, ok := p[metal]
	return ok && r.Contains(v)
}

type SnapshotValidator struct {
	ranges    Plausibility
	threshold float64
}

func NewSnapshotValidator(ranges Plausibility, threshold float64) *SnapshotValidator {
	return &SnapshotValidator{ranges: ranges, threshold: threshold}
}

// Validate checks every field of s. Suspicious fields veto the snapshot; otherwise it is accepted
// when the share of plausible fields is strictly above the threshold.
func (v *SnapshotValidator) Validate(s types.Snapshot) types.Verdict {
	keys := s.FieldKeys()
	verdict := types.Verdict{TotalFields: len(keys)}

	for _, k := range keys {
		value, ok := s.Price(k).Get()
		if !ok {
			continue
		}
		if !v.ranges.Plausible(k.Instrument.Metal, value) {
			verdict.Suspicious = append(verdict.Suspicious, k)
			continue
		}
		verdict.ValidFields++
	}

	if verdict.TotalFields == 0 {
		verdict.Reason = "snapshot has no fields"
		return verdict
	}
	verdict.Coverage = float64(verdict.ValidFields) / float64(verdict.TotalFields)

	switch {
	case len(verdict.Suspicious) > 0:
		verdict.Reason = fmt.Sprintf("%d suspicious field(s), first %s", len(verdict.Suspicious), verdict.Suspicious[0])
	case verdict.Coverage <= v.threshold:
		verdict.Reason = fmt.Sprintf("coverage %.3f not above %.3f", verdict.Coverage, v.threshold)
	default:
		verdict.Accepted = true
	}
	return verdict
}
