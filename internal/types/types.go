/*
Package types holds the data model shared by the extraction pipeline: instrument identities,
field addresses, the text-or-image field variant, quotes and immutable snapshots.
*/
package types

import (
	"fmt"
	"sort"
)

type Metal string

const (
	Gold   Metal = "gold"
	Silver Metal = "silver"
)

// Metals lists the instrument classes in output order.
var Metals = []Metal{Gold, Silver}

func (m Metal) Valid() bool {
	return m == Gold || m == Silver
}

// Grade is a purity label such as "24" for gold or "925" for silver.
type Grade string

type InstrumentKey struct {
	Metal Metal
	Grade Grade
}

func (k InstrumentKey) String() string {
	return string(k.Metal) + "/" + string(k.Grade)
}

type Side string

const (
	Sell Side = "sell"
	Buy  Side = "buy"
)

// Sides lists both quoted sides in output order.
var Sides = []Side{Sell, Buy}

// FieldKey addresses one quoted number.
type FieldKey struct {
	Instrument InstrumentKey
	Side       Side
}

func (f FieldKey) String() string {
	return f.Instrument.String() + "/" + string(f.Side)
}

// FieldKeys expands instruments into every instrument x side address, in instrument order.
func FieldKeys(instruments []InstrumentKey) []FieldKey {
	keys := make([]FieldKey, 0, len(instruments)*len(Sides))
	for _, inst := range instruments {
		for _, side := range Sides {
			keys = append(keys, FieldKey{Instrument: inst, Side: side})
		}
	}
	return keys
}

// SortInstruments orders instruments by metal (catalog order) then grade.
func SortInstruments(instruments []InstrumentKey) {
	rank := func(m Metal) int {
		for i, x := range Metals {
			if x == m {
				return i
			}
		}
		return len(Metals)
	}
	sort.SliceStable(instruments, func(i, j int) bool {
		a, b := instruments[i], instruments[j]
		if a.Metal != b.Metal {
			return rank(a.Metal) < rank(b.Metal)
		}
		return a.Grade < b.Grade
	})
}

// RawImage is an encoded image as located on a source page.
type RawImage struct {
	Data     []byte
	Encoding string // declared MIME type, e.g. image/png; may be empty
}

type FieldKind int

const (
	FieldText FieldKind = iota + 1
	FieldImage
)

func (k FieldKind) String() string {
	switch k {
	case FieldText:
		return "text"
	case FieldImage:
		return "image"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// Field is what a source locates for one FieldKey: either human-readable text or a rendered image.
type Field struct {
	kind  FieldKind
	text  string
	image RawImage
}

func TextField(text string) Field {
	return Field{kind: FieldText, text: text}
}

func ImageField(img RawImage) Field {
	return Field{kind: FieldImage, image: img}
}

func (f Field) Kind() FieldKind { return f.kind }
func (f Field) Text() string    { return f.text }
func (f Field) Image() RawImage { return f.image }

// Verdict is the outcome of validating one snapshot.
type Verdict struct {
	Accepted    bool
	ValidFields int
	TotalFields int
	Coverage    float64
	Suspicious  []FieldKey
	Reason      string
}
