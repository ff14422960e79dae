package source

import (
	"context"
	"fmt"

	"golang.org/x/net/html"

	"github.com/shanehull/bullionscraper/internal/logger"
	"github.com/shanehull/bullionscraper/internal/types"
)

// Table is the backup quote page: a plain text table per metal where each row starts with the
// grade label and carries the sell and buy prices in fixed columns. Prices are text, so nothing
// on this page needs recognition.
type Table struct {
	fetcher
	name       string
	pageURL    string
	sellColumn int
	buyColumn  int
	sectionIDs map[types.Metal]string
}

type TableOption func(*Table)

// WithSectionID overrides the element id of a metal's table section. Defaults to the metal name.
func WithSectionID(metal types.Metal, id string) TableOption {
	return func(t *Table) { t.sectionIDs[metal] = id }
}

// NewTable creates the backup source. Columns are zero-based indexes of row cells; cell 0 holds the
// grade label.
func NewTable(name, pageURL string, sellColumn, buyColumn int, opts []Option, tableOpts ...TableOption) *Table {
	t := &Table{
		fetcher:    newFetcher(opts),
		name:       name,
		pageURL:    pageURL,
		sellColumn: sellColumn,
		buyColumn:  buyColumn,
		sectionIDs: make(map[types.Metal]string),
	}
	for _, opt := range tableOpts {
		opt(t)
	}
	return t
}

func (t *Table) Name() string { return t.name }

func (t *Table) Locate(ctx context.Context, expected []types.InstrumentKey) (map[types.FieldKey]types.Field, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	doc, err := t.document(ctx, t.pageURL)
	if err != nil {
		return nil, err
	}

	fields := make(map[types.FieldKey]types.Field)
	sections := 0

	for metal, grades := range gradesOf(expected) {
		section := findFirst(doc, byID(t.sectionID(metal)))
		if section == nil {
			continue
		}
		sections++

		rows := traverseAndCollect(section)
		for _, grade := range grades {
			inst := types.InstrumentKey{Metal: metal, Grade: grade}
			cells := matchRow(rows, grade)
			if cells == nil {
				t.log.Debug("grade row not found", logger.String("source", t.name), logger.String("instrument", inst.String()))
				continue
			}
			t.collect(fields, inst, cells)
		}
	}

	if sections == 0 {
		return nil, fmt.Errorf("%s: no metal sections on %s: %w", t.name, t.pageURL, ErrStructural)
	}
	return fields, nil
}

func (t *Table) sectionID(m types.Metal) string {
	if id, ok := t.sectionIDs[m]; ok {
		return id
	}
	return string(m)
}

func (t *Table) collect(fields map[types.FieldKey]types.Field, inst types.InstrumentKey, cells []string) {
	columns := map[types.Side]int{types.Sell: t.sellColumn, types.Buy: t.buyColumn}
	for _, side := range types.Sides {
		col := columns[side]
		if col >= len(cells) || cells[col] == "" {
			continue
		}
		fields[types.FieldKey{Instrument: inst, Side: side}] = types.TextField(cells[col])
	}
}

func matchRow(rows [][]string, grade types.Grade) []string {
	for _, cells := range rows {
		if len(cells) > 0 && gradeLabel(cells[0], grade) {
			return cells
		}
	}
	return nil
}

// traverseAndCollect walks n and returns the cell texts of every row inside a tbody. Rows before
// the first tbody, such as a thead, are skipped.
func traverseAndCollect(n *html.Node) [][]string {
	var rows [][]string
	var f func(*html.Node)
	var inTableBody bool

	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tbody" {
			inTableBody = true
		}

		if inTableBody && n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, extractText(c))
				}
			}
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
			return
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}

	f(n)
	return rows
}
