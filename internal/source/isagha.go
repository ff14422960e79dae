package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/shanehull/bullionscraper/internal/logger"
	"github.com/shanehull/bullionscraper/internal/types"
)

const imageFetchWorkers = 4

// Panels is the primary quote page. Each metal has a section with one panel per grade; a panel
// carries a gauge label and a stats block whose first value is the sell price and second the buy
// price. Values are usually rendered as images, sometimes as text.
type Panels struct {
	fetcher
	name    string
	pageURL string
}

func NewPanels(name, pageURL string, opts ...Option) *Panels {
	return &Panels{fetcher: newFetcher(opts), name: name, pageURL: pageURL}
}

func (p *Panels) Name() string { return p.name }

func (p *Panels) Locate(ctx context.Context, expected []types.InstrumentKey) (map[types.FieldKey]types.Field, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	doc, err := p.document(ctx, p.pageURL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(p.pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL %s: %w", p.pageURL, err)
	}

	cells, sections := locatePanels(doc, expected)
	if sections == 0 {
		return nil, fmt.Errorf("%s: no metal sections on %s: %w", p.name, p.pageURL, ErrStructural)
	}

	return p.resolveCells(ctx, base, cells), nil
}

// cell is a located value node before its image, if any, has been loaded.
type cell struct {
	key  types.FieldKey
	node *html.Node
}

// locatePanels finds the value node for every expected field and counts the metal sections found.
func locatePanels(doc *html.Node, expected []types.InstrumentKey) ([]cell, int) {
	var cells []cell
	sections := 0

	for metal, grades := range gradesOf(expected) {
		section := findFirst(doc, byID(string(metal)))
		if section == nil {
			continue
		}
		sections++

		panels := findAll(section, byClass("div", "isagha-panel"))
		for _, grade := range grades {
			values := panelValues(panels, grade)
			inst := types.InstrumentKey{Metal: metal, Grade: grade}
			for i, side := range types.Sides {
				if i < len(values) {
					cells = append(cells, cell{key: types.FieldKey{Instrument: inst, Side: side}, node: values[i]})
				}
			}
		}
	}
	return cells, sections
}

func panelValues(panels []*html.Node, grade types.Grade) []*html.Node {
	for _, panel := range panels {
		gauge := findFirst(panel, byClass("div", "gauge"))
		if gauge == nil || !gradeLabel(extractText(gauge), grade) {
			continue
		}
		stats := findFirst(panel, byClass("div", "stats"))
		if stats == nil {
			return nil
		}
		return findAll(stats, byClass("div", "value"))
	}
	return nil
}

// resolveCells turns located nodes into fields, downloading referenced images concurrently.
// A cell whose image cannot be loaded and which has no text is left out.
func (p *Panels) resolveCells(ctx context.Context, base *url.URL, cells []cell) map[types.FieldKey]types.Field {
	fields := make(map[types.FieldKey]types.Field, len(cells))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, imageFetchWorkers)

	for _, c := range cells {
		img := findFirst(c.node, byClass("img", "price-cell"))
		if img == nil {
			if text := extractText(c.node); text != "" {
				mu.Lock()
				fields[c.key] = types.TextField(text)
				mu.Unlock()
			}
			continue
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(c cell, src string) {
			defer wg.Done()
			defer func() { <-sem }()

			raw, err := p.loadImage(ctx, base, src)
			if err != nil {
				p.log.Warn("price image not loaded", logger.String("field", c.key.String()), logger.Error(err))
				return
			}

			mu.Lock()
			fields[c.key] = types.ImageField(raw)
			mu.Unlock()
		}(c, attr(img, "src"))
	}

	wg.Wait()
	return fields
}

func (p *Panels) loadImage(ctx context.Context, base *url.URL, src string) (types.RawImage, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return types.RawImage{}, fmt.Errorf("image has no src")
	}
	if strings.HasPrefix(src, "data:") {
		return decodeDataURI(src)
	}

	ref, err := url.Parse(src)
	if err != nil {
		return types.RawImage{}, fmt.Errorf("invalid image src %q: %w", src, err)
	}
	target := base.ResolveReference(ref).String()

	body, contentType, err := p.get(ctx, target)
	if err != nil {
		return types.RawImage{}, err
	}
	return types.RawImage{Data: body, Encoding: mediaType(contentType, body)}, nil
}

// decodeDataURI decodes an RFC 2397 data URI such as data:image/png;base64,iVBOR...
func decodeDataURI(uri string) (types.RawImage, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return types.RawImage{}, fmt.Errorf("malformed data URI")
	}

	isBase64 := strings.HasSuffix(meta, ";base64")
	meta = strings.TrimSuffix(meta, ";base64")

	var data []byte
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return types.RawImage{}, fmt.Errorf("decode data URI: %w", err)
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return types.RawImage{}, fmt.Errorf("decode data URI: %w", err)
		}
		data = []byte(unescaped)
	}

	return types.RawImage{Data: data, Encoding: mediaType(meta, data)}, nil
}

// mediaType returns the declared MIME type without parameters, or a sniffed one when nothing
// usable was declared.
func mediaType(declared string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}
