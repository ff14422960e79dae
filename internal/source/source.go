/*
Package source fetches quote pages and locates the node holding each expected price. A source
only finds fields; reading numbers out of them is the extractor's job.
*/
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"golang.org/x/net/html"

	"github.com/shanehull/bullionscraper/internal/logger"
	"github.com/shanehull/bullionscraper/internal/numparse"
	"github.com/shanehull/bullionscraper/internal/types"
)

// ErrStructural means the page was fetched but none of the expected sections were on it.
var ErrStructural = errors.New("page structure not recognized")

// Source locates one field per expected instrument and side. Fields it cannot find are left out
// of the result rather than reported as errors.
type Source interface {
	Name() string
	Locate(ctx context.Context, expected []types.InstrumentKey) (map[types.FieldKey]types.Field, error)
}

const maxBodyBytes = 8 << 20

type Option func(*fetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *fetcher) { f.client = c }
}

func WithUserAgent(ua string) Option {
	return func(f *fetcher) { f.userAgent = ua }
}

func WithLogger(l *logger.Logger) Option {
	return func(f *fetcher) { f.log = l }
}

// WithTimeout bounds the whole Locate call, including image downloads.
func WithTimeout(d time.Duration) Option {
	return func(f *fetcher) { f.timeout = d }
}

// fetcher holds what every source needs to talk to its page.
type fetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	log       *logger.Logger
}

func newFetcher(opts []Option) fetcher {
	f := fetcher{
		client:  &http.Client{Timeout: 60 * time.Second},
		timeout: 60 * time.Second,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

func (f fetcher) get(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch URL %s: %w", url, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.log.Warn("failed to close response body", logger.String("url", url), logger.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("received non-OK status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body from %s: %w", url, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (f fetcher) document(ctx context.Context, url string) (*html.Node, error) {
	body, _, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", url, err)
	}
	return doc, nil
}

func extractText(n *html.Node) string {
	var extract func(*html.Node) string

	extract = func(n *html.Node) string {
		if n.Type == html.TextNode {
			return n.Data
		}
		var sb strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			sb.WriteString(extract(c))
		}
		return sb.String()
	}

	return strings.Join(strings.Fields(extract(n)), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// findAll collects descendants of n (excluding n) matching pred, in document order. Matching nodes
// are not searched further.
func findAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var found []*html.Node
	var f func(*html.Node)

	f = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if pred(c) {
				found = append(found, c)
				continue
			}
			f(c)
		}
	}

	f(n)
	return found
}

func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if all := findAll(n, pred); len(all) > 0 {
		return all[0]
	}
	return nil
}

func byID(id string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "id") == id
	}
}

func byClass(tag, class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && (tag == "" || n.Data == tag) && hasClass(n, class)
	}
}

// gradeLabel reports whether label names grade, e.g. "عيار 24" or "24K" for "24". Digit runs are
// compared whole so that "18" does not match "180".
func gradeLabel(label string, grade types.Grade) bool {
	tokens := strings.FieldsFunc(numparse.Correct(label), func(r rune) bool {
		return !unicode.IsDigit(r)
	})
	for _, t := range tokens {
		if t == string(grade) {
			return true
		}
	}
	return false
}

// gradesOf groups expected instruments by metal.
func gradesOf(expected []types.InstrumentKey) map[types.Metal][]types.Grade {
	out := make(map[types.Metal][]types.Grade)
	for _, k := range expected {
		out[k.Metal] = append(out[k.Metal], k.Grade)
	}
	return out
}
