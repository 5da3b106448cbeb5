// Package extract derives a post record (id, url, text, author) from the
// markup around a like control.
package extract

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"xsheet-companion/lib/dom"
	"xsheet-companion/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/PuerkitoBio/purell"
)

// Markup names the selectors of the host page the extractor depends on.
type Markup struct {
	Container     string
	LikeControl   string
	UnlikeControl string
	Timestamp     string
	StatusPath    string
	Text          string
	Author        string
}

var DefaultMarkup = Markup{
	Container:     "article",
	LikeControl:   `[data-testid="like"]`,
	UnlikeControl: `[data-testid="unlike"]`,
	Timestamp:     "time",
	StatusPath:    "/status/",
	Text:          `[data-testid="tweetText"]`,
	Author:        `[data-testid="User-Name"]`,
}

const (
	DefaultBaseURL      = "https://x.com"
	DefaultCanonicalURL = "https://twitter.com/i/status/%s"
)

// Post is the record sent to the remote api. URL is non-empty only when ID is.
type Post struct {
	ID     string
	URL    string
	Text   string
	Author string
}

// Strategy derives a raw post URL from a container. it returns "" when it
// cannot find one.
type Strategy struct {
	Name    string
	Resolve func(container *goquery.Selection, x *Extractor) string
}

var TimestampLink = Strategy{
	Name: "timestamp-link",
	Resolve: func(container *goquery.Selection, x *Extractor) string {
		link := container.Find(x.markup.Timestamp).First().Closest("a")
		href, _ := link.Attr("href")
		return href
	},
}

var StatusLink = Strategy{
	Name: "status-link",
	Resolve: func(container *goquery.Selection, x *Extractor) string {
		selector := fmt.Sprintf(`a[href*="%s"]`, x.markup.StatusPath)
		href, _ := container.Find(selector).First().Attr("href")
		return href
	},
}

var trailingDigits = regexp.MustCompile(`(\d+)$`)

var LabelledBy = Strategy{
	Name: "labelled-by",
	Resolve: func(container *goquery.Selection, x *Extractor) string {
		for _, attr := range []string{"aria-labelledby", "aria-label"} {
			value, ok := container.Attr(attr)
			if !ok {
				continue
			}
			match := trailingDigits.FindStringSubmatch(strings.TrimSpace(value))
			if match == nil {
				continue
			}
			return fmt.Sprintf(x.canonical, match[1])
		}
		return ""
	},
}

var DefaultStrategies = []Strategy{TimestampLink, StatusLink, LabelledBy}

type Options struct {
	Markup Markup
	// BaseURL resolves relative hrefs, defaults to DefaultBaseURL.
	BaseURL string
	// CanonicalURL is a format string with one %s for the post id used when
	// only an id could be recovered.
	CanonicalURL string
	Strategies   []Strategy
}

type Extractor struct {
	markup     Markup
	base       *url.URL
	canonical  string
	strategies []Strategy
}

func New(opts Options) (*Extractor, error) {
	if opts.Markup == (Markup{}) {
		opts.Markup = DefaultMarkup
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.CanonicalURL == "" {
		opts.CanonicalURL = DefaultCanonicalURL
	}
	if opts.Strategies == nil {
		opts.Strategies = DefaultStrategies
	}
	if strings.Count(opts.CanonicalURL, "%s") != 1 {
		return nil, fmt.Errorf("canonical url must contain exactly one %%s: %q", opts.CanonicalURL)
	}

	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base url must be absolute: %q", opts.BaseURL)
	}

	return &Extractor{
		markup:     opts.Markup,
		base:       base,
		canonical:  opts.CanonicalURL,
		strategies: opts.Strategies,
	}, nil
}

func (x *Extractor) Markup() Markup {
	return x.markup
}

// Container returns the post container enclosing el, if any.
func (x *Extractor) Container(el dom.Element) (*goquery.Selection, bool) {
	container := el.Selection().Closest(x.markup.Container)
	return container, container.Length() > 0
}

// HasUnlike reports whether the post around el already shows the host's
// liked state.
func (x *Extractor) HasUnlike(el dom.Element) bool {
	container, ok := x.Container(el)
	if !ok {
		return false
	}
	return container.Find(x.markup.UnlikeControl).Length() > 0
}

// Extract derives the post around el. ok is false only when el has no
// container. when no strategy recovers a post id, ID and URL stay empty and
// the text and author are still filled in.
func (x *Extractor) Extract(el dom.Element) (post Post, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("recovered from panic during extraction", "key", el.Key, "panic", r)
			post, ok = Post{}, false
		}
	}()

	container, found := x.Container(el)
	if !found {
		slog.Debug("no post container", "key", el.Key)
		return Post{}, false
	}

	text := htmlutil.CleanText(container.Find(x.markup.Text).First())
	author := htmlutil.CleanText(container.Find(x.markup.Author).First())

	for _, strategy := range x.strategies {
		raw := strategy.Resolve(container, x)
		if raw == "" {
			continue
		}
		canonical, id := x.canonicalize(raw)
		if id == "" {
			slog.Debug("strategy produced url without post id", "strategy", strategy.Name, "url", raw)
			continue
		}
		return Post{
			ID:     id,
			URL:    canonical,
			Text:   text,
			Author: author,
		}, true
	}

	slog.Debug("no strategy recovered a post url", "key", el.Key)
	return Post{Text: text, Author: author}, true
}

func (x *Extractor) canonicalize(raw string) (string, string) {
	u, err := x.base.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", ""
	}
	normalized := purell.NormalizeURL(u, purell.FlagsSafe|purell.FlagRemoveFragment)
	id := x.IDFromURL(normalized)
	if id == "" {
		return "", ""
	}
	return normalized, id
}

// IDFromURL returns the path segment following the status path marker.
func (x *Extractor) IDFromURL(u string) string {
	return idFromURL(u, x.markup.StatusPath)
}

// IDFromURL is Extractor.IDFromURL with the default markup.
func IDFromURL(u string) string {
	return idFromURL(u, DefaultMarkup.StatusPath)
}

func idFromURL(u, marker string) string {
	_, rest, found := strings.Cut(u, marker)
	if !found {
		return ""
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
