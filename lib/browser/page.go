package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"xsheet-companion/lib/dom"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

//go:embed page.js
var pageJS string

const (
	bindingChanged  = "__xsheet_changed"
	bindingActivate = "__xsheet_activate"
	bindingChoose   = "__xsheet_choose"

	keyAttr = "data-xsheet-key"
)

type PageOptions struct {
	// Container is the selector snapshots are taken of, so that elements
	// keep their surrounding post. defaults to "article".
	Container string
	// defaults to 30 seconds.
	NavigateTimeout time.Duration
}

// Page is a dom.Page over a live tab. elements are snapshots of their
// container, re-read on every Lookup.
type Page struct {
	rod       *rod.Page
	container string
	changes   chan struct{}

	mu       sync.Mutex
	handlers map[string][]func()
	choices  map[string]func(int)
	// while an activation is dispatched, Lookup of its key returns the
	// element as it was when it was clicked.
	clicked map[string]dom.Element
}

func (b *Browser) OpenPage(ctx context.Context, url string, opts PageOptions) (*Page, error) {
	if opts.Container == "" {
		opts.Container = "article"
	}
	if opts.NavigateTimeout <= 0 {
		opts.NavigateTimeout = 30 * time.Second
	}

	tab, err := b.newTab()
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	p := &Page{
		rod:       tab,
		container: opts.Container,
		changes:   make(chan struct{}, 1),
		handlers:  make(map[string][]func()),
		choices:   make(map[string]func(int)),
		clicked:   make(map[string]dom.Element),
	}

	for _, name := range []string{bindingChanged, bindingActivate, bindingChoose} {
		err := proto.RuntimeAddBinding{Name: name}.Call(tab)
		if err != nil {
			tab.Close()
			return nil, fmt.Errorf("browser: add binding %s: %w", name, err)
		}
	}
	go p.listen(ctx)

	_, err = tab.EvalOnNewDocument(pageJS)
	if err != nil {
		tab.Close()
		return nil, fmt.Errorf("browser: install script: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, opts.NavigateTimeout)
	defer cancel()
	err = tab.Context(navCtx).Navigate(url)
	if err != nil {
		tab.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	err = tab.Context(navCtx).WaitLoad()
	if err != nil {
		slog.WarnContext(ctx, "wait load timed out", "url", url, "err", err)
	}

	// the install script is idempotent, this covers a document that was
	// already loading when it got registered.
	_, err = tab.Context(ctx).Eval("() => " + pageJS)
	if err != nil {
		return nil, fmt.Errorf("browser: install script: %w", err)
	}
	return p, nil
}

func (p *Page) Close() error {
	return p.rod.Close()
}

func (p *Page) listen(ctx context.Context) {
	p.rod.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		switch e.Name {
		case bindingChanged:
			select {
			case p.changes <- struct{}{}:
			default:
			}
		case bindingActivate:
			var s snapshot
			err := json.Unmarshal([]byte(e.Payload), &s)
			if err != nil {
				slog.WarnContext(ctx, "malformed activation payload", "err", err)
				return
			}
			go p.dispatch(ctx, s)
		case bindingChoose:
			key, index, ok := parseChoice(e.Payload)
			if !ok {
				slog.WarnContext(ctx, "malformed choice payload", "payload", e.Payload)
				return
			}
			p.mu.Lock()
			fn := p.choices[key]
			p.mu.Unlock()
			if fn != nil {
				go fn(index)
			}
		}
	})()
}

func parseChoice(payload string) (string, int, bool) {
	i := strings.LastIndexByte(payload, ':')
	if i < 0 {
		return "", 0, false
	}
	index, err := strconv.Atoi(payload[i+1:])
	if err != nil {
		return "", 0, false
	}
	return payload[:i], index, true
}

func (p *Page) dispatch(ctx context.Context, s snapshot) {
	el, err := s.element()
	if err != nil {
		slog.WarnContext(ctx, "failed to parse activation snapshot", "key", s.Key, "err", err)
		return
	}

	p.mu.Lock()
	handlers := append([]func(){}, p.handlers[s.Key]...)
	p.clicked[s.Key] = el
	p.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}

	p.mu.Lock()
	delete(p.clicked, s.Key)
	p.mu.Unlock()
}

type snapshot struct {
	Key  string `json:"key"`
	Html string `json:"html"`
}

// element parses the container snapshot and points at the keyed node in it.
func (s snapshot) element() (dom.Element, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s.Html))
	if err != nil {
		return dom.Element{}, err
	}
	found := doc.Find(fmt.Sprintf(`[%s="%s"]`, keyAttr, s.Key))
	if found.Length() == 0 {
		return dom.Element{}, fmt.Errorf("element %s missing from its snapshot", s.Key)
	}
	return dom.Element{Key: s.Key, Node: found.Nodes[0]}, nil
}

func (p *Page) Changes() <-chan struct{} {
	return p.changes
}

func (p *Page) QueryAll(ctx context.Context, selector string) ([]dom.Element, error) {
	res, err := p.rod.Context(ctx).Eval(
		`(selector, container) => JSON.stringify(
			Array.from(document.querySelectorAll(selector)).map((el) => window.__xsheetSnapshot(el, container))
		)`,
		selector, p.container,
	)
	if err != nil {
		return nil, fmt.Errorf("browser: query %s: %w", selector, err)
	}

	var snapshots []snapshot
	err = json.Unmarshal([]byte(res.Value.Str()), &snapshots)
	if err != nil {
		return nil, fmt.Errorf("browser: query %s: %w", selector, err)
	}

	elements := make([]dom.Element, 0, len(snapshots))
	for _, s := range snapshots {
		el, err := s.element()
		if err != nil {
			slog.DebugContext(ctx, "dropping unparsable snapshot", "key", s.Key, "err", err)
			continue
		}
		elements = append(elements, el)
	}
	return elements, nil
}

func (p *Page) Lookup(ctx context.Context, key string) (dom.Element, bool, error) {
	p.mu.Lock()
	el, ok := p.clicked[key]
	p.mu.Unlock()
	if ok {
		return el, true, nil
	}

	res, err := p.rod.Context(ctx).Eval(
		`(key, container) => {
			const el = document.querySelector('[data-xsheet-key="' + CSS.escape(key) + '"]')
			return el ? JSON.stringify(window.__xsheetSnapshot(el, container)) : ''
		}`,
		key, p.container,
	)
	if err != nil {
		return dom.Element{}, false, fmt.Errorf("browser: lookup %s: %w", key, err)
	}
	payload := res.Value.Str()
	if payload == "" {
		return dom.Element{}, false, nil
	}

	var s snapshot
	err = json.Unmarshal([]byte(payload), &s)
	if err != nil {
		return dom.Element{}, false, fmt.Errorf("browser: lookup %s: %w", key, err)
	}
	el, err = s.element()
	if err != nil {
		return dom.Element{}, false, err
	}
	return el, true, nil
}

func (p *Page) eval(ctx context.Context, key, body string, args ...any) error {
	_, err := p.rod.Context(ctx).Eval(
		`(key, ...args) => {
			const el = document.querySelector('[data-xsheet-key="' + CSS.escape(key) + '"]')
			if (!el) {
				return false
			}
			`+body+`
			return true
		}`,
		append([]any{key}, args...)...,
	)
	return err
}

func (p *Page) OnActivate(ctx context.Context, el dom.Element, fn func()) error {
	p.mu.Lock()
	p.handlers[el.Key] = append(p.handlers[el.Key], fn)
	p.mu.Unlock()

	err := p.eval(ctx, el.Key, `el.dataset.xsheetWatch = args[0]`, p.container)
	if err != nil {
		return fmt.Errorf("browser: watch %s: %w", el.Key, err)
	}
	return nil
}

// Activate clicks the element in the page, host listeners and ours run as
// for a user click.
func (p *Page) Activate(ctx context.Context, el dom.Element) error {
	err := p.eval(ctx, el.Key, `el.click()`)
	if err != nil {
		return fmt.Errorf("browser: click %s: %w", el.Key, err)
	}
	return nil
}

// AddButtons inserts one button per label after the element, fn receives
// the index of the clicked one.
func (p *Page) AddButtons(ctx context.Context, el dom.Element, labels []string, fn func(index int)) error {
	p.mu.Lock()
	p.choices[el.Key] = fn
	p.mu.Unlock()

	err := p.eval(ctx, el.Key, `
		const [labels] = args
		const old = el.parentElement && el.parentElement.querySelector(':scope > [data-xsheet-buttons]')
		if (old) {
			old.remove()
		}
		const bar = document.createElement('div')
		bar.dataset.xsheetButtons = key
		bar.style.cssText = 'display:flex;gap:4px;flex-wrap:wrap;margin-top:4px'
		labels.forEach((label, i) => {
			const button = document.createElement('button')
			button.type = 'button'
			button.textContent = label
			button.dataset.xsheetChoice = key + ':' + i
			button.style.cssText = 'font-size:12px;padding:2px 8px;border-radius:9999px;border:1px solid #1d9bf0;background:transparent;color:#1d9bf0;cursor:pointer'
			bar.appendChild(button)
		})
		el.insertAdjacentElement('afterend', bar)`,
		labels,
	)
	if err != nil {
		return fmt.Errorf("browser: add buttons %s: %w", el.Key, err)
	}
	return nil
}

func (p *Page) SetAttr(ctx context.Context, el dom.Element, key, value string) error {
	err := p.eval(ctx, el.Key, `el.setAttribute(args[0], args[1])`, key, value)
	if err != nil {
		return fmt.Errorf("browser: set %s on %s: %w", key, el.Key, err)
	}
	return nil
}

var _ dom.Page = (*Page)(nil)
