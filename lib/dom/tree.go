package dom

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Tree is an in-memory Page backed by a parsed document. the host side is
// driven through Append, Remove, SetAttr and Click. QueryAll and Lookup hand
// out elements of a cloned document, so readers never share nodes with the
// host's mutations.
type Tree struct {
	mu          sync.Mutex
	doc         *html.Node
	keys        map[*html.Node]string
	byKey       map[string]*html.Node
	next        uint64
	handlers    map[*html.Node][]func()
	activations map[*html.Node]int
	host        func(t *Tree, el Element)
	changes     chan struct{}
}

func NewTree(r io.Reader) (*Tree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return &Tree{
		doc:         doc,
		keys:        make(map[*html.Node]string),
		byKey:       make(map[string]*html.Node),
		handlers:    make(map[*html.Node][]func()),
		activations: make(map[*html.Node]int),
		changes:     make(chan struct{}, 1),
	}, nil
}

func ParseTree(contents string) (*Tree, error) {
	return NewTree(strings.NewReader(contents))
}

// SetHostBehavior installs the host page's own reaction to a click. it runs
// after the handlers registered through OnActivate.
func (t *Tree) SetHostBehavior(fn func(t *Tree, el Element)) {
	t.mu.Lock()
	t.host = fn
	t.mu.Unlock()
}

func (t *Tree) Changes() <-chan struct{} {
	return t.changes
}

func (t *Tree) notify() {
	select {
	case t.changes <- struct{}{}:
	default:
	}
}

// must be called with t.mu held.
func (t *Tree) keyFor(n *html.Node) string {
	key, ok := t.keys[n]
	if ok {
		return key
	}
	t.next++
	key = "n" + strconv.FormatUint(t.next, 10)
	t.keys[n] = key
	t.byKey[key] = n
	return key
}

// must be called with t.mu held.
func (t *Tree) attached(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == t.doc {
			return true
		}
	}
	return false
}

// snapshot clones the whole document and returns the clones of nodes, in
// order. must be called with t.mu held.
func (t *Tree) snapshot(nodes []*html.Node) []*html.Node {
	want := make(map[*html.Node]int, len(nodes))
	for i, n := range nodes {
		want[n] = i
	}
	out := make([]*html.Node, len(nodes))

	var clone func(n *html.Node) *html.Node
	clone = func(n *html.Node) *html.Node {
		c := &html.Node{
			Type:      n.Type,
			DataAtom:  n.DataAtom,
			Data:      n.Data,
			Namespace: n.Namespace,
			Attr:      append([]html.Attribute(nil), n.Attr...),
		}
		if i, ok := want[n]; ok {
			out[i] = c
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			c.AppendChild(clone(child))
		}
		return c
	}
	clone(t.doc)
	return out
}

func (t *Tree) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	nodes := goquery.NewDocumentFromNode(t.doc).Find(selector).Nodes
	clones := t.snapshot(nodes)
	elements := make([]Element, len(nodes))
	for i, n := range nodes {
		elements[i] = Element{Key: t.keyFor(n), Node: clones[i]}
	}
	return elements, nil
}

func (t *Tree) Lookup(ctx context.Context, key string) (Element, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.byKey[key]
	if !ok || !t.attached(n) {
		return Element{}, false, nil
	}
	return Element{Key: key, Node: t.snapshot([]*html.Node{n})[0]}, true, nil
}

func (t *Tree) OnActivate(ctx context.Context, el Element, fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.byKey[el.Key]
	if !ok {
		return fmt.Errorf("dom: unknown element %q", el.Key)
	}
	t.handlers[n] = append(t.handlers[n], fn)
	return nil
}

func (t *Tree) Activate(ctx context.Context, el Element) error {
	return t.Click(el)
}

// Click activates the element the way a user would: registered handlers
// run in registration order, then the host behaviour.
func (t *Tree) Click(el Element) error {
	t.mu.Lock()
	n, ok := t.byKey[el.Key]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("dom: unknown element %q", el.Key)
	}
	t.activations[n]++
	handlers := append([]func(){}, t.handlers[n]...)
	host := t.host
	t.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
	if host != nil {
		host(t, Element{Key: el.Key, Node: n})
	}
	return nil
}

// Handlers reports how many handlers were registered on the element.
func (t *Tree) Handlers(el Element) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handlers[t.byKey[el.Key]])
}

// Activations reports how many times the element was activated.
func (t *Tree) Activations(el Element) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activations[t.byKey[el.Key]]
}

// Append parses fragment in the context of the first element matching
// parentSelector and appends the result to it, like a feed loading more posts.
func (t *Tree) Append(parentSelector, fragment string) error {
	t.mu.Lock()
	parents := goquery.NewDocumentFromNode(t.doc).Find(parentSelector).Nodes
	if len(parents) == 0 {
		t.mu.Unlock()
		return fmt.Errorf("dom: no element matches %q", parentSelector)
	}
	parent := parents[0]

	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	t.mu.Unlock()

	if len(nodes) > 0 {
		t.notify()
	}
	return nil
}

// Remove detaches the element from the document.
func (t *Tree) Remove(el Element) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.byKey[el.Key]
	if !ok || n.Parent == nil {
		return
	}
	n.Parent.RemoveChild(n)
}

// SetAttr sets (or adds) an attribute on the element.
func (t *Tree) SetAttr(el Element, key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.byKey[el.Key]
	if !ok {
		return
	}
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}
