// Package dom models the host page the companion runs against: a document
// that changes on its own, which the companion can query and observe but
// never controls.
package dom

import (
	"context"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Element is a handle on one node of the host document. Key identifies the
// underlying node for the lifetime of the page, Node is the most recent view
// of it and may belong to a snapshot.
type Element struct {
	Key  string
	Node *html.Node
}

// Selection wraps the node for goquery traversal. ancestors stay reachable.
func (e Element) Selection() *goquery.Selection {
	if e.Node == nil {
		return &goquery.Selection{}
	}
	return goquery.NewDocumentFromNode(e.Node).Selection
}

// Page is the host document as seen by the companion.
type Page interface {
	// Changes receives a value whenever nodes were added somewhere in the
	// document. notifications coalesce, one value may stand for many additions.
	Changes() <-chan struct{}
	// QueryAll returns every element currently matching selector.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// Lookup returns the current view of the element with key. ok is false
	// once the host removed the node.
	Lookup(ctx context.Context, key string) (el Element, ok bool, err error)
	// OnActivate registers fn to run every time the element is activated.
	OnActivate(ctx context.Context, el Element, fn func()) error
	// Activate dispatches one activation to the element, as a user click would.
	Activate(ctx context.Context, el Element) error
}
