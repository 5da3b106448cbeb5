// Package watcher discovers like controls as the host page renders them and
// hands each one to an attach step exactly once.
package watcher

import (
	"context"
	"log/slog"
	"sync"

	"xsheet-companion/lib/dom"
)

type AttachFunc func(ctx context.Context, el dom.Element)

type Options struct {
	// capacity of the attach queue, defaults to 256.
	QueueSize int
}

type Watcher struct {
	page     dom.Page
	selector string
	attach   AttachFunc
	queue    chan dom.Element

	mu   sync.Mutex
	seen map[string]struct{}

	wg      sync.WaitGroup
	pending sync.WaitGroup
}

func New(page dom.Page, selector string, attach AttachFunc, opts Options) *Watcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	return &Watcher{
		page:     page,
		selector: selector,
		attach:   attach,
		queue:    make(chan dom.Element, opts.QueueSize),
		seen:     make(map[string]struct{}),
	}
}

// Start runs one scan right away, then keeps scanning whenever the page
// reports added nodes until ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.consume(ctx)
	}()

	w.Scan(ctx)

	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-w.page.Changes():
				if !ok {
					return
				}
				w.Scan(ctx)
			}
		}
	}()
}

func (w *Watcher) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case el := <-w.queue:
			w.attach(ctx, el)
			w.pending.Done()
		}
	}
}

// Scan marks and queues every matching element not seen before and returns
// how many were new.
func (w *Watcher) Scan(ctx context.Context) int {
	elements, err := w.page.QueryAll(ctx, w.selector)
	if err != nil {
		slog.WarnContext(ctx, "scan failed", "selector", w.selector, "err", err)
		return 0
	}

	found := 0
	for _, el := range elements {
		w.mu.Lock()
		_, seen := w.seen[el.Key]
		if !seen {
			w.seen[el.Key] = struct{}{}
		}
		w.mu.Unlock()
		if seen {
			continue
		}

		found++
		w.pending.Add(1)
		select {
		case w.queue <- el:
		case <-ctx.Done():
			w.pending.Done()
			return found
		}
	}
	if found > 0 {
		slog.DebugContext(ctx, "discovered elements", "count", found)
	}
	return found
}

// Seen reports how many distinct elements were discovered so far.
func (w *Watcher) Seen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

// Settle blocks until every discovered element went through attach.
func (w *Watcher) Settle() {
	w.pending.Wait()
}

// Wait blocks until the watcher goroutines exited after ctx was cancelled.
func (w *Watcher) Wait() {
	w.wg.Wait()
}
