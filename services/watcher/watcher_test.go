package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"xsheet-companion/lib/dom"

	"github.com/stretchr/testify/require"
)

const like = `[data-testid="like"]`

type attachLog struct {
	mu   sync.Mutex
	keys []string
}

func (l *attachLog) attach(ctx context.Context, el dom.Element) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, el.Key)
}

func (l *attachLog) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}

func TestWatcherDiscoversEachElementOnce(t *testing.T) {
	tree, err := dom.ParseTree(`<main id="feed">
		<article><button data-testid="like"></button></article>
		<article><button data-testid="like"></button></article>
	</main>`)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	log := &attachLog{}
	w := New(tree, like, log.attach, Options{})
	w.Start(ctx)
	w.Settle()
	require.Len(t, log.Keys(), 2)

	require.Equal(t, 0, w.Scan(ctx))
	require.Equal(t, 0, w.Scan(ctx))

	require.NoError(t, tree.Append("#feed", `<article><button data-testid="like"></button></article>`))
	require.Eventually(t, func() bool {
		return len(log.Keys()) == 3
	}, 5*time.Second, 10*time.Millisecond)

	// a mutation that adds no new control discovers nothing.
	require.NoError(t, tree.Append("#feed", `<p>ad</p>`))
	require.Equal(t, 0, w.Scan(ctx))
	w.Settle()

	keys := log.Keys()
	require.Len(t, keys, 3)
	unique := map[string]bool{}
	for _, k := range keys {
		unique[k] = true
	}
	require.Len(t, unique, 3)
	require.Equal(t, 3, w.Seen())

	likes, err := tree.QueryAll(ctx, like)
	require.NoError(t, err)
	require.Len(t, likes, 3)

	cancel()
	w.Wait()
}

type brokenPage struct {
	changes chan struct{}
}

func (p brokenPage) Changes() <-chan struct{} { return p.changes }

func (p brokenPage) QueryAll(ctx context.Context, selector string) ([]dom.Element, error) {
	return nil, errors.New("page crashed")
}

func (p brokenPage) Lookup(ctx context.Context, key string) (dom.Element, bool, error) {
	return dom.Element{}, false, nil
}

func (p brokenPage) OnActivate(ctx context.Context, el dom.Element, fn func()) error {
	return nil
}

func (p brokenPage) Activate(ctx context.Context, el dom.Element) error {
	return nil
}

func TestWatcherScanErrorYieldsNothing(t *testing.T) {
	page := brokenPage{changes: make(chan struct{}, 1)}
	log := &attachLog{}
	w := New(page, like, log.attach, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	page.changes <- struct{}{}
	require.Equal(t, 0, w.Scan(ctx))

	cancel()
	w.Wait()
	require.Empty(t, log.Keys())
}
