// Package classify runs the save workflow for each liked post: identify the
// post, let the user pick a sheet, file the post and mark it, at most once.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"xsheet-companion/lib/dom"
	"xsheet-companion/lib/extract"
	"xsheet-companion/lib/telemetry"
	"xsheet-companion/lib/ui"
	"xsheet-companion/lib/xsheet"
	"xsheet-companion/services/session"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = telemetry.Tracer("xsheet.services.classify")
var meter = telemetry.Meter("xsheet.services.classify")

var saveCounter, _ = meter.Int64Counter(
	"post_saves",
	metric.WithDescription("create post calls by outcome"),
)

const (
	msgLoadFailed = "Failed to load sheets."
	msgSaveFailed = "Failed to save the post."
	msgNoToken    = "Please set your API token first."
	msgNoSheets   = "No sheets yet. Create a sheet on X-Sheet first."
)

type Session interface {
	Credential(ctx context.Context) (string, bool)
	IsLoggedIn(ctx context.Context) bool
	Identity() session.Identity
	ReportUnauthorized(ctx context.Context, message string)
}

type API interface {
	ListSheets(ctx context.Context, credential string) ([]xsheet.Sheet, error)
	CreatePost(ctx context.Context, credential string, post xsheet.CreatePostRequest) error
}

type Options struct {
	// how long the sheet listing used for affordances is reused, defaults
	// to 1 minute.
	SheetsFreshFor time.Duration
}

type Workflow struct {
	page      dom.Page
	extractor *extract.Extractor
	session   Session
	api       API
	presenter ui.Presenter

	// sheet listings for affordances, keyed by credential.
	sheets *expirable.LRU[string, []xsheet.Sheet]

	mu    sync.Mutex
	posts map[string]*post

	wg sync.WaitGroup
}

func New(page dom.Page, extractor *extract.Extractor, sess Session, api API, presenter ui.Presenter, opts Options) *Workflow {
	if opts.SheetsFreshFor <= 0 {
		opts.SheetsFreshFor = time.Minute
	}
	return &Workflow{
		page:      page,
		extractor: extractor,
		session:   sess,
		api:       api,
		presenter: presenter,
		sheets:    expirable.NewLRU[string, []xsheet.Sheet](4, nil, opts.SheetsFreshFor),
		posts:     make(map[string]*post),
	}
}

// must be called with w.mu held.
func (w *Workflow) post(key string) *post {
	p, ok := w.posts[key]
	if !ok {
		p = &post{}
		w.posts[key] = p
	}
	return p
}

// State reports where the workflow of the like control with key is.
func (w *Workflow) State(key string) (State, FailureKind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.posts[key]
	if !ok {
		return Idle, NoFailure
	}
	return p.state, p.failure
}

// Classified reports whether the post of the like control with key was saved.
func (w *Workflow) Classified(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.posts[key]
	return ok && p.classified
}

// Wait blocks until every outstanding network call finished.
func (w *Workflow) Wait() {
	w.wg.Wait()
}

func (w *Workflow) goTracked(fn func()) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

// current returns the freshest view of el, the page may have re-rendered it.
func (w *Workflow) current(ctx context.Context, el dom.Element) dom.Element {
	cur, ok, err := w.page.Lookup(ctx, el.Key)
	if err != nil || !ok {
		return el
	}
	return cur
}

// settleListing records a failed sheet listing. it returns false, changing
// nothing, when the interaction was dismissed or superseded meanwhile.
func (w *Workflow) settleListing(key string, generation int, kind FailureKind, release bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.post(key)
	if p.generation != generation {
		return false
	}
	p.state = Failed
	p.failure = kind
	if release {
		p.inFlight = false
	}
	return true
}

// settleSave records a failed save. a dismissed interaction kept the post
// busy until now, so it is always released. it returns whether ui effects
// are still wanted.
func (w *Workflow) settleSave(key string, generation int, kind FailureKind, release bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.post(key)
	current := p.generation == generation
	p.state = Failed
	p.failure = kind
	if release || !current {
		p.inFlight = false
	}
	return current
}

// Attach is the watcher's attach step: it registers the activation handler
// and, when logged in, shows the save affordance.
func (w *Workflow) Attach(ctx context.Context, el dom.Element) {
	err := w.page.OnActivate(ctx, el, func() {
		w.HandleActivate(ctx, el)
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to register activation handler", "key", el.Key, "err", err)
	}

	if !w.session.IsLoggedIn(ctx) {
		return
	}
	credential, ok := w.session.Credential(ctx)
	if !ok {
		return
	}
	sheets, err := w.affordanceSheets(ctx, credential)
	if err != nil {
		slog.DebugContext(ctx, "no affordance, failed to list sheets", "key", el.Key, "err", err)
		return
	}
	if len(sheets) == 0 {
		return
	}
	w.presenter.ShowAffordance(ctx, el, sheets, func(sheet xsheet.Sheet) {
		w.SaveDirect(ctx, el, sheet)
	})
}

func (w *Workflow) affordanceSheets(ctx context.Context, credential string) ([]xsheet.Sheet, error) {
	cached, hit := w.sheets.Get(credential)
	if hit {
		return cached, nil
	}
	sheets, err := w.api.ListSheets(ctx, credential)
	if err != nil {
		return nil, err
	}
	w.sheets.Add(credential, sheets)
	return sheets, nil
}

// HandleActivate reacts to the user activating the host like control.
func (w *Workflow) HandleActivate(ctx context.Context, el dom.Element) {
	cur := w.current(ctx, el)

	w.mu.Lock()
	p := w.post(el.Key)
	if p.classified || p.inFlight {
		w.mu.Unlock()
		return
	}
	// unliking an already liked post.
	if w.extractor.HasUnlike(cur) {
		w.mu.Unlock()
		return
	}
	p.inFlight = true
	p.state = Extracting
	p.failure = NoFailure
	p.generation++
	generation := p.generation
	w.mu.Unlock()

	record, ok := w.extractor.Extract(cur)
	if !ok || record.URL == "" {
		slog.DebugContext(ctx, "skipping post without url", "key", el.Key)
		w.settleListing(el.Key, generation, FailureSilent, true)
		return
	}

	w.mu.Lock()
	p.state = SelectingSheet
	w.mu.Unlock()

	picker := w.presenter.OpenPicker(ctx, cur, record, w.session.Identity().Account(), func() {
		w.dismiss(el.Key, generation)
	})
	w.goTracked(func() {
		w.loadSheets(ctx, cur, generation, record, picker)
	})
}

func (w *Workflow) dismiss(key string, generation int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.post(key)
	if p.generation != generation {
		return
	}
	p.generation++
	// an outstanding save keeps the post busy until it completes.
	if p.state == Saving {
		return
	}
	p.inFlight = false
	if !p.classified {
		p.state = Idle
		p.failure = NoFailure
	}
}

func (w *Workflow) loadSheets(ctx context.Context, el dom.Element, generation int, record extract.Post, picker ui.Picker) {
	ctx, span := tracer.Start(ctx, "loadSheets")
	defer span.End()

	credential, ok := w.session.Credential(ctx)
	if !ok {
		if w.settleListing(el.Key, generation, FailureAuth, true) {
			picker.Close()
			w.presenter.Notify(ctx, ui.LevelError, msgNoToken)
		}
		return
	}

	sheets, err := w.api.ListSheets(ctx, credential)
	switch {
	case err == nil && len(sheets) == 0:
		if w.release(el.Key, generation) {
			picker.Close()
			w.presenter.Notify(ctx, ui.LevelInfo, msgNoSheets)
		}
	case err == nil:
		if w.stale(el.Key, generation) {
			return
		}
		picker.Sheets(sheets, func(sheet xsheet.Sheet) {
			w.choose(ctx, el, generation, record, sheet, picker)
		})
	case errors.Is(err, xsheet.ErrUnauthorized):
		span.RecordError(err)
		span.SetStatus(codes.Error, "credential rejected")
		w.sheets.Purge()
		if w.settleListing(el.Key, generation, FailureAuth, true) {
			picker.Close()
			w.session.ReportUnauthorized(ctx, "")
		}
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list sheets")
		slog.WarnContext(ctx, "failed to list sheets", "err", err)
		if w.settleListing(el.Key, generation, FailureRetryable, false) {
			picker.Failed(xsheet.UserMessage(err, msgLoadFailed), func() {
				w.retry(ctx, el, generation, record, picker)
			})
		}
	}
}

// release ends an interaction that had nothing to offer, the post goes back
// to Idle and the next activation starts over.
func (w *Workflow) release(key string, generation int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.post(key)
	if p.generation != generation {
		return false
	}
	p.generation++
	p.inFlight = false
	p.state = Idle
	p.failure = NoFailure
	return true
}

func (w *Workflow) stale(key string, generation int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.post(key).generation != generation
}

func (w *Workflow) retry(ctx context.Context, el dom.Element, generation int, record extract.Post, picker ui.Picker) {
	w.mu.Lock()
	p := w.post(el.Key)
	if p.generation != generation || p.classified {
		w.mu.Unlock()
		return
	}
	p.inFlight = true
	p.state = SelectingSheet
	p.failure = NoFailure
	w.mu.Unlock()

	picker.Loading()
	w.goTracked(func() {
		w.loadSheets(ctx, el, generation, record, picker)
	})
}

// choose is the picker path into Saving.
func (w *Workflow) choose(ctx context.Context, el dom.Element, generation int, record extract.Post, sheet xsheet.Sheet, picker ui.Picker) {
	w.mu.Lock()
	p := w.post(el.Key)
	if p.generation != generation || p.classified || p.state == Saving {
		w.mu.Unlock()
		return
	}
	p.state = Saving
	w.mu.Unlock()

	w.goTracked(func() {
		w.save(ctx, el, generation, record, sheet, picker)
	})
}

// SaveDirect files the post around el into sheet without a picker, then
// replays the like on the host page.
func (w *Workflow) SaveDirect(ctx context.Context, el dom.Element, sheet xsheet.Sheet) {
	cur := w.current(ctx, el)

	w.mu.Lock()
	p := w.post(el.Key)
	if p.classified || p.inFlight {
		w.mu.Unlock()
		return
	}
	p.inFlight = true
	p.state = Extracting
	p.failure = NoFailure
	p.generation++
	generation := p.generation
	w.mu.Unlock()

	record, ok := w.extractor.Extract(cur)
	if !ok || record.URL == "" {
		slog.DebugContext(ctx, "skipping post without url", "key", el.Key)
		w.settleListing(el.Key, generation, FailureSilent, true)
		return
	}

	w.mu.Lock()
	p.state = Saving
	w.mu.Unlock()

	w.goTracked(func() {
		w.save(ctx, cur, generation, record, sheet, nil)
	})
}

// save runs the create post call. picker is nil on the affordance path.
func (w *Workflow) save(ctx context.Context, el dom.Element, generation int, record extract.Post, sheet xsheet.Sheet, picker ui.Picker) {
	ctx, span := tracer.Start(ctx, "save")
	defer span.End()
	span.SetAttributes(
		attribute.String("post_id", record.ID),
		attribute.String("sheet_id", sheet.ID),
		attribute.Bool("direct", picker == nil),
	)

	credential, ok := w.session.Credential(ctx)
	if !ok {
		if w.settleSave(el.Key, generation, FailureAuth, true) {
			if picker != nil {
				picker.Close()
			}
			w.presenter.Notify(ctx, ui.LevelError, msgNoToken)
		}
		return
	}

	err := w.api.CreatePost(ctx, credential, xsheet.CreatePostRequest{
		URL:     record.URL,
		Content: record.Text,
		SheetID: sheet.ID,
	})
	switch {
	case err == nil:
		saveCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "saved")))
		w.saved(ctx, el, generation, sheet, picker)
	case errors.Is(err, xsheet.ErrUnauthorized):
		saveCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "unauthorized")))
		span.RecordError(err)
		span.SetStatus(codes.Error, "credential rejected")
		w.sheets.Purge()
		visible := w.settleSave(el.Key, generation, FailureAuth, true)
		if visible && picker != nil {
			picker.Close()
		}
		w.session.ReportUnauthorized(ctx, "")
	default:
		saveCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save post")
		slog.WarnContext(ctx, "failed to save post", "url", record.URL, "sheet", sheet.ID, "err", err)

		// the picker stays open with a retry action, the affordance path has
		// nothing left open.
		if !w.settleSave(el.Key, generation, FailureRetryable, picker == nil) {
			return
		}
		message := xsheet.UserMessage(err, msgSaveFailed)
		w.presenter.Notify(ctx, ui.LevelError, message)
		if picker != nil {
			picker.Failed(message, func() {
				w.retry(ctx, el, generation, record, picker)
			})
		}
	}
}

func (w *Workflow) saved(ctx context.Context, el dom.Element, generation int, sheet xsheet.Sheet, picker ui.Picker) {
	w.mu.Lock()
	p := w.post(el.Key)
	p.classified = true
	p.sheet = sheet.ID
	p.state = Classified
	p.failure = NoFailure
	p.inFlight = false
	visible := p.generation == generation
	w.mu.Unlock()

	cur := w.current(ctx, el)
	w.presenter.MarkSaved(ctx, cur, sheet)
	if !visible {
		return
	}

	w.presenter.Notify(ctx, ui.LevelSuccess, fmt.Sprintf("Saved to \"%s\".", sheet.Title))
	if picker != nil {
		picker.Close()
		return
	}
	// the host only learns about the like through its own control. the mark
	// is already set so this activation does not re-enter the workflow.
	if w.extractor.HasUnlike(cur) {
		return
	}
	err := w.presenter.ForwardActivation(ctx, cur)
	if err != nil {
		slog.WarnContext(ctx, "failed to forward activation", "key", el.Key, "err", err)
	}
}
