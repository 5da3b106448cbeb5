package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"xsheet-companion/lib/dom"
	"xsheet-companion/lib/extract"
	"xsheet-companion/lib/timezone"
	"xsheet-companion/lib/xsheet"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/tcnksm/go-input"
)

// Overlay draws companion controls on the host page.
type Overlay interface {
	AddButtons(ctx context.Context, el dom.Element, labels []string, fn func(index int)) error
	SetAttr(ctx context.Context, el dom.Element, key, value string) error
}

// Opener opens a url in a window the user can close.
type Opener func(ctx context.Context, url string) (Window, error)

// SavedAttr is set on a like control once its post was saved.
const SavedAttr = "data-xsheet-saved"

const (
	actionRetry      = "retry"
	actionRegenerate = "regenerate"
	actionSettings   = "open settings"
	actionDismiss    = "dismiss"
)

// Terminal is a Presenter that prompts on a terminal. the host page is only
// touched through Page (activations) and the optional Overlay.
type Terminal struct {
	Out     io.Writer
	Input   *input.UI
	Page    dom.Page
	Overlay Overlay
	Open    Opener

	// one prompt at a time.
	prompting sync.Mutex
	outMu     sync.Mutex
}

func (t *Terminal) printf(format string, args ...any) {
	t.outMu.Lock()
	defer t.outMu.Unlock()
	fmt.Fprintf(t.Out, format, args...)
}

func (t *Terminal) Notify(ctx context.Context, level Level, message string) {
	t.printf("[%s] %s\n", level, message)
}

// RenderSheets writes the sheets as a table.
func RenderSheets(out io.Writer, sheets []xsheet.Sheet) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"#", "Sheet", "Created", "ID"})
	for i, s := range sheets {
		tw.AppendRow(table.Row{i + 1, s.Title, timezone.Format(s.CreatedAt), s.ID})
	}
	tw.SetStyle(table.StyleRounded)
	tw.Render()
}

func (t *Terminal) OpenPicker(ctx context.Context, el dom.Element, post extract.Post, account Account, dismiss func()) Picker {
	p := &terminalPicker{
		t:       t,
		post:    post,
		account: account,
		dismiss: dismiss,
	}
	p.Loading()
	return p
}

type terminalPicker struct {
	t       *Terminal
	post    extract.Post
	account Account
	dismiss func()

	mu     sync.Mutex
	closed bool
}

func (p *terminalPicker) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *terminalPicker) Loading() {
	p.t.printf("loading sheets for %s (%s)...\n", p.post.URL, p.account)
}

func (p *terminalPicker) Sheets(sheets []xsheet.Sheet, choose func(xsheet.Sheet)) {
	if len(sheets) == 0 {
		p.t.printf("no sheets available, create one first.\n")
		p.Close()
		if p.dismiss != nil {
			p.dismiss()
		}
		return
	}
	go func() {
		p.t.prompting.Lock()
		defer p.t.prompting.Unlock()
		if p.isClosed() {
			return
		}

		p.t.outMu.Lock()
		fmt.Fprintf(p.t.Out, "save %s to which sheet?\n", p.post.URL)
		RenderSheets(p.t.Out, sheets)
		p.t.outMu.Unlock()

		answer, err := p.t.Input.Ask("sheet number (empty to dismiss):", &input.Options{
			HideOrder: true,
			ValidateFunc: func(s string) error {
				return validateIndex(s, len(sheets))
			},
		})
		if p.isClosed() {
			return
		}
		if err != nil || strings.TrimSpace(answer) == "" {
			if err != nil && !errors.Is(err, input.ErrEmpty) {
				slog.Debug("sheet prompt failed", "err", err)
			}
			p.Close()
			if p.dismiss != nil {
				p.dismiss()
			}
			return
		}
		index, _ := strconv.Atoi(strings.TrimSpace(answer))
		choose(sheets[index-1])
	}()
}

func validateIndex(s string, count int) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	index, err := strconv.Atoi(s)
	if err != nil {
		return input.ErrNotNumber
	}
	if index < 1 || index > count {
		return input.ErrOutOfRange
	}
	return nil
}

func (p *terminalPicker) Failed(message string, retry func()) {
	if p.isClosed() {
		return
	}
	p.t.printf("failed: %s\n", message)
	if retry == nil {
		return
	}
	go func() {
		p.t.prompting.Lock()
		defer p.t.prompting.Unlock()
		if p.isClosed() {
			return
		}
		answer, err := p.t.Input.Select("what now?", []string{actionRetry, actionDismiss}, &input.Options{
			Default: actionDismiss,
		})
		if p.isClosed() {
			return
		}
		if err == nil && answer == actionRetry {
			retry()
			return
		}
		p.Close()
		if p.dismiss != nil {
			p.dismiss()
		}
	}()
}

func (p *terminalPicker) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (t *Terminal) ShowAffordance(ctx context.Context, el dom.Element, sheets []xsheet.Sheet, choose func(xsheet.Sheet)) {
	if t.Overlay == nil {
		slog.DebugContext(ctx, "no overlay, skipping affordance", "key", el.Key)
		return
	}
	labels := make([]string, len(sheets))
	for i, s := range sheets {
		labels[i] = s.Title
	}
	err := t.Overlay.AddButtons(ctx, el, labels, func(index int) {
		if index < 0 || index >= len(sheets) {
			return
		}
		choose(sheets[index])
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to add affordance", "key", el.Key, "err", err)
	}
}

func (t *Terminal) MarkSaved(ctx context.Context, el dom.Element, sheet xsheet.Sheet) {
	if t.Overlay == nil {
		return
	}
	err := t.Overlay.SetAttr(ctx, el, SavedAttr, sheet.Title)
	if err != nil {
		slog.WarnContext(ctx, "failed to mark saved", "key", el.Key, "err", err)
	}
}

func (t *Terminal) RequestCredential(ctx context.Context, account Account, current string, submit func(string), cancel func()) {
	go func() {
		t.prompting.Lock()
		defer t.prompting.Unlock()

		t.printf("account: %s\n", account)
		credential, err := t.Input.Ask("api token (empty to cancel):", &input.Options{
			Default:     current,
			HideDefault: true,
			HideOrder:   true,
		})
		credential = strings.TrimSpace(credential)
		if err != nil || credential == "" {
			if cancel != nil {
				cancel()
			}
			return
		}
		submit(credential)
	}()
}

func (t *Terminal) ShowAuthError(ctx context.Context, message string, actions AuthActions) {
	t.printf("[%s] %s\n", LevelError, message)
	go func() {
		t.prompting.Lock()
		defer t.prompting.Unlock()

		answer, err := t.Input.Select(
			"the api token was rejected, what now?",
			[]string{actionRetry, actionRegenerate, actionSettings, actionDismiss},
			&input.Options{Default: actionDismiss},
		)
		if err != nil {
			return
		}
		var action func()
		switch answer {
		case actionRetry:
			action = actions.Retry
		case actionRegenerate:
			action = actions.Regenerate
		case actionSettings:
			action = actions.OpenSettings
		}
		if action != nil {
			// actions may prompt again.
			go action()
		}
	}()
}

func (t *Terminal) ForwardActivation(ctx context.Context, el dom.Element) error {
	if t.Page == nil {
		return fmt.Errorf("no host page to forward the activation to")
	}
	return t.Page.Activate(ctx, el)
}

func (t *Terminal) OpenURL(ctx context.Context, url string) (Window, error) {
	if t.Open == nil {
		t.printf("open %s in your browser\n", url)
		return closedWindow{}, nil
	}
	return t.Open(ctx, url)
}

type closedWindow struct{}

func (closedWindow) Closed(ctx context.Context) (bool, error) {
	return true, nil
}
