package testutil

import (
	"context"
	"sync"

	"xsheet-companion/lib/dom"
	"xsheet-companion/lib/extract"
	"xsheet-companion/lib/ui"
	"xsheet-companion/lib/xsheet"
)

type Notification struct {
	Level   ui.Level
	Message string
}

type CredentialRequest struct {
	Account ui.Account
	Current string
	Submit  func(string)
	Cancel  func()
}

type AuthError struct {
	Message string
	Actions ui.AuthActions
}

type Affordance struct {
	Sheets []xsheet.Sheet
	Choose func(xsheet.Sheet)
}

// Recorder is a ui.Presenter that records every call so tests can inspect
// and drive the surfaces.
type Recorder struct {
	// Page receives forwarded activations when set.
	Page dom.Page
	// WindowOpenFor is how many Closed polls a window opened through
	// OpenURL reports as open.
	WindowOpenFor int

	mu          sync.Mutex
	pickers     []*Picker
	affordances map[string]Affordance
	saved       map[string]xsheet.Sheet
	credentials []CredentialRequest
	authErrors  []AuthError
	notes       []Notification
	forwarded   []string
	opened      []string
}

func NewRecorder() *Recorder {
	return &Recorder{
		affordances: make(map[string]Affordance),
		saved:       make(map[string]xsheet.Sheet),
	}
}

func (r *Recorder) OpenPicker(ctx context.Context, el dom.Element, post extract.Post, account ui.Account, dismiss func()) ui.Picker {
	p := &Picker{Key: el.Key, Post: post, Account: account, dismiss: dismiss}
	p.Loading()
	r.mu.Lock()
	r.pickers = append(r.pickers, p)
	r.mu.Unlock()
	return p
}

func (r *Recorder) Pickers() []*Picker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Picker(nil), r.pickers...)
}

func (r *Recorder) ShowAffordance(ctx context.Context, el dom.Element, sheets []xsheet.Sheet, choose func(xsheet.Sheet)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.affordances[el.Key] = Affordance{Sheets: sheets, Choose: choose}
}

func (r *Recorder) Affordance(key string) (Affordance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.affordances[key]
	return a, ok
}

func (r *Recorder) Affordances() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.affordances)
}

func (r *Recorder) MarkSaved(ctx context.Context, el dom.Element, sheet xsheet.Sheet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved[el.Key] = sheet
}

func (r *Recorder) Saved(key string) (xsheet.Sheet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.saved[key]
	return s, ok
}

func (r *Recorder) RequestCredential(ctx context.Context, account ui.Account, current string, submit func(string), cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credentials = append(r.credentials, CredentialRequest{
		Account: account,
		Current: current,
		Submit:  submit,
		Cancel:  cancel,
	})
}

func (r *Recorder) CredentialRequests() []CredentialRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CredentialRequest(nil), r.credentials...)
}

func (r *Recorder) ShowAuthError(ctx context.Context, message string, actions ui.AuthActions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authErrors = append(r.authErrors, AuthError{Message: message, Actions: actions})
}

func (r *Recorder) AuthErrors() []AuthError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AuthError(nil), r.authErrors...)
}

func (r *Recorder) Notify(ctx context.Context, level ui.Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, Notification{Level: level, Message: message})
}

func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

func (r *Recorder) ForwardActivation(ctx context.Context, el dom.Element) error {
	r.mu.Lock()
	r.forwarded = append(r.forwarded, el.Key)
	page := r.Page
	r.mu.Unlock()

	if page == nil {
		return nil
	}
	return page.Activate(ctx, el)
}

func (r *Recorder) Forwarded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.forwarded...)
}

func (r *Recorder) OpenURL(ctx context.Context, url string) (ui.Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, url)
	return &Window{openFor: r.WindowOpenFor}, nil
}

func (r *Recorder) Opened() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.opened...)
}

// Window reports itself closed after a fixed number of polls.
type Window struct {
	mu      sync.Mutex
	openFor int
	polls   int
}

func (w *Window) Closed(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.polls++
	return w.polls > w.openFor, nil
}

// Picker records the states a picker went through.
type Picker struct {
	Key     string
	Post    extract.Post
	Account ui.Account
	dismiss func()

	mu      sync.Mutex
	states  []string
	sheets  []xsheet.Sheet
	choose  func(xsheet.Sheet)
	failure string
	retry   func()
	closed  bool
}

func (p *Picker) Loading() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, "loading")
}

func (p *Picker) Sheets(sheets []xsheet.Sheet, choose func(xsheet.Sheet)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, "sheets")
	p.sheets = sheets
	p.choose = choose
}

func (p *Picker) Failed(message string, retry func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, "failed")
	p.failure = message
	p.retry = retry
}

func (p *Picker) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, "closed")
	p.closed = true
}

func (p *Picker) States() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.states...)
}

func (p *Picker) Shown() []xsheet.Sheet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sheets
}

func (p *Picker) Failure() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failure
}

func (p *Picker) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Choose acts as the user picking sheet index i.
func (p *Picker) Choose(i int) {
	p.mu.Lock()
	choose, sheets := p.choose, p.sheets
	p.mu.Unlock()
	choose(sheets[i])
}

// Dismiss acts as the user closing the picker.
func (p *Picker) Dismiss() {
	p.Close()
	if p.dismiss != nil {
		p.dismiss()
	}
}

// Retry acts as the user pressing the retry action of a failed picker.
func (p *Picker) Retry() {
	p.mu.Lock()
	retry := p.retry
	p.mu.Unlock()
	retry()
}

func (p *Picker) CanRetry() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retry != nil
}
