// Package ui defines the surfaces the companion shows to the user and a
// terminal implementation of them.
package ui

import (
	"context"
	"fmt"

	"xsheet-companion/lib/dom"
	"xsheet-companion/lib/extract"
	"xsheet-companion/lib/xsheet"
)

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Account is the identity displayed next to pickers and prompts.
type Account struct {
	LoggedIn bool
	Name     string
	ID       string
}

func (a Account) String() string {
	if !a.LoggedIn {
		return "not logged in"
	}
	switch {
	case a.Name != "" && a.ID != "":
		return fmt.Sprintf("%s (%s)", a.Name, a.ID)
	case a.Name != "":
		return a.Name
	case a.ID != "":
		return a.ID
	}
	return "logged in"
}

// Picker is an open sheet picker. it starts in the loading state.
type Picker interface {
	Loading()
	// Sheets shows the choices, choose runs at most once.
	Sheets(sheets []xsheet.Sheet, choose func(xsheet.Sheet))
	// Failed shows message, retry is nil when retrying makes no sense.
	Failed(message string, retry func())
	Close()
}

type AuthActions struct {
	Retry        func()
	Regenerate   func()
	OpenSettings func()
}

// Window is a browser window opened for the user.
type Window interface {
	Closed(ctx context.Context) (bool, error)
}

type Presenter interface {
	// OpenPicker opens a picker for post, dismiss runs when the user closes it
	// without choosing.
	OpenPicker(ctx context.Context, el dom.Element, post extract.Post, account Account, dismiss func()) Picker
	// ShowAffordance shows a save button per sheet next to the like control.
	ShowAffordance(ctx context.Context, el dom.Element, sheets []xsheet.Sheet, choose func(xsheet.Sheet))
	// MarkSaved refreshes the like control to show the post was saved.
	MarkSaved(ctx context.Context, el dom.Element, sheet xsheet.Sheet)
	// RequestCredential asks for the api credential, current prefills the
	// prompt. cancel runs when the user declines.
	RequestCredential(ctx context.Context, account Account, current string, submit func(credential string), cancel func())
	ShowAuthError(ctx context.Context, message string, actions AuthActions)
	Notify(ctx context.Context, level Level, message string)
	// ForwardActivation replays an activation on the host like control.
	ForwardActivation(ctx context.Context, el dom.Element) error
	OpenURL(ctx context.Context, url string) (Window, error)
}
