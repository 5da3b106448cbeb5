package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"xsheet-companion/lib/dom"
	"xsheet-companion/lib/extract"
	"xsheet-companion/lib/xsheet"

	"github.com/stretchr/testify/require"
	"github.com/tcnksm/go-input"
)

var testSheets = []xsheet.Sheet{
	{ID: "s1", Title: "Reading list", CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	{ID: "s2", Title: "Research"},
}

func newTerminal(answers string) (*Terminal, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &Terminal{
		Out:   out,
		Input: &input.UI{Writer: &bytes.Buffer{}, Reader: strings.NewReader(answers)},
	}, out
}

func TestAccountString(t *testing.T) {
	require.Equal(t, "not logged in", Account{Name: "jane"}.String())
	require.Equal(t, "jane (42)", Account{LoggedIn: true, Name: "jane", ID: "42"}.String())
	require.Equal(t, "42", Account{LoggedIn: true, ID: "42"}.String())
}

func TestTerminalPickerChoose(t *testing.T) {
	term, out := newTerminal("2\n")

	chosen := make(chan xsheet.Sheet, 1)
	picker := term.OpenPicker(
		context.Background(),
		dom.Element{},
		extract.Post{ID: "1", URL: "https://x.com/a/status/1"},
		Account{LoggedIn: true, Name: "jane"},
		func() { t.Error("unexpected dismiss") },
	)
	picker.Sheets(testSheets, func(s xsheet.Sheet) { chosen <- s })

	select {
	case s := <-chosen:
		require.Equal(t, "s2", s.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("sheet was never chosen")
	}
	require.Contains(t, out.String(), "Reading list")
	require.Contains(t, out.String(), "2024/03/01")
}

func TestTerminalPickerDismiss(t *testing.T) {
	term, _ := newTerminal("\n")

	dismissed := make(chan struct{})
	picker := term.OpenPicker(
		context.Background(),
		dom.Element{},
		extract.Post{ID: "1", URL: "https://x.com/a/status/1"},
		Account{},
		func() { close(dismissed) },
	)
	picker.Sheets(testSheets, func(xsheet.Sheet) { t.Error("unexpected choice") })

	select {
	case <-dismissed:
	case <-time.After(5 * time.Second):
		t.Fatal("picker was never dismissed")
	}
}

func TestTerminalPickerNoSheets(t *testing.T) {
	term, out := newTerminal("")

	dismissed := 0
	picker := term.OpenPicker(
		context.Background(),
		dom.Element{},
		extract.Post{ID: "1", URL: "https://x.com/a/status/1"},
		Account{},
		func() { dismissed++ },
	)
	picker.Sheets(nil, func(xsheet.Sheet) { t.Error("unexpected choice") })

	require.Equal(t, 1, dismissed)
	require.Contains(t, out.String(), "no sheets available")
}

func TestTerminalPickerFailed(t *testing.T) {
	term, out := newTerminal("")
	picker := term.OpenPicker(
		context.Background(),
		dom.Element{},
		extract.Post{ID: "1", URL: "https://x.com/a/status/1"},
		Account{},
		nil,
	)
	picker.Failed("Failed to save the post.", nil)

	require.Contains(t, out.String(), "failed: Failed to save the post.\n")
	require.NotContains(t, out.String(), "load sheets")
}

func TestValidateIndex(t *testing.T) {
	require.NoError(t, validateIndex("", 2))
	require.NoError(t, validateIndex(" 2 ", 2))
	require.ErrorIs(t, validateIndex("3", 2), input.ErrOutOfRange)
	require.ErrorIs(t, validateIndex("x", 2), input.ErrNotNumber)
}

func TestTerminalRequestCredential(t *testing.T) {
	term, out := newTerminal("  tok-9 \n")

	submitted := make(chan string, 1)
	term.RequestCredential(context.Background(), Account{}, "", func(c string) { submitted <- c }, nil)

	select {
	case c := <-submitted:
		require.Equal(t, "tok-9", c)
	case <-time.After(5 * time.Second):
		t.Fatal("credential was never submitted")
	}
	require.Contains(t, out.String(), "not logged in")
}

type fakeOverlay struct {
	labels []string
	fn     func(int)
	attrs  map[string]string
}

func (o *fakeOverlay) AddButtons(ctx context.Context, el dom.Element, labels []string, fn func(int)) error {
	o.labels = labels
	o.fn = fn
	return nil
}

func (o *fakeOverlay) SetAttr(ctx context.Context, el dom.Element, key, value string) error {
	o.attrs[key] = value
	return nil
}

func TestTerminalAffordance(t *testing.T) {
	overlay := &fakeOverlay{attrs: map[string]string{}}
	term, _ := newTerminal("")
	term.Overlay = overlay

	var chosen []string
	term.ShowAffordance(context.Background(), dom.Element{Key: "n1"}, testSheets, func(s xsheet.Sheet) {
		chosen = append(chosen, s.ID)
	})
	require.Equal(t, []string{"Reading list", "Research"}, overlay.labels)

	overlay.fn(0)
	overlay.fn(7)
	require.Equal(t, []string{"s1"}, chosen)

	term.MarkSaved(context.Background(), dom.Element{Key: "n1"}, testSheets[0])
	require.Equal(t, "Reading list", overlay.attrs[SavedAttr])
}

func TestTerminalNotify(t *testing.T) {
	term, out := newTerminal("")
	term.Notify(context.Background(), LevelSuccess, `saved to "Research"`)
	require.Equal(t, "[success] saved to \"Research\"\n", out.String())
}
