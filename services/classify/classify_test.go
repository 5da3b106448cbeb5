package classify

import (
	"context"
	"net/http"
	"testing"
	"time"

	"xsheet-companion/lib/dom"
	"xsheet-companion/lib/extract"
	"xsheet-companion/lib/testutil"
	"xsheet-companion/lib/tokenstore"
	"xsheet-companion/lib/ui"
	"xsheet-companion/lib/xsheet"
	"xsheet-companion/services/session"

	"github.com/stretchr/testify/require"
)

const feed = `<main id="feed">
<article>
	<div data-testid="User-Name">Jane @jane</div>
	<a href="/jane/status/1790000000000000001"><time>1h</time></a>
	<div data-testid="tweetText">a post worth keeping</div>
	<button data-testid="like"></button>
</article>
<article>
	<div data-testid="tweetText">promoted, no links</div>
	<button data-testid="like"></button>
</article>
</main>`

const postURL = "https://x.com/jane/status/1790000000000000001"

type fixture struct {
	ctx       context.Context
	tree      *dom.Tree
	api       *testutil.FakeAPI
	presenter *testutil.Recorder
	workflow  *Workflow
	linked    dom.Element
	unlinked  dom.Element
}

func setup(t *testing.T) fixture {
	ctx := context.Background()

	tree, err := dom.ParseTree(feed)
	require.NoError(t, err)
	likes, err := tree.QueryAll(ctx, extract.DefaultMarkup.LikeControl)
	require.NoError(t, err)
	require.Len(t, likes, 2)

	api := testutil.NewFakeAPI(t, "tok")
	api.SetSheets(testutil.FakeSheet{ID: "1", Title: "Reading List", CreatedAt: "2024-01-01T00:00:00Z"})
	client, err := xsheet.NewClient(xsheet.ClientOptions{BaseUrl: api.URL(), Timeout: 5 * time.Second})
	require.NoError(t, err)

	store := tokenstore.NewMemory()
	require.NoError(t, store.Set(ctx, tokenstore.CredentialKey, "tok"))
	presenter := testutil.NewRecorder()
	presenter.Page = tree
	sess := session.New(store, client, presenter, session.Options{SettingsURL: client.SettingsURL()})

	x, err := extract.New(extract.Options{})
	require.NoError(t, err)

	workflow := New(tree, x, sess, client, presenter, Options{})
	return fixture{
		ctx:       ctx,
		tree:      tree,
		api:       api,
		presenter: presenter,
		workflow:  workflow,
		linked:    likes[0],
		unlinked:  likes[1],
	}
}

// toggleLike makes the host flip its like control the way the feed does.
func (f fixture) toggleLike() {
	f.tree.SetHostBehavior(func(tree *dom.Tree, el dom.Element) {
		tree.SetAttr(el, "data-testid", "unlike")
	})
}

func (f fixture) attach(t *testing.T, el dom.Element) {
	f.workflow.Attach(f.ctx, el)
	f.workflow.Wait()
}

func (f fixture) click(t *testing.T, el dom.Element) {
	require.NoError(t, f.tree.Click(el))
	f.workflow.Wait()
}

func TestSingleSheetListing(t *testing.T) {
	f := setup(t)
	f.attach(t, f.linked)
	f.click(t, f.linked)

	pickers := f.presenter.Pickers()
	require.Len(t, pickers, 1)
	require.Equal(t, []string{"loading", "sheets"}, pickers[0].States())
	require.Equal(t, postURL, pickers[0].Post.URL)
	require.True(t, pickers[0].Account.LoggedIn)

	shown := pickers[0].Shown()
	require.Len(t, shown, 1)
	require.Equal(t, "Reading List", shown[0].Title)

	state, _ := f.workflow.State(f.linked.Key)
	require.Equal(t, SelectingSheet, state)
}

func TestSaveSuccess(t *testing.T) {
	f := setup(t)
	f.toggleLike()
	f.attach(t, f.linked)
	f.click(t, f.linked)

	picker := f.presenter.Pickers()[0]
	picker.Choose(0)
	f.workflow.Wait()

	require.True(t, f.workflow.Classified(f.linked.Key))
	state, failure := f.workflow.State(f.linked.Key)
	require.Equal(t, Classified, state)
	require.Equal(t, NoFailure, failure)
	require.True(t, picker.IsClosed())
	require.Contains(t, f.presenter.Notifications(), testutil.Notification{
		Level:   ui.LevelSuccess,
		Message: `Saved to "Reading List".`,
	})
	require.Equal(t, []xsheet.CreatePostRequest{{
		URL:     postURL,
		Content: "a post worth keeping",
		SheetID: "1",
	}}, f.api.Posts())
	saved, ok := f.presenter.Saved(f.linked.Key)
	require.True(t, ok)
	require.Equal(t, "1", saved.ID)

	// liked again after an unlike, still classified.
	f.tree.SetAttr(f.linked, "data-testid", "like")
	f.click(t, f.linked)
	f.click(t, f.linked)
	require.Len(t, f.presenter.Pickers(), 1)
	require.Len(t, f.api.Posts(), 1)
	require.Equal(t, 1, f.api.Calls(testutil.PostsPath))
}

func TestSaveUnauthorized(t *testing.T) {
	f := setup(t)
	f.attach(t, f.linked)
	f.click(t, f.linked)

	f.api.Respond(testutil.PostsPath, testutil.Response{
		Status: http.StatusUnauthorized,
		Body:   `{"success":false,"error":"token revoked"}`,
	})
	picker := f.presenter.Pickers()[0]
	picker.Choose(0)
	f.workflow.Wait()

	state, failure := f.workflow.State(f.linked.Key)
	require.Equal(t, Failed, state)
	require.Equal(t, FailureAuth, failure)
	require.False(t, f.workflow.Classified(f.linked.Key))
	require.True(t, picker.IsClosed())
	require.Len(t, f.presenter.AuthErrors(), 1)

	// the post stays eligible.
	f.api.Reset(testutil.PostsPath)
	f.click(t, f.linked)
	require.Len(t, f.presenter.Pickers(), 2)
}

func TestSaveTransientFailure(t *testing.T) {
	f := setup(t)
	f.attach(t, f.linked)
	f.click(t, f.linked)

	f.api.Respond(testutil.PostsPath, testutil.Response{
		Status: http.StatusInternalServerError,
		Body:   `{"success":false,"error":"sheet is locked"}`,
	})
	picker := f.presenter.Pickers()[0]
	picker.Choose(0)
	f.workflow.Wait()

	state, failure := f.workflow.State(f.linked.Key)
	require.Equal(t, Failed, state)
	require.Equal(t, FailureRetryable, failure)
	require.False(t, f.workflow.Classified(f.linked.Key))
	require.Contains(t, f.presenter.Notifications(), testutil.Notification{
		Level:   ui.LevelError,
		Message: "sheet is locked",
	})
	require.Equal(t, "sheet is locked", picker.Failure())

	f.api.Reset(testutil.PostsPath)
	picker.Retry()
	f.workflow.Wait()
	picker.Choose(0)
	f.workflow.Wait()
	require.True(t, f.workflow.Classified(f.linked.Key))
	require.Len(t, f.api.Posts(), 2)
}

func TestEmptyURLIssuesNoNetworkCall(t *testing.T) {
	f := setup(t)
	f.attach(t, f.unlinked)
	before := f.api.TotalCalls()

	f.click(t, f.unlinked)
	require.Empty(t, f.presenter.Pickers())
	require.Equal(t, before, f.api.TotalCalls())

	state, failure := f.workflow.State(f.unlinked.Key)
	require.Equal(t, Failed, state)
	require.Equal(t, FailureSilent, failure)
	require.Empty(t, f.presenter.Notifications())
}

func TestSecondActivationWhileInFlightIsIgnored(t *testing.T) {
	f := setup(t)
	f.attach(t, f.linked)

	require.NoError(t, f.tree.Click(f.linked))
	require.NoError(t, f.tree.Click(f.linked))
	f.workflow.Wait()
	require.Len(t, f.presenter.Pickers(), 1)
	// one listing for the affordance, one for the picker.
	require.Equal(t, 2, f.api.Calls(testutil.SheetsPath))
}

func TestDismissReleasesPost(t *testing.T) {
	f := setup(t)
	f.attach(t, f.linked)
	f.click(t, f.linked)

	f.presenter.Pickers()[0].Dismiss()
	state, _ := f.workflow.State(f.linked.Key)
	require.Equal(t, Idle, state)

	f.click(t, f.linked)
	require.Len(t, f.presenter.Pickers(), 2)
}

func TestEmptyListingReleasesPost(t *testing.T) {
	f := setup(t)
	f.api.SetSheets()
	f.attach(t, f.linked)

	f.click(t, f.linked)
	pickers := f.presenter.Pickers()
	require.Len(t, pickers, 1)
	require.Equal(t, []string{"loading", "closed"}, pickers[0].States())
	require.Contains(t, f.presenter.Notifications(), testutil.Notification{
		Level:   ui.LevelInfo,
		Message: msgNoSheets,
	})
	state, failure := f.workflow.State(f.linked.Key)
	require.Equal(t, Idle, state)
	require.Equal(t, NoFailure, failure)

	// the next like starts a new interaction.
	before := f.api.Calls(testutil.SheetsPath)
	f.click(t, f.linked)
	require.Len(t, f.presenter.Pickers(), 2)
	require.Equal(t, before+1, f.api.Calls(testutil.SheetsPath))
}

func TestUnlikeIsIgnored(t *testing.T) {
	f := setup(t)
	f.attach(t, f.linked)
	f.tree.SetAttr(f.linked, "data-testid", "unlike")

	f.click(t, f.linked)
	require.Empty(t, f.presenter.Pickers())
	state, _ := f.workflow.State(f.linked.Key)
	require.Equal(t, Idle, state)
}

func TestListingRetry(t *testing.T) {
	f := setup(t)
	f.attach(t, f.linked)

	f.api.Respond(testutil.SheetsPath, testutil.Response{
		Status: http.StatusBadGateway,
		Body:   `{"success":false,"error":"upstream unavailable"}`,
	})
	f.click(t, f.linked)

	picker := f.presenter.Pickers()[0]
	require.Equal(t, []string{"loading", "failed"}, picker.States())
	require.Equal(t, "upstream unavailable", picker.Failure())
	require.True(t, picker.CanRetry())
	_, failure := f.workflow.State(f.linked.Key)
	require.Equal(t, FailureRetryable, failure)

	// the failed picker is still open.
	f.click(t, f.linked)
	require.Len(t, f.presenter.Pickers(), 1)

	f.api.Reset(testutil.SheetsPath)
	picker.Retry()
	f.workflow.Wait()
	require.Equal(t, []string{"loading", "failed", "loading", "sheets"}, picker.States())
}

func TestListingUnauthorized(t *testing.T) {
	f := setup(t)
	f.attach(t, f.linked)

	f.api.SetToken("rotated")
	f.click(t, f.linked)

	picker := f.presenter.Pickers()[0]
	require.True(t, picker.IsClosed())
	_, failure := f.workflow.State(f.linked.Key)
	require.Equal(t, FailureAuth, failure)
	require.Len(t, f.presenter.AuthErrors(), 1)
}

func TestSaveDirectForwardsActivationOnce(t *testing.T) {
	f := setup(t)
	f.toggleLike()
	f.attach(t, f.linked)

	affordance, ok := f.presenter.Affordance(f.linked.Key)
	require.True(t, ok)
	require.Len(t, affordance.Sheets, 1)

	affordance.Choose(affordance.Sheets[0])
	f.workflow.Wait()

	require.True(t, f.workflow.Classified(f.linked.Key))
	require.Equal(t, []string{f.linked.Key}, f.presenter.Forwarded())
	require.Equal(t, 1, f.tree.Activations(f.linked))
	require.Empty(t, f.presenter.Pickers())
	require.Len(t, f.api.Posts(), 1)

	unliked, err := f.tree.QueryAll(f.ctx, extract.DefaultMarkup.UnlikeControl)
	require.NoError(t, err)
	require.Len(t, unliked, 1)

	affordance.Choose(affordance.Sheets[0])
	f.workflow.Wait()
	require.Len(t, f.api.Posts(), 1)
	require.Len(t, f.presenter.Forwarded(), 1)
}

func TestAffordanceNeedsSheets(t *testing.T) {
	f := setup(t)
	f.api.SetSheets()
	f.attach(t, f.linked)
	require.Equal(t, 0, f.presenter.Affordances())
	require.Equal(t, 1, f.tree.Handlers(f.linked))
}

func TestAffordanceNeedsLogin(t *testing.T) {
	f := setup(t)
	f.api.SetToken("someone-else")
	f.attach(t, f.linked)
	require.Equal(t, 0, f.presenter.Affordances())
	require.Equal(t, 0, f.api.Calls(testutil.SheetsPath))
}
