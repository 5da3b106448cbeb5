package xsheet_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"xsheet-companion/lib/testutil"
	"xsheet-companion/lib/xsheet"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, api *testutil.FakeAPI) *xsheet.Client {
	client, err := xsheet.NewClient(xsheet.ClientOptions{
		BaseUrl: api.URL(),
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestListSheets(t *testing.T) {
	api := testutil.NewFakeAPI(t, "tok")
	api.SetSheets(
		testutil.FakeSheet{ID: "b", Title: "Second", CreatedAt: "2024-02-01T10:00:00Z"},
		testutil.FakeSheet{ID: 7, Title: "First"},
	)
	client := newClient(t, api)

	sheets, err := client.ListSheets(context.Background(), "tok")
	require.NoError(t, err)

	expected := []xsheet.Sheet{
		{ID: "b", Title: "Second", CreatedAt: time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)},
		{ID: "7", Title: "First"},
	}
	if diff := cmp.Diff(expected, sheets); diff != "" {
		t.Fatalf("sheets mismatch (-want +got):\n%s", diff)
	}

	headers := api.LastHeaders()
	require.Equal(t, "tok", headers.Get(xsheet.TokenHeader))
	require.Equal(t, "XMLHttpRequest", headers.Get("X-Requested-With"))
	require.Equal(t, "application/json", headers.Get("Accept"))
}

func TestListSheetsEmpty(t *testing.T) {
	api := testutil.NewFakeAPI(t, "tok")
	sheets, err := newClient(t, api).ListSheets(context.Background(), "tok")
	require.NoError(t, err)
	require.Empty(t, sheets)
}

func TestUnauthorized(t *testing.T) {
	api := testutil.NewFakeAPI(t, "tok")
	client := newClient(t, api)
	ctx := context.Background()

	_, err := client.ListSheets(ctx, "wrong")
	require.ErrorIs(t, err, xsheet.ErrUnauthorized)
	require.False(t, xsheet.IsTransient(err))

	err = client.CreatePost(ctx, "wrong", xsheet.CreatePostRequest{URL: "u", SheetID: "s"})
	require.ErrorIs(t, err, xsheet.ErrUnauthorized)

	_, err = client.FetchProfile(ctx, "wrong")
	require.ErrorIs(t, err, xsheet.ErrUnauthorized)
}

func TestTransientStatus(t *testing.T) {
	api := testutil.NewFakeAPI(t, "tok")
	api.Respond(testutil.SheetsPath, testutil.Response{
		Status: http.StatusInternalServerError,
		Body:   `{"success":false,"error":"database unavailable"}`,
	})
	api.Respond(testutil.PostsPath, testutil.Response{
		Status: http.StatusBadGateway,
		Body:   `<html>bad gateway</html>`,
	})
	client := newClient(t, api)
	ctx := context.Background()

	_, err := client.ListSheets(ctx, "tok")
	var transient *xsheet.TransientError
	require.ErrorAs(t, err, &transient)
	require.Equal(t, http.StatusInternalServerError, transient.Status)
	require.Equal(t, "database unavailable", xsheet.UserMessage(err, "generic"))

	err = client.CreatePost(ctx, "tok", xsheet.CreatePostRequest{URL: "u", SheetID: "s"})
	require.True(t, xsheet.IsTransient(err))
	require.Equal(t, "generic", xsheet.UserMessage(err, "generic"))
}

func TestMalformedResponse(t *testing.T) {
	api := testutil.NewFakeAPI(t, "tok")
	api.Respond(testutil.SheetsPath, testutil.Response{Status: http.StatusOK, Body: `not json`})
	api.Respond(testutil.ProfilePath, testutil.Response{Status: http.StatusOK, Body: `{"success":true}`})
	client := newClient(t, api)
	ctx := context.Background()

	_, err := client.ListSheets(ctx, "tok")
	require.ErrorIs(t, err, xsheet.ErrMalformedResponse)
	require.True(t, xsheet.IsTransient(err))

	_, err = client.FetchProfile(ctx, "tok")
	require.ErrorIs(t, err, xsheet.ErrMalformedResponse)
}

func TestCreatePost(t *testing.T) {
	api := testutil.NewFakeAPI(t, "tok")
	client := newClient(t, api)
	ctx := context.Background()

	post := xsheet.CreatePostRequest{
		URL:     "https://x.com/a/status/1",
		Content: "hello",
		SheetID: "s1",
	}
	require.NoError(t, client.CreatePost(ctx, "tok", post))
	require.Equal(t, []xsheet.CreatePostRequest{post}, api.Posts())

	api.Respond(testutil.PostsPath, testutil.Response{Status: http.StatusCreated, Body: ``})
	require.NoError(t, client.CreatePost(ctx, "tok", post))

	api.Respond(testutil.PostsPath, testutil.Response{
		Status: http.StatusOK,
		Body:   `{"success":false,"error":"sheet is full"}`,
	})
	err := client.CreatePost(ctx, "tok", post)
	require.True(t, xsheet.IsTransient(err))
	require.Equal(t, "sheet is full", xsheet.UserMessage(err, "generic"))
}

func TestCreatePostNonJsonSuccess(t *testing.T) {
	api := testutil.NewFakeAPI(t, "tok")
	api.Respond(testutil.PostsPath, testutil.Response{
		Status: http.StatusOK,
		Body:   `<html>captive portal</html>`,
	})
	client := newClient(t, api)

	err := client.CreatePost(context.Background(), "tok", xsheet.CreatePostRequest{
		URL:     "https://x.com/a/status/1",
		SheetID: "s1",
	})
	require.ErrorIs(t, err, xsheet.ErrMalformedResponse)
	require.True(t, xsheet.IsTransient(err))
}

func TestFetchProfile(t *testing.T) {
	api := testutil.NewFakeAPI(t, "tok")
	api.SetProfile(42, "Jane")

	profile, err := newClient(t, api).FetchProfile(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, xsheet.Profile{ID: "42", Name: "Jane"}, profile)
}

func TestTransportError(t *testing.T) {
	api := testutil.NewFakeAPI(t, "tok")
	client := newClient(t, api)
	api.Server.Close()

	_, err := client.ListSheets(context.Background(), "tok")
	require.True(t, xsheet.IsTransient(err))
	require.False(t, errors.Is(err, xsheet.ErrUnauthorized))
}

func TestNewClientRejectsRelativeUrl(t *testing.T) {
	_, err := xsheet.NewClient(xsheet.ClientOptions{BaseUrl: "/api"})
	require.Error(t, err)
}

func TestSettingsURL(t *testing.T) {
	client, err := xsheet.NewClient(xsheet.ClientOptions{BaseUrl: "https://sheets.example.com/"})
	require.NoError(t, err)
	require.Equal(t, "https://sheets.example.com/settings/api", client.SettingsURL())
}
