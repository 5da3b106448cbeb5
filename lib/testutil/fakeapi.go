// Package testutil holds fakes shared by the package tests: an in-process
// X-Sheet API and a recording presenter.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"xsheet-companion/lib/xsheet"
)

const (
	SheetsPath  = "/api/sheets"
	PostsPath   = "/api/posts"
	ProfilePath = "/api/auth/user/profile"
)

type Response struct {
	Status int
	Body   string
}

type FakeSheet struct {
	ID        any    `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// FakeAPI is an httptest server speaking the X-Sheet API. requests carrying
// a token other than Token are answered with 401.
type FakeAPI struct {
	Server *httptest.Server

	mu        sync.Mutex
	token     string
	sheets    []FakeSheet
	profileId any
	name      string
	overrides map[string]Response
	calls     map[string]int
	posts     []xsheet.CreatePostRequest
	headers   []http.Header
}

func NewFakeAPI(t testing.TB, token string) *FakeAPI {
	f := &FakeAPI{
		token:     token,
		profileId: 1,
		name:      "tester",
		overrides: make(map[string]Response),
		calls:     make(map[string]int),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *FakeAPI) URL() string {
	return f.Server.URL
}

func (f *FakeAPI) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

func (f *FakeAPI) SetSheets(sheets ...FakeSheet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sheets = sheets
}

func (f *FakeAPI) SetProfile(id any, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileId = id
	f.name = name
}

// Respond makes every following request to path return res, regardless of
// the token.
func (f *FakeAPI) Respond(path string, res Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[path] = res
}

func (f *FakeAPI) Reset(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.overrides, path)
}

func (f *FakeAPI) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// TotalCalls counts every request the server received.
func (f *FakeAPI) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *FakeAPI) Posts() []xsheet.CreatePostRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]xsheet.CreatePostRequest(nil), f.posts...)
}

// LastHeaders returns the headers of the most recent request.
func (f *FakeAPI) LastHeaders() http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.headers) == 0 {
		return nil
	}
	return f.headers[len(f.headers)-1]
}

func writeJson(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (f *FakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[r.URL.Path]++
	f.headers = append(f.headers, r.Header.Clone())

	if r.URL.Path == PostsPath && r.Method == http.MethodPost {
		var post xsheet.CreatePostRequest
		if json.NewDecoder(r.Body).Decode(&post) == nil {
			f.posts = append(f.posts, post)
		}
	}

	if res, ok := f.overrides[r.URL.Path]; ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(res.Status)
		w.Write([]byte(res.Body))
		return
	}

	if r.Header.Get(xsheet.TokenHeader) != f.token {
		writeJson(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "invalid api token",
		})
		return
	}

	switch {
	case r.URL.Path == SheetsPath && r.Method == http.MethodGet:
		sheets := f.sheets
		if sheets == nil {
			sheets = []FakeSheet{}
		}
		writeJson(w, http.StatusOK, map[string]any{
			"success": true,
			"sheets":  sheets,
		})
	case r.URL.Path == PostsPath && r.Method == http.MethodPost:
		writeJson(w, http.StatusOK, map[string]any{"success": true})
	case r.URL.Path == ProfilePath && r.Method == http.MethodGet:
		writeJson(w, http.StatusOK, map[string]any{
			"success": true,
			"user": map[string]any{
				"id":   f.profileId,
				"name": f.name,
			},
		})
	default:
		writeJson(w, http.StatusNotFound, map[string]any{
			"success": false,
			"error":   "not found",
		})
	}
}
