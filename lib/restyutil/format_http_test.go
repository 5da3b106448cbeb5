package restyutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

type memoryOutput map[string]string

func (m memoryOutput) Write(id string, contents string) {
	m[id] = contents
}

func TestFormatHeadersMasksToken(t *testing.T) {
	headers := http.Header{}
	headers.Set("X-API-Token", "tok_abc123456")
	headers.Set("Accept", "application/json")

	formatted := formatHeaders(headers)
	require.Equal(t, "Accept: application/json\nX-Api-Token: tok_ab***", formatted)
}

func TestInstrumentClientWritesExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	out := memoryOutput{}
	client := resty.New().SetBaseURL(server.URL)
	InstrumentClient(client, nil, out)

	_, err := client.R().
		SetHeader("X-API-Token", "tok_abc123456").
		SetBody(map[string]string{"url": "https://x.com/a/status/1"}).
		Post("/api/posts")
	require.NoError(t, err)

	require.Len(t, out, 1)
	dump := out["1"]
	require.Contains(t, dump, "POST "+server.URL+"/api/posts")
	require.Contains(t, dump, "tok_ab***")
	require.NotContains(t, dump, "tok_abc123456")
	require.Contains(t, dump, `{"success":true}`)
}
