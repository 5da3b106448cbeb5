package xsheet

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

type Sheet struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

type Profile struct {
	ID   string
	Name string
}

type CreatePostRequest struct {
	URL     string `json:"url"`
	Content string `json:"content"`
	SheetID string `json:"sheetId"`
}

// flexString accepts both JSON strings and numbers, ids come back as either
// depending on the backing store.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		err := json.Unmarshal(data, &s)
		if err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	err := json.Unmarshal(data, &n)
	if err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// flexTime parses the timestamp layouts the server is known to emit, anything
// else becomes the zero time rather than failing the whole listing.
type flexTime time.Time

func (f *flexTime) UnmarshalJSON(data []byte) error {
	var s string
	err := json.Unmarshal(data, &s)
	if err != nil {
		var millis int64
		if json.Unmarshal(data, &millis) == nil {
			*f = flexTime(time.UnixMilli(millis).UTC())
		}
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			*f = flexTime(t)
			return nil
		}
	}
	*f = flexTime(time.Time{})
	return nil
}

type sheetJson struct {
	ID        flexString `json:"id"`
	Title     string     `json:"title"`
	CreatedAt flexTime   `json:"createdAt"`
}

type listSheetsResponse struct {
	Success bool         `json:"success"`
	Sheets  *[]sheetJson `json:"sheets"`
}

type createPostResponse struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type profileResponse struct {
	Success bool `json:"success"`
	User    *struct {
		ID       flexString `json:"id"`
		Name     string     `json:"name"`
		Username string     `json:"username"`
	} `json:"user"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
