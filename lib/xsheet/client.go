// Package xsheet is a typed client for the X-Sheet API: listing sheets,
// filing posts into a sheet and reading the profile behind a credential.
package xsheet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"xsheet-companion/lib/restyutil"
	"xsheet-companion/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = telemetry.Tracer("xsheet.lib.xsheet")

const (
	TokenHeader  = "X-API-Token"
	SettingsPath = "/settings/api"

	sheetsPath  = "/api/sheets"
	postsPath   = "/api/posts"
	profilePath = "/api/auth/user/profile"
)

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client
}

type ClientOptions struct {
	BaseUrl string
	// defaults to 30 seconds
	Timeout time.Duration
	// wraps the transport with cloudflare-bp-go, for deployments behind a
	// cloudflare browser check.
	CloudflareBypass bool
	// if set, every HTTP exchange is dumped to it.
	InstrumentOutput restyutil.InstrumentOutput
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(strings.TrimRight(opts.BaseUrl, "/"))
	if err != nil {
		return nil, err
	}
	if baseUrl.Scheme == "" || baseUrl.Host == "" {
		return nil, fmt.Errorf("xsheet: base url %q is not absolute", opts.BaseUrl)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second * 30
	}

	client := resty.New()
	client.SetBaseURL(baseUrl.String())
	client.SetTimeout(timeout)
	client.SetHeaders(map[string]string{
		"Accept":           "application/json",
		"Content-Type":     "application/json",
		"X-Requested-With": "XMLHttpRequest",
	})
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	restyutil.InstrumentClient(client, tracer, opts.InstrumentOutput)

	return &Client{
		BaseUrl: baseUrl,
		Http:    client,
	}, nil
}

// SettingsURL is the page where credentials are issued and revoked.
func (c *Client) SettingsURL() string {
	return c.BaseUrl.JoinPath(SettingsPath).String()
}

func (c *Client) request(ctx context.Context, credential string) *resty.Request {
	return c.Http.R().
		SetContext(ctx).
		SetHeader(TokenHeader, credential)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func serverMessage(body []byte) string {
	var parsed errorResponse
	err := json.Unmarshal(body, &parsed)
	if err != nil {
		return ""
	}
	if parsed.Error != "" {
		return parsed.Error
	}
	return parsed.Message
}

// checkStatus maps an HTTP status onto the outcome classes, nil means 2xx.
func checkStatus(op string, res *resty.Response) error {
	if res.IsSuccess() {
		return nil
	}
	if res.StatusCode() == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	return &TransientError{
		Op:      op,
		Status:  res.StatusCode(),
		Body:    res.String(),
		Message: serverMessage(res.Body()),
	}
}

func transportError(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

func malformed(op string, res *resty.Response, cause error) error {
	err := ErrMalformedResponse
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrMalformedResponse, cause)
	}
	return &TransientError{
		Op:     op,
		Status: res.StatusCode(),
		Body:   res.String(),
		Err:    err,
	}
}

func (c *Client) ListSheets(ctx context.Context, credential string) ([]Sheet, error) {
	ctx, span := tracer.Start(ctx, "client:ListSheets")
	defer span.End()

	const op = "list sheets"
	res, err := c.request(ctx, credential).Get(sheetsPath)
	if err != nil {
		return nil, fail(span, transportError(op, err))
	}
	err = checkStatus(op, res)
	if err != nil {
		return nil, fail(span, err)
	}

	var body listSheetsResponse
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		return nil, fail(span, malformed(op, res, err))
	}
	if !body.Success || body.Sheets == nil {
		return nil, fail(span, malformed(op, res, nil))
	}

	sheets := make([]Sheet, len(*body.Sheets))
	for i, s := range *body.Sheets {
		sheets[i] = Sheet{
			ID:        string(s.ID),
			Title:     s.Title,
			CreatedAt: time.Time(s.CreatedAt),
		}
	}
	span.SetAttributes(attribute.Int("sheets", len(sheets)))
	return sheets, nil
}

func (c *Client) CreatePost(ctx context.Context, credential string, post CreatePostRequest) error {
	ctx, span := tracer.Start(ctx, "client:CreatePost")
	defer span.End()

	span.SetAttributes(
		attribute.String("url", post.URL),
		attribute.String("sheet_id", post.SheetID),
	)

	const op = "create post"
	res, err := c.request(ctx, credential).
		SetBody(post).
		Post(postsPath)
	if err != nil {
		return fail(span, transportError(op, err))
	}
	err = checkStatus(op, res)
	if err != nil {
		return fail(span, err)
	}

	// an empty 2xx body acknowledges the write, anything else must be json.
	if len(bytes.TrimSpace(res.Body())) == 0 {
		return nil
	}
	var body createPostResponse
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		return fail(span, malformed(op, res, err))
	}
	if body.Success != nil && !*body.Success {
		message := body.Error
		if message == "" {
			message = body.Message
		}
		return fail(span, &TransientError{
			Op:      op,
			Status:  res.StatusCode(),
			Body:    res.String(),
			Message: message,
		})
	}
	return nil
}

func (c *Client) FetchProfile(ctx context.Context, credential string) (Profile, error) {
	ctx, span := tracer.Start(ctx, "client:FetchProfile")
	defer span.End()

	const op = "fetch profile"
	res, err := c.request(ctx, credential).Get(profilePath)
	if err != nil {
		return Profile{}, fail(span, transportError(op, err))
	}
	err = checkStatus(op, res)
	if err != nil {
		return Profile{}, fail(span, err)
	}

	var body profileResponse
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		return Profile{}, fail(span, malformed(op, res, err))
	}
	if !body.Success || body.User == nil {
		return Profile{}, fail(span, malformed(op, res, nil))
	}

	name := body.User.Name
	if name == "" {
		name = body.User.Username
	}
	return Profile{
		ID:   string(body.User.ID),
		Name: name,
	}, nil
}
