// Package client talks to a survey gateway over HTTP. A Client serves as
// catalog, submitter and copier, so the terminal runner can drive a
// remote backend exactly like the in-process one.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-surveys/internal/catalog"
	"github.com/mind-engage/mindengage-surveys/internal/sink"
	"github.com/mind-engage/mindengage-surveys/internal/survey"
)

type Client struct {
	base     string
	http     *http.Client
	clientID string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithClientID(id string) Option        { return func(c *Client) { c.clientID = id } }
func WithTimeout(d time.Duration) Option   { return func(c *Client) { c.http.Timeout = d } }

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var (
	_ catalog.Catalog = (*Client)(nil)
	_ sink.Submitter  = (*Client)(nil)
	_ sink.Copier     = (*Client)(nil)
)

// failure is the gateway's error envelope.
type failure struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Errors  survey.ErrorMap `json:"errors,omitempty"`
}

func (c *Client) List(ctx context.Context) ([]survey.Summary, error) {
	var out struct {
		Data []survey.Summary `json:"data"`
	}
	status, fail, err := c.do(ctx, http.MethodGet, "/api/surveys", nil, &out)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, fmt.Errorf("list surveys: %d %s", status, fail.Error)
	}
	return out.Data, nil
}

func (c *Client) Get(ctx context.Context, id string) (survey.Definition, error) {
	var out struct {
		Data survey.Definition `json:"data"`
	}
	status, fail, err := c.do(ctx, http.MethodGet, "/api/survey/config/"+url.PathEscape(id), nil, &out)
	if err != nil {
		return survey.Definition{}, err
	}
	switch {
	case status == http.StatusNotFound:
		return survey.Definition{}, catalog.ErrNotFound
	case status/100 != 2:
		return survey.Definition{}, fmt.Errorf("get survey %s: %d %s", id, status, fail.Error)
	}
	return out.Data, nil
}

func (c *Client) Submit(ctx context.Context, surveyID string, rs survey.ResponseSet) (sink.Ack, error) {
	body := map[string]any{"surveyId": surveyID, "responses": rs}
	var ack sink.Ack
	status, fail, err := c.do(ctx, http.MethodPost, "/api/survey/submit", body, &ack)
	if err != nil {
		return sink.Ack{}, err
	}
	switch {
	case status == http.StatusNotFound:
		return sink.Ack{}, &sink.SubmissionError{Message: fail.Error, Err: catalog.ErrNotFound}
	case status == http.StatusBadRequest:
		return sink.Ack{}, &sink.SubmissionError{Message: fail.Error, Fields: fail.Errors}
	case status/100 != 2:
		return sink.Ack{}, fmt.Errorf("submit %s: %d %s", surveyID, status, fail.Error)
	}
	return ack, nil
}

func (c *Client) SendCopy(ctx context.Context, destination, surveyID string, rs survey.ResponseSet) (sink.CopyAck, error) {
	body := map[string]any{"email": destination, "surveyId": surveyID, "responses": rs}
	var ack sink.CopyAck
	status, fail, err := c.do(ctx, http.MethodPost, "/api/email/copy", body, &ack)
	if err != nil {
		return sink.CopyAck{}, err
	}
	switch {
	case status == http.StatusBadRequest:
		return sink.CopyAck{}, &sink.CopyError{Message: fail.Error}
	case status/100 != 2:
		return sink.CopyAck{}, fmt.Errorf("send copy %s: %d %s", surveyID, status, fail.Error)
	}
	return ack, nil
}

// do sends one JSON request. 2xx bodies decode into out; anything else
// decodes into the returned failure.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, failure, error) {
	var rd io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return 0, failure{}, err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, failure{}, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.clientID != "" {
		req.Header.Set("X-Client-ID", c.clientID)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return 0, failure{}, err
	}
	defer res.Body.Close()

	var f failure
	if res.StatusCode/100 == 2 {
		if out != nil {
			if err := json.NewDecoder(res.Body).Decode(out); err != nil {
				return res.StatusCode, f, fmt.Errorf("decode %s %s: %w", method, path, err)
			}
		}
		return res.StatusCode, f, nil
	}
	if err := json.NewDecoder(res.Body).Decode(&f); err != nil || f.Error == "" {
		f.Error = res.Status
	}
	return res.StatusCode, f, nil
}
