package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
)

// Created is the reply to a create or generate call.
type Created struct {
	Uuid          string          `json:"uuid"`
	Configuration json.RawMessage `json:"configuration"`
}

type Status struct {
	Uuid         string     `json:"uuid"`
	State        string     `json:"state"`
	Produced     int        `json:"produced"`
	Population   int        `json:"population"`
	Buffered     int        `json:"buffered"`
	OutputKind   string     `json:"outputKind"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	TerminatedAt *time.Time `json:"terminatedAt,omitempty"`
}

// ApiError is a non-success reply from the service.
type ApiError struct {
	StatusCode int
	Message    string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("popgen returned %d: %s", e.StatusCode, e.Message)
}

// IsPending reports whether err means the artifact is not ready yet.
func IsPending(err error) bool {
	var apiErr *ApiError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusAccepted
}

// Create registers a request for configuration without starting it.
func (c *Client) Create(ctx context.Context, configuration json.RawMessage) (*Created, error) {
	return c.create(ctx, "/requests", configuration)
}

// Generate registers and starts a request in one call.
func (c *Client) Generate(ctx context.Context, configuration json.RawMessage) (*Created, error) {
	return c.create(ctx, "/generate", configuration)
}

func (c *Client) create(ctx context.Context, path string, configuration json.RawMessage) (*Created, error) {
	created := &Created{}
	if err := c.do(ctx, http.MethodPost, path, configuration, created); err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Client) Start(ctx context.Context, id string) error {
	return c.transition(ctx, id, "start")
}

func (c *Client) Pause(ctx context.Context, id string) error {
	return c.transition(ctx, id, "pause")
}

func (c *Client) Resume(ctx context.Context, id string) error {
	return c.transition(ctx, id, "resume")
}

func (c *Client) Stop(ctx context.Context, id string) error {
	return c.transition(ctx, id, "stop")
}

func (c *Client) transition(ctx context.Context, id string, action string) error {
	return c.do(ctx, http.MethodPost, "/requests/"+url.PathEscape(id)+"/"+action, nil, nil)
}

func (c *Client) Status(ctx context.Context, id string) (*Status, error) {
	status := &Status{}
	if err := c.do(ctx, http.MethodGet, "/requests/"+url.PathEscape(id), nil, status); err != nil {
		return nil, err
	}
	return status, nil
}

// PollResults returns the records generated since the last poll.
func (c *Client) PollResults(ctx context.Context, id string) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/requests/"+url.PathEscape(id)+"/results", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// FetchArtifact downloads the zip of a finished request. An artifact that is not ready yet is
// reported as an ApiError for which IsPending holds.
func (c *Client) FetchArtifact(ctx context.Context, id string, kind string) ([]byte, error) {
	path := "/requests/" + url.PathEscape(id) + "/artifact"
	if kind != "" {
		path += "?kind=" + url.QueryEscape(kind)
	}
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, readError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	return data, errors.WithStack(err)
}

// WaitForArtifact polls FetchArtifact every interval until the artifact is ready, ctx is done or
// attempts polls have been made.
func (c *Client) WaitForArtifact(ctx context.Context, id string, kind string, interval time.Duration, attempts uint) ([]byte, error) {
	var data []byte
	err := retry.Do(
		func() error {
			var err error
			data, err = c.FetchArtifact(ctx, id, kind)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(IsPending),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method string, path string, body []byte, out interface{}) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.StatusCode == http.StatusAccepted {
		return readError(resp)
	}
	if out == nil {
		return nil
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(out), "decoding reply to %s %s", method, path)
}

func (c *Client) send(ctx context.Context, method string, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseUrl+path, reader)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "calling %s %s", method, path)
	}
	return resp, nil
}

func readError(resp *http.Response) error {
	apiErr := &ApiError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	}
	return apiErr
}
