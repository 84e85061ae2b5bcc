package client

import (
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

type ApiConnectionDetails struct {
	PopgenUrl string
	// Timeout bounds each HTTP call. Defaults to 30s.
	Timeout time.Duration
}

type ConnectionDetails func() *ApiConnectionDetails

// Client calls the popgen HTTP API.
type Client struct {
	baseUrl    string
	httpClient *http.Client
}

func NewClient(details *ApiConnectionDetails) *Client {
	timeout := details.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseUrl:    strings.TrimSuffix(details.PopgenUrl, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func WithClient(details ConnectionDetails, action func(*Client) error) error {
	return action(NewClient(details()))
}
