package apify

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

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://api.apify.com"

	// DefaultProfileActor scrapes LinkedIn profile pages.
	DefaultProfileActor = "dev_fusion~linkedin-profile-scraper"
)

// Run statuses reported by the actor-runs endpoint.
const (
	StatusReady     = "READY"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusAborted   = "ABORTED"
	StatusTimedOut  = "TIMED-OUT"
)

// Client defines the Apify operations used for profile scraping.
type Client interface {
	StartRun(ctx context.Context, actor string, input any) (*Run, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
	GetDatasetItems(ctx context.Context, datasetID string) ([]map[string]any, error)
}

// Run describes an actor run.
type Run struct {
	ID               string `json:"id"`
	ActID            string `json:"actId"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

// Terminal reports whether the run has stopped.
func (r *Run) Terminal() bool {
	switch r.Status {
	case StatusSucceeded, StatusFailed, StatusAborted, StatusTimedOut:
		return true
	}
	return false
}

// ProfileInput is the actor input for the LinkedIn profile scraper.
type ProfileInput struct {
	ProfileURLs []string `json:"profileUrls"`
}

type runEnvelope struct {
	Data Run `json:"data"`
}

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("apify: unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates an Apify client authenticated with the given token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) StartRun(ctx context.Context, actor string, input any) (*Run, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "apify: marshal input")
	}

	var env runEnvelope
	path := "/v2/acts/" + url.PathEscape(actor) + "/runs"
	if err := c.do(ctx, http.MethodPost, path, body, http.StatusCreated, &env); err != nil {
		return nil, eris.Wrapf(err, "apify: start run %s", actor)
	}
	return &env.Data, nil
}

func (c *httpClient) GetRun(ctx context.Context, runID string) (*Run, error) {
	var env runEnvelope
	if err := c.do(ctx, http.MethodGet, "/v2/actor-runs/"+url.PathEscape(runID), nil, http.StatusOK, &env); err != nil {
		return nil, eris.Wrapf(err, "apify: get run %s", runID)
	}
	return &env.Data, nil
}

func (c *httpClient) GetDatasetItems(ctx context.Context, datasetID string) ([]map[string]any, error) {
	var items []map[string]any
	path := "/v2/datasets/" + url.PathEscape(datasetID) + "/items?clean=true&format=json"
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &items); err != nil {
		return nil, eris.Wrapf(err, "apify: get dataset %s", datasetID)
	}
	return items, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body []byte, want int, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return eris.Wrap(err, "apify: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "apify: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "apify: read response")
	}

	// Some deployments answer 200 for run creation.
	if resp.StatusCode != want && !(want == http.StatusCreated && resp.StatusCode == http.StatusOK) {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "apify: unmarshal response")
	}
	return nil
}
