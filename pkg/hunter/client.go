// Package hunter is a minimal client for the Hunter.io domain-search and
// email-finder endpoints.
package hunter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/resilience"
)

const defaultBaseURL = "https://api.hunter.io/v2"

// Client performs requests against the Hunter API.
type Client interface {
	DomainSearch(ctx context.Context, domain string, limit int) (*DomainSearchResult, error)
	FindEmail(ctx context.Context, domain, firstName, lastName string) (*EmailResult, error)
}

// DomainSearchResult is the data object from GET /domain-search.
type DomainSearchResult struct {
	Domain       string  `json:"domain"`
	Organization string  `json:"organization"`
	Emails       []Email `json:"emails"`
}

// Email is one discovered address with the person attached to it.
type Email struct {
	Value      string `json:"value"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Position   string `json:"position"`
	Seniority  string `json:"seniority"`
	Department string `json:"department"`
	Confidence int    `json:"confidence"`
	LinkedIn   string `json:"linkedin"`
}

// EmailResult is the data object from GET /email-finder.
type EmailResult struct {
	Email    string `json:"email"`
	Score    int    `json:"score"`
	Position string `json:"position"`
	Verified bool   `json:"-"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Hunter API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) DomainSearch(ctx context.Context, domain string, limit int) (*DomainSearchResult, error) {
	q := url.Values{}
	q.Set("domain", domain)
	q.Set("api_key", c.apiKey)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var out struct {
		Data DomainSearchResult `json:"data"`
	}
	if err := c.get(ctx, "/domain-search?"+q.Encode(), &out); err != nil {
		return nil, eris.Wrapf(err, "hunter: domain search %s", domain)
	}
	return &out.Data, nil
}

func (c *httpClient) FindEmail(ctx context.Context, domain, firstName, lastName string) (*EmailResult, error) {
	q := url.Values{}
	q.Set("domain", domain)
	q.Set("first_name", firstName)
	q.Set("last_name", lastName)
	q.Set("api_key", c.apiKey)

	var out struct {
		Data struct {
			Email        string `json:"email"`
			Score        int    `json:"score"`
			Position     string `json:"position"`
			Verification struct {
				Status string `json:"status"`
			} `json:"verification"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/email-finder?"+q.Encode(), &out); err != nil {
		return nil, eris.Wrapf(err, "hunter: find email %s", domain)
	}

	return &EmailResult{
		Email:    out.Data.Email,
		Score:    out.Data.Score,
		Position: out.Data.Position,
		Verified: out.Data.Verification.Status == "valid",
	}, nil
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}

	if resp.StatusCode != http.StatusOK {
		respErr := eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.RetryableStatus(resp.StatusCode) {
			return resilience.NewTransientError(respErr, resp.StatusCode)
		}
		return respErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}
