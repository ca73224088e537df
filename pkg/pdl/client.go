// Package pdl is a minimal client for the People Data Labs company
// enrichment API.
package pdl

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/resilience"
)

const defaultBaseURL = "https://api.peopledatalabs.com/v5"

// Client performs requests against the PDL API.
type Client interface {
	EnrichCompany(ctx context.Context, website string) (*Company, error)
}

// Company is PDL's company record.
type Company struct {
	Name               string   `json:"name"`
	Website            string   `json:"website"`
	Industry           string   `json:"industry"`
	EmployeeCount      int      `json:"employee_count"`
	InferredRevenue    string   `json:"inferred_revenue"`
	TotalFundingRaised float64  `json:"total_funding_raised"`
	LatestFundingStage string   `json:"latest_funding_stage"`
	LastFundingDate    string   `json:"last_funding_date"`
	Tags               []string `json:"tags"`
	Summary            string   `json:"summary"`
	Location           Location `json:"location"`
	Likelihood         int      `json:"likelihood"`
}

// Location is PDL's nested location record.
type Location struct {
	Country  string `json:"country"`
	Locality string `json:"locality"`
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

// NewClient creates a PDL API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) EnrichCompany(ctx context.Context, website string) (*Company, error) {
	endpoint := c.baseURL + "/company/enrich?website=" + url.QueryEscape(website)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "pdl: create request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "pdl: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "pdl: read response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, eris.Errorf("pdl: no match for %s", website)
	}
	if resp.StatusCode != http.StatusOK {
		respErr := eris.Errorf("pdl: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(respErr, resp.StatusCode)
		}
		return nil, respErr
	}

	var company Company
	if err := json.Unmarshal(respBody, &company); err != nil {
		return nil, eris.Wrap(err, "pdl: unmarshal response")
	}
	return &company, nil
}
