// Package apollo is a minimal client for the Apollo.io REST API covering
// company search, company enrichment, and people search.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/resilience"
)

const defaultBaseURL = "https://api.apollo.io/v1"

// Client performs requests against the Apollo API.
type Client interface {
	SearchOrganizations(ctx context.Context, req OrgSearchRequest) (*OrgSearchResponse, error)
	EnrichOrganization(ctx context.Context, domain string) (*Organization, error)
	SearchPeople(ctx context.Context, req PeopleSearchRequest) (*PeopleSearchResponse, error)
}

// OrgSearchRequest is the body for POST /mixed_companies/search.
type OrgSearchRequest struct {
	QKeywords      string   `json:"q_organization_keyword_tags,omitempty"`
	Industries     []string `json:"organization_industry_tag_ids,omitempty"`
	Locations      []string `json:"organization_locations,omitempty"`
	EmployeeRanges []string `json:"organization_num_employees_ranges,omitempty"`
	Page           int      `json:"page,omitempty"`
	PerPage        int      `json:"per_page,omitempty"`
}

// OrgSearchResponse is the response from POST /mixed_companies/search.
type OrgSearchResponse struct {
	Organizations []Organization `json:"organizations"`
	Pagination    Pagination     `json:"pagination"`
}

// Pagination reports result paging.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

// Organization is Apollo's company record.
type Organization struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	WebsiteURL            string   `json:"website_url"`
	PrimaryDomain         string   `json:"primary_domain"`
	Industry              string   `json:"industry"`
	EstimatedNumEmployees int      `json:"estimated_num_employees"`
	AnnualRevenue         float64  `json:"annual_revenue"`
	TotalFunding          float64  `json:"total_funding"`
	LatestFundingStage    string   `json:"latest_funding_stage"`
	LatestFundingDate     string   `json:"latest_funding_round_date"`
	Country               string   `json:"country"`
	City                  string   `json:"city"`
	Technologies          []string `json:"technology_names"`
	ShortDescription      string   `json:"short_description"`
}

// PeopleSearchRequest is the body for POST /mixed_people/search.
type PeopleSearchRequest struct {
	OrganizationDomains []string `json:"q_organization_domains,omitempty"`
	PersonTitles        []string `json:"person_titles,omitempty"`
	PersonSeniorities   []string `json:"person_seniorities,omitempty"`
	PerPage             int      `json:"per_page,omitempty"`
}

// PeopleSearchResponse is the response from POST /mixed_people/search.
type PeopleSearchResponse struct {
	People []Person `json:"people"`
}

// Person is Apollo's contact record.
type Person struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Seniority   string   `json:"seniority"`
	Departments []string `json:"departments"`
	Email       string   `json:"email"`
	EmailStatus string   `json:"email_status"`
	LinkedinURL string   `json:"linkedin_url"`
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

// NewClient creates an Apollo API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchOrganizations(ctx context.Context, req OrgSearchRequest) (*OrgSearchResponse, error) {
	var out OrgSearchResponse
	if err := c.post(ctx, "/mixed_companies/search", req, &out); err != nil {
		return nil, eris.Wrap(err, "apollo: search organizations")
	}
	return &out, nil
}

func (c *httpClient) EnrichOrganization(ctx context.Context, domain string) (*Organization, error) {
	var out struct {
		Organization *Organization `json:"organization"`
	}
	path := "/organizations/enrich?domain=" + url.QueryEscape(domain)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, eris.Wrapf(err, "apollo: enrich %s", domain)
	}
	if out.Organization == nil {
		return nil, eris.Errorf("apollo: no organization for %s", domain)
	}
	return out.Organization, nil
}

func (c *httpClient) SearchPeople(ctx context.Context, req PeopleSearchRequest) (*PeopleSearchResponse, error) {
	var out PeopleSearchResponse
	if err := c.post(ctx, "/mixed_people/search", req, &out); err != nil {
		return nil, eris.Wrap(err, "apollo: search people")
	}
	return &out, nil
}

func (c *httpClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
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
		err := eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.RetryableStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}
