package apollo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/resilience"
)

func TestSearchOrganizations(t *testing.T) {
	var gotReq OrgSearchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/mixed_companies/search", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(OrgSearchResponse{ //nolint:errcheck
			Organizations: []Organization{{ID: "org-1", Name: "Acme", PrimaryDomain: "acme.com"}},
			Pagination:    Pagination{Page: 1, PerPage: 25, TotalPages: 1},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := c.SearchOrganizations(context.Background(), OrgSearchRequest{
		Industries: []string{"SaaS"},
		PerPage:    25,
	})

	require.NoError(t, err)
	require.Len(t, resp.Organizations, 1)
	assert.Equal(t, "acme.com", resp.Organizations[0].PrimaryDomain)
	assert.Equal(t, []string{"SaaS"}, gotReq.Industries)
}

func TestEnrichOrganization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/organizations/enrich", r.URL.Path)
		assert.Equal(t, "acme.com", r.URL.Query().Get("domain"))

		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"organization": Organization{ID: "org-1", Name: "Acme", Industry: "SaaS"},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	org, err := c.EnrichOrganization(context.Background(), "acme.com")

	require.NoError(t, err)
	assert.Equal(t, "SaaS", org.Industry)
}

func TestEnrichOrganizationNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.EnrichOrganization(context.Background(), "nowhere.example")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no organization")
}

func TestRateLimitStatusIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.SearchPeople(context.Background(), PeopleSearchRequest{})

	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestClientErrorStatusIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"invalid filter"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.SearchOrganizations(context.Background(), OrgSearchRequest{})

	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Contains(t, eris.Cause(err).Error(), "422")
}
