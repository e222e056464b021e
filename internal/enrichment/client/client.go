// Package client provides the HTTP client for the external lead
// enrichment provider (Clearbit-style person/company lookup API).
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"leadscoring_backend/platform/apperr"
	"leadscoring_backend/platform/logger"
)

const defaultHTTPTimeout = 10 * time.Second

// Profile is the provider's view of a lead.
type Profile struct {
	Source       string   `json:"source"`
	CompanySize  *int     `json:"companySize"`
	Revenue      *float64 `json:"revenue"`
	Industry     string   `json:"industry"`
	Title        string   `json:"title"`
	Seniority    string   `json:"seniority"`
	Technologies []string `json:"technologies"`
	Confidence   float64  `json:"confidence"`
}

// Lookup identifies the lead to enrich. Email is the primary key the
// provider matches on; phone must already be E.164.
type Lookup struct {
	Email   string
	Phone   string
	Company string
}

// Client calls the enrichment provider. Requests are throttled so bulk
// enrichment stays inside the provider's rate limit.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
}

// New creates a new enrichment client. ratePerSecond bounds outbound
// request rate.
func New(baseURL, apiKey string, ratePerSecond float64, log *logger.Logger) *Client {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		log:        log,
	}
}

// Enrich looks up a lead at the provider. A lead the provider does not
// know yields apperr.NotFound.
func (c *Client) Enrich(ctx context.Context, lookup Lookup) (Profile, error) {
	if lookup.Email == "" {
		return Profile{}, apperr.BadRequest("lead has no email to enrich on")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Profile{}, err
	}

	params := url.Values{}
	params.Set("email", lookup.Email)
	if lookup.Phone != "" {
		params.Set("phone", lookup.Phone)
	}
	if lookup.Company != "" {
		params.Set("company", lookup.Company)
	}

	reqURL := fmt.Sprintf("%s/v1/enrich?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("enrichment provider request failed", "error", err)
		return Profile{}, apperr.Wrap(apperr.KindUnavailable, "enrichment provider unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Profile{}, apperr.NotFound("enrichment provider has no data for this lead")
	case resp.StatusCode == http.StatusTooManyRequests:
		return Profile{}, apperr.Unavailable("enrichment provider rate limit exceeded")
	case resp.StatusCode >= 400:
		c.log.Error("enrichment provider error", "status", resp.StatusCode)
		return Profile{}, apperr.Unavailable(fmt.Sprintf("enrichment provider returned status %d", resp.StatusCode))
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return Profile{}, apperr.Wrap(apperr.KindUnavailable, "failed to decode enrichment response", err)
	}
	return profile, nil
}
