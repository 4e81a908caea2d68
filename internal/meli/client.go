package meli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultBaseURL = "https://api.mercadolibre.com"

const userAgent = "SKUradar/1.0"

// ErrUnauthorized signals that the marketplace rejected the bearer token.
// Callers must treat it differently from "no match": it means the token needs
// a refresh, not that the product is absent.
var ErrUnauthorized = errors.New("meli: unauthorized")

// Condition is the listing condition reported by the marketplace.
type Condition int

const (
	ConditionUnknown Condition = iota
	ConditionNew
	ConditionUsed
)

// Label returns the Spanish label used in reports.
func (c Condition) Label() string {
	switch c {
	case ConditionNew:
		return "Nuevo"
	case ConditionUsed:
		return "Usado"
	default:
		return ""
	}
}

// Listing is the first search result for a query, normalized.
type Listing struct {
	Title        string
	Price        float64
	Permalink    string
	Condition    Condition
	SoldQuantity int
}

// Client talks to the MercadoLibre OAuth and search endpoints.
type Client struct {
	clientID     string
	clientSecret string
	site         string
	baseURL      string
	httpClient   *http.Client
	apiCallCount int64
	apiCallMutex sync.Mutex
}

func NewClient(clientID, clientSecret, site string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		site:         site,
		baseURL:      defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// IncrementAPICall records one request against the marketplace, counting
// token and search traffic alike.
func (c *Client) IncrementAPICall() {
	c.apiCallMutex.Lock()
	c.apiCallCount++
	c.apiCallMutex.Unlock()
}

// GetAPICallCount reports how many marketplace requests this client has made,
// logged at the end of a run to keep an eye on rate-limit headroom.
func (c *Client) GetAPICallCount() int64 {
	c.apiCallMutex.Lock()
	defer c.apiCallMutex.Unlock()
	return c.apiCallCount
}

// ResetAPICallCount starts a fresh count for the next run.
func (c *Client) ResetAPICallCount() {
	c.apiCallMutex.Lock()
	c.apiCallCount = 0
	c.apiCallMutex.Unlock()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// RequestToken performs a client-credentials grant against the OAuth token
// endpoint and returns the raw token and its lifetime in seconds.
func (c *Client) RequestToken(ctx context.Context) (string, int, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	c.IncrementAPICall()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return "", 0, fmt.Errorf("malformed token response")
	}

	return tr.AccessToken, tr.ExpiresIn, nil
}

type searchResponse struct {
	Results []struct {
		Title        string  `json:"title"`
		Price        float64 `json:"price"`
		Permalink    string  `json:"permalink"`
		Condition    string  `json:"condition"`
		SoldQuantity int     `json:"sold_quantity"`
	} `json:"results"`
}

// Search queries the site search endpoint for the single best result.
// A nil Listing with a nil error means the query matched nothing.
// A 401 response is returned as ErrUnauthorized.
func (c *Client) Search(ctx context.Context, accessToken, query string) (*Listing, error) {
	u := fmt.Sprintf("%s/sites/%s/search?q=%s&limit=1", c.baseURL, c.site, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", userAgent)

	c.IncrementAPICall()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(sr.Results) == 0 {
		return nil, nil
	}

	item := sr.Results[0]
	condition := ConditionUsed
	if item.Condition == "new" {
		condition = ConditionNew
	}

	return &Listing{
		Title:        item.Title,
		Price:        item.Price,
		Permalink:    item.Permalink,
		Condition:    condition,
		SoldQuantity: item.SoldQuantity,
	}, nil
}
