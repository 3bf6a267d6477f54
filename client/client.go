package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/comicfeed/comicfeed/models"
	"github.com/labstack/gommon/log"
)

const DefaultServiceHost = "http://localhost:3000"

type Credentials struct {
	Username string
	Password string
}

// Client talks to the admin routes of a running comicfeed service.
type Client struct {
	host  string
	creds *Credentials
	http  *http.Client
}

func NewClient(host string, creds *Credentials) *Client {
	if host == "" {
		host = DefaultServiceHost
	}
	return &Client{
		host:  strings.TrimRight(host, "/"),
		creds: creds,
		http:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// RefreshResult reports what a refresh or invalidation touched.
type RefreshResult struct {
	Title       string `json:"title"`
	Invalidated int    `json:"invalidated"`
}

// RefreshTitle asks the service to recrawl one title and drop its cached
// feeds. Crawling a long backlog can take a while, hence the generous
// client timeout.
func (c *Client) RefreshTitle(ctx context.Context, key models.TitleKey) (*RefreshResult, error) {
	url := fmt.Sprintf("%s/admin/titles/%s/refresh", c.host, key)
	body, err := c.do(ctx, http.MethodPost, url)
	if err != nil {
		return nil, err
	}

	var result RefreshResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	return &result, nil
}

// InvalidateCache drops a title's cached feeds without recrawling.
func (c *Client) InvalidateCache(ctx context.Context, key models.TitleKey) (*RefreshResult, error) {
	url := fmt.Sprintf("%s/admin/cache/%s", c.host, key)
	body, err := c.do(ctx, http.MethodDelete, url)
	if err != nil {
		return nil, err
	}

	var result RefreshResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode invalidate response: %w", err)
	}
	result.Title = key.String()
	return &result, nil
}

func (c *Client) do(ctx context.Context, method string, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.creds != nil {
		req.SetBasicAuth(c.creds.Username, c.creds.Password)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach service: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch res.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("service rejected the admin credentials")
	case http.StatusNotFound:
		return nil, fmt.Errorf("service has no admin routes or does not know the title")
	}

	log.Errorf("admin request failed: %s %s -> %d %s", method, url, res.StatusCode, strings.TrimSpace(string(body)))
	return nil, fmt.Errorf("admin request failed with status %d", res.StatusCode)
}
