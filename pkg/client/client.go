package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/cadencehq/authcore/pkg/middleware"
	"github.com/cadencehq/authcore/pkg/tenants"
)

const defaultTimeout = 10 * time.Second

// Client fetches resolved access from an authcore server. It
// implements tenants.AuthorizationService, so callers can swap it for
// a live resolver without touching their checking code.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL. Credentials come
// from the token source and ride every request as a bearer token.
func New(baseURL string, source oauth2.TokenSource) *Client {
	httpClient := oauth2.NewClient(context.Background(), source)
	httpClient.Timeout = defaultTimeout
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Resolve fetches the caller's access within tenantID. The userID
// argument is accepted for interface compatibility; the server
// derives the user from the request credential.
func (c *Client) Resolve(ctx context.Context, _ string, tenantID string) (*tenants.Access, error) {
	return c.fetchContext(ctx, tenantID)
}

// DefaultTenant asks the server for the caller's default tenant.
func (c *Client) DefaultTenant(ctx context.Context, _ string) (string, error) {
	access, err := c.fetchContext(ctx, "")
	if err != nil {
		return "", err
	}
	return access.TenantID, nil
}

func (c *Client) fetchContext(ctx context.Context, tenantID string) (*tenants.Access, error) {
	endpoint := c.baseURL + "/v1/authz/context"
	if tenantID != "" {
		endpoint += "?" + url.Values{middleware.TenantQueryParam: {tenantID}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch authorization context: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusBadRequest:
		return nil, tenants.ErrNoMembership
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("credential rejected by server")
	default:
		return nil, fmt.Errorf("unexpected status %d from server", resp.StatusCode)
	}

	var access tenants.Access
	if err := json.NewDecoder(resp.Body).Decode(&access); err != nil {
		return nil, fmt.Errorf("failed to decode authorization context: %w", err)
	}
	return &access, nil
}
