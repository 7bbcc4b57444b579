package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// NegotiateFunc produces a fresh client access URL. It is called on every
// connect and resume attempt because access tokens are short-lived.
type NegotiateFunc func(ctx context.Context) (string, error)

type negotiateResponse struct {
	URL         string `json:"url"`
	AccessToken string `json:"accessToken"`
}

// StaticURL returns a NegotiateFunc that always yields the given client
// access URL. Useful for tests and long-lived tokens.
func StaticURL(accessURL string) NegotiateFunc {
	return func(context.Context) (string, error) {
		return accessURL, nil
	}
}

// HTTPNegotiate returns a NegotiateFunc backed by an HTTP negotiate
// endpoint responding with {"url": ..., "accessToken": ...}. When the token
// is returned separately it is appended as the access_token query parameter.
// A nil httpClient falls back to http.DefaultClient.
func HTTPNegotiate(negotiateURL string, httpClient *http.Client) NegotiateFunc {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, negotiateURL, nil)
		if err != nil {
			return "", err
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("negotiate returned status %d", resp.StatusCode)
		}

		var nr negotiateResponse
		if err := json.NewDecoder(resp.Body).Decode(&nr); err != nil {
			return "", fmt.Errorf("negotiate response: %w", err)
		}
		if nr.URL == "" {
			return "", fmt.Errorf("negotiate response missing url")
		}

		u, err := url.Parse(nr.URL)
		if err != nil {
			return "", fmt.Errorf("negotiate url: %w", err)
		}
		if nr.AccessToken != "" && u.Query().Get("access_token") == "" {
			q := u.Query()
			q.Set("access_token", nr.AccessToken)
			u.RawQuery = q.Encode()
		}
		return u.String(), nil
	}
}
