package service

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DefaultTokenTTL is the client access token lifetime when the caller does
// not supply one. Tokens are short-lived on purpose: clients re-negotiate
// on every connect and resume.
const DefaultTokenTTL = time.Hour

// TokenProvider mints HS256 client access tokens for one hub.
type TokenProvider struct {
	endpoint  string
	accessKey string
	hub       string
}

// NewTokenProvider creates a provider for the given hub.
func NewTokenProvider(info *ConnectionInfo, hub string) *TokenProvider {
	return &TokenProvider{
		endpoint:  info.Endpoint,
		accessKey: info.AccessKey,
		hub:       hub,
	}
}

// clientHubURL is the audience claim and the base of the client access
// URL: <endpoint>/client/hubs/<hub>.
func (p *TokenProvider) clientHubURL() string {
	return p.endpoint + "/client/hubs/" + p.hub
}

// AccessToken mints a signed client access token for userID. Roles become
// the "roles" claim; the audience is the client hub URL. A zero ttl uses
// DefaultTokenTTL.
func (p *TokenProvider) AccessToken(userID string, roles []string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"aud": p.clientHubURL(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if userID != "" {
		claims["sub"] = userID
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(p.accessKey))
	if err != nil {
		return "", fmt.Errorf("service: signing access token: %w", err)
	}
	return signed, nil
}

// WebSocketURL is the token-less WebSocket URL of the hub, with the
// endpoint scheme flipped to ws or wss.
func (p *TokenProvider) WebSocketURL() (string, error) {
	u, err := url.Parse(p.clientHubURL())
	if err != nil {
		return "", fmt.Errorf("service: client hub url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

// ClientAccessURL mints a token and composes the WebSocket URL a client
// dials: wss://<host>/client/hubs/<hub>?access_token=<jwt>.
func (p *TokenProvider) ClientAccessURL(userID string, roles []string, ttl time.Duration) (string, error) {
	token, err := p.AccessToken(userID, roles, ttl)
	if err != nil {
		return "", err
	}

	base, err := p.WebSocketURL()
	if err != nil {
		return "", err
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("service: client hub url: %w", err)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// restToken mints a bearer token for one REST call. The audience is the
// exact request URL, query excluded, per the relay's auth scheme.
func (p *TokenProvider) restToken(requestURL string) (string, error) {
	audience := requestURL
	if i := strings.IndexByte(audience, '?'); i >= 0 {
		audience = audience[:i]
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(p.accessKey))
	if err != nil {
		return "", fmt.Errorf("service: signing rest token: %w", err)
	}
	return signed, nil
}
