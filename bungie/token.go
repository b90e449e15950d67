package bungie

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/rking788/objective-tracker/models"
)

// TokenClient talks to the Bungie OAuth endpoints. It exchanges authorization codes and
// refresh tokens for access tokens.
type TokenClient struct {
	config     *oauth2.Config
	HTTPClient *http.Client
	now        func() time.Time
}

// NewTokenClient creates a token client for the registered application. Public clients
// leave clientSecret empty and send their client_id in the request body.
func NewTokenClient(baseURL, clientID, clientSecret, redirectURL string) *TokenClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	authStyle := oauth2.AuthStyleInParams
	if clientSecret != "" {
		authStyle = oauth2.AuthStyleInHeader
	}

	return &TokenClient{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   AuthorizeEndpoint,
				TokenURL:  strings.TrimSuffix(baseURL, "/") + TokenEndpoint,
				AuthStyle: authStyle,
			},
		},
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

// AuthCodeURL is the page the user has to visit to grant access. state is echoed back on
// the redirect.
func (t *TokenClient) AuthCodeURL(state string) string {
	return t.config.AuthCodeURL(state)
}

func (t *TokenClient) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, t.HTTPClient)
}

// ExchangeCode trades an authorization code for an access and refresh token pair.
func (t *TokenClient) ExchangeCode(ctx context.Context, code string) (*models.TokenGrant, error) {
	token, err := t.config.Exchange(t.context(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("authorization code exchange failed: %w", err)
	}

	return t.grantFromToken(token)
}

// RefreshAccess trades a refresh token for a new access token.
func (t *TokenClient) RefreshAccess(ctx context.Context, refreshToken string) (*models.TokenGrant, error) {
	source := t.config.TokenSource(t.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token exchange failed: %w", err)
	}

	return t.grantFromToken(token)
}

func (t *TokenClient) grantFromToken(token *oauth2.Token) (*models.TokenGrant, error) {
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response did not include an access token")
	}

	grant := &models.TokenGrant{
		AccessToken:  token.AccessToken,
		AccessExpiry: token.Expiry,
		RefreshToken: token.RefreshToken,
	}

	// Bungie always sends expires_in, guard against a missing value anyway
	if grant.AccessExpiry.IsZero() {
		grant.AccessExpiry = t.now().Add(time.Hour)
	}

	if seconds, ok := extraSeconds(token.Extra("refresh_expires_in")); ok {
		grant.RefreshExpiry = t.now().Add(time.Duration(seconds) * time.Second)
	}
	if id, ok := token.Extra("membership_id").(string); ok {
		grant.MembershipID = id
	}

	return grant, nil
}

func extraSeconds(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}

	return 0, false
}
