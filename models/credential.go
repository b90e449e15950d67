package models

import "time"

// Credential is everything persisted about the OAuth authorization of the current user.
// An access token is always stored together with its expiry, the same is true for the
// refresh token.
type Credential struct {
	AuthorizationCode string
	AccessToken       string
	AccessExpiry      time.Time
	RefreshToken      string
	RefreshExpiry     time.Time
}

// HasAccess reports whether an access token has been issued.
func (c *Credential) HasAccess() bool {
	return c != nil && c.AccessToken != "" && !c.AccessExpiry.IsZero()
}

// HasRefresh reports whether a refresh token has been issued.
func (c *Credential) HasRefresh() bool {
	return c != nil && c.RefreshToken != "" && !c.RefreshExpiry.IsZero()
}

// AccessValid reports whether the access token is still usable at the given time.
func (c *Credential) AccessValid(now time.Time) bool {
	return c.HasAccess() && now.Before(c.AccessExpiry)
}

// RefreshValid reports whether the refresh token is still usable at the given time.
func (c *Credential) RefreshValid(now time.Time) bool {
	return c.HasRefresh() && now.Before(c.RefreshExpiry)
}

// TokenGrant is the result of a successful call to the token endpoint.
type TokenGrant struct {
	AccessToken   string
	AccessExpiry  time.Time
	RefreshToken  string
	RefreshExpiry time.Time
	MembershipID  string
}
