package domain

import "time"

// AccessToken is an opaque bearer token with its expiry instant, computed once
// at creation time. Tokens are immutable; a refresh replaces the whole value.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// NewAccessToken builds a token expiring expiresIn seconds from now.
func NewAccessToken(value string, expiresIn int64) AccessToken {
	return AccessToken{
		Value:     value,
		ExpiresAt: time.Now().Add(time.Duration(expiresIn) * time.Second),
	}
}

// IsExpired reports whether the current time has reached the expiry instant.
func (t AccessToken) IsExpired() bool {
	return !time.Now().Before(t.ExpiresAt)
}
