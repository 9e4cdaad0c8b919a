// Package session owns the shared network-session credentials and switches
// them between the normal and the alternate-quality profile.
package session

import (
	"sync"
	"time"
)

// Mode is the active credential profile.
type Mode int

const (
	ModeNormal Mode = iota
	ModeAlternate
)

func (m Mode) String() string {
	if m == ModeAlternate {
		return "alternate"
	}
	return "normal"
}

// Profile is one set of credentials for the service.
type Profile struct {
	TokenType    string    `json:"token_type"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret,omitempty"`
	CountryCode  string    `json:"country_code,omitempty"`
}

// IsZero reports whether the profile carries no credentials at all.
func (p Profile) IsZero() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// Expired reports whether the access token is expired at now, with a small
// safety margin. A zero expiry never expires.
func (p Profile) Expired(now time.Time) bool {
	if p.Expiry.IsZero() {
		return false
	}
	return now.Add(time.Minute).After(p.Expiry)
}

// Session is the single process-wide credentials object every request reads
// its token from. Only the Coordinator changes it.
type Session struct {
	mu      sync.RWMutex
	profile Profile
}

// New creates a session using the given profile.
func New(p Profile) *Session {
	return &Session{profile: p}
}

// Profile returns a copy of the active profile.
func (s *Session) Profile() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Authorization returns the Authorization header value for the active profile.
func (s *Session) Authorization() string {
	p := s.Profile()
	if p.AccessToken == "" {
		return ""
	}
	tokenType := p.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + p.AccessToken
}

func (s *Session) set(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
}
