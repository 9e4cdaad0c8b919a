package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vmunix/streamgrab/internal/media"
	"github.com/vmunix/streamgrab/internal/session"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		CountryCode string `json:"countryCode"`
	} `json:"user"`
}

// Refresh exchanges p's refresh token for a new access token. It never
// touches the shared session; the caller decides where the profile goes.
// A rejected grant returns media.ErrUnauthorized.
func (c *Client) Refresh(ctx context.Context, p session.Profile) (session.Profile, error) {
	if p.RefreshToken == "" {
		return p, fmt.Errorf("%w: no refresh token", media.ErrUnauthorized)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {p.RefreshToken},
		"client_id":     {p.ClientID},
		"scope":         {"r_usr w_usr"},
	}
	if p.ClientSecret != "" {
		form.Set("client_secret", p.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return p, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return p, fmt.Errorf("refresh token: %w", err)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return p, fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return p, fmt.Errorf("%w: token response missing access token", media.ErrUnauthorized)
	}

	out := p
	out.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		out.RefreshToken = tok.RefreshToken
	}
	if tok.TokenType != "" {
		out.TokenType = tok.TokenType
	}
	if tok.ExpiresIn > 0 {
		out.Expiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	if tok.User.CountryCode != "" {
		out.CountryCode = tok.User.CountryCode
	}

	c.log.Info("refreshed access token", "client_id", p.ClientID, "expires", out.Expiry.Format(time.RFC3339))
	return out, nil
}
