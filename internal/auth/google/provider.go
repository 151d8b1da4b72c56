// Package google exchanges a Google OAuth authorization result for a local
// user account, creating or linking records as needed.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Default Google OAuth 2.0 endpoints. Overridable for tests.
const (
	defaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// Provider holds the client credentials and endpoints for the Google OAuth
// round trip.
type Provider struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	httpClient *http.Client
}

// NewProvider creates a Provider with the default Google endpoints.
func NewProvider(clientID, clientSecret, callbackURL string) *Provider {
	return &Provider{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		CallbackURL:  callbackURL,
		AuthURL:      defaultAuthURL,
		TokenURL:     defaultTokenURL,
		UserInfoURL:  defaultUserInfoURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Token is the provider's authorization-code exchange result.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
	IDToken     string
}

// Profile is the subset of the provider's userinfo payload the resolver
// needs: a stable subject, a display name, and the verified emails.
type Profile struct {
	Subject     string
	DisplayName string
	Emails      []string
}

// LoginURL builds the consent-screen redirect for the login flow.
func (p *Provider) LoginURL(state string) string {
	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", p.ClientID)
	query.Set("redirect_uri", p.CallbackURL)
	query.Set("scope", "openid profile email")
	query.Set("state", state)
	return p.AuthURL + "?" + query.Encode()
}

// Exchange trades an authorization code for an access token.
func (p *Provider) Exchange(ctx context.Context, code string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.CallbackURL)
	form.Set("client_id", p.ClientID)
	form.Set("client_secret", p.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client().Do(req)
	if err != nil {
		return Token{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Token{}, errors.New("token exchange failed")
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		IDToken     string `json:"id_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Token{}, err
	}
	if payload.AccessToken == "" {
		return Token{}, errors.New("missing access token")
	}

	expiresAt := time.Time{}
	if payload.ExpiresIn > 0 {
		expiresAt = time.Now().UTC().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return Token{
		AccessToken: payload.AccessToken,
		ExpiresAt:   expiresAt,
		IDToken:     payload.IDToken,
	}, nil
}

// FetchProfile retrieves the OIDC userinfo payload for an access token.
func (p *Provider) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client().Do(req)
	if err != nil {
		return Profile{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Profile{}, errors.New("profile request failed")
	}

	var payload struct {
		Sub           string `json:"sub"`
		Name          string `json:"name"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Profile{}, err
	}
	if payload.Sub == "" {
		return Profile{}, errors.New("missing subject in profile")
	}

	var emails []string
	if strings.TrimSpace(payload.Email) != "" {
		emails = append(emails, payload.Email)
	}
	return Profile{
		Subject:     payload.Sub,
		DisplayName: firstNonEmpty(payload.Name, payload.Email, payload.Sub),
		Emails:      emails,
	}, nil
}

func (p *Provider) client() *http.Client {
	if p.httpClient != nil {
		return p.httpClient
	}
	return http.DefaultClient
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return "Unknown User"
}
