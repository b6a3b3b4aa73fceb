package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/oauth2"

	"shopifyapp/pkg/config"
)

// AssociatedUser is present in per-user (online) access grants.
type AssociatedUser struct {
	ID            int64  `json:"id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	AccountOwner  bool   `json:"account_owner"`
	Locale        string `json:"locale"`
	Collaborator  bool   `json:"collaborator"`
}

type AccessData struct {
	AccessToken    string
	Scope          string
	AssociatedUser *AssociatedUser
}

func (c Client) oauthConfig() *oauth2.Config {
	base := c.baseURL()
	return &oauth2.Config{
		ClientID:     c.APIKey,
		ClientSecret: c.APISecret,
		RedirectURL:  c.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "/admin/oauth/authorize",
			TokenURL:  base + "/admin/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// BuildAuthURL returns the platform's install/authorize screen URL. Scopes are
// comma separated, which the oauth2 package does not do on its own.
func (c Client) BuildAuthURL(mode string, scopes []string, state string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("scope", strings.Join(scopes, ",")),
	}
	if mode == config.GrantPerUser {
		opts = append(opts, oauth2.SetAuthURLParam("grant_options[]", config.GrantPerUser))
	}
	return c.oauthConfig().AuthCodeURL(state, opts...)
}

// GetAccessData exchanges an authorization code for an access token.
func (c Client) GetAccessData(ctx context.Context, code string) (*AccessData, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient())
	tok, err := c.oauthConfig().Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("shopify token exchange: %w", err)
	}

	data := &AccessData{AccessToken: tok.AccessToken}
	if s, ok := tok.Extra("scope").(string); ok {
		data.Scope = s
	}
	if raw := tok.Extra("associated_user"); raw != nil {
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("encode associated_user: %w", err)
		}
		var u AssociatedUser
		if err := json.Unmarshal(b, &u); err != nil {
			return nil, fmt.Errorf("decode associated_user: %w", err)
		}
		data.AssociatedUser = &u
	}
	return data, nil
}
