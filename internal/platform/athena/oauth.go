package athena

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// OAuthConfig carries the Athena OAuth2 client credentials and endpoints.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthorizeURL string
	TokenURL     string
	HTTPClient   *http.Client
}

// TokenResponse is the token payload returned to API callers.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// OAuthClient performs the authorization-code and refresh-token grants.
type OAuthClient struct {
	cfg        *oauth2.Config
	httpClient *http.Client
}

func NewOAuthClient(c OAuthConfig) *OAuthClient {
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &OAuthClient{
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   c.AuthorizeURL,
				TokenURL:  c.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: hc,
	}
}

// AuthCodeURL returns the authorize URL the user agent is redirected to.
func (o *OAuthClient) AuthCodeURL(state string) string {
	return o.cfg.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens.
func (o *OAuthClient) Exchange(ctx context.Context, code string) (*TokenResponse, error) {
	tok, err := o.cfg.Exchange(o.withClient(ctx), code)
	if err != nil {
		return nil, tokenError("token exchange", err)
	}
	return toTokenResponse(tok), nil
}

// Refresh obtains a new access token from a refresh token.
func (o *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	tok, err := o.cfg.TokenSource(o.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, tokenError("token refresh", err)
	}
	return toTokenResponse(tok), nil
}

func (o *OAuthClient) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
}

func tokenError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &UpstreamError{Kind: KindAuth, Op: op, StatusCode: re.Response.StatusCode, Body: string(re.Body), Err: err}
	}
	var ue *url.Error
	if errors.As(err, &ue) || errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamError{Kind: KindUnavailable, Op: op, Err: err}
	}
	// 200 without an access token.
	return &UpstreamError{Kind: KindAuth, Op: op, StatusCode: http.StatusBadGateway, Err: err}
}

func toTokenResponse(tok *oauth2.Token) *TokenResponse {
	out := &TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
	}
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		out.ExpiresIn = int64(v)
	case json.Number:
		out.ExpiresIn, _ = v.Int64()
	case string:
		out.ExpiresIn, _ = strconv.ParseInt(v, 10, 64)
	default:
		if !tok.Expiry.IsZero() {
			out.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second).Seconds())
		}
	}
	return out
}
