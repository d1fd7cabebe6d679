package athena

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

type tokenServer struct {
	srv  *httptest.Server
	form url.Values
}

func newTokenServer(t *testing.T, status int, body map[string]interface{}) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/oauth/token" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ts.form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *tokenServer) client() *OAuthClient {
	return NewOAuthClient(OAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8000/auth/callback",
		AuthorizeURL: ts.srv.URL + "/oauth/authorize",
		TokenURL:     ts.srv.URL + "/oauth/token",
	})
}

var okToken = map[string]interface{}{
	"access_token":  "access-1",
	"token_type":    "Bearer",
	"expires_in":    3600,
	"refresh_token": "refresh-1",
}

func TestAuthCodeURL(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, okToken)

	raw := ts.client().AuthCodeURL("state-123")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	if u.Path != "/oauth/authorize" {
		t.Errorf("unexpected path %s", u.Path)
	}
	q := u.Query()
	want := map[string]string{
		"response_type": "code",
		"client_id":     "client-id",
		"redirect_uri":  "http://localhost:8000/auth/callback",
		"state":         "state-123",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("%s: expected %q, got %q", k, v, q.Get(k))
		}
	}
}

func TestExchange(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, okToken)

	tok, err := ts.client().Exchange(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("Exchange() error: %v", err)
	}
	if tok.AccessToken != "access-1" || tok.RefreshToken != "refresh-1" || tok.ExpiresIn != 3600 {
		t.Errorf("unexpected token %+v", tok)
	}

	want := map[string]string{
		"grant_type":    "authorization_code",
		"code":          "auth-code",
		"redirect_uri":  "http://localhost:8000/auth/callback",
		"client_id":     "client-id",
		"client_secret": "client-secret",
	}
	for k, v := range want {
		if ts.form.Get(k) != v {
			t.Errorf("form %s: expected %q, got %q", k, v, ts.form.Get(k))
		}
	}
}

func TestRefresh(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, map[string]interface{}{
		"access_token": "access-2",
		"token_type":   "Bearer",
		"expires_in":   1800,
	})

	tok, err := ts.client().Refresh(context.Background(), "refresh-1")
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if tok.AccessToken != "access-2" || tok.ExpiresIn != 1800 {
		t.Errorf("unexpected token %+v", tok)
	}
	if ts.form.Get("grant_type") != "refresh_token" || ts.form.Get("refresh_token") != "refresh-1" {
		t.Errorf("unexpected refresh form %v", ts.form)
	}
	if ts.form.Get("client_secret") != "client-secret" {
		t.Errorf("expected client secret in form, got %v", ts.form)
	}
}

func TestExchange_Rejected(t *testing.T) {
	ts := newTokenServer(t, http.StatusUnauthorized, map[string]interface{}{"error": "invalid_grant"})

	_, err := ts.client().Exchange(context.Background(), "stale")
	if !errors.Is(err, ErrUpstreamAuth) {
		t.Fatalf("expected ErrUpstreamAuth, got %v", err)
	}
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected upstream status 401, got %v", err)
	}
}

func TestExchange_MissingAccessToken(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, map[string]interface{}{"token_type": "Bearer"})

	_, err := ts.client().Exchange(context.Background(), "code")
	if !errors.Is(err, ErrUpstreamAuth) {
		t.Fatalf("expected ErrUpstreamAuth, got %v", err)
	}
}

func TestExchange_Unreachable(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, okToken)
	c := ts.client()
	ts.srv.Close()

	_, err := c.Exchange(context.Background(), "code")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
