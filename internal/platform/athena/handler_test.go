package athena

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sarcrisk/sarcrisk/internal/platform/auth"
	"github.com/sarcrisk/sarcrisk/internal/platform/fhir"
	"github.com/sarcrisk/sarcrisk/internal/platform/validate"
)

var stateKey = []byte("0123456789abcdef0123456789abcdef")

func newOAuthEcho(c *OAuthClient) (*echo.Echo, *auth.StateSigner) {
	e := echo.New()
	e.Validator = validate.New()
	e.HTTPErrorHandler = fhir.ErrorHandler(zerolog.Nop())
	states := auth.NewStateSigner(stateKey, time.Minute)
	NewOAuthHandler(c, states, zerolog.Nop()).RegisterRoutes(e.Group("/auth"))
	return e, states
}

func TestLogin_RedirectsWithSignedState(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, okToken)
	e, states := newOAuthEcho(ts.client())

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if !strings.HasSuffix(loc.Path, "/oauth/authorize") {
		t.Errorf("unexpected redirect %s", loc)
	}
	if err := states.Verify(loc.Query().Get("state")); err != nil {
		t.Errorf("expected verifiable state, got %v", err)
	}
}

func TestCallback(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, okToken)
	e, states := newOAuthEcho(ts.client())
	state, err := states.Issue()
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+url.QueryEscape(state), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var tok TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tok); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if tok.AccessToken != "access-1" || tok.ExpiresIn != 3600 {
		t.Errorf("unexpected token %+v", tok)
	}
	if ts.form.Get("code") != "abc" {
		t.Errorf("expected code to be forwarded, got %q", ts.form.Get("code"))
	}
}

func TestCallback_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing code", "/auth/callback"},
		{"forged state", "/auth/callback?code=abc&state=not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t, http.StatusOK, okToken)
			e, _ := newOAuthEcho(ts.client())

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.query, nil))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			if ts.form != nil {
				t.Error("expected no token request")
			}
		})
	}
}

func TestCallback_UpstreamRejection(t *testing.T) {
	ts := newTokenServer(t, http.StatusBadRequest, map[string]interface{}{"error": "invalid_grant"})
	e, _ := newOAuthEcho(ts.client())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=expired", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected upstream status 400, got %d", rec.Code)
	}
	var oo fhir.OperationOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &oo); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if oo.Issue[0].Code != fhir.IssueTypeLogin {
		t.Errorf("expected login issue, got %s", oo.Issue[0].Code)
	}
}

func TestRefreshHandler(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, okToken)
	e, _ := newOAuthEcho(ts.client())

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{"refresh_token":"refresh-1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ts.form.Get("refresh_token") != "refresh-1" {
		t.Errorf("unexpected refresh form %v", ts.form)
	}
}

func TestRefreshHandler_MissingToken(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, okToken)
	e, _ := newOAuthEcho(ts.client())

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestRefreshHandler_TokenEndpointDown(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, okToken)
	e, _ := newOAuthEcho(ts.client())
	ts.srv.Close()

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{"refresh_token":"r"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
}
