package athena

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sarcrisk/sarcrisk/internal/platform/auth"
	"github.com/sarcrisk/sarcrisk/internal/platform/fhir"
)

// OAuthHandler exposes the authorization-code flow over HTTP.
type OAuthHandler struct {
	oauth  *OAuthClient
	states *auth.StateSigner
	logger zerolog.Logger
}

func NewOAuthHandler(oauth *OAuthClient, states *auth.StateSigner, logger zerolog.Logger) *OAuthHandler {
	return &OAuthHandler{oauth: oauth, states: states, logger: logger}
}

func (h *OAuthHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/login", h.Login)
	g.GET("/callback", h.Callback)
	g.POST("/refresh", h.Refresh)
}

type callbackParams struct {
	Code  string `query:"code" validate:"required"`
	State string `query:"state"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *OAuthHandler) Login(c echo.Context) error {
	state, err := h.states.Issue()
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, h.oauth.AuthCodeURL(state))
}

// Callback exchanges the authorization code. A state, when present, must
// be one this server issued.
func (h *OAuthHandler) Callback(c echo.Context) error {
	var p callbackParams
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}
	if err := c.Validate(&p); err != nil {
		return err
	}
	if p.State != "" {
		if err := h.states.Verify(p.State); err != nil {
			return fhir.WriteOutcome(c, http.StatusBadRequest, fhir.ValidationOutcome("state", "unknown or expired state"))
		}
	}

	tok, err := h.oauth.Exchange(c.Request().Context(), p.Code)
	if err != nil {
		return h.tokenFailure(c, err)
	}
	return c.JSON(http.StatusOK, tok)
}

func (h *OAuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	tok, err := h.oauth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return h.tokenFailure(c, err)
	}
	return c.JSON(http.StatusOK, tok)
}

// tokenFailure relays the token endpoint's status to the caller.
func (h *OAuthHandler) tokenFailure(c echo.Context, err error) error {
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		return err
	}
	h.logger.Warn().Err(err).Int("upstream_status", ue.StatusCode).Msg("athena token request failed")

	if ue.Kind == KindUnavailable {
		return fhir.WriteOutcome(c, http.StatusServiceUnavailable, fhir.TransientOutcome("athena token endpoint unavailable"))
	}
	status := ue.StatusCode
	if status < 400 {
		status = http.StatusBadGateway
	}
	return fhir.WriteOutcome(c, status, fhir.LoginOutcome("failed to obtain access token"))
}
