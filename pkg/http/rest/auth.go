package rest

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/soniqlabs/meetbot/pkg/auth"
)

type authController struct {
	manager *auth.Manager
}

func NewAuthController(manager *auth.Manager) authController {
	return authController{manager: manager}
}

func (ac *authController) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, ac.manager.Status())
}

// StartAuth redirects the browser to the provider's consent page.
func (ac *authController) StartAuth(provider auth.Provider) echo.HandlerFunc {
	return func(c echo.Context) error {
		url, err := ac.manager.AuthURL(provider)
		if err != nil {
			if errors.Is(err, auth.ErrProviderNotConfigured) {
				return echo.NewHTTPError(http.StatusNotFound, err)
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err)
		}
		return c.Redirect(http.StatusTemporaryRedirect, url)
	}
}

// Callback completes the OAuth code exchange. Both providers share it;
// the state parameter identifies which flow is finishing.
func (ac *authController) Callback(c echo.Context) error {
	if errParam := c.QueryParam("error"); errParam != "" {
		return c.HTML(http.StatusBadRequest, "<html><body><h2>Authorization failed</h2><p>"+errParam+"</p></body></html>")
	}

	state := c.QueryParam("state")
	code := c.QueryParam("code")
	if state == "" || code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}

	provider, err := ac.manager.Exchange(c.Request().Context(), state, code)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	return c.HTML(http.StatusOK, "<html><body><h2>"+string(provider)+" connected</h2><p>You can close this tab.</p></body></html>")
}
