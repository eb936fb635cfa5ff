package api

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

const bearerPrefix = "Bearer "

// bearerToken returns the JWT of a "Bearer <token>" header value.
func bearerToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errMissingAuthorization
	}
	token, ok := strings.CutPrefix(raw, bearerPrefix)
	if !ok || token == "" {
		return "", errBadAuthorization
	}
	if strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}

// authorize returns the caller's user id. Event streams cannot set headers
// from a browser, so the token may also come in the token query parameter.
func authorize(c echo.Context, auth Authenticator, allowQuery bool) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" && allowQuery {
		if token := c.QueryParam("token"); token != "" {
			header = bearerPrefix + token
		}
	}
	return auth.UserIDFromAuthHeader(header)
}
