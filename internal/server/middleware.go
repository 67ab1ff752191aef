package server

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/chatwire/internal/correlation"
	"github.com/pscheid92/chatwire/internal/domain"
	"github.com/pscheid92/chatwire/internal/errors"
)

const principalContextKey = "principal"

// correlationMiddleware tags every request with a correlation ID so log
// lines from one request can be tied together.
func correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get("X-Correlation-ID")
			if id == "" {
				id = correlation.NewID()
			}

			ctx := correlation.WithID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set("X-Correlation-ID", id)
			return next(c)
		}
	}
}

// requireAuth verifies the bearer token and stores the principal in the
// request context. Any verification failure means 401; the reason stays in
// the logs.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		principal, err := s.authenticate(c)
		if err != nil {
			return err
		}
		c.Set(principalContextKey, principal)
		return next(c)
	}
}

func (s *Server) authenticate(c echo.Context) (domain.Principal, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		// Websocket clients cannot set headers from browsers, so the token
		// may arrive as a query parameter instead.
		token = c.QueryParam("token")
	}
	if token == "" {
		return domain.Principal{}, errors.UnauthorizedError("missing bearer token")
	}

	principal, err := s.verifier.Verify(token)
	if err != nil {
		return domain.Principal{}, errors.UnauthorizedError("invalid token").WithContext("cause", err.Error())
	}
	return principal, nil
}

func principalFrom(c echo.Context) domain.Principal {
	principal, _ := c.Get(principalContextKey).(domain.Principal)
	return principal
}
