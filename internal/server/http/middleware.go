package httpserver

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/and161185/contacts-keeper/internal/errs"
	"github.com/and161185/contacts-keeper/internal/observability"
)

var errNoBearer = errors.New("no bearer token")

// Logging returns middleware that writes one access log line per request.
func Logging(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			// metadata only: no bodies, no tokens
			req := c.Request()
			log.Info("http",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("dur", time.Since(start)),
				zap.String("remote", c.RealIP()),
			)
			return err
		}
	}
}

// Recover returns middleware that turns panics into 500 responses.
func Recover(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					stack := debug.Stack()
					req := c.Request()
					log.Error("panic",
						zap.Any("reason", r),
						zap.ByteString("stack", stack),
						zap.String("path", req.URL.Path),
					)
					observability.CapturePanic(r, stack, req.Method, req.URL.Path)
					err = c.JSON(http.StatusInternalServerError, errorBody{Detail: "internal server error"})
				}
			}()
			return next(c)
		}
	}
}

// RequireCaller resolves the bearer access token into an identity stored in
// the request context. Resolution is bounded by timeout.
func (s *Server) RequireCaller(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tok, err := bearerToken(c.Request())
		if err != nil {
			return s.unauthorized(c)
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), s.authTimeout)
		defer cancel()

		id, err := s.auth.ResolveCaller(ctx, tok)
		switch {
		case err == nil:
		case errors.Is(err, errs.ErrUnauthorized):
			return s.unauthorized(c)
		case errors.Is(err, errs.ErrPersistenceUnavailable), ctx.Err() != nil:
			s.log.Warn("caller resolution unavailable", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, errorBody{Detail: "service temporarily unavailable"})
		default:
			return s.internal(c, err)
		}

		c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))
		return next(c)
	}
}

func (s *Server) unauthorized(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return c.JSON(http.StatusUnauthorized, errorBody{Detail: "could not validate credentials"})
}

// bearerToken extracts "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, error) {
	v := strings.TrimSpace(r.Header.Get(echo.HeaderAuthorization))
	if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
		t := strings.TrimSpace(v[7:])
		if t != "" {
			return t, nil
		}
	}
	return "", errNoBearer
}
