// Package httpserver exposes the authentication API over HTTP.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/contacts-keeper/internal/errs"
	"github.com/and161185/contacts-keeper/internal/model"
	"github.com/and161185/contacts-keeper/internal/observability"
	"github.com/and161185/contacts-keeper/internal/service"
)

const (
	defaultAuthTimeout = 5 * time.Second
	healthTimeout      = 2 * time.Second
)

// Server wires the auth service into echo handlers.
type Server struct {
	auth        service.AuthService
	log         *zap.Logger
	authTimeout time.Duration
	echo        *echo.Echo
}

// New constructs the HTTP server and registers all routes.
// authTimeout bounds caller resolution on protected routes.
func New(auth service.AuthService, log *zap.Logger, authTimeout time.Duration) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if authTimeout <= 0 {
		authTimeout = defaultAuthTimeout
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{auth: auth, log: log, authTimeout: authTimeout, echo: e}
	e.Use(Logging(log), Recover(log))
	s.RegisterRoutes(e)
	return s
}

// RegisterRoutes mounts the API under /api and the metrics endpoint.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")
	api.GET("/healthchecker", s.HandleHealth)

	auth := api.Group("/auth")
	auth.POST("/signup", s.HandleSignup)
	auth.POST("/login", s.HandleLogin)
	auth.GET("/refresh_token", s.HandleRefresh)
	auth.GET("/confirmed_email/:token", s.HandleConfirmEmail)
	auth.POST("/request_email", s.HandleRequestEmail)
	auth.POST("/logout", s.HandleLogout, s.RequireCaller)

	users := api.Group("/users")
	users.GET("/me", s.HandleMe, s.RequireCaller)
	users.PATCH("/avatar", s.HandleAvatar, s.RequireCaller)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

type errorBody struct {
	Detail string `json:"detail"`
}

type messageBody struct {
	Message string `json:"message"`
}

type accountView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Avatar    string    `json:"avatar,omitempty"`
	Confirmed bool      `json:"confirmed"`
	CreatedAt time.Time `json:"created_at"`
}

func viewOf(a *model.Account) accountView {
	return accountView{
		ID:        a.ID.String(),
		Username:  a.Name,
		Email:     a.Email,
		Avatar:    a.AvatarURL,
		Confirmed: a.Confirmed,
		CreatedAt: a.CreatedAt,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func tokensOf(t model.Tokens) tokenResponse {
	return tokenResponse{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken, TokenType: "bearer"}
}

// HandleSignup creates an account and triggers the confirmation mail.
func (s *Server) HandleSignup(c echo.Context) error {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Detail: "invalid request body"})
	}

	a, err := s.auth.Signup(c.Request().Context(), body.Username, body.Email, body.Password)
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrAlreadyExists):
		return c.JSON(http.StatusConflict, errorBody{Detail: "account already exists"})
	case errors.Is(err, errs.ErrValidation):
		return c.JSON(http.StatusUnprocessableEntity, errorBody{Detail: err.Error()})
	default:
		return s.fail(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"user":   viewOf(a),
		"detail": "user successfully created, check your email for confirmation",
	})
}

// HandleLogin accepts form or JSON credentials and returns a token pair.
func (s *Server) HandleLogin(c echo.Context) error {
	var body struct {
		Username string `json:"username" form:"username"`
		Password string `json:"password" form:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Detail: "invalid request body"})
	}

	tk, err := s.auth.Login(c.Request().Context(), body.Username, body.Password, c.RealIP())
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, errorBody{Detail: "invalid credentials"})
	case errors.Is(err, errs.ErrNotConfirmed):
		return c.JSON(http.StatusUnauthorized, errorBody{Detail: "email not confirmed"})
	case errors.Is(err, errs.ErrRateLimited):
		return c.JSON(http.StatusTooManyRequests, errorBody{Detail: "too many failed attempts, try again later"})
	default:
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, tokensOf(tk))
}

// HandleRefresh rotates the refresh token presented as the bearer credential.
func (s *Server) HandleRefresh(c echo.Context) error {
	tok, err := bearerToken(c.Request())
	if err != nil {
		return s.unauthorized(c)
	}

	tk, err := s.auth.Refresh(c.Request().Context(), tok)
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrScopeMismatch):
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		return c.JSON(http.StatusUnauthorized, errorBody{Detail: errs.ErrScopeMismatch.Error()})
	case errors.Is(err, errs.ErrUnauthorized):
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		return c.JSON(http.StatusUnauthorized, errorBody{Detail: "invalid refresh token"})
	default:
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, tokensOf(tk))
}

// HandleConfirmEmail confirms the account named by the token in the path.
func (s *Server) HandleConfirmEmail(c echo.Context) error {
	already, err := s.auth.ConfirmEmail(c.Request().Context(), c.Param("token"))
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrInvalidToken):
		return c.JSON(http.StatusUnprocessableEntity, errorBody{Detail: "invalid token for email verification"})
	case errors.Is(err, errs.ErrNotFound):
		return c.JSON(http.StatusBadRequest, errorBody{Detail: "verification error"})
	default:
		return s.fail(c, err)
	}
	if already {
		return c.JSON(http.StatusOK, messageBody{Message: "your email is already confirmed"})
	}
	return c.JSON(http.StatusOK, messageBody{Message: "email confirmed"})
}

// HandleRequestEmail resends the confirmation mail. The reply never reveals
// whether the address is registered.
func (s *Server) HandleRequestEmail(c echo.Context) error {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&body); err != nil || body.Email == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Detail: "invalid request body"})
	}
	if err := s.auth.RequestConfirmation(c.Request().Context(), body.Email); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, messageBody{Message: "check your email for confirmation"})
}

// HandleLogout forgets the caller's refresh token.
func (s *Server) HandleLogout(c echo.Context) error {
	id, _ := IdentityFromCtx(c.Request().Context())
	if err := s.auth.Logout(c.Request().Context(), id); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleMe returns the resolved caller.
func (s *Server) HandleMe(c echo.Context) error {
	id, _ := IdentityFromCtx(c.Request().Context())
	return c.JSON(http.StatusOK, id)
}

// HandleAvatar updates the caller's avatar URL.
func (s *Server) HandleAvatar(c echo.Context) error {
	var body struct {
		AvatarURL string `json:"avatar_url"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Detail: "invalid request body"})
	}
	id, _ := IdentityFromCtx(c.Request().Context())

	a, err := s.auth.UpdateAvatar(c.Request().Context(), id, body.AvatarURL)
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrValidation):
		return c.JSON(http.StatusUnprocessableEntity, errorBody{Detail: err.Error()})
	case errors.Is(err, errs.ErrNotFound):
		return s.unauthorized(c)
	default:
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(a))
}

// HandleHealth reports whether the account store answers.
func (s *Server) HandleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	if err := s.auth.Ping(ctx); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// fail maps infrastructure errors: outages to 503, everything else to 500.
func (s *Server) fail(c echo.Context, err error) error {
	if errors.Is(err, errs.ErrPersistenceUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn("dependency unavailable", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, errorBody{Detail: "service temporarily unavailable"})
	}
	return s.internal(c, err)
}

func (s *Server) internal(c echo.Context, err error) error {
	req := c.Request()
	s.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	observability.CaptureError(err, req.Method, req.URL.Path)
	return c.JSON(http.StatusInternalServerError, errorBody{Detail: "internal server error"})
}
