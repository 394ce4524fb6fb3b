// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web serves the account pages: signup, login, logout, dashboard,
// profile, change-password and the forgot/reset-password flow.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/pkg/errutil"
)

// Cookie names.
const (
	SessionCookie = "accounts_session"
	FlashCookie   = "accounts_flash"
	CSRFCookie    = "accounts_csrf"
)

// CSRFField is the hidden form field carrying the CSRF token.
const CSRFField = "csrf_token"

// Options configures the web server.
type Options struct {
	Auth   *auth.Service
	Resets *auth.PasswordResetService
	Logger *slog.Logger

	// CSRF enables token checks on unsafe methods.
	CSRF bool
	// SecureCookies marks every cookie Secure.
	SecureCookies bool
}

// Server is the account web server.
type Server struct {
	echo       *echo.Echo
	auth       *auth.Service
	resets     *auth.PasswordResetService
	logger     *slog.Logger
	renderer   *renderer
	forms      *validator.Validate
	csrf       bool
	secure     bool
	httpServer *http.Server
	listener   net.Listener
	running    atomic.Bool
}

// New builds the server and registers every route.
func New(opts Options) (*Server, error) {
	if opts.Auth == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if opts.Resets == nil {
		return nil, oops.Errorf("password reset service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r, err := newRenderer()
	if err != nil {
		return nil, err
	}

	s := &Server{
		echo:     echo.New(),
		auth:     opts.Auth,
		resets:   opts.Resets,
		logger:   logger,
		renderer: r,
		forms:    newFormValidator(),
		csrf:     opts.CSRF,
		secure:   opts.SecureCookies,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Renderer = r
	s.echo.HTTPErrorHandler = s.handleError
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	e := s.echo
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(
		middleware.RequestID(),
		s.requestLogger(),
		s.trace,
		s.countRequests,
		middleware.Recover(),
	)
	if s.csrf {
		e.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
			TokenLookup:    "form:" + CSRFField,
			ContextKey:     csrfContextKey,
			CookieName:     CSRFCookie,
			CookiePath:     "/",
			CookieHTTPOnly: true,
			CookieSecure:   s.secure,
			CookieSameSite: http.SameSiteLaxMode,
		}))
	}
	e.Use(s.loadSession)

	e.GET("/", s.loginPage, s.anonymousOnly)
	e.POST("/", s.login, s.anonymousOnly)
	e.GET("/signup", s.signupPage, s.anonymousOnly)
	e.POST("/signup", s.signup, s.anonymousOnly)
	e.GET("/dashboard", s.dashboard, s.requireAuth)
	e.GET("/profile", s.profile, s.requireAuth)
	e.POST("/logout", s.logout)
	e.GET("/change-password", s.changePasswordPage, s.requireAuth)
	e.POST("/change-password", s.changePassword, s.requireAuth)
	e.GET("/forgot-password", s.forgotPasswordPage)
	e.POST("/forgot-password", s.forgotPassword)
	e.GET("/reset-password", s.resetPasswordPage)
	e.POST("/reset-password", s.resetPassword)
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr and serves in the background. The returned channel
// receives a serve error, and is closed when the server stops.
func (s *Server) Start(addr string) (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Listening reports whether Start has bound the listener and Stop has not run.
func (s *Server) Listening() bool {
	return s.running.Load()
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown_web_server").Wrap(err)
	}
	s.logger.Info("web server stopped")
	return nil
}

// handleError renders HTTP errors as an error page. Anything that is not an
// *echo.HTTPError is an internal failure: it is logged and answered with 500.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := http.StatusText(status)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		message = http.StatusText(status)
	} else {
		errutil.LogError(s.logger, "request failed", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.Render(status, "error.html", &page{Title: message, Status: status, Message: message})
	}
	if err != nil {
		s.logger.Error("failed to render error page", "error", err)
	}
}
