package service

import (
	"context"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/pharmasupps/internal/auth"
	"github.com/mmynk/pharmasupps/internal/inventory"
	"github.com/mmynk/pharmasupps/internal/middleware"
)

// AuthServiceName is the fully-qualified name of the AuthService.
const AuthServiceName = "pharmasupps.v1.AuthService"

// AuthService procedure paths.
const (
	AuthLoginProcedure   = "/pharmasupps.v1.AuthService/Login"
	AuthLogoutProcedure  = "/pharmasupps.v1.AuthService/Logout"
	AuthSessionProcedure = "/pharmasupps.v1.AuthService/Session"
)

// AuthService implements the AuthService RPC interface on top of the
// inventory's auth gate.
type AuthService struct {
	ctrl   *inventory.Controller
	logger *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(ctrl *inventory.Controller, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{ctrl: ctrl, logger: logger}
}

// NewAuthServiceHandler builds an HTTP handler for the service. Logout needs
// a valid bearer token.
func NewAuthServiceHandler(svc *AuthService, validator middleware.TokenValidator, opts ...connect.HandlerOption) (string, http.Handler) {
	open := append([]connect.HandlerOption{WithJSON()}, opts...)
	guarded := append(append([]connect.HandlerOption{}, open...), connect.WithInterceptors(middleware.RequireAuth(validator)))
	optional := append(append([]connect.HandlerOption{}, open...), connect.WithInterceptors(middleware.OptionalAuth(validator)))

	mux := http.NewServeMux()
	mux.Handle(AuthLoginProcedure, connect.NewUnaryHandler(AuthLoginProcedure, svc.Login, open...))
	mux.Handle(AuthLogoutProcedure, connect.NewUnaryHandler(AuthLogoutProcedure, svc.Logout, guarded...))
	mux.Handle(AuthSessionProcedure, connect.NewUnaryHandler(AuthSessionProcedure, svc.Session, optional...))
	return "/" + AuthServiceName + "/", mux
}

// Login verifies credentials and returns the session token.
func (s *AuthService) Login(ctx context.Context, req *connect.Request[LoginRequest]) (*connect.Response[LoginResponse], error) {
	s.logger.Info("Login request", "email", req.Msg.Email)

	// Validate input
	if req.Msg.Email == "" || req.Msg.Password == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, auth.ErrInvalidCredentials)
	}

	identity, err := s.ctrl.SignIn(ctx, req.Msg.Email, req.Msg.Password)
	if err != nil {
		s.logger.Warn("Login failed", "email", req.Msg.Email, "error", err)
		return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidCredentials)
	}

	s.logger.Info("User logged in successfully", "user_id", identity.UID, "email", identity.Email)
	return connect.NewResponse(&LoginResponse{
		Token:     identity.Token,
		ExpiresAt: identity.ExpiresAt,
		Email:     identity.Email,
		State:     s.ctrl.Gate().State().String(),
	}), nil
}

// Logout ends the session.
func (s *AuthService) Logout(ctx context.Context, req *connect.Request[LogoutRequest]) (*connect.Response[LogoutResponse], error) {
	s.logger.Info("Logout request", "user_id", middleware.GetUserID(ctx))
	if err := s.ctrl.SignOut(ctx); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&LogoutResponse{}), nil
}

// Session reports the gate state. Email and expiry are only returned to the
// holder of the live session token.
func (s *AuthService) Session(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[SessionResponse], error) {
	gate := s.ctrl.Gate()
	resp := &SessionResponse{State: gate.State().String()}
	if identity := gate.Identity(); identity != nil && middleware.GetUserID(ctx) == identity.UID {
		resp.Email = identity.Email
		expires := identity.ExpiresAt
		resp.ExpiresAt = &expires
	}
	return connect.NewResponse(resp), nil
}
