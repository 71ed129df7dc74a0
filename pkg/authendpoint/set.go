package authendpoint

import (
	"context"
	"fmt"
	"strconv"

	stdjwt "github.com/dgrijalva/jwt-go"
	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/taskdeck-io/taskdeck"
	"github.com/taskdeck-io/taskdeck/pkg/authservice"
)

type Set struct {
	RegisterEndpoint       endpoint.Endpoint
	LoginEndpoint          endpoint.Endpoint
	RefreshEndpoint        endpoint.Endpoint
	LogoutEndpoint         endpoint.Endpoint
	IdentityEndpoint       endpoint.Endpoint
	ForgotPasswordEndpoint endpoint.Endpoint
	ResetPasswordEndpoint  endpoint.Endpoint
}

func New(svc authservice.Service, logger log.Logger) Set {
	var registerEndpoint endpoint.Endpoint
	{
		registerEndpoint = MakeRegisterEndpoint(svc)
		registerEndpoint = LoggingMiddleware(log.With(logger, "method", "Register"))(registerEndpoint)
	}
	var loginEndpoint endpoint.Endpoint
	{
		loginEndpoint = MakeLoginEndpoint(svc)
		loginEndpoint = LoggingMiddleware(log.With(logger, "method", "Login"))(loginEndpoint)
	}
	var refreshEndpoint endpoint.Endpoint
	{
		refreshEndpoint = MakeRefreshEndpoint(svc)
		refreshEndpoint = LoggingMiddleware(log.With(logger, "method", "Refresh"))(refreshEndpoint)
	}
	var logoutEndpoint endpoint.Endpoint
	{
		logoutEndpoint = MakeLogoutEndpoint(svc)
		logoutEndpoint = LoggingMiddleware(log.With(logger, "method", "Logout"))(logoutEndpoint)
	}
	var identityEndpoint endpoint.Endpoint
	{
		identityEndpoint = MakeIdentityEndpoint(svc)
		identityEndpoint = LoggingMiddleware(log.With(logger, "method", "Identity"))(identityEndpoint)
	}
	var forgotPasswordEndpoint endpoint.Endpoint
	{
		forgotPasswordEndpoint = MakeForgotPasswordEndpoint(svc)
		forgotPasswordEndpoint = LoggingMiddleware(log.With(logger, "method", "ForgotPassword"))(forgotPasswordEndpoint)
	}
	var resetPasswordEndpoint endpoint.Endpoint
	{
		resetPasswordEndpoint = MakeResetPasswordEndpoint(svc)
		resetPasswordEndpoint = LoggingMiddleware(log.With(logger, "method", "ResetPassword"))(resetPasswordEndpoint)
	}

	return Set{
		RegisterEndpoint:       registerEndpoint,
		LoginEndpoint:          loginEndpoint,
		RefreshEndpoint:        refreshEndpoint,
		LogoutEndpoint:         logoutEndpoint,
		IdentityEndpoint:       identityEndpoint,
		ForgotPasswordEndpoint: forgotPasswordEndpoint,
		ResetPasswordEndpoint:  resetPasswordEndpoint,
	}
}

func (s Set) Register(ctx context.Context, email, password string) (taskdeck.User, error) {
	resp, err := s.RegisterEndpoint(ctx, RegisterRequest{Email: email, Password: password})
	if err != nil {
		return taskdeck.User{}, err
	}
	response := resp.(RegisterResponse)
	return response.User, response.Err
}

func (s Set) Login(ctx context.Context, email, password string) (*authservice.Tokens, error) {
	resp, err := s.LoginEndpoint(ctx, LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	response := resp.(LoginResponse)
	if response.Err != nil {
		return nil, response.Err
	}
	return &authservice.Tokens{Access: response.AccessToken, Refresh: response.Refresh}, nil
}

func (s Set) Refresh(ctx context.Context, refreshToken string) (*authservice.Tokens, error) {
	resp, err := s.RefreshEndpoint(ctx, RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}
	response := resp.(RefreshResponse)
	if response.Err != nil {
		return nil, response.Err
	}
	return &authservice.Tokens{Access: response.AccessToken, Refresh: response.Refresh}, nil
}

func (s Set) Logout(ctx context.Context, a taskdeck.Auth) (bool, error) {
	resp, err := s.LogoutEndpoint(ctx, LogoutRequest{})
	if err != nil {
		return false, err
	}
	response := resp.(LogoutResponse)
	return response.Result, response.Err
}

func (s Set) Identity(ctx context.Context, a taskdeck.Auth) (taskdeck.User, error) {
	resp, err := s.IdentityEndpoint(ctx, IdentityRequest{})
	if err != nil {
		return taskdeck.User{}, err
	}
	response := resp.(IdentityResponse)
	return response.User, response.Err
}

func (s Set) ForgotPassword(ctx context.Context, email string) (string, error) {
	resp, err := s.ForgotPasswordEndpoint(ctx, ForgotPasswordRequest{Email: email})
	if err != nil {
		return "", err
	}
	response := resp.(ForgotPasswordResponse)
	return response.Message, response.Err
}

func (s Set) ResetPassword(ctx context.Context, token, newPassword string) error {
	resp, err := s.ResetPasswordEndpoint(ctx, ResetPasswordRequest{Token: token, NewPassword: newPassword})
	if err != nil {
		return err
	}
	response := resp.(ResetPasswordResponse)
	return response.Err
}

func MakeRegisterEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(RegisterRequest)
		u, err := s.Register(ctx, req.Email, req.Password)
		return RegisterResponse{User: u, Err: err}, nil
	}
}

func MakeLoginEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(LoginRequest)
		t, err := s.Login(ctx, req.Email, req.Password)
		if err != nil {
			return LoginResponse{Err: err}, nil
		}
		return LoginResponse{AccessToken: t.Access, TokenType: "bearer", Refresh: t.Refresh}, nil
	}
}

func MakeRefreshEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(RefreshRequest)
		t, err := s.Refresh(ctx, req.RefreshToken)
		if err != nil {
			return RefreshResponse{Err: err}, nil
		}
		return RefreshResponse{AccessToken: t.Access, TokenType: "bearer", Refresh: t.Refresh}, nil
	}
}

func MakeLogoutEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := claims(ctx)
		if err != nil {
			return LogoutResponse{Err: err}, nil
		}

		_ = request.(LogoutRequest)
		r, err := s.Logout(ctx, auth)
		return LogoutResponse{Result: r, Err: err}, nil
	}
}

func MakeIdentityEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := claims(ctx)
		if err != nil {
			return IdentityResponse{Err: err}, nil
		}

		_ = request.(IdentityRequest)
		u, err := s.Identity(ctx, auth)
		return IdentityResponse{User: u, Err: err}, nil
	}
}

func MakeForgotPasswordEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(ForgotPasswordRequest)
		msg, err := s.ForgotPassword(ctx, req.Email)
		return ForgotPasswordResponse{Message: msg, Err: err}, nil
	}
}

func MakeResetPasswordEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(ResetPasswordRequest)
		err = s.ResetPassword(ctx, req.Token, req.NewPassword)
		return ResetPasswordResponse{Message: "Password has been reset.", Err: err}, nil
	}
}

func claims(ctx context.Context) (taskdeck.Auth, error) {
	claims, ok := ctx.Value(kitjwt.JWTClaimsContextKey).(stdjwt.MapClaims)
	if !ok {
		return taskdeck.Auth{}, taskdeck.ErrClaimsMissing
	}

	uuid, ok := claims["uuid"].(string)
	if !ok {
		return taskdeck.Auth{}, taskdeck.ErrClaimsMissing
	}

	userID, err := strconv.ParseUint(fmt.Sprintf("%.f", claims["user_id"]), 10, 64)
	if err != nil {
		return taskdeck.Auth{}, taskdeck.ErrClaimsMissing
	}

	role, ok := claims["role"].(string)
	if !ok {
		return taskdeck.Auth{}, taskdeck.ErrClaimsMissing
	}

	return taskdeck.Auth{AccessUUID: uuid, UserID: userID, Role: taskdeck.Role(role)}, nil
}

var (
	_ endpoint.Failer = RegisterResponse{}
	_ endpoint.Failer = LoginResponse{}
	_ endpoint.Failer = RefreshResponse{}
	_ endpoint.Failer = LogoutResponse{}
	_ endpoint.Failer = IdentityResponse{}
	_ endpoint.Failer = ForgotPasswordResponse{}
	_ endpoint.Failer = ResetPasswordResponse{}
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	taskdeck.User
	Err error `json:"-"`
}

func (r RegisterResponse) Failed() error { return r.Err }

type LoginRequest struct {
	Email    string
	Password string
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Refresh     string `json:"refresh_token,omitempty"`
	Err         error  `json:"-"`
}

func (r LoginResponse) Failed() error { return r.Err }

type RefreshRequest struct {
	RefreshToken string `json:"-"`
}

type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Refresh     string `json:"refresh_token,omitempty"`
	Err         error  `json:"-"`
}

func (r RefreshResponse) Failed() error { return r.Err }

type LogoutRequest struct{}

type LogoutResponse struct {
	Result bool  `json:"result"`
	Err    error `json:"-"`
}

func (r LogoutResponse) Failed() error { return r.Err }

type IdentityRequest struct{}

type IdentityResponse struct {
	taskdeck.User
	Err error `json:"-"`
}

func (r IdentityResponse) Failed() error { return r.Err }

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ForgotPasswordResponse struct {
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (r ForgotPasswordResponse) Failed() error { return r.Err }

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type ResetPasswordResponse struct {
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (r ResetPasswordResponse) Failed() error { return r.Err }
