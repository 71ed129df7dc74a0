package authtransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"

	stdjwt "github.com/dgrijalva/jwt-go"
	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/transport"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/securecookie"
	"github.com/taskdeck-io/taskdeck"
	"github.com/taskdeck-io/taskdeck/inmem"
	"github.com/taskdeck-io/taskdeck/pkg/authendpoint"
	"github.com/taskdeck-io/taskdeck/pkg/authservice"
)

const refreshCookieName = "refresh_token"

var cookieCodec = securecookie.New(
	[]byte(taskdeck.CookieHashKey),
	[]byte(taskdeck.CookieBlockKey),
)

func accessKeyFunc(token *stdjwt.Token) (interface{}, error) {
	return []byte(taskdeck.AccessSecret), nil
}

func NewHTTPHandler(endpoints authendpoint.Set, client inmem.Client, logger log.Logger) http.Handler {
	options := []httptransport.ServerOption{
		httptransport.ServerErrorEncoder(errorEncoder),
		httptransport.ServerErrorHandler(transport.NewLogErrorHandler(logger)),
	}

	m := http.NewServeMux()

	registerHandler := httptransport.NewServer(
		endpoints.RegisterEndpoint,
		decodeHTTPRegisterRequest,
		encodeHTTPRegisterResponse,
		options...,
	)

	loginHandler := httptransport.NewServer(
		endpoints.LoginEndpoint,
		decodeHTTPLoginRequest,
		encodeHTTPLoginResponse,
		options...,
	)

	refreshHandler := httptransport.NewServer(
		endpoints.RefreshEndpoint,
		decodeHTTPRefreshRequest,
		encodeHTTPLoginResponse,
		options...,
	)

	var logoutEndpoint endpoint.Endpoint
	{
		logoutEndpoint = endpoints.LogoutEndpoint
		logoutEndpoint = NewAuthenticater(client)(logoutEndpoint)
		logoutEndpoint = kitjwt.NewParser(
			accessKeyFunc,
			stdjwt.SigningMethodHS256,
			kitjwt.MapClaimsFactory,
		)(logoutEndpoint)
	}

	logoutHandler := httptransport.NewServer(
		logoutEndpoint,
		decodeHTTPLogoutRequest,
		encodeHTTPGenericResponse,
		append(options, httptransport.ServerBefore(kitjwt.HTTPToContext()))...,
	)

	var identityEndpoint endpoint.Endpoint
	{
		identityEndpoint = endpoints.IdentityEndpoint
		identityEndpoint = NewAuthenticater(client)(identityEndpoint)
		identityEndpoint = kitjwt.NewParser(
			accessKeyFunc,
			stdjwt.SigningMethodHS256,
			kitjwt.MapClaimsFactory,
		)(identityEndpoint)
	}

	identityHandler := httptransport.NewServer(
		identityEndpoint,
		decodeHTTPIdentityRequest,
		encodeHTTPGenericResponse,
		append(options, httptransport.ServerBefore(kitjwt.HTTPToContext()))...,
	)

	forgotPasswordHandler := httptransport.NewServer(
		endpoints.ForgotPasswordEndpoint,
		decodeHTTPForgotPasswordRequest,
		encodeHTTPGenericResponse,
		options...,
	)

	resetPasswordHandler := httptransport.NewServer(
		endpoints.ResetPasswordEndpoint,
		decodeHTTPResetPasswordRequest,
		encodeHTTPGenericResponse,
		options...,
	)

	m.Handle("/register", registerHandler)
	m.Handle("/login", loginHandler)
	m.Handle("/refresh", refreshHandler)
	m.Handle("/logout", logoutHandler)
	m.Handle("/users/me", identityHandler)
	m.Handle("/forgot-password", forgotPasswordHandler)
	m.Handle("/reset-password", resetPasswordHandler)

	return m
}

func NewHTTPClient(instance string, logger log.Logger) (authendpoint.Set, error) {
	// Quickly sanitize the instance string.
	if !strings.HasPrefix(instance, "http") {
		instance = "http://" + instance
	}
	u, err := url.Parse(instance)
	if err != nil {
		return authendpoint.Set{}, err
	}

	var options []httptransport.ClientOption

	var registerEndpoint endpoint.Endpoint
	{
		registerEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/register"),
			encodeHTTPGenericRequest,
			decodeHTTPRegisterResponse,
			options...,
		).Endpoint()
	}

	var loginEndpoint endpoint.Endpoint
	{
		loginEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/login"),
			encodeHTTPLoginRequest,
			decodeHTTPLoginResponse,
			options...,
		).Endpoint()
	}

	var refreshEndpoint endpoint.Endpoint
	{
		refreshEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/refresh"),
			encodeHTTPRefreshRequest,
			decodeHTTPRefreshResponse,
			options...,
		).Endpoint()
	}

	var logoutEndpoint endpoint.Endpoint
	{
		logoutEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/logout"),
			encodeHTTPGenericRequest,
			decodeHTTPLogoutResponse,
			append(options, httptransport.ClientBefore(kitjwt.ContextToHTTP()))...,
		).Endpoint()
	}

	var identityEndpoint endpoint.Endpoint
	{
		identityEndpoint = httptransport.NewClient(
			"GET",
			copyURL(u, "/users/me"),
			encodeHTTPGenericRequest,
			decodeHTTPIdentityResponse,
			append(options, httptransport.ClientBefore(kitjwt.ContextToHTTP()))...,
		).Endpoint()
	}

	var forgotPasswordEndpoint endpoint.Endpoint
	{
		forgotPasswordEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/forgot-password"),
			encodeHTTPGenericRequest,
			decodeHTTPForgotPasswordResponse,
			options...,
		).Endpoint()
	}

	var resetPasswordEndpoint endpoint.Endpoint
	{
		resetPasswordEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/reset-password"),
			encodeHTTPGenericRequest,
			decodeHTTPResetPasswordResponse,
			options...,
		).Endpoint()
	}

	return authendpoint.Set{
		RegisterEndpoint:       registerEndpoint,
		LoginEndpoint:          loginEndpoint,
		RefreshEndpoint:        refreshEndpoint,
		LogoutEndpoint:         logoutEndpoint,
		IdentityEndpoint:       identityEndpoint,
		ForgotPasswordEndpoint: forgotPasswordEndpoint,
		ResetPasswordEndpoint:  resetPasswordEndpoint,
	}, nil
}

func copyURL(base *url.URL, path string) *url.URL {
	next := *base
	next.Path = path
	return &next
}

func errorEncoder(_ context.Context, err error, w http.ResponseWriter) {
	w.WriteHeader(err2code(err))
	json.NewEncoder(w).Encode(errorWrapper{Error: err.Error()})
}

type errorWrapper struct {
	Error string `json:"error"`
}

func err2code(err error) int {
	switch err {
	case taskdeck.ErrInvalidArgument, taskdeck.ErrEmailTaken, taskdeck.ErrResetTokenInvalid:
		return http.StatusBadRequest
	case taskdeck.ErrInvalidCredentials, taskdeck.ErrUserNotFound, taskdeck.ErrClaimsMissing,
		taskdeck.ErrClaimsInvalid, inmem.ErrKeyNotFound,
		kitjwt.ErrTokenExpired, kitjwt.ErrTokenInvalid, kitjwt.ErrTokenMalformed,
		kitjwt.ErrTokenContextMissing, kitjwt.ErrUnexpectedSigningMethod:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// code2err maps a client-observed HTTP status back onto the sentinel
// errors the Session and Workflow act upon.
func code2err(r *http.Response) error {
	var w errorWrapper
	json.NewDecoder(r.Body).Decode(&w)

	switch r.StatusCode {
	case http.StatusBadRequest:
		if w.Error == taskdeck.ErrEmailTaken.Error() {
			return taskdeck.ErrEmailTaken
		}
		if w.Error == taskdeck.ErrResetTokenInvalid.Error() {
			return taskdeck.ErrResetTokenInvalid
		}
		return taskdeck.ErrInvalidArgument
	case http.StatusUnauthorized:
		return taskdeck.ErrUnauthorized
	case http.StatusForbidden:
		return taskdeck.ErrNotAuthorized
	case http.StatusNotFound:
		return taskdeck.ErrUserNotFound
	}
	return errors.New(r.Status)
}

func decodeHTTPRegisterRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req authendpoint.RegisterRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

func encodeHTTPRegisterResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	resp := response.(authendpoint.RegisterResponse)
	if resp.Failed() != nil {
		errorEncoder(ctx, resp.Failed(), w)
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	return json.NewEncoder(w).Encode(resp.User)
}

func decodeHTTPRegisterResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusCreated {
		return nil, code2err(r)
	}
	var user taskdeck.User
	err := json.NewDecoder(r.Body).Decode(&user)
	return authendpoint.RegisterResponse{User: user}, err
}

// The login form is OAuth2 password-grant shaped: form-encoded username and
// password fields, with the email carried in username.
func decodeHTTPLoginRequest(_ context.Context, r *http.Request) (interface{}, error) {
	if err := r.ParseForm(); err != nil {
		return nil, taskdeck.ErrInvalidArgument
	}
	return authendpoint.LoginRequest{
		Email:    r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}, nil
}

func encodeHTTPLoginRequest(_ context.Context, r *http.Request, request interface{}) error {
	var form url.Values
	switch req := request.(type) {
	case authendpoint.LoginRequest:
		form = url.Values{"username": {req.Email}, "password": {req.Password}}
	default:
		return taskdeck.ErrInvalidArgument
	}
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Body = ioutil.NopCloser(strings.NewReader(form.Encode()))
	return nil
}

// encodeHTTPLoginResponse writes the token pair to the body and additionally
// delivers the refresh token in an encrypted cookie for browser clients.
func encodeHTTPLoginResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if f, ok := response.(endpoint.Failer); ok && f.Failed() != nil {
		errorEncoder(ctx, f.Failed(), w)
		return nil
	}

	var refresh string
	switch resp := response.(type) {
	case authendpoint.LoginResponse:
		refresh = resp.Refresh
	case authendpoint.RefreshResponse:
		refresh = resp.Refresh
	}

	if encoded, err := cookieCodec.Encode(refreshCookieName, refresh); err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     refreshCookieName,
			Value:    encoded,
			Path:     "/refresh",
			HttpOnly: true,
			Secure:   taskdeck.AppEnv == "production",
			MaxAge:   int(authservice.RefreshTokenExpiry().Seconds()),
		})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(response)
}

func decodeHTTPLoginResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return nil, code2err(r)
	}
	var resp authendpoint.LoginResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

// decodeHTTPRefreshRequest accepts the refresh token either from the
// encrypted cookie set at login (browsers) or from a JSON body (API
// clients).
func decodeHTTPRefreshRequest(_ context.Context, r *http.Request) (interface{}, error) {
	if c, err := r.Cookie(refreshCookieName); err == nil {
		var refresh string
		if err := cookieCodec.Decode(refreshCookieName, c.Value, &refresh); err != nil {
			return nil, taskdeck.ErrInvalidCredentials
		}
		return authendpoint.RefreshRequest{RefreshToken: refresh}, nil
	}

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		return nil, taskdeck.ErrInvalidCredentials
	}
	return authendpoint.RefreshRequest{RefreshToken: body.RefreshToken}, nil
}

func encodeHTTPRefreshRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(authendpoint.RefreshRequest)
	body := struct {
		RefreshToken string `json:"refresh_token"`
	}{RefreshToken: req.RefreshToken}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	r.Body = ioutil.NopCloser(&buf)
	return nil
}

func decodeHTTPRefreshResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return nil, code2err(r)
	}
	var resp authendpoint.RefreshResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPLogoutRequest(_ context.Context, r *http.Request) (interface{}, error) {
	return authendpoint.LogoutRequest{}, nil
}

func decodeHTTPLogoutResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return nil, code2err(r)
	}
	var resp authendpoint.LogoutResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPIdentityRequest(_ context.Context, r *http.Request) (interface{}, error) {
	return authendpoint.IdentityRequest{}, nil
}

func decodeHTTPIdentityResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return nil, code2err(r)
	}
	var user taskdeck.User
	err := json.NewDecoder(r.Body).Decode(&user)
	return authendpoint.IdentityResponse{User: user}, err
}

func decodeHTTPForgotPasswordRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req authendpoint.ForgotPasswordRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

func decodeHTTPForgotPasswordResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return nil, code2err(r)
	}
	var resp authendpoint.ForgotPasswordResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPResetPasswordRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req authendpoint.ResetPasswordRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

func decodeHTTPResetPasswordResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return nil, code2err(r)
	}
	var resp authendpoint.ResetPasswordResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

// encodeHTTPGenericRequest is a transport/http.EncodeRequestFunc that
// JSON-encodes any request to the request body. Primarily useful in a client.
func encodeHTTPGenericRequest(_ context.Context, r *http.Request, request interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(request); err != nil {
		return err
	}
	r.Body = ioutil.NopCloser(&buf)
	return nil
}

// encodeHTTPGenericResponse is a transport/http.EncodeResponseFunc that encodes
// the response as JSON to the response writer. Primarily useful in a server.
func encodeHTTPGenericResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if f, ok := response.(endpoint.Failer); ok && f.Failed() != nil {
		errorEncoder(ctx, f.Failed(), w)
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(response)
}
