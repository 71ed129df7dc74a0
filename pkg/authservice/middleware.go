package authservice

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/taskdeck-io/taskdeck"
)

type Middleware func(Service) Service

func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next Service) Service {
		return loggingMiddleware{logger, next}
	}
}

type loggingMiddleware struct {
	logger log.Logger
	next   Service
}

func (mw loggingMiddleware) Register(ctx context.Context, email, password string) (u taskdeck.User, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Register",
			"email", email,
			"err", err,
		)
	}()
	return mw.next.Register(ctx, email, password)
}

func (mw loggingMiddleware) Login(ctx context.Context, email, password string) (t *Tokens, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Login",
			"email", email,
			"err", err,
		)
	}()
	return mw.next.Login(ctx, email, password)
}

func (mw loggingMiddleware) Refresh(ctx context.Context, refreshToken string) (t *Tokens, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Refresh",
			"err", err,
		)
	}()
	return mw.next.Refresh(ctx, refreshToken)
}

func (mw loggingMiddleware) Logout(ctx context.Context, a taskdeck.Auth) (result bool, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Logout",
			"access_uuid", a.AccessUUID,
			"user_id", a.UserID,
			"result", result,
			"err", err,
		)
	}()
	return mw.next.Logout(ctx, a)
}

func (mw loggingMiddleware) Identity(ctx context.Context, a taskdeck.Auth) (u taskdeck.User, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Identity",
			"access_uuid", a.AccessUUID,
			"user_id", a.UserID,
			"err", err,
		)
	}()
	return mw.next.Identity(ctx, a)
}

func (mw loggingMiddleware) ForgotPassword(ctx context.Context, email string) (msg string, err error) {
	defer func() {
		mw.logger.Log(
			"method", "ForgotPassword",
			"email", email,
			"err", err,
		)
	}()
	return mw.next.ForgotPassword(ctx, email)
}

func (mw loggingMiddleware) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer func() {
		mw.logger.Log(
			"method", "ResetPassword",
			"err", err,
		)
	}()
	return mw.next.ResetPassword(ctx, token, newPassword)
}
