package authservice

import (
	"fmt"

	"github.com/go-kit/kit/log"
	"github.com/taskdeck-io/taskdeck"
)

// Mailer delivers a password-reset link to a user.
type Mailer interface {
	SendPasswordReset(email, token string) error
}

// NewLogMailer returns a Mailer that writes the reset link to the log
// instead of sending mail. Used outside production.
func NewLogMailer(logger log.Logger, baseURL string) Mailer {
	return &logMailer{logger: logger, baseURL: baseURL}
}

type logMailer struct {
	logger  log.Logger
	baseURL string
}

func (m *logMailer) SendPasswordReset(email, token string) error {
	if taskdeck.AppEnv == "production" {
		return fmt.Errorf("log mailer is not usable in production")
	}
	return m.logger.Log(
		"mail", "password_reset",
		"to", email,
		"link", fmt.Sprintf("%s/reset-password?token=%s", m.baseURL, token),
	)
}
