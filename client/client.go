// Package client is the programmatic surface of the task manager. A Client
// holds transport endpoint sets for both services, a Session tracks the
// caller's tokens and identity, and a Workflow layers the task lifecycle and
// role gates on top of an authenticated session.
package client

import (
	"github.com/go-kit/kit/log"

	"github.com/taskdeck-io/taskdeck/pkg/authendpoint"
	"github.com/taskdeck-io/taskdeck/pkg/authtransport"
	"github.com/taskdeck-io/taskdeck/pkg/taskendpoint"
	"github.com/taskdeck-io/taskdeck/pkg/tasktransport"
)

type Client struct {
	Auth  authendpoint.Set
	Tasks taskendpoint.Set
}

func New(instance string, logger log.Logger) (*Client, error) {
	auth, err := authtransport.NewHTTPClient(instance, logger)
	if err != nil {
		return nil, err
	}

	tasks, err := tasktransport.NewHTTPClient(instance, logger)
	if err != nil {
		return nil, err
	}

	return &Client{Auth: auth, Tasks: tasks}, nil
}
