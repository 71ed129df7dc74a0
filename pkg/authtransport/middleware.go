package authtransport

import (
	"context"

	stdjwt "github.com/dgrijalva/jwt-go"
	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/endpoint"
	"github.com/taskdeck-io/taskdeck"
	"github.com/taskdeck-io/taskdeck/inmem"
)

// NewAuthenticater rejects access tokens whose UUID is no longer present in
// the token registry, which is how logout revokes otherwise-valid JWTs. It
// must run after the JWT parser has placed the claims in the context.
func NewAuthenticater(c inmem.Client) endpoint.Middleware {
	return func(next endpoint.Endpoint) endpoint.Endpoint {
		return func(ctx context.Context, request interface{}) (interface{}, error) {
			claims, ok := ctx.Value(kitjwt.JWTClaimsContextKey).(stdjwt.MapClaims)
			if !ok {
				return nil, taskdeck.ErrClaimsMissing
			}

			uuid, ok := claims["uuid"].(string)
			if !ok {
				return nil, taskdeck.ErrClaimsInvalid
			}

			if err := c.Get(uuid); err != nil {
				return nil, err
			}

			return next(ctx, request)
		}
	}
}
