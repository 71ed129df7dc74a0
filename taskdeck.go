package taskdeck

import (
	"errors"
	"os"
)

var (
	AppEnv         = getEnv("APP_ENV", "")
	AccessSecret   = getEnv("ACCESS_SECRET", "access-secret")
	RefreshSecret  = getEnv("REFRESH_SECRET", "refresh-secret")
	CookieHashKey  = getEnv("COOKIE_HASH_KEY", "very-secret")
	CookieBlockKey = getEnv("COOKIE_BLOCK_KEY", "a-lots-of-secret")
)

func getEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		value = fallback
	}
	return value
}

// Auth is the claims set carried by an access token. It identifies the
// credential (AccessUUID) and the resolved identity behind it.
type Auth struct {
	AccessUUID string
	UserID     uint64
	Role       Role
}

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotAuthorized   = errors.New("not authorized")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrClaimsMissing   = errors.New("JWT claims was not passed through the context")
	ErrClaimsInvalid   = errors.New("JWT claims was invalid")
)
