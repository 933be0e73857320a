package remote

import "errors"

// Credential errors. All of them satisfy IsCredentialError.
var (
	// ErrTokenExpired means the refresh token is dead; a new authorization is required.
	ErrTokenExpired = errors.New("remote: refresh token expired, re-authorization required")

	// ErrRefreshFailed means the refresh exchange failed; the previous record is intact.
	ErrRefreshFailed = errors.New("remote: token refresh failed")

	// ErrStoreFailure means the token record could not be persisted or read.
	ErrStoreFailure = errors.New("remote: token store failure")

	// ErrTokenNotFound is returned by stores that hold no record.
	ErrTokenNotFound = errors.New("remote: no token record stored")

	// ErrUnauthorized means the relay rejected the access token.
	ErrUnauthorized = errors.New("remote: access token rejected")

	// ErrInvalidRecord means a record lacks tokens or client credentials.
	ErrInvalidRecord = errors.New("remote: invalid token record")
)

var credentialErrors = []error{
	ErrTokenExpired,
	ErrRefreshFailed,
	ErrStoreFailure,
	ErrTokenNotFound,
	ErrUnauthorized,
	ErrInvalidRecord,
}

// IsCredentialError reports whether err belongs to the credential category, so
// callers can tell expired credentials apart from a device rejecting a command.
func IsCredentialError(err error) bool {
	for _, target := range credentialErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
