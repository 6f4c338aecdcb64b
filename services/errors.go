package services

import "errors"

// Error kinds surfaced to the route layer. Handlers translate them to HTTP
// statuses; scheduled sweeps swallow and count them instead.
var (
	// ErrValidation marks bad caller input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrConsentInactive marks a revoked or expired consent.
	ErrConsentInactive = errors.New("consent is not active")

	// ErrConsentNotAuthorized marks a consent the provider has not reported
	// as authorised yet.
	ErrConsentNotAuthorized = errors.New("consent not authorized")

	// ErrMissingRefreshCredential is an invariant violation: a token response
	// omitted the refresh credential and there is no previous token to fall
	// back to.
	ErrMissingRefreshCredential = errors.New("token response missing refresh token and no previous token to reuse")
)
