// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, unauthorized, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., slot_taken, duplicate_request) are reserved for
//     business logic errors that cannot be conveyed by status alone.
//   - All error responses must include both an HTTP status and one of these codes.
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeDuplicateRequest   = "duplicate_request"
	ErrCodeSlotTaken          = "slot_taken"
	ErrCodeAlreadyResolved    = "already_resolved"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodePhoneNotVerified   = "phone_not_verified"
	ErrCodeVerificationFailed = "verification_failed"
	ErrCodeLookupFailed       = "lookup_failed"
	ErrCodeUploadFailed       = "upload_failed"
	ErrCodeCreateFailed       = "create_failed"
	ErrCodeListFailed         = "list_failed"
	ErrCodeMethodNotAllowed   = "method_not_allowed"
)
