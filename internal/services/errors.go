// Package services defines the business logic for accounts, vehicle listings,
// and consultation requests. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

// Consultation-related errors.
var (
	// ErrVehicleNotFound indicates that the vehicle referenced by a request
	// does not exist (or has been removed).
	ErrVehicleNotFound = errors.New("vehicle not found")

	// ErrRequestNotFound indicates that the consultation request does not
	// exist or is not accessible to the current user.
	ErrRequestNotFound = errors.New("consultation request not found")

	// ErrDuplicateRequest is returned when the requester already holds a
	// pending request for the same vehicle.
	ErrDuplicateRequest = errors.New("pending request already exists for this vehicle")

	// ErrSlotTaken is returned when the requested time slot on the vehicle is
	// already occupied by another request.
	ErrSlotTaken = errors.New("time slot already taken")

	// ErrAlreadyResolved is returned when an approve/reject/reschedule is
	// attempted on a request that has left the pending state.
	ErrAlreadyResolved = errors.New("request already resolved")

	// ErrInvalidSlot is returned when a preferred date/time cannot be parsed.
	ErrInvalidSlot = errors.New("invalid preferred date or time")

	// ErrInvalidKind is returned when a request kind is outside the allowed
	// set (buy or sell).
	ErrInvalidKind = errors.New("kind must be buy or sell")

	// ErrMissingFields is returned when a create payload omits required
	// fields.
	ErrMissingFields = errors.New("missing required fields")
)

// Account-related errors.
var (
	// ErrUserNotFound indicates that the account does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken is returned when registering with an email that already
	// belongs to another account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned for a failed login. It deliberately
	// does not distinguish unknown email from wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrPhoneNotVerified is returned when registration is attempted without
	// a recently confirmed phone verification.
	ErrPhoneNotVerified = errors.New("phone not verified")

	// ErrCodeMismatch is returned when a submitted verification code does not
	// match the latest issued code.
	ErrCodeMismatch = errors.New("verification code mismatch")

	// ErrCodeExpired is returned when no unexpired verification code exists
	// for the phone number.
	ErrCodeExpired = errors.New("verification code expired")
)

// Listing-related errors.
var (
	// ErrForbidden is returned when a caller attempts to act on a resource
	// they do not own and lacks the admin role.
	ErrForbidden = errors.New("not allowed")

	// ErrInvalidPlate is returned when a plate number does not match the
	// expected format for a registry lookup.
	ErrInvalidPlate = errors.New("invalid plate number")

	// ErrRegistryUnavailable is returned when the vehicle registry lookup
	// fails or reports a non-success envelope.
	ErrRegistryUnavailable = errors.New("vehicle registry lookup failed")
)
