// Shared handler wiring.
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. Service dependencies are consumed
// through narrow interfaces so the transport layer stays decoupled from
// business logic and easy to fake in tests.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carmoa/go-carmarket-backend/internal/domain"
	"github.com/carmoa/go-carmarket-backend/internal/http/middleware"
	"github.com/carmoa/go-carmarket-backend/internal/registry"
	"github.com/carmoa/go-carmarket-backend/internal/repo"
	"github.com/carmoa/go-carmarket-backend/internal/services"
	"github.com/carmoa/go-carmarket-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// AccountService defines account lifecycle operations consumed by HTTP handlers.
type AccountService interface {
	// StartPhoneVerification issues and dispatches an SMS code.
	StartPhoneVerification(ctx context.Context, phone string) error
	// ConfirmPhoneVerification redeems a code for the phone number.
	ConfirmPhoneVerification(ctx context.Context, phone, code string) error
	// Register creates an account and returns it with an access token.
	Register(ctx context.Context, in services.RegisterInput) (*domain.User, string, error)
	// Login verifies credentials and returns the account with an access token.
	Login(ctx context.Context, email, password string) (*domain.User, string, error)
	// Me returns the caller's account.
	Me(ctx context.Context, id string) (*domain.User, error)
	// UpdatePushToken stores the caller's notification token.
	UpdatePushToken(ctx context.Context, id, token string) error
	// DeleteAccount removes the caller's account and listings.
	DeleteAccount(ctx context.Context, id string) error
}

// VehicleService defines listing operations consumed by HTTP handlers.
type VehicleService interface {
	// Create persists a manually entered listing.
	Create(ctx context.Context, seller services.Seller, in services.CreateVehicleInput) (*domain.Vehicle, error)
	// Lookup previews registry details for a plate/owner pair.
	Lookup(ctx context.Context, plate, ownerName string) (*registry.Detail, error)
	// CreateFromRegistry persists a registry-assisted listing.
	CreateFromRegistry(ctx context.Context, seller services.Seller, in services.CreateFromRegistryInput) (*domain.Vehicle, error)
	// Get fetches one listing.
	Get(ctx context.Context, id string) (*domain.Vehicle, error)
	// ListPage returns a page of listings and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Vehicle, int64, error)
	// ListBySeller returns the caller's own listings.
	ListBySeller(ctx context.Context, sellerID string) ([]domain.Vehicle, error)
	// Delete removes a listing (owner or admin).
	Delete(ctx context.Context, id, callerID, role string) error
}

// ConsultationService defines consultation request operations consumed by
// HTTP handlers.
type ConsultationService interface {
	// Create validates and persists a new request.
	Create(ctx context.Context, in services.CreateConsultationInput) (*domain.ConsultationRequest, error)
	// Get fetches one request (ownership-checked).
	Get(ctx context.Context, id, userID, role string) (*domain.ConsultationRequest, error)
	// Approve transitions a pending request to approved.
	Approve(ctx context.Context, id string) (*domain.ConsultationRequest, error)
	// Reject transitions a pending request to rejected.
	Reject(ctx context.Context, id string) (*domain.ConsultationRequest, error)
	// Reschedule moves a pending request to a new slot.
	Reschedule(ctx context.Context, id, date, clock string) (*domain.ConsultationRequest, error)
	// ListGrouped returns the review board partitioned by status.
	ListGrouped(ctx context.Context) (*services.ReviewBoard, error)
	// ListForUser returns the requester's history grouped by kind.
	ListForUser(ctx context.Context, userID string) (*services.UserRequests, error)
	// Calendar returns one day's schedule plus per-date counts.
	Calendar(ctx context.Context, date string) ([]domain.ConsultationRequest, []repo.DateStatusCount, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for accounts, vehicles, consultation
// requests, and uploads. It depends on abstract service interfaces to keep
// transport concerns separate from business logic.
type Handlers struct {
	accountSvc AccountService
	vehicleSvc VehicleService
	consultSvc ConsultationService

	// UploadDir is where vehicle images are stored; UploadBaseURL prefixes
	// the public URL returned to clients.
	UploadDir     string
	UploadBaseURL string

	// IdemTTL is how long a stored Idempotency-Key replay stays valid.
	IdemTTL time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(accountSvc AccountService, vehicleSvc VehicleService, consultSvc ConsultationService) *Handlers {
	return &Handlers{
		accountSvc:    accountSvc,
		vehicleSvc:    vehicleSvc,
		consultSvc:    consultSvc,
		UploadDir:     "./uploads",
		UploadBaseURL: "/uploads",
		IdemTTL:       24 * time.Hour,
	}
}

// callerID extracts the authenticated user id stashed by the auth middleware.
func callerID(c *gin.Context) string {
	uid, _ := middleware.UserID(c)
	return uid
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// failService maps service-level sentinel errors to HTTP responses. Unknown
// errors become 500 internal_error.
func failService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrMissingFields),
		errors.Is(err, services.ErrInvalidSlot),
		errors.Is(err, services.ErrInvalidKind):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidPlate):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "plate number format invalid")
	case errors.Is(err, services.ErrCodeMismatch),
		errors.Is(err, services.ErrCodeExpired):
		fail(c, http.StatusBadRequest, ErrCodeVerificationFailed, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, err.Error())
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrPhoneNotVerified):
		fail(c, http.StatusForbidden, ErrCodePhoneNotVerified, err.Error())
	case errors.Is(err, services.ErrVehicleNotFound),
		errors.Is(err, services.ErrRequestNotFound),
		errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrDuplicateRequest):
		fail(c, http.StatusConflict, ErrCodeDuplicateRequest, err.Error())
	case errors.Is(err, services.ErrSlotTaken):
		fail(c, http.StatusConflict, ErrCodeSlotTaken, err.Error())
	case errors.Is(err, services.ErrAlreadyResolved):
		fail(c, http.StatusConflict, ErrCodeAlreadyResolved, err.Error())
	case errors.Is(err, services.ErrEmailTaken):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrRegistryUnavailable):
		fail(c, http.StatusBadGateway, ErrCodeLookupFailed, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
