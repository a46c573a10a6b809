// Package services – AccountService
//
// This file implements the AccountService, which manages the account
// lifecycle: SMS phone verification (issue + confirm), registration gated on
// a recent confirmed verification, login with JWT issuance, push-token
// updates, and self-service account deletion (which also removes the
// account's listings while leaving consultation requests in place as
// historical records).
package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/carmoa/go-carmarket-backend/internal/domain"
)

// AccountRepo defines the repository contract required by AccountService.
type AccountRepo interface {
	// CreateUser inserts a new account row.
	CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error)

	// GetUser fetches an account by ID.
	GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)

	// GetUserByEmail fetches an account by email.
	GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error)

	// UpdatePushToken stores the notification delivery token.
	UpdatePushToken(ctx context.Context, db *gorm.DB, id, token string) error

	// DeleteUser soft-deletes an account row.
	DeleteUser(ctx context.Context, db *gorm.DB, id string) error

	// CreateVerificationCode issues a fresh code for a phone number.
	CreateVerificationCode(ctx context.Context, db *gorm.DB, phone, code string, ttl time.Duration) (*domain.VerificationCode, error)

	// LatestVerificationCode returns the newest unexpired code for a phone.
	LatestVerificationCode(ctx context.Context, db *gorm.DB, phone string, now time.Time) (*domain.VerificationCode, error)

	// ConfirmVerificationCode marks a code record as confirmed.
	ConfirmVerificationCode(ctx context.Context, db *gorm.DB, id string, now time.Time) error

	// HasConfirmedVerification reports a recent confirmed verification.
	HasConfirmedVerification(ctx context.Context, db *gorm.DB, phone string, window time.Duration, now time.Time) (bool, error)
}

// VehicleRemover is the subset of the vehicle repository the account service
// needs for self-service deletion.
type VehicleRemover interface {
	DeleteVehiclesBySeller(ctx context.Context, db *gorm.DB, sellerID string) (int64, error)
}

// CodeSender dispatches a verification code to a phone number. Dispatch is
// best-effort; the code stays valid even when delivery fails.
type CodeSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// AccountService provides registration, login, and profile operations.
type AccountService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the account repository used by this service.
	Repo AccountRepo
	// Vehicles removes the account's listings on deletion.
	Vehicles VehicleRemover
	// SMS dispatches verification codes. May be nil (codes only in DB).
	SMS CodeSender

	// JWTSecret signs access tokens (HS256).
	JWTSecret []byte
	// TokenTTL is the access-token lifetime.
	TokenTTL time.Duration
	// CodeTTL is the verification-code lifetime.
	CodeTTL time.Duration
	// VerifyWindow is how recently a confirmation must have happened for
	// registration to proceed.
	VerifyWindow time.Duration
}

// NewAccountService constructs an AccountService with default lifetimes:
// 72h tokens, 3m codes, 10m verification window.
func NewAccountService(db *gorm.DB, r AccountRepo, v VehicleRemover, sms CodeSender, secret string) *AccountService {
	return &AccountService{
		DB:           db,
		Repo:         r,
		Vehicles:     v,
		SMS:          sms,
		JWTSecret:    []byte(secret),
		TokenTTL:     72 * time.Hour,
		CodeTTL:      3 * time.Minute,
		VerifyWindow: 10 * time.Minute,
	}
}

// phoneRE matches Korean mobile numbers with optional dashes.
var phoneRE = regexp.MustCompile(`^01[016789]-?\d{3,4}-?\d{4}$`)

// normalizePhone strips dashes and whitespace.
func normalizePhone(phone string) string {
	return strings.ReplaceAll(strings.TrimSpace(phone), "-", "")
}

// StartPhoneVerification issues a 6-digit code for phone and dispatches it.
// SMS failures are logged but do not fail the call; the code remains
// redeemable for its full lifetime.
func (s *AccountService) StartPhoneVerification(ctx context.Context, phone string) error {
	if !phoneRE.MatchString(strings.TrimSpace(phone)) {
		return ErrMissingFields
	}
	phone = normalizePhone(phone)

	code, err := randomCode(6)
	if err != nil {
		return err
	}
	if _, err := s.Repo.CreateVerificationCode(ctx, s.DB, phone, code, s.CodeTTL); err != nil {
		return err
	}
	if s.SMS != nil {
		if err := s.SMS.SendCode(ctx, phone, code); err != nil {
			log.Warn().Err(err).Str("phone", phone).Msg("verification sms dispatch failed")
		}
	}
	return nil
}

// ConfirmPhoneVerification checks code against the latest unexpired code for
// phone and marks it confirmed. The confirmation stays valid for VerifyWindow.
func (s *AccountService) ConfirmPhoneVerification(ctx context.Context, phone, code string) error {
	phone = normalizePhone(phone)
	now := time.Now().UTC()

	vc, err := s.Repo.LatestVerificationCode(ctx, s.DB, phone, now)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCodeExpired
		}
		return err
	}
	if vc.Code != strings.TrimSpace(code) {
		return ErrCodeMismatch
	}
	return s.Repo.ConfirmVerificationCode(ctx, s.DB, vc.ID, now)
}

// RegisterInput carries the registration payload.
type RegisterInput struct {
	Name     string
	Phone    string
	Email    string
	Password string
}

// Register creates a new account. The phone must hold a recent confirmed
// verification; the email must be unused. Returns the account plus a fresh
// access token.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*domain.User, string, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = normalizePhone(in.Phone)
	if in.Name == "" || in.Email == "" || in.Phone == "" || len(in.Password) < 8 {
		return nil, "", ErrMissingFields
	}

	now := time.Now().UTC()
	ok, err := s.Repo.HasConfirmedVerification(ctx, s.DB, in.Phone, s.VerifyWindow, now)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", ErrPhoneNotVerified
	}

	if _, err := s.Repo.GetUserByEmail(ctx, s.DB, in.Email); err == nil {
		return nil, "", ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", err
	}

	salt, err := GenerateSaltHex()
	if err != nil {
		return nil, "", err
	}
	hash, err := HashPassword(in.Password, salt)
	if err != nil {
		return nil, "", err
	}

	u, err := s.Repo.CreateUser(ctx, s.DB, &domain.User{
		Name:            in.Name,
		Phone:           in.Phone,
		Email:           in.Email,
		PasswordSalt:    salt,
		PasswordHash:    hash,
		PhoneVerifiedAt: &now,
	})
	if err != nil {
		// The unique index closes the check-then-insert race.
		if isUniqueEmail(err) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", err
	}

	token, err := s.issueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Login verifies credentials and returns the account with a fresh access
// token. Unknown email and wrong password are indistinguishable.
func (s *AccountService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.Repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if !VerifyPassword(password, u.PasswordSalt, u.PasswordHash) {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.issueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Me returns the caller's own account.
func (s *AccountService) Me(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.Repo.GetUser(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// UpdatePushToken stores (or clears) the caller's notification token.
func (s *AccountService) UpdatePushToken(ctx context.Context, id, token string) error {
	err := s.Repo.UpdatePushToken(ctx, s.DB, id, strings.TrimSpace(token))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	return err
}

// DeleteAccount removes the account and all of its listings in one
// transaction. Consultation requests the account filed are kept as
// historical records.
func (s *AccountService) DeleteAccount(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		removed, err := s.Vehicles.DeleteVehiclesBySeller(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.Repo.DeleteUser(ctx, tx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		log.Info().Str("user_id", id).Int64("vehicles_removed", removed).Msg("account deleted")
		return nil
	})
}

// issueToken mints an HS256 access token with the account id as subject and
// the role as a custom claim.
func (s *AccountService) issueToken(u *domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  u.ID,
		"role": u.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(s.TokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.JWTSecret)
}

// randomCode returns n random decimal digits.
func randomCode(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%d", d.Int64())
	}
	return b.String(), nil
}

// isUniqueEmail detects the users email unique-index violation.
func isUniqueEmail(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique") && strings.Contains(low, "email")
}
