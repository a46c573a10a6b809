// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User and
// VerificationCode models.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carmoa/go-carmarket-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateUser inserts a new account row. The caller supplies credential
// material (salt + hash); the ID is a randomly generated UUID and CreatedAt
// is set to UTC.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	u.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser fetches an account by its ID, or ErrNotFound if missing.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches an account by email, or ErrNotFound if missing.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdatePushToken stores (or clears) the notification delivery token for an
// account. Returns ErrNotFound if the account does not exist.
func UpdatePushToken(ctx context.Context, db *gorm.DB, id, token string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update("push_token", token)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteUser soft-deletes an account row. Returns ErrNotFound if the account
// does not exist.
func DeleteUser(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CreateVerificationCode inserts a fresh SMS verification code for phone,
// valid for ttl from now.
func CreateVerificationCode(ctx context.Context, db *gorm.DB, phone, code string, ttl time.Duration) (*domain.VerificationCode, error) {
	now := time.Now().UTC()
	vc := &domain.VerificationCode{
		ID:        uuid.NewString(),
		Phone:     phone,
		Code:      code,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := db.WithContext(ctx).Create(vc).Error; err != nil {
		return nil, err
	}
	return vc, nil
}

// LatestVerificationCode returns the most recently issued, unexpired code
// record for phone, or ErrNotFound.
func LatestVerificationCode(ctx context.Context, db *gorm.DB, phone string, now time.Time) (*domain.VerificationCode, error) {
	var vc domain.VerificationCode
	err := db.WithContext(ctx).
		Where("phone = ? AND expires_at > ?", phone, now).
		Order("created_at desc").
		First(&vc).Error
	if err != nil {
		return nil, err
	}
	return &vc, nil
}

// ConfirmVerificationCode marks a code record as confirmed.
func ConfirmVerificationCode(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.VerificationCode{}).
		Where("id = ?", id).
		Update("confirmed_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// HasConfirmedVerification reports whether phone has a confirmed verification
// record no older than window.
func HasConfirmedVerification(ctx context.Context, db *gorm.DB, phone string, window time.Duration, now time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.VerificationCode{}).
		Where("phone = ? AND confirmed_at IS NOT NULL AND confirmed_at > ?", phone, now.Add(-window)).
		Count(&count).Error
	return count > 0, err
}
