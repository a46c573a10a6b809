// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ConsultationRequest model.
//
// The intake guards (duplicate submission, slot collision) are expressed as
// count queries so the service layer can run them inside one transaction
// with the insert. The slot unique index gives a second line of defense;
// the insert maps its violation to ErrSlotConflict.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carmoa/go-carmarket-backend/internal/domain"
)

// ErrSlotConflict indicates that a consultation request already occupies
// the (vehicle, date, time) slot being written.
var ErrSlotConflict = errors.New("slot conflict")

// CreateConsultation inserts a new request row. Newly created requests are
// always pending; the ID is a randomly generated UUID and CreatedAt is set
// to UTC. A unique violation on the slot index is mapped to ErrSlotConflict.
func CreateConsultation(ctx context.Context, db *gorm.DB, r *domain.ConsultationRequest) (*domain.ConsultationRequest, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Status = domain.StatusPending
	r.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}
	return r, nil
}

// GetConsultation fetches a single request by its ID, or ErrNotFound.
func GetConsultation(ctx context.Context, db *gorm.DB, id string) (*domain.ConsultationRequest, error) {
	var r domain.ConsultationRequest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// CountPendingByUserVehicle returns the number of pending requests the
// requester already holds for the vehicle (duplicate-submission guard).
func CountPendingByUserVehicle(ctx context.Context, db *gorm.DB, userID, vehicleID string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.ConsultationRequest{}).
		Where("user_id = ? AND vehicle_id = ? AND status = ?", userID, vehicleID, domain.StatusPending).
		Count(&count).Error
	return count, err
}

// CountBySlot returns the number of requests, in any status, occupying the
// exact (vehicle, date, time) slot (conflict guard).
func CountBySlot(ctx context.Context, db *gorm.DB, vehicleID, date, clock string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.ConsultationRequest{}).
		Where("vehicle_id = ? AND preferred_date = ? AND preferred_time = ?", vehicleID, date, clock).
		Count(&count).Error
	return count, err
}

// ListConsultations returns the full collection ordered by creation time
// descending (the admin review surface partitions it in memory).
func ListConsultations(ctx context.Context, db *gorm.DB) ([]domain.ConsultationRequest, error) {
	var out []domain.ConsultationRequest
	err := db.WithContext(ctx).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// ListConsultationsByUser returns the requester's own requests ordered by
// creation time descending.
func ListConsultationsByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.ConsultationRequest, error) {
	var out []domain.ConsultationRequest
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// ListConsultationsByDate returns requests scheduled on the given calendar
// date, ordered by time-of-day.
func ListConsultationsByDate(ctx context.Context, db *gorm.DB, date string) ([]domain.ConsultationRequest, error) {
	var out []domain.ConsultationRequest
	err := db.WithContext(ctx).
		Where("preferred_date = ?", date).
		Order("preferred_time asc").
		Find(&out).Error
	return out, err
}

// DateStatusCount is one row of the calendar summary: how many requests of
// a given status fall on a given date.
type DateStatusCount struct {
	Date   string `json:"date"`
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// CountConsultationsByDate returns per-date, per-status counts across the
// whole collection, for calendar dot rendering.
func CountConsultationsByDate(ctx context.Context, db *gorm.DB) ([]DateStatusCount, error) {
	var out []DateStatusCount
	err := db.WithContext(ctx).
		Model(&domain.ConsultationRequest{}).
		Select("preferred_date as date, status, count(*) as count").
		Group("preferred_date, status").
		Order("preferred_date asc").
		Scan(&out).Error
	return out, err
}

// UpdateConsultationStatus writes the status field only. If no rows are
// affected (request missing), it returns ErrNotFound.
func UpdateConsultationStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.ConsultationRequest{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateConsultationSlot rewrites the date/time fields of a request without
// touching its status. A unique violation on the slot index is mapped to
// ErrSlotConflict; a missing row yields ErrNotFound.
func UpdateConsultationSlot(ctx context.Context, db *gorm.DB, id, date, clock string) error {
	res := db.WithContext(ctx).
		Model(&domain.ConsultationRequest{}).
		Where("id = ?", id).
		Updates(map[string]any{"preferred_date": date, "preferred_time": clock})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrSlotConflict
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// isUniqueViolation detects unique-constraint violations across drivers
// that may not map to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
