// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Vehicle
// model.
//
// Functions:
//
//   - CreateVehicle(ctx, db, v) -> *domain.Vehicle, error
//     Inserts a new Vehicle row with UUID primary key and UTC timestamp.
//
//   - GetVehicle(ctx, db, id) -> *domain.Vehicle, error
//     Fetches a single vehicle by ID, or ErrNotFound if missing.
//
//   - ListVehicles / CountVehicles / ListVehiclesPage
//     Browsing queries ordered by creation time descending.
//
//   - ListVehiclesBySeller(ctx, db, sellerID) -> []domain.Vehicle, error
//     Returns the seller's own listings.
//
//   - DeleteVehicle(ctx, db, id) -> error
//     Soft-deletes a listing; ErrNotFound when missing. Related
//     consultation requests are deliberately left in place (no cascade).
//
//   - DeleteVehiclesBySeller(ctx, db, sellerID) -> (int64, error)
//     Batch removal used by the self-service account-deletion flow.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carmoa/go-carmarket-backend/internal/domain"
)

// CreateVehicle inserts a new Vehicle row. The vehicle ID is a randomly
// generated UUID (string), and CreatedAt is set to UTC.
func CreateVehicle(ctx context.Context, db *gorm.DB, v *domain.Vehicle) (*domain.Vehicle, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}

// GetVehicle fetches a single vehicle by its ID. If the record does not
// exist, it returns ErrNotFound.
func GetVehicle(ctx context.Context, db *gorm.DB, id string) (*domain.Vehicle, error) {
	var v domain.Vehicle
	if err := db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVehicles returns all listings ordered by creation time descending
// (most recent first). Prefer ListVehiclesPage for large datasets.
func ListVehicles(ctx context.Context, db *gorm.DB) ([]domain.Vehicle, error) {
	var out []domain.Vehicle
	err := db.WithContext(ctx).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// CountVehicles returns the total number of listings.
func CountVehicles(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Vehicle{}).Count(&total).Error
	return total, err
}

// ListVehiclesPage returns a paginated slice of listings ordered by creation
// time descending. The caller computes offset and limit.
func ListVehiclesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Vehicle, error) {
	var out []domain.Vehicle
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListVehiclesBySeller returns all listings owned by sellerID, ordered by
// creation time descending.
func ListVehiclesBySeller(ctx context.Context, db *gorm.DB, sellerID string) ([]domain.Vehicle, error) {
	var out []domain.Vehicle
	err := db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// DeleteVehicle soft-deletes a listing by ID. If no rows are affected, it
// returns ErrNotFound. Consultation requests referencing the vehicle are
// left untouched.
func DeleteVehicle(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Vehicle{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteVehiclesBySeller soft-deletes every listing owned by sellerID and
// returns the number of rows removed. Zero rows is not an error.
func DeleteVehiclesBySeller(ctx context.Context, db *gorm.DB, sellerID string) (int64, error) {
	res := db.WithContext(ctx).Where("seller_id = ?", sellerID).Delete(&domain.Vehicle{})
	return res.RowsAffected, res.Error
}
