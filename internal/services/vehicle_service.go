// Package services – VehicleService
//
// This file implements the VehicleService, which manages vehicle listings:
// manual creation with field validation, registry-assisted creation (plate
// lookup preview followed by a confirmed save), browsing with pagination,
// and owner-or-admin deletion. Seller contact fields are denormalized onto
// the listing at creation time.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/carmoa/go-carmarket-backend/internal/domain"
	"github.com/carmoa/go-carmarket-backend/internal/registry"
)

// VehicleRepo defines the repository contract required by VehicleService.
type VehicleRepo interface {
	// CreateVehicle inserts a new listing row.
	CreateVehicle(ctx context.Context, db *gorm.DB, v *domain.Vehicle) (*domain.Vehicle, error)

	// GetVehicle fetches a listing by ID.
	GetVehicle(ctx context.Context, db *gorm.DB, id string) (*domain.Vehicle, error)

	// CountVehicles returns the total number of listings for pagination.
	CountVehicles(ctx context.Context, db *gorm.DB) (int64, error)

	// ListVehiclesPage returns a page of listings, newest first.
	ListVehiclesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Vehicle, error)

	// ListVehiclesBySeller returns a seller's own listings.
	ListVehiclesBySeller(ctx context.Context, db *gorm.DB, sellerID string) ([]domain.Vehicle, error)

	// DeleteVehicle soft-deletes a listing.
	DeleteVehicle(ctx context.Context, db *gorm.DB, id string) error
}

// VehicleService provides listing operations for vehicles.
type VehicleService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the vehicle repository used by this service.
	Repo VehicleRepo
	// Registry resolves registration numbers to vehicle details. May be nil
	// when registry-assisted creation is not configured.
	Registry registry.Client
}

// NewVehicleService constructs a VehicleService.
func NewVehicleService(db *gorm.DB, r VehicleRepo, reg registry.Client) *VehicleService {
	return &VehicleService{DB: db, Repo: r, Registry: reg}
}

// Seller carries the denormalized seller identity stamped onto a listing.
type Seller struct {
	ID    string
	Name  string
	Phone string
	Email string
}

// CreateVehicleInput carries the manual-creation payload.
type CreateVehicleInput struct {
	Name         string
	Manufacturer string
	Year         int
	Mileage      int
	FuelType     string
	Transmission string
	Price        int64
	Location     string
	Description  string
	ImageURL     string
	VehicleType  string
}

// Create validates and persists a manually entered listing.
func (s *VehicleService) Create(ctx context.Context, seller Seller, in CreateVehicleInput) (*domain.Vehicle, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Manufacturer = strings.TrimSpace(in.Manufacturer)
	if seller.ID == "" || in.Name == "" || in.Manufacturer == "" ||
		in.Year == 0 || in.FuelType == "" || in.Transmission == "" || in.Price <= 0 {
		return nil, ErrMissingFields
	}
	if in.VehicleType == "" {
		in.VehicleType = domain.VehicleTypePassenger
	}

	return s.Repo.CreateVehicle(ctx, s.DB, &domain.Vehicle{
		SellerID:     seller.ID,
		SellerName:   seller.Name,
		SellerPhone:  seller.Phone,
		SellerEmail:  seller.Email,
		Name:         in.Name,
		Manufacturer: in.Manufacturer,
		Year:         in.Year,
		Mileage:      in.Mileage,
		FuelType:     in.FuelType,
		Transmission: in.Transmission,
		Price:        in.Price,
		Location:     in.Location,
		Description:  in.Description,
		ImageURL:     in.ImageURL,
		VehicleType:  in.VehicleType,
	})
}

// Lookup previews registry details for a plate/owner pair without writing
// anything. Malformed plates fail fast with ErrInvalidPlate; upstream
// failures are wrapped in ErrRegistryUnavailable with the upstream message.
func (s *VehicleService) Lookup(ctx context.Context, plate, ownerName string) (*registry.Detail, error) {
	if s.Registry == nil {
		return nil, ErrRegistryUnavailable
	}
	if !registry.ValidPlate(plate) {
		return nil, ErrInvalidPlate
	}
	if strings.TrimSpace(ownerName) == "" {
		return nil, ErrMissingFields
	}
	d, err := s.Registry.Lookup(ctx, plate, ownerName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	return d, nil
}

// CreateFromRegistryInput carries the confirmed registry-assisted payload.
// The lookup runs again at save time so a stale preview can never produce a
// listing the registry no longer backs.
type CreateFromRegistryInput struct {
	Plate       string
	OwnerName   string
	Price       int64 // overrides the registry price when > 0
	Mileage     int
	Location    string
	Description string
	VehicleType string
}

// CreateFromRegistry resolves the plate against the registry and persists
// the resulting listing. A failed lookup aborts with no partial write.
func (s *VehicleService) CreateFromRegistry(ctx context.Context, seller Seller, in CreateFromRegistryInput) (*domain.Vehicle, error) {
	if seller.ID == "" {
		return nil, ErrMissingFields
	}
	d, err := s.Lookup(ctx, in.Plate, in.OwnerName)
	if err != nil {
		return nil, err
	}

	price := d.Price
	if in.Price > 0 {
		price = in.Price
	}
	vehicleType := in.VehicleType
	if vehicleType == "" {
		vehicleType = domain.VehicleTypePassenger
	}

	return s.Repo.CreateVehicle(ctx, s.DB, &domain.Vehicle{
		SellerID:     seller.ID,
		SellerName:   seller.Name,
		SellerPhone:  seller.Phone,
		SellerEmail:  seller.Email,
		Name:         d.Name,
		Plate:        strings.TrimSpace(in.Plate),
		Manufacturer: d.Manufacturer,
		Year:         d.Year,
		Mileage:      in.Mileage,
		FuelType:     d.FuelType,
		Transmission: d.Transmission,
		Price:        price,
		Location:     in.Location,
		Description:  in.Description,
		ImageURL:     d.ImagePath,
		VehicleType:  vehicleType,

		SubModel:       d.SubModel,
		DriveType:      d.DriveType,
		Displacement:   d.Displacement,
		FuelEconomy:    d.FuelEconomy,
		FuelTank:       d.FuelTank,
		FrontTire:      d.FrontTire,
		RearTire:       d.RearTire,
		EngineOilLiter: d.EngineOil,
		WiperInfo:      d.Wiper,
		Battery:        d.Battery,
	})
}

// Get fetches a single listing.
func (s *VehicleService) Get(ctx context.Context, id string) (*domain.Vehicle, error) {
	v, err := s.Repo.GetVehicle(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVehicleNotFound
		}
		return nil, err
	}
	return v, nil
}

// ListPage returns a page of listings (newest first) with the total count.
// It applies defaults for invalid page/pageSize.
func (s *VehicleService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Vehicle, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountVehicles(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Vehicle{}, 0, nil
	}

	items, err := s.Repo.ListVehiclesPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// ListBySeller returns a seller's own listings, newest first.
func (s *VehicleService) ListBySeller(ctx context.Context, sellerID string) ([]domain.Vehicle, error) {
	return s.Repo.ListVehiclesBySeller(ctx, s.DB, sellerID)
}

// Delete removes a listing. Only the owning seller or an admin may delete;
// consultation requests referencing the vehicle are left in place.
func (s *VehicleService) Delete(ctx context.Context, id, callerID, role string) error {
	v, err := s.Repo.GetVehicle(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrVehicleNotFound
		}
		return err
	}
	if role != domain.RoleAdmin && v.SellerID != callerID {
		return ErrForbidden
	}
	if err := s.Repo.DeleteVehicle(ctx, s.DB, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrVehicleNotFound
		}
		return err
	}
	return nil
}
