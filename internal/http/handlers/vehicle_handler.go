// Vehicle HTTP handlers.
//
// This file exposes REST endpoints for vehicle listings:
//   - POST   /vehicles                 (manual create)
//   - GET    /vehicles                 (browse, paginated, ETag support)
//   - GET    /vehicles/{id}            (detail)
//   - DELETE /vehicles/{id}            (owner or admin)
//   - GET    /me/vehicles              (own listings)
//   - POST   /admin/vehicles/lookup    (registry preview)
//   - POST   /admin/vehicles/registry  (registry-assisted create)
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/carmoa/go-carmarket-backend/internal/domain"
	"github.com/carmoa/go-carmarket-backend/internal/http/middleware"
	"github.com/carmoa/go-carmarket-backend/internal/repo"
	"github.com/carmoa/go-carmarket-backend/internal/services"
	"github.com/carmoa/go-carmarket-backend/internal/utils"
)

//
// DTOs
//

// CreateVehicleRequest is the JSON payload for manual listing creation.
type CreateVehicleRequest struct {
	Name         string `json:"name"          binding:"required,min=1,max=128"`
	Manufacturer string `json:"manufacturer"  binding:"required"`
	Year         int    `json:"year"          binding:"required"`
	Mileage      int    `json:"mileage"`
	FuelType     string `json:"fuel_type"     binding:"required"`
	Transmission string `json:"transmission"  binding:"required"`
	Price        int64  `json:"price"         binding:"required,gt=0"`
	Location     string `json:"location"`
	Description  string `json:"description"`
	ImageURL     string `json:"image_url"`
	VehicleType  string `json:"vehicle_type"`
}

// RegistryLookupRequest is the JSON payload for a registry preview.
type RegistryLookupRequest struct {
	Plate     string `json:"plate"      binding:"required"`
	OwnerName string `json:"owner_name" binding:"required"`
}

// RegistryCreateRequest is the JSON payload for a confirmed registry-assisted
// listing.
type RegistryCreateRequest struct {
	Plate       string `json:"plate"      binding:"required"`
	OwnerName   string `json:"owner_name" binding:"required"`
	Price       int64  `json:"price"`
	Mileage     int    `json:"mileage"`
	Location    string `json:"location"`
	Description string `json:"description"`
	VehicleType string `json:"vehicle_type"`
}

// ListVehiclesResponse wraps a page of listings and pagination information.
type ListVehiclesResponse struct {
	Vehicles   []domain.Vehicle `json:"vehicles"`
	Pagination Pagination       `json:"pagination"`
}

// VehicleDetailResponse is a single listing plus display labels.
type VehicleDetailResponse struct {
	*domain.Vehicle
	PriceLabel  string `json:"price_label"`
	SellerPhone string `json:"seller_phone_label,omitempty"`
}

// sellerFromCtx builds the denormalized seller identity from the
// authenticated account.
func (h *Handlers) sellerFromCtx(c *gin.Context) (services.Seller, error) {
	u, err := h.accountSvc.Me(c.Request.Context(), callerID(c))
	if err != nil {
		return services.Seller{}, err
	}
	return services.Seller{ID: u.ID, Name: u.Name, Phone: u.Phone, Email: u.Email}, nil
}

//
// Handlers
//

// CreateVehicle persists a manually entered listing owned by the caller.
func (h *Handlers) CreateVehicle(c *gin.Context) {
	var req CreateVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name, manufacturer, year, fuel_type, transmission and price required")
		return
	}

	seller, err := h.sellerFromCtx(c)
	if err != nil {
		failService(c, err)
		return
	}

	v, err := h.vehicleSvc.Create(c.Request.Context(), seller, services.CreateVehicleInput{
		Name:         req.Name,
		Manufacturer: req.Manufacturer,
		Year:         req.Year,
		Mileage:      req.Mileage,
		FuelType:     req.FuelType,
		Transmission: req.Transmission,
		Price:        req.Price,
		Location:     req.Location,
		Description:  req.Description,
		ImageURL:     req.ImageURL,
		VehicleType:  req.VehicleType,
	})
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, v)
}

// ListVehicles returns a page of listings, newest first. Supports weak ETag
// via If-None-Match and may return 304.
func (h *Handlers) ListVehicles(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, isConcrete := h.vehicleSvc.(*services.VehicleService); isConcrete {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.VehiclesStats(ctx, db)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"vehicles:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.vehicleSvc.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListVehiclesResponse{
		Vehicles: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetVehicle returns a single listing.
func (h *Handlers) GetVehicle(c *gin.Context) {
	v, err := h.vehicleSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, VehicleDetailResponse{
		Vehicle:     v,
		PriceLabel:  utils.FormatPrice(v.Price),
		SellerPhone: utils.FormatPhone(v.SellerPhone),
	})
}

// DeleteVehicle removes a listing. Only the owning seller or an admin may
// delete; consultation requests referencing the vehicle stay behind.
func (h *Handlers) DeleteVehicle(c *gin.Context) {
	if err := h.vehicleSvc.Delete(c.Request.Context(), c.Param("id"), callerID(c), middleware.UserRole(c)); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// ListMyVehicles returns the caller's own listings.
func (h *Handlers) ListMyVehicles(c *gin.Context) {
	items, err := h.vehicleSvc.ListBySeller(c.Request.Context(), callerID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if items == nil {
		items = []domain.Vehicle{}
	}
	ok(c, http.StatusOK, gin.H{"vehicles": items})
}

// LookupVehicle previews registry details without persisting anything.
func (h *Handlers) LookupVehicle(c *gin.Context) {
	var req RegistryLookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "plate and owner_name required")
		return
	}
	d, err := h.vehicleSvc.Lookup(c.Request.Context(), req.Plate, req.OwnerName)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// CreateVehicleFromRegistry resolves the plate against the registry and
// persists the confirmed listing. A failed lookup writes nothing.
func (h *Handlers) CreateVehicleFromRegistry(c *gin.Context) {
	var req RegistryCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "plate and owner_name required")
		return
	}

	seller, err := h.sellerFromCtx(c)
	if err != nil {
		failService(c, err)
		return
	}

	v, err := h.vehicleSvc.CreateFromRegistry(c.Request.Context(), seller, services.CreateFromRegistryInput{
		Plate:       req.Plate,
		OwnerName:   req.OwnerName,
		Price:       req.Price,
		Mileage:     req.Mileage,
		Location:    req.Location,
		Description: req.Description,
		VehicleType: req.VehicleType,
	})
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, v)
}
