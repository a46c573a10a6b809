// Package domain defines the persistence models for accounts, vehicles, and
// consultation requests. These types are mapped with GORM and form the core
// data layer of the marketplace application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// User roles. Exactly one role is active per account; new registrations
// always start as RoleUser.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an authenticated account. Profile fields are read at
// session start and denormalized onto vehicles and consultation requests
// at creation time.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name / Phone / Email: profile data captured at registration.
//   - PasswordSalt / PasswordHash: salted iterated-SHA256 credentials.
//   - Role: "user" or "admin" (enforced by DB constraint).
//   - PushToken: optional notification delivery token.
//   - PhoneVerifiedAt: set when the SMS verification code is confirmed.
//   - DeletedAt: soft deletion marker (self-service account removal).
type User struct {
	ID              string         `json:"id"         gorm:"type:char(36);primaryKey"`
	Name            string         `json:"name"       gorm:"type:varchar(64);not null"`
	Phone           string         `json:"phone"      gorm:"type:varchar(32);not null;index"`
	Email           string         `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	PasswordSalt    string         `json:"-"          gorm:"type:varchar(64);not null"`
	PasswordHash    string         `json:"-"          gorm:"type:varchar(128);not null"`
	Role            string         `json:"role"       gorm:"type:varchar(16);not null;default:'user';check:role IN ('user','admin')"`
	PushToken       string         `json:"-"          gorm:"type:varchar(512)"`
	PhoneVerifiedAt *time.Time     `json:"phone_verified_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// VerificationCode is a short-lived SMS verification code issued for a phone
// number during registration. A code is valid until ExpiresAt and must be
// confirmed before the phone can be used to register an account.
type VerificationCode struct {
	ID          string     `json:"id"    gorm:"type:char(36);primaryKey"`
	Phone       string     `json:"phone" gorm:"type:varchar(32);not null;index:idx_verification_phone"`
	Code        string     `json:"-"     gorm:"type:varchar(8);not null"`
	ExpiresAt   time.Time  `json:"expires_at" gorm:"not null;index"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TableName returns the database table name for VerificationCode.
func (VerificationCode) TableName() string { return "verification_codes" }

// Vehicle kind classification, mirroring the registration-number series.
const (
	VehicleTypePassenger  = "passenger"
	VehicleTypeTaxi       = "taxi"
	VehicleTypeRental     = "rental"
	VehicleTypeCargo      = "cargo"
	VehicleTypeMilitary   = "military"
	VehicleTypeDiplomatic = "diplomatic"
)

// Vehicle represents one listed vehicle. A vehicle belongs to exactly one
// seller (the creator); seller contact fields are denormalized at creation
// so listings stay renderable after profile changes.
//
// The registry-detail fields (SubModel through Battery) are populated only
// for registry-assisted listings; manual listings leave them empty.
type Vehicle struct {
	ID          string `json:"id"           gorm:"type:char(36);primaryKey"`
	SellerID    string `json:"seller_id"    gorm:"type:char(36);not null;index:idx_seller_vehicles"`
	SellerName  string `json:"seller_name"  gorm:"type:varchar(64);not null"`
	SellerPhone string `json:"seller_phone" gorm:"type:varchar(32)"`
	SellerEmail string `json:"seller_email" gorm:"type:varchar(255)"`

	Name         string `json:"name"         gorm:"type:varchar(128);not null"`
	Plate        string `json:"plate,omitempty" gorm:"type:varchar(16)"`
	Manufacturer string `json:"manufacturer" gorm:"type:varchar(64);not null"`
	Year         int    `json:"year"         gorm:"not null"`
	Mileage      int    `json:"mileage"`
	FuelType     string `json:"fuel_type"    gorm:"type:varchar(32);not null"`
	Transmission string `json:"transmission" gorm:"type:varchar(32);not null"`
	Price        int64  `json:"price"        gorm:"not null"`
	Location     string `json:"location"     gorm:"type:varchar(255)"`
	Description  string `json:"description"  gorm:"type:text"`
	ImageURL     string `json:"image_url"    gorm:"type:varchar(512)"`
	VehicleType  string `json:"vehicle_type" gorm:"type:varchar(16);not null;default:'passenger'"`

	// Registry-populated details.
	SubModel       string `json:"sub_model,omitempty"        gorm:"type:varchar(128)"`
	DriveType      string `json:"drive_type,omitempty"       gorm:"type:varchar(32)"`
	Displacement   int    `json:"displacement,omitempty"`
	FuelEconomy    string `json:"fuel_economy,omitempty"     gorm:"type:varchar(32)"`
	FuelTank       string `json:"fuel_tank,omitempty"        gorm:"type:varchar(32)"`
	FrontTire      string `json:"front_tire,omitempty"       gorm:"type:varchar(64)"`
	RearTire       string `json:"rear_tire,omitempty"        gorm:"type:varchar(64)"`
	EngineOilLiter string `json:"engine_oil_liter,omitempty" gorm:"type:varchar(32)"`
	WiperInfo      string `json:"wiper_info,omitempty"       gorm:"type:varchar(128)"`
	Battery        string `json:"battery,omitempty"          gorm:"type:varchar(64)"`

	CreatedAt time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Vehicle.
func (Vehicle) TableName() string { return "vehicles" }

// ConsultationRequest represents one buyer-or-seller-initiated request to
// discuss a specific vehicle at a specific date/time slot.
//
// Invariants:
//   - Status is one of pending/approved/rejected; new requests are pending.
//   - PreferredDate is "2006-01-02" and PreferredTime "15:04" on a
//     10-minute boundary (snapped at intake).
//   - A requester holds at most one pending request per vehicle.
//   - No two requests occupy the same (vehicle, date, time) slot; the
//     unique index backstops the intake guard against concurrent submits.
//
// Requests are never hard-deleted by normal flow; there is no delete
// operation for this entity.
type ConsultationRequest struct {
	ID          string `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string `json:"user_id"      gorm:"type:char(36);not null;index:idx_user_requests"`
	UserName    string `json:"user_name"    gorm:"type:varchar(64);not null"`
	UserPhone   string `json:"user_phone"   gorm:"type:varchar(32)"`
	VehicleID   string `json:"vehicle_id"   gorm:"type:char(36);not null;index;uniqueIndex:ux_request_slot,priority:1"`
	VehicleName string `json:"vehicle_name" gorm:"type:varchar(128);not null"`

	PreferredDate string `json:"preferred_date" gorm:"type:char(10);not null;index;uniqueIndex:ux_request_slot,priority:2"`
	PreferredTime string `json:"preferred_time" gorm:"type:char(5);not null;uniqueIndex:ux_request_slot,priority:3"`

	Status string `json:"status" gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','approved','rejected')"`
	Kind   string `json:"kind"   gorm:"type:varchar(8);not null;check:kind IN ('buy','sell')"`

	CreatedAt time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for ConsultationRequest.
func (ConsultationRequest) TableName() string { return "consultation_requests" }
