// Package services – ConsultationService
//
// This file implements the ConsultationService, which manages the lifecycle
// of consultation requests: intake (with slot snapping and duplicate/conflict
// guards), admin review (approve/reject with push notification), reschedule,
// requester history, and the admin calendar view.
//
// Intake runs its guards and the insert inside one transaction; the unique
// slot index backs the conflict guard against concurrent writers. Review
// decisions notify the requester on a best-effort basis: delivery failures
// are logged and never roll back the decision.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/carmoa/go-carmarket-backend/internal/domain"
	"github.com/carmoa/go-carmarket-backend/internal/repo"
)

// ConsultationRepo defines the repository contract required by
// ConsultationService. Implementations are responsible for persistence of
// consultation request aggregates.
type ConsultationRepo interface {
	// CreateConsultation inserts a new pending request row.
	CreateConsultation(ctx context.Context, db *gorm.DB, r *domain.ConsultationRequest) (*domain.ConsultationRequest, error)

	// GetConsultation fetches a request by ID.
	GetConsultation(ctx context.Context, db *gorm.DB, id string) (*domain.ConsultationRequest, error)

	// CountPendingByUserVehicle counts the requester's pending requests for a vehicle.
	CountPendingByUserVehicle(ctx context.Context, db *gorm.DB, userID, vehicleID string) (int64, error)

	// CountBySlot counts requests occupying a (vehicle, date, time) slot.
	CountBySlot(ctx context.Context, db *gorm.DB, vehicleID, date, clock string) (int64, error)

	// ListConsultations returns the whole collection, newest first.
	ListConsultations(ctx context.Context, db *gorm.DB) ([]domain.ConsultationRequest, error)

	// ListConsultationsByUser returns the requester's own requests.
	ListConsultationsByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.ConsultationRequest, error)

	// ListConsultationsByDate returns requests on a calendar date, time-ordered.
	ListConsultationsByDate(ctx context.Context, db *gorm.DB, date string) ([]domain.ConsultationRequest, error)

	// CountConsultationsByDate returns per-date per-status counts.
	CountConsultationsByDate(ctx context.Context, db *gorm.DB) ([]repo.DateStatusCount, error)

	// UpdateConsultationStatus writes the status field only.
	UpdateConsultationStatus(ctx context.Context, db *gorm.DB, id, status string) error

	// UpdateConsultationSlot rewrites the date/time fields only.
	UpdateConsultationSlot(ctx context.Context, db *gorm.DB, id, date, clock string) error
}

// VehicleReader is the subset of the vehicle repository the consultation
// service needs for intake validation.
type VehicleReader interface {
	GetVehicle(ctx context.Context, db *gorm.DB, id string) (*domain.Vehicle, error)
}

// UserReader is the subset of the user repository the consultation service
// needs for notification delivery.
type UserReader interface {
	GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)
}

// PushSender delivers a push notification to a device token. Implementations
// live in the notify package; a nil sender disables notifications.
type PushSender interface {
	Send(ctx context.Context, token, title, body string) error
}

// ConsultationService provides intake, review, and browsing operations for
// consultation requests.
type ConsultationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the consultation repository used by this service.
	Repo ConsultationRepo
	// Vehicles resolves vehicle references during intake.
	Vehicles VehicleReader
	// Users resolves requester accounts for notification delivery.
	Users UserReader
	// Push delivers review-decision notifications. May be nil.
	Push PushSender
}

// NewConsultationService constructs a ConsultationService.
func NewConsultationService(db *gorm.DB, r ConsultationRepo, v VehicleReader, u UserReader, p PushSender) *ConsultationService {
	return &ConsultationService{DB: db, Repo: r, Vehicles: v, Users: u, Push: p}
}

// CreateConsultationInput carries the intake payload after authentication.
// UserID/UserName/UserPhone come from the authenticated account and are
// denormalized onto the request row.
type CreateConsultationInput struct {
	UserID    string
	UserName  string
	UserPhone string
	VehicleID string
	Date      string // YYYY-MM-DD
	Time      string // HH:MM, snapped to the 10-minute grid
	Kind      string // buy or sell
}

// Create validates and persists a new consultation request.
//
// The preferred time is snapped up to the next 10-minute boundary before any
// guard runs, so duplicates and conflicts are judged on the stored slot. The
// guards and the insert share one transaction.
func (s *ConsultationService) Create(ctx context.Context, in CreateConsultationInput) (*domain.ConsultationRequest, error) {
	in.VehicleID = strings.TrimSpace(in.VehicleID)
	if in.UserID == "" || in.VehicleID == "" || in.Date == "" || in.Time == "" {
		return nil, ErrMissingFields
	}
	if !domain.ValidKind(in.Kind) {
		return nil, ErrInvalidKind
	}
	slot, err := domain.ParseSlot(in.Date, in.Time)
	if err != nil {
		return nil, ErrInvalidSlot
	}
	date, clock := domain.FormatSlot(slot)

	var out *domain.ConsultationRequest
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := s.Vehicles.GetVehicle(ctx, tx, in.VehicleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVehicleNotFound
			}
			return err
		}

		dup, err := s.Repo.CountPendingByUserVehicle(ctx, tx, in.UserID, in.VehicleID)
		if err != nil {
			return err
		}
		if dup > 0 {
			return ErrDuplicateRequest
		}

		// Rejected requests keep their slot occupied.
		taken, err := s.Repo.CountBySlot(ctx, tx, in.VehicleID, date, clock)
		if err != nil {
			return err
		}
		if taken > 0 {
			return ErrSlotTaken
		}

		out, err = s.Repo.CreateConsultation(ctx, tx, &domain.ConsultationRequest{
			UserID:        in.UserID,
			UserName:      in.UserName,
			UserPhone:     in.UserPhone,
			VehicleID:     v.ID,
			VehicleName:   v.Name,
			PreferredDate: date,
			PreferredTime: clock,
			Kind:          in.Kind,
		})
		if errors.Is(err, repo.ErrSlotConflict) {
			// Lost a race with a concurrent writer on the same slot.
			return ErrSlotTaken
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a single request. Non-admin callers may only read their own.
func (s *ConsultationService) Get(ctx context.Context, id, userID, role string) (*domain.ConsultationRequest, error) {
	r, err := s.Repo.GetConsultation(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if role != domain.RoleAdmin && r.UserID != userID {
		return nil, ErrRequestNotFound
	}
	return r, nil
}

// Approve transitions a pending request to approved and notifies the
// requester. Terminal requests yield ErrAlreadyResolved.
func (s *ConsultationService) Approve(ctx context.Context, id string) (*domain.ConsultationRequest, error) {
	return s.resolve(ctx, id, domain.StatusApproved)
}

// Reject transitions a pending request to rejected and notifies the
// requester. Terminal requests yield ErrAlreadyResolved.
func (s *ConsultationService) Reject(ctx context.Context, id string) (*domain.ConsultationRequest, error) {
	return s.resolve(ctx, id, domain.StatusRejected)
}

func (s *ConsultationService) resolve(ctx context.Context, id, target string) (*domain.ConsultationRequest, error) {
	r, err := s.Repo.GetConsultation(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if !domain.CanTransition(r.Status, target) {
		return nil, ErrAlreadyResolved
	}
	if err := s.Repo.UpdateConsultationStatus(ctx, s.DB, id, target); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	r.Status = target

	s.notifyDecision(ctx, r)
	return r, nil
}

// notifyDecision sends the review-decision push. Failures are logged, never
// returned: the decision stands regardless of delivery.
func (s *ConsultationService) notifyDecision(ctx context.Context, r *domain.ConsultationRequest) {
	if s.Push == nil || s.Users == nil {
		return
	}
	u, err := s.Users.GetUser(ctx, s.DB, r.UserID)
	if err != nil || u.PushToken == "" {
		return
	}
	body := r.VehicleName + " 상담이 " + domain.StatusLabels[r.Status] + " 처리되었습니다."
	if err := s.Push.Send(ctx, u.PushToken, "상담 신청 결과", body); err != nil {
		log.Warn().Err(err).Str("request_id", r.ID).Msg("push notification failed")
	}
}

// Reschedule moves a pending request to a new slot. The new time is snapped
// to the grid; occupied slots yield ErrSlotTaken, resolved requests
// ErrAlreadyResolved.
func (s *ConsultationService) Reschedule(ctx context.Context, id, date, clock string) (*domain.ConsultationRequest, error) {
	slot, err := domain.ParseSlot(date, clock)
	if err != nil {
		return nil, ErrInvalidSlot
	}
	date, clock = domain.FormatSlot(slot)

	var out *domain.ConsultationRequest
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.Repo.GetConsultation(ctx, tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return err
		}
		if r.Status != domain.StatusPending {
			return ErrAlreadyResolved
		}
		if r.PreferredDate == date && r.PreferredTime == clock {
			out = r
			return nil
		}
		taken, err := s.Repo.CountBySlot(ctx, tx, r.VehicleID, date, clock)
		if err != nil {
			return err
		}
		if taken > 0 {
			return ErrSlotTaken
		}
		if err := s.Repo.UpdateConsultationSlot(ctx, tx, id, date, clock); err != nil {
			if errors.Is(err, repo.ErrSlotConflict) {
				return ErrSlotTaken
			}
			return err
		}
		r.PreferredDate, r.PreferredTime = date, clock
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// KindGroup splits one status bucket of the review board by request kind.
type KindGroup struct {
	Buy  []domain.ConsultationRequest `json:"buy"`
	Sell []domain.ConsultationRequest `json:"sell"`
}

// ReviewBoard is the admin review surface: the collection partitioned into
// status × kind groups, newest first within each group.
type ReviewBoard struct {
	Pending  KindGroup `json:"pending"`
	Approved KindGroup `json:"approved"`
	Rejected KindGroup `json:"rejected"`
}

// ListGrouped returns the full review board. Groups are never nil so the
// JSON encoding stays an array.
func (s *ConsultationService) ListGrouped(ctx context.Context) (*ReviewBoard, error) {
	all, err := s.Repo.ListConsultations(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	board := &ReviewBoard{
		Pending:  emptyKindGroup(),
		Approved: emptyKindGroup(),
		Rejected: emptyKindGroup(),
	}
	for _, r := range all {
		var g *KindGroup
		switch r.Status {
		case domain.StatusApproved:
			g = &board.Approved
		case domain.StatusRejected:
			g = &board.Rejected
		default:
			g = &board.Pending
		}
		if r.Kind == domain.KindSell {
			g.Sell = append(g.Sell, r)
		} else {
			g.Buy = append(g.Buy, r)
		}
	}
	return board, nil
}

func emptyKindGroup() KindGroup {
	return KindGroup{
		Buy:  []domain.ConsultationRequest{},
		Sell: []domain.ConsultationRequest{},
	}
}

// RequestView decorates a request with its display label.
type RequestView struct {
	domain.ConsultationRequest
	StatusLabel string `json:"status_label"`
}

// UserRequests is the requester history grouped by request kind.
type UserRequests struct {
	Buy  []RequestView `json:"buy"`
	Sell []RequestView `json:"sell"`
}

// ListForUser returns the requester's own history, grouped by kind and
// decorated with status labels.
func (s *ConsultationService) ListForUser(ctx context.Context, userID string) (*UserRequests, error) {
	items, err := s.Repo.ListConsultationsByUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	out := &UserRequests{Buy: []RequestView{}, Sell: []RequestView{}}
	for _, r := range items {
		view := RequestView{ConsultationRequest: r, StatusLabel: domain.StatusLabels[r.Status]}
		if r.Kind == domain.KindSell {
			out.Sell = append(out.Sell, view)
		} else {
			out.Buy = append(out.Buy, view)
		}
	}
	return out, nil
}

// Calendar returns the schedule for one date (time-ordered) together with
// per-date per-status counts across the collection for dot rendering.
func (s *ConsultationService) Calendar(ctx context.Context, date string) ([]domain.ConsultationRequest, []repo.DateStatusCount, error) {
	if date != "" {
		if _, err := time.Parse(domain.DateLayout, date); err != nil {
			return nil, nil, ErrInvalidSlot
		}
	}
	counts, err := s.Repo.CountConsultationsByDate(ctx, s.DB)
	if err != nil {
		return nil, nil, err
	}
	items := []domain.ConsultationRequest{}
	if date != "" {
		items, err = s.Repo.ListConsultationsByDate(ctx, s.DB, date)
		if err != nil {
			return nil, nil, err
		}
	}
	return items, counts, nil
}
