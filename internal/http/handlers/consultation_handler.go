// Consultation HTTP handlers.
//
// This file exposes REST endpoints for consultation requests:
//   - POST /consultations                      (intake, Idempotency-Key aware)
//   - GET  /consultations/{id}                 (detail, ownership-checked)
//   - GET  /me/consultations                   (requester history, ETag support)
//   - GET  /admin/consultations                (review board)
//   - POST /admin/consultations/{id}/approve
//   - POST /admin/consultations/{id}/reject
//   - PUT  /admin/consultations/{id}/schedule  (reschedule pending request)
//   - GET  /admin/consultations/calendar       (day schedule + date counts)
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

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

// CreateConsultationRequest is the JSON payload for intake.
type CreateConsultationRequest struct {
	VehicleID string `json:"vehicle_id" binding:"required"`
	Date      string `json:"date"       binding:"required"` // YYYY-MM-DD
	Time      string `json:"time"       binding:"required"` // HH:MM
	Kind      string `json:"kind"       binding:"required"` // buy or sell
}

// ScheduleRequest is the JSON payload for an admin reschedule.
type ScheduleRequest struct {
	Date string `json:"date" binding:"required"`
	Time string `json:"time" binding:"required"`
}

// KindCounts summarizes a resolved status bucket per request kind.
type KindCounts struct {
	Buy  int `json:"buy"`
	Sell int `json:"sell"`
}

// CollapsedBoard is the default admin review view: the actionable pending
// queue in full (split by kind), resolved buckets as per-kind counts.
type CollapsedBoard struct {
	Pending       services.KindGroup `json:"pending"`
	ApprovedCount KindCounts         `json:"approved_count"`
	RejectedCount KindCounts         `json:"rejected_count"`
}

// CalendarResponse is the admin calendar view.
type CalendarResponse struct {
	Date     string                       `json:"date,omitempty"`
	Schedule []domain.ConsultationRequest `json:"schedule"`
	Counts   []repo.DateStatusCount       `json:"counts"`
}

// consultDB exposes the GORM handle when the service is the concrete
// implementation (idempotency records, ETag stats).
func (h *Handlers) consultDB() *gorm.DB {
	if svc, isConcrete := h.consultSvc.(*services.ConsultationService); isConcrete {
		return svc.DB
	}
	return nil
}

//
// Handlers
//

// CreateConsultation validates and persists a new consultation request for
// the caller. When an Idempotency-Key header is present, a retried request
// replays the originally created resource instead of hitting the guards.
func (h *Handlers) CreateConsultation(c *gin.Context) {
	var req CreateConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "vehicle_id, date, time and kind required")
		return
	}

	ctx := c.Request.Context()
	uid := callerID(c)
	db := h.consultDB()

	// Serve a stored replay before running the intake guards.
	key, hasKey := middleware.GetIdempotencyKey(c)
	if hasKey && db != nil {
		rec, err := repo.GetIdempotency(ctx, db, uid, req.VehicleID, key, time.Now().UTC())
		if err == nil {
			r, gerr := h.consultSvc.Get(ctx, rec.RequestID, uid, middleware.UserRole(c))
			if gerr == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, rec.Status, r)
				return
			}
		}
	}

	// Requester identity is denormalized onto the request row.
	u, err := h.accountSvc.Me(ctx, uid)
	if err != nil {
		failService(c, err)
		return
	}

	r, err := h.consultSvc.Create(ctx, services.CreateConsultationInput{
		UserID:    u.ID,
		UserName:  u.Name,
		UserPhone: utils.FormatPhone(u.Phone),
		VehicleID: req.VehicleID,
		Date:      req.Date,
		Time:      req.Time,
		Kind:      req.Kind,
	})
	if err != nil {
		failService(c, err)
		return
	}

	// Record the key so retries replay this result. Best effort: a lost
	// record only costs the replay, never the request.
	if hasKey && db != nil {
		if _, ierr := repo.CreateIdempotency(ctx, db, uid, req.VehicleID, key, r.ID, http.StatusCreated, h.IdemTTL); ierr != nil && !errors.Is(ierr, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(ierr).Msg("idempotency record write failed")
		}
	}

	ok(c, http.StatusCreated, r)
}

// GetConsultation returns one request. Requesters see only their own; admins
// see any.
func (h *Handlers) GetConsultation(c *gin.Context) {
	r, err := h.consultSvc.Get(c.Request.Context(), c.Param("id"), callerID(c), middleware.UserRole(c))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// ListMyConsultations returns the caller's history grouped by kind, with
// display labels. Supports weak ETag via If-None-Match and may return 304.
func (h *Handlers) ListMyConsultations(c *gin.Context) {
	ctx := c.Request.Context()
	uid := callerID(c)

	// ETag pre-check (best effort).
	if db := h.consultDB(); db != nil {
		count, maxTS, err := repo.ConsultationsStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"consultations:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	out, err := h.consultSvc.ListForUser(ctx, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, out)
}

// ListConsultationsAdmin returns the review board. By default the resolved
// buckets collapse to counts; pass expanded=true for the full partition.
func (h *Handlers) ListConsultationsAdmin(c *gin.Context) {
	board, err := h.consultSvc.ListGrouped(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if c.Query("expanded") == "true" {
		ok(c, http.StatusOK, board)
		return
	}
	ok(c, http.StatusOK, CollapsedBoard{
		Pending:       board.Pending,
		ApprovedCount: KindCounts{Buy: len(board.Approved.Buy), Sell: len(board.Approved.Sell)},
		RejectedCount: KindCounts{Buy: len(board.Rejected.Buy), Sell: len(board.Rejected.Sell)},
	})
}

// ApproveConsultation transitions a pending request to approved.
func (h *Handlers) ApproveConsultation(c *gin.Context) {
	r, err := h.consultSvc.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// RejectConsultation transitions a pending request to rejected.
func (h *Handlers) RejectConsultation(c *gin.Context) {
	r, err := h.consultSvc.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// ScheduleConsultation moves a pending request to a new slot.
func (h *Handlers) ScheduleConsultation(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date and time required")
		return
	}
	r, err := h.consultSvc.Reschedule(c.Request.Context(), c.Param("id"), req.Date, req.Time)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// ConsultationCalendar returns the schedule for one date (when given)
// together with per-date per-status counts for dot rendering.
func (h *Handlers) ConsultationCalendar(c *gin.Context) {
	date := c.Query("date")
	items, counts, err := h.consultSvc.Calendar(c.Request.Context(), date)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, CalendarResponse{Date: date, Schedule: items, Counts: counts})
}
