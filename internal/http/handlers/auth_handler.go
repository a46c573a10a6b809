// Account HTTP handlers.
//
// This file exposes REST endpoints for the account lifecycle:
//   - POST   /auth/phone/code    (issue SMS verification code)
//   - POST   /auth/phone/verify  (redeem verification code)
//   - POST   /auth/register      (create account)
//   - POST   /auth/login         (credential login)
//   - GET    /me                 (own profile)
//   - PUT    /me/push-token      (store notification token)
//   - DELETE /me                 (self-service account removal)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/carmoa/go-carmarket-backend/internal/domain"
	"github.com/carmoa/go-carmarket-backend/internal/services"
)

//
// DTOs
//

// PhoneCodeRequest asks for a verification code to be sent.
type PhoneCodeRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// PhoneVerifyRequest redeems a previously issued code.
type PhoneVerifyRequest struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code"  binding:"required"`
}

// RegisterRequest is the JSON payload for account creation.
type RegisterRequest struct {
	Name     string `json:"name"     binding:"required,min=1,max=64"`
	Phone    string `json:"phone"    binding:"required"`
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

// LoginRequest is the JSON payload for credential login.
type LoginRequest struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// PushTokenRequest stores (or clears, when empty) the device push token.
type PushTokenRequest struct {
	Token string `json:"token"`
}

// AuthResponse wraps an account and its freshly issued access token.
type AuthResponse struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

//
// Handlers
//

// StartPhoneVerification issues an SMS code for the given phone number.
// Always returns 204 on accepted numbers; dispatch is best-effort.
func (h *Handlers) StartPhoneVerification(c *gin.Context) {
	var req PhoneCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.accountSvc.StartPhoneVerification(c.Request.Context(), req.Phone); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// ConfirmPhoneVerification redeems a code for the phone number.
func (h *Handlers) ConfirmPhoneVerification(c *gin.Context) {
	var req PhoneVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.accountSvc.ConfirmPhoneVerification(c.Request.Context(), req.Phone, req.Code); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// Register creates an account. The phone must hold a recent confirmed
// verification.
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name, phone, email and password (8+ chars) required")
		return
	}

	u, token, err := h.accountSvc.Register(c.Request.Context(), services.RegisterInput{
		Name:     req.Name,
		Phone:    req.Phone,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, AuthResponse{User: u, Token: token})
}

// Login verifies credentials and returns a fresh access token.
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password required")
		return
	}

	u, token, err := h.accountSvc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, AuthResponse{User: u, Token: token})
}

// Me returns the caller's own profile.
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.accountSvc.Me(c.Request.Context(), callerID(c))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdatePushToken stores (or clears) the caller's notification token.
func (h *Handlers) UpdatePushToken(c *gin.Context) {
	var req PushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.accountSvc.UpdatePushToken(c.Request.Context(), callerID(c), strings.TrimSpace(req.Token)); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// DeleteMe removes the caller's account and listings. Consultation requests
// stay behind as historical records.
func (h *Handlers) DeleteMe(c *gin.Context) {
	if err := h.accountSvc.DeleteAccount(c.Request.Context(), callerID(c)); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}
