package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/carmoa/go-carmarket-backend/internal/config"
	"github.com/carmoa/go-carmarket-backend/internal/domain"
	"github.com/carmoa/go-carmarket-backend/internal/repo"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:routerdb_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// schema so handlers don't explode on list endpoints
	if err := db.AutoMigrate(
		&domain.User{}, &domain.VerificationCode{}, &domain.Vehicle{},
		&domain.ConsultationRequest{}, &domain.Idempotency{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		JWTSecret:   "router-test-secret",
		TokenTTL:    time.Hour,
		CodeTTL:     3 * time.Minute,
		VerifyWindow: 10 * time.Minute,
		RateRPS:     1000,
		RateBurst:   1000,
		CORS:        config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:    config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
		Upload:      config.UploadConfig{Dir: "./uploads", BaseURL: "/uploads"},
	}
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.Upload.Dir = t.TempDir()
	RegisterRoutes(r, newTestDB(t), cfg, Integrations{})

	// /health works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.Upload.Dir = t.TempDir()
	cfg.CORS.AllowedOrigins = []string{"http://example.com"}
	RegisterRoutes(r, newTestDB(t), cfg, Integrations{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_AuthBoundaries(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.Upload.Dir = t.TempDir()
	RegisterRoutes(r, newTestDB(t), cfg, Integrations{})

	// Browsing is public
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/vehicles", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /vehicles = %d, want 200", w.Code)
	}

	// Creation requires a session
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/vehicles", bytes.NewBufferString("{}")))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous POST /vehicles = %d, want 401", w.Code)
	}

	// Admin surface requires a session too
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/consultations", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous GET /admin/consultations = %d, want 401", w.Code)
	}
}

// Full account → listing → consultation → review flow through the real stack.
func TestRegisterRoutes_EndToEndFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.Upload.Dir = t.TempDir()
	db := newTestDB(t)
	RegisterRoutes(r, db, cfg, Integrations{})

	do := func(method, path, token string, body any) *httptest.ResponseRecorder {
		t.Helper()
		var buf bytes.Buffer
		if body != nil {
			if err := json.NewEncoder(&buf).Encode(body); err != nil {
				t.Fatalf("encode: %v", err)
			}
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	decode := func(w *httptest.ResponseRecorder) map[string]any {
		t.Helper()
		var m map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
			t.Fatalf("decode %q: %v", w.Body.String(), err)
		}
		return m
	}

	const phone = "01012345678"
	ctx := context.Background()

	// Phone verification: issue, read the code back from storage, confirm.
	if w := do(http.MethodPost, "/api/v1/auth/phone/code", "", gin.H{"phone": phone}); w.Code != http.StatusNoContent {
		t.Fatalf("phone/code = %d: %s", w.Code, w.Body.String())
	}
	vc, err := repo.LatestVerificationCode(ctx, db, phone, time.Now().UTC())
	if err != nil {
		t.Fatalf("read issued code: %v", err)
	}
	if w := do(http.MethodPost, "/api/v1/auth/phone/verify", "", gin.H{"phone": phone, "code": vc.Code}); w.Code != http.StatusNoContent {
		t.Fatalf("phone/verify = %d: %s", w.Code, w.Body.String())
	}

	// Register + authenticate.
	w := do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name": "홍길동", "phone": phone, "email": "hong@example.com", "password": "password123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d: %s", w.Code, w.Body.String())
	}
	token, _ := decode(w)["token"].(string)
	if token == "" {
		t.Fatalf("no token in register response")
	}

	if w := do(http.MethodGet, "/api/v1/me", token, nil); w.Code != http.StatusOK {
		t.Fatalf("GET /me = %d: %s", w.Code, w.Body.String())
	}

	// List a vehicle, then request a consultation on it.
	w = do(http.MethodPost, "/api/v1/vehicles", token, gin.H{
		"name": "그랜저 IG", "manufacturer": "현대", "year": 2021,
		"fuel_type": "가솔린", "transmission": "자동", "price": 2350,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create vehicle = %d: %s", w.Code, w.Body.String())
	}
	vehicleID, _ := decode(w)["id"].(string)

	w = do(http.MethodPost, "/api/v1/consultations", token, gin.H{
		"vehicle_id": vehicleID, "date": "2026-09-01", "time": "14:05", "kind": "buy",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create consultation = %d: %s", w.Code, w.Body.String())
	}
	created := decode(w)
	if created["preferred_time"] != "14:10" {
		t.Fatalf("slot not snapped: %v", created["preferred_time"])
	}
	requestID, _ := created["id"].(string)

	// Admin surface is closed to plain users.
	if w := do(http.MethodGet, "/api/v1/admin/consultations", token, nil); w.Code != http.StatusForbidden {
		t.Fatalf("user on admin surface = %d, want 403", w.Code)
	}

	// Promote and re-login for an admin-role token.
	if err := db.Model(&domain.User{}).Where("email = ?", "hong@example.com").Update("role", domain.RoleAdmin).Error; err != nil {
		t.Fatalf("promote: %v", err)
	}
	w = do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "hong@example.com", "password": "password123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", w.Code, w.Body.String())
	}
	adminToken, _ := decode(w)["token"].(string)

	w = do(http.MethodGet, "/api/v1/admin/consultations", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin board = %d: %s", w.Code, w.Body.String())
	}

	w = do(http.MethodPost, "/api/v1/admin/consultations/"+requestID+"/approve", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("approve = %d: %s", w.Code, w.Body.String())
	}
	if decode(w)["status"] != domain.StatusApproved {
		t.Fatalf("approve did not transition: %s", w.Body.String())
	}

	// Second decision hits the terminal-state guard.
	if w := do(http.MethodPost, "/api/v1/admin/consultations/"+requestID+"/reject", adminToken, nil); w.Code != http.StatusConflict {
		t.Fatalf("double decision = %d, want 409", w.Code)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	g := groupWithPrefix(r, "")
	g.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("root group: GET /ping = %d", w.Code)
	}

	r = gin.New()
	g = groupWithPrefix(r, "/api/v9")
	g.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v9/ping", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("prefixed group: GET /api/v9/ping = %d", w.Code)
	}
}
