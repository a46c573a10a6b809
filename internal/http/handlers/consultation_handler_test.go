package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/carmoa/go-carmarket-backend/internal/domain"
	"github.com/carmoa/go-carmarket-backend/internal/repo"
	"github.com/carmoa/go-carmarket-backend/internal/services"
)

func TestCreateConsultation_ForwardsIdentity(t *testing.T) {
	var gotInput services.CreateConsultationInput
	h := New(stubAccountSvc{}, stubVehicleSvc{}, stubConsultSvc{createFn: func(_ context.Context, in services.CreateConsultationInput) (*domain.ConsultationRequest, error) {
		gotInput = in
		return &domain.ConsultationRequest{ID: "r1", UserID: in.UserID, Status: domain.StatusPending}, nil
	}})
	r := mountAll(h, "u-42", domain.RoleUser)

	w := doJSON(t, r, http.MethodPost, "/consultations", CreateConsultationRequest{
		VehicleID: "v1", Date: "2026-09-01", Time: "14:05", Kind: domain.KindBuy,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", w.Code, w.Body.String())
	}
	if gotInput.UserID != "u-42" || gotInput.UserName != "홍길동" {
		t.Fatalf("identity not denormalized: %+v", gotInput)
	}
	if gotInput.UserPhone != "010-1234-5678" {
		t.Fatalf("phone not formatted: %q", gotInput.UserPhone)
	}

	// binding failure
	w = doJSON(t, r, http.MethodPost, "/consultations", map[string]string{"vehicle_id": "v1"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing fields: status = %d, want 400", w.Code)
	}
}

func TestCreateConsultation_GuardMapping(t *testing.T) {
	cases := []struct {
		err      error
		wantCode int
		wantBody string
	}{
		{services.ErrDuplicateRequest, http.StatusConflict, ErrCodeDuplicateRequest},
		{services.ErrSlotTaken, http.StatusConflict, ErrCodeSlotTaken},
		{services.ErrVehicleNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrInvalidSlot, http.StatusBadRequest, ErrCodeBadRequest},
	}
	for _, tc := range cases {
		h := New(stubAccountSvc{}, stubVehicleSvc{}, stubConsultSvc{createFn: func(context.Context, services.CreateConsultationInput) (*domain.ConsultationRequest, error) {
			return nil, tc.err
		}})
		r := mountAll(h, "u-42", domain.RoleUser)
		w := doJSON(t, r, http.MethodPost, "/consultations", CreateConsultationRequest{
			VehicleID: "v1", Date: "2026-09-01", Time: "14:05", Kind: domain.KindBuy,
		}, nil)
		if w.Code != tc.wantCode {
			t.Fatalf("%v: status = %d, want %d", tc.err, w.Code, tc.wantCode)
		}
		if body := decodeBody(t, w); body["code"] != tc.wantBody {
			t.Fatalf("%v: code = %v, want %s", tc.err, body["code"], tc.wantBody)
		}
	}
}

func TestGetConsultation(t *testing.T) {
	h := New(stubAccountSvc{}, stubVehicleSvc{}, stubConsultSvc{}) // stub echoes id + caller
	r := mountAll(h, "u-42", domain.RoleUser)

	w := doJSON(t, r, http.MethodGet, "/consultations/r1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	h = New(stubAccountSvc{}, stubVehicleSvc{}, stubConsultSvc{getFn: func(context.Context, string, string, string) (*domain.ConsultationRequest, error) {
		return nil, services.ErrRequestNotFound
	}})
	r = mountAll(h, "someone-else", domain.RoleUser)
	w = doJSON(t, r, http.MethodGet, "/consultations/r1", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign request: status = %d, want 404", w.Code)
	}
}

func TestListConsultationsAdmin_CollapsedAndExpanded(t *testing.T) {
	board := &services.ReviewBoard{
		Pending: services.KindGroup{
			Buy:  []domain.ConsultationRequest{{ID: "p1", Status: domain.StatusPending, Kind: domain.KindBuy}},
			Sell: []domain.ConsultationRequest{{ID: "p2", Status: domain.StatusPending, Kind: domain.KindSell}},
		},
		Approved: services.KindGroup{
			Buy:  []domain.ConsultationRequest{{ID: "a1", Status: domain.StatusApproved, Kind: domain.KindBuy}, {ID: "a2", Status: domain.StatusApproved, Kind: domain.KindBuy}},
			Sell: []domain.ConsultationRequest{},
		},
		Rejected: services.KindGroup{
			Buy:  []domain.ConsultationRequest{},
			Sell: []domain.ConsultationRequest{{ID: "x1", Status: domain.StatusRejected, Kind: domain.KindSell}},
		},
	}
	h := New(stubAccountSvc{}, stubVehicleSvc{}, stubConsultSvc{groupedFn: func(context.Context) (*services.ReviewBoard, error) {
		return board, nil
	}})
	r := mountAll(h, "admin-1", domain.RoleAdmin)

	w := doJSON(t, r, http.MethodGet, "/admin/consultations", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	approvedCount, _ := body["approved_count"].(map[string]any)
	if approvedCount["buy"] != float64(2) || approvedCount["sell"] != float64(0) {
		t.Fatalf("collapsed approved counts wrong: %v", body["approved_count"])
	}
	rejectedCount, _ := body["rejected_count"].(map[string]any)
	if rejectedCount["buy"] != float64(0) || rejectedCount["sell"] != float64(1) {
		t.Fatalf("collapsed rejected counts wrong: %v", body["rejected_count"])
	}
	pending, _ := body["pending"].(map[string]any)
	pendingBuy, _ := pending["buy"].([]any)
	pendingSell, _ := pending["sell"].([]any)
	if len(pendingBuy) != 1 || len(pendingSell) != 1 {
		t.Fatalf("pending kind split wrong: %v", body["pending"])
	}

	w = doJSON(t, r, http.MethodGet, "/admin/consultations?expanded=true", nil, nil)
	body = decodeBody(t, w)
	approved, _ := body["approved"].(map[string]any)
	approvedBuy, _ := approved["buy"].([]any)
	approvedSell, _ := approved["sell"].([]any)
	if len(approvedBuy) != 2 || len(approvedSell) != 0 {
		t.Fatalf("expanded approved kind split wrong: %v", body["approved"])
	}
	rejected, _ := body["rejected"].(map[string]any)
	rejectedSell, _ := rejected["sell"].([]any)
	if len(rejectedSell) != 1 {
		t.Fatalf("expanded rejected kind split wrong: %v", body["rejected"])
	}
}

func TestApproveRejectConsultation(t *testing.T) {
	h := New(stubAccountSvc{}, stubVehicleSvc{}, stubConsultSvc{})
	r := mountAll(h, "admin-1", domain.RoleAdmin)

	w := doJSON(t, r, http.MethodPost, "/admin/consultations/r1/approve", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("approve: status = %d, want 200", w.Code)
	}
	if body := decodeBody(t, w); body["status"] != domain.StatusApproved {
		t.Fatalf("approve: status field = %v", body["status"])
	}

	w = doJSON(t, r, http.MethodPost, "/admin/consultations/r1/reject", nil, nil)
	if body := decodeBody(t, w); body["status"] != domain.StatusRejected {
		t.Fatalf("reject: status field = %v", body["status"])
	}

	// second decision on a resolved request
	h = New(stubAccountSvc{}, stubVehicleSvc{}, stubConsultSvc{approveFn: func(context.Context, string) (*domain.ConsultationRequest, error) {
		return nil, services.ErrAlreadyResolved
	}})
	r = mountAll(h, "admin-1", domain.RoleAdmin)
	w = doJSON(t, r, http.MethodPost, "/admin/consultations/r1/approve", nil, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("double decision: status = %d, want 409", w.Code)
	}
	if body := decodeBody(t, w); body["code"] != ErrCodeAlreadyResolved {
		t.Fatalf("double decision: code = %v", body["code"])
	}
}

func TestScheduleConsultation(t *testing.T) {
	h := New(stubAccountSvc{}, stubVehicleSvc{}, stubConsultSvc{})
	r := mountAll(h, "admin-1", domain.RoleAdmin)

	w := doJSON(t, r, http.MethodPut, "/admin/consultations/r1/schedule", ScheduleRequest{Date: "2026-09-02", Time: "10:00"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["preferred_time"] != "10:00" {
		t.Fatalf("slot not echoed: %v", body)
	}

	w = doJSON(t, r, http.MethodPut, "/admin/consultations/r1/schedule", map[string]string{"date": "2026-09-02"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing time: status = %d, want 400", w.Code)
	}
}

func TestConsultationCalendar(t *testing.T) {
	h := New(stubAccountSvc{}, stubVehicleSvc{}, stubConsultSvc{calendarFn: func(_ context.Context, date string) ([]domain.ConsultationRequest, []repo.DateStatusCount, error) {
		if date != "2026-09-01" {
			t.Fatalf("service saw date %q", date)
		}
		return []domain.ConsultationRequest{{ID: "r1"}},
			[]repo.DateStatusCount{{Date: "2026-09-01", Status: domain.StatusPending, Count: 1}}, nil
	}})
	r := mountAll(h, "admin-1", domain.RoleAdmin)

	w := doJSON(t, r, http.MethodGet, "/admin/consultations/calendar?date=2026-09-01", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["date"] != "2026-09-01" {
		t.Fatalf("date not echoed: %v", body)
	}
	if sched, _ := body["schedule"].([]any); len(sched) != 1 {
		t.Fatalf("schedule missing: %v", body)
	}
	if counts, _ := body["counts"].([]any); len(counts) != 1 {
		t.Fatalf("counts missing: %v", body)
	}

	// malformed date
	h = New(stubAccountSvc{}, stubVehicleSvc{}, stubConsultSvc{calendarFn: func(context.Context, string) ([]domain.ConsultationRequest, []repo.DateStatusCount, error) {
		return nil, nil, services.ErrInvalidSlot
	}})
	r = mountAll(h, "admin-1", domain.RoleAdmin)
	w = doJSON(t, r, http.MethodGet, "/admin/consultations/calendar?date=bogus", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad date: status = %d, want 400", w.Code)
	}
}

// ---------- integration: real DB, idempotent replay + ETag ----------

func newMarketDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:consult_handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.User{}, &domain.VerificationCode{}, &domain.Vehicle{},
		&domain.ConsultationRequest{}, &domain.Idempotency{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Shims proxying the repo free functions, mirroring the router wiring.
type consultRepoHT struct{}

func (consultRepoHT) CreateConsultation(ctx context.Context, db *gorm.DB, r *domain.ConsultationRequest) (*domain.ConsultationRequest, error) {
	return repo.CreateConsultation(ctx, db, r)
}

func (consultRepoHT) GetConsultation(ctx context.Context, db *gorm.DB, id string) (*domain.ConsultationRequest, error) {
	return repo.GetConsultation(ctx, db, id)
}

func (consultRepoHT) CountPendingByUserVehicle(ctx context.Context, db *gorm.DB, userID, vehicleID string) (int64, error) {
	return repo.CountPendingByUserVehicle(ctx, db, userID, vehicleID)
}

func (consultRepoHT) CountBySlot(ctx context.Context, db *gorm.DB, vehicleID, date, clock string) (int64, error) {
	return repo.CountBySlot(ctx, db, vehicleID, date, clock)
}

func (consultRepoHT) ListConsultations(ctx context.Context, db *gorm.DB) ([]domain.ConsultationRequest, error) {
	return repo.ListConsultations(ctx, db)
}

func (consultRepoHT) ListConsultationsByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.ConsultationRequest, error) {
	return repo.ListConsultationsByUser(ctx, db, userID)
}

func (consultRepoHT) ListConsultationsByDate(ctx context.Context, db *gorm.DB, date string) ([]domain.ConsultationRequest, error) {
	return repo.ListConsultationsByDate(ctx, db, date)
}

func (consultRepoHT) CountConsultationsByDate(ctx context.Context, db *gorm.DB) ([]repo.DateStatusCount, error) {
	return repo.CountConsultationsByDate(ctx, db)
}

func (consultRepoHT) UpdateConsultationStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	return repo.UpdateConsultationStatus(ctx, db, id, status)
}

func (consultRepoHT) UpdateConsultationSlot(ctx context.Context, db *gorm.DB, id, date, clock string) error {
	return repo.UpdateConsultationSlot(ctx, db, id, date, clock)
}

type vehicleReaderHT struct{}

func (vehicleReaderHT) GetVehicle(ctx context.Context, db *gorm.DB, id string) (*domain.Vehicle, error) {
	return repo.GetVehicle(ctx, db, id)
}

type userReaderHT struct{}

func (userReaderHT) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}

func TestCreateConsultation_IdempotentReplay(t *testing.T) {
	db := newMarketDB(t)
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, db, &domain.User{
		Name: "홍길동", Phone: "01012345678", Email: "hong@example.com",
		PasswordSalt: "s", PasswordHash: "h", Role: domain.RoleUser,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	v, err := repo.CreateVehicle(ctx, db, &domain.Vehicle{
		Name: "그랜저", Manufacturer: "현대", Year: 2021, FuelType: "가솔린",
		Transmission: "자동", Price: 2350,
		SellerID: u.ID, SellerName: u.Name, SellerPhone: u.Phone,
	})
	if err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}

	consultSvc := services.NewConsultationService(db, consultRepoHT{}, vehicleReaderHT{}, userReaderHT{}, nil)
	h := New(stubAccountSvc{meFn: func(context.Context, string) (*domain.User, error) {
		return u, nil
	}}, stubVehicleSvc{}, consultSvc)
	r := mountAll(h, u.ID, domain.RoleUser)

	payload := CreateConsultationRequest{VehicleID: v.ID, Date: "2026-09-01", Time: "14:05", Kind: domain.KindBuy}
	hdr := map[string]string{"Idempotency-Key": "intake-1"}

	w1 := doJSON(t, r, http.MethodPost, "/consultations", payload, hdr)
	if w1.Code != http.StatusCreated {
		t.Fatalf("first: status = %d, want 201; body %s", w1.Code, w1.Body.String())
	}
	first := decodeBody(t, w1)
	if first["preferred_time"] != "14:10" {
		t.Fatalf("slot not snapped: %v", first["preferred_time"])
	}

	// Same key: replay the stored resource instead of tripping the guards.
	w2 := doJSON(t, r, http.MethodPost, "/consultations", payload, hdr)
	if w2.Code != http.StatusCreated {
		t.Fatalf("replay: status = %d, want 201; body %s", w2.Code, w2.Body.String())
	}
	if w2.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay header missing")
	}
	second := decodeBody(t, w2)
	if second["id"] != first["id"] {
		t.Fatalf("replay returned a different resource: %v vs %v", second["id"], first["id"])
	}

	var rows int64
	if err := db.Table("consultation_requests").Count(&rows).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("rows = %d, want 1", rows)
	}

	// Without the key the duplicate guard fires.
	w3 := doJSON(t, r, http.MethodPost, "/consultations", payload, nil)
	if w3.Code != http.StatusConflict {
		t.Fatalf("no key: status = %d, want 409; body %s", w3.Code, w3.Body.String())
	}
}

func TestListMyConsultations_ETag(t *testing.T) {
	db := newMarketDB(t)
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, db, &domain.User{
		Name: "홍길동", Phone: "01012345678", Email: "etag@example.com",
		PasswordSalt: "s", PasswordHash: "h", Role: domain.RoleUser,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := repo.CreateConsultation(ctx, db, &domain.ConsultationRequest{
		UserID: u.ID, UserName: u.Name, UserPhone: u.Phone,
		VehicleID: "v1", VehicleName: "그랜저",
		PreferredDate: "2026-09-01", PreferredTime: "14:10", Kind: domain.KindBuy,
	}); err != nil {
		t.Fatalf("seed request: %v", err)
	}

	consultSvc := services.NewConsultationService(db, consultRepoHT{}, vehicleReaderHT{}, userReaderHT{}, nil)
	h := New(stubAccountSvc{}, stubVehicleSvc{}, consultSvc)
	r := mountAll(h, u.ID, domain.RoleUser)

	w1 := doJSON(t, r, http.MethodGet, "/me/consultations", nil, nil)
	if w1.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w1.Code, w1.Body.String())
	}
	etag := w1.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("no ETag header")
	}
	body := decodeBody(t, w1)
	if buy, _ := body["buy"].([]any); len(buy) != 1 {
		t.Fatalf("buy bucket wrong: %v", body)
	}

	w2 := doJSON(t, r, http.MethodGet, "/me/consultations", nil, map[string]string{"If-None-Match": etag})
	if w2.Code != http.StatusNotModified {
		t.Fatalf("conditional: status = %d, want 304", w2.Code)
	}
}
