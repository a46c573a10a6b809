package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/carmoa/go-carmarket-backend/internal/domain"
	"github.com/carmoa/go-carmarket-backend/internal/registry"
	"github.com/carmoa/go-carmarket-backend/internal/services"
)

func TestCreateVehicle(t *testing.T) {
	var gotSeller services.Seller
	var gotInput services.CreateVehicleInput
	h := New(stubAccountSvc{}, stubVehicleSvc{createFn: func(_ context.Context, seller services.Seller, in services.CreateVehicleInput) (*domain.Vehicle, error) {
		gotSeller, gotInput = seller, in
		return &domain.Vehicle{ID: "v1", Name: in.Name, SellerID: seller.ID}, nil
	}}, stubConsultSvc{})
	r := mountAll(h, "u-42", domain.RoleUser)

	w := doJSON(t, r, http.MethodPost, "/vehicles", CreateVehicleRequest{
		Name:         "그랜저 IG",
		Manufacturer: "현대",
		Year:         2021,
		Mileage:      42000,
		FuelType:     "가솔린",
		Transmission: "자동",
		Price:        2350,
		Location:     "서울",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", w.Code, w.Body.String())
	}
	if gotSeller.ID != "u-42" || gotSeller.Name != "홍길동" {
		t.Fatalf("seller identity not denormalized: %+v", gotSeller)
	}
	if gotInput.Name != "그랜저 IG" || gotInput.Price != 2350 {
		t.Fatalf("input not forwarded: %+v", gotInput)
	}

	// binding failure: price missing
	w = doJSON(t, r, http.MethodPost, "/vehicles", map[string]any{"name": "x"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing fields: status = %d, want 400", w.Code)
	}
}

func TestListVehicles_Pagination(t *testing.T) {
	h := New(stubAccountSvc{}, stubVehicleSvc{listPageFn: func(_ context.Context, page, pageSize int) ([]domain.Vehicle, int64, error) {
		if page != 2 || pageSize != 20 {
			t.Fatalf("service saw page=%d pageSize=%d", page, pageSize)
		}
		return []domain.Vehicle{{ID: "v1"}, {ID: "v2"}}, 45, nil
	}}, stubConsultSvc{})
	r := mountAll(h, "", "")

	w := doJSON(t, r, http.MethodGet, "/vehicles?page=2", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	p, _ := body["pagination"].(map[string]any)
	if p == nil {
		t.Fatalf("pagination missing: %v", body)
	}
	if p["total"] != float64(45) || p["total_pages"] != float64(3) || p["has_next"] != true {
		t.Fatalf("pagination math wrong: %v", p)
	}
}

func TestGetVehicle_Labels(t *testing.T) {
	h := New(stubAccountSvc{}, stubVehicleSvc{}, stubConsultSvc{})
	r := mountAll(h, "", "")

	w := doJSON(t, r, http.MethodGet, "/vehicles/v1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["price_label"] != "2,350만원" {
		t.Fatalf("price_label = %v", body["price_label"])
	}
	if body["seller_phone_label"] != "010-1234-5678" {
		t.Fatalf("seller_phone_label = %v", body["seller_phone_label"])
	}
}

func TestGetVehicle_NotFound(t *testing.T) {
	h := New(stubAccountSvc{}, stubVehicleSvc{getFn: func(context.Context, string) (*domain.Vehicle, error) {
		return nil, services.ErrVehicleNotFound
	}}, stubConsultSvc{})
	r := mountAll(h, "", "")

	w := doJSON(t, r, http.MethodGet, "/vehicles/missing", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestDeleteVehicle(t *testing.T) {
	var gotCaller, gotRole string
	h := New(stubAccountSvc{}, stubVehicleSvc{deleteFn: func(_ context.Context, id, callerID, role string) error {
		gotCaller, gotRole = callerID, role
		return nil
	}}, stubConsultSvc{})
	r := mountAll(h, "u-42", domain.RoleAdmin)

	w := doJSON(t, r, http.MethodDelete, "/vehicles/v1", nil, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if gotCaller != "u-42" || gotRole != domain.RoleAdmin {
		t.Fatalf("service saw (%q, %q)", gotCaller, gotRole)
	}

	// foreign listing, plain user
	h = New(stubAccountSvc{}, stubVehicleSvc{deleteFn: func(context.Context, string, string, string) error {
		return services.ErrForbidden
	}}, stubConsultSvc{})
	r = mountAll(h, "someone-else", domain.RoleUser)
	w = doJSON(t, r, http.MethodDelete, "/vehicles/v1", nil, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("foreign delete: status = %d, want 403", w.Code)
	}
}

func TestListMyVehicles_EmptyIsArray(t *testing.T) {
	h := New(stubAccountSvc{}, stubVehicleSvc{}, stubConsultSvc{})
	r := mountAll(h, "u-42", domain.RoleUser)

	w := doJSON(t, r, http.MethodGet, "/me/vehicles", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	items, isArray := body["vehicles"].([]any)
	if !isArray {
		t.Fatalf("vehicles is not an array: %s", w.Body.String())
	}
	if len(items) != 0 {
		t.Fatalf("expected empty page, got %d", len(items))
	}
}

func TestLookupVehicle(t *testing.T) {
	h := New(stubAccountSvc{}, stubVehicleSvc{lookupFn: func(_ context.Context, plate, owner string) (*registry.Detail, error) {
		if plate != "12가3456" || owner != "홍길동" {
			t.Fatalf("lookup saw (%q, %q)", plate, owner)
		}
		return &registry.Detail{Name: "그랜저", Manufacturer: "현대", Year: 2021}, nil
	}}, stubConsultSvc{})
	r := mountAll(h, "admin-1", domain.RoleAdmin)

	w := doJSON(t, r, http.MethodPost, "/admin/vehicles/lookup", RegistryLookupRequest{Plate: "12가3456", OwnerName: "홍길동"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}

	// malformed plate maps to 400
	h = New(stubAccountSvc{}, stubVehicleSvc{lookupFn: func(context.Context, string, string) (*registry.Detail, error) {
		return nil, services.ErrInvalidPlate
	}}, stubConsultSvc{})
	r = mountAll(h, "admin-1", domain.RoleAdmin)
	w = doJSON(t, r, http.MethodPost, "/admin/vehicles/lookup", RegistryLookupRequest{Plate: "nope", OwnerName: "홍길동"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad plate: status = %d, want 400", w.Code)
	}

	// registry outage maps to 502
	h = New(stubAccountSvc{}, stubVehicleSvc{lookupFn: func(context.Context, string, string) (*registry.Detail, error) {
		return nil, services.ErrRegistryUnavailable
	}}, stubConsultSvc{})
	r = mountAll(h, "admin-1", domain.RoleAdmin)
	w = doJSON(t, r, http.MethodPost, "/admin/vehicles/lookup", RegistryLookupRequest{Plate: "12가3456", OwnerName: "홍길동"}, nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("outage: status = %d, want 502", w.Code)
	}
	if body := decodeBody(t, w); body["code"] != ErrCodeLookupFailed {
		t.Fatalf("code = %v, want %s", body["code"], ErrCodeLookupFailed)
	}
}

func TestCreateVehicleFromRegistry(t *testing.T) {
	var gotInput services.CreateFromRegistryInput
	h := New(stubAccountSvc{}, stubVehicleSvc{fromRegFn: func(_ context.Context, seller services.Seller, in services.CreateFromRegistryInput) (*domain.Vehicle, error) {
		gotInput = in
		return &domain.Vehicle{ID: "v1", Plate: in.Plate, SellerID: seller.ID}, nil
	}}, stubConsultSvc{})
	r := mountAll(h, "admin-1", domain.RoleAdmin)

	w := doJSON(t, r, http.MethodPost, "/admin/vehicles/registry", RegistryCreateRequest{
		Plate: "12가3456", OwnerName: "홍길동", Price: 1990, Mileage: 30000,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", w.Code, w.Body.String())
	}
	if gotInput.Plate != "12가3456" || gotInput.Price != 1990 {
		t.Fatalf("input not forwarded: %+v", gotInput)
	}
}
