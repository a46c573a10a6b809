package services

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/carmoa/go-carmarket-backend/internal/domain"
	"github.com/carmoa/go-carmarket-backend/internal/repo"
)

type accountRepoShim struct{}

func (accountRepoShim) CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	return repo.CreateUser(ctx, db, u)
}
func (accountRepoShim) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}
func (accountRepoShim) GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return repo.GetUserByEmail(ctx, db, email)
}
func (accountRepoShim) UpdatePushToken(ctx context.Context, db *gorm.DB, id, token string) error {
	return repo.UpdatePushToken(ctx, db, id, token)
}
func (accountRepoShim) DeleteUser(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteUser(ctx, db, id)
}
func (accountRepoShim) CreateVerificationCode(ctx context.Context, db *gorm.DB, phone, code string, ttl time.Duration) (*domain.VerificationCode, error) {
	return repo.CreateVerificationCode(ctx, db, phone, code, ttl)
}
func (accountRepoShim) LatestVerificationCode(ctx context.Context, db *gorm.DB, phone string, now time.Time) (*domain.VerificationCode, error) {
	return repo.LatestVerificationCode(ctx, db, phone, now)
}
func (accountRepoShim) ConfirmVerificationCode(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	return repo.ConfirmVerificationCode(ctx, db, id, now)
}
func (accountRepoShim) HasConfirmedVerification(ctx context.Context, db *gorm.DB, phone string, window time.Duration, now time.Time) (bool, error) {
	return repo.HasConfirmedVerification(ctx, db, phone, window, now)
}

type vehicleRemoverShim struct{}

func (vehicleRemoverShim) DeleteVehiclesBySeller(ctx context.Context, db *gorm.DB, sellerID string) (int64, error) {
	return repo.DeleteVehiclesBySeller(ctx, db, sellerID)
}

// fakeSMS records dispatched codes.
type fakeSMS struct {
	phones []string
	codes  []string
	err    error
}

func (f *fakeSMS) SendCode(ctx context.Context, phone, code string) error {
	f.phones = append(f.phones, phone)
	f.codes = append(f.codes, code)
	return f.err
}

func newAccountSvc(t *testing.T, sms *fakeSMS) (*AccountService, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:accountsvc?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.VerificationCode{}, &domain.Vehicle{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	db.Exec("DELETE FROM users")
	db.Exec("DELETE FROM verification_codes")
	db.Exec("DELETE FROM vehicles")

	var sender CodeSender
	if sms != nil {
		sender = sms
	}
	return NewAccountService(db, accountRepoShim{}, vehicleRemoverShim{}, sender, "test-secret"), db
}

// verifyAndRegister drives the happy registration path.
func verifyAndRegister(t *testing.T, svc *AccountService, sms *fakeSMS, phone, email string) (*domain.User, string) {
	t.Helper()
	ctx := context.Background()
	if err := svc.StartPhoneVerification(ctx, phone); err != nil {
		t.Fatalf("StartPhoneVerification: %v", err)
	}
	code := sms.codes[len(sms.codes)-1]
	if err := svc.ConfirmPhoneVerification(ctx, phone, code); err != nil {
		t.Fatalf("ConfirmPhoneVerification: %v", err)
	}
	u, token, err := svc.Register(ctx, RegisterInput{
		Name: "김철수", Phone: phone, Email: email, Password: "secret-pass-1",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return u, token
}

func TestPhoneVerificationFlow(t *testing.T) {
	sms := &fakeSMS{}
	svc, _ := newAccountSvc(t, sms)
	ctx := context.Background()

	if err := svc.StartPhoneVerification(ctx, "010-1234-5678"); err != nil {
		t.Fatalf("StartPhoneVerification: %v", err)
	}
	if len(sms.codes) != 1 || len(sms.codes[0]) != 6 {
		t.Fatalf("expected one 6-digit code, got %v", sms.codes)
	}
	// Dashes are normalized before storage and dispatch.
	if sms.phones[0] != "01012345678" {
		t.Fatalf("phone = %q, want normalized", sms.phones[0])
	}

	if err := svc.ConfirmPhoneVerification(ctx, "01012345678", "000000"); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}
	if err := svc.ConfirmPhoneVerification(ctx, "01012345678", sms.codes[0]); err != nil {
		t.Fatalf("ConfirmPhoneVerification: %v", err)
	}

	// Unknown phone has no live code.
	if err := svc.ConfirmPhoneVerification(ctx, "01099998888", "123456"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}

	// Malformed numbers are rejected up front.
	if err := svc.StartPhoneVerification(ctx, "12345"); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
}

func TestStartPhoneVerification_SMSFailureIsBestEffort(t *testing.T) {
	sms := &fakeSMS{err: errors.New("gateway down")}
	svc, _ := newAccountSvc(t, sms)

	if err := svc.StartPhoneVerification(context.Background(), "01012345678"); err != nil {
		t.Fatalf("dispatch failure must not fail issuance: %v", err)
	}
	// Code was stored despite dispatch failure and remains redeemable.
	if err := svc.ConfirmPhoneVerification(context.Background(), "01012345678", sms.codes[0]); err != nil {
		t.Fatalf("ConfirmPhoneVerification: %v", err)
	}
}

func TestRegister(t *testing.T) {
	sms := &fakeSMS{}
	svc, _ := newAccountSvc(t, sms)
	ctx := context.Background()

	// Registration requires a confirmed verification.
	if _, _, err := svc.Register(ctx, RegisterInput{
		Name: "김철수", Phone: "01012345678", Email: "kim@example.com", Password: "secret-pass-1",
	}); !errors.Is(err, ErrPhoneNotVerified) {
		t.Fatalf("expected ErrPhoneNotVerified, got %v", err)
	}

	u, token := verifyAndRegister(t, svc, sms, "01012345678", "kim@example.com")
	if u.Role != domain.RoleUser {
		t.Fatalf("role = %q, want user", u.Role)
	}
	if u.PhoneVerifiedAt == nil {
		t.Fatalf("PhoneVerifiedAt not set")
	}
	if u.PasswordHash == "" || u.PasswordHash == "secret-pass-1" {
		t.Fatalf("password stored badly: %q", u.PasswordHash)
	}

	// The issued token carries subject and role.
	parsed, err := jwt.Parse(token, func(tk *jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token parse: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"] != u.ID || claims["role"] != domain.RoleUser {
		t.Fatalf("claims = %v", claims)
	}

	// Duplicate email.
	if err := svc.StartPhoneVerification(ctx, "01087654321"); err != nil {
		t.Fatalf("StartPhoneVerification: %v", err)
	}
	if err := svc.ConfirmPhoneVerification(ctx, "01087654321", sms.codes[len(sms.codes)-1]); err != nil {
		t.Fatalf("ConfirmPhoneVerification: %v", err)
	}
	if _, _, err := svc.Register(ctx, RegisterInput{
		Name: "이영희", Phone: "01087654321", Email: "KIM@example.com", Password: "secret-pass-2",
	}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	// Weak password.
	if _, _, err := svc.Register(ctx, RegisterInput{
		Name: "이영희", Phone: "01087654321", Email: "lee@example.com", Password: "short",
	}); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	sms := &fakeSMS{}
	svc, _ := newAccountSvc(t, sms)
	ctx := context.Background()

	u, _ := verifyAndRegister(t, svc, sms, "01012345678", "kim@example.com")

	got, token, err := svc.Login(ctx, "Kim@Example.com", "secret-pass-1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != u.ID || token == "" {
		t.Fatalf("unexpected login result: %+v", got)
	}

	if _, _, err := svc.Login(ctx, "kim@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "secret-pass-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestMeAndPushToken(t *testing.T) {
	sms := &fakeSMS{}
	svc, _ := newAccountSvc(t, sms)
	ctx := context.Background()

	u, _ := verifyAndRegister(t, svc, sms, "01012345678", "kim@example.com")

	if err := svc.UpdatePushToken(ctx, u.ID, " device-token "); err != nil {
		t.Fatalf("UpdatePushToken: %v", err)
	}
	got, err := svc.Me(ctx, u.ID)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if got.PushToken != "device-token" {
		t.Fatalf("push token = %q", got.PushToken)
	}

	if err := svc.UpdatePushToken(ctx, "missing", "tok"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := svc.Me(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	sms := &fakeSMS{}
	svc, db := newAccountSvc(t, sms)
	ctx := context.Background()

	u, _ := verifyAndRegister(t, svc, sms, "01012345678", "kim@example.com")

	// The account's listings go with it.
	for i := 0; i < 2; i++ {
		if _, err := repo.CreateVehicle(ctx, db, &domain.Vehicle{
			SellerID: u.ID, SellerName: u.Name, Name: "차량",
			Manufacturer: "Kia", Year: 2020, FuelType: "Diesel",
			Transmission: "Manual", Price: 900,
		}); err != nil {
			t.Fatalf("seed vehicle: %v", err)
		}
	}

	if err := svc.DeleteAccount(ctx, u.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if _, err := svc.Me(ctx, u.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("account should be gone, got %v", err)
	}
	left, err := repo.ListVehiclesBySeller(ctx, db, u.ID)
	if err != nil || len(left) != 0 {
		t.Fatalf("listings should be gone: %d, %v", len(left), err)
	}

	if err := svc.DeleteAccount(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
