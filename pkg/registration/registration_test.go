package registration

import (
	stdctx "context"
	"errors"
	"testing"
	"time"

	"votingcore/pkg/config"
	"votingcore/pkg/context"
	"votingcore/pkg/metrics"
	"votingcore/pkg/model"
	"votingcore/pkg/storage"
)

func newTestContext() *context.CoreContext {
	return context.NewContext(storage.NewMemory(), &config.Config{Cores: 1}, metrics.NewRecorder())
}

func validCitizen(dob time.Time) *CitizenRecord {
	return &CitizenRecord{
		CitizenshipNumber: "ABCD12345678",
		FullName:          "Hari Thapa",
		DateOfBirth:       dob,
		Constituency:      model.Lalitpur,
		IsEligible:        true,
	}
}

func TestRegisterElectorSucceedsAndStoresConstituencyFromCitizenRecord(t *testing.T) {
	ctx := newTestContext()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	dob := now.AddDate(-30, 0, 0)

	elector, err := RegisterElector(ctx, "ABCD12345678", "Hari Thapa", dob, "Str0ng!Pass", "Str0ng!Pass", validCitizen(dob), now)
	if err != nil {
		t.Fatalf("RegisterElector: %v", err)
	}
	if elector.Constituency != model.Lalitpur {
		t.Fatalf("expected constituency from citizen record, got %s", elector.Constituency)
	}
	if elector.PasswordHash == "Str0ng!Pass" {
		t.Fatalf("password stored in plaintext")
	}

	stored, err := ctx.Storage.GetElectorByCitizenshipHash(stdctx.Background(), HashCitizenshipNumber("ABCD12345678"))
	if err != nil || stored.ElectorID != elector.ElectorID {
		t.Fatalf("elector not retrievable by citizenship hash: %v", err)
	}
}

func TestRegisterElectorRejectsWeakPassword(t *testing.T) {
	ctx := newTestContext()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	dob := now.AddDate(-30, 0, 0)

	_, err := RegisterElector(ctx, "ABCD12345678", "Hari Thapa", dob, "weak", "weak", validCitizen(dob), now)
	if !errors.Is(err, model.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestRegisterElectorRejectsMismatchedConfirmation(t *testing.T) {
	ctx := newTestContext()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	dob := now.AddDate(-30, 0, 0)

	_, err := RegisterElector(ctx, "ABCD12345678", "Hari Thapa", dob, "Str0ng!Pass", "Different!9", validCitizen(dob), now)
	if !errors.Is(err, model.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestRegisterElectorRejectsUnderage(t *testing.T) {
	ctx := newTestContext()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	dob := now.AddDate(-16, 0, 0)

	_, err := RegisterElector(ctx, "ABCD12345678", "Hari Thapa", dob, "Str0ng!Pass", "Str0ng!Pass", validCitizen(dob), now)
	if !errors.Is(err, model.ErrUnderage) {
		t.Fatalf("expected ErrUnderage, got %v", err)
	}
}

func TestRegisterElectorRejectsNameMismatchAgainstCitizenRecord(t *testing.T) {
	ctx := newTestContext()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	dob := now.AddDate(-30, 0, 0)
	citizen := validCitizen(dob)
	citizen.FullName = "Someone Else"

	_, err := RegisterElector(ctx, "ABCD12345678", "Hari Thapa", dob, "Str0ng!Pass", "Str0ng!Pass", citizen, now)
	if !errors.Is(err, model.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
}

func TestRegisterElectorRejectsIneligibleCitizen(t *testing.T) {
	ctx := newTestContext()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	dob := now.AddDate(-30, 0, 0)
	citizen := validCitizen(dob)
	citizen.IsEligible = false

	_, err := RegisterElector(ctx, "ABCD12345678", "Hari Thapa", dob, "Str0ng!Pass", "Str0ng!Pass", citizen, now)
	if !errors.Is(err, model.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
}

func TestRegisterElectorRejectsDuplicateCitizenshipNumber(t *testing.T) {
	ctx := newTestContext()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	dob := now.AddDate(-30, 0, 0)

	if _, err := RegisterElector(ctx, "ABCD12345678", "Hari Thapa", dob, "Str0ng!Pass", "Str0ng!Pass", validCitizen(dob), now); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	_, err := RegisterElector(ctx, "ABCD12345678", "Hari Thapa", dob, "Str0ng!Pass", "Str0ng!Pass", validCitizen(dob), now)
	if !errors.Is(err, model.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestAuthenticateElectorRoundTrip(t *testing.T) {
	ctx := newTestContext()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	dob := now.AddDate(-30, 0, 0)

	elector, err := RegisterElector(ctx, "ABCD12345678", "Hari Thapa", dob, "Str0ng!Pass", "Str0ng!Pass", validCitizen(dob), now)
	if err != nil {
		t.Fatalf("RegisterElector: %v", err)
	}

	if _, err := AuthenticateElector(ctx, elector.ElectorID, "Str0ng!Pass", now); err != nil {
		t.Fatalf("AuthenticateElector: %v", err)
	}

	if _, err := AuthenticateElector(ctx, elector.ElectorID, "wrong-password", now); !errors.Is(err, model.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}

	if _, err := AuthenticateElector(ctx, "VTR-DEADBEEF", "Str0ng!Pass", now); !errors.Is(err, model.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown elector, got %v", err)
	}

	if _, err := AuthenticateElector(ctx, "not-a-valid-id", "Str0ng!Pass", now); !errors.Is(err, model.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for malformed id, got %v", err)
	}
}

func TestAuthenticateAdminRoundTrip(t *testing.T) {
	ctx := newTestContext()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	hash, err := model.HashPassword("Adm1n!Pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	if err := AuthenticateAdmin(ctx, "chief-custodian", "Adm1n!Pass", hash, now); err != nil {
		t.Fatalf("AuthenticateAdmin: %v", err)
	}
	if err := AuthenticateAdmin(ctx, "chief-custodian", "wrong", hash, now); !errors.Is(err, model.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
