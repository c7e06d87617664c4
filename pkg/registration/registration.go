// Package registration implements register_elector and the voter/admin
// login checks of spec.md §3/§7, grounded on the reference AuthService's
// register_voter/login_voter/login_admin methods and the validators of
// app/utils/validators.py. Citizenship-number and voter-ID formats, the
// password-strength rule, and the minimum-age check all mirror those
// validators field for field.
//
// Eligibility verification depends on an external citizen registry - in
// the reference implementation a separate "citizens" collection queried by
// Citizen.verify_eligibility. That registry is not part of the storage
// contract this core depends on (pkg/storage holds elections, electors,
// tokens, ballots and the audit chain, never a census), so registration
// here takes an already-resolved CitizenRecord rather than looking one up
// itself. Resolving that record - and deciding how to reach a citizen
// registry at all - is the caller's concern, the same way the HTTP surface
// and email are.
package registration

import (
	stdctx "context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"votingcore/pkg/audit"
	"votingcore/pkg/context"
	"votingcore/pkg/metrics"
	"votingcore/pkg/model"
	"votingcore/pkg/principal"
)

var (
	citizenshipNumberPattern = regexp.MustCompile(`^[A-Za-z0-9]{8,15}$`)
	fullNamePattern          = regexp.MustCompile(`^[A-Za-z\s\-']+$`)
	electorIDPattern         = regexp.MustCompile(`^VTR-[A-F0-9]{8}$`)
	upperPattern             = regexp.MustCompile(`[A-Z]`)
	lowerPattern             = regexp.MustCompile(`[a-z]`)
	digitPattern             = regexp.MustCompile(`\d`)
	specialPattern           = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)

	minimumAge = 18
	maximumAge = 120
)

// CitizenRecord is the caller-resolved result of an external citizen
// registry lookup, equivalent to the reference Citizen document.
type CitizenRecord struct {
	CitizenshipNumber string
	FullName          string
	DateOfBirth       time.Time
	Constituency      model.Constituency
	IsEligible        bool
}

// ValidatePasswordStrength implements validate_password: minimum length,
// and at least one uppercase, lowercase, digit, and special character.
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return model.ErrWeakPassword
	}
	if !upperPattern.MatchString(password) || !lowerPattern.MatchString(password) ||
		!digitPattern.MatchString(password) || !specialPattern.MatchString(password) {
		return model.ErrWeakPassword
	}
	return nil
}

// validateFullName implements validate_full_name.
func validateFullName(fullName string) error {
	if len(fullName) < 2 || len(fullName) > 100 {
		return model.ErrInvalidFormat
	}
	if !fullNamePattern.MatchString(fullName) {
		return model.ErrInvalidFormat
	}
	return nil
}

// validateCitizenshipNumber implements validate_citizenship_number.
func validateCitizenshipNumber(citizenshipNumber string) error {
	if !citizenshipNumberPattern.MatchString(citizenshipNumber) {
		return model.ErrInvalidFormat
	}
	return nil
}

// validateAge implements validate_date_of_birth's age check, with dob
// already parsed by the caller.
func validateAge(dob, now time.Time) error {
	age := now.Year() - dob.Year()
	nowMonth, nowDay := now.Month(), now.Day()
	dobMonth, dobDay := dob.Month(), dob.Day()
	if nowMonth < dobMonth || (nowMonth == dobMonth && nowDay < dobDay) {
		age--
	}
	if age < minimumAge {
		return model.ErrUnderage
	}
	if age > maximumAge {
		return model.ErrDatesInvalid
	}
	return nil
}

// HashCitizenshipNumber produces the deterministic lookup key stored as
// Elector.CitizenshipHash. It must be deterministic (unlike the salted
// bcrypt password hash) because the store indexes electors by this value.
func HashCitizenshipNumber(citizenshipNumber string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(citizenshipNumber)))
	return hex.EncodeToString(sum[:])
}

// RegisterElector implements register_voter: validate every field in the
// reference's order, reject a citizenship number already on file, verify
// the caller-supplied citizen record against the submitted identity, and
// persist a new Elector in the citizen's constituency.
func RegisterElector(ctx *context.CoreContext, citizenshipNumber, fullName string, dateOfBirth time.Time, password, confirmPassword string, citizen *CitizenRecord, now time.Time) (*model.Elector, error) {
	var elector *model.Elector
	err := ctx.Recorder.Record("Registration_RegisterElector", metrics.MLogic, func() error {
		if err := validateCitizenshipNumber(citizenshipNumber); err != nil {
			return err
		}
		if err := validateFullName(fullName); err != nil {
			return err
		}
		if err := validateAge(dateOfBirth, now); err != nil {
			return err
		}
		if err := ValidatePasswordStrength(password); err != nil {
			return err
		}
		if password != confirmPassword {
			return model.ErrInvalidFormat
		}

		citizenshipHash := HashCitizenshipNumber(citizenshipNumber)
		if _, gerr := ctx.Storage.GetElectorByCitizenshipHash(stdctx.Background(), citizenshipHash); gerr == nil {
			return model.ErrAlreadyRegistered
		}

		if citizen == nil || !strings.EqualFold(citizen.FullName, fullName) ||
			!sameDay(citizen.DateOfBirth, dateOfBirth) || !citizen.IsEligible {
			return model.ErrNotEligible
		}
		if !model.IsValidConstituency(citizen.Constituency) {
			return model.ErrInvalidFormat
		}

		passwordHash, herr := model.HashPassword(password)
		if herr != nil {
			return fmt.Errorf("registration: hashing password: %w", herr)
		}

		elector = model.NewElector(model.NewElectorID(), fullName, citizenshipHash, passwordHash, citizen.Constituency)
		if perr := ctx.Storage.PutElector(stdctx.Background(), elector); perr != nil {
			return fmt.Errorf("registration: storing elector: %w", perr)
		}

		who := principal.FromElector(elector.ElectorID)
		if aerr := audit.Log(ctx, audit.CategoryAuth, audit.EventRegister, "elector registered", who.ID(), who.Kind().String(), "", "", nil, now); aerr != nil {
			return fmt.Errorf("registration: logging audit entry: %w", aerr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return elector, nil
}

// AuthenticateElector implements login_voter: validate the elector ID
// format, then check the stored bcrypt hash. A bad ID format, an unknown
// ID, and a wrong password all surface the same error so a caller cannot
// distinguish "no such elector" from "wrong password".
func AuthenticateElector(ctx *context.CoreContext, electorID, password string, now time.Time) (*model.Elector, error) {
	var elector *model.Elector
	err := ctx.Recorder.Record("Registration_AuthenticateElector", metrics.MLogic, func() error {
		if !electorIDPattern.MatchString(electorID) {
			return logFailedLogin(ctx, electorID, now)
		}
		e, gerr := ctx.Storage.GetElector(stdctx.Background(), electorID)
		if gerr != nil || !model.VerifyPassword(e.PasswordHash, password) {
			return logFailedLogin(ctx, electorID, now)
		}
		elector = e

		who := principal.FromElector(elector.ElectorID)
		return auditLog(ctx, audit.EventLoginSuccess, "elector login", who, now)
	})
	if err != nil {
		return nil, err
	}
	return elector, nil
}

// AuthenticateAdmin implements login_admin against an admin ID and bcrypt
// hash resolved by the caller, since custodian/admin accounts have no
// dedicated storage collection of their own (see pkg/principal).
func AuthenticateAdmin(ctx *context.CoreContext, adminID, password, storedHash string, now time.Time) error {
	return ctx.Recorder.Record("Registration_AuthenticateAdmin", metrics.MLogic, func() error {
		who := principal.FromAdmin(adminID)
		if adminID == "" || !model.VerifyPassword(storedHash, password) {
			if aerr := auditLog(ctx, audit.EventLoginFailed, "admin login failed", who, now); aerr != nil {
				return aerr
			}
			return model.ErrInvalidCredentials
		}
		return auditLog(ctx, audit.EventLoginSuccess, "admin login", who, now)
	})
}

func logFailedLogin(ctx *context.CoreContext, electorID string, now time.Time) error {
	who := principal.FromElector(electorID)
	if aerr := auditLog(ctx, audit.EventLoginFailed, "elector login failed", who, now); aerr != nil {
		return aerr
	}
	return model.ErrInvalidCredentials
}

func auditLog(ctx *context.CoreContext, eventType, message string, who principal.Principal, now time.Time) error {
	if err := audit.Log(ctx, audit.CategoryAuth, eventType, message, who.ID(), who.Kind().String(), "", "", nil, now); err != nil {
		return fmt.Errorf("registration: logging audit entry: %w", err)
	}
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
