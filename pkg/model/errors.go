package model

import "errors"

// Input errors.
var (
	ErrInvalidId     = errors.New("invalid id")
	ErrInvalidFormat = errors.New("invalid format")
	ErrWeakPassword  = errors.New("password does not meet strength requirements")
	ErrDatesInvalid  = errors.New("start date must precede end date")
)

// Eligibility errors.
var (
	ErrNotEligible       = errors.New("elector is not eligible")
	ErrAlreadyRegistered = errors.New("elector is already registered")
	ErrUnderage          = errors.New("elector does not meet the minimum age")
)

// Authentication errors.
var (
	ErrInvalidCredentials = errors.New("invalid id or password")
)

// State errors.
var (
	ErrElectionNotStarted = errors.New("election has not started")
	ErrElectionEnded      = errors.New("election has ended")
	ErrAlreadyVoted       = errors.New("elector has already voted in this election")
)

// Token errors.
var (
	ErrTokenNotFound          = errors.New("token not found")
	ErrTokenWrongElection     = errors.New("token does not belong to this election")
	ErrTokenWrongConstituency = errors.New("token constituency does not match elector")
	ErrTokenAlreadyUsed       = errors.New("token already used for this ballot kind")
)

// Crypto errors.
var (
	ErrSecretTooLarge     = errors.New("secret is too large for the field")
	ErrInsufficientShares = errors.New("insufficient shares to reconstruct secret")
	ErrShareCorruption    = errors.New("reconstructed secret does not match expected length")
	ErrInvalidShares      = errors.New("shares did not reconstruct a valid key bundle")
	ErrHybridMismatch     = errors.New("rsa and kyber paths disagree on the data key")
	ErrCiphertextTampered = errors.New("ciphertext failed authentication")
)

// Integrity errors.
var (
	ErrReceiptIntegrityFailed = errors.New("receipt failed integrity verification")
	ErrPartialCast            = errors.New("only one of the two ballots was durably cast")
)

// AuditChainBroken is advisory: it never halts the service, but it must be
// surfaced to administrators with a precise localisation of the break.
type AuditChainBroken struct {
	AtID   string
	Reason string
}

func (e *AuditChainBroken) Error() string {
	return "audit chain broken at entry " + e.AtID + ": " + e.Reason
}
