// Package storage defines the narrow persistence contract the core depends
// on. It is deliberately thin: point lookups, small range scans, an atomic
// set-insert primitive, an atomic CAS-append primitive (for token
// consumption), a monotonic append (for the audit chain), and a typed
// unique-index-violation error. Nothing in this package is tied to any
// particular database engine - see pkg/storage/memory.go for the in-memory
// reference implementation used by every other package's tests.
package storage

import (
	"context"
	"errors"

	"votingcore/pkg/model"
)

// ErrNotFound is returned by point lookups that find no matching record.
var ErrNotFound = errors.New("storage: not found")

// ErrAlreadyExists is the typed unique-index-violation error required by
// spec.md §4.I, returned when an insert would violate a uniqueness
// constraint (election_id, voter_id, token_id).
type ErrAlreadyExists struct {
	Collection string
	Key        string
}

func (e *ErrAlreadyExists) Error() string {
	return "storage: " + e.Collection + " already has an entry for " + e.Key
}

// Store is the full persistence contract. Implementations must make
// ConsumeTokenBallot and AppendAuditEntry linearisable - see spec.md §5.
type Store interface {
	// Elections
	PutElection(ctx context.Context, e *model.Election) error
	// UpdateElection overwrites an existing election document in place (key
	// publication, termination, deactivation). It returns ErrNotFound if no
	// election with this ElectionID exists yet.
	UpdateElection(ctx context.Context, e *model.Election) error
	GetElection(ctx context.Context, electionID string) (*model.Election, error)
	ListElections(ctx context.Context) ([]*model.Election, error)

	// Electors
	PutElector(ctx context.Context, v *model.Elector) error
	GetElector(ctx context.Context, electorID string) (*model.Elector, error)
	GetElectorByCitizenshipHash(ctx context.Context, hash string) (*model.Elector, error)
	AddElectorVotedIn(ctx context.Context, electorID, electionID string) error
	AddElectorTokenIssuedFor(ctx context.Context, electorID, electionID string) error

	// Tokens
	PutToken(ctx context.Context, t *model.VotingToken) error
	GetToken(ctx context.Context, tokenID string) (*model.VotingToken, error)
	// ConsumeTokenBallot atomically appends kind to the token's
	// ballots_used iff it is not already present and the token is not
	// fully used, updating fully_used in the same step. It returns
	// model.ErrTokenAlreadyUsed on conflict.
	ConsumeTokenBallot(ctx context.Context, tokenID string, kind model.BallotKind) error
	ListTokensByElection(ctx context.Context, electionID string) ([]*model.VotingToken, error)

	// Ballots
	AppendBallot(ctx context.Context, b *model.BallotRecord) error
	ListBallotsByElection(ctx context.Context, electionID string) ([]*model.BallotRecord, error)
	ListBallotsByReceipt(ctx context.Context, receiptID string) ([]*model.BallotRecord, error)
	// RecordVerification appends a non-destructive verification event to
	// every ballot record matching receiptID.
	RecordVerification(ctx context.Context, receiptID string) error

	// Audit chain
	// AppendAuditEntry fills in PreviousHash and EntryHash and persists the
	// entry, serialising against concurrent appenders on the chain tail.
	AppendAuditEntry(ctx context.Context, e *model.AuditEntry, computeHash func(prevHash string) (entryHash string)) error
	ListAuditEntries(ctx context.Context, limit int) ([]*model.AuditEntry, error)
}
