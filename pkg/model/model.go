// Package model defines the entities, identifiers, and error taxonomy
// shared by every core component. Nothing in this package talks to
// storage or performs cryptography; it is pure data.
package model

import "time"

// BallotKind distinguishes the two ballots an elector casts.
type BallotKind string

const (
	BallotFPTP BallotKind = "fptp"
	BallotPR   BallotKind = "pr"
)

// Constituency is drawn from a fixed, election-independent finite set.
type Constituency string

const (
	Kathmandu Constituency = "Kathmandu"
	Lalitpur  Constituency = "Lalitpur"
	Bhaktapur Constituency = "Bhaktapur"
)

// ValidConstituencies lists every constituency this deployment recognises.
var ValidConstituencies = []Constituency{Kathmandu, Lalitpur, Bhaktapur}

// IsValidConstituency reports whether c is one of ValidConstituencies.
func IsValidConstituency(c Constituency) bool {
	for _, v := range ValidConstituencies {
		if v == c {
			return true
		}
	}
	return false
}

// DefaultPRSeats is used when an election does not specify pr_seats.
const DefaultPRSeats = 110

// Candidate runs for a single constituency under the FPTP ballot.
type Candidate struct {
	CandidateID  string
	Name         string
	Party        string // display name only, distinct from the Party roster entry
	Constituency Constituency
}

// Party is a roster entry eligible for PR seats.
type Party struct {
	PartyID string
	Name    string
	Symbol  string // optional, display only
}

// Election is created once by an admin; start_at/end_at are mutable only
// via Terminate.
type Election struct {
	ElectionID  string
	Name        string
	Description string
	Constituencies []Constituency
	Candidates  []Candidate
	Parties     []Party
	PRSeats     int

	StartAt time.Time
	EndAt   time.Time

	// PublicKeys is the JSON blob of {rsa public key, kyber pk b64}. The RSA
	// value is base64 of the PKIX DER encoding, not a PEM-armoured block.
	PublicKeys []byte
	// SealedPrivateKeys is the AES-GCM sealed {rsa der, kyber sk} blob.
	// This is the only persistent representation of the private material.
	SealedPrivateKeys []byte

	CreatedAt time.Time
}

// IsOngoing reports whether now falls within [StartAt, EndAt).
func (e *Election) IsOngoing(now time.Time) bool {
	return !now.Before(e.StartAt) && now.Before(e.EndAt)
}

// HasStarted reports whether now is at or after StartAt.
func (e *Election) HasStarted(now time.Time) bool {
	return !now.Before(e.StartAt)
}

// HasEnded reports whether now is at or after EndAt.
func (e *Election) HasEnded(now time.Time) bool {
	return !now.Before(e.EndAt)
}

// Terminate sets EndAt to now, ending the election immediately.
func (e *Election) Terminate(now time.Time) {
	e.EndAt = now
}

// CandidateByID returns the candidate with the given id, if present.
func (e *Election) CandidateByID(id string) (Candidate, bool) {
	for _, c := range e.Candidates {
		if c.CandidateID == id {
			return c, true
		}
	}
	return Candidate{}, false
}

// CandidatesByConstituency filters Candidates down to one constituency.
func (e *Election) CandidatesByConstituency(c Constituency) []Candidate {
	var out []Candidate
	for _, cand := range e.Candidates {
		if cand.Constituency == c {
			out = append(out, cand)
		}
	}
	return out
}

// PartyByID returns the party with the given id, if present.
func (e *Election) PartyByID(id string) (Party, bool) {
	for _, p := range e.Parties {
		if p.PartyID == id {
			return p, true
		}
	}
	return Party{}, false
}

// Elector is a registered voter. voted_in and token_issued_for are both
// sets of election ids; voted_in is always a subset of token_issued_for.
// No field here ever references a token id or a ballot id - that absence
// is what makes anonymity structural rather than policy.
type Elector struct {
	ElectorID        string
	FullName         string
	CitizenshipHash  string
	PasswordHash     string
	Constituency     Constituency
	VotedIn          map[string]bool
	TokenIssuedFor   map[string]bool
}

// NewElector constructs an Elector with empty tracking sets.
func NewElector(id, fullName, citizenshipHash, passwordHash string, constituency Constituency) *Elector {
	return &Elector{
		ElectorID:       id,
		FullName:        fullName,
		CitizenshipHash: citizenshipHash,
		PasswordHash:    passwordHash,
		Constituency:    constituency,
		VotedIn:         make(map[string]bool),
		TokenIssuedFor:  make(map[string]bool),
	}
}

func (v *Elector) HasVotedIn(electionID string) bool      { return v.VotedIn[electionID] }
func (v *Elector) HasTokenFor(electionID string) bool     { return v.TokenIssuedFor[electionID] }
func (v *Elector) MarkVoted(electionID string)            { v.VotedIn[electionID] = true }
func (v *Elector) MarkTokenIssued(electionID string)      { v.TokenIssuedFor[electionID] = true }

// VotingToken is issued without any elector reference. Anonymity depends
// on this type never gaining one.
type VotingToken struct {
	TokenID        string
	ElectionID     string
	Constituency   Constituency
	BallotsAllowed map[BallotKind]bool
	BallotsUsed    map[BallotKind]bool
	FullyUsed      bool
	Revision       uint64 // optimistic-concurrency counter, used by storage implementations without native CAS
}

// NewVotingToken creates a fresh token allowed to cast both ballot kinds.
func NewVotingToken(tokenID, electionID string, constituency Constituency) *VotingToken {
	return &VotingToken{
		TokenID:      tokenID,
		ElectionID:   electionID,
		Constituency: constituency,
		BallotsAllowed: map[BallotKind]bool{
			BallotFPTP: true,
			BallotPR:   true,
		},
		BallotsUsed: make(map[BallotKind]bool),
	}
}

// IsValidForBallot reports whether kind can still be consumed.
func (t *VotingToken) IsValidForBallot(kind BallotKind) bool {
	return !t.FullyUsed && t.BallotsAllowed[kind] && !t.BallotsUsed[kind]
}

// BallotRecord is one row per cast ballot; two are written per elector.
type BallotRecord struct {
	ElectionID   string
	BallotKind   BallotKind
	Constituency Constituency // FPTP only
	Ciphertext   []byte       // opaque hybrid-encrypted blob

	CastAt time.Time

	ReceiptID           string
	ReceiptHash         string
	ReceiptTimestampStr string

	VerificationCount   int
	VerificationHistory []time.Time
}

// BallotPayload is the tagged sum type encrypted inside a BallotRecord's
// ciphertext, replacing a dynamically-typed JSON dict with an exhaustively
// matchable Go type.
type BallotPayload struct {
	Kind        BallotKind
	CandidateID string // set when Kind == BallotFPTP
	PartyID     string // set when Kind == BallotPR
}

// AuditEntry is one link in the tamper-evident hash chain.
type AuditEntry struct {
	SequenceID   string
	Category     string
	EventType    string
	Message      string
	SubjectID    string
	SubjectKind  string
	IPAddress    string
	UserAgent    string
	Details      map[string]any
	Timestamp    time.Time
	PreviousHash string
	EntryHash    string
}

// GenesisHash is the fixed sentinel previous_hash of the first chain entry.
const GenesisHash = "GENESIS"
