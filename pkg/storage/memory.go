package storage

import (
	"context"
	"sync"
	"time"

	"votingcore/pkg/model"
)

// Memory is an in-memory reference implementation of Store, used by every
// package's tests. It is not meant for production use; it exists to give
// the core something to run against without pulling in any particular
// database driver.
type Memory struct {
	mu sync.Mutex

	elections map[string]*model.Election
	electors  map[string]*model.Elector
	byCitizen map[string]string // citizenship hash -> elector id
	tokens    map[string]*model.VotingToken
	ballots   []*model.BallotRecord
	audit     []*model.AuditEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		elections: make(map[string]*model.Election),
		electors:  make(map[string]*model.Elector),
		byCitizen: make(map[string]string),
		tokens:    make(map[string]*model.VotingToken),
	}
}

func (m *Memory) PutElection(ctx context.Context, e *model.Election) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.elections[e.ElectionID]; exists {
		return &ErrAlreadyExists{Collection: "elections", Key: e.ElectionID}
	}
	cp := *e
	m.elections[e.ElectionID] = &cp
	return nil
}

func (m *Memory) UpdateElection(ctx context.Context, e *model.Election) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.elections[e.ElectionID]; !exists {
		return ErrNotFound
	}
	cp := *e
	m.elections[e.ElectionID] = &cp
	return nil
}

func (m *Memory) GetElection(ctx context.Context, electionID string) (*model.Election, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.elections[electionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *Memory) ListElections(ctx context.Context) ([]*model.Election, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Election, 0, len(m.elections))
	for _, e := range m.elections {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) PutElector(ctx context.Context, v *model.Elector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.electors[v.ElectorID]; exists {
		return &ErrAlreadyExists{Collection: "voters", Key: v.ElectorID}
	}
	if _, exists := m.byCitizen[v.CitizenshipHash]; exists {
		return &ErrAlreadyExists{Collection: "voters.citizenship_hash", Key: v.CitizenshipHash}
	}
	cp := *v
	cp.VotedIn = cloneSet(v.VotedIn)
	cp.TokenIssuedFor = cloneSet(v.TokenIssuedFor)
	m.electors[v.ElectorID] = &cp
	m.byCitizen[v.CitizenshipHash] = v.ElectorID
	return nil
}

func (m *Memory) GetElector(ctx context.Context, electorID string) (*model.Elector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.electors[electorID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneElector(v), nil
}

func (m *Memory) GetElectorByCitizenshipHash(ctx context.Context, hash string) (*model.Elector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byCitizen[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneElector(m.electors[id]), nil
}

func (m *Memory) AddElectorVotedIn(ctx context.Context, electorID, electionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.electors[electorID]
	if !ok {
		return ErrNotFound
	}
	v.VotedIn[electionID] = true
	return nil
}

func (m *Memory) AddElectorTokenIssuedFor(ctx context.Context, electorID, electionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.electors[electorID]
	if !ok {
		return ErrNotFound
	}
	v.TokenIssuedFor[electionID] = true
	return nil
}

func (m *Memory) PutToken(ctx context.Context, t *model.VotingToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tokens[t.TokenID]; exists {
		return &ErrAlreadyExists{Collection: "voting_tokens", Key: t.TokenID}
	}
	cp := *t
	cp.BallotsAllowed = cloneBallotSet(t.BallotsAllowed)
	cp.BallotsUsed = cloneBallotSet(t.BallotsUsed)
	m.tokens[t.TokenID] = &cp
	return nil
}

func (m *Memory) GetToken(ctx context.Context, tokenID string) (*model.VotingToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tokenID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneToken(t), nil
}

// ConsumeTokenBallot is the CAS required by spec.md §4.E, implemented here
// as a critical section guarded by the store's single mutex - the
// equivalent of a document-level compare-and-set in a real database.
func (m *Memory) ConsumeTokenBallot(ctx context.Context, tokenID string, kind model.BallotKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tokenID]
	if !ok {
		return ErrNotFound
	}
	if !t.IsValidForBallot(kind) {
		return model.ErrTokenAlreadyUsed
	}
	t.BallotsUsed[kind] = true
	t.FullyUsed = len(t.BallotsUsed) == len(t.BallotsAllowed)
	t.Revision++
	return nil
}

func (m *Memory) ListTokensByElection(ctx context.Context, electionID string) ([]*model.VotingToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.VotingToken
	for _, t := range m.tokens {
		if t.ElectionID == electionID {
			out = append(out, cloneToken(t))
		}
	}
	return out, nil
}

func (m *Memory) AppendBallot(ctx context.Context, b *model.BallotRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.ballots = append(m.ballots, &cp)
	return nil
}

func (m *Memory) ListBallotsByElection(ctx context.Context, electionID string) ([]*model.BallotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.BallotRecord
	for _, b := range m.ballots {
		if b.ElectionID == electionID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) ListBallotsByReceipt(ctx context.Context, receiptID string) ([]*model.BallotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.BallotRecord
	for _, b := range m.ballots {
		if b.ReceiptID == receiptID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) RecordVerification(ctx context.Context, receiptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, b := range m.ballots {
		if b.ReceiptID == receiptID {
			b.VerificationCount++
			b.VerificationHistory = append(b.VerificationHistory, time.Now().UTC())
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// AppendAuditEntry serialises against concurrent appenders by holding the
// store mutex across the read-tail / compute-hash / write sequence -
// exactly the "retry from re-reading previous_hash" guarantee spec.md §4.G
// asks for, collapsed into a single critical section since this
// implementation has no separate optimistic-retry path.
func (m *Memory) AppendAuditEntry(ctx context.Context, e *model.AuditEntry, computeHash func(prevHash string) string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := model.GenesisHash
	if n := len(m.audit); n > 0 {
		prev = m.audit[n-1].EntryHash
	}
	e.PreviousHash = prev
	e.EntryHash = computeHash(prev)
	cp := *e
	m.audit = append(m.audit, &cp)
	return nil
}

func (m *Memory) ListAuditEntries(ctx context.Context, limit int) ([]*model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.audit
	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}
	out := make([]*model.AuditEntry, len(entries))
	for i, e := range entries {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func cloneSet(s map[string]bool) map[string]bool {
	out := make(map[string]bool, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func cloneBallotSet(s map[model.BallotKind]bool) map[model.BallotKind]bool {
	out := make(map[model.BallotKind]bool, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func cloneElector(v *model.Elector) *model.Elector {
	cp := *v
	cp.VotedIn = cloneSet(v.VotedIn)
	cp.TokenIssuedFor = cloneSet(v.TokenIssuedFor)
	return &cp
}

func cloneToken(t *model.VotingToken) *model.VotingToken {
	cp := *t
	cp.BallotsAllowed = cloneBallotSet(t.BallotsAllowed)
	cp.BallotsUsed = cloneBallotSet(t.BallotsUsed)
	return &cp
}
