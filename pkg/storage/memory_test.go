package storage

import (
	stdctx "context"
	"errors"
	"sync"
	"testing"
	"time"

	"votingcore/pkg/model"
)

func TestPutElectionRejectsDuplicate(t *testing.T) {
	m := NewMemory()
	e := &model.Election{ElectionID: "ELC-001"}
	if err := m.PutElection(stdctx.Background(), e); err != nil {
		t.Fatalf("first PutElection: %v", err)
	}
	err := m.PutElection(stdctx.Background(), e)
	var dup *ErrAlreadyExists
	if !errors.As(err, &dup) {
		t.Fatalf("got err %v, want *ErrAlreadyExists", err)
	}
}

func TestUpdateElectionRequiresExisting(t *testing.T) {
	m := NewMemory()
	e := &model.Election{ElectionID: "ELC-001"}
	if err := m.UpdateElection(stdctx.Background(), e); err != ErrNotFound {
		t.Fatalf("got err %v, want ErrNotFound", err)
	}

	if err := m.PutElection(stdctx.Background(), e); err != nil {
		t.Fatalf("PutElection: %v", err)
	}
	e.PRSeats = 42
	if err := m.UpdateElection(stdctx.Background(), e); err != nil {
		t.Fatalf("UpdateElection: %v", err)
	}
	got, err := m.GetElection(stdctx.Background(), "ELC-001")
	if err != nil {
		t.Fatalf("GetElection: %v", err)
	}
	if got.PRSeats != 42 {
		t.Fatalf("got PRSeats=%d, want 42", got.PRSeats)
	}
}

func TestGetElectionReturnsDefensiveCopy(t *testing.T) {
	m := NewMemory()
	e := &model.Election{ElectionID: "ELC-001", PRSeats: 10}
	if err := m.PutElection(stdctx.Background(), e); err != nil {
		t.Fatalf("PutElection: %v", err)
	}
	got, err := m.GetElection(stdctx.Background(), "ELC-001")
	if err != nil {
		t.Fatalf("GetElection: %v", err)
	}
	got.PRSeats = 999
	got2, err := m.GetElection(stdctx.Background(), "ELC-001")
	if err != nil {
		t.Fatalf("GetElection 2: %v", err)
	}
	if got2.PRSeats != 10 {
		t.Fatalf("mutating a returned election leaked into storage: got PRSeats=%d, want 10", got2.PRSeats)
	}
}

func TestPutElectorRejectsDuplicateCitizenshipHash(t *testing.T) {
	m := NewMemory()
	v1 := model.NewElector(model.NewElectorID(), "Alice", "samehash", "pwhash", model.Kathmandu)
	v2 := model.NewElector(model.NewElectorID(), "Bob", "samehash", "pwhash", model.Lalitpur)
	if err := m.PutElector(stdctx.Background(), v1); err != nil {
		t.Fatalf("PutElector v1: %v", err)
	}
	err := m.PutElector(stdctx.Background(), v2)
	var dup *ErrAlreadyExists
	if !errors.As(err, &dup) {
		t.Fatalf("got err %v, want *ErrAlreadyExists for duplicate citizenship hash", err)
	}
}

func TestConsumeTokenBallotCAS(t *testing.T) {
	m := NewMemory()
	tok := &model.VotingToken{
		TokenID:        model.NewTokenID(),
		ElectionID:     "ELC-001",
		BallotsAllowed: map[model.BallotKind]bool{model.BallotFPTP: true},
		BallotsUsed:    map[model.BallotKind]bool{},
	}
	if err := m.PutToken(stdctx.Background(), tok); err != nil {
		t.Fatalf("PutToken: %v", err)
	}

	if err := m.ConsumeTokenBallot(stdctx.Background(), tok.TokenID, model.BallotFPTP); err != nil {
		t.Fatalf("first ConsumeTokenBallot: %v", err)
	}
	if err := m.ConsumeTokenBallot(stdctx.Background(), tok.TokenID, model.BallotFPTP); err != model.ErrTokenAlreadyUsed {
		t.Fatalf("got err %v, want ErrTokenAlreadyUsed", err)
	}

	got, err := m.GetToken(stdctx.Background(), tok.TokenID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if !got.FullyUsed || got.Revision != 1 {
		t.Fatalf("got FullyUsed=%v Revision=%d, want true/1", got.FullyUsed, got.Revision)
	}
}

func TestConsumeTokenBallotConcurrentCAS(t *testing.T) {
	m := NewMemory()
	tok := &model.VotingToken{
		TokenID:        model.NewTokenID(),
		ElectionID:     "ELC-001",
		BallotsAllowed: map[model.BallotKind]bool{model.BallotFPTP: true},
		BallotsUsed:    map[model.BallotKind]bool{},
	}
	if err := m.PutToken(stdctx.Background(), tok); err != nil {
		t.Fatalf("PutToken: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	successCount := 0
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if err := m.ConsumeTokenBallot(stdctx.Background(), tok.TokenID, model.BallotFPTP); err == nil {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successCount != 1 {
		t.Fatalf("got %d successful CAS, want exactly 1", successCount)
	}
}

func TestAppendAuditEntryChainsHashes(t *testing.T) {
	m := NewMemory()
	computeHash := func(prevHash string) string {
		return "hash-of-" + prevHash
	}

	e1 := &model.AuditEntry{SequenceID: "AUD-1", Timestamp: time.Now().UTC()}
	if err := m.AppendAuditEntry(stdctx.Background(), e1, computeHash); err != nil {
		t.Fatalf("AppendAuditEntry 1: %v", err)
	}
	if e1.PreviousHash != model.GenesisHash {
		t.Fatalf("got previous hash %q, want genesis", e1.PreviousHash)
	}

	e2 := &model.AuditEntry{SequenceID: "AUD-2", Timestamp: time.Now().UTC()}
	if err := m.AppendAuditEntry(stdctx.Background(), e2, computeHash); err != nil {
		t.Fatalf("AppendAuditEntry 2: %v", err)
	}
	if e2.PreviousHash != e1.EntryHash {
		t.Fatalf("got previous hash %q, want %q (entry 1's hash)", e2.PreviousHash, e1.EntryHash)
	}

	entries, err := m.ListAuditEntries(stdctx.Background(), 0)
	if err != nil {
		t.Fatalf("ListAuditEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
}

func TestListAuditEntriesRespectsLimit(t *testing.T) {
	m := NewMemory()
	for i := 0; i < 5; i++ {
		e := &model.AuditEntry{SequenceID: model.NewAuditSequenceID(), Timestamp: time.Now().UTC()}
		if err := m.AppendAuditEntry(stdctx.Background(), e, func(prevHash string) string { return prevHash + "x" }); err != nil {
			t.Fatalf("AppendAuditEntry %d: %v", i, err)
		}
	}
	entries, err := m.ListAuditEntries(stdctx.Background(), 2)
	if err != nil {
		t.Fatalf("ListAuditEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (the most recent)", len(entries))
	}
}
