package audit

import (
	stdctx "context"
	"sync"
	"testing"
	"time"

	"votingcore/pkg/config"
	"votingcore/pkg/context"
	"votingcore/pkg/metrics"
	"votingcore/pkg/model"
	"votingcore/pkg/storage"
)

// tamperableStore wraps storage.Memory but holds audit entries by shared
// pointer rather than by defensive copy, so tests can mutate an entry in
// place after it has been logged to simulate storage-level tampering.
type tamperableStore struct {
	*storage.Memory
	mu      sync.Mutex
	entries []*model.AuditEntry
}

func newTamperableStore() *tamperableStore {
	return &tamperableStore{Memory: storage.NewMemory()}
}

func (s *tamperableStore) AppendAuditEntry(ctx stdctx.Context, e *model.AuditEntry, computeHash func(prevHash string) string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := model.GenesisHash
	if n := len(s.entries); n > 0 {
		prev = s.entries[n-1].EntryHash
	}
	e.PreviousHash = prev
	e.EntryHash = computeHash(prev)
	s.entries = append(s.entries, e)
	return nil
}

func (s *tamperableStore) ListAuditEntries(ctx stdctx.Context, limit int) ([]*model.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.entries
	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}
	out := make([]*model.AuditEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func newTestContext() *context.CoreContext {
	return context.NewContext(newTamperableStore(), &config.Config{Cores: 1}, metrics.NewRecorder())
}

func TestVerifyChainOKOnUntamperedLog(t *testing.T) {
	ctx := newTestContext()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		if err := Log(ctx, CategoryVote, EventVoteCast, "ballot cast", "", "", "127.0.0.1", "test-agent", nil, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Log entry %d: %v", i, err)
		}
	}

	result, err := VerifyChain(ctx, 0)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !result.OK || result.Checked != 5 {
		t.Fatalf("got %+v, want OK with 5 checked", result)
	}
}

func TestVerifyChainDetectsTamperedMessage(t *testing.T) {
	ctx := newTestContext()
	now := time.Now().UTC()

	for i := 0; i < 4; i++ {
		if err := Log(ctx, CategoryAuth, EventLoginSuccess, "login ok", "elector-1", "elector", "10.0.0.1", "ua", nil, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Log entry %d: %v", i, err)
		}
	}

	entries, err := ctx.Storage.ListAuditEntries(stdctx.Background(), 0)
	if err != nil {
		t.Fatalf("ListAuditEntries: %v", err)
	}
	entries[2].Message = "tampered message"

	result, err := VerifyChain(ctx, 0)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if result.OK {
		t.Fatal("expected tamper to be detected")
	}
	if result.FirstBadID != entries[2].SequenceID {
		t.Fatalf("localized tamper to %s, want %s", result.FirstBadID, entries[2].SequenceID)
	}
}

func TestVerifyChainDetectsBrokenPreviousHashLink(t *testing.T) {
	ctx := newTestContext()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		if err := Log(ctx, CategoryAdmin, EventAdminAction, "admin did something", "", "", "", "", nil, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Log entry %d: %v", i, err)
		}
	}

	entries, err := ctx.Storage.ListAuditEntries(stdctx.Background(), 0)
	if err != nil {
		t.Fatalf("ListAuditEntries: %v", err)
	}
	entries[1].PreviousHash = "corrupted"

	result, err := VerifyChain(ctx, 0)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if result.OK {
		t.Fatal("expected a broken link to be detected")
	}
	if result.FirstBadID != entries[1].SequenceID {
		t.Fatalf("localized break to %s, want %s", result.FirstBadID, entries[1].SequenceID)
	}
}

func TestVerifyChainSkipsLegacyEntriesWithoutHash(t *testing.T) {
	ctx := newTestContext()
	now := time.Now().UTC()

	if err := Log(ctx, CategoryVote, EventVoteCast, "first", "", "", "", "", nil, now); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := ctx.Storage.ListAuditEntries(stdctx.Background(), 0)
	if err != nil {
		t.Fatalf("ListAuditEntries: %v", err)
	}
	legacy := *entries[0]
	legacy.SequenceID = "AUD-LEGACY0"
	legacy.EntryHash = ""
	legacy.Timestamp = now.Add(-time.Hour)
	if err := ctx.Storage.AppendAuditEntry(stdctx.Background(), &legacy, func(prevHash string) string { return "" }); err != nil {
		t.Fatalf("appending legacy entry: %v", err)
	}

	result, err := VerifyChain(ctx, 0)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !result.OK || result.Checked != 1 {
		t.Fatalf("got %+v, want OK with exactly 1 hash-checked entry", result)
	}
}
