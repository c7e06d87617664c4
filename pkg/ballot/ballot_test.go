package ballot

import (
	stdctx "context"
	"fmt"
	"strings"
	"testing"
	"time"

	"votingcore/pkg/config"
	"votingcore/pkg/context"
	"votingcore/pkg/keylifecycle"
	"votingcore/pkg/metrics"
	"votingcore/pkg/model"
	"votingcore/pkg/storage"
	"votingcore/pkg/token"
)

func newTestContext() *context.CoreContext {
	return context.NewContext(storage.NewMemory(), &config.Config{Cores: 1}, metrics.NewRecorder())
}

func seedElection(t *testing.T, ctx *context.CoreContext, now time.Time) (*model.Election, *keylifecycle.GeneratedKeys) {
	t.Helper()
	generated, err := keylifecycle.GenerateElectionKeys(3, 5, 2048)
	if err != nil {
		t.Fatalf("GenerateElectionKeys: %v", err)
	}
	e := &model.Election{
		ElectionID: model.NewElectionID(now),
		StartAt:    now.Add(-time.Hour),
		EndAt:      now.Add(time.Hour),
		Candidates: []model.Candidate{
			{CandidateID: "CND-001", Name: "Alice", Party: "PTY-001", Constituency: model.Kathmandu},
			{CandidateID: "CND-002", Name: "Bob", Party: "PTY-002", Constituency: model.Kathmandu},
		},
		Parties: []model.Party{
			{PartyID: "PTY-001", Name: "Party One"},
			{PartyID: "PTY-002", Name: "Party Two"},
		},
		PublicKeys:        generated.PublicKeysJSON,
		SealedPrivateKeys: generated.SealedPrivateKeys,
	}
	if err := ctx.Storage.PutElection(stdctx.Background(), e); err != nil {
		t.Fatalf("PutElection: %v", err)
	}
	return e, generated
}

func seedElector(t *testing.T, ctx *context.CoreContext, constituency model.Constituency) *model.Elector {
	t.Helper()
	v := model.NewElector(model.NewElectorID(), "Test Elector", "hash", "pwhash", constituency)
	if err := ctx.Storage.PutElector(stdctx.Background(), v); err != nil {
		t.Fatalf("PutElector: %v", err)
	}
	return v
}

func TestCastDualBallotAndVerifyReceipt(t *testing.T) {
	ctx := newTestContext()
	now := time.Now().UTC()
	e, _ := seedElection(t, ctx, now)
	v := seedElector(t, ctx, model.Kathmandu)

	tokenID, err := token.IssueToken(ctx, v.ElectorID, e.ElectionID, now)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	result, err := CastDualBallot(ctx, v.ElectorID, e.ElectionID, tokenID, "CND-001", "PTY-001", now)
	if err != nil {
		t.Fatalf("CastDualBallot: %v", err)
	}
	if result.ReceiptID == "" || result.ReceiptHash == "" {
		t.Fatalf("got empty receipt fields: %+v", result)
	}

	status, err := VerifyReceipt(ctx, result.ReceiptID, true)
	if err != nil {
		t.Fatalf("VerifyReceipt: %v", err)
	}
	if !status.HasFPTP || !status.HasPR || status.BallotCount != 2 {
		t.Fatalf("got %+v, want both ballot kinds present", status)
	}
}

func TestCastDualBallotRejectsSecondCast(t *testing.T) {
	ctx := newTestContext()
	now := time.Now().UTC()
	e, _ := seedElection(t, ctx, now)
	v := seedElector(t, ctx, model.Kathmandu)

	tokenID, err := token.IssueToken(ctx, v.ElectorID, e.ElectionID, now)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := CastDualBallot(ctx, v.ElectorID, e.ElectionID, tokenID, "CND-001", "PTY-001", now); err != nil {
		t.Fatalf("first cast: %v", err)
	}

	if _, err := CastDualBallot(ctx, v.ElectorID, e.ElectionID, tokenID, "CND-001", "PTY-001", now); err != model.ErrAlreadyVoted {
		t.Fatalf("second cast: got err %v, want ErrAlreadyVoted", err)
	}

	tokenID2, err := token.IssueToken(ctx, v.ElectorID, e.ElectionID, now)
	if err == nil {
		t.Fatalf("expected IssueToken to reject an already-voted elector, got token %s", tokenID2)
	}
}

// receiptTamperingStore wraps storage.Memory and rewrites the receipt
// timestamp of every ballot it returns by receipt, simulating an edit made
// directly in storage. storage.Memory itself returns defensive copies, so
// mutating a listed record never reaches the stored one.
type receiptTamperingStore struct {
	*storage.Memory
	timestamp string
}

func (s *receiptTamperingStore) ListBallotsByReceipt(c stdctx.Context, receiptID string) ([]*model.BallotRecord, error) {
	ballots, err := s.Memory.ListBallotsByReceipt(c, receiptID)
	for _, b := range ballots {
		b.ReceiptTimestampStr = s.timestamp
	}
	return ballots, err
}

func TestVerifyReceiptDetectsTamperedTimestamp(t *testing.T) {
	ctx := newTestContext()
	now := time.Now().UTC()
	e, _ := seedElection(t, ctx, now)
	v := seedElector(t, ctx, model.Kathmandu)

	tokenID, err := token.IssueToken(ctx, v.ElectorID, e.ElectionID, now)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	result, err := CastDualBallot(ctx, v.ElectorID, e.ElectionID, tokenID, "CND-001", "PTY-001", now)
	if err != nil {
		t.Fatalf("CastDualBallot: %v", err)
	}

	ballots, err := ctx.Storage.ListBallotsByReceipt(stdctx.Background(), result.ReceiptID)
	if err != nil {
		t.Fatalf("ListBallotsByReceipt: %v", err)
	}
	if len(ballots) != 2 {
		t.Fatalf("got %d ballots for the receipt, want 2", len(ballots))
	}
	ctx.Storage = &receiptTamperingStore{Memory: ctx.Storage.(*storage.Memory), timestamp: "2000-01-01 00:00:00"}

	if _, err := VerifyReceipt(ctx, result.ReceiptID, true); err != model.ErrReceiptIntegrityFailed {
		t.Fatalf("got err %v, want ErrReceiptIntegrityFailed", err)
	}
}

func TestVerifyReceiptIncrementsVerificationCount(t *testing.T) {
	ctx := newTestContext()
	now := time.Now().UTC()
	e, _ := seedElection(t, ctx, now)
	v := seedElector(t, ctx, model.Kathmandu)

	tokenID, err := token.IssueToken(ctx, v.ElectorID, e.ElectionID, now)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	result, err := CastDualBallot(ctx, v.ElectorID, e.ElectionID, tokenID, "CND-001", "PTY-001", now)
	if err != nil {
		t.Fatalf("CastDualBallot: %v", err)
	}

	status1, err := VerifyReceipt(ctx, result.ReceiptID, false)
	if err != nil {
		t.Fatalf("VerifyReceipt 1: %v", err)
	}
	status2, err := VerifyReceipt(ctx, result.ReceiptID, false)
	if err != nil {
		t.Fatalf("VerifyReceipt 2: %v", err)
	}
	if status2.VerificationCount <= status1.VerificationCount {
		t.Fatalf("verification count did not increase: %d -> %d", status1.VerificationCount, status2.VerificationCount)
	}
}

func TestCastDualBallotRejectsWrongConstituencyCandidate(t *testing.T) {
	ctx := newTestContext()
	now := time.Now().UTC()
	e, _ := seedElection(t, ctx, now)
	v := seedElector(t, ctx, model.Lalitpur)

	tokenID, err := token.IssueToken(ctx, v.ElectorID, e.ElectionID, now)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	// CND-001 belongs to Kathmandu, but the elector is registered in Lalitpur.
	if _, err := CastDualBallot(ctx, v.ElectorID, e.ElectionID, tokenID, "CND-001", "PTY-001", now); err != model.ErrTokenWrongConstituency {
		t.Fatalf("got err %v, want ErrTokenWrongConstituency", err)
	}
}

func TestNoStoredBallotReferencesElectorOrToken(t *testing.T) {
	ctx := newTestContext()
	now := time.Now().UTC()
	e, _ := seedElection(t, ctx, now)
	v := seedElector(t, ctx, model.Kathmandu)

	tokenID, err := token.IssueToken(ctx, v.ElectorID, e.ElectionID, now)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := CastDualBallot(ctx, v.ElectorID, e.ElectionID, tokenID, "CND-001", "PTY-001", now); err != nil {
		t.Fatalf("CastDualBallot: %v", err)
	}

	ballots, err := ctx.Storage.ListBallotsByElection(stdctx.Background(), e.ElectionID)
	if err != nil {
		t.Fatalf("ListBallotsByElection: %v", err)
	}
	if len(ballots) != 2 {
		t.Fatalf("got %d ballots, want 2", len(ballots))
	}
	// BallotRecord has no elector or token field at all; this is a static
	// schema guarantee, re-asserted here against the concrete values.
	for _, b := range ballots {
		if b.ElectionID == "" {
			t.Fatal("ballot missing election id")
		}
		dump := fmt.Sprintf("%+v", *b)
		if strings.Contains(dump, v.ElectorID) || strings.Contains(dump, tokenID) {
			t.Fatalf("stored %v ballot references the elector or token id", b.BallotKind)
		}
	}
}
