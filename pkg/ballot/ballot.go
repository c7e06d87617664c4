// Package ballot implements cast_dual_ballot and receipt verification
// (spec.md §4.F), grounded on the reference VoteService.cast_dual_ballot_with_token
// and Vote.generate_receipt/verify_receipt methods. It depends on pkg/token
// for the token engine and pkg/hybridcrypto for encryption; it never stores
// an elector reference alongside a ballot.
package ballot

import (
	stdctx "context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudflare/circl/kem"

	"votingcore/pkg/audit"
	"votingcore/pkg/context"
	"votingcore/pkg/hybridcrypto"
	"votingcore/pkg/keylifecycle"
	"votingcore/pkg/metrics"
	"votingcore/pkg/model"
	"votingcore/pkg/token"
)

// CastResult is the outcome of CastDualBallot.
type CastResult struct {
	ReceiptID    string
	ReceiptHash  string
	TimestampStr string
	CastAt       time.Time
}

// CastDualBallot implements cast_dual_ballot_with_token: it validates the
// token, mints one receipt shared by both ballots, then consumes the FPTP
// slot before the PR slot. Per spec.md §4.F and the policy recorded in
// DESIGN.md, the elector is marked as having voted as soon as at least one
// ballot kind is durably stored; if the PR leg fails after the FPTP leg
// succeeded, the elector is still marked voted and the already-minted
// receipt ID is returned wrapped in model.ErrPartialCast.
func CastDualBallot(ctx *context.CoreContext, electorID, electionID, tokenID, candidateID, partyID string, now time.Time) (*CastResult, error) {
	var result *CastResult
	err := ctx.Recorder.Record("Ballot_CastDual", metrics.MLogic, func() error {
		election, err := ctx.Storage.GetElection(stdctx.Background(), electionID)
		if err != nil {
			return fmt.Errorf("ballot: looking up election: %w", err)
		}
		if !election.IsOngoing(now) {
			if now.Before(election.StartAt) {
				return model.ErrElectionNotStarted
			}
			return model.ErrElectionEnded
		}

		elector, err := ctx.Storage.GetElector(stdctx.Background(), electorID)
		if err != nil {
			return fmt.Errorf("ballot: looking up elector: %w", err)
		}
		if elector.HasVotedIn(electionID) {
			return model.ErrAlreadyVoted
		}

		tok, err := token.ValidateToken(ctx, tokenID, electionID, "")
		if err != nil {
			return err
		}
		if err := token.ValidateConstituency(tok, elector.Constituency); err != nil {
			return err
		}

		candidate, ok := election.CandidateByID(candidateID)
		if !ok {
			return model.ErrInvalidId
		}
		if candidate.Constituency != elector.Constituency {
			return model.ErrTokenWrongConstituency
		}
		if _, ok := election.PartyByID(partyID); !ok {
			return model.ErrInvalidId
		}
		if len(election.PublicKeys) == 0 {
			return fmt.Errorf("ballot: election encryption not configured")
		}

		rsaPubAny, kyberPub, err := keylifecycle.UnmarshalPublicKeys(election.PublicKeys)
		if err != nil {
			return fmt.Errorf("ballot: unmarshalling election public keys: %w", err)
		}
		rsaPublic, ok := rsaPubAny.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("ballot: election rsa public key has unexpected type %T", rsaPubAny)
		}

		receiptID, receiptHash, timestampStr := generateReceipt(electionID, now)

		fptpErr := consumeAndStore(ctx, electionID, model.BallotFPTP, elector.Constituency,
			model.BallotPayload{Kind: model.BallotFPTP, CandidateID: candidateID}, tok.TokenID,
			receiptID, receiptHash, timestampStr, now, rsaPublic, kyberPub)
		if fptpErr != nil {
			return fptpErr
		}
		// At least one ballot kind is now durably stored: the elector is
		// voted from this point on regardless of what happens to the PR leg.
		if merr := ctx.Storage.AddElectorVotedIn(stdctx.Background(), electorID, electionID); merr != nil {
			return fmt.Errorf("ballot: marking elector voted: %w", merr)
		}

		prErr := consumeAndStore(ctx, electionID, model.BallotPR, "",
			model.BallotPayload{Kind: model.BallotPR, PartyID: partyID}, tok.TokenID,
			receiptID, receiptHash, timestampStr, now, rsaPublic, kyberPub)
		if prErr != nil {
			result = &CastResult{ReceiptID: receiptID, ReceiptHash: receiptHash, TimestampStr: timestampStr, CastAt: now}
			return fmt.Errorf("%w: receipt %s: %v", model.ErrPartialCast, receiptID, prErr)
		}

		result = &CastResult{ReceiptID: receiptID, ReceiptHash: receiptHash, TimestampStr: timestampStr, CastAt: now}

		// No elector or token reference is logged here: the audit trail must
		// never carry anything that could re-link a ballot to the voter who
		// cast it.
		if aerr := audit.Log(ctx, audit.CategoryVote, audit.EventVoteCast, "dual ballot cast", "", "", "", "", map[string]any{"election_id": electionID}, now); aerr != nil {
			return fmt.Errorf("ballot: logging audit entry: %w", aerr)
		}
		return nil
	})
	return result, err
}

func consumeAndStore(ctx *context.CoreContext, electionID string, kind model.BallotKind,
	constituency model.Constituency, payload model.BallotPayload, tokenID, receiptID, receiptHash, timestampStr string,
	now time.Time, rsaPub *rsa.PublicKey, kyberPub kem.PublicKey) error {

	if err := token.Consume(ctx, tokenID, kind); err != nil {
		return err
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ballot: marshalling %s payload: %w", kind, err)
	}

	blob, err := hybridcrypto.EncryptBallot(plaintext, rsaPub, kyberPub)
	if err != nil {
		return fmt.Errorf("ballot: encrypting %s ballot: %w", kind, err)
	}

	rec := &model.BallotRecord{
		ElectionID:          electionID,
		BallotKind:          kind,
		Constituency:        constituency,
		Ciphertext:          blob,
		CastAt:              now,
		ReceiptID:           receiptID,
		ReceiptHash:         receiptHash,
		ReceiptTimestampStr: timestampStr,
	}
	if err := ctx.Storage.AppendBallot(stdctx.Background(), rec); err != nil {
		return fmt.Errorf("ballot: storing %s ballot: %w", kind, err)
	}
	return nil
}

// generateReceipt implements generate_receipt: a single receipt shared by
// the FPTP and PR legs of the same casting session.
func generateReceipt(electionID string, timestamp time.Time) (receiptID, receiptHash, timestampStr string) {
	receiptID = model.NewReceiptID()
	timestampStr = timestamp.UTC().Format("2006-01-02 15:04:05")
	hashInput := receiptID + ":" + electionID + ":" + timestampStr
	sum := sha256.Sum256([]byte(hashInput))
	receiptHash = hex.EncodeToString(sum[:])
	return receiptID, receiptHash, timestampStr
}

// ReceiptStatus is returned by VerifyReceipt.
type ReceiptStatus struct {
	ElectionID        string
	HasFPTP           bool
	HasPR             bool
	BallotCount       int
	CastAt            time.Time
	VerificationCount int
}

// VerifyReceipt implements verify_receipt: it checks hash integrity against
// the stored timestamp string, identifies which ballot kinds are present,
// and - unless dryRun is set - records a non-destructive verification event.
func VerifyReceipt(ctx *context.CoreContext, receiptID string, dryRun bool) (*ReceiptStatus, error) {
	ballots, err := ctx.Storage.ListBallotsByReceipt(stdctx.Background(), receiptID)
	if err != nil {
		return nil, fmt.Errorf("ballot: looking up receipt: %w", err)
	}
	if len(ballots) == 0 {
		return nil, model.ErrReceiptIntegrityFailed
	}

	primary := ballots[0]
	hashInput := primary.ReceiptID + ":" + primary.ElectionID + ":" + primary.ReceiptTimestampStr
	sum := sha256.Sum256([]byte(hashInput))
	expected := hex.EncodeToString(sum[:])
	if expected != primary.ReceiptHash {
		return nil, model.ErrReceiptIntegrityFailed
	}

	status := &ReceiptStatus{
		ElectionID:  primary.ElectionID,
		BallotCount: len(ballots),
		CastAt:      primary.CastAt,
	}
	for _, b := range ballots {
		switch b.BallotKind {
		case model.BallotFPTP:
			status.HasFPTP = true
		case model.BallotPR:
			status.HasPR = true
		}
		if b.VerificationCount > status.VerificationCount {
			status.VerificationCount = b.VerificationCount
		}
	}

	if !dryRun {
		if err := ctx.Storage.RecordVerification(stdctx.Background(), receiptID); err != nil {
			return nil, fmt.Errorf("ballot: recording verification: %w", err)
		}
		status.VerificationCount++
	}
	return status, nil
}
