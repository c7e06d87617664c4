// Package token implements the anonymous single-use voting token engine
// of spec.md §4.E. Grounded on the reference TokenService's issue_token,
// validate_token, and use_token_for_ballot methods; the atomic-consume
// shape also follows the teacher's ledger.MarkEnvelopeUsed pattern of a
// single CAS against one store document.
package token

import (
	stdctx "context"
	"fmt"
	"time"

	"votingcore/pkg/audit"
	"votingcore/pkg/context"
	"votingcore/pkg/metrics"
	"votingcore/pkg/model"
	"votingcore/pkg/principal"
)

// IssueToken implements issue_token: it verifies eligibility, creates a
// fresh token carrying the elector's constituency but no elector
// reference, and marks the election as one the elector has been issued a
// token for.
func IssueToken(ctx *context.CoreContext, electorID, electionID string, now time.Time) (tokenID string, err error) {
	err = ctx.Recorder.Record("Token_Issue", metrics.MLogic, func() error {
		election, gerr := ctx.Storage.GetElection(stdctx.Background(), electionID)
		if gerr != nil {
			return fmt.Errorf("token: looking up election: %w", gerr)
		}
		if !election.IsOngoing(now) {
			if now.Before(election.StartAt) {
				return model.ErrElectionNotStarted
			}
			return model.ErrElectionEnded
		}

		elector, gerr := ctx.Storage.GetElector(stdctx.Background(), electorID)
		if gerr != nil {
			return fmt.Errorf("token: looking up elector: %w", gerr)
		}
		if elector.HasVotedIn(electionID) {
			return model.ErrAlreadyVoted
		}
		if elector.HasTokenFor(electionID) {
			return model.ErrAlreadyVoted
		}

		tok := model.NewVotingToken(model.NewTokenID(), electionID, elector.Constituency)
		if perr := ctx.Storage.PutToken(stdctx.Background(), tok); perr != nil {
			return fmt.Errorf("token: storing token: %w", perr)
		}
		if perr := ctx.Storage.AddElectorTokenIssuedFor(stdctx.Background(), electorID, electionID); perr != nil {
			return fmt.Errorf("token: marking token issued: %w", perr)
		}
		tokenID = tok.TokenID

		who := principal.FromElector(electorID)
		if aerr := audit.Log(ctx, audit.CategoryVote, audit.EventTokenIssued, "voting token issued", who.ID(), who.Kind().String(), "", "", nil, now); aerr != nil {
			return fmt.Errorf("token: logging audit entry: %w", aerr)
		}
		return nil
	})
	return tokenID, err
}

// ValidateToken implements validate_token: the token must exist, belong
// to electionID, not be fully used, and - when kind is non-empty - not
// already have that kind consumed.
func ValidateToken(ctx *context.CoreContext, tokenID, electionID string, kind model.BallotKind) (*model.VotingToken, error) {
	tok, err := ctx.Storage.GetToken(stdctx.Background(), tokenID)
	if err != nil {
		return nil, model.ErrTokenNotFound
	}
	if tok.ElectionID != electionID {
		return nil, model.ErrTokenWrongElection
	}
	if tok.FullyUsed {
		return nil, model.ErrTokenAlreadyUsed
	}
	if kind != "" && tok.BallotsUsed[kind] {
		return nil, model.ErrTokenAlreadyUsed
	}
	return tok, nil
}

// ValidateConstituency checks the token's constituency against the
// elector's, per spec.md §4.F step 2.
func ValidateConstituency(tok *model.VotingToken, electorConstituency model.Constituency) error {
	if tok.Constituency != electorConstituency {
		return model.ErrTokenWrongConstituency
	}
	return nil
}

// Consume implements consume(token_id, kind): it performs the atomic
// compare-and-set and never reveals whether the failure was "token does
// not exist" versus "already used", per spec.md §4.E.
func Consume(ctx *context.CoreContext, tokenID string, kind model.BallotKind) error {
	return ctx.Recorder.Record("Token_Consume", metrics.MLogic, func() error {
		if err := ctx.Storage.ConsumeTokenBallot(stdctx.Background(), tokenID, kind); err != nil {
			return model.ErrTokenAlreadyUsed
		}
		return nil
	})
}

// Stats summarises token issuance and consumption for one election.
type Stats struct {
	Issued    int
	FPTPUsed  int
	PRUsed    int
	FullyUsed int
}

// GetElectionStats implements get_token_stats/get_overall_stats.
func GetElectionStats(ctx *context.CoreContext, electionID string) (Stats, error) {
	tokens, err := ctx.Storage.ListTokensByElection(stdctx.Background(), electionID)
	if err != nil {
		return Stats{}, fmt.Errorf("token: listing tokens: %w", err)
	}
	var s Stats
	s.Issued = len(tokens)
	for _, t := range tokens {
		if t.BallotsUsed[model.BallotFPTP] {
			s.FPTPUsed++
		}
		if t.BallotsUsed[model.BallotPR] {
			s.PRUsed++
		}
		if t.FullyUsed {
			s.FullyUsed++
		}
	}
	return s, nil
}
