// Package tally implements decrypt_and_tally (spec.md §4.H): FPTP
// plurality counting per constituency and PR seat allocation via the
// largest-remainder/Hare-quota method. Grounded on the reference
// VoteService.get_fptp_results/_allocate_pr_seats/decrypt_and_get_results.
package tally

import (
	stdctx "context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cloudflare/circl/kem"

	"votingcore/pkg/concurrency"
	"votingcore/pkg/context"
	"votingcore/pkg/hybridcrypto"
	"votingcore/pkg/keylifecycle"
	"votingcore/pkg/metrics"
	"votingcore/pkg/model"
)

// CandidateResult is one candidate's vote count within FPTPResult.
type CandidateResult struct {
	CandidateID string
	Name        string
	Party       string
	Votes       int
}

// ConstituencyResult is the FPTP outcome for one constituency.
type ConstituencyResult struct {
	Constituency model.Constituency
	Candidates   []CandidateResult // sorted by votes descending, ties by lexicographic candidate_id
	Winner       *CandidateResult
	TotalVotes   int
}

// FPTPResult is the full first-past-the-post outcome of an election.
type FPTPResult struct {
	Constituencies map[model.Constituency]ConstituencyResult
}

// PartyResult is one party's vote count and seat allocation within PRResult.
type PartyResult struct {
	PartyID string
	Name    string
	Symbol  string
	Votes   int
	Seats   int
}

// PRResult is the full proportional-representation outcome of an election.
type PRResult struct {
	Parties    []PartyResult // sorted by seats descending, ties by votes descending
	TotalVotes int
	TotalSeats int
}

// Result bundles both ballot kinds' outcomes for one election.
type Result struct {
	FPTP FPTPResult
	PR   PRResult
}

// decryptedBallot is one ballot's payload after decryption, tagged with its
// constituency for FPTP counting.
type decryptedBallot struct {
	payload      model.BallotPayload
	constituency model.Constituency
}

// DecryptAndTally implements decrypt_and_tally: it requires the election to
// have ended, reconstructs both private keys via pkg/keylifecycle, decrypts
// every stored ballot, and tallies FPTP and PR counts. A HybridMismatch or
// CiphertextTampered error on any single ballot fails the whole tally, per
// spec.md §7's propagation policy - it never silently skips a record.
func DecryptAndTally(ctx *context.CoreContext, electionID string, rawShareLines []string, threshold int, now time.Time) (*Result, error) {
	var result *Result
	err := ctx.Recorder.Record("Tally_DecryptAndTally", metrics.MCrypto, func() error {
		election, err := ctx.Storage.GetElection(stdctx.Background(), electionID)
		if err != nil {
			return fmt.Errorf("tally: looking up election: %w", err)
		}
		if !election.HasEnded(now) {
			return model.ErrElectionNotStarted
		}
		if len(election.SealedPrivateKeys) == 0 {
			return fmt.Errorf("tally: election encryption data not found")
		}

		rsaDER, kyberSKBytes, err := keylifecycle.ReconstructPrivateKeys(rawShareLines, threshold, election.SealedPrivateKeys)
		if err != nil {
			return err
		}
		rsaPriv, err := parseRSAPrivateKey(rsaDER)
		if err != nil {
			return fmt.Errorf("tally: parsing reconstructed rsa private key: %w", err)
		}
		kyberPriv, err := hybridcrypto.Scheme.UnmarshalBinaryPrivateKey(kyberSKBytes)
		if err != nil {
			return fmt.Errorf("tally: parsing reconstructed kyber private key: %w", err)
		}
		defer zero(rsaDER)
		defer zero(kyberSKBytes)

		ballots, err := ctx.Storage.ListBallotsByElection(stdctx.Background(), electionID)
		if err != nil {
			return fmt.Errorf("tally: listing ballots: %w", err)
		}

		decrypted, err := decryptAll(ctx, ballots, rsaPriv, kyberPriv)
		if err != nil {
			return err
		}

		fptpCounts, prCounts := countBallots(decrypted)
		fptpResult := BuildFPTPResult(election, fptpCounts)
		prResult := BuildPRResult(election, prCounts)

		result = &Result{FPTP: fptpResult, PR: prResult}
		return nil
	})
	return result, err
}

func decryptAll(ctx *context.CoreContext, ballots []*model.BallotRecord, rsaPriv *rsa.PrivateKey, kyberPriv kem.PrivateKey) ([]decryptedBallot, error) {
	if len(ballots) == 0 {
		return nil, nil
	}
	results, err := concurrency.Map(ctx, ballots, func(b *model.BallotRecord) (decryptedBallot, error) {
		plaintext, err := hybridcrypto.DecryptBallot(b.Ciphertext, rsaPriv, kyberPriv)
		if err != nil {
			return decryptedBallot{}, fmt.Errorf("tally: decrypting ballot (receipt %s): %w", b.ReceiptID, err)
		}
		var payload model.BallotPayload
		if err := json.Unmarshal(plaintext, &payload); err != nil {
			return decryptedBallot{}, fmt.Errorf("tally: unmarshalling ballot payload: %w", err)
		}
		return decryptedBallot{payload: payload, constituency: b.Constituency}, nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func countBallots(decrypted []decryptedBallot) (fptpCounts map[model.Constituency]map[string]int, prCounts map[string]int) {
	fptpCounts = make(map[model.Constituency]map[string]int)
	prCounts = make(map[string]int)
	for _, d := range decrypted {
		switch d.payload.Kind {
		case model.BallotFPTP:
			if fptpCounts[d.constituency] == nil {
				fptpCounts[d.constituency] = make(map[string]int)
			}
			fptpCounts[d.constituency][d.payload.CandidateID]++
		case model.BallotPR:
			prCounts[d.payload.PartyID]++
		}
	}
	return fptpCounts, prCounts
}

// BuildFPTPResult implements the FPTP half of get_fptp_results /
// _build_fptp_results: per constituency, sort candidates by votes
// descending with ties broken by lexicographic candidate_id, and take the
// top entry as the winner.
func BuildFPTPResult(election *model.Election, voteCounts map[model.Constituency]map[string]int) FPTPResult {
	out := FPTPResult{Constituencies: make(map[model.Constituency]ConstituencyResult)}
	for _, constituency := range model.ValidConstituencies {
		candidates := election.CandidatesByConstituency(constituency)
		counts := voteCounts[constituency]

		results := make([]CandidateResult, 0, len(candidates))
		for _, c := range candidates {
			results = append(results, CandidateResult{
				CandidateID: c.CandidateID,
				Name:        c.Name,
				Party:       c.Party,
				Votes:       counts[c.CandidateID],
			})
		}
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].Votes != results[j].Votes {
				return results[i].Votes > results[j].Votes
			}
			return results[i].CandidateID < results[j].CandidateID
		})

		total := 0
		for _, r := range results {
			total += r.Votes
		}

		var winner *CandidateResult
		if len(results) > 0 {
			w := results[0]
			winner = &w
		}

		out.Constituencies[constituency] = ConstituencyResult{
			Constituency: constituency,
			Candidates:   results,
			Winner:       winner,
			TotalVotes:   total,
		}
	}
	return out
}

// BuildPRResult implements the PR half of get_pr_results / _allocate_pr_seats:
// Hare quota with largest-remainder seat distribution.
func BuildPRResult(election *model.Election, voteCounts map[string]int) PRResult {
	totalVotes := 0
	for _, v := range voteCounts {
		totalVotes += v
	}
	totalSeats := election.PRSeats

	allocation := AllocatePRSeats(voteCounts, totalSeats)

	results := make([]PartyResult, 0, len(election.Parties))
	for _, p := range election.Parties {
		results = append(results, PartyResult{
			PartyID: p.PartyID,
			Name:    p.Name,
			Symbol:  p.Symbol,
			Votes:   voteCounts[p.PartyID],
			Seats:   allocation[p.PartyID],
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Seats != results[j].Seats {
			return results[i].Seats > results[j].Seats
		}
		return results[i].Votes > results[j].Votes
	})

	return PRResult{Parties: results, TotalVotes: totalVotes, TotalSeats: totalSeats}
}

// AllocatePRSeats implements _allocate_pr_seats: Hare quota q = totalVotes /
// totalSeats (real division), floor division per party, remaining seats
// assigned in descending order of remainder with ties broken by descending
// raw votes then lexicographic party_id. If totalVotes is 0, every party
// gets 0 seats.
func AllocatePRSeats(partyVotes map[string]int, totalSeats int) map[string]int {
	allocation := make(map[string]int, len(partyVotes))
	if len(partyVotes) == 0 || totalSeats <= 0 {
		return allocation
	}

	totalVotes := 0
	for _, v := range partyVotes {
		totalVotes += v
	}
	if totalVotes == 0 {
		for partyID := range partyVotes {
			allocation[partyID] = 0
		}
		return allocation
	}

	quota := float64(totalVotes) / float64(totalSeats)

	type remainder struct {
		partyID string
		votes   int
		rem     float64
	}
	remainders := make([]remainder, 0, len(partyVotes))
	allocatedSeats := 0
	for partyID, votes := range partyVotes {
		exact := float64(votes) / quota
		seats := int(exact)
		allocation[partyID] = seats
		allocatedSeats += seats
		remainders = append(remainders, remainder{partyID: partyID, votes: votes, rem: exact - float64(seats)})
	}

	sort.SliceStable(remainders, func(i, j int) bool {
		if remainders[i].rem != remainders[j].rem {
			return remainders[i].rem > remainders[j].rem
		}
		if remainders[i].votes != remainders[j].votes {
			return remainders[i].votes > remainders[j].votes
		}
		return remainders[i].partyID < remainders[j].partyID
	})

	remaining := totalSeats - allocatedSeats
	for i := 0; i < remaining && i < len(remainders); i++ {
		allocation[remainders[i].partyID]++
	}
	return allocation
}

func parseRSAPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("tally: reconstructed private key has unexpected type %T", key)
	}
	return rsaKey, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
