// tally reconstructs an election's private keys from custodian shares,
// decrypts every stored ballot, and prints the FPTP and PR results.
//
// Like cmd/keyceremony, this wires storage.NewMemory() - empty on every
// run, since the backing store engine is external to this module (see
// DESIGN.md). It illustrates wiring H (tally) into a Store; a real
// deployment supplies its own storage.Store already holding the election
// and its ballots. cmd/benchmark shows the full lifecycle, seeding and
// all, against the in-memory store for exactly this reason.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	"votingcore/pkg/audit"
	"votingcore/pkg/config"
	"votingcore/pkg/context"
	"votingcore/pkg/log"
	"votingcore/pkg/metrics"
	"votingcore/pkg/model"
	"votingcore/pkg/principal"
	"votingcore/pkg/storage"
	"votingcore/pkg/tally"
)

func main() {
	cfg := config.NewConfig()
	electionID := flag.Arg(0)
	if electionID == "" {
		log.Fatalf("usage: tally [flags] <election_id>  (paste one share per line on stdin, blank line to finish)")
	}

	rec := metrics.NewRecorder()
	store := storage.NewMemory()
	coreCtx := context.NewContext(store, cfg, rec)

	shares := readShares(os.Stdin)
	if len(shares) < cfg.Threshold {
		log.Fatalf("need at least %d shares, got %d", cfg.Threshold, len(shares))
	}

	result, err := tally.DecryptAndTally(coreCtx, electionID, shares, cfg.Threshold, time.Now().UTC())
	if err != nil {
		log.Fatalf("Tally failed: %v", err)
	}

	printResults(result)
	rec.PrintTree(os.Stdout, 8, 20)

	who := principal.FromAdmin(cfg.Operator)
	details := map[string]any{"election_id": electionID, "pr_total": result.PR.TotalVotes}
	if err := audit.Log(coreCtx, audit.CategoryElection, audit.EventTallyCompleted, "election tallied", who.ID(), who.Kind().String(), "", "", details, time.Now().UTC()); err != nil {
		log.Error("Could not log tally audit entry: %v", err)
	}

	if verdict, verr := audit.VerifyChain(coreCtx, 0); verr != nil {
		log.Error("Could not verify audit chain: %v", verr)
	} else if !verdict.OK {
		log.Error("Audit chain broken at entry %s: %s", verdict.FirstBadID, verdict.Reason)
	} else {
		log.Info("Audit chain verified: %d entries checked.", verdict.Checked)
	}
}

func readShares(f *os.File) []string {
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	return lines
}

func printResults(result *tally.Result) {
	fmt.Println("=== FPTP Results ===")
	for _, constituency := range model.ValidConstituencies {
		cr, ok := result.FPTP.Constituencies[constituency]
		if !ok {
			continue
		}
		fmt.Printf("%s (%d votes):\n", constituency, cr.TotalVotes)
		for _, c := range cr.Candidates {
			marker := "  "
			if cr.Winner != nil && c.CandidateID == cr.Winner.CandidateID {
				marker = "* "
			}
			fmt.Printf("%s%s (%s): %d\n", marker, c.Name, c.Party, c.Votes)
		}
	}

	fmt.Println("\n=== PR Results ===")
	fmt.Printf("Total votes: %d, total seats: %d\n", result.PR.TotalVotes, result.PR.TotalSeats)
	for _, p := range result.PR.Parties {
		fmt.Printf("  %s: %d votes, %d seats\n", p.Name, p.Votes, p.Seats)
	}
}
