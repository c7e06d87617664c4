// benchmark runs several synthetic elections end to end - key ceremony,
// elector registration, dual-ballot casting, and tally - and aggregates
// per-phase timing across runs, the way the teacher's simulation harness
// aggregates per-phase timing across repeated protocol runs.
package main

import (
	stdctx "context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"votingcore/pkg/ballot"
	"votingcore/pkg/config"
	"votingcore/pkg/context"
	"votingcore/pkg/keylifecycle"
	"votingcore/pkg/log"
	"votingcore/pkg/metrics"
	"votingcore/pkg/model"
	"votingcore/pkg/shamir"
	"votingcore/pkg/storage"
	"votingcore/pkg/tally"
	"votingcore/pkg/token"
)

func main() {
	runs := flag.Int("runs", 3, "Number of synthetic election runs to simulate.")
	electors := flag.Int("electors", 30, "Number of synthetic electors per simulated run.")
	printEach := flag.Bool("print-each", false, "Print each run's own timing tree in addition to the aggregate summary.")
	cfg := config.NewConfig()

	analyzer := metrics.NewAnalyzer()

	for run := 0; run < *runs; run++ {
		log.Info("----- Starting benchmark run %d of %d -----", run+1, *runs)
		rec := metrics.NewRecorder()
		if err := rec.Record("Simulation", metrics.MLogic, func() error {
			return simulateOneElection(cfg, rec, *electors)
		}); err != nil {
			log.Fatalf("benchmark run %d failed: %v", run+1, err)
		}
		if *printEach {
			rec.PrintTree(os.Stdout, 8, 20)
		}
		analyzer.Add(rec)
	}

	printSummary(*runs, *electors, analyzer.Analyze())
}

// simulateOneElection drives one full election lifecycle through the core
// packages, recording each phase under the names printSummary reports on.
func simulateOneElection(cfg *config.Config, rec *metrics.Recorder, numElectors int) error {
	store := storage.NewMemory()
	coreCtx := context.NewContext(store, cfg, rec)
	now := time.Now().UTC()

	var election *model.Election
	var shareLines []string
	if err := rec.Record("Setup", metrics.MLogic, func() error {
		election = seedElection(now)
		if err := coreCtx.Storage.PutElection(stdctx.Background(), election); err != nil {
			return fmt.Errorf("seeding election: %w", err)
		}

		generated, err := keylifecycle.GenerateElectionKeys(cfg.Threshold, cfg.Shares, cfg.RSABits)
		if err != nil {
			return fmt.Errorf("generating election keys: %w", err)
		}
		election.PublicKeys = generated.PublicKeysJSON
		election.SealedPrivateKeys = generated.SealedPrivateKeys
		if err := coreCtx.Storage.UpdateElection(stdctx.Background(), election); err != nil {
			return fmt.Errorf("publishing election keys: %w", err)
		}
		for _, share := range generated.Shares[:cfg.Threshold] {
			shareLines = append(shareLines, shamir.FormatForDisplay(share))
		}
		return nil
	}); err != nil {
		return err
	}

	electorIDs := make([]string, 0, numElectors)
	if err := rec.Record("Registration", metrics.MLogic, func() error {
		for i := 0; i < numElectors; i++ {
			constituency := model.ValidConstituencies[i%len(model.ValidConstituencies)]
			e := model.NewElector(model.NewElectorID(), "Synthetic Elector", fmt.Sprintf("bench-hash-%d", i), "unused", constituency)
			if err := coreCtx.Storage.PutElector(stdctx.Background(), e); err != nil {
				return fmt.Errorf("seeding elector %d: %w", i, err)
			}
			electorIDs = append(electorIDs, e.ElectorID)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := rec.Record("Voting", metrics.MLogic, func() error {
		for _, electorID := range electorIDs {
			elector, err := coreCtx.Storage.GetElector(stdctx.Background(), electorID)
			if err != nil {
				return fmt.Errorf("looking up elector %s: %w", electorID, err)
			}
			candidate := election.CandidatesByConstituency(elector.Constituency)[0]
			party := election.Parties[0]

			tokenID, err := token.IssueToken(coreCtx, electorID, election.ElectionID, now)
			if err != nil {
				return fmt.Errorf("issuing token for %s: %w", electorID, err)
			}
			if _, err := ballot.CastDualBallot(coreCtx, electorID, election.ElectionID, tokenID, candidate.CandidateID, party.PartyID, now); err != nil {
				return fmt.Errorf("casting ballot for %s: %w", electorID, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	election.Terminate(now.Add(time.Second))
	if err := coreCtx.Storage.UpdateElection(stdctx.Background(), election); err != nil {
		return fmt.Errorf("terminating election: %w", err)
	}

	return rec.Record("Tally", metrics.MLogic, func() error {
		_, err := tally.DecryptAndTally(coreCtx, election.ElectionID, shareLines, cfg.Threshold, now.Add(2*time.Second))
		return err
	})
}

func seedElection(now time.Time) *model.Election {
	candidates := make([]model.Candidate, 0, len(model.ValidConstituencies))
	for _, c := range model.ValidConstituencies {
		candidates = append(candidates, model.Candidate{
			CandidateID:  model.NewCandidateID(),
			Name:         "Candidate " + string(c),
			Party:        "Benchmark Party",
			Constituency: c,
		})
	}
	return &model.Election{
		ElectionID:     model.NewElectionID(now),
		Name:           "Benchmark Election",
		Constituencies: model.ValidConstituencies,
		Candidates:     candidates,
		Parties:        []model.Party{{PartyID: model.NewPartyID(), Name: "Benchmark Party", Symbol: "B"}},
		PRSeats:        10,
		StartAt:        now.Add(-time.Hour),
		EndAt:          now.Add(time.Hour),
		CreatedAt:      now,
	}
}

func printSummary(runs, electors int, result metrics.AnalysisResult) {
	const totalWidth = 54
	const leader = '.'

	border := strings.Repeat("=", totalWidth)
	title := "Median Phase Times (Per Simulated Election)"
	fmt.Println(border)
	fmt.Printf("%*s\n", -totalWidth, fmt.Sprintf("%*s", (totalWidth+len(title))/2, title))
	fmt.Println(strings.Repeat("-", totalWidth))
	fmt.Printf(" Config: %d runs, %d electors\n", runs, electors)
	fmt.Println(border)

	if comp, ok := result.Components["Simulation"]; ok {
		if summary, ok := comp.Summaries["WallClock"]; ok {
			printRow(" Simulation (Total)", summary.WallClock.P50, totalWidth, leader)
		}
	}

	phases := []string{"Setup", "Registration", "Voting", "Tally"}
	for i, phase := range phases {
		prefix := "   ├─ "
		if i == len(phases)-1 {
			prefix = "   └─ "
		}
		if comp, ok := result.Components[phase]; ok {
			if summary, ok := comp.Summaries["WallClock"]; ok {
				printRow(prefix+phase, summary.WallClock.P50, totalWidth, leader)
			}
		}
	}
	fmt.Println(border)
}

func printRow(label string, p50 time.Duration, totalWidth int, leader rune) {
	padding := totalWidth - len(label) - len(p50.String())
	if padding < 1 {
		padding = 1
	}
	fmt.Printf("%s%s %s\n", label, strings.Repeat(string(leader), padding), p50)
}
