// keyceremony generates a fresh election key bundle, publishes the public
// keys on the election record, and walks an operator through handing each
// Shamir share to one custodian in turn.
//
// The store it wires here is storage.NewMemory(), which starts empty on
// every invocation: the backing store engine is external to this module
// (see DESIGN.md), so this binary illustrates wiring D (key lifecycle)
// into a Store rather than doubling as a deployable operator tool. A real
// deployment supplies its own storage.Store implementation and seeds the
// election before running this.
package main

import (
	stdctx "context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"votingcore/pkg/audit"
	"votingcore/pkg/ceremony"
	"votingcore/pkg/config"
	"votingcore/pkg/context"
	"votingcore/pkg/keylifecycle"
	"votingcore/pkg/log"
	"votingcore/pkg/metrics"
	"votingcore/pkg/principal"
	"votingcore/pkg/shamir"
	"votingcore/pkg/storage"
)

func main() {
	cfg := config.NewConfig()
	electionID := flag.Arg(0)
	if electionID == "" {
		log.Fatalf("usage: keyceremony [flags] <election_id>")
	}

	rec := metrics.NewRecorder()
	store := storage.NewMemory()
	coreCtx := context.NewContext(store, cfg, rec)

	if err := rec.Record("KeyCeremony", metrics.MLogic, func() error {
		return runCeremony(coreCtx, electionID)
	}); err != nil {
		log.Fatalf("Key ceremony failed: %v", err)
	}

	rec.PrintTree(os.Stdout, 8, 20)
}

func runCeremony(ctx *context.CoreContext, electionID string) error {
	log.Info("Generating election keys (t=%d, n=%d, rsa=%d bits)...", ctx.Config.Threshold, ctx.Config.Shares, ctx.Config.RSABits)

	var generated *keylifecycle.GeneratedKeys
	if err := ctx.Recorder.Record("GenerateKeys", metrics.MCrypto, func() error {
		var err error
		generated, err = keylifecycle.GenerateElectionKeys(ctx.Config.Threshold, ctx.Config.Shares, ctx.Config.RSABits)
		return err
	}); err != nil {
		return fmt.Errorf("generating election keys: %w", err)
	}

	election, err := ctx.Storage.GetElection(stdctx.Background(), electionID)
	if err != nil {
		return fmt.Errorf("looking up election %s: %w", electionID, err)
	}
	election.PublicKeys = generated.PublicKeysJSON
	election.SealedPrivateKeys = generated.SealedPrivateKeys
	if err := ctx.Storage.UpdateElection(stdctx.Background(), election); err != nil {
		return fmt.Errorf("storing election with published keys: %w", err)
	}

	log.Info("Handing %d shares to custodians via %s output...", len(generated.Shares), ctx.Config.Output)
	for _, share := range generated.Shares {
		if err := deliverShare(ctx, share); err != nil {
			return fmt.Errorf("delivering share %d: %w", share.Index, err)
		}
	}

	who := principal.FromAdmin(ctx.Config.Operator)
	details := map[string]any{"election_id": electionID, "threshold": ctx.Config.Threshold, "shares": ctx.Config.Shares}
	if err := audit.Log(ctx, audit.CategoryElection, audit.EventKeysPublished, "election keys generated and published", who.ID(), who.Kind().String(), "", "", details, time.Now().UTC()); err != nil {
		return fmt.Errorf("logging audit entry: %w", err)
	}

	log.Info("Key ceremony complete for election %s.", electionID)
	return nil
}

func deliverShare(ctx *context.CoreContext, share shamir.Share) error {
	switch ctx.Config.Output {
	case config.OutputTerminal:
		return ceremony.DisplayTerminal(share)
	case config.OutputPDF, config.OutputQR:
		outPath := filepath.Join(ctx.Config.DataPath, fmt.Sprintf("share-%d.pdf", share.Index))
		if err := ceremony.RenderPDF(share, outPath); err != nil {
			return err
		}
		log.Info("Wrote share %d to %s", share.Index, outPath)
		if ctx.Config.Printer != "" {
			log.Info("Send %s to printer %q to hand it to the custodian.", outPath, ctx.Config.Printer)
		}
		return nil
	default:
		return fmt.Errorf("unknown ceremony output mode %q", ctx.Config.Output)
	}
}
