package audit

import (
	stdctx "context"
	"crypto/sha256"
	"fmt"

	"github.com/cbergoon/merkletree"

	"votingcore/pkg/context"
	"votingcore/pkg/model"
)

// DefaultCheckpointInterval is how many appended entries are folded into
// one Merkle checkpoint, per spec.md §4.J.
const DefaultCheckpointInterval = 100

// entryContent adapts an audit entry's hash to merkletree.Content so a
// batch of entries can be folded into a tree without re-hashing their
// already-computed entry_hash.
type entryContent struct {
	entryHash string
}

func (c entryContent) CalculateHash() ([]byte, error) {
	sum := sha256.Sum256([]byte(c.entryHash))
	return sum[:], nil
}

func (c entryContent) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(entryContent)
	if !ok {
		return false, fmt.Errorf("audit: checkpoint content type mismatch")
	}
	return c.entryHash == o.entryHash, nil
}

// Checkpoint is a redundant, independently-verifiable summary over one
// batch of consecutive audit entries. Its absence or mismatch never fails
// VerifyChain - only VerifyCheckpoint consults it.
type Checkpoint struct {
	FirstSequenceID string
	LastSequenceID  string
	EntryCount      int
	MerkleRoot      []byte
}

// BuildCheckpoint folds a contiguous batch of entries into one Merkle
// tree and returns its root, per spec.md §4.J.
func BuildCheckpoint(entries []*model.AuditEntry) (*Checkpoint, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("audit: cannot build a checkpoint over zero entries")
	}
	contents := make([]merkletree.Content, 0, len(entries))
	for _, e := range entries {
		contents = append(contents, entryContent{entryHash: e.EntryHash})
	}
	tree, err := merkletree.NewTree(contents)
	if err != nil {
		return nil, fmt.Errorf("audit: building merkle tree: %w", err)
	}
	return &Checkpoint{
		FirstSequenceID: entries[0].SequenceID,
		LastSequenceID:  entries[len(entries)-1].SequenceID,
		EntryCount:      len(entries),
		MerkleRoot:      tree.MerkleRoot(),
	}, nil
}

// MaybeCheckpoint builds a checkpoint over the most recent interval entries
// (DefaultCheckpointInterval when interval <= 0) once that many have
// accumulated since the last checkpoint boundary; it returns nil, nil when
// not at a boundary.
func MaybeCheckpoint(ctx *context.CoreContext, interval int) (*Checkpoint, error) {
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	entries, err := ctx.Storage.ListAuditEntries(stdctx.Background(), 0)
	if err != nil {
		return nil, fmt.Errorf("audit: listing entries: %w", err)
	}
	if len(entries) == 0 || len(entries)%interval != 0 {
		return nil, nil
	}
	batch := entries[len(entries)-interval:]
	return BuildCheckpoint(batch)
}

// VerifyCheckpoint recomputes a checkpoint's Merkle root over the same
// entry batch and compares it against the stored root. A mismatch here is
// never fatal to chain verification - it flags only that the optional
// external attestation is stale or was tampered with.
func VerifyCheckpoint(cp *Checkpoint, entries []*model.AuditEntry) (bool, error) {
	recomputed, err := BuildCheckpoint(entries)
	if err != nil {
		return false, err
	}
	if len(recomputed.MerkleRoot) != len(cp.MerkleRoot) {
		return false, nil
	}
	for i := range recomputed.MerkleRoot {
		if recomputed.MerkleRoot[i] != cp.MerkleRoot[i] {
			return false, nil
		}
	}
	return true, nil
}
