// Package audit implements the tamper-evident append-only hash chain of
// spec.md §4.G, grounded on the reference AuditLog model's
// _compute_hash/save chaining and get_recent/get_by_category query helpers.
// Every entry's hash binds it to the previous entry's hash, so any edit to
// a historical entry is detectable by recomputation.
package audit

import (
	stdctx "context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"votingcore/pkg/context"
	"votingcore/pkg/model"
)

// Event categories, mirroring the reference CATEGORY_* constants.
const (
	CategoryAuth     = "authentication"
	CategoryVote     = "voting"
	CategoryElection = "election"
	CategoryAdmin    = "administration"
	CategorySecurity = "security"
)

// Event types, mirroring the reference EVENT_* constants.
const (
	EventLoginSuccess        = "login_success"
	EventLoginFailed         = "login_failed"
	EventLogout              = "logout"
	EventRegister            = "register"
	EventVoteCast            = "vote_cast"
	EventTokenIssued         = "token_issued"
	EventElectionCreated     = "election_created"
	EventElectionDeactivated = "election_deactivated"
	EventRateLimitTriggered  = "rate_limit_triggered"
	EventAdminAction         = "admin_action"
	EventKeysPublished       = "keys_published"
	EventTallyCompleted      = "tally_completed"
)

// canonicalFields is the exact field set spec.md §4.G hashes, with keys
// sorted lexicographically by encoding/json (struct field order below is
// already alphabetical so the emitted JSON needs no further reordering).
type canonicalFields struct {
	Category     string         `json:"category"`
	Details      map[string]any `json:"details"`
	EventType    string         `json:"event_type"`
	IPAddress    string         `json:"ip_address"`
	Message      string         `json:"message"`
	PreviousHash string         `json:"previous_hash"`
	SubjectID    string         `json:"subject_id"`
	SubjectKind  string         `json:"subject_kind"`
	Timestamp    string         `json:"timestamp"`
	UserAgent    string         `json:"user_agent"`
}

// timestampLayout is the second-precision, no-timezone-suffix format
// spec.md §6 requires for audit hashing.
const timestampLayout = "2006-01-02T15:04:05"

func computeHash(e *model.AuditEntry, previousHash string) string {
	fields := canonicalFields{
		Category:     e.Category,
		Details:      e.Details,
		EventType:    e.EventType,
		IPAddress:    e.IPAddress,
		Message:      e.Message,
		PreviousHash: previousHash,
		SubjectID:    e.SubjectID,
		SubjectKind:  e.SubjectKind,
		Timestamp:    e.Timestamp.UTC().Format(timestampLayout),
		UserAgent:    e.UserAgent,
	}
	// encoding/json sorts map keys but not struct fields; this struct's
	// field order is already lexicographic by JSON tag, matching the
	// canonicalisation spec.md §4.G requires.
	canonical, err := json.Marshal(fields)
	if err != nil {
		// Fields are all marshalable primitives and a string-keyed map;
		// this can only happen if Details holds an unmarshalable value,
		// which callers must not construct.
		panic(fmt.Sprintf("audit: canonical encoding failed: %v", err))
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Log implements the AuditLog.log helper: build and append one entry.
func Log(ctx *context.CoreContext, category, eventType, message, subjectID, subjectKind, ipAddress, userAgent string, details map[string]any, now time.Time) error {
	if details == nil {
		details = map[string]any{}
	}
	entry := &model.AuditEntry{
		SequenceID:  model.NewAuditSequenceID(),
		Category:    category,
		EventType:   eventType,
		Message:     message,
		SubjectID:   subjectID,
		SubjectKind: subjectKind,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Details:     details,
		Timestamp:   now,
	}
	return ctx.Storage.AppendAuditEntry(stdctx.Background(), entry, func(prevHash string) string {
		return computeHash(entry, prevHash)
	})
}

// VerifyResult is the outcome of VerifyChain.
type VerifyResult struct {
	OK         bool
	Checked    int
	FirstBadID string
	Reason     string
}

// VerifyChain implements verify_chain: walk entries chronologically,
// checking both previous_hash linkage and the recomputed hash, aborting at
// the first mismatch with a precise localisation. Entries with no
// EntryHash are legacy: they are skipped without a hash check, are not
// included in Checked, and no separate legacy count is returned.
func VerifyChain(ctx *context.CoreContext, limit int) (*VerifyResult, error) {
	entries, err := ctx.Storage.ListAuditEntries(stdctx.Background(), limit)
	if err != nil {
		return nil, fmt.Errorf("audit: listing entries: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	expectedPrev := model.GenesisHash
	checked := 0
	for _, e := range entries {
		if e.EntryHash == "" {
			continue // legacy entry predating chain introduction
		}
		checked++
		if e.PreviousHash != expectedPrev {
			return &VerifyResult{OK: false, Checked: checked, FirstBadID: e.SequenceID, Reason: "previous_hash does not match the preceding entry"}, nil
		}
		if recomputed := computeHash(e, e.PreviousHash); recomputed != e.EntryHash {
			return &VerifyResult{OK: false, Checked: checked, FirstBadID: e.SequenceID, Reason: "entry_hash does not match recomputed hash"}, nil
		}
		expectedPrev = e.EntryHash
	}
	return &VerifyResult{OK: true, Checked: checked}, nil
}
