// Package principal models the two disjoint capability sets that act on
// the core - electors and administrators - replacing the source's
// UserMixin-style inheritance (spec.md §9 Design Notes) with a small
// closed interface. Nothing here ever treats one kind as a subtype of the
// other; callers switch on Kind() explicitly.
package principal

// Kind distinguishes the two disjoint principal types.
type Kind int

const (
	KindVoter Kind = iota
	KindAdmin
)

func (k Kind) String() string {
	switch k {
	case KindVoter:
		return "elector"
	case KindAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Principal is the capability set shared by anything that can act against
// the core. It carries no behaviour beyond identity - authorization
// decisions belong to the caller, not to this type.
type Principal interface {
	ID() string
	Kind() Kind
}

// Voter is a registered elector acting against the core.
type Voter struct {
	ElectorID string
}

func (v Voter) ID() string { return v.ElectorID }
func (v Voter) Kind() Kind { return KindVoter }

// Admin is an election administrator or custodian acting against the
// core (key generation, tally, termination).
type Admin struct {
	AdminID string
}

func (a Admin) ID() string { return a.AdminID }
func (a Admin) Kind() Kind { return KindAdmin }

// FromElector tags an elector ID as a Voter principal for audit logging.
func FromElector(electorID string) Principal {
	return Voter{ElectorID: electorID}
}

// FromAdmin tags an administrator or custodian ID as an Admin principal
// for audit logging by the CLI entry points.
func FromAdmin(adminID string) Principal {
	return Admin{AdminID: adminID}
}
