/*
Package hierarchy manages the position-based approval chains.

PURPOSE:
  A chain is the ordered list of approver positions that a leave
  application must pass through. Chains are keyed by
  (applicant type, applicant position); the position may be absent,
  in which case the chain is the organization-wide fallback for that
  applicant type.

RESOLUTION:
  Position-specific entries always win over the organization-wide
  chain — the two are never merged. Resolution is a pure function of
  the current entry set: no caching, re-derivable at any time.

ORDER GAPS:
  Removing an entry never renumbers the survivors. All chain walks sort
  by order value and must never assume contiguity.

ENTRY LIFECYCLE:
  Entries are created and deleted, never mutated. Reconfiguration is
  delete + add.

SEE ALSO:
  - service.go: Add/remove validation
  - store.go: Persistence interface
*/
package hierarchy

import (
	"sort"

	"github.com/warp/leave-engine/engine"
)

// =============================================================================
// KEY - Identifies one chain
// =============================================================================

// Key identifies a chain. PositionID nil means the organization-wide
// chain for the applicant type.
type Key struct {
	ApplicantType engine.ApplicantType
	PositionID    *engine.PositionID
}

// OrgWideKey returns the fallback key for an applicant type.
func OrgWideKey(at engine.ApplicantType) Key {
	return Key{ApplicantType: at}
}

// PositionKey returns the position-specific key.
func PositionKey(at engine.ApplicantType, pos engine.PositionID) Key {
	return Key{ApplicantType: at, PositionID: &pos}
}

// IsOrgWide reports whether this key addresses the fallback chain.
func (k Key) IsOrgWide() bool { return k.PositionID == nil }

// Matches reports whether an entry belongs to this chain.
func (k Key) Matches(e Entry) bool {
	if e.ApplicantType != k.ApplicantType {
		return false
	}
	if k.PositionID == nil {
		return e.ApplicantPositionID == nil
	}
	return e.ApplicantPositionID != nil && *e.ApplicantPositionID == *k.PositionID
}

// =============================================================================
// ENTRY - One edge in a chain
// =============================================================================

type Entry struct {
	ID                  engine.EntryID
	ApplicantType       engine.ApplicantType
	ApplicantPositionID *engine.PositionID // nil = organization-wide
	ApproverPositionID  engine.PositionID
	Order               int // positive; unique within the chain, gaps tolerated
	IsFinalApprover     bool
	IsOptional          bool
}

// Key returns the chain key this entry belongs to.
func (e Entry) Key() Key {
	return Key{ApplicantType: e.ApplicantType, PositionID: e.ApplicantPositionID}
}

// =============================================================================
// CHAIN - Resolved, ordered entries
// =============================================================================

// Chain is a resolved approval chain, sorted ascending by order.
type Chain []Entry

// SortByOrder returns entries sorted ascending by order value.
func SortByOrder(entries []Entry) Chain {
	c := make(Chain, len(entries))
	copy(c, entries)
	sort.Slice(c, func(i, j int) bool { return c[i].Order < c[j].Order })
	return c
}

// IsEmpty reports whether the chain has no entries at all.
func (c Chain) IsEmpty() bool { return len(c) == 0 }

// EntryAt returns the entry with the given order value, or false.
func (c Chain) EntryAt(order int) (Entry, bool) {
	for _, e := range c {
		if e.Order == order {
			return e, true
		}
	}
	return Entry{}, false
}

// FirstRequired returns the first non-optional entry, walking by order.
// Optional stages are auto-advanced past without requiring a decision.
func (c Chain) FirstRequired() (Entry, bool) {
	for _, e := range c {
		if !e.IsOptional {
			return e, true
		}
	}
	return Entry{}, false
}

// NextRequiredAfter returns the first non-optional entry with order
// strictly greater than the given order, or false if none remains.
func (c Chain) NextRequiredAfter(order int) (Entry, bool) {
	for _, e := range c {
		if e.Order > order && !e.IsOptional {
			return e, true
		}
	}
	return Entry{}, false
}

// MaxOrder returns the highest order value in the chain, or 0 if empty.
func (c Chain) MaxOrder() int {
	max := 0
	for _, e := range c {
		if e.Order > max {
			max = e.Order
		}
	}
	return max
}

// ContainsApprover reports whether a position already appears in the chain.
func (c Chain) ContainsApprover(pos engine.PositionID) bool {
	for _, e := range c {
		if e.ApproverPositionID == pos {
			return true
		}
	}
	return false
}
