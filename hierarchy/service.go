/*
service.go - Chain configuration and resolution

PURPOSE:
  Validates administrator changes to approval chains and resolves the
  applicable chain for an applicant.

VALIDATION ON ADD:
  - A position never approves its own requests (SelfApprovalError)
  - A position appears at most once per chain (DuplicateApproverError)
  - Order is assigned as max(existing) + 1, or 1 for the first entry

RESOLUTION PRECEDENCE:
  Position-specific chain if any entries exist for it; otherwise the
  organization-wide chain for the applicant type; otherwise empty.
  Never merged.
*/
package hierarchy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/engine"
)

// Service owns ApprovalHierarchyEntry rows. All chain mutations go
// through here; nothing else writes entries.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// AddApprover appends an approver position to the chain for key.
// The new entry's order is one past the current maximum.
func (s *Service) AddApprover(ctx context.Context, key Key, approver engine.PositionID, isFinal, isOptional bool) (Entry, error) {
	if !key.ApplicantType.Valid() {
		return Entry{}, fmt.Errorf("invalid chain key: unknown applicant type %q", key.ApplicantType)
	}
	if key.PositionID != nil && *key.PositionID == approver {
		return Entry{}, engine.ErrSelfApproval
	}

	existing, err := s.store.EntriesForKey(ctx, key)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to load chain: %w", err)
	}

	chain := SortByOrder(existing)
	if chain.ContainsApprover(approver) {
		return Entry{}, engine.ErrDuplicateApprover
	}

	entry := Entry{
		ID:                  engine.EntryID(uuid.NewString()),
		ApplicantType:       key.ApplicantType,
		ApplicantPositionID: key.PositionID,
		ApproverPositionID:  approver,
		Order:               chain.MaxOrder() + 1,
		IsFinalApprover:     isFinal,
		IsOptional:          isOptional,
	}

	if err := s.store.InsertEntry(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("failed to insert entry: %w", err)
	}
	return entry, nil
}

// RemoveApprover deletes a single entry. Remaining orders keep their
// values; resolution tolerates the gap.
func (s *Service) RemoveApprover(ctx context.Context, id engine.EntryID) error {
	return s.store.DeleteEntry(ctx, id)
}

// ListChain returns the entries for exactly this key, sorted by order.
// Unlike ResolveChain it does not fall back to the organization-wide chain.
func (s *Service) ListChain(ctx context.Context, key Key) (Chain, error) {
	entries, err := s.store.EntriesForKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain: %w", err)
	}
	return SortByOrder(entries), nil
}

/// ResolveChain returns the chain that applies to an applicant:
// position-specific entries if any exist, else the organization-wide
// chain, else empty. The result is sorted by order.
func (s *Service) ResolveChain(ctx context.Context, at engine.ApplicantType, pos engine.PositionID) (Chain, error) {
	specific, err := s.store.EntriesForKey(ctx, PositionKey(at, pos))
	if err != nil {
		return nil, fmt.Errorf("failed to load position chain: %w", err)
	}
	if len(specific) > 0 {
		return SortByOrder(specific), nil
	}

	orgWide, err := s.store.EntriesForKey(ctx, OrgWideKey(at))
	if err != nil {
		return nil, fmt.Errorf("failed to load organization-wide chain: %w", err)
	}
	return SortByOrder(orgWide), nil
}
