// Package lifecycle governs the draft/publish/delete state machine of a
// content record. The content store is the single source of truth; the
// manager holds no mutable state of its own.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"inkpress/api/internal/auth"
	"inkpress/api/internal/store"
	"inkpress/api/internal/util"
)

type ContentStore interface {
	Put(ctx context.Context, record store.Record, body []byte) error
	Lookup(ctx context.Context, contentAddress string) (store.Record, error)
	Delete(ctx context.Context, contentAddress string) error
	ListPendingByOwner(ctx context.Context, owner string) ([]store.Record, error)
	MarkOnchain(ctx context.Context, contentAddress string) error
	SetTags(ctx context.Context, contentAddress string, tags map[string]string) error
}

type authenticator interface {
	Authenticate(auth.Proof) bool
}

type Manager struct {
	auth  authenticator
	store ContentStore
}

func NewManager(authenticator authenticator, contentStore ContentStore) *Manager {
	return &Manager{auth: authenticator, store: contentStore}
}

// CreateDraft persists a new pending record owned by the proven address. No
// ownership check applies because the record does not exist yet.
func (m *Manager) CreateDraft(ctx context.Context, proof auth.Proof, content []byte, groupID string) (store.Record, error) {
	if !m.auth.Authenticate(proof) {
		return store.Record{}, ErrUnauthenticated
	}
	owner := strings.ToLower(proof.Address)
	name := DeriveName(owner, proof.Message)
	if groupID == "" {
		groupID = "grp_" + name
	}
	record := store.Record{
		ID:             util.NewID("file"),
		ContentAddress: ContentAddress(content),
		Name:           name,
		GroupID:        groupID,
		Owner:          owner,
		Status:         store.StatusPending,
	}
	if existing, err := m.store.Lookup(ctx, record.ContentAddress); err == nil {
		return store.Record{}, fmt.Errorf("content %s already recorded for %s: %w", record.ContentAddress, existing.Owner, ErrConflict)
	} else if !errors.Is(err, store.ErrRecordNotFound) {
		return store.Record{}, err
	}
	if err := m.store.Put(ctx, record, content); err != nil {
		return store.Record{}, err
	}
	return record, nil
}

// UpdateDraft replaces a pending record's content. The replace is two store
// calls, delete then put; a crash in between leaves the record transiently
// absent until the caller resubmits.
func (m *Manager) UpdateDraft(ctx context.Context, proof auth.Proof, contentAddress string, content []byte) (store.Record, error) {
	existing, err := m.ownedPending(ctx, proof, contentAddress)
	if err != nil {
		return store.Record{}, err
	}
	name := DeriveName(existing.Owner, proof.Message)
	if name == existing.Name {
		return store.Record{}, fmt.Errorf("update intent already applied: %w", ErrConflict)
	}
	replacement := store.Record{
		ID:             existing.ID,
		ContentAddress: ContentAddress(content),
		Name:           name,
		GroupID:        existing.GroupID,
		Owner:          existing.Owner,
		Status:         store.StatusPending,
		Tags:           existing.Tags,
	}
	if err := m.store.Delete(ctx, existing.ContentAddress); err != nil {
		return store.Record{}, err
	}
	if err := m.store.Put(ctx, replacement, content); err != nil {
		return store.Record{}, err
	}
	return replacement, nil
}

// DeleteDraft hard-removes a pending record and returns its last known
// descriptor.
func (m *Manager) DeleteDraft(ctx context.Context, proof auth.Proof, contentAddress string) (store.Record, error) {
	existing, err := m.ownedPending(ctx, proof, contentAddress)
	if err != nil {
		return store.Record{}, err
	}
	if DeriveName(existing.Owner, proof.Message) == existing.Name {
		return store.Record{}, fmt.Errorf("delete intent already applied: %w", ErrConflict)
	}
	if err := m.store.Delete(ctx, existing.ContentAddress); err != nil {
		return store.Record{}, err
	}
	return existing, nil
}

// PreparePublish attaches publish-time labels to a pending record without
// changing its status.
func (m *Manager) PreparePublish(ctx context.Context, proof auth.Proof, contentAddress string, labels map[string]string) (store.Record, error) {
	existing, err := m.ownedPending(ctx, proof, contentAddress)
	if err != nil {
		return store.Record{}, err
	}
	merged := make(map[string]string, len(existing.Tags)+len(labels))
	for k, v := range existing.Tags {
		merged[k] = v
	}
	for k, v := range labels {
		merged[k] = v
	}
	if err := m.store.SetTags(ctx, contentAddress, merged); err != nil {
		return store.Record{}, err
	}
	existing.Tags = merged
	return existing, nil
}

func (m *Manager) PendingByOwner(ctx context.Context, owner string) ([]store.Record, error) {
	return m.store.ListPendingByOwner(ctx, strings.ToLower(owner))
}

// TransitionOutcome distinguishes a publish transition that changed state
// from one that found nothing left to do. Both are success.
type TransitionOutcome int

const (
	TransitionApplied TransitionOutcome = iota
	TransitionNoOp
)

// ApplyOnchainTransition moves a pending record owned by authorAddress to
// onchain. A missing or already-transitioned record is a no-op, not an
// error: duplicate and out-of-order webhook deliveries are expected.
func (m *Manager) ApplyOnchainTransition(ctx context.Context, contentAddress, authorAddress string) (TransitionOutcome, error) {
	record, err := m.store.Lookup(ctx, contentAddress)
	if errors.Is(err, store.ErrRecordNotFound) {
		return TransitionNoOp, nil
	}
	if err != nil {
		return TransitionNoOp, err
	}
	if !strings.EqualFold(record.Owner, authorAddress) {
		return TransitionNoOp, nil
	}
	if record.Status != store.StatusPending {
		return TransitionNoOp, nil
	}
	if err := m.store.MarkOnchain(ctx, contentAddress); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return TransitionNoOp, nil
		}
		return TransitionNoOp, err
	}
	return TransitionApplied, nil
}

// ownedPending runs the shared guard chain for owner-initiated mutations:
// proof, existence, ownership, then terminal state.
func (m *Manager) ownedPending(ctx context.Context, proof auth.Proof, contentAddress string) (store.Record, error) {
	if !m.auth.Authenticate(proof) {
		return store.Record{}, ErrUnauthenticated
	}
	record, err := m.store.Lookup(ctx, contentAddress)
	if errors.Is(err, store.ErrRecordNotFound) {
		return store.Record{}, ErrNotFound
	}
	if err != nil {
		return store.Record{}, err
	}
	if !strings.EqualFold(record.Owner, proof.Address) {
		return store.Record{}, ErrUnauthorized
	}
	if record.Status == store.StatusOnchain {
		return store.Record{}, fmt.Errorf("record is onchain: %w", ErrConflict)
	}
	return record, nil
}
