package webhook

import (
	"context"
	"errors"
	"fmt"

	"inkpress/api/internal/lifecycle"
)

var (
	ErrBadSignature = errors.New("webhook signature rejected")
	ErrBadPayload   = errors.New("webhook payload undecodable")
)

type transitioner interface {
	ApplyOnchainTransition(ctx context.Context, contentAddress, authorAddress string) (lifecycle.TransitionOutcome, error)
}

// dedupCache short-circuits deliveries already applied. It is advisory only:
// the lifecycle transition is idempotent with or without it.
type dedupCache interface {
	Seen(ctx context.Context, channel, publicationID string) bool
	Mark(ctx context.Context, channel, publicationID string)
}

// Reconciler composes transport verification, event decoding, and the
// terminal publish transition for both delivery channels.
type Reconciler struct {
	alchemyKey     string
	quicknodeToken string
	manager        transitioner
	cache          dedupCache
}

func NewReconciler(alchemyKey, quicknodeToken string, manager transitioner, cache dedupCache) *Reconciler {
	return &Reconciler{
		alchemyKey:     alchemyKey,
		quicknodeToken: quicknodeToken,
		manager:        manager,
		cache:          cache,
	}
}

// Result reports what a delivery did. Applied and no-op both map to HTTP
// success so providers are never induced to redeliver a resolved event.
type Result struct {
	Outcome   lifecycle.TransitionOutcome
	Event     PublicationEvent
	Matched   bool
	Duplicate bool
}

func (r *Reconciler) HandleAlchemy(ctx context.Context, body []byte, signature string) (Result, error) {
	if !VerifyAlchemy(r.alchemyKey, body, signature) {
		return Result{}, ErrBadSignature
	}
	event, ok, err := DecodeAlchemy(body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return r.apply(ctx, event, ok)
}

func (r *Reconciler) HandleQuickNode(ctx context.Context, body []byte, nonce, timestamp, signature string) (Result, error) {
	if !VerifyQuickNode(r.quicknodeToken, nonce, timestamp, signature, body) {
		return Result{}, ErrBadSignature
	}
	event, ok, err := DecodeQuickNode(body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return r.apply(ctx, event, ok)
}

func (r *Reconciler) apply(ctx context.Context, event PublicationEvent, matched bool) (Result, error) {
	if !matched {
		return Result{Outcome: lifecycle.TransitionNoOp}, nil
	}
	if r.cache != nil && r.cache.Seen(ctx, event.SourceChannel, event.PublicationID) {
		return Result{Outcome: lifecycle.TransitionNoOp, Event: event, Matched: true, Duplicate: true}, nil
	}
	outcome, err := r.manager.ApplyOnchainTransition(ctx, event.ContentAddress, event.AuthorAddress)
	if err != nil {
		return Result{}, err
	}
	if r.cache != nil {
		r.cache.Mark(ctx, event.SourceChannel, event.PublicationID)
	}
	return Result{Outcome: outcome, Event: event, Matched: true}, nil
}
