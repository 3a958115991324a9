package app

import (
	"context"
	"net/http"
	"strings"

	"inkpress/api/internal/auth"
	"inkpress/api/internal/config"
	"inkpress/api/internal/store"
	"inkpress/api/internal/webhook"
)

type fileManager interface {
	CreateDraft(ctx context.Context, proof auth.Proof, content []byte, groupID string) (store.Record, error)
	UpdateDraft(ctx context.Context, proof auth.Proof, contentAddress string, content []byte) (store.Record, error)
	DeleteDraft(ctx context.Context, proof auth.Proof, contentAddress string) (store.Record, error)
	PreparePublish(ctx context.Context, proof auth.Proof, contentAddress string, tags map[string]string) (store.Record, error)
	PendingByOwner(ctx context.Context, owner string) ([]store.Record, error)
}

type webhookReconciler interface {
	HandleAlchemy(ctx context.Context, body []byte, signature string) (webhook.Result, error)
	HandleQuickNode(ctx context.Context, body []byte, nonce, timestamp, signature string) (webhook.Result, error)
}

type proofVerifier interface {
	Authenticate(auth.Proof) bool
	AuthenticateTyped(auth.TypedProof) bool
}

type Service struct {
	cfg        config.Config
	verifier   proofVerifier
	files      fileManager
	reconciler webhookReconciler
}

func New(cfg config.Config, verifier proofVerifier, files fileManager, reconciler webhookReconciler) *Service {
	return &Service{cfg: cfg, verifier: verifier, files: files, reconciler: reconciler}
}

type LoginResult struct {
	Token     string `json:"token"`
	Address   string `json:"address"`
	ExpiresIn string `json:"expiresIn"`
}

// Login exchanges a valid ownership proof for a short-lived bearer token.
func (s *Service) Login(_ context.Context, proof auth.Proof) (LoginResult, error) {
	if !s.verifier.Authenticate(proof) {
		return LoginResult{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	}
	return s.issueToken(proof.Address)
}

// LoginTyped is the structured-payload variant of Login.
func (s *Service) LoginTyped(_ context.Context, proof auth.TypedProof) (LoginResult, error) {
	if !s.verifier.AuthenticateTyped(proof) {
		return LoginResult{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	}
	return s.issueToken(proof.Address)
}

func (s *Service) issueToken(address string) (LoginResult, error) {
	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), address, s.cfg.SessionTTL)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Token:     token,
		Address:   strings.ToLower(address),
		ExpiresIn: formatTTL(s.cfg.SessionTTL),
	}, nil
}

// AddressFromToken verifies a bearer token and returns the lowercase
// identity it carries.
func (s *Service) AddressFromToken(token string) (string, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return "", err
	}
	return claims.Address, nil
}
