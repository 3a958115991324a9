package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"inkpress/api/internal/auth"
	"inkpress/api/internal/store"
)

func TestAuthLoginReturnsContract(t *testing.T) {
	key, address := testKey(t)
	server := NewHTTPServer(newTestService(&fakeFiles{}, &fakeReconciler{}), "*")

	message := fmt.Sprintf("%d inkpress login", time.Now().Unix())
	body, _ := json.Marshal(map[string]any{
		"address":   address,
		"salt":      message,
		"signature": signMessage(t, key, message),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["token"] == "" || payload["token"] == nil {
		t.Fatal("expected token")
	}
	if payload["expiresIn"] != "2h" {
		t.Fatalf("expected expiresIn 2h, got %v", payload["expiresIn"])
	}
	if payload["address"] != strings.ToLower(address) {
		t.Fatalf("expected lowercase address, got %v", payload["address"])
	}
}

func TestAuthLoginAcceptsTypedData(t *testing.T) {
	key, address := testKey(t)
	server := NewHTTPServer(newTestService(&fakeFiles{}, &fakeReconciler{}), "*")

	data := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Login": {
				{Name: "wallet", Type: "address"},
				{Name: "nonce", Type: "string"},
				{Name: "issuedAt", Type: "uint256"},
			},
		},
		PrimaryType: "Login",
		Domain: apitypes.TypedDataDomain{
			Name:    "Inkpress",
			Version: "1",
			ChainId: math.NewHexOrDecimal256(1),
		},
		Message: apitypes.TypedDataMessage{
			"wallet":   address,
			"nonce":    "nonce-7",
			"issuedAt": fmt.Sprintf("%d", time.Now().Unix()),
		},
	}
	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		t.Fatalf("hash typed data: %v", err)
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign typed data: %v", err)
	}
	sig[64] += 27

	body, _ := json.Marshal(map[string]any{
		"address":   address,
		"signature": hexutil.Encode(sig),
		"typedData": data,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["token"] == "" || payload["token"] == nil {
		t.Fatal("expected token")
	}
}

func TestAuthLoginRejectsBadSignature(t *testing.T) {
	_, address := testKey(t)
	server := NewHTTPServer(newTestService(&fakeFiles{}, &fakeReconciler{}), "*")

	body, _ := json.Marshal(map[string]any{
		"address":   address,
		"salt":      fmt.Sprintf("%d inkpress login", time.Now().Unix()),
		"signature": "0xdeadbeef",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	assertUnauthorizedCode(t, rr)
}

func TestAuthLoginRejectsStaleProof(t *testing.T) {
	key, address := testKey(t)
	server := NewHTTPServer(newTestService(&fakeFiles{}, &fakeReconciler{}), "*")

	message := fmt.Sprintf("%d inkpress login", time.Now().Add(-5*time.Minute).Unix())
	body, _ := json.Marshal(map[string]any{
		"address":   address,
		"salt":      message,
		"signature": signMessage(t, key, message),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	assertUnauthorizedCode(t, rr)
}

func TestAuthLoginRejectsInvalidBody(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeFiles{}, &fakeReconciler{}), "*")
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"address":`))
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != "INVALID_BODY" {
		t.Fatalf("expected code INVALID_BODY, got %v", payload["code"])
	}
}

func TestPendingWithoutBearerReturnsUnauthorized(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeFiles{}, &fakeReconciler{}), "*")
	req := httptest.NewRequest(http.MethodGet, "/api/files/pending?owner=0xabc", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	assertUnauthorizedCode(t, rr)
}

func TestPendingWithExpiredBearerReturnsUnauthorizedDespiteCaseMatch(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeFiles{}, &fakeReconciler{}), "*")

	// Token for 0xABCD..., expired: the owner query matches after case
	// normalization, but expiry still wins.
	owner := "0xABCD00000000000000000000000000000000abcd"
	token, err := auth.IssueToken([]byte("test-secret"), owner, -time.Second)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/files/pending?owner="+strings.ToLower(owner), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	assertUnauthorizedCode(t, rr)
}

func TestPendingOwnerMismatchReturnsForbidden(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeFiles{}, &fakeReconciler{}), "*")

	token, err := auth.IssueToken([]byte("test-secret"), "0xaaa", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/files/pending?owner=0xbbb", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestPendingOwnerCaseInsensitiveMatch(t *testing.T) {
	var requestedOwner string
	files := &fakeFiles{}
	files.pendingFn = func(_ context.Context, owner string) ([]store.Record, error) {
		requestedOwner = owner
		return nil, nil
	}
	server := NewHTTPServer(newTestService(files, &fakeReconciler{}), "*")

	token, err := auth.IssueToken([]byte("test-secret"), "0xAbCd00000000000000000000000000000000AbCd", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/files/pending?owner=0xABCD00000000000000000000000000000000ABCD", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if requestedOwner == "" {
		t.Fatal("expected pending lookup to run")
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if _, ok := payload["files"]; !ok {
		t.Fatalf("expected files key, got %v", payload)
	}
}

func TestPendingMissingOwnerReturnsBadRequest(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeFiles{}, &fakeReconciler{}), "*")

	token, err := auth.IssueToken([]byte("test-secret"), "0xaaa", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/files/pending", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func assertUnauthorizedCode(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected code UNAUTHORIZED, got %v", payload["code"])
	}
}
