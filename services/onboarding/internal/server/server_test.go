package server

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"talentcore/internal/ratelimit"
	"talentcore/internal/servicetoken"
	"talentcore/pkg/domain"
	"talentcore/pkg/notify"
	"talentcore/pkg/storage"
	"talentcore/pkg/store"
	"talentcore/services/onboarding/internal/app"
)

func writeKeyPair(t *testing.T) (privPath, pubPath string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	dir := t.TempDir()

	privPath = filepath.Join(dir, "private.pem")
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		t.Fatalf("write private key: %v", err)
	}

	pubPath = filepath.Join(dir, "public.pem")
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		t.Fatalf("write public key: %v", err)
	}
	return privPath, pubPath
}

func newTestServer(t *testing.T, ms *store.MemoryStore) (*Server, string) {
	t.Helper()
	privPath, pubPath := writeKeyPair(t)

	a, err := app.New(app.Config{
		Store:    ms,
		Objects:  storage.NewMemoryObjectStore(),
		Notifier: notify.NewMemoryNotifier(),
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	s, err := New(Config{
		App:                      a,
		InternalJWTPublicKeyPath: pubPath,
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	signer, err := servicetoken.NewSigner(servicetoken.SignerOptions{
		PrivateKeyPath: privPath,
		Issuer:         "hr-portal",
	})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	token, err := signer.Sign("onboarding")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s, token
}

func seedPromotable(ms *store.MemoryStore, candidateID string) {
	now := time.Now().UTC()
	ms.SeedCandidate(domain.Candidate{
		ID: candidateID, FirstName: "Ana", LastName: "Silva",
		Email: candidateID + "@example.test", Status: domain.CandidateScreening,
	})
	ms.SeedApplication(domain.Application{
		ID: candidateID + "-app", CandidateID: candidateID,
		PositionTitle: "Accountant", Department: "Finance",
		Salary: 70000, Status: domain.ApplicationOpen, CreatedAt: now,
	})
	ms.SeedInterview(domain.Interview{
		ID: candidateID + "-iv", ApplicationID: candidateID + "-app",
		Status: domain.InterviewCompleted, Decision: domain.DecisionApproved,
		CreatedAt: now,
	})
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t, store.NewMemoryStore())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestPromoteRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t, store.NewMemoryStore())
	req := httptest.NewRequest(http.MethodPost, "/onboarding/candidates/c1/promote", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestPromoteEndpoint(t *testing.T) {
	ms := store.NewMemoryStore()
	seedPromotable(ms, "cand-1")
	s, token := newTestServer(t, ms)

	req := httptest.NewRequest(http.MethodPost, "/onboarding/candidates/cand-1/promote", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body: %s)", rec.Code, rec.Body.String())
	}
	var res app.PromoteResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.IdentityID == "" || res.TempPassword == "" {
		t.Errorf("incomplete result: %+v", res)
	}
}

func TestPromoteRefusalMapsToConflict(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.SeedCandidate(domain.Candidate{ID: "hired", Email: "h@example.test", Status: domain.CandidateHired})
	s, token := newTestServer(t, ms)

	req := httptest.NewRequest(http.MethodPost, "/onboarding/candidates/hired/promote", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["reason"] != app.ReasonAlreadyHired {
		t.Errorf("reason = %q, want %q", body["reason"], app.ReasonAlreadyHired)
	}
}

func TestAttachmentEndpoint(t *testing.T) {
	ms := store.NewMemoryStore()
	s, token := newTestServer(t, ms)

	payload, _ := json.Marshal(map[string]any{
		"kind":        "resume",
		"ownerId":     "cand-9",
		"fileName":    "resume.pdf",
		"contentType": "application/pdf",
		"content":     []byte("resume bytes"),
	})
	req := httptest.NewRequest(http.MethodPost, "/onboarding/attachments", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body: %s)", rec.Code, rec.Body.String())
	}
	var att domain.Attachment
	if err := json.Unmarshal(rec.Body.Bytes(), &att); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if att.BlobPath == "" {
		t.Error("attachment missing blob path")
	}
	if n := ms.AttachmentCount(); n != 1 {
		t.Errorf("attachment count = %d, want 1", n)
	}
}

func TestRateLimitedEndpoint(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(redisSrv.Addr(), "", "test:ratelimit", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}

	ms := store.NewMemoryStore()
	seedPromotable(ms, "cand-rl")
	_, pubPath := writeKeyPair(t)
	a, err := app.New(app.Config{
		Store:    ms,
		Objects:  storage.NewMemoryObjectStore(),
		Notifier: notify.NewMemoryNotifier(),
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	s, err := New(Config{
		App:                      a,
		InternalJWTPublicKeyPath: pubPath,
		Limiter:                  limiter,
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	for i, want := range []int{http.StatusUnauthorized, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/onboarding/candidates/cand-rl/promote", nil)
		req.RemoteAddr = "10.0.0.9:52000"
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: status = %d, want %d", i, rec.Code, want)
		}
	}
}
