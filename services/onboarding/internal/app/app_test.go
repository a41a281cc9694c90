package app

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"talentcore/pkg/domain"
	"talentcore/pkg/idem"
	"talentcore/pkg/notify"
	"talentcore/pkg/queue"
	"talentcore/pkg/storage"
	"talentcore/pkg/store"
)

type stubRenderer struct {
	pdf []byte
	err error
}

func (s *stubRenderer) RenderContractDocument(_ context.Context, _ domain.Contract) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.pdf, nil
}

// failingContractStore makes CreateContract fail a fixed number of times.
type failingContractStore struct {
	*store.MemoryStore
	failures int
}

func (f *failingContractStore) CreateContract(ctx context.Context, c domain.Contract) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("contracts table unavailable")
	}
	return f.MemoryStore.CreateContract(ctx, c)
}

// racingIdentityStore simulates a concurrent writer winning the identity
// insert: the first CreateIdentity registers a different identity for the
// same email and reports a duplicate.
type racingIdentityStore struct {
	*store.MemoryStore
	winner domain.Identity
	raced  bool
}

func (r *racingIdentityStore) CreateIdentity(ctx context.Context, identity domain.Identity) error {
	if !r.raced {
		r.raced = true
		r.winner = domain.Identity{
			ID:        "identity-winner",
			Email:     identity.Email,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}
		if err := r.MemoryStore.CreateIdentity(ctx, r.winner); err != nil {
			return err
		}
		return store.ErrDuplicateEmail
	}
	return r.MemoryStore.CreateIdentity(ctx, identity)
}

func seedPromotable(ms *store.MemoryStore, candidateID, email, department string) {
	now := time.Now().UTC()
	ms.SeedCandidate(domain.Candidate{
		ID:        candidateID,
		FirstName: "Dana",
		LastName:  "Reyes",
		Email:     email,
		Phone:     "+1-555-0100",
		Status:    domain.CandidateScreening,
		CreatedAt: now,
	})
	ms.SeedApplication(domain.Application{
		ID:            candidateID + "-app",
		CandidateID:   candidateID,
		PositionTitle: "Site Supervisor",
		Department:    department,
		Salary:        95000,
		Status:        domain.ApplicationOpen,
		CreatedAt:     now,
	})
	ms.SeedInterview(domain.Interview{
		ID:            candidateID + "-iv",
		ApplicationID: candidateID + "-app",
		Status:        domain.InterviewCompleted,
		Decision:      domain.DecisionApproved,
		CreatedAt:     now,
	})
}

func newTestApp(t *testing.T, st store.Store, objs storage.ObjectStore, opts ...func(*Config)) (*App, *notify.MemoryNotifier) {
	t.Helper()
	notifier := notify.NewMemoryNotifier()
	cfg := Config{
		Store:            st,
		Objects:          objs,
		Notifier:         notifier,
		Renderer:         &stubRenderer{pdf: []byte("%PDF-1.4 stub")},
		SafetyRecipients: []string{"safety-officer"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, notifier
}

func TestPromotePreconditions(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name   string
		seed   func(ms *store.MemoryStore)
		id     string
		reason string
	}{
		{
			name:   "unknown candidate",
			seed:   func(ms *store.MemoryStore) {},
			id:     "missing",
			reason: ReasonCandidateNotFound,
		},
		{
			name: "already hired",
			seed: func(ms *store.MemoryStore) {
				ms.SeedCandidate(domain.Candidate{ID: "c1", Email: "a@x.test", Status: domain.CandidateHired})
			},
			id:     "c1",
			reason: ReasonAlreadyHired,
		},
		{
			name: "no application",
			seed: func(ms *store.MemoryStore) {
				ms.SeedCandidate(domain.Candidate{ID: "c2", Email: "b@x.test", Status: domain.CandidateScreening})
			},
			id:     "c2",
			reason: ReasonNoApplication,
		},
		{
			name: "rejected decision vetoes approval",
			seed: func(ms *store.MemoryStore) {
				seedPromotable(ms, "c3", "c@x.test", "Engineering")
				ms.SeedInterview(domain.Interview{
					ID: "c3-iv2", ApplicationID: "c3-app",
					Status: domain.InterviewCompleted, Decision: domain.DecisionRejected,
					CreatedAt: now,
				})
			},
			id:     "c3",
			reason: ReasonRejectedDecision,
		},
		{
			name: "no approval signal",
			seed: func(ms *store.MemoryStore) {
				ms.SeedCandidate(domain.Candidate{ID: "c4", Email: "d@x.test", Status: domain.CandidateScreening})
				ms.SeedApplication(domain.Application{ID: "c4-app", CandidateID: "c4", PositionTitle: "Analyst", Department: "Finance"})
				ms.SeedInterview(domain.Interview{
					ID: "c4-iv", ApplicationID: "c4-app",
					Status: domain.InterviewCompleted, Feedback: "needs more experience",
					CreatedAt: now,
				})
			},
			id:     "c4",
			reason: ReasonNoApproval,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := store.NewMemoryStore()
			tt.seed(ms)
			a, _ := newTestApp(t, ms, storage.NewMemoryObjectStore())

			_, err := a.Promote(context.Background(), tt.id)
			var pe *PreconditionError
			if !errors.As(err, &pe) {
				t.Fatalf("expected PreconditionError, got %v", err)
			}
			if pe.Reason != tt.reason {
				t.Fatalf("reason = %q, want %q", pe.Reason, tt.reason)
			}
			// A refused promotion must leave no trace in any store.
			if n := ms.AuditCount(); n != 0 {
				t.Errorf("audit records after refusal: %d", n)
			}
			if n := ms.IdentityCount(); n != 0 {
				t.Errorf("identities after refusal: %d", n)
			}
			if n := ms.ReferenceCount(domain.ReferenceArea) + ms.ReferenceCount(domain.ReferencePosition); n != 0 {
				t.Errorf("references after refusal: %d", n)
			}
		})
	}
}

func TestPromoteNewIdentity(t *testing.T) {
	ms := store.NewMemoryStore()
	seedPromotable(ms, "cand-a", "dana@example.test", "Engineering")
	objs := storage.NewMemoryObjectStore()
	a, _ := newTestApp(t, ms, objs)

	res, err := a.Promote(context.Background(), "cand-a")
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if res.IdentityID == "" {
		t.Fatal("missing identity id")
	}
	if res.TempPassword == "" {
		t.Error("expected temp password for newly created identity")
	}
	if res.ContractID == "" {
		t.Error("expected contract id")
	}
	if res.DocumentURL == "" {
		t.Error("expected presigned document url")
	}

	profile, ok := ms.Profile(res.IdentityID)
	if !ok {
		t.Fatal("profile not written")
	}
	if profile.FirstName != "Dana" || profile.LastName != "Reyes" {
		t.Errorf("profile name = %s %s", profile.FirstName, profile.LastName)
	}
	if profile.AreaID == "" || profile.PositionID == "" {
		t.Error("profile missing resolved references")
	}
	if !ms.HasRole(res.IdentityID, "employee") {
		t.Error("employee role not asserted")
	}

	cand, _, _ := ms.GetCandidate(context.Background(), "cand-a")
	if cand.Status != domain.CandidateHired {
		t.Errorf("candidate status = %s, want hired", cand.Status)
	}
	contract, found, _ := ms.GetContractByIdentity(context.Background(), res.IdentityID)
	if !found {
		t.Fatal("contract not written")
	}
	if contract.DocumentPath == "" {
		t.Error("contract document path not linked")
	}
	if !objs.Has(contract.DocumentPath) {
		t.Error("contract document blob missing")
	}
	if n := ms.AuditCount(); n == 0 {
		t.Error("no audit records for successful run")
	}
}

func TestPromoteReusesExistingIdentity(t *testing.T) {
	ms := store.NewMemoryStore()
	seedPromotable(ms, "cand-b", "rehire@example.test", "Engineering")
	existing := domain.Identity{ID: "identity-old", Email: "rehire@example.test", PasswordHash: "x"}
	if err := ms.CreateIdentity(context.Background(), existing); err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	a, _ := newTestApp(t, ms, storage.NewMemoryObjectStore())
	res, err := a.Promote(context.Background(), "cand-b")
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if res.IdentityID != "identity-old" {
		t.Errorf("identity = %s, want identity-old", res.IdentityID)
	}
	if res.TempPassword != "" {
		t.Error("temp password must not be issued for an existing identity")
	}
	if n := ms.IdentityCount(); n != 1 {
		t.Errorf("identity count = %d, want 1", n)
	}
	if _, ok := ms.Profile("identity-old"); !ok {
		t.Error("profile not attached to existing identity")
	}
}

func TestPromoteIdentityRaceRecovers(t *testing.T) {
	inner := store.NewMemoryStore()
	seedPromotable(inner, "cand-r", "race@example.test", "Engineering")
	st := &racingIdentityStore{MemoryStore: inner}

	a, _ := newTestApp(t, st, storage.NewMemoryObjectStore())
	res, err := a.Promote(context.Background(), "cand-r")
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if res.IdentityID != "identity-winner" {
		t.Errorf("identity = %s, want the racing winner", res.IdentityID)
	}
	if res.TempPassword != "" {
		t.Error("temp password leaked for an identity this run did not create")
	}
	if n := inner.IdentityCount(); n != 1 {
		t.Errorf("identity count = %d, want 1", n)
	}
}

func TestPromoteFeedbackHeuristic(t *testing.T) {
	ms := store.NewMemoryStore()
	now := time.Now().UTC()
	ms.SeedCandidate(domain.Candidate{ID: "cand-f", Email: "f@example.test", Status: domain.CandidateScreening})
	ms.SeedApplication(domain.Application{ID: "cand-f-app", CandidateID: "cand-f", PositionTitle: "Analyst", Department: "Finance"})
	ms.SeedInterview(domain.Interview{
		ID: "cand-f-iv", ApplicationID: "cand-f-app",
		Status:    domain.InterviewCompleted,
		Feedback:  "Overall an excellent candidate, would work well with the team.",
		CreatedAt: now,
	})

	a, _ := newTestApp(t, ms, storage.NewMemoryObjectStore())
	if _, err := a.Promote(context.Background(), "cand-f"); err != nil {
		t.Fatalf("Promote with positive feedback: %v", err)
	}
}

func TestPromoteContractFailureIsPartialSuccess(t *testing.T) {
	inner := store.NewMemoryStore()
	seedPromotable(inner, "cand-c", "partial@example.test", "Engineering")
	st := &failingContractStore{MemoryStore: inner, failures: 1}

	a, _ := newTestApp(t, st, storage.NewMemoryObjectStore())
	_, err := a.Promote(context.Background(), "cand-c")
	var ps *PartialSuccessError
	if !errors.As(err, &ps) {
		t.Fatalf("expected PartialSuccessError, got %v", err)
	}
	if ps.IdentityID == "" {
		t.Error("partial result must name the provisioned identity")
	}
	if ps.TempPassword == "" {
		t.Error("partial result must carry the issued temp password")
	}

	// Everything before the contract step stays committed.
	cand, _, _ := inner.GetCandidate(context.Background(), "cand-c")
	if cand.Status != domain.CandidateHired {
		t.Errorf("candidate status = %s, want hired", cand.Status)
	}
	if _, ok := inner.Profile(ps.IdentityID); !ok {
		t.Error("profile rolled back; saga must not undo prior steps")
	}
	if !inner.HasRole(ps.IdentityID, "employee") {
		t.Error("role rolled back; saga must not undo prior steps")
	}
	if n := inner.ContractCount(); n != 0 {
		t.Errorf("contract count = %d, want 0", n)
	}
}

func TestRetryContractAfterPartialSuccess(t *testing.T) {
	inner := store.NewMemoryStore()
	seedPromotable(inner, "cand-c2", "retry@example.test", "Engineering")
	st := &failingContractStore{MemoryStore: inner, failures: 1}

	a, _ := newTestApp(t, st, storage.NewMemoryObjectStore())
	ctx := context.Background()
	if _, err := a.Promote(ctx, "cand-c2"); err == nil {
		t.Fatal("expected partial success error")
	}

	res, err := a.RetryContract(ctx, "cand-c2")
	if err != nil {
		t.Fatalf("RetryContract: %v", err)
	}
	if res.ContractID == "" {
		t.Fatal("retry did not create a contract")
	}
	// Retrying again must return the same contract, not a second one.
	res2, err := a.RetryContract(ctx, "cand-c2")
	if err != nil {
		t.Fatalf("second RetryContract: %v", err)
	}
	if res2.ContractID != res.ContractID {
		t.Errorf("contract id changed across retries: %s vs %s", res.ContractID, res2.ContractID)
	}
	if n := inner.ContractCount(); n != 1 {
		t.Errorf("contract count = %d, want 1", n)
	}
}

func TestPromoteSecondCallRefused(t *testing.T) {
	ms := store.NewMemoryStore()
	seedPromotable(ms, "cand-d", "twice@example.test", "Engineering")
	a, _ := newTestApp(t, ms, storage.NewMemoryObjectStore())

	ctx := context.Background()
	if _, err := a.Promote(ctx, "cand-d"); err != nil {
		t.Fatalf("first Promote: %v", err)
	}
	_, err := a.Promote(ctx, "cand-d")
	var pe *PreconditionError
	if !errors.As(err, &pe) || pe.Reason != ReasonAlreadyHired {
		t.Fatalf("expected already-hired refusal, got %v", err)
	}
	if n := ms.ContractCount(); n != 1 {
		t.Errorf("contract count = %d, want 1", n)
	}
}

func TestPromoteInFlightGuard(t *testing.T) {
	srv := miniredis.RunT(t)
	guard := idem.NewGuard(srv.Addr(), "", "onboarding", time.Minute)

	ms := store.NewMemoryStore()
	seedPromotable(ms, "cand-g", "guard@example.test", "Engineering")
	a, _ := newTestApp(t, ms, storage.NewMemoryObjectStore(), func(cfg *Config) {
		cfg.Guard = guard
	})

	ctx := context.Background()
	release, ok := guard.Acquire(ctx, "promote:cand-g")
	if !ok {
		t.Fatal("setup acquire failed")
	}
	defer release(ctx)

	if _, err := a.Promote(ctx, "cand-g"); !errors.Is(err, ErrPromoteInFlight) {
		t.Fatalf("expected ErrPromoteInFlight, got %v", err)
	}
	if n := ms.IdentityCount(); n != 0 {
		t.Errorf("identities written while promotion in flight: %d", n)
	}
}

func TestPromoteOperationalNotification(t *testing.T) {
	tests := []struct {
		name       string
		department string
		wantSent   int
	}{
		{"operational department", "Field Operations", 1},
		{"office department", "Engineering", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := store.NewMemoryStore()
			seedPromotable(ms, "cand-n", "notify@example.test", tt.department)
			a, notifier := newTestApp(t, ms, storage.NewMemoryObjectStore())

			if _, err := a.Promote(context.Background(), "cand-n"); err != nil {
				t.Fatalf("Promote: %v", err)
			}
			if got := len(notifier.Sent()); got != tt.wantSent {
				t.Errorf("notifications sent = %d, want %d", got, tt.wantSent)
			}
		})
	}
}

func TestPromoteNotificationFailureIsBestEffort(t *testing.T) {
	ms := store.NewMemoryStore()
	seedPromotable(ms, "cand-nf", "nf@example.test", "Warehouse")
	a, notifier := newTestApp(t, ms, storage.NewMemoryObjectStore())
	notifier.Fail(errors.New("broker unreachable"))

	res, err := a.Promote(context.Background(), "cand-nf")
	if err != nil {
		t.Fatalf("Promote must not fail on notification error: %v", err)
	}
	if res.ContractID == "" {
		t.Error("contract missing after notification failure")
	}
}

func TestPromoteDocumentFailureIsBestEffort(t *testing.T) {
	ms := store.NewMemoryStore()
	seedPromotable(ms, "cand-doc", "doc@example.test", "Engineering")
	a, _ := newTestApp(t, ms, storage.NewMemoryObjectStore(), func(cfg *Config) {
		cfg.Renderer = &stubRenderer{err: errors.New("render service down")}
	})

	res, err := a.Promote(context.Background(), "cand-doc")
	if err != nil {
		t.Fatalf("Promote must not fail on document error: %v", err)
	}
	if res.DocumentURL != "" {
		t.Error("document url set despite render failure")
	}
	contract, _, _ := ms.GetContractByIdentity(context.Background(), res.IdentityID)
	if contract.DocumentPath != "" {
		t.Error("document path linked despite render failure")
	}
}

func TestPromoteResolvesReferencesOnce(t *testing.T) {
	ms := store.NewMemoryStore()
	seedPromotable(ms, "cand-ref1", "ref1@example.test", "Engineering")
	seedPromotable(ms, "cand-ref2", "ref2@example.test", "engineering")
	a, _ := newTestApp(t, ms, storage.NewMemoryObjectStore())

	ctx := context.Background()
	if _, err := a.Promote(ctx, "cand-ref1"); err != nil {
		t.Fatalf("first Promote: %v", err)
	}
	if _, err := a.Promote(ctx, "cand-ref2"); err != nil {
		t.Fatalf("second Promote: %v", err)
	}
	// Department names differing only in case map to one area row.
	if n := ms.ReferenceCount(domain.ReferenceArea); n != 1 {
		t.Errorf("area reference count = %d, want 1", n)
	}
}

func TestUploadAndRegisterCompensatesOnInsertFailure(t *testing.T) {
	inner := store.NewMemoryStore()
	st := &attachmentFailStore{MemoryStore: inner}
	objs := storage.NewMemoryObjectStore()
	a, _ := newTestApp(t, st, objs)

	_, err := a.Attachments().UploadAndRegister(context.Background(), UploadRequest{
		Kind:        "resume",
		OwnerID:     "cand-x",
		FileName:    "resume.pdf",
		ContentType: "application/pdf",
		Content:     []byte("resume bytes"),
	})
	if err == nil {
		t.Fatal("expected insert failure")
	}
	var cf *CompensationFailureError
	if errors.As(err, &cf) {
		t.Fatalf("compensation should have succeeded, got %v", err)
	}
	if n := objs.Len(); n != 0 {
		t.Errorf("orphan blobs after compensation: %d", n)
	}
	if n := inner.AttachmentCount(); n != 0 {
		t.Errorf("attachment rows after failed insert: %d", n)
	}
}

func TestUploadAndRegisterCompensationFailure(t *testing.T) {
	inner := store.NewMemoryStore()
	st := &attachmentFailStore{MemoryStore: inner}
	objs := storage.NewMemoryObjectStore()
	objs.FailDeletes(errors.New("storage unreachable"))
	a, _ := newTestApp(t, st, objs)

	_, err := a.Attachments().UploadAndRegister(context.Background(), UploadRequest{
		Kind:        "resume",
		OwnerID:     "cand-y",
		FileName:    "resume.pdf",
		ContentType: "application/pdf",
		Content:     []byte("resume bytes"),
	})
	var cf *CompensationFailureError
	if !errors.As(err, &cf) {
		t.Fatalf("expected CompensationFailureError, got %v", err)
	}
	if cf.OrphanPath == "" {
		t.Fatal("compensation failure must name the orphan blob")
	}
	if !objs.Has(cf.OrphanPath) {
		t.Error("named orphan does not exist in object storage")
	}
	if cf.InsertErr == nil || cf.DeleteErr == nil {
		t.Error("both underlying errors must be preserved")
	}
}

type recordingOrphanQueue struct {
	paths []string
}

func (q *recordingOrphanQueue) Enqueue(_ context.Context, blobPath string) (queue.JobStatus, error) {
	q.paths = append(q.paths, blobPath)
	return queue.JobStatus{ID: "job-1", BlobPath: blobPath, Status: queue.StatusQueued}, nil
}

func TestUploadAndRegisterQueuesOrphanForCleanup(t *testing.T) {
	inner := store.NewMemoryStore()
	st := &attachmentFailStore{MemoryStore: inner}
	objs := storage.NewMemoryObjectStore()
	objs.FailDeletes(errors.New("storage unreachable"))
	orphans := &recordingOrphanQueue{}
	a, _ := newTestApp(t, st, objs, func(cfg *Config) {
		cfg.Orphans = orphans
	})

	_, err := a.Attachments().UploadAndRegister(context.Background(), UploadRequest{
		Kind:     "resume",
		OwnerID:  "cand-q",
		FileName: "resume.pdf",
		Content:  []byte("resume bytes"),
	})
	var cf *CompensationFailureError
	if !errors.As(err, &cf) {
		t.Fatalf("expected CompensationFailureError, got %v", err)
	}
	if len(orphans.paths) != 1 || orphans.paths[0] != cf.OrphanPath {
		t.Fatalf("orphan queue got %v, want [%s]", orphans.paths, cf.OrphanPath)
	}
}

func TestUploadAndRegisterDuplicateContent(t *testing.T) {
	srv := miniredis.RunT(t)
	guard := idem.NewGuard(srv.Addr(), "", "onboarding", time.Minute)

	ms := store.NewMemoryStore()
	objs := storage.NewMemoryObjectStore()
	a, _ := newTestApp(t, ms, objs, func(cfg *Config) {
		cfg.Guard = guard
	})

	req := UploadRequest{
		Kind:        "resume",
		OwnerID:     "cand-z",
		FileName:    "resume.pdf",
		ContentType: "application/pdf",
		Content:     bytes.Repeat([]byte("z"), 64),
	}
	ctx := context.Background()
	if _, err := a.Attachments().UploadAndRegister(ctx, req); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if _, err := a.Attachments().UploadAndRegister(ctx, req); !errors.Is(err, ErrDuplicateUpload) {
		t.Fatalf("expected ErrDuplicateUpload, got %v", err)
	}
	if n := ms.AttachmentCount(); n != 1 {
		t.Errorf("attachment count = %d, want 1", n)
	}
}

// attachmentFailStore rejects every metadata insert.
type attachmentFailStore struct {
	*store.MemoryStore
}

func (s *attachmentFailStore) InsertAttachment(context.Context, domain.Attachment) error {
	return errors.New("attachments table unavailable")
}
