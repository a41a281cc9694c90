package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"talentcore/pkg/domain"
)

// MemoryStore keeps all records in-process. It mirrors the semantics of
// GormStore (unique email, terminal candidate guard, at-least-once
// references) and backs the package tests.
type MemoryStore struct {
	mu          sync.RWMutex
	candidates  map[string]domain.Candidate
	apps        map[string]domain.Application
	interviews  map[string][]domain.Interview // key: application ID
	identities  map[string]domain.Identity    // key: identity ID
	email       map[string]string             // email -> identity ID
	profiles    map[string]domain.Profile     // key: identity ID
	roles       map[string]struct{}           // key: identityID+"\x00"+role
	contracts   map[string]domain.Contract    // key: contract ID
	refs        []domain.Reference
	attachments map[string]domain.Attachment
	audits      []domain.AuditRecord
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		candidates:  make(map[string]domain.Candidate),
		apps:        make(map[string]domain.Application),
		interviews:  make(map[string][]domain.Interview),
		identities:  make(map[string]domain.Identity),
		email:       make(map[string]string),
		profiles:    make(map[string]domain.Profile),
		roles:       make(map[string]struct{}),
		contracts:   make(map[string]domain.Contract),
		attachments: make(map[string]domain.Attachment),
	}
}

// SeedCandidate inserts a candidate for tests.
func (m *MemoryStore) SeedCandidate(c domain.Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates[c.ID] = c
}

// SeedApplication inserts an application for tests.
func (m *MemoryStore) SeedApplication(a domain.Application) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apps[a.ID] = a
}

// SeedInterview appends an interview for tests.
func (m *MemoryStore) SeedInterview(iv domain.Interview) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interviews[iv.ApplicationID] = append(m.interviews[iv.ApplicationID], iv)
}

func (m *MemoryStore) GetCandidate(_ context.Context, id string) (domain.Candidate, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.candidates[id]
	return c, ok, nil
}

func (m *MemoryStore) LatestApplication(_ context.Context, candidateID string) (domain.Application, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest domain.Application
	found := false
	for _, a := range m.apps {
		if a.CandidateID != candidateID {
			continue
		}
		if !found || a.CreatedAt.After(latest.CreatedAt) {
			latest = a
			found = true
		}
	}
	return latest, found, nil
}

func (m *MemoryStore) ListInterviews(_ context.Context, applicationID string) ([]domain.Interview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Interview, len(m.interviews[applicationID]))
	copy(res, m.interviews[applicationID])
	return res, nil
}

func (m *MemoryStore) UpdateCandidateStatus(_ context.Context, candidateID string, status domain.CandidateStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.candidates[candidateID]
	if !ok || c.Status.Terminal() {
		return ErrCandidateTerminal
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	m.candidates[candidateID] = c
	return nil
}

func (m *MemoryStore) UpdateApplicationStatus(_ context.Context, applicationID string, status domain.ApplicationStatus, stage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[applicationID]
	if !ok {
		return nil
	}
	a.Status = status
	a.Stage = stage
	a.UpdatedAt = time.Now().UTC()
	m.apps[applicationID] = a
	return nil
}

func (m *MemoryStore) FindReference(_ context.Context, kind domain.ReferenceKind, name string) (domain.Reference, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.refs {
		if r.Kind == kind && strings.EqualFold(r.Name, name) {
			return r, true, nil
		}
	}
	return domain.Reference{}, false, nil
}

func (m *MemoryStore) CreateReference(_ context.Context, ref domain.Reference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs = append(m.refs, ref)
	return nil
}

// ReferenceCount reports rows of a kind; used by tests to observe duplicates.
func (m *MemoryStore) ReferenceCount(kind domain.ReferenceKind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.refs {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

func (m *MemoryStore) FindIdentityByEmail(_ context.Context, email string) (domain.Identity, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.Identity{}, false, nil
	}
	return m.identities[id], true, nil
}

func (m *MemoryStore) CreateIdentity(_ context.Context, identity domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.email[identity.Email]; exists {
		return ErrDuplicateEmail
	}
	m.identities[identity.ID] = identity
	m.email[identity.Email] = identity.ID
	return nil
}

func (m *MemoryStore) UpsertProfile(_ context.Context, profile domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.profiles[profile.IdentityID]; ok {
		profile.ID = existing.ID
	}
	profile.UpdatedAt = time.Now().UTC()
	m.profiles[profile.IdentityID] = profile
	return nil
}

func (m *MemoryStore) UpsertRole(_ context.Context, assignment domain.RoleAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[assignment.IdentityID+"\x00"+assignment.Role] = struct{}{}
	return nil
}

func (m *MemoryStore) CreateContract(_ context.Context, contract domain.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contracts {
		if c.IdentityID == contract.IdentityID || c.ContractNumber == contract.ContractNumber {
			return ErrDuplicateContract
		}
	}
	m.contracts[contract.ID] = contract
	return nil
}

func (m *MemoryStore) GetContractByIdentity(_ context.Context, identityID string) (domain.Contract, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.contracts {
		if c.IdentityID == identityID {
			return c, true, nil
		}
	}
	return domain.Contract{}, false, nil
}

func (m *MemoryStore) SetContractDocumentPath(_ context.Context, contractID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[contractID]
	if !ok {
		return nil
	}
	c.DocumentPath = path
	m.contracts[contractID] = c
	return nil
}

func (m *MemoryStore) InsertAttachment(_ context.Context, att domain.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[att.ID] = att
	return nil
}

func (m *MemoryStore) GetAttachment(_ context.Context, id string) (domain.Attachment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attachments[id]
	return a, ok, nil
}

func (m *MemoryStore) AppendAudit(_ context.Context, rec domain.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, rec)
	return nil
}

func (m *MemoryStore) ListAuditByCorrelation(_ context.Context, correlationID string) ([]domain.AuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.AuditRecord, 0)
	for _, rec := range m.audits {
		if rec.CorrelationID == correlationID {
			res = append(res, rec)
		}
	}
	return res, nil
}

// Profile returns the stored profile of an identity; used by tests.
func (m *MemoryStore) Profile(identityID string) (domain.Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[identityID]
	return p, ok
}

// HasRole reports whether the (identity, role) pair is asserted; used by tests.
func (m *MemoryStore) HasRole(identityID, role string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.roles[identityID+"\x00"+role]
	return ok
}

// IdentityCount reports stored identities; used by tests.
func (m *MemoryStore) IdentityCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities)
}

// ContractCount reports stored contracts; used by tests.
func (m *MemoryStore) ContractCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.contracts)
}

// AttachmentCount reports stored attachment rows; used by tests.
func (m *MemoryStore) AttachmentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.attachments)
}

// AuditCount reports appended audit records; used by tests.
func (m *MemoryStore) AuditCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.audits)
}
