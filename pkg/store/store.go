package store

import (
	"context"
	"errors"

	"talentcore/pkg/domain"
)

var (
	// ErrDuplicateEmail is returned by CreateIdentity when the email is
	// already taken; callers recover by one re-lookup.
	ErrDuplicateEmail = errors.New("identity email already exists")

	// ErrCandidateTerminal is returned when a status update targets a
	// candidate already in a terminal state.
	ErrCandidateTerminal = errors.New("candidate status is terminal")

	// ErrDuplicateContract is returned when a contract already exists for
	// the identity or the contract number collides.
	ErrDuplicateContract = errors.New("contract already exists")
)

// Store defines the remote persistence operations the onboarding core
// consumes. Implementations provide per-operation atomicity only; multi-step
// atomicity across a saga is explicitly not provided.
type Store interface {
	// candidates & applications
	GetCandidate(ctx context.Context, id string) (domain.Candidate, bool, error)
	LatestApplication(ctx context.Context, candidateID string) (domain.Application, bool, error)
	ListInterviews(ctx context.Context, applicationID string) ([]domain.Interview, error)
	UpdateCandidateStatus(ctx context.Context, candidateID string, status domain.CandidateStatus) error
	UpdateApplicationStatus(ctx context.Context, applicationID string, status domain.ApplicationStatus, stage string) error

	// organizational references; FindReference matches name case-insensitively
	FindReference(ctx context.Context, kind domain.ReferenceKind, name string) (domain.Reference, bool, error)
	CreateReference(ctx context.Context, ref domain.Reference) error

	// identities
	FindIdentityByEmail(ctx context.Context, email string) (domain.Identity, bool, error)
	CreateIdentity(ctx context.Context, identity domain.Identity) error
	UpsertProfile(ctx context.Context, profile domain.Profile) error
	UpsertRole(ctx context.Context, assignment domain.RoleAssignment) error

	// contracts
	CreateContract(ctx context.Context, contract domain.Contract) error
	GetContractByIdentity(ctx context.Context, identityID string) (domain.Contract, bool, error)
	SetContractDocumentPath(ctx context.Context, contractID, path string) error

	// attachments
	InsertAttachment(ctx context.Context, att domain.Attachment) error
	GetAttachment(ctx context.Context, id string) (domain.Attachment, bool, error)
}

// AuditAppender persists immutable step records. Kept separate from Store so
// the saga log can move to its own sink without changing step contracts.
type AuditAppender interface {
	AppendAudit(ctx context.Context, rec domain.AuditRecord) error
	ListAuditByCorrelation(ctx context.Context, correlationID string) ([]domain.AuditRecord, error)
}
