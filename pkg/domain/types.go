package domain

import "time"

type CandidateStatus string

const (
	CandidateSourced   CandidateStatus = "sourced"
	CandidateScreening CandidateStatus = "screening"
	CandidateRejected  CandidateStatus = "rejected"
	CandidateHired     CandidateStatus = "hired"
)

// Terminal reports whether the status permits no further transitions.
func (s CandidateStatus) Terminal() bool {
	return s == CandidateHired || s == CandidateRejected
}

type ApplicationStatus string

const (
	ApplicationOpen   ApplicationStatus = "open"
	ApplicationHired  ApplicationStatus = "hired"
	ApplicationClosed ApplicationStatus = "closed"
)

type InterviewStatus string

const (
	InterviewScheduled InterviewStatus = "scheduled"
	InterviewCompleted InterviewStatus = "completed"
	InterviewCancelled InterviewStatus = "cancelled"
)

type InterviewDecision string

const (
	DecisionNone     InterviewDecision = ""
	DecisionApproved InterviewDecision = "approved"
	DecisionRejected InterviewDecision = "rejected"
)

type ReferenceKind string

const (
	ReferenceArea     ReferenceKind = "area"
	ReferencePosition ReferenceKind = "position"
)

type Candidate struct {
	ID        string          `json:"id"`
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	Email     string          `json:"email"`
	Phone     string          `json:"phone,omitempty"`
	Status    CandidateStatus `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type Application struct {
	ID            string            `json:"id"`
	CandidateID   string            `json:"candidateId"`
	PositionTitle string            `json:"positionTitle"`
	Department    string            `json:"department"`
	Salary        int64             `json:"salary"`
	Status        ApplicationStatus `json:"status"`
	Stage         string            `json:"stage"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

type Interview struct {
	ID            string            `json:"id"`
	ApplicationID string            `json:"applicationId"`
	Status        InterviewStatus   `json:"status"`
	Decision      InterviewDecision `json:"decision,omitempty"`
	Feedback      string            `json:"feedback,omitempty"`
	ScheduledAt   time.Time         `json:"scheduledAt"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Identity is an account keyed by email, created at most once per email.
type Identity struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Profile is the employee-facing record; uniqueness is enforced by the
// identity key, not by name.
type Profile struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identityId"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Phone      string    `json:"phone,omitempty"`
	AreaID     string    `json:"areaId"`
	PositionID string    `json:"positionId"`
	HireDate   time.Time `json:"hireDate"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// RoleAssignment is an (identity, role) pair; re-asserting it is a no-op.
type RoleAssignment struct {
	IdentityID string    `json:"identityId"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Contract struct {
	ID             string    `json:"id"`
	ContractNumber string    `json:"contractNumber"`
	IdentityID     string    `json:"identityId"`
	PositionID     string    `json:"positionId"`
	Salary         int64     `json:"salary"`
	StartDate      time.Time `json:"startDate"`
	DocumentPath   string    `json:"documentPath,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Reference is a loosely-typed organizational lookup row (area or position)
// resolved from free-text capture values.
type Reference struct {
	ID        string        `json:"id"`
	Kind      ReferenceKind `json:"kind"`
	Name      string        `json:"name"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Attachment pairs a blob path with its metadata row. Outside of a narrow
// failure window every metadata row's BlobPath resolves to an existing blob.
type Attachment struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	OwnerID     string    `json:"ownerId"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	BlobPath    string    `json:"blobPath"`
	CreatedAt   time.Time `json:"createdAt"`
}

type StepOutcome string

const (
	StepStarted   StepOutcome = "started"
	StepCompleted StepOutcome = "completed"
	StepFailed    StepOutcome = "failed"
	StepSkipped   StepOutcome = "skipped"
)

// AuditRecord is an immutable append for one orchestrator step attempt.
// Inputs holds a redacted snapshot of step inputs for manual reconciliation;
// InputsHash covers the full input set.
type AuditRecord struct {
	ID            string            `json:"id"`
	CorrelationID string            `json:"correlationId"`
	Step          string            `json:"step"`
	Inputs        map[string]string `json:"inputs,omitempty"`
	InputsHash    string            `json:"inputsHash"`
	Outcome       StepOutcome       `json:"outcome"`
	Detail        string            `json:"detail,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}
