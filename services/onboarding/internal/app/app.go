// Package app implements the onboarding core: the saga that promotes a job
// candidate into a provisioned employee, and the coordinated blob+metadata
// write used for every file-attached record.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"talentcore/internal/util"
	"talentcore/pkg/audit"
	"talentcore/pkg/auth"
	"talentcore/pkg/docs"
	"talentcore/pkg/domain"
	"talentcore/pkg/idem"
	"talentcore/pkg/notify"
	"talentcore/pkg/storage"
	"talentcore/pkg/store"
)

// DefaultOpTimeout bounds a single remote store operation.
const DefaultOpTimeout = 5 * time.Second

var defaultPositiveFeedbackTerms = []string{
	"excellent", "strong hire", "great fit", "impressive", "outstanding",
}

var defaultOperationalDepartments = []string{
	"operations", "field operations", "manufacturing", "logistics", "warehouse", "maintenance",
}

// Config wires runtime dependencies and policy for the onboarding core.
type Config struct {
	Store    store.Store
	Audit    store.AuditAppender
	Objects  storage.ObjectStore
	Notifier notify.Notifier
	Renderer docs.Renderer
	Guard    *idem.Guard
	// Orphans receives blob paths whose compensating delete failed, for
	// background retry.
	Orphans OrphanQueue

	// EmployeeRole is asserted for every promoted candidate.
	EmployeeRole string
	// OperationalDepartments classifies departments whose hires trigger
	// the safety notification fan-out.
	OperationalDepartments []string
	// SafetyRecipients receive the operational-hire notification.
	SafetyRecipients []string
	// PositiveFeedbackTerms is the heuristic treated as equivalent
	// evidence to an approved interview decision.
	PositiveFeedbackTerms []string
	// OpTimeout bounds each remote store operation.
	OpTimeout time.Duration
}

// App is the onboarding service core.
type App struct {
	store       store.Store
	trail       *audit.Trail
	notifier    notify.Notifier
	renderer    docs.Renderer
	guard       *idem.Guard
	resolver    *ReferenceResolver
	attachments *AttachmentCoordinator

	employeeRole    string
	operationalDeps []string
	safetyTargets   []string
	positiveTerms   []string
	opTimeout       time.Duration
}

// New constructs the application core.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Objects == nil {
		return nil, fmt.Errorf("object store is required")
	}
	auditSink := cfg.Audit
	if auditSink == nil {
		if appender, ok := cfg.Store.(store.AuditAppender); ok {
			auditSink = appender
		}
	}
	trail := audit.New(auditSink)
	role := strings.TrimSpace(cfg.EmployeeRole)
	if role == "" {
		role = "employee"
	}
	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	operational := cfg.OperationalDepartments
	if len(operational) == 0 {
		operational = defaultOperationalDepartments
	}
	positive := cfg.PositiveFeedbackTerms
	if len(positive) == 0 {
		positive = defaultPositiveFeedbackTerms
	}
	return &App{
		store:           cfg.Store,
		trail:           trail,
		notifier:        cfg.Notifier,
		renderer:        cfg.Renderer,
		guard:           cfg.Guard,
		resolver:        NewReferenceResolver(cfg.Store),
		attachments:     NewAttachmentCoordinator(cfg.Objects, cfg.Store, trail, cfg.Guard, cfg.Orphans),
		employeeRole:    role,
		operationalDeps: operational,
		safetyTargets:   cfg.SafetyRecipients,
		positiveTerms:   positive,
		opTimeout:       opTimeout,
	}, nil
}

// Attachments exposes the blob+metadata write coordinator.
func (a *App) Attachments() *AttachmentCoordinator {
	return a.attachments
}

// PromoteResult is the typed outcome of a successful (or partially
// successful) promotion.
type PromoteResult struct {
	IdentityID string `json:"identityId"`
	// TempPassword is present only when a new identity was created.
	TempPassword string `json:"tempPassword,omitempty"`
	ContractID   string `json:"contractId,omitempty"`
	DocumentURL  string `json:"documentUrl,omitempty"`
}

// Promote drives the candidate-to-employee saga. Steps run strictly
// sequentially; there is no cross-step transaction and no rollback once the
// identity/profile/role writes have committed. Two concurrent promotions of
// the same candidate can double-provision; the idempotency guard narrows
// that window but the race is a documented limitation of this saga.
func (a *App) Promote(ctx context.Context, candidateID string) (PromoteResult, error) {
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return PromoteResult{}, fmt.Errorf("candidateId is required")
	}

	// Preconditions fail closed: no store has been written when one trips.
	candidate, application, err := a.checkPreconditions(ctx, candidateID)
	if err != nil {
		return PromoteResult{}, err
	}

	release, acquired := a.guard.Acquire(ctx, "promote:"+candidateID)
	if !acquired {
		return PromoteResult{}, ErrPromoteInFlight
	}
	defer release(ctx)

	correlationID := util.RequestIDFromContext(ctx)
	if correlationID == "" {
		correlationID = util.NewID()
	}
	log := util.LoggerFromContext(ctx).With("candidate_id", candidateID, "correlation_id", correlationID)
	run := &promoteRun{
		app:           a,
		correlationID: correlationID,
		candidate:     candidate,
		application:   application,
	}

	// Step 1: organizational references.
	if err := run.resolveReferences(ctx); err != nil {
		return PromoteResult{}, err
	}
	// Step 2: identity lookup-or-create.
	if err := run.ensureIdentity(ctx); err != nil {
		return PromoteResult{}, err
	}
	// Step 3: profile upsert (single atomic remote operation).
	if err := run.upsertProfile(ctx); err != nil {
		return PromoteResult{}, err
	}
	// Step 4: role assignment (idempotent).
	if err := run.upsertRole(ctx); err != nil {
		return PromoteResult{}, err
	}
	// Step 5: terminal status transition.
	if err := run.markHired(ctx); err != nil {
		return PromoteResult{}, err
	}
	// Step 6: conditional fan-out, best-effort only.
	run.notifyOperational(ctx, log)
	// Step 7: contract creation; failure degrades to partial success, the
	// provisioned employee is deliberately kept.
	if err := run.createContract(ctx); err != nil {
		return PromoteResult{}, &PartialSuccessError{
			CandidateID:  candidateID,
			IdentityID:   run.identity.ID,
			TempPassword: run.tempPassword,
			Err:          err,
		}
	}
	// Step 8: contract document, best-effort only.
	run.renderContractDocument(ctx, log)

	return PromoteResult{
		IdentityID:   run.identity.ID,
		TempPassword: run.tempPassword,
		ContractID:   run.contract.ID,
		DocumentURL:  run.documentURL,
	}, nil
}

// RetryContract re-runs only the contract steps after a PartialSuccessError.
// It is idempotent: an existing contract for the identity is returned as-is.
func (a *App) RetryContract(ctx context.Context, candidateID string) (PromoteResult, error) {
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return PromoteResult{}, fmt.Errorf("candidateId is required")
	}
	opCtx, cancel := a.opContext(ctx)
	candidate, found, err := a.store.GetCandidate(opCtx, candidateID)
	cancel()
	if err != nil {
		return PromoteResult{}, fmt.Errorf("load candidate: %w", err)
	}
	if !found {
		return PromoteResult{}, &PreconditionError{CandidateID: candidateID, Reason: ReasonCandidateNotFound, Message: "candidate does not exist"}
	}
	if candidate.Status != domain.CandidateHired {
		return PromoteResult{}, &PreconditionError{CandidateID: candidateID, Reason: ReasonNoApproval, Message: "candidate was never promoted"}
	}

	opCtx, cancel = a.opContext(ctx)
	identity, found, err := a.store.FindIdentityByEmail(opCtx, strings.TrimSpace(candidate.Email))
	cancel()
	if err != nil {
		return PromoteResult{}, fmt.Errorf("find identity: %w", err)
	}
	if !found {
		return PromoteResult{}, fmt.Errorf("no identity exists for candidate %s", candidateID)
	}

	opCtx, cancel = a.opContext(ctx)
	existing, found, err := a.store.GetContractByIdentity(opCtx, identity.ID)
	cancel()
	if err != nil {
		return PromoteResult{}, fmt.Errorf("check existing contract: %w", err)
	}
	if found {
		return PromoteResult{IdentityID: identity.ID, ContractID: existing.ID}, nil
	}

	opCtx, cancel = a.opContext(ctx)
	application, found, err := a.store.LatestApplication(opCtx, candidateID)
	cancel()
	if err != nil {
		return PromoteResult{}, fmt.Errorf("load application: %w", err)
	}
	if !found {
		return PromoteResult{}, &PreconditionError{CandidateID: candidateID, Reason: ReasonNoApplication, Message: "candidate has no application"}
	}

	run := &promoteRun{
		app:           a,
		correlationID: util.NewID(),
		candidate:     candidate,
		application:   application,
		identity:      identity,
	}
	if run.positionID, err = a.resolver.ResolveOrCreate(ctx, domain.ReferencePosition, application.PositionTitle); err != nil {
		return PromoteResult{}, err
	}
	if err := run.createContract(ctx); err != nil {
		return PromoteResult{}, &PartialSuccessError{CandidateID: candidateID, IdentityID: identity.ID, Err: err}
	}
	run.renderContractDocument(ctx, util.LoggerFromContext(ctx).With("candidate_id", candidateID))
	return PromoteResult{
		IdentityID:  identity.ID,
		ContractID:  run.contract.ID,
		DocumentURL: run.documentURL,
	}, nil
}

// checkPreconditions loads the candidate graph and verifies the three fatal
// preconditions. It performs reads only.
func (a *App) checkPreconditions(ctx context.Context, candidateID string) (domain.Candidate, domain.Application, error) {
	opCtx, cancel := a.opContext(ctx)
	candidate, found, err := a.store.GetCandidate(opCtx, candidateID)
	cancel()
	if err != nil {
		return domain.Candidate{}, domain.Application{}, fmt.Errorf("load candidate: %w", err)
	}
	if !found {
		return domain.Candidate{}, domain.Application{}, &PreconditionError{
			CandidateID: candidateID, Reason: ReasonCandidateNotFound, Message: "candidate does not exist",
		}
	}
	if candidate.Status == domain.CandidateHired {
		return domain.Candidate{}, domain.Application{}, &PreconditionError{
			CandidateID: candidateID, Reason: ReasonAlreadyHired, Message: "candidate is already hired",
		}
	}

	opCtx, cancel = a.opContext(ctx)
	application, found, err := a.store.LatestApplication(opCtx, candidateID)
	cancel()
	if err != nil {
		return domain.Candidate{}, domain.Application{}, fmt.Errorf("load application: %w", err)
	}
	if !found {
		return domain.Candidate{}, domain.Application{}, &PreconditionError{
			CandidateID: candidateID, Reason: ReasonNoApplication, Message: "candidate has no application",
		}
	}

	opCtx, cancel = a.opContext(ctx)
	interviews, err := a.store.ListInterviews(opCtx, application.ID)
	cancel()
	if err != nil {
		return domain.Candidate{}, domain.Application{}, fmt.Errorf("load interviews: %w", err)
	}
	approved := false
	for _, iv := range interviews {
		// A single rejected decision vetoes, regardless of other approvals.
		if iv.Decision == domain.DecisionRejected {
			return domain.Candidate{}, domain.Application{}, &PreconditionError{
				CandidateID: candidateID, Reason: ReasonRejectedDecision, Message: "an interview decision is rejected",
			}
		}
		if iv.Decision == domain.DecisionApproved {
			approved = true
		}
		if iv.Status == domain.InterviewCompleted && a.positiveFeedback(iv.Feedback) {
			approved = true
		}
	}
	if !approved {
		return domain.Candidate{}, domain.Application{}, &PreconditionError{
			CandidateID: candidateID, Reason: ReasonNoApproval, Message: "no approved interview decision or positive feedback",
		}
	}
	return candidate, application, nil
}

func (a *App) positiveFeedback(feedback string) bool {
	feedback = strings.ToLower(feedback)
	if feedback == "" {
		return false
	}
	for _, term := range a.positiveTerms {
		if strings.Contains(feedback, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

func (a *App) operationalDepartment(department string) bool {
	department = strings.ToLower(strings.TrimSpace(department))
	if department == "" {
		return false
	}
	for _, dep := range a.operationalDeps {
		if strings.Contains(department, strings.ToLower(dep)) {
			return true
		}
	}
	return false
}

func (a *App) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.opTimeout)
}

// AuditTrail exposes the saga step log for diagnostics endpoints.
func (a *App) AuditTrail() *audit.Trail {
	return a.trail
}

// promoteRun carries per-invocation saga state between steps.
type promoteRun struct {
	app           *App
	correlationID string
	candidate     domain.Candidate
	application   domain.Application

	areaID       string
	positionID   string
	identity     domain.Identity
	tempPassword string
	contract     domain.Contract
	documentURL  string
}

func (r *promoteRun) record(ctx context.Context, step string, inputs map[string]string, outcome domain.StepOutcome, detail string) {
	r.app.trail.Record(ctx, r.correlationID, step, inputs, outcome, detail)
}

func (r *promoteRun) resolveReferences(ctx context.Context) error {
	inputs := map[string]string{
		"department":    r.application.Department,
		"positionTitle": r.application.PositionTitle,
	}
	r.record(ctx, "resolve_references", inputs, domain.StepStarted, "")
	areaID, err := r.app.resolver.ResolveOrCreate(ctx, domain.ReferenceArea, r.application.Department)
	if err != nil {
		r.record(ctx, "resolve_references", inputs, domain.StepFailed, err.Error())
		return err
	}
	positionID, err := r.app.resolver.ResolveOrCreate(ctx, domain.ReferencePosition, r.application.PositionTitle)
	if err != nil {
		r.record(ctx, "resolve_references", inputs, domain.StepFailed, err.Error())
		return err
	}
	r.areaID = areaID
	r.positionID = positionID
	r.record(ctx, "resolve_references", inputs, domain.StepCompleted, "")
	return nil
}

// ensureIdentity looks up the identity by email and creates it when absent.
// The idempotency key is the trimmed, case-sensitive email. When a creation
// races with another writer the store reports a duplicate and the run
// re-queries once, reusing the winner instead of failing.
func (r *promoteRun) ensureIdentity(ctx context.Context) error {
	email := strings.TrimSpace(r.candidate.Email)
	if email == "" {
		return fmt.Errorf("candidate %s has no email", r.candidate.ID)
	}
	inputs := map[string]string{"email": email}
	r.record(ctx, "identity", inputs, domain.StepStarted, "")

	opCtx, cancel := r.app.opContext(ctx)
	existing, found, err := r.app.store.FindIdentityByEmail(opCtx, email)
	cancel()
	if err != nil {
		r.record(ctx, "identity", inputs, domain.StepFailed, err.Error())
		return fmt.Errorf("find identity: %w", err)
	}
	if found {
		r.identity = existing
		r.record(ctx, "identity", inputs, domain.StepCompleted, "reused "+existing.ID)
		return nil
	}

	tempPassword, err := auth.GenerateTempPassword()
	if err != nil {
		r.record(ctx, "identity", inputs, domain.StepFailed, err.Error())
		return err
	}
	hash, err := auth.HashPassword(tempPassword)
	if err != nil {
		r.record(ctx, "identity", inputs, domain.StepFailed, err.Error())
		return err
	}
	now := time.Now().UTC()
	identity := domain.Identity{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	opCtx, cancel = r.app.opContext(ctx)
	err = r.app.store.CreateIdentity(opCtx, identity)
	cancel()
	if err == nil {
		r.identity = identity
		r.tempPassword = tempPassword
		r.record(ctx, "identity", inputs, domain.StepCompleted, "created "+identity.ID)
		return nil
	}
	if !errors.Is(err, store.ErrDuplicateEmail) {
		r.record(ctx, "identity", inputs, domain.StepFailed, err.Error())
		return fmt.Errorf("create identity: %w", err)
	}

	// Identity appeared mid-flight; re-query once and reuse it.
	opCtx, cancel = r.app.opContext(ctx)
	winner, found, lookupErr := r.app.store.FindIdentityByEmail(opCtx, email)
	cancel()
	if lookupErr != nil || !found {
		r.record(ctx, "identity", inputs, domain.StepFailed, err.Error())
		if lookupErr != nil {
			return fmt.Errorf("re-query identity after duplicate: %w", lookupErr)
		}
		return fmt.Errorf("identity for %s: %w", email, err)
	}
	r.identity = winner
	r.record(ctx, "identity", inputs, domain.StepCompleted, "reused after race "+winner.ID)
	return nil
}

func (r *promoteRun) upsertProfile(ctx context.Context) error {
	inputs := map[string]string{"identityId": r.identity.ID}
	r.record(ctx, "profile", inputs, domain.StepStarted, "")
	profile := domain.Profile{
		ID:         util.NewID(),
		IdentityID: r.identity.ID,
		FirstName:  r.candidate.FirstName,
		LastName:   r.candidate.LastName,
		Phone:      r.candidate.Phone,
		AreaID:     r.areaID,
		PositionID: r.positionID,
		HireDate:   time.Now().UTC(),
	}
	opCtx, cancel := r.app.opContext(ctx)
	err := r.app.store.UpsertProfile(opCtx, profile)
	cancel()
	if err != nil {
		r.record(ctx, "profile", inputs, domain.StepFailed, err.Error())
		return fmt.Errorf("upsert profile: %w", err)
	}
	r.record(ctx, "profile", inputs, domain.StepCompleted, "")
	return nil
}

func (r *promoteRun) upsertRole(ctx context.Context) error {
	inputs := map[string]string{"identityId": r.identity.ID, "role": r.app.employeeRole}
	r.record(ctx, "role", inputs, domain.StepStarted, "")
	opCtx, cancel := r.app.opContext(ctx)
	err := r.app.store.UpsertRole(opCtx, domain.RoleAssignment{
		IdentityID: r.identity.ID,
		Role:       r.app.employeeRole,
	})
	cancel()
	if err != nil {
		r.record(ctx, "role", inputs, domain.StepFailed, err.Error())
		return fmt.Errorf("upsert role: %w", err)
	}
	r.record(ctx, "role", inputs, domain.StepCompleted, "")
	return nil
}

func (r *promoteRun) markHired(ctx context.Context) error {
	inputs := map[string]string{
		"candidateId":   r.candidate.ID,
		"applicationId": r.application.ID,
	}
	r.record(ctx, "status_transition", inputs, domain.StepStarted, "")
	opCtx, cancel := r.app.opContext(ctx)
	err := r.app.store.UpdateCandidateStatus(opCtx, r.candidate.ID, domain.CandidateHired)
	cancel()
	if err != nil {
		r.record(ctx, "status_transition", inputs, domain.StepFailed, err.Error())
		return fmt.Errorf("update candidate status: %w", err)
	}
	opCtx, cancel = r.app.opContext(ctx)
	err = r.app.store.UpdateApplicationStatus(opCtx, r.application.ID, domain.ApplicationHired, "onboarded")
	cancel()
	if err != nil {
		r.record(ctx, "status_transition", inputs, domain.StepFailed, err.Error())
		return fmt.Errorf("update application status: %w", err)
	}
	r.record(ctx, "status_transition", inputs, domain.StepCompleted, "")
	return nil
}
