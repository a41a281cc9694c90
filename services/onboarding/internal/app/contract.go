package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"talentcore/internal/util"
	"talentcore/pkg/domain"
	"talentcore/pkg/notify"
	"talentcore/pkg/store"
)

// notifyOperational sends the safety fan-out for hires into an operational
// department. Delivery is best-effort: a broker failure is logged and
// audited but never fails the promotion.
func (r *promoteRun) notifyOperational(ctx context.Context, log *slog.Logger) {
	inputs := map[string]string{
		"department": r.application.Department,
		"identityId": r.identity.ID,
	}
	if !r.app.operationalDepartment(r.application.Department) {
		r.record(ctx, "notify", inputs, domain.StepSkipped, "department not operational")
		return
	}
	if r.app.notifier == nil || len(r.app.safetyTargets) == 0 {
		r.record(ctx, "notify", inputs, domain.StepSkipped, "no notifier configured")
		return
	}
	r.record(ctx, "notify", inputs, domain.StepStarted, "")
	n := notify.Notification{
		Recipients: r.app.safetyTargets,
		Subject:    "New operational hire: " + r.candidate.FirstName + " " + r.candidate.LastName,
		Body: fmt.Sprintf("A new employee has been onboarded into %s as %s. Safety induction is required before the first shift.",
			r.application.Department, r.application.PositionTitle),
	}
	if err := r.app.notifier.Enqueue(ctx, n); err != nil {
		log.Warn("safety notification failed", "error", err)
		r.record(ctx, "notify", inputs, domain.StepFailed, err.Error())
		return
	}
	r.record(ctx, "notify", inputs, domain.StepCompleted, "")
}

// createContract writes the contract row. A duplicate from a prior attempt
// is absorbed by re-reading the existing contract for the identity.
func (r *promoteRun) createContract(ctx context.Context) error {
	inputs := map[string]string{
		"identityId": r.identity.ID,
		"positionId": r.positionID,
	}
	r.record(ctx, "contract", inputs, domain.StepStarted, "")
	contract := domain.Contract{
		ID:             util.NewID(),
		ContractNumber: newContractNumber(),
		IdentityID:     r.identity.ID,
		PositionID:     r.positionID,
		Salary:         r.application.Salary,
		StartDate:      time.Now().UTC(),
	}
	opCtx, cancel := r.app.opContext(ctx)
	err := r.app.store.CreateContract(opCtx, contract)
	cancel()
	if err == nil {
		r.contract = contract
		r.record(ctx, "contract", inputs, domain.StepCompleted, contract.ContractNumber)
		return nil
	}
	if errors.Is(err, store.ErrDuplicateContract) {
		opCtx, cancel = r.app.opContext(ctx)
		existing, found, lookupErr := r.app.store.GetContractByIdentity(opCtx, r.identity.ID)
		cancel()
		if lookupErr == nil && found {
			r.contract = existing
			r.record(ctx, "contract", inputs, domain.StepCompleted, "reused "+existing.ContractNumber)
			return nil
		}
	}
	r.record(ctx, "contract", inputs, domain.StepFailed, err.Error())
	return fmt.Errorf("create contract: %w", err)
}

// renderContractDocument generates, stores, and links the contract PDF.
// Every failure here is logged and audited only; the contract row stands
// without a document and the run reports success.
func (r *promoteRun) renderContractDocument(ctx context.Context, log *slog.Logger) {
	if r.app.renderer == nil {
		r.record(ctx, "contract_document", nil, domain.StepSkipped, "no renderer configured")
		return
	}
	inputs := map[string]string{"contractId": r.contract.ID}
	r.record(ctx, "contract_document", inputs, domain.StepStarted, "")
	pdf, err := r.app.renderer.RenderContractDocument(ctx, r.contract)
	if err != nil {
		log.Warn("contract document render failed", "contract_id", r.contract.ID, "error", err)
		r.record(ctx, "contract_document", inputs, domain.StepFailed, err.Error())
		return
	}
	att, err := r.app.attachments.UploadAndRegister(ctx, UploadRequest{
		Kind:        "contract",
		OwnerID:     r.contract.ID,
		FileName:    r.contract.ContractNumber + ".pdf",
		ContentType: "application/pdf",
		Content:     pdf,
	})
	if err != nil {
		log.Warn("contract document upload failed", "contract_id", r.contract.ID, "error", err)
		r.record(ctx, "contract_document", inputs, domain.StepFailed, err.Error())
		return
	}
	opCtx, cancel := r.app.opContext(ctx)
	err = r.app.store.SetContractDocumentPath(opCtx, r.contract.ID, att.BlobPath)
	cancel()
	if err != nil {
		log.Warn("contract document link failed", "contract_id", r.contract.ID, "error", err)
		r.record(ctx, "contract_document", inputs, domain.StepFailed, err.Error())
		return
	}
	r.contract.DocumentPath = att.BlobPath
	if url, err := r.app.attachments.objects.PresignGet(ctx, att.BlobPath, 15*time.Minute); err == nil {
		r.documentURL = url
	}
	r.record(ctx, "contract_document", inputs, domain.StepCompleted, att.BlobPath)
}

func newContractNumber() string {
	buf := make([]byte, 4)
	rand.Read(buf)
	return fmt.Sprintf("CN-%d-%s", time.Now().UTC().Year(), hex.EncodeToString(buf))
}
