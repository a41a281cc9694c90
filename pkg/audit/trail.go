// Package audit keeps the durable step-log of orchestrated write sequences.
// Records are append-only and consumed for diagnostics and manual
// reconciliation; the log is isolated here so resumability can be added
// later without changing step contracts.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"
	"time"

	"talentcore/internal/util"
	"talentcore/pkg/domain"
	"talentcore/pkg/store"
)

// Trail appends immutable step records. Appending is best-effort: a failed
// append is logged, never allowed to fail the step it describes.
type Trail struct {
	sink store.AuditAppender
}

// New constructs a trail over the given sink.
func New(sink store.AuditAppender) *Trail {
	return &Trail{sink: sink}
}

// Record appends one step attempt. Input values whose key suggests a secret
// are redacted from the stored snapshot but still covered by the hash.
func (t *Trail) Record(ctx context.Context, correlationID, step string, inputs map[string]string, outcome domain.StepOutcome, detail string) {
	if t == nil || t.sink == nil {
		return
	}
	rec := domain.AuditRecord{
		ID:            util.NewID(),
		CorrelationID: correlationID,
		Step:          step,
		Inputs:        redact(inputs),
		InputsHash:    HashInputs(inputs),
		Outcome:       outcome,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}
	if err := t.sink.AppendAudit(ctx, rec); err != nil {
		slog.Error("audit append failed",
			"correlation_id", correlationID,
			"step", step,
			"outcome", string(outcome),
			"err", err,
		)
	}
}

// List returns the records of one saga run in append order.
func (t *Trail) List(ctx context.Context, correlationID string) ([]domain.AuditRecord, error) {
	return t.sink.ListAuditByCorrelation(ctx, correlationID)
}

// HashInputs returns a stable sha256 hex digest over the input set.
func HashInputs(inputs map[string]string) string {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(inputs[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func redact(inputs map[string]string) map[string]string {
	if len(inputs) == 0 {
		return nil
	}
	out := make(map[string]string, len(inputs))
	for k, v := range inputs {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "password") || strings.Contains(lower, "secret") || strings.Contains(lower, "credential") {
			out[k] = "[redacted]"
			continue
		}
		out[k] = v
	}
	return out
}
