package app

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"talentcore/internal/util"
	"talentcore/pkg/audit"
	"talentcore/pkg/domain"
	"talentcore/pkg/idem"
	"talentcore/pkg/queue"
	"talentcore/pkg/storage"
	"talentcore/pkg/store"
)

// OrphanQueue schedules background deletion retries for blobs a failed
// compensation left behind. May be nil, in which case orphans are only
// reported.
type OrphanQueue interface {
	Enqueue(ctx context.Context, blobPath string) (queue.JobStatus, error)
}

// UploadRequest carries one file-attached record: the blob plus the metadata
// row to commit for it.
type UploadRequest struct {
	Kind        string // e.g. "document", "incident-evidence", "termination", "contract"
	OwnerID     string
	FileName    string
	ContentType string
	Content     []byte
}

// AttachmentCoordinator performs the blob-then-metadata write with a
// compensating delete. The caller-visible outcome is one of: both blob and
// metadata exist; neither is reachable; or an explicit orphan is reported.
type AttachmentCoordinator struct {
	objects storage.ObjectStore
	store   store.Store
	trail   *audit.Trail
	guard   *idem.Guard
	orphans OrphanQueue
}

// NewAttachmentCoordinator wires the coordinator. guard and orphans may be nil.
func NewAttachmentCoordinator(objects storage.ObjectStore, st store.Store, trail *audit.Trail, guard *idem.Guard, orphans OrphanQueue) *AttachmentCoordinator {
	return &AttachmentCoordinator{objects: objects, store: st, trail: trail, guard: guard, orphans: orphans}
}

// UploadAndRegister writes the blob at a generated unique path and then
// inserts the metadata row referencing it. The whole operation is never
// retried automatically; a caller retry writes a new blob under a new path.
func (c *AttachmentCoordinator) UploadAndRegister(ctx context.Context, req UploadRequest) (domain.Attachment, error) {
	if len(req.Content) == 0 {
		return domain.Attachment{}, fmt.Errorf("attachment content is required")
	}
	kind := strings.TrimSpace(req.Kind)
	if kind == "" {
		kind = "document"
	}

	sum := sha256.Sum256(req.Content)
	digest := hex.EncodeToString(sum[:])
	release, acquired := c.guard.Acquire(ctx, "attach:"+digest)
	if !acquired {
		return domain.Attachment{}, ErrDuplicateUpload
	}

	correlationID := util.RequestIDFromContext(ctx)
	if correlationID == "" {
		correlationID = util.NewID()
	}
	blobPath := generateBlobPath(kind, req.FileName)
	inputs := map[string]string{
		"kind":     kind,
		"ownerId":  req.OwnerID,
		"fileName": req.FileName,
		"blobPath": blobPath,
		"size":     strconv.Itoa(len(req.Content)),
		"sha256":   digest,
	}

	c.trail.Record(ctx, correlationID, "attachment_upload", inputs, domain.StepStarted, "")
	err := c.objects.Put(ctx, blobPath, bytes.NewReader(req.Content), int64(len(req.Content)), req.ContentType)
	if err != nil {
		release(ctx)
		c.trail.Record(ctx, correlationID, "attachment_upload", inputs, domain.StepFailed, err.Error())
		return domain.Attachment{}, fmt.Errorf("upload blob: %w", err)
	}

	att := domain.Attachment{
		ID:          util.NewID(),
		Kind:        kind,
		OwnerID:     req.OwnerID,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		SizeBytes:   int64(len(req.Content)),
		BlobPath:    blobPath,
		CreatedAt:   time.Now().UTC(),
	}
	insertErr := c.store.InsertAttachment(ctx, att)
	if insertErr == nil {
		c.trail.Record(ctx, correlationID, "attachment_register", inputs, domain.StepCompleted, att.ID)
		return att, nil
	}
	c.trail.Record(ctx, correlationID, "attachment_register", inputs, domain.StepFailed, insertErr.Error())
	release(ctx)

	// Compensate: one delete attempt, no indefinite retry. A failed delete
	// is surfaced as an explicit orphan, never swallowed.
	if delErr := c.objects.Delete(ctx, blobPath); delErr != nil {
		compErr := &CompensationFailureError{OrphanPath: blobPath, InsertErr: insertErr, DeleteErr: delErr}
		c.trail.Record(ctx, correlationID, "attachment_compensation", inputs, domain.StepFailed, compErr.Error())
		util.LoggerFromContext(ctx).Error("attachment compensation failed, orphan blob left behind",
			"blob_path", blobPath,
			"insert_err", insertErr,
			"delete_err", delErr,
		)
		if c.orphans != nil {
			if _, qErr := c.orphans.Enqueue(ctx, blobPath); qErr != nil {
				util.LoggerFromContext(ctx).Warn("orphan cleanup enqueue failed", "blob_path", blobPath, "err", qErr)
			}
		}
		return domain.Attachment{}, compErr
	}
	c.trail.Record(ctx, correlationID, "attachment_compensation", inputs, domain.StepCompleted, "blob deleted")
	return domain.Attachment{}, fmt.Errorf("register attachment metadata: %w", insertErr)
}

func generateBlobPath(kind, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return fmt.Sprintf("attachments/%s/%s%s", kind, uuid.NewString(), ext)
}
