package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"talentcore/pkg/domain"
)

const migrateLockID int64 = 48114811

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&CandidateModel{},
			&ApplicationModel{},
			&InterviewModel{},
			&IdentityModel{},
			&ProfileModel{},
			&RoleAssignmentModel{},
			&ContractModel{},
			&ReferenceModel{},
			&AttachmentModel{},
			&AuditRecordModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// GetCandidate returns a candidate by ID.
func (s *GormStore) GetCandidate(ctx context.Context, id string) (domain.Candidate, bool, error) {
	var model CandidateModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Candidate{}, false, nil
		}
		return domain.Candidate{}, false, err
	}
	return candidateFromModel(model), true, nil
}

// LatestApplication returns the most recently created application of a candidate.
func (s *GormStore) LatestApplication(ctx context.Context, candidateID string) (domain.Application, bool, error) {
	var model ApplicationModel
	err := s.db.WithContext(ctx).
		Where("candidate_id = ?", candidateID).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Application{}, false, nil
		}
		return domain.Application{}, false, err
	}
	return applicationFromModel(model), true, nil
}

// ListInterviews returns all interviews of an application ordered by creation.
func (s *GormStore) ListInterviews(ctx context.Context, applicationID string) ([]domain.Interview, error) {
	var models []InterviewModel
	err := s.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.Interview, 0, len(models))
	for _, m := range models {
		res = append(res, interviewFromModel(m))
	}
	return res, nil
}

// UpdateCandidateStatus transitions a candidate's status. Rows already in a
// terminal state are never touched; attempting to do so returns
// ErrCandidateTerminal.
func (s *GormStore) UpdateCandidateStatus(ctx context.Context, candidateID string, status domain.CandidateStatus) error {
	res := s.db.WithContext(ctx).Model(&CandidateModel{}).
		Where("id = ? AND status NOT IN ?", candidateID, []string{
			string(domain.CandidateHired),
			string(domain.CandidateRejected),
		}).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCandidateTerminal
	}
	return nil
}

// UpdateApplicationStatus sets status and stage of an application.
func (s *GormStore) UpdateApplicationStatus(ctx context.Context, applicationID string, status domain.ApplicationStatus, stage string) error {
	return s.db.WithContext(ctx).Model(&ApplicationModel{}).
		Where("id = ?", applicationID).
		Updates(map[string]any{
			"status":     string(status),
			"stage":      stage,
			"updated_at": time.Now().UTC(),
		}).Error
}

// FindReference looks up a reference by kind and case-insensitive name. When
// duplicates exist the oldest row wins.
func (s *GormStore) FindReference(ctx context.Context, kind domain.ReferenceKind, name string) (domain.Reference, bool, error) {
	var model ReferenceModel
	err := s.db.WithContext(ctx).
		Where("kind = ? AND LOWER(name) = LOWER(?)", string(kind), name).
		Order("created_at ASC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Reference{}, false, nil
		}
		return domain.Reference{}, false, err
	}
	return referenceFromModel(model), true, nil
}

// CreateReference inserts a reference row. No uniqueness is enforced on
// (kind, name); concurrent creation of the same name yields duplicate rows.
func (s *GormStore) CreateReference(ctx context.Context, ref domain.Reference) error {
	model := ReferenceModel{
		ID:        ref.ID,
		Kind:      string(ref.Kind),
		Name:      ref.Name,
		CreatedAt: ref.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// FindIdentityByEmail looks up an identity by exact email.
func (s *GormStore) FindIdentityByEmail(ctx context.Context, email string) (domain.Identity, bool, error) {
	var model IdentityModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Identity{}, false, nil
		}
		return domain.Identity{}, false, err
	}
	return identityFromModel(model), true, nil
}

// CreateIdentity inserts a new identity. A unique-email violation is mapped
// to ErrDuplicateEmail so the caller can re-query and reuse the winner.
func (s *GormStore) CreateIdentity(ctx context.Context, identity domain.Identity) error {
	model := IdentityModel{
		ID:           identity.ID,
		Email:        identity.Email,
		PasswordHash: identity.PasswordHash,
		CreatedAt:    identity.CreatedAt,
		UpdatedAt:    identity.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// UpsertProfile creates or updates the profile of an identity in a single
// statement (INSERT ... ON CONFLICT DO UPDATE), never as insert-then-update.
func (s *GormStore) UpsertProfile(ctx context.Context, profile domain.Profile) error {
	model := ProfileModel{
		ID:         profile.ID,
		IdentityID: profile.IdentityID,
		FirstName:  profile.FirstName,
		LastName:   profile.LastName,
		Phone:      profile.Phone,
		AreaID:     profile.AreaID,
		PositionID: profile.PositionID,
		HireDate:   profile.HireDate,
		UpdatedAt:  time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "phone", "area_id", "position_id", "hire_date", "updated_at"}),
	}).Create(&model).Error
}

// UpsertRole asserts an (identity, role) pair; re-asserting is a no-op.
func (s *GormStore) UpsertRole(ctx context.Context, assignment domain.RoleAssignment) error {
	model := RoleAssignmentModel{
		IdentityID: assignment.IdentityID,
		Role:       assignment.Role,
		CreatedAt:  time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity_id"}, {Name: "role"}},
		DoNothing: true,
	}).Create(&model).Error
}

// CreateContract inserts the contract row atomically. Unique violations on
// contract number or identity map to ErrDuplicateContract.
func (s *GormStore) CreateContract(ctx context.Context, contract domain.Contract) error {
	model := ContractModel{
		ID:             contract.ID,
		ContractNumber: contract.ContractNumber,
		IdentityID:     contract.IdentityID,
		PositionID:     contract.PositionID,
		Salary:         contract.Salary,
		StartDate:      contract.StartDate,
		DocumentPath:   contract.DocumentPath,
		CreatedAt:      contract.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateContract
		}
		return err
	}
	return nil
}

// GetContractByIdentity returns the contract held by an identity, if any.
func (s *GormStore) GetContractByIdentity(ctx context.Context, identityID string) (domain.Contract, bool, error) {
	var model ContractModel
	if err := s.db.WithContext(ctx).Where("identity_id = ?", identityID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Contract{}, false, nil
		}
		return domain.Contract{}, false, err
	}
	return contractFromModel(model), true, nil
}

// SetContractDocumentPath records the stored rendering of a contract.
func (s *GormStore) SetContractDocumentPath(ctx context.Context, contractID, path string) error {
	return s.db.WithContext(ctx).Model(&ContractModel{}).
		Where("id = ?", contractID).
		Update("document_path", path).Error
}

// InsertAttachment commits the metadata row of an uploaded blob.
func (s *GormStore) InsertAttachment(ctx context.Context, att domain.Attachment) error {
	model := AttachmentModel{
		ID:          att.ID,
		Kind:        att.Kind,
		OwnerID:     att.OwnerID,
		FileName:    att.FileName,
		ContentType: att.ContentType,
		SizeBytes:   att.SizeBytes,
		BlobPath:    att.BlobPath,
		CreatedAt:   att.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetAttachment returns attachment metadata by ID.
func (s *GormStore) GetAttachment(ctx context.Context, id string) (domain.Attachment, bool, error) {
	var model AttachmentModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Attachment{}, false, nil
		}
		return domain.Attachment{}, false, err
	}
	return attachmentFromModel(model), true, nil
}

// AppendAudit inserts an immutable step record. Records are never updated or
// deleted.
func (s *GormStore) AppendAudit(ctx context.Context, rec domain.AuditRecord) error {
	var inputs datatypes.JSON
	if len(rec.Inputs) > 0 {
		raw, err := json.Marshal(rec.Inputs)
		if err != nil {
			return fmt.Errorf("marshal audit inputs: %w", err)
		}
		inputs = datatypes.JSON(raw)
	}
	model := AuditRecordModel{
		ID:            rec.ID,
		CorrelationID: rec.CorrelationID,
		Step:          rec.Step,
		Inputs:        inputs,
		InputsHash:    rec.InputsHash,
		Outcome:       string(rec.Outcome),
		Detail:        rec.Detail,
		CreatedAt:     rec.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListAuditByCorrelation returns step records for one saga run in order.
func (s *GormStore) ListAuditByCorrelation(ctx context.Context, correlationID string) ([]domain.AuditRecord, error) {
	var models []AuditRecordModel
	err := s.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.AuditRecord, 0, len(models))
	for _, m := range models {
		rec := domain.AuditRecord{
			ID:            m.ID,
			CorrelationID: m.CorrelationID,
			Step:          m.Step,
			InputsHash:    m.InputsHash,
			Outcome:       domain.StepOutcome(m.Outcome),
			Detail:        m.Detail,
			CreatedAt:     m.CreatedAt,
		}
		if len(m.Inputs) > 0 {
			_ = json.Unmarshal(m.Inputs, &rec.Inputs)
		}
		res = append(res, rec)
	}
	return res, nil
}

func candidateFromModel(m CandidateModel) domain.Candidate {
	return domain.Candidate{
		ID:        m.ID,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Email:     m.Email,
		Phone:     m.Phone,
		Status:    domain.CandidateStatus(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func applicationFromModel(m ApplicationModel) domain.Application {
	return domain.Application{
		ID:            m.ID,
		CandidateID:   m.CandidateID,
		PositionTitle: m.PositionTitle,
		Department:    m.Department,
		Salary:        m.Salary,
		Status:        domain.ApplicationStatus(m.Status),
		Stage:         m.Stage,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func interviewFromModel(m InterviewModel) domain.Interview {
	return domain.Interview{
		ID:            m.ID,
		ApplicationID: m.ApplicationID,
		Status:        domain.InterviewStatus(m.Status),
		Decision:      domain.InterviewDecision(m.Decision),
		Feedback:      m.Feedback,
		ScheduledAt:   m.ScheduledAt,
		CreatedAt:     m.CreatedAt,
	}
}

func identityFromModel(m IdentityModel) domain.Identity {
	return domain.Identity{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func contractFromModel(m ContractModel) domain.Contract {
	return domain.Contract{
		ID:             m.ID,
		ContractNumber: m.ContractNumber,
		IdentityID:     m.IdentityID,
		PositionID:     m.PositionID,
		Salary:         m.Salary,
		StartDate:      m.StartDate,
		DocumentPath:   m.DocumentPath,
		CreatedAt:      m.CreatedAt,
	}
}

func referenceFromModel(m ReferenceModel) domain.Reference {
	return domain.Reference{
		ID:        m.ID,
		Kind:      domain.ReferenceKind(m.Kind),
		Name:      m.Name,
		CreatedAt: m.CreatedAt,
	}
}

func attachmentFromModel(m AttachmentModel) domain.Attachment {
	return domain.Attachment{
		ID:          m.ID,
		Kind:        m.Kind,
		OwnerID:     m.OwnerID,
		FileName:    m.FileName,
		ContentType: m.ContentType,
		SizeBytes:   m.SizeBytes,
		BlobPath:    m.BlobPath,
		CreatedAt:   m.CreatedAt,
	}
}
