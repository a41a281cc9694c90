package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type CandidateModel struct {
	ID        string `gorm:"primaryKey"`
	FirstName string `gorm:"not null"`
	LastName  string `gorm:"not null"`
	Email     string `gorm:"not null;index"`
	Phone     string
	Status    string    `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type ApplicationModel struct {
	ID            string `gorm:"primaryKey"`
	CandidateID   string `gorm:"not null;index"`
	PositionTitle string `gorm:"not null"`
	Department    string `gorm:"not null"`
	Salary        int64
	Status        string    `gorm:"not null"`
	Stage         string
	CreatedAt     time.Time `gorm:"not null;index"`
	UpdatedAt     time.Time `gorm:"not null"`
}

type InterviewModel struct {
	ID            string `gorm:"primaryKey"`
	ApplicationID string `gorm:"not null;index"`
	Status        string `gorm:"not null"`
	Decision      string
	Feedback      string    `gorm:"type:text"`
	ScheduledAt   time.Time
	CreatedAt     time.Time `gorm:"not null"`
}

type IdentityModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type ProfileModel struct {
	ID         string `gorm:"primaryKey"`
	IdentityID string `gorm:"uniqueIndex;not null"`
	FirstName  string `gorm:"not null"`
	LastName   string `gorm:"not null"`
	Phone      string
	AreaID     string
	PositionID string
	HireDate   time.Time
	UpdatedAt  time.Time `gorm:"not null"`
}

type RoleAssignmentModel struct {
	IdentityID string    `gorm:"primaryKey"`
	Role       string    `gorm:"primaryKey"`
	CreatedAt  time.Time `gorm:"not null"`
}

type ContractModel struct {
	ID             string `gorm:"primaryKey"`
	ContractNumber string `gorm:"uniqueIndex;not null"`
	IdentityID     string `gorm:"uniqueIndex;not null"`
	PositionID     string
	Salary         int64
	StartDate      time.Time
	DocumentPath   string
	CreatedAt      time.Time `gorm:"not null"`
}

// ReferenceModel deliberately carries no unique constraint on (kind, name):
// the resolver's at-least-once contract accepts duplicate rows under
// concurrent creation.
type ReferenceModel struct {
	ID        string `gorm:"primaryKey"`
	Kind      string `gorm:"not null;index:idx_references_kind_name"`
	Name      string `gorm:"not null;index:idx_references_kind_name"`
	CreatedAt time.Time `gorm:"not null"`
}

type AttachmentModel struct {
	ID          string `gorm:"primaryKey"`
	Kind        string `gorm:"not null;index"`
	OwnerID     string `gorm:"not null;index"`
	FileName    string `gorm:"not null"`
	ContentType string
	SizeBytes   int64     `gorm:"not null"`
	BlobPath    string    `gorm:"uniqueIndex;not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

type AuditRecordModel struct {
	ID            string `gorm:"primaryKey"`
	CorrelationID string `gorm:"not null;index"`
	Step          string `gorm:"not null"`
	Inputs        datatypes.JSON `gorm:"type:jsonb"`
	InputsHash    string
	Outcome       string    `gorm:"not null"`
	Detail        string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"not null;index"`
}
