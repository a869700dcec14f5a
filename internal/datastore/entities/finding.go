package entities

import "time"

// FindingStatus tracks remediation progress.
type FindingStatus string

const (
	StatusOpen   FindingStatus = "Open"
	StatusClosed FindingStatus = "Closed"
)

// Valid reports whether s is a known remediation status.
func (s FindingStatus) Valid() bool {
	return s == StatusOpen || s == StatusClosed
}

// VerificationStatus gates inclusion in trend reporting.
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationVerified   VerificationStatus = "verified"
	VerificationRejected   VerificationStatus = "rejected"
)

// IsDecision reports whether v is a terminal verification outcome.
func (v VerificationStatus) IsDecision() bool {
	return v == VerificationVerified || v == VerificationRejected
}

// Valid reports whether v is any known verification status.
func (v VerificationStatus) Valid() bool {
	return v == VerificationUnverified || v.IsDecision()
}

// Finding is a field observation of a hazard. Descriptive fields are
// immutable after creation. VerificationComment, VerifiedBy and VerifiedAt
// are nil until the finding leaves the unverified state.
type Finding struct {
	ID                uint          `gorm:"primaryKey"`
	OccurredAt        time.Time     `gorm:"type:date;not null;index"`
	Location          string        `gorm:"type:varchar(255);not null"`
	Source            string        `gorm:"type:varchar(100);not null"`
	Description       string        `gorm:"type:text;not null"`
	HazardCategory    string        `gorm:"type:varchar(100);not null;index"`
	RiskLevel         string        `gorm:"type:varchar(50);not null"`
	RemediationAction string        `gorm:"type:text;not null"`
	ResponsibleParty  string        `gorm:"type:varchar(255);not null"`
	DueDate           time.Time     `gorm:"type:date;not null"`
	Status            FindingStatus `gorm:"type:varchar(10);not null;default:Open;index"`

	VerificationStatus  VerificationStatus `gorm:"type:varchar(12);not null;default:unverified;index"`
	VerificationComment *string            `gorm:"type:text"`
	VerifiedBy          *string            `gorm:"type:varchar(100)"`
	VerifiedAt          *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (Finding) TableName() string {
	return "findings"
}

// IsVerified reports whether the finding counts toward trend reporting.
func (f *Finding) IsVerified() bool {
	return f.VerificationStatus == VerificationVerified
}
