package entities

import "time"

// Attachment references one stored evidence file. Rows are never updated;
// they disappear only when the owning finding is deleted.
type Attachment struct {
	ID        uint      `gorm:"primaryKey"`
	FindingID uint      `gorm:"not null;index"`
	FilePath  string    `gorm:"type:varchar(512);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	// Relationship
	Finding *Finding `gorm:"foreignKey:FindingID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM.
func (Attachment) TableName() string {
	return "finding_attachments"
}
