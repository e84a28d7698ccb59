// Package data holds the gorm models persisted in Postgres (sqlite in
// local development).
package data

import (
	"time"

	"github.com/google/uuid"
)

// Feedback is one submitted feedback entry. The raw frontend log batch
// is stored as a blob in the object store; LogsObjectPath points at it.
type Feedback struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Fingerprint    string    `gorm:"index" json:"fingerprint"`
	Type           string    `json:"type"`
	Message        string    `json:"message"`
	UserAgent      string    `json:"user_agent"`
	LogsObjectPath string    `json:"logs_object_path"`
	ContactName    string    `json:"contact_name,omitempty"`
	ContactEmail   string    `json:"contact_email,omitempty"`
	ContactPhone   string    `json:"contact_phone,omitempty"`
	ContactCompany string    `json:"contact_company,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AccessCode is a generated admin access code. Codes configured via
// ADMIN_CODES live only in the environment and have no row here.
type AccessCode struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Code       string     `gorm:"uniqueIndex" json:"code"`
	Label      string     `json:"label"`
	UseCount   int        `json:"use_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
