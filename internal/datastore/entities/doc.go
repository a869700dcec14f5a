// Package entities defines the GORM entity models for the finding store.
//
// # Entities
//
//   - Finding: a recorded hazard observation with its remediation plan,
//     remediation status and verification state
//   - Attachment: a reference to one evidence file, owned by a Finding
//
// Column names are snake_case. Verification columns are nullable and are
// written together by a single conditional UPDATE.
package entities
