package api

import (
	"time"

	"github.com/sitesafe/hsetrack/internal/datastore/entities"
	"github.com/sitesafe/hsetrack/internal/reporting"
)

// DataResponse wraps every successful payload.
type DataResponse[T any] struct {
	Data T `json:"data"`
}

// FindingResponse represents a finding in the API response
type FindingResponse struct {
	ID                  uint    `json:"id"`
	OccurredAt          string  `json:"occurred_at"`
	Location            string  `json:"location"`
	Source              string  `json:"source"`
	Description         string  `json:"description"`
	HazardCategory      string  `json:"hazard_category"`
	RiskLevel           string  `json:"risk_level"`
	RemediationAction   string  `json:"remediation_action"`
	ResponsibleParty    string  `json:"responsible_party"`
	DueDate             string  `json:"due_date"`
	Status              string  `json:"status"`
	VerificationStatus  string  `json:"verification_status"`
	VerificationComment *string `json:"verification_comment"`
	VerifiedBy          *string `json:"verified_by"`
	VerifiedAt          *string `json:"verified_at"`
	CreatedAt           string  `json:"created_at"`
}

func toFindingResponse(f *entities.Finding) FindingResponse {
	resp := FindingResponse{
		ID:                  f.ID,
		OccurredAt:          f.OccurredAt.Format(time.DateOnly),
		Location:            f.Location,
		Source:              f.Source,
		Description:         f.Description,
		HazardCategory:      f.HazardCategory,
		RiskLevel:           f.RiskLevel,
		RemediationAction:   f.RemediationAction,
		ResponsibleParty:    f.ResponsibleParty,
		DueDate:             f.DueDate.Format(time.DateOnly),
		Status:              string(f.Status),
		VerificationStatus:  string(f.VerificationStatus),
		VerificationComment: f.VerificationComment,
		VerifiedBy:          f.VerifiedBy,
		CreatedAt:           f.CreatedAt.UTC().Format(time.RFC3339),
	}
	if f.VerifiedAt != nil {
		at := f.VerifiedAt.UTC().Format(time.RFC3339)
		resp.VerifiedAt = &at
	}
	return resp
}

func toFindingResponses(in []entities.Finding) []FindingResponse {
	out := make([]FindingResponse, 0, len(in))
	for i := range in {
		out = append(out, toFindingResponse(&in[i]))
	}
	return out
}

// AttachmentResponse represents one stored evidence file.
type AttachmentResponse struct {
	ID        uint   `json:"id"`
	FindingID uint   `json:"finding_id"`
	FilePath  string `json:"file_path"`
	CreatedAt string `json:"created_at"`
}

func toAttachmentResponses(in []entities.Attachment) []AttachmentResponse {
	out := make([]AttachmentResponse, 0, len(in))
	for _, a := range in {
		out = append(out, AttachmentResponse{
			ID:        a.ID,
			FindingID: a.FindingID,
			FilePath:  a.FilePath,
			CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

// SummaryResponse is the dashboard rollup.
type SummaryResponse struct {
	OpenCount        int            `json:"open_count"`
	ClosedCount      int            `json:"closed_count"`
	TrendByCategory  map[string]int `json:"trend_by_category"`
	TrendByRiskLevel map[string]int `json:"trend_by_risk_level"`
	GeneratedAt      string         `json:"generated_at"`
}

func toSummaryResponse(s reporting.Summary) SummaryResponse {
	return SummaryResponse{
		OpenCount:        s.OpenCount,
		ClosedCount:      s.ClosedCount,
		TrendByCategory:  s.TrendByCategory,
		TrendByRiskLevel: s.TrendByRiskLevel,
		GeneratedAt:      s.GeneratedAt.Format(time.RFC3339),
	}
}

// CreateFindingRequest is the body of POST /findings.
type CreateFindingRequest struct {
	OccurredAt        string `json:"occurred_at"`
	Location          string `json:"location"`
	Source            string `json:"source"`
	Description       string `json:"description"`
	HazardCategory    string `json:"hazard_category"`
	RiskLevel         string `json:"risk_level"`
	RemediationAction string `json:"remediation_action"`
	ResponsibleParty  string `json:"responsible_party"`
	DueDate           string `json:"due_date"`
}

// VerifyRequest is the body of PUT /findings/:id/verify. The verifier is
// always the authenticated actor.
type VerifyRequest struct {
	VerificationStatus  string `json:"verification_status"`
	VerificationComment string `json:"verification_comment"`
}

// StatusRequest is the body of PATCH /findings/:id/status.
type StatusRequest struct {
	Status string `json:"status"`
}
