// Package metrics provides constants used across metric definitions.
package metrics

// Operation label values.
const (
	// OpFindingCreate represents finding creation.
	OpFindingCreate = "finding_create"
	// OpFindingList represents finding list queries.
	OpFindingList = "finding_list"
	// OpFindingGet represents single finding lookups.
	OpFindingGet = "finding_get"
	// OpFindingDecide represents the conditional verification update.
	OpFindingDecide = "finding_decide"
	// OpFindingStatus represents Open/Closed status changes.
	OpFindingStatus = "finding_status"
	// OpAttachmentAdd represents attachment row inserts.
	OpAttachmentAdd = "attachment_add"
	// OpAttachmentList represents attachment list queries.
	OpAttachmentList = "attachment_list"
	// OpAttachmentWrite represents evidence file writes.
	OpAttachmentWrite = "attachment_write"
	// OpSummary represents report aggregation.
	OpSummary = "summary"
)

// Status label values.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusConflict = "conflict"
	StatusDenied   = "denied"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart1KB is the starting bucket for byte size histograms.
	BucketStart1KB = 1024.0

	// BucketFactor2 is the common exponential growth factor.
	BucketFactor2 = 2
	// BucketFactor4 is used for byte sizes spanning several orders of magnitude.
	BucketFactor4 = 4

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)
