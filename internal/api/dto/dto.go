package dto

// CreateJobRequest enqueues one bulk optimization job
type CreateJobRequest struct {
	TenantID           string   `json:"tenant_id" binding:"required"`
	JobType            string   `json:"job_type" binding:"required"`
	Tone               string   `json:"tone"`
	CustomInstructions string   `json:"custom_instructions"`
	ItemIDs            []string `json:"item_ids"`
}

// JobResponse describes one job
type JobResponse struct {
	JobID          string `json:"job_id"`
	TenantID       string `json:"tenant_id"`
	JobType        string `json:"job_type"`
	Status         string `json:"status"`
	TotalItems     int    `json:"total_items"`
	ProcessedItems int    `json:"processed_items"`
	ErrorMessage   string `json:"error_message,omitempty"`
	CreatedAt      string `json:"created_at"`
	CompletedAt    string `json:"completed_at,omitempty"`
}

// ListJobsRequest lists a tenant's jobs with cursor pagination
type ListJobsRequest struct {
	TenantID string `form:"tenant_id"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// ListJobsResponse is a page of jobs
type ListJobsResponse struct {
	Jobs       []JobResponse `json:"jobs"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// HistoryRequest queries the optimization history
type HistoryRequest struct {
	TenantID        string `form:"tenant_id" binding:"required"`
	Page            int    `form:"page"`
	Limit           int    `form:"limit"`
	JobID           string `form:"job_id"`
	IncludeReverted bool   `form:"include_reverted"`
}

// LogEntryDTO is one optimization history entry
type LogEntryDTO struct {
	EntryID    string `json:"entry_id"`
	JobID      string `json:"job_id"`
	ItemID     string `json:"item_id"`
	ImageID    string `json:"image_id,omitempty"`
	ItemTitle  string `json:"item_title"`
	Field      string `json:"field"`
	OldValue   string `json:"old_value"`
	NewValue   string `json:"new_value"`
	IsReverted bool   `json:"is_reverted"`
	RevertedAt string `json:"reverted_at,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// PaginationDTO describes an offset-paginated result set
type PaginationDTO struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// HistoryResponse is a page of optimization history
type HistoryResponse struct {
	Entries    []LogEntryDTO `json:"entries"`
	Pagination PaginationDTO `json:"pagination"`
}

// RevertRequest identifies the tenant performing a revert
type RevertRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
}

// RevertResponse is the result of a single-entry revert
type RevertResponse struct {
	Success bool   `json:"success"`
	ItemID  string `json:"item_id"`
}

// RevertJobErrorDTO is one failed entry inside a job revert
type RevertJobErrorDTO struct {
	EntryID string `json:"entry_id"`
	ItemID  string `json:"item_id"`
	Message string `json:"message"`
}

// RevertJobResponse is the summary of a whole-job revert
type RevertJobResponse struct {
	Success       bool                `json:"success"`
	RevertedCount int                 `json:"reverted_count"`
	Total         int                 `json:"total"`
	Errors        []RevertJobErrorDTO `json:"errors"`
}
