package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/optimly/catalog-optimizer/internal/api/dto"
	"github.com/optimly/catalog-optimizer/internal/api/storage"
	"github.com/optimly/catalog-optimizer/internal/optimizer/domain"
)

// CreateJob handles POST /api/v1/jobs
// Enqueues a new bulk optimization job for a tenant
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if !domain.ValidJobType(req.JobType) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_type must be one of TITLE_DESC, ALT_TEXT, SCHEMA",
		})
		return
	}

	// Best-effort pre-check; the unique index on active jobs closes the
	// remaining race window
	active, err := h.storage.HasActiveJob(c.Request.Context(), req.TenantID)
	if err != nil {
		h.logger.Error("Failed to check active job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}
	if active {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Tenant already has an active optimization job",
		})
		return
	}

	payload, err := json.Marshal(domain.JobPayload{
		Tone:               req.Tone,
		CustomInstructions: req.CustomInstructions,
		ItemIDs:            req.ItemIDs,
	})
	if err != nil {
		h.logger.Error("Failed to encode job payload", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	job := domain.Job{
		JobID:     uuid.New().String(),
		TenantID:  req.TenantID,
		JobType:   req.JobType,
		Payload:   string(payload),
		Status:    domain.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.storage.CreateJob(c.Request.Context(), &job); err != nil {
		if errors.Is(err, domain.ErrActiveJobExists) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Tenant already has an active optimization job",
			})
			return
		}
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	message, _ := json.Marshal(map[string]string{"job_id": job.JobID})
	if err := h.rabbitClient.PublishWithRetry(c.Request.Context(), message, "application/json"); err != nil {
		h.logger.Error("Failed to publish job message",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		// The job row exists but will never be delivered; fail it so the
		// tenant is not blocked by a phantom active job
		if failErr := h.storage.FailJob(c.Request.Context(), job.JobID, "failed to enqueue job"); failErr != nil {
			h.logger.Error("Failed to mark unenqueued job as FAILED",
				slog.String("job_id", job.JobID),
				slog.String("error", failErr.Error()),
			)
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	h.logger.Info("Job enqueued",
		slog.String("job_id", job.JobID),
		slog.String("tenant_id", job.TenantID),
		slog.String("job_type", job.JobType),
	)

	c.JSON(http.StatusAccepted, jobToDTO(&job))
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns the job's state for progress polling
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.storage.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, jobToDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs with optional filtering and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.JobFilter{
		TenantID: req.TenantID,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	jobs, err := h.storage.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobResponse, len(jobs))
	for i := range jobs {
		jobResponse[i] = jobToDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// jobToDTO converts a job to its response shape
func jobToDTO(job *domain.Job) dto.JobResponse {
	resp := dto.JobResponse{
		JobID:          job.JobID,
		TenantID:       job.TenantID,
		JobType:        job.JobType,
		Status:         job.Status,
		TotalItems:     job.TotalItems,
		ProcessedItems: job.ProcessedItems,
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt.Format(time.RFC3339),
	}
	if job.CompletedAt.Valid {
		resp.CompletedAt = job.CompletedAt.Time.Format(time.RFC3339)
	}
	return resp
}
