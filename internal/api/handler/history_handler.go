package handler

import (
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

// History handles GET /api/v1/history
// Returns an offset-paginated view of the optimization log
func (h *JobHandler) History(c *gin.Context) {
	var req dto.HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "tenant_id is required",
		})
		return
	}

	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if req.Limit > 100 {
		req.Limit = 100
	}

	filter := storage.HistoryFilter{
		TenantID:        req.TenantID,
		JobID:           req.JobID,
		IncludeReverted: req.IncludeReverted,
		Page:            req.Page,
		Limit:           req.Limit,
	}

	entries, total, err := h.storage.History(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to query history", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to query history",
		})
		return
	}

	entryDTOs := make([]dto.LogEntryDTO, len(entries))
	for i := range entries {
		entryDTOs[i] = entryToDTO(&entries[i])
	}

	totalPages := total / req.Limit
	if total%req.Limit != 0 {
		totalPages++
	}

	c.JSON(http.StatusOK, dto.HistoryResponse{
		Entries: entryDTOs,
		Pagination: dto.PaginationDTO{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

// RevertEntry handles POST /api/v1/history/:entry_id/revert
// Applies the compensating mutation for one log entry
func (h *JobHandler) RevertEntry(c *gin.Context) {
	entryID := c.Param("entry_id")

	if _, err := uuid.Parse(entryID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "entry_id must be a valid UUID",
		})
		return
	}

	var req dto.RevertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "tenant_id is required",
		})
		return
	}

	itemID, err := h.undoEngine.Revert(c.Request.Context(), entryID, req.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrEntryNotFoundOrReverted) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Log entry not found or already reverted",
			})
			return
		}
		h.logger.Error("Failed to revert log entry",
			slog.String("entry_id", entryID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to revert log entry",
		})
		return
	}

	c.JSON(http.StatusOK, dto.RevertResponse{
		Success: true,
		ItemID:  itemID,
	})
}

// RevertJob handles POST /api/v1/jobs/:job_id/revert
// Reverts every non-reverted entry of a job, reporting per-entry errors
func (h *JobHandler) RevertJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	var req dto.RevertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "tenant_id is required",
		})
		return
	}

	summary, err := h.undoEngine.RevertJob(c.Request.Context(), jobID, req.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrNoEligibleEntries) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job has no entries eligible for revert",
			})
			return
		}
		h.logger.Error("Failed to revert job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to revert job",
		})
		return
	}

	revertErrors := make([]dto.RevertJobErrorDTO, len(summary.Errors))
	for i, e := range summary.Errors {
		revertErrors[i] = dto.RevertJobErrorDTO{
			EntryID: e.EntryID,
			ItemID:  e.ItemID,
			Message: e.Message,
		}
	}

	c.JSON(http.StatusOK, dto.RevertJobResponse{
		Success:       len(summary.Errors) == 0,
		RevertedCount: summary.RevertedCount,
		Total:         summary.Total,
		Errors:        revertErrors,
	})
}

// entryToDTO converts a log entry to its response shape
func entryToDTO(entry *domain.LogEntry) dto.LogEntryDTO {
	e := dto.LogEntryDTO{
		EntryID:    entry.EntryID,
		JobID:      entry.JobID,
		ItemID:     entry.ItemID,
		ItemTitle:  entry.ItemTitle,
		Field:      entry.Field,
		OldValue:   entry.OldValue,
		NewValue:   entry.NewValue,
		IsReverted: entry.IsReverted,
		CreatedAt:  entry.CreatedAt.Format(time.RFC3339),
	}
	if entry.ImageID.Valid {
		e.ImageID = entry.ImageID.String
	}
	if entry.RevertedAt.Valid {
		e.RevertedAt = entry.RevertedAt.Time.Format(time.RFC3339)
	}
	return e
}
