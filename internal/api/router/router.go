package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/optimly/catalog-optimizer/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "catalog-optimizer-api",
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Enqueue a new optimization job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Poll job progress
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:job_id/revert - Revert a whole job
			jobs.POST("/:job_id/revert", jobHandler.RevertJob)
		}

		history := v1.Group("/history")
		{
			// GET /api/v1/history - Optimization history
			history.GET("", jobHandler.History)

			// POST /api/v1/history/:entry_id/revert - Revert one entry
			history.POST("/:entry_id/revert", jobHandler.RevertEntry)
		}
	}

	return r
}
