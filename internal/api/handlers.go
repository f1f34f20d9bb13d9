// Package api exposes the transcription service over HTTP.
package api

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"scribeflow/internal/jobs"
	"scribeflow/internal/pipeline"
	"scribeflow/internal/storage"
	"scribeflow/internal/utils"
)

// JobService is the part of pipeline.Service the handlers need.
type JobService interface {
	Submit(path, engineHint string) (string, error)
	Status(id string) (jobs.Snapshot, error)
	Cancel(id string) error
	Evict(id string) error
	List() []jobs.Snapshot
	Engines() []pipeline.EngineInfo
	DefaultChain() []string
}

// Handler serves the job API.
type Handler struct {
	svc     JobService
	uploads *storage.Uploads
	logger  *slog.Logger
	limiter *rate.Limiter

	mu sync.Mutex
	// stored maps job ids to the upload they were created from.
	stored map[string]string
}

// NewHandler builds the API. submitsPerMin bounds POST /jobs; zero or less
// disables the limit.
func NewHandler(svc JobService, uploads *storage.Uploads, submitsPerMin int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		svc:     svc,
		uploads: uploads,
		logger:  logger.With("component", "api"),
		stored:  make(map[string]string),
	}
	if submitsPerMin > 0 {
		h.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(submitsPerMin)), submitsPerMin)
	}
	return h
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/engines", h.listEngines)
		v1.GET("/jobs", h.listJobs)
		v1.POST("/jobs", h.limitSubmissions, h.submitJob)
		v1.GET("/jobs/:job_id", h.getJob)
		v1.POST("/jobs/:job_id/cancel", h.cancelJob)
		v1.DELETE("/jobs/:job_id", h.deleteJob)
	}
}

type submitRequest struct {
	FilePath string `json:"file_path" binding:"required"`
	Engine   string `json:"engine"`
}

func (h *Handler) healthCheck(c *gin.Context) {
	utils.Success(c, gin.H{
		"status":  "ok",
		"service": "scribeflow",
	})
}

func (h *Handler) listEngines(c *gin.Context) {
	utils.Success(c, gin.H{
		"engines":       h.svc.Engines(),
		"default_chain": h.svc.DefaultChain(),
	})
}

func (h *Handler) listJobs(c *gin.Context) {
	utils.Success(c, gin.H{"jobs": h.svc.List()})
}

// submitJob accepts either a multipart upload or a JSON body naming a file
// already in the upload directory.
func (h *Handler) submitJob(c *gin.Context) {
	var (
		path     string
		engine   string
		uploaded bool
	)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, err := formFile(c)
		if err != nil {
			utils.ErrorWithKind(c, http.StatusBadRequest, "InputError", "file is required: "+err.Error())
			return
		}
		if err := h.uploads.Validate(file.Filename, file.Size); err != nil {
			h.uploadError(c, err)
			return
		}
		path, err = h.uploads.Save(file)
		if err != nil {
			h.uploadError(c, err)
			return
		}
		engine = c.PostForm("engine")
		uploaded = true
	} else {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorWithKind(c, http.StatusBadRequest, "InputError", "invalid request: "+err.Error())
			return
		}
		resolved, err := h.uploads.Resolve(req.FilePath)
		if err != nil {
			h.logger.Warn("rejected file path outside uploads", "file_path", req.FilePath)
			utils.ErrorWithKind(c, http.StatusBadRequest, "InputError", "file_path must name a file in the upload directory")
			return
		}
		path, engine = resolved, req.Engine
	}

	id, err := h.svc.Submit(path, engine)
	if err != nil {
		if uploaded {
			_ = h.uploads.Remove(path)
		}
		var inputErr *pipeline.InputError
		switch {
		case errors.As(err, &inputErr):
			utils.ErrorWithKind(c, http.StatusBadRequest, "InputError", inputErr.Error())
		case errors.Is(err, pipeline.ErrShuttingDown):
			utils.Error(c, http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.Error("submit failed", "error", err)
			utils.Error(c, http.StatusInternalServerError, "failed to start job")
		}
		return
	}

	if uploaded {
		h.mu.Lock()
		h.stored[id] = path
		h.mu.Unlock()
	}

	h.logger.Info("job accepted", "job_id", id, "engine", engine, "uploaded", uploaded)
	utils.SuccessWithStatus(c, http.StatusAccepted, gin.H{
		"job_id": id,
		"status": jobs.StatusPending,
	})
}

func (h *Handler) limitSubmissions(c *gin.Context) {
	if h.limiter != nil && !h.limiter.Allow() {
		c.Header("Retry-After", "60")
		utils.ErrorWithKind(c, http.StatusTooManyRequests, "RateLimited", "too many submissions, try again later")
		c.Abort()
		return
	}
	c.Next()
}

func (h *Handler) getJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	snap, err := h.svc.Status(id)
	if err != nil {
		h.jobError(c, err)
		return
	}
	utils.Success(c, snap)
}

func (h *Handler) cancelJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	if err := h.svc.Cancel(id); err != nil {
		h.jobError(c, err)
		return
	}
	utils.SuccessWithStatus(c, http.StatusAccepted, gin.H{
		"job_id":    id,
		"cancelled": true,
	})
}

func (h *Handler) deleteJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	if err := h.svc.Evict(id); err != nil {
		h.jobError(c, err)
		return
	}

	h.mu.Lock()
	path, stored := h.stored[id]
	delete(h.stored, id)
	h.mu.Unlock()
	if stored {
		if err := h.uploads.Remove(path); err != nil {
			h.logger.Warn("failed to remove upload", "job_id", id, "error", err)
		}
	}

	utils.Success(c, gin.H{"job_id": id, "deleted": true})
}

func (h *Handler) jobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		utils.Error(c, http.StatusNotFound, "job not found")
	case errors.Is(err, jobs.ErrJobRunning):
		utils.Error(c, http.StatusConflict, "job is still running")
	default:
		h.logger.Error("job request failed", "error", err)
		utils.Error(c, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) uploadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrUnsupportedFormat):
		utils.ErrorWithKind(c, http.StatusBadRequest, "InputError", err.Error())
	case errors.Is(err, storage.ErrTooLarge):
		utils.ErrorWithKind(c, http.StatusRequestEntityTooLarge, "InputError", err.Error())
	default:
		h.logger.Error("saving upload failed", "error", err)
		utils.Error(c, http.StatusInternalServerError, "failed to save audio file")
	}
}

func jobID(c *gin.Context) (string, bool) {
	id := c.Param("job_id")
	if _, err := uuid.Parse(id); err != nil {
		utils.Error(c, http.StatusBadRequest, "job_id must be a UUID")
		return "", false
	}
	return id, true
}

// formFile accepts the field names older clients used as well.
func formFile(c *gin.Context) (*multipart.FileHeader, error) {
	var err error
	for _, field := range []string{"file", "audio_file", "audio"} {
		var fh *multipart.FileHeader
		if fh, err = c.FormFile(field); err == nil {
			return fh, nil
		}
	}
	return nil, err
}

// CORSMiddleware adds CORS headers for browser and mobile clients.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
