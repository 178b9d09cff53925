package handler

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/separator/internal/middleware"
	"github.com/makeasinger/separator/internal/model"
	"github.com/makeasinger/separator/internal/scheduler"
	"github.com/makeasinger/separator/internal/service"
	"github.com/makeasinger/separator/pkg/response"
)

const maxUploadSize = 50 * 1024 * 1024 // 50MB

var validAudioTypes = map[string]bool{
	"audio/wav":    true,
	"audio/x-wav":  true,
	"audio/wave":   true,
	"audio/mpeg":   true,
	"audio/mp3":    true,
	"audio/mp4":    true,
	"audio/x-m4a":  true,
	"audio/aac":    true,
	"audio/x-aac":  true,
	"audio/flac":   true,
	"audio/x-flac": true,
	"audio/ogg":    true,
}

type SeparationHandler struct {
	service   *service.SeparationService
	validator *validator.Validate
}

func NewSeparationHandler(svc *service.SeparationService, v *validator.Validate) *SeparationHandler {
	return &SeparationHandler{
		service:   svc,
		validator: v,
	}
}

// Submit handles POST /api/separate
// @Summary      Submit separation job
// @Description  Queue a stem separation job for a remote audio URL (normal priority)
// @Tags         Separation
// @Accept       json
// @Produce      json
// @Param        request body model.SeparateRequest true "Separation request"
// @Success      202 {object} model.SeparateResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/separate [post]
func (h *SeparationHandler) Submit(c *fiber.Ctx) error {
	var req model.SeparateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	adm, err := h.service.SubmitURL(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		log.Printf("[Separation] submit failed: %v", err)
		return response.ServiceError(c, "Failed to submit job")
	}
	if !adm.Accepted {
		return rejection(c, adm.Rejection)
	}

	return response.Accepted(c, separateResponse(adm.Snapshot))
}

// Upload handles POST /api/separate/upload
// @Summary      Upload and separate
// @Description  Upload an audio file and queue it for separation (high priority)
// @Tags         Separation
// @Accept       multipart/form-data
// @Produce      json
// @Param        file        formData file   true  "Audio file (WAV, MP3, M4A, AAC, FLAC, OGG; max 50MB)"
// @Param        callbackUrl formData string false "URL notified when the job finishes"
// @Success      202 {object} model.UploadResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/separate/upload [post]
func (h *SeparationHandler) Upload(c *fiber.Ctx) error {
	callbackURL := c.FormValue("callbackUrl")
	if callbackURL != "" {
		if err := h.validator.Var(callbackURL, "url"); err != nil {
			return response.ValidationError(c, "callbackUrl must be a valid URL", nil)
		}
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > maxUploadSize {
		return response.ValidationError(c, "File size exceeds 50MB limit", map[string]interface{}{
			"maxSize":  maxUploadSize,
			"fileSize": file.Size,
		})
	}

	contentType := file.Header.Get("Content-Type")
	if !validAudioTypes[contentType] {
		return response.ValidationError(c, "Invalid file type. Supported: WAV, MP3, M4A, AAC, FLAC, OGG", map[string]interface{}{
			"contentType": contentType,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, adm, err := h.service.SubmitUpload(c.Context(), middleware.GetUserID(c), file.Filename, contentType, f, file.Size, callbackURL)
	if err != nil {
		log.Printf("[Separation] upload failed: %v", err)
		return response.ServiceError(c, "Failed to store upload")
	}
	if !adm.Accepted {
		return rejection(c, adm.Rejection)
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/separate/status/:jobId
// @Summary      Get job status
// @Description  Latest status snapshot of a separation job
// @Tags         Separation
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.StatusSnapshot
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/separate/status/{jobId} [get]
func (h *SeparationHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	snap, err := h.service.Status(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, snap)
}

// Cancel handles POST /api/separate/cancel/:jobId
// @Summary      Cancel job
// @Description  Cancel a queued, retrying or processing separation job
// @Tags         Separation
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.CancelResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/separate/cancel/{jobId} [post]
func (h *SeparationHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Cancel(c.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrJobNotFound):
			return response.NotFound(c, "Job not found or not cancellable")
		case errors.Is(err, scheduler.ErrAlreadyTerminal):
			return response.Conflict(c, "Job already finished", nil)
		case errors.Is(err, scheduler.ErrJobInTransit):
			c.Set(fiber.HeaderRetryAfter, "1")
			return response.ServiceUnavailable(c, "Job is being moved between queues, try again")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

func rejection(c *fiber.Ctx, rej *model.Rejection) error {
	switch rej.Reason {
	case model.JobStatusRateLimited:
		return response.QuotaExceeded(c, rej.Message, rej.Details)
	case model.JobStatusQueueFull:
		return response.QueueFull(c, rej.Message, rej.Details)
	case model.JobStatusServiceUnavailable:
		return response.ServiceUnavailable(c, rej.Message)
	default:
		return response.InvalidJob(c, rej.Message, rej.Details)
	}
}

func separateResponse(snap *model.StatusSnapshot) *model.SeparateResponse {
	resp := &model.SeparateResponse{
		JobID:     snap.JobID,
		Status:    snap.Status,
		Priority:  snap.Priority,
		CreatedAt: snap.UpdatedAt,
	}
	if snap.Position != nil {
		resp.Position = *snap.Position
	}
	if snap.EstimatedWait != nil {
		resp.EstimatedWait = *snap.EstimatedWait
	}
	return resp
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
