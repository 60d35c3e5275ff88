package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ragchat/internal/middleware"
	"github.com/capitalize-ai/ragchat/internal/model"
	"github.com/capitalize-ai/ragchat/internal/service"
	"github.com/capitalize-ai/ragchat/pkg/logger"
)

// UploadHandler issues presigned upload and download URLs.
type UploadHandler struct {
	service *service.UploadService
	logger  *logger.Logger
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(svc *service.UploadService, log *logger.Logger) *UploadHandler {
	return &UploadHandler{service: svc, logger: log}
}

// Create handles POST /api/v1/uploads
func (h *UploadHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.UploadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.service.Presign(ctx, userID, &req)
	if errors.Is(err, service.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to issue upload URL", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to generate upload URL")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Download handles POST /api/v1/uploads/url
func (h *UploadHandler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.DownloadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.service.PresignDownload(ctx, userID, &req)
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, service.ErrObjectForbidden):
		writeError(w, http.StatusForbidden, err.Error())
		return
	case errors.Is(err, service.ErrObjectNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to issue download URL", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to generate download URL")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
