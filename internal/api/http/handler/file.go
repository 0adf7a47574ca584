package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	svcfile "github.com/Alijeyrad/tabib_backend/internal/service/file"
)

type FileHandler struct {
	svc svcfile.Service
}

func NewFileHandler(svc svcfile.Service) *FileHandler {
	return &FileHandler{svc: svc}
}

func mapFileError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, svcfile.ErrKeyNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, svcfile.ErrObjectStore):
		return serviceUnavailable(c, err.Error())
	default:
		return internalError(c)
	}
}

// POST /files
// Multipart upload under "files"; returns the per-file manifest.
func (h *FileHandler) Upload(c fiber.Ctx) error {
	uploads, err := formUploads(c, "files")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if len(uploads) == 0 {
		return badRequest(c, "files field is required")
	}
	return created(c, h.svc.UploadBatch(c.Context(), "uploads", uploads))
}

// GET /files/*
// Redirects to a presigned download URL.
func (h *FileHandler) Download(c fiber.Ctx) error {
	key := c.Params("*")
	if key == "" {
		return badRequest(c, "key is required")
	}
	url, err := h.svc.DownloadURL(c.Context(), key)
	if err != nil {
		return mapFileError(c, err)
	}
	return c.Redirect().To(url)
}
