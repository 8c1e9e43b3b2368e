package handler

import (
	"context"
	"io"

	"github.com/labstack/echo/v4"

	"kurir/internal/usecase"
	"kurir/pkg/errors"
	"kurir/pkg/response"
)

// AttachmentStore is the blob backend for message attachments. Implemented
// by the Cloud Storage client.
type AttachmentStore interface {
	UploadAttachment(ctx context.Context, file io.Reader, fileType, roomID string) (string, error)
	GenerateSignedUploadURL(ctx context.Context, fileType, roomID string) (string, error)
}

type AttachmentHandler struct {
	store       AttachmentStore
	roomUseCase *usecase.RoomUseCase
}

func NewAttachmentHandler(store AttachmentStore, roomUseCase *usecase.RoomUseCase) *AttachmentHandler {
	return &AttachmentHandler{
		store:       store,
		roomUseCase: roomUseCase,
	}
}

type signedUploadRequest struct {
	ContentType string `json:"content_type" validate:"required"`
}

// Upload stores an attachment blob for a room the caller participates in
// and returns the URL to reference from a subsequent send.
func (h *AttachmentHandler) Upload(c echo.Context) error {
	roomID := c.Param("id")
	userID := c.Get("uid").(string)

	if _, err := h.roomUseCase.RoomForParticipant(c.Request().Context(), userID, roomID); err != nil {
		return response.Error(c, err)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.Error(c, errors.BadRequest("file is required", err))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.Error(c, errors.BadRequest("could not read file", err))
	}
	defer file.Close()

	fileType := fileHeader.Header.Get("Content-Type")

	url, err := h.store.UploadAttachment(c.Request().Context(), file, fileType, roomID)
	if err != nil {
		return response.Error(c, errors.Internal("Failed to upload attachment", err))
	}

	return response.Created(c, map[string]string{"url": url})
}

// SignedUploadURL hands the client a short-lived direct-upload URL so large
// attachments bypass the API server.
func (h *AttachmentHandler) SignedUploadURL(c echo.Context) error {
	roomID := c.Param("id")
	userID := c.Get("uid").(string)

	var req signedUploadRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	if _, err := h.roomUseCase.RoomForParticipant(c.Request().Context(), userID, roomID); err != nil {
		return response.Error(c, err)
	}

	url, err := h.store.GenerateSignedUploadURL(c.Request().Context(), req.ContentType, roomID)
	if err != nil {
		return response.Error(c, errors.Internal("Failed to generate upload URL", err))
	}

	return response.Success(c, map[string]string{"url": url})
}
