package router

import (
	"github.com/labstack/echo/v4"

	"kurir/internal/adapter/api/handler"
	"kurir/internal/adapter/api/middleware"
)

// SetupAttachmentRouter sets up attachment upload routes. Only registered
// when a blob backend is configured.
func SetupAttachmentRouter(e *echo.Echo, attachmentHandler *handler.AttachmentHandler, authMiddleware *middleware.AuthMiddleware) {
	attachmentGroup := e.Group("/v1/rooms/:id/attachments")
	attachmentGroup.Use(authMiddleware.Authenticate)

	attachmentGroup.POST("", attachmentHandler.Upload)                    // POST /v1/rooms/:id/attachments - Upload through the API
	attachmentGroup.POST("/signed-url", attachmentHandler.SignedUploadURL) // POST /v1/rooms/:id/attachments/signed-url - Direct-upload URL
}
