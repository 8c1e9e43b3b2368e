package router

import (
	"github.com/labstack/echo/v4"

	"kurir/internal/adapter/api/handler"
	"kurir/internal/adapter/api/middleware"
)

// SetupRoomRouter sets up all room and message routes (excluding WebSocket)
func SetupRoomRouter(e *echo.Echo, roomHandler *handler.RoomHandler, authMiddleware *middleware.AuthMiddleware) {
	roomGroup := e.Group("/v1/rooms")
	roomGroup.Use(authMiddleware.Authenticate)

	// Room management
	roomGroup.POST("", roomHandler.OpenRoom)                     // POST /v1/rooms - Open or create a private room with the first message
	roomGroup.GET("", roomHandler.ListRooms)                     // GET /v1/rooms - Room list with unread counts
	roomGroup.GET("/:id", roomHandler.GetRoom)                   // GET /v1/rooms/:id - Get specific room
	roomGroup.PUT("/:id/read", roomHandler.MarkRead)             // PUT /v1/rooms/:id/read - Advance read cursor
	roomGroup.DELETE("/:id/membership", roomHandler.LeaveRoom)   // DELETE /v1/rooms/:id/membership - Leave permanently

	// Message management
	roomGroup.POST("/:id/messages", roomHandler.SendMessage) // POST /v1/rooms/:id/messages - Send message
	roomGroup.GET("/:id/messages", roomHandler.GetMessages)  // GET /v1/rooms/:id/messages - Get room history
}
