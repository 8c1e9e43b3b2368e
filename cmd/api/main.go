package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"kurir/internal/adapter/api"
	"kurir/internal/adapter/api/handler"
	apimiddleware "kurir/internal/adapter/api/middleware"
	"kurir/internal/adapter/api/router"
	"kurir/internal/adapter/repository"
	domainrepo "kurir/internal/domain/repository"
	"kurir/internal/infrastructure/firebase"
	"kurir/internal/infrastructure/storage"
	"kurir/internal/infrastructure/stream"
	"kurir/internal/usecase"
	"kurir/pkg/config"
	"kurir/pkg/logger"
)

// noopBlobStore backs the memory driver, where attachments are plain URLs
// with nothing to delete.
type noopBlobStore struct{}

func (noopBlobStore) DeleteFile(ctx context.Context, fileURL string) error { return nil }

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	slogger := logger.New(cfg.Environment)

	ctx := context.Background()

	var opt option.ClientOption

	// Try to get service account from environment variable (for production)
	serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON")
	serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH")
	if serviceAccountJSON != "" {
		slogger.Info("using Firebase service account from environment variable")
		opt = option.WithCredentialsJSON([]byte(serviceAccountJSON))
	} else if serviceAccountPath != "" {
		if _, err := os.Stat(serviceAccountPath); os.IsNotExist(err) {
			log.Fatalf("Service account file does not exist: %s", serviceAccountPath)
		}
		slogger.Info("using Firebase service account from file", "path", serviceAccountPath)
		opt = option.WithCredentialsFile(serviceAccountPath)
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opt)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	var (
		roomRepo    domainrepo.RoomRepository
		msgRepo     domainrepo.MessageRepository
		cursorRepo  domainrepo.CursorRepository
		blobs       usecase.BlobStore
		attachments handler.AttachmentStore
	)

	switch cfg.StoreDriver {
	case "memory":
		slogger.Info("using in-memory store driver")
		roomRepo = repository.NewMemoryRoomRepository()
		msgRepo = repository.NewMemoryMessageRepository()
		cursorRepo = repository.NewMemoryCursorRepository()
		blobs = noopBlobStore{}

	default:
		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opt)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		storageClient, err := storage.NewCloudStorageClient(
			ctx,
			cfg.StorageBucket,
			cfg.FirebaseProject,
			serviceAccountPath,
		)
		if err != nil {
			log.Fatalf("Failed to initialize Cloud Storage: %v", err)
		}
		defer storageClient.Close()

		roomRepo = repository.NewFirestoreRoomRepository(firestoreClient)
		msgRepo = repository.NewFirestoreMessageRepository(firestoreClient)
		cursorRepo = repository.NewFirestoreCursorRepository(firestoreClient)
		blobs = storageClient
		attachments = storageClient
	}

	broker := stream.NewBroker()

	messageUseCase := usecase.NewMessageUseCase(msgRepo, roomRepo, cursorRepo, broker, slogger)
	roomUseCase := usecase.NewRoomUseCase(roomRepo, cursorRepo, msgRepo, messageUseCase, blobs, broker, slogger)

	e := echo.New()

	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.Validator = api.NewValidator()

	firebaseAuthClient := firebase.NewFirebaseAuthClient(authClient)
	authMiddleware := apimiddleware.NewAuthMiddleware(firebaseAuthClient)

	roomHandler := handler.NewRoomHandler(roomUseCase, messageUseCase)
	wsHandler := handler.NewWebSocketHandler(roomUseCase, messageUseCase, authMiddleware)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	router.SetupRoomRouter(e, roomHandler, authMiddleware)
	router.SetupWebSocketRouter(e, wsHandler)
	if attachments != nil {
		attachmentHandler := handler.NewAttachmentHandler(attachments, roomUseCase)
		router.SetupAttachmentRouter(e, attachmentHandler, authMiddleware)
	}

	slogger.Info("starting server", "port", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
