package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/config"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/handlers"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/middleware"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/realtime"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/repository"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/services"
)

// RegisterRoutes wires repositories, services, and handlers onto the
// app. The returned session service also drives the expiry sweeper.
func RegisterRoutes(
	app *fiber.App,
	cfg *config.Config,
	db *pgxpool.Pool,
	broker *realtime.Broker,
	rtcService *services.RTCService,
) *services.SessionService {
	userRepo := repository.NewUserRepository(db)
	tutorProfileRepo := repository.NewTutorProfileRepository(db)
	studentProfileRepo := repository.NewStudentProfileRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	searchTicketRepo := repository.NewSearchTicketRepository(db)

	var storageService services.StorageService
	if cfg.SupabaseURL != "" && cfg.SupabaseBucket != "" && cfg.SupabaseServiceKey != "" {
		storageService = services.NewSupabaseStorageService(cfg.SupabaseURL, cfg.SupabaseBucket, cfg.SupabaseServiceKey)
	}

	tokenReader := services.NewProfileTokenReader(tutorProfileRepo, studentProfileRepo)
	notificationService := services.NewNotificationService(tokenReader, broker, cfg.FCMServerKey)
	matchingService := services.NewMatchingService(tutorProfileRepo)
	sessionService := services.NewSessionService(
		sessionRepo,
		searchTicketRepo,
		tutorProfileRepo,
		studentProfileRepo,
		matchingService,
		rtcService,
		notificationService,
	)
	statsService := services.NewStatsService(sessionRepo, tutorProfileRepo, studentProfileRepo)

	authHandler := handlers.NewAuthHandler(
		db,
		userRepo,
		studentProfileRepo,
		tutorProfileRepo,
		cfg.JWTAccessSecret,
		cfg.JWTRefreshSecret,
	)
	profileHandler := handlers.NewProfileHandler(tutorProfileRepo, studentProfileRepo, storageService)
	sessionHandler := handlers.NewSessionHandler(sessionService)
	statsHandler := handlers.NewStatsHandler(statsService)
	fileHandler := handlers.NewFileHandler(sessionRepo, storageService)
	eventsHandler := handlers.NewEventsHandler(broker, cfg.JWTAccessSecret)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)

	protected := api.Group("/v1", middleware.AuthRequired(cfg.JWTAccessSecret))

	profile := protected.Group("/profile")
	profile.Get("", profileHandler.Me)
	profile.Put("", profileHandler.UpdateMe)
	profile.Post("/avatar", profileHandler.UploadAvatar)
	profile.Post("/fcm-token", profileHandler.SetFCMToken)
	profile.Post("/online", profileHandler.SetOnline)

	tutors := protected.Group("/tutors")
	tutors.Get("", profileHandler.ListOnlineTutors)
	tutors.Get("/:username", profileHandler.GetTutor)

	sessions := protected.Group("/sessions")
	balanceGate := middleware.BalanceRequired(studentProfileRepo)
	sessions.Post("/start", balanceGate, sessionHandler.StartSession)
	sessions.Post("/start/tutor-random", balanceGate, sessionHandler.StartRandomSearch)
	sessions.Post("/start/yes", sessionHandler.AcceptSearch)
	sessions.Post("/start/no", sessionHandler.RejectSearch)
	sessions.Post("/leave", sessionHandler.LeaveSession)
	sessions.Post("/rejoin", sessionHandler.RejoinSession)
	sessions.Post("/end", sessionHandler.EndSession)
	sessions.Post("/:sessionID/files", fileHandler.UploadSessionFiles)
	sessions.Get("/:sessionID/files/signed", fileHandler.SignedFileURL)
	sessions.Put("/:sessionID/solved", fileHandler.MarkSolved)
	sessions.Get("/statistics/:tutorID", statsHandler.Statistics)
	sessions.Get("/summary/:tutorID", statsHandler.Summary)
	sessions.Get("/session-history/:tutorID", statsHandler.History)

	api.Use("/v1/ws", eventsHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(eventsHandler.HandleWebSocket))

	return sessionService
}
