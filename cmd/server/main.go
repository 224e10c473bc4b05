package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/config"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/database"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/realtime"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/routes"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/services"
)

// expirySweepInterval is how often Pending sessions are checked against
// their grace window.
const expirySweepInterval = 30 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.AppEnv == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if cfg.DBUrl == "" {
		log.Fatal().Msg("DB_URL is required")
	}
	if err := database.ConnectDB(cfg.DBUrl); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.CloseDB()

	redisClient, err := realtime.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	broker := realtime.NewBroker(redisClient)
	defer broker.Close()

	rtcService, err := services.NewRTCService(cfg.RTCAppID, cfg.RTCAppCertificate)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize RTC credentials")
	}

	app := fiber.New()

	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	sessionService := routes.RegisterRoutes(app, cfg, database.DB, broker, rtcService)

	sweeperDone := make(chan struct{})
	go runExpirySweeper(sessionService, sweeperDone)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		close(sweeperDone)
		log.Info().Msg("shutting down")
		_ = app.Shutdown()
	}()

	log.Info().Str("port", cfg.Port).Msg("server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

// runExpirySweeper moves stale Pending sessions to Expired on a fixed
// interval until the done channel closes.
func runExpirySweeper(sessionService *services.SessionService, done <-chan struct{}) {
	ticker := time.NewTicker(expirySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			expired, err := sessionService.ExpirePending(ctx)
			cancel()
			if err != nil {
				log.Error().Err(err).Msg("expiry sweep failed")
				continue
			}
			if expired > 0 {
				log.Info().Int64("expired", expired).Msg("expired stale pending sessions")
			}
		case <-done:
			return
		}
	}
}
