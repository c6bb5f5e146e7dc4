package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/maxtel-dev/bingwa-sokoni-bot/internal/bot"
	"github.com/maxtel-dev/bingwa-sokoni-bot/internal/config"
	"github.com/maxtel-dev/bingwa-sokoni-bot/internal/db"
	"github.com/maxtel-dev/bingwa-sokoni-bot/internal/handlers"
	"github.com/maxtel-dev/bingwa-sokoni-bot/internal/services"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := godotenv.Load(".env"); err != nil {
		log.Warn().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := db.Connect(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			log.Error().Err(err).Msg("mongo disconnect failed")
		}
	}()

	database := client.Database(cfg.MongoDB)

	ledger := services.NewLedgerService(database)
	if err := ledger.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure ledger indexes")
	}

	sessions := services.NewSessionStore(cfg.SessionTTL)
	go sessions.Sweep(ctx, time.Minute)

	gateway := services.NewMpesaClient(cfg)
	purchases := services.NewPurchaseService(sessions, gateway, ledger)

	callbackHandler := handlers.NewCallbackHandler(ledger)
	transactionHandler := handlers.NewTransactionHandler(ledger, cfg.JWTSecret)

	router := mux.NewRouter()
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "HEAD")
	router.HandleFunc("/api/mpesa/callback", callbackHandler.HandleCallback).Methods("POST")
	router.HandleFunc("/api/transactions/{userID}", transactionHandler.GetTransactionsByUserID).Methods("GET")

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("callback server running")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("callback server failed")
		}
	}()

	tgBot, err := bot.New(cfg.TelegramToken, purchases, cfg.SupportLine)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start bot")
	}
	tgBot.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
