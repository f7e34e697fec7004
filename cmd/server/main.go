package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"babble/auth"
	"babble/internal"
	"babble/moderation"
	"babble/repositories"
	"babble/search"
	"babble/services"
	"babble/web"
	"babble/workers"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or a
// service manager (e.g. systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper; run() centralizes error
	// reporting so that deferred cleanup always executes.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	censoredChar, err := internal.CharacterRune(config.CensoredChar)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	auth.SetSecret(config.JWTSecret)

	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Ensures the database lock is released and buffers are flushed.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		debugPort := 8081
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", debugPort, endpoint))
		database.StartDebugServer(db, debugPort, endpoint, recordMapper)
	}

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Repositories & Services
	userRepository := repositories.NewUserRepository(db)
	chatRepository := repositories.NewChatRepository(db, logger, config.LimitMessages)
	messageIndex := search.NewMessageIndex(blugeWriter, logger)

	var moderator *moderation.Moderator
	if words := config.CensoredWordList(); len(words) > 0 {
		moderator, err = moderation.NewModerator(words, censoredChar, logger)
		if err != nil {
			return exitConfig, fmt.Errorf("moderator init failed: %w", err)
		}
		logger.Info("Moderation enabled", "words", len(words))
	}

	authService := services.NewAuthService(userRepository, config.AuthTokenDuration)
	chatService := services.NewChatService(userRepository, chatRepository, moderator, messageIndex, logger)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Session hub and supervised background workers
	hub := web.NewHub(logger, config.BufferSize)
	supervisor := workers.NewSupervisor(logger, config.RestartInterval)
	supervisor.Add(hub, workers.NewHeartbeatWorker(logger, hub, config.HeartbeatInterval))

	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		supervisor.Run(ctx)
	}()

	// 6. HTTP server (REST + websocket gateway)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := web.NewServer(logger, address, hub, authService, chatService, config.ConnectionBufferSize)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", address, "at", time.Now().UTC())
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	supervisor.Stop()
	<-supervisorDone
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

// recordMapper renders store records for the debug inspector.
func recordMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	switch {
	case strings.HasPrefix(key, "user:"):
		row.Type = "USER"
		var record struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		}
		if err := json.Unmarshal(val, &record); err == nil {
			row.Detail = fmt.Sprintf("%s <%s>", record.Name, record.Email)
		}
	case strings.HasPrefix(key, "chat:"):
		row.Type = "CHAT"
		var record struct {
			Members [2]string `json:"members"`
		}
		if err := json.Unmarshal(val, &record); err == nil {
			row.Detail = fmt.Sprintf("%s | %s", record.Members[0], record.Members[1])
		}
	case strings.HasPrefix(key, "msg:"):
		row.Type = "MESSAGE"
		var record struct {
			Sender string `json:"sender"`
			Text   string `json:"text"`
			At     int64  `json:"at"`
		}
		if err := json.Unmarshal(val, &record); err == nil {
			row.Detail = fmt.Sprintf("%s: %s", record.Sender, record.Text)
			row.Timestamp = time.Unix(0, record.At).Format("15:04:05")
		}
	case strings.HasPrefix(key, "pair:"):
		row.Type = "PAIR"
		row.Detail = string(val)
	}

	return row
}
