package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"redtape.au/redtape/internal/api"
	"redtape.au/redtape/internal/config"
	"redtape.au/redtape/internal/core"
	"redtape.au/redtape/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if cfg.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// LLM upstream: a missing credential leaves the chat service in degraded
	// mode rather than killing the process.
	var completion core.CompletionClient
	if cfg.GeminiAPIKey != "" {
		llmService, err := core.NewLLMService(context.Background(), cfg.GeminiAPIKey)
		if err != nil {
			log.Printf("Failed to initialize LLM service, chat will report misconfiguration: %v", err)
		} else {
			completion = llmService
			defer llmService.Close()
		}
	}

	chatService := core.NewChatService(completion)
	abnService := core.NewABNService(cfg.ABNLookupGUID, cfg.ABNLookupURL, nil)

	// Sessions live in memory only; nothing is persisted across restarts.
	sessions := store.NewSessionStore()
	flowService := core.NewFlowService(sessions, chatService)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(abnService, chatService, flowService, cfg.SessionJWTSecret)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
