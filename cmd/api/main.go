package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mkrasov/sentichat/internal/config"
	"github.com/mkrasov/sentichat/internal/handler"
	"github.com/mkrasov/sentichat/internal/handler/stream"
	"github.com/mkrasov/sentichat/internal/service/ai"
	"github.com/mkrasov/sentichat/internal/service/chat"
	"github.com/mkrasov/sentichat/internal/service/report"
	"github.com/mkrasov/sentichat/internal/service/sentiment"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// The generative service credential is the one hard requirement; refuse
	// to serve any conversation without it.
	if !cfg.AI.Enabled() {
		log.Fatal("Ark credentials not configured: set ARK_API_KEY (or AK/SK pair) and ARK_MODEL")
	}

	aiSvc, err := ai.NewService(ctx, cfg.AI)
	if err != nil {
		log.Fatalf("failed to initialize AI service: %v", err)
	}
	log.Println("AI service initialized successfully")

	sentimentSvc, err := sentiment.NewService(ctx, aiSvc.ChatModel(), sentiment.Config{
		Enabled:       cfg.Sentiment.LLMEnabled,
		MaxInputRunes: cfg.Sentiment.MaxInputRunes,
	})
	if err != nil {
		log.Fatalf("failed to initialize sentiment classifier: %v", err)
	}
	if sentimentSvc.Enabled() {
		log.Println("Sentiment classifier enabled (LLM with lexicon fallback)")
	} else {
		log.Println("Sentiment classifier running on the lexicon only")
	}

	chatSvc := chat.NewService(aiSvc, sentimentSvc)
	reportSvc := report.New(aiSvc)

	var streamHandler *stream.Handler
	if aiSvc.StreamingEnabled() {
		streamHandler = stream.New(aiSvc, chatSvc, sentimentSvc)
	} else {
		log.Println("streaming disabled by configuration, SSE endpoint will return 503")
	}

	router := handler.NewRouter(chatSvc, reportSvc, streamHandler)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("sentichat backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
