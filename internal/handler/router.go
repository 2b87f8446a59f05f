package handler

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	chatHandler "github.com/mkrasov/sentichat/internal/handler/chat"
	"github.com/mkrasov/sentichat/internal/handler/stream"
	"github.com/mkrasov/sentichat/internal/handler/ws"
	middlewarePkg "github.com/mkrasov/sentichat/internal/middleware"
	chatService "github.com/mkrasov/sentichat/internal/service/chat"
	reportService "github.com/mkrasov/sentichat/internal/service/report"
	"github.com/mkrasov/sentichat/pkg/utils"
)

// NewRouter wires HTTP routes to core services. streamHandler may be nil
// when streaming is disabled in configuration.
func NewRouter(chatSvc *chatService.Service, reportSvc *reportService.Service, streamHandler *stream.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	convHandler := chatHandler.New(chatSvc, reportSvc)
	wsHandler := ws.New(chatSvc, reportSvc)

	r.Route("/api", func(api chi.Router) {
		convHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)

		api.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			userMessage := r.URL.Query().Get("message")

			if streamHandler == nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "streaming unavailable")
				return
			}
			if userMessage == "" {
				utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
				return
			}

			if err := streamHandler.HandleStreamRequest(r.Context(), w, sessionID, userMessage); err != nil {
				log.Printf("[stream] error handling request: %v", err)
			}
		})
	})

	return r
}
