package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Route("/api", func(r chi.Router) {
		// Public routes: the two stateless proxies and health.
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
		r.Post("/abn", apiHandler.ABNLookupHandler)
		r.Post("/chat", apiHandler.ChatHandler)

		// Session routes carry the external identity provider's token.
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.AuthMiddleware)

			r.Post("/sessions", apiHandler.CreateSessionHandler)
			r.Route("/sessions/{sessionID}", func(r chi.Router) {
				r.Get("/", apiHandler.GetSessionHandler)
				r.Delete("/", apiHandler.DeleteSessionHandler)
				r.Post("/reset", apiHandler.ResetChatHandler)
				r.Post("/messages", apiHandler.PostMessageHandler)
				r.Post("/forms", apiHandler.SubmitFormHandler)

				r.Get("/portfolio", apiHandler.GetPortfolioHandler)
				r.Post("/portfolio/actions", apiHandler.DispatchActionHandler)

				r.Post("/checklist", apiHandler.AddChecklistItemHandler)
				r.Post("/checklist/{itemID}/toggle", apiHandler.ToggleChecklistItemHandler)
				r.Delete("/checklist/{itemID}", apiHandler.RemoveChecklistItemHandler)
			})
		})
	})

	return r
}
