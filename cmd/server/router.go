package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/recitalhq/recital-api/internal/api"
	apimiddleware "github.com/recitalhq/recital-api/internal/api/middleware"
)

// setupRouter creates the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apimiddleware.NewTraceMiddleware(app.logger))

	authHandler := api.NewAuthHandler(
		app.userStore,
		app.jwtService,
		app.passwordVerifier,
		app.logger,
	)
	intakeHandler := api.NewIntakeHandler(app.intakeService, app.logger)
	clipHandler := api.NewClipHandler(app.clipStore, app.logger)
	sessionHandler := api.NewSessionHandler(app.recordingService, app.logger)
	previewHandler := api.NewPreviewHandler(app.previews, app.logger)
	captureHandler := api.NewCaptureHandler(app.recordingService, app.logger)
	authMiddleware := apimiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/api", func(r chi.Router) {
		// Authentication endpoints (public)
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			// Script intake
			r.Post("/scripts", intakeHandler.SubmitScript)

			// Clip collection queries
			r.Get("/clips/completed", clipHandler.GetCompleted)
			r.Get("/clips/next", clipHandler.GetNextPending)
			r.Get("/clips/counts", clipHandler.GetCounts)

			// Recording session lifecycle
			r.Post("/session/start", sessionHandler.StartSession)
			r.Get("/session", sessionHandler.GetSession)
			r.Post("/session/permission", sessionHandler.ReportPermission)
			r.Post("/session/discard", sessionHandler.Discard)
			r.Post("/session/confirm", sessionHandler.Confirm)
			r.Post("/session/rerecord", sessionHandler.Rerecord)
			r.Post("/session/rerecord/cancel", sessionHandler.CancelRerecord)
			r.Post("/session/review", sessionHandler.EnterReview)
			r.Delete("/session", sessionHandler.EndSession)

			// Audio streams
			r.Get("/session/capture", captureHandler.Capture)
			r.Get("/feed", app.feedHub.Feed)
			r.Get("/previews/{id}", previewHandler.GetPreview)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
