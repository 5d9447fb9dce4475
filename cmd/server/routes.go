package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/logicaltax/backend/internal/handler"
	appMiddleware "github.com/logicaltax/backend/internal/middleware"
	"github.com/logicaltax/backend/internal/metrics"
	"github.com/logicaltax/backend/internal/service"
)

type routerDeps struct {
	corsOrigins []string
	metrics     *metrics.Metrics
	auth        *service.AuthService
	access      service.AccessResolver
	billing     *service.BillingService
	categories  *service.CategoryService
	entries     *service.QAService
	stats       *service.StatsService
	health      *handler.HealthHandler
	limiter     *appMiddleware.RateLimiter
	strict      *appMiddleware.RateLimiter
}

func newRouter(d routerDeps) http.Handler {
	authHandler := handler.NewAuthHandler(d.auth)
	adminHandler := handler.NewAdminHandler(d.auth, d.stats)
	contentHandler := handler.NewContentHandler(d.categories, d.entries)
	paymentHandler := handler.NewPaymentHandler(d.billing, d.access)
	webhookHandler := handler.NewWebhookHandler(d.billing)

	paywall := appMiddleware.RequireAccess(d.access, nil)
	freeOrPaywall := appMiddleware.RequireAccess(d.access, appMiddleware.FreeEntry(d.entries.IsFree, func(r *http.Request) string {
		return chi.URLParam(r, "id")
	}))

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(appMiddleware.Recovery)
	r.Use(appMiddleware.Logger(d.metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes; webhooks are exempt from the per-IP limiter.
	r.Get("/health", d.health.Check)
	r.Post("/api/webhooks/stripe", webhookHandler.Stripe)

	r.Group(func(r chi.Router) {
		r.Use(d.limiter.Middleware())

		r.Get("/api/qa/free", contentHandler.ListFree)

		r.Group(func(r chi.Router) {
			r.Use(d.strict.Middleware())
			r.Post("/api/auth/login", authHandler.Login)
			r.Post("/api/auth/register", authHandler.Register)
		})

		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.Auth(d.auth))

			r.Get("/api/auth/me", authHandler.Me)
			r.Get("/api/auth/redirect", authHandler.Redirect)

			r.Post("/api/payment/checkout", paymentHandler.CreateCheckout)
			r.Post("/api/payment/confirm", paymentHandler.Confirm)
			r.Get("/api/payment/subscription", paymentHandler.GetSubscription)

			// Subscriber content
			r.With(paywall).Get("/api/categories", contentHandler.ListCategories)
			r.With(paywall).Get("/api/qa", contentHandler.ListEntries)
			r.With(paywall).Get("/api/qa/search", contentHandler.Search)
			r.With(freeOrPaywall).Get("/api/qa/{id}", contentHandler.GetEntry)

			r.Route("/api/admin", func(r chi.Router) {
				r.Use(appMiddleware.AdminOnly)

				r.Get("/stats", adminHandler.GetStats)
				r.Get("/users", adminHandler.ListUsers)
				r.Post("/users", adminHandler.CreateUser)
				r.Delete("/users/{id}", adminHandler.DeleteUser)

				r.Get("/categories", contentHandler.ListCategories)
				r.Post("/categories", contentHandler.CreateCategory)
				r.Get("/categories/{id}", contentHandler.GetCategory)
				r.Put("/categories/{id}", contentHandler.UpdateCategory)
				r.Delete("/categories/{id}", contentHandler.DeleteCategory)
				r.Post("/categories/{id}/move", contentHandler.MoveCategory)

				r.Get("/qa", contentHandler.ListAllEntries)
				r.Post("/qa", contentHandler.CreateEntry)
				r.Get("/qa/{id}", contentHandler.GetAnyEntry)
				r.Put("/qa/{id}", contentHandler.UpdateEntry)
				r.Delete("/qa/{id}", contentHandler.DeleteEntry)
				r.Post("/qa/{id}/move", contentHandler.MoveEntry)
				r.Post("/qa/{id}/toggle-publish", contentHandler.TogglePublish)
			})
		})
	})

	return r
}

// newMetricsRouter serves /metrics on the internal listener only.
func newMetricsRouter(m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(appMiddleware.Recovery)
	r.Handle("/metrics", m.Handler())
	return r
}
