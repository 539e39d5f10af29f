package routes

import (
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/handlers"
	"github.com/AnshRaj112/voiceconnect-backend/internal/middleware"
	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

// Options carry what the route groups need beyond the handlers themselves.
type Options struct {
	JWTSecret string
	Users     middleware.UserEnsurer
	Redis     *redis.Client // nil disables the shared Redis limits
}

func SetupRoutes(r chi.Router, opts Options) {
	r.Get("/health", handlers.Health)

	// Provider webhooks authenticate by signature, not session
	r.Post("/api/webhooks/clerk", handlers.ClerkWebhook)
	r.Post("/api/webhooks/stripe", handlers.StripeWebhook)

	// Public directory
	r.Get("/api/influencers", handlers.ListInfluencers)
	r.Get("/api/influencers/{userID}", handlers.GetInfluencer)
	r.Get("/api/credits/packages", handlers.GetCreditPackages)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(opts.JWTSecret, opts.Users))

		r.Get("/api/me", handlers.GetMe)
		r.Get("/api/dashboard", handlers.GetDashboard)
		r.Get("/ws/conversations", handlers.ConversationsWebSocket)

		// Influencer onboarding and profile
		r.Post("/api/influencer/become", handlers.BecomeInfluencer)
		r.With(middleware.RequireRole(models.RoleInfluencer)).Put("/api/influencer/profile", handlers.UpdateInfluencerProfile)
		r.Post("/api/influencers/{userID}/conversation", handlers.StartOrGetConversation)

		// Credits
		r.Get("/api/credits", handlers.GetCredits)
		r.With(middleware.RedisRateLimit(opts.Redis, "checkout", 10*time.Minute, 20)).
			Post("/api/credits/checkout", handlers.CreateCheckout)

		// Conversations
		r.Get("/api/conversations", handlers.ListConversations)
		r.With(middleware.MessageRateLimit).Post("/api/conversations", handlers.StartConversation)
		r.Get("/api/conversations/{id}/messages", handlers.GetMessages)
		r.With(middleware.MessageRateLimit).Post("/api/conversations/{id}/messages", handlers.SendMessage)
		r.Post("/api/conversations/{id}/read", handlers.MarkConversationRead)

		// Admin
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(models.RoleAdmin))

			r.Get("/users", handlers.AdminListUsers)
			r.Put("/users/{id}/role", handlers.AdminSetRole)
			r.Get("/influencers", handlers.AdminListInfluencers)
			r.Put("/influencers/{id}/verified", handlers.AdminSetVerified)
			r.Put("/influencers/{id}/active", handlers.AdminSetActive)
			r.Get("/notifications", handlers.AdminRecentNotifications)
			r.Get("/blocked-ips", handlers.GetBlockedIPs)
			r.Put("/unblock-ip", handlers.UnblockIP)
		})
	})
}
