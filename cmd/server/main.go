package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/AnshRaj112/voiceconnect-backend/internal/config"
	"github.com/AnshRaj112/voiceconnect-backend/internal/database"
	"github.com/AnshRaj112/voiceconnect-backend/internal/handlers"
	"github.com/AnshRaj112/voiceconnect-backend/internal/middleware"
	"github.com/AnshRaj112/voiceconnect-backend/internal/queue"
	"github.com/AnshRaj112/voiceconnect-backend/internal/repository"
	"github.com/AnshRaj112/voiceconnect-backend/internal/routes"
	"github.com/AnshRaj112/voiceconnect-backend/internal/services"
	"github.com/AnshRaj112/voiceconnect-backend/pkg/clientip"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()
	clientip.TrustProxyHeaders(cfg.TrustProxy)

	if cfg.IsProduction() && cfg.JWTSecret == "your-secret-key-change-in-production" {
		log.Fatal("JWT_SECRET must be set in production")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	log.Printf("Connecting to PostgreSQL...")
	if err := database.ConnectPostgres(cfg.PostgresURI); err != nil {
		log.Fatal("Failed to connect to PostgreSQL:", err)
	}
	defer database.DisconnectPostgres()
	store := repository.NewStore(database.PostgresDB)

	// Connect to Redis (cache, shared rate limits, realtime fan-out)
	log.Printf("Connecting to Redis...")
	if err := database.ConnectRedis(cfg.RedisURI); err != nil {
		log.Printf("⚠️  WARNING: Redis unavailable (%v). Caching and cross-instance realtime are disabled", err)
	} else {
		defer database.DisconnectRedis()
	}

	// Connect to MongoDB (delivery log, admin audit)
	log.Printf("Connecting to MongoDB...")
	var mongoLog *services.MongoLog
	var audit services.AuditLogger
	var deliveries services.DeliveryLog
	if err := database.ConnectMongo(cfg.MongoURI); err != nil {
		log.Printf("⚠️  WARNING: MongoDB unavailable (%v). Delivery log and audit trail are disabled", err)
	} else {
		defer database.DisconnectMongo()
		mongoLog = services.NewMongoLog(database.MongoDB)
		if err := mongoLog.EnsureIndexes(ctx); err != nil {
			log.Printf("⚠️  WARNING: failed to ensure MongoDB indexes: %v", err)
		} else {
			log.Println("✅ MongoDB indexes ensured")
		}
		audit = mongoLog
		deliveries = mongoLog
	}

	// Voice memo storage
	var blobs services.BlobStore
	if cfg.CloudinaryName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cld, err := services.NewCloudinaryService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			log.Printf("Warning: Failed to initialize Cloudinary: %v", err)
		} else {
			blobs = cld
			log.Println("✅ Cloudinary service initialized")
		}
	} else {
		log.Println("Warning: Cloudinary credentials not found. Voice memos will not be available")
	}

	// Realtime: local hub, fed by Redis pub/sub when available
	hub := services.NewHub()
	var events services.EventPublisher = services.LocalEventPublisher{Hub: hub}
	var listingCache services.ListingCache
	if database.RedisClient != nil {
		events = services.NewRedisEventPublisher(database.RedisClient)
		services.StartRedisSubscriber(ctx, database.RedisClient, hub)
		listingCache = services.NewCacheService(database.RedisClient)
	}

	listings := services.NewInfluencerListings(listingCache, cfg.InfluencerCacheTTL)
	directory := services.NewDirectory(store, audit, listings)
	influencers := services.NewInfluencers(store, audit, listings)
	ledger := services.NewLedger(store)
	messaging := services.NewMessaging(store, blobs, events)

	var provider services.CheckoutProvider
	if cfg.StripeSecretKey != "" {
		provider = services.NewStripeCheckout(cfg.StripeSecretKey)
		log.Println("✅ Stripe checkout configured")
	} else {
		log.Println("Warning: STRIPE_SECRET_KEY not set. Credit purchases are disabled")
	}
	checkout := services.NewCheckout(provider, cfg.AppURL)

	// Notifications: outbox relay → RabbitMQ → email, or relay → email directly
	var mailer services.Mailer = services.LogMailer{}
	if cfg.ResendAPIKey != "" {
		mailer = services.NewResendMailer(cfg.ResendAPIKey, cfg.EmailFrom)
		log.Println("✅ Resend mailer configured")
	} else {
		log.Println("Warning: RESEND_API_KEY not set. Notification email is logged only")
	}
	deliverer := services.NewEmailDeliverer(mailer, deliveries)

	var dispatcher services.Dispatcher = deliverer
	if cfg.RabbitMQURL != "" {
		publisher := queue.NewPublisher(cfg.RabbitMQURL, cfg.NotificationQueue)
		defer publisher.Close()
		dispatcher = publisher
		queue.StartNotificationConsumer(ctx, cfg.RabbitMQURL, cfg.NotificationQueue, deliverer)
		log.Printf("✅ Notification queue %s enabled", cfg.NotificationQueue)
	}
	services.NewRelay(store, dispatcher, cfg.OutboxBatchSize, cfg.OutboxMaxAttempts, cfg.OutboxPollInterval).Start(ctx)
	log.Println("✅ Notification outbox relay started")

	handlers.Init(handlers.Deps{
		Directory:           directory,
		Influencers:         influencers,
		Ledger:              ledger,
		Messaging:           messaging,
		Checkout:            checkout,
		Hub:                 hub,
		Deliveries:          deliveryReader(mongoLog),
		RateLimits:          database.RedisClient,
		JWTSecret:           cfg.JWTSecret,
		ClerkWebhookSecret:  cfg.ClerkWebhookSecret,
		StripeWebhookSecret: cfg.StripeWebhookSecret,
	})

	// Setup router
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Production: SecurityHeaders → HostCheck → GlobalRateLimit
	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(cfg.AllowedHost) {
			r.Use(mw)
		}
		log.Println("✅ Production security enabled (security headers, host check, per-IP rate limiting)")
	}
	r.Use(middleware.RedisRateLimit(database.RedisClient, "api", 2*time.Minute, 600))

	routes.SetupRoutes(r, routes.Options{
		JWTSecret: cfg.JWTSecret,
		Users:     directory,
		Redis:     database.RedisClient,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🚀 VoiceConnect backend running on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  graceful shutdown failed: %v", err)
	}
}

// deliveryReader avoids handing a typed nil to the handlers.
func deliveryReader(l *services.MongoLog) handlers.DeliveryReader {
	if l == nil {
		return nil
	}
	return l
}
