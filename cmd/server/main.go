package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/astrochat/astrochat-backend/internal/config"
	"github.com/astrochat/astrochat-backend/internal/handlers"
	"github.com/astrochat/astrochat-backend/internal/middleware"
	"github.com/astrochat/astrochat-backend/internal/routes"
	"github.com/astrochat/astrochat-backend/internal/services"
	"github.com/astrochat/astrochat-backend/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	log.Printf("Connecting to MongoDB...")
	mongoStore, err := store.ConnectMongo(context.Background(), cfg.MongoURI)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB: ", err)
	}
	defer mongoStore.Disconnect()

	if err := mongoStore.EnsureIndexes(context.Background()); err != nil {
		log.Printf("WARNING: failed to ensure MongoDB indexes: %v", err)
	}

	hub := services.NewHub()

	// Redis links hub instances across processes. Without it the gateway
	// still works, scoped to this process.
	var bridge *services.RedisBridge
	var publisher services.Publisher = hub
	if redisClient, err := services.ConnectRedis(cfg.RedisURI); err != nil {
		log.Printf("WARNING: Redis unavailable, realtime delivery is local only: %v", err)
	} else {
		bridge = services.NewRedisBridge(redisClient, hub)
		bridge.Start(context.Background())
		publisher = bridge
		defer redisClient.Close()
	}

	users := services.NewUserService(mongoStore)
	sessions := services.NewSessionService(mongoStore, cfg.JWTSecret)
	contacts := services.NewContactService(mongoStore)
	messages := services.NewMessageService(mongoStore, publisher)

	h := handlers.New(users, sessions, contacts, messages, hub)
	h.Bridge = bridge

	if cfg.CloudinaryName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		avatars, err := services.NewAvatarService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			log.Printf("WARNING: failed to initialize Cloudinary: %v", err)
		} else {
			h.Avatars = avatars
		}
	} else {
		log.Println("Cloudinary credentials not found, avatar uploads disabled")
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.IsProduction() {
		r.Use(middleware.SecurityHeaders)
	}
	r.Use(middleware.NewGlobalRateLimiter().Handler)

	routes.Setup(r, h)

	log.Printf("astrochat backend running on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}
