package backend

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jghoshh/missioncenter/backend/catalog"
	"github.com/jghoshh/missioncenter/backend/config"
	"github.com/jghoshh/missioncenter/backend/queue"
	"github.com/jghoshh/missioncenter/backend/server"
	cache "github.com/jghoshh/missioncenter/backend/storage/cache"
	"github.com/jghoshh/missioncenter/backend/storage/persistent"
	"github.com/jghoshh/missioncenter/lib/tags"
)

// RunBackend is the main function that sets up and runs the backend server.
// It connects MongoDB, Redis and RabbitMQ, starts the progress event
// consumers and serves the API until SIGINT or SIGTERM.
func RunBackend() {
	cfg, err := config.Load("backend/.env")
	if err != nil {
		log.Fatalf("error reading configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStorage(cfg.DBName, cfg.MongoURI)
	if err != nil {
		log.Fatalf("error connecting to MongoDB: %v", err)
	}
	defer store.Disconnect()

	// Redis backs both the catalog cache and event de-duplication.
	redisCache, err := cache.NewCache(cfg.RedisURL)
	if err != nil {
		log.Fatalf("error connecting to cache: %v", err)
	}
	defer redisCache.Disconnect()

	progressQueue, err := queue.BuildProgressQueue(cfg.RabbitMQURL, cfg.NumEventProducers, cfg.NumEventConsumers, redisCache, store)
	if err != nil {
		log.Fatalf("error setting up the progress queue: %v", err)
	}
	defer progressQueue.Close()
	// Wait only covers registration; deliveries are handled until ctx ends.
	progressQueue.StartConsumers(ctx).Wait()

	api := server.New(server.Deps{
		Store:      store,
		Catalog:    catalog.New(store, redisCache, cfg.CatalogCacheTTL),
		Events:     progressQueue,
		SigningKey: cfg.SigningKey,
		IsAdmin:    cfg.IsAdmin,
		Sampler:    tags.NewSampler(nil),
		Timeout:    cfg.RequestTimeout,
	})

	if err := server.Start(ctx, cfg.ServerURL, api.Handler()); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
