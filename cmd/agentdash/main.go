package main

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"agentdash/api"
	"agentdash/storage"
	"agentdash/stream"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "agentdash.db"
	}
	store, err := storage.New(dbPath)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	logger := log.New()
	hub := stream.NewHub(logger)

	eventsChannel := os.Getenv("EVENTS_CHANNEL")
	if eventsChannel == "" {
		eventsChannel = "agentdash:events"
	}

	var rc *redis.Client
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		redisOpts, err := redis.ParseURL(redisConn)
		if err != nil {
			parts := strings.Split(redisConn, ",")
			redisOpts = &redis.Options{Addr: parts[0]}
			for _, p := range parts[1:] {
				kv := strings.SplitN(p, "=", 2)
				if len(kv) != 2 {
					continue
				}
				switch strings.ToLower(kv[0]) {
				case "password":
					redisOpts.Password = kv[1]
				case "ssl":
					if strings.ToLower(kv[1]) == "true" {
						redisOpts.TLSConfig = &tls.Config{}
					}
				}
			}
		}
		rc = redis.NewClient(redisOpts)
	}

	var apiStore api.Storage = store
	if rc != nil {
		ttl := 5 * time.Minute
		if v := os.Getenv("CACHE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid CACHE_TTL: %v", err)
			}
			ttl = d
		}
		apiStore = storage.NewCache(store, rc, ttl)
		go stream.SubscribeUpdates(context.Background(), logger, rc, eventsChannel, hub)
	}

	publisher := stream.NewPublisher(hub, rc, eventsChannel, logger)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "x-api-key"},
	}))

	api.Register(e, apiStore, publisher, logger)
	api.RegisterWebhook(e, apiStore, publisher, api.WebhookConfig{
		Token:           os.Getenv("WEBHOOK_TOKEN"),
		AutoCreateTasks: os.Getenv("WEBHOOK_AUTO_TASKS") != "0",
	}, logger)
	e.GET("/ws", hub.Handler())

	if sim, err := strconv.ParseBool(os.Getenv("SIMULATE_METRICS")); err == nil && sim {
		go api.RunSimulator(context.Background(), apiStore, publisher, 5*time.Second, logger)
	}

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
