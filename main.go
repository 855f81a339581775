package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard-api/api"
	"taskboard-api/board"
	"taskboard-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()
	logger.SetLevel(log.GetLevel())

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	fileStore, err := storage.NewFileStore(dataDir)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	// Board documents live in Azure Tables when configured, on disk
	// otherwise. Users and read sets always stay on disk.
	var states board.StateRepository = fileStore
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	boardTable := os.Getenv("BOARD_TABLE")
	if connStr != "" && boardTable != "" {
		tableStore, err := storage.NewTableStore(connStr, boardTable)
		if err != nil {
			log.Fatalf("table storage: %v", err)
		}
		states = tableStore
	}

	var deduper api.Deduper
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		rc := redis.NewClient(parseRedisOptions(redisConn))
		ttl := 24 * time.Hour
		if v := os.Getenv("DEDUPER_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid DEDUPER_TTL: %v", err)
			}
			ttl = d
		}
		deduper = api.NewRedisDeduper(rc, ttl)

		cacheTTL := time.Hour
		if v := os.Getenv("BOARD_CACHE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid BOARD_CACHE_TTL: %v", err)
			}
			cacheTTL = d
		}
		states = storage.NewStateCache(states, rc, cacheTTL)
	}

	idleAckDelay := board.DefaultIdleAckDelay
	if v := os.Getenv("NOTIF_AUTO_READ_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid NOTIF_AUTO_READ_DELAY: %v", err)
		}
		idleAckDelay = d
	}

	store := board.NewStore(states, logger)
	feed := board.NewNotifications(store, fileStore, logger, idleAckDelay)

	blobs, err := storage.NewDiskBlobStore(dataDir)
	if err != nil {
		log.Fatalf("blob storage: %v", err)
	}

	var auth *api.Auth
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		auth = api.NewLocalAuth([]byte(secret))
	} else {
		audience := os.Getenv("AUTH_AUDIENCE")
		domain := os.Getenv("AUTH_DOMAIN")
		if audience == "" || domain == "" {
			log.Fatal("set JWT_SECRET for local auth, or AUTH_DOMAIN and AUTH_AUDIENCE for JWKS auth")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewJWKSAuth(jwks, audience, "https://"+domain+"/", 0)
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, api.Deps{
		Store:   store,
		Feed:    feed,
		Users:   fileStore,
		Auth:    auth,
		Deduper: deduper,
		Blobs:   blobs,
		DataDir: dataDir,
		Logger:  logger,
	})

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// parseRedisOptions accepts a redis URL or the comma separated
// "host:port,password=...,ssl=true" form some hosting providers emit.
func parseRedisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
