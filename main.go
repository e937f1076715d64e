// go_media — Grok video upscale proxy.
//
// Forwards upscale requests to grok.com with a Chrome TLS fingerprint,
// mirrors the resulting HD assets into a local cache, and serves them
// under /images/.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anatolykoptev/go-kit/env"

	"github.com/grokproxy/go_media/internal/grok"
	"github.com/grokproxy/go_media/internal/server"
	"github.com/grokproxy/go_media/internal/videocache"
)

var (
	version = "dev"
	port    = env.Str("PORT", "8892")
)

func main() {
	setupLogger(env.Str("LOG_LEVEL", "info"))

	slog.Info("starting go_media",
		slog.String("port", port),
		slog.String("version", version),
	)

	proxyURL := env.Str("GROK_PROXY_URL", "")
	cacheDir := env.Str("CACHE_DIR", "./cache/videos")

	vc, err := videocache.New(videocache.Config{
		Dir:             cacheDir,
		AssetHost:       env.Str("GROK_ASSET_HOST", ""),
		ProxyURL:        proxyURL,
		MaxBytes:        int64(env.Int("CACHE_MAX_BYTES", 512<<20)),
		Timeout:         env.Duration("DOWNLOAD_TIMEOUT", 120*time.Second),
		RedisURL:        env.Str("REDIS_URL", ""),
		IndexTTL:        env.Duration("CACHE_TTL", 24*time.Hour),
		MaxIndexEntries: env.Int("CACHE_MAX_ENTRIES", 1000),
	})
	if err != nil {
		slog.Error("video cache init failed", slog.Any("error", err))
		os.Exit(1)
	}

	client, err := grok.NewClient(grok.Config{
		CFClearance: env.Str("GROK_CF_CLEARANCE", ""),
		ProxyURL:    proxyURL,
		BaseURL:     env.Str("BASE_URL", ""),
		Timeout:     env.Duration("UPSCALE_TIMEOUT", 180*time.Second),
	}, vc)
	if err != nil {
		slog.Error("grok client init failed", slog.Any("error", err))
		os.Exit(1)
	}

	srv := server.New(server.Config{
		Port:       port,
		CacheDir:   cacheDir,
		CacheStats: vc.Stats,
	}, client)

	go func() {
		if err := srv.Run(); err != nil {
			slog.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown failed", slog.Any("error", err))
	}
}

func setupLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
