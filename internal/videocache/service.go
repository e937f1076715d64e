// Package videocache mirrors HD assets from grok.com's CDN onto local disk
// so the proxy can serve them under /images/ without re-crossing the bot
// filter on every playback.
package videocache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/grokproxy/go_media/internal/grok"
)

// Config holds the cache service settings, injected from main.
type Config struct {
	Dir             string        // destination directory for mirrored files
	AssetHost       string        // default https://assets.grok.com
	ProxyURL        string        // same proxy the API client uses
	MaxBytes        int64         // per-asset size cap
	Timeout         time.Duration // per-download bound
	RedisURL        string        // optional L2 for the index
	IndexTTL        time.Duration
	MaxIndexEntries int
}

const (
	defaultAssetHost = "https://assets.grok.com"
	defaultMaxBytes  = 512 << 20
	defaultTimeout   = 120 * time.Second
)

type httpDoer interface {
	Do(req *fhttp.Request) (*fhttp.Response, error)
}

// Service downloads assets through the impersonated transport and stores
// them under cfg.Dir with flattened file names. Concurrent downloads of the
// same path are collapsed into one.
type Service struct {
	cfg   Config
	http  httpDoer
	idx   *index
	group singleflight.Group
}

// New creates the cache service and its destination directory.
func New(cfg Config) (*Service, error) {
	if cfg.Dir == "" {
		return nil, errors.New("videocache: dir required")
	}
	if cfg.AssetHost == "" {
		cfg.AssetHost = defaultAssetHost
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("videocache: create dir: %w", err)
	}

	hc, err := grok.NewTransport(cfg.Timeout, cfg.ProxyURL)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:  cfg,
		http: hc,
		idx:  newIndex(cfg.RedisURL, cfg.IndexTTL, cfg.MaxIndexEntries),
	}, nil
}

// Download mirrors the asset at remotePath and returns the local file path.
// An asset that is already indexed and still on disk is returned without a
// network call.
func (s *Service) Download(ctx context.Context, remotePath, authToken string) (string, error) {
	if remotePath == "" {
		return "", errors.New("videocache: empty remote path")
	}
	if !strings.HasPrefix(remotePath, "/") {
		remotePath = "/" + remotePath
	}

	v, err, _ := s.group.Do(remotePath, func() (any, error) {
		return s.download(ctx, remotePath, authToken)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Stats exposes index hit/miss counters for the metrics endpoint.
func (s *Service) Stats() (hits, misses int64) {
	return s.idx.Stats()
}

func (s *Service) download(ctx context.Context, remotePath, authToken string) (string, error) {
	if e, ok := s.idx.Get(ctx, remotePath); ok {
		local := filepath.Join(s.cfg.Dir, e.FileName)
		if _, err := os.Stat(local); err == nil {
			slog.Debug("videocache: already mirrored", slog.String("path", remotePath))
			return local, nil
		}
		s.idx.Delete(ctx, remotePath) // file vanished from disk
	}

	data, err := s.fetch(ctx, remotePath, authToken)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("videocache: empty asset body")
	}

	name := flattenName(remotePath)
	local := filepath.Join(s.cfg.Dir, name)
	if err := writeAtomic(local, data); err != nil {
		return "", fmt.Errorf("videocache: store %s: %w", name, err)
	}

	s.idx.Set(ctx, remotePath, Entry{FileName: name, Size: int64(len(data)), CachedAt: time.Now()})
	slog.Info("videocache: asset mirrored",
		slog.String("path", remotePath),
		slog.String("file", name),
		slog.Int("bytes", len(data)),
	)
	return local, nil
}

// fetch downloads the asset with retry on transient upstream failures.
func (s *Service) fetch(ctx context.Context, remotePath, authToken string) ([]byte, error) {
	targetURL := s.cfg.AssetHost + remotePath

	operation := func() ([]byte, error) {
		req, err := fhttp.NewRequestWithContext(ctx, "GET", targetURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		for k, v := range grok.DynamicHeaders(remotePath) {
			req.Header.Set(k, v)
		}
		req.Header.Set("accept", "video/mp4,video/*;q=0.9,*/*;q=0.8")
		req.Header.Set("cookie", authToken)

		resp, err := s.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("asset status %d", resp.StatusCode)
		}
		if resp.StatusCode != 200 {
			return nil, backoff.Permanent(fmt.Errorf("asset status %d", resp.StatusCode))
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxBytes+1))
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > s.cfg.MaxBytes {
			return nil, backoff.Permanent(fmt.Errorf("asset exceeds %d bytes", s.cfg.MaxBytes))
		}
		return data, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(3))
}

// flattenName maps a remote path to a single file name: the leading
// separator is stripped and the rest become dashes, matching the /images/
// URL rewrite on the client side.
func flattenName(remotePath string) string {
	return strings.ReplaceAll(strings.TrimPrefix(remotePath, "/"), "/", "-")
}

// writeAtomic writes via a temp file and rename so a crashed download never
// leaves a truncated asset behind.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
