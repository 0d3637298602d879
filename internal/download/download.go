// Package download saves the media and documents behind extracted URLs.
// Every operation is best-effort: failures are logged and counted, never
// returned to the extraction path.
package download

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/FranksOps/harvest/internal/extract"
	"github.com/FranksOps/harvest/internal/metrics"
	"github.com/FranksOps/harvest/pkg/httpclient"
)

// Subfolders of the download directory, one per downloadable kind.
const (
	ImagesDir    = "images"
	DocumentsDir = "documents"
	VideosDir    = "videos"
)

// Config configures a Manager.
type Config struct {
	Dir     string
	YTDLP   string
	Timeout time.Duration
	Client  *httpclient.Client
	Logger  *slog.Logger
}

// Manager routes extracted URLs to the file or video downloader by kind.
type Manager struct {
	files  *Files
	videos *Videos
	dir    string
}

// ensure Manager satisfies the extractor side-effect hook
var _ extract.Downloader = (*Manager)(nil)

// NewManager creates the download directory tree.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		cfg.Dir = "downloads"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Client == nil {
		c, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout})
		if err != nil {
			return nil, err
		}
		cfg.Client = c
	}

	for _, sub := range []string{ImagesDir, DocumentsDir, VideosDir} {
		if err := os.MkdirAll(filepath.Join(cfg.Dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("download: create %s: %w", sub, err)
		}
	}

	return &Manager{
		files: &Files{
			client:  cfg.Client,
			timeout: cfg.Timeout,
			logger:  cfg.Logger,
		},
		videos: NewVideos(cfg.YTDLP, filepath.Join(cfg.Dir, VideosDir), cfg.Timeout, cfg.Logger),
		dir:    cfg.Dir,
	}, nil
}

// Download implements extract.Downloader.
func (m *Manager) Download(ctx context.Context, kind extract.Kind, urls []string) {
	switch kind {
	case extract.Images:
		m.files.Fetch(ctx, filepath.Join(m.dir, ImagesDir), urls)
	case extract.Documents:
		m.files.Fetch(ctx, filepath.Join(m.dir, DocumentsDir), urls)
	case extract.Video:
		m.videos.Fetch(ctx, urls)
	}
}

// Files downloads plain resources over HTTP.
type Files struct {
	client  *httpclient.Client
	timeout time.Duration
	logger  *slog.Logger
}

// Fetch saves each URL into dir. A file that already exists is skipped.
func (f *Files) Fetch(ctx context.Context, dir string, urls []string) {
	for _, u := range urls {
		if ctx.Err() != nil {
			return
		}
		saved, err := f.fetchOne(ctx, dir, u)
		switch {
		case errors.Is(err, fs.ErrExist):
			f.logger.Debug("download skipped, file exists", "url", u)
		case err != nil:
			metrics.DownloadsTotal.WithLabelValues("file", "error").Inc()
			f.logger.Warn("download failed", "url", u, "err", err)
		default:
			metrics.DownloadsTotal.WithLabelValues("file", "ok").Inc()
			f.logger.Debug("downloaded", "url", u, "path", saved)
		}
	}
}

func (f *Files) fetchOne(ctx context.Context, dir, rawURL string) (string, error) {
	dest := filepath.Join(dir, FileName(rawURL))
	if _, err := os.Stat(dest); err == nil {
		return dest, fs.ErrExist
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := f.client.Download(ctx, rawURL, tmp); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	return dest, nil
}

// FileName derives a local file name from rawURL: a short hash of the
// whole URL followed by its last path segment, so equal names on other
// hosts or paths do not collide. URLs without a usable segment get the
// longer hash alone.
func FileName(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	var base string
	if u, err := url.Parse(rawURL); err == nil {
		base = path.Base(u.Path)
	}
	base = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, base)
	if base == "" || base == "." || base == "/" || base == "_" || base == ".." {
		return hex.EncodeToString(sum[:8])
	}
	return hex.EncodeToString(sum[:4]) + "-" + base
}
