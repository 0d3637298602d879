package download

import (
	"context"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/FranksOps/harvest/internal/metrics"
)

// Videos hands video URLs to an external yt-dlp binary.
type Videos struct {
	bin     string
	dir     string
	timeout time.Duration
	logger  *slog.Logger

	lookOnce sync.Once
	path     string
	missing  bool

	// command builds the process; replaced in tests.
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewVideos returns a downloader writing into dir. bin defaults to "yt-dlp".
func NewVideos(bin, dir string, timeout time.Duration, logger *slog.Logger) *Videos {
	if bin == "" {
		bin = "yt-dlp"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Videos{
		bin:     bin,
		dir:     dir,
		timeout: timeout,
		logger:  logger,
		command: exec.CommandContext,
	}
}

// Args returns the yt-dlp arguments used for rawURL.
func (v *Videos) Args(rawURL string) []string {
	return []string{
		"--no-playlist",
		"--quiet",
		"--no-progress",
		"-o", filepath.Join(v.dir, "%(title)s.%(ext)s"),
		rawURL,
	}
}

// Fetch downloads each URL in turn. When the binary cannot be found the
// whole call is skipped with a single warning per Videos.
func (v *Videos) Fetch(ctx context.Context, urls []string) {
	v.lookOnce.Do(func() {
		p, err := exec.LookPath(v.bin)
		if err != nil {
			v.missing = true
			v.logger.Warn("video downloader not available, skipping video downloads", "bin", v.bin, "err", err)
			return
		}
		v.path = p
	})
	if v.missing {
		return
	}

	for _, u := range urls {
		if ctx.Err() != nil {
			return
		}
		runCtx, cancel := context.WithTimeout(ctx, v.timeout)
		out, err := v.command(runCtx, v.path, v.Args(u)...).CombinedOutput()
		cancel()
		if err != nil {
			metrics.DownloadsTotal.WithLabelValues("video", "error").Inc()
			v.logger.Warn("video download failed", "url", u, "err", err, "output", string(out))
			continue
		}
		metrics.DownloadsTotal.WithLabelValues("video", "ok").Inc()
		v.logger.Debug("video downloaded", "url", u)
	}
}
