package download

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// YtDlp runs yt-dlp through the Python interpreter as the primary downloader.
// On success the tool prints the resolved local file path as its last stdout
// line (--print filename with --no-simulate).
type YtDlp struct {
	Python string // interpreter binary, defaults to python3
	Format string // yt-dlp format selector
}

// NewYtDlp creates the default yt-dlp primary downloader
func NewYtDlp() *YtDlp {
	return &YtDlp{
		Python: "python3",
		Format: "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
	}
}

// Name identifies the tool in aggregated failure messages
func (y *YtDlp) Name() string {
	return "yt-dlp"
}

// Resolve downloads url into outputDir and returns the local file path
func (y *YtDlp) Resolve(ctx context.Context, url, outputDir string) (string, error) {
	template := filepath.Join(outputDir, "%(title)s.%(ext)s")
	args := []string{
		"-m", "yt_dlp",
		"-f", y.Format,
		"-o", template,
		"--print", "filename",
		"--no-simulate",
		"--user-agent", browserUA,
		url,
	}

	cmd := exec.CommandContext(ctx, y.Python, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return "", fmt.Errorf("yt-dlp failed: %s", diag)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	path := strings.TrimSpace(lines[len(lines)-1])
	if path == "" {
		return "", fmt.Errorf("yt-dlp printed no filename")
	}
	return path, nil
}
