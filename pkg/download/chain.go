// Package download resolves a remote video URL to a local file.
//
// Resolution tries a primary command-line downloader once and, when that
// fails, a set of interchangeable HTTP providers in randomized order. The
// chain fails only after every provider has failed, and the failure names
// each provider's individual error.
package download

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Provider is one HTTP-based fallback download service
type Provider struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// Primary is the first-choice downloader, tried exactly once per resolve
type Primary interface {
	Name() string
	Resolve(ctx context.Context, url, outputDir string) (string, error)
}

// Attempt records one failed provider attempt for the aggregated error
type Attempt struct {
	Provider string
	Err      error
}

// ExhaustedError is returned when the primary tool and every secondary
// provider have failed. It preserves every individual failure message.
type ExhaustedError struct {
	PrimaryName string
	PrimaryErr  error
	Attempts    []Attempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString("all download providers failed: ")
	fmt.Fprintf(&b, "%s: %v", e.PrimaryName, e.PrimaryErr)
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s: %v", a.Provider, a.Err)
	}
	return b.String()
}

// Chain resolves URLs through the primary downloader and fallback providers
type Chain struct {
	Primary   Primary
	Providers []Provider

	// Timeout bounds each secondary attempt (request + byte streaming)
	Timeout time.Duration

	// Pause between secondary attempts, a courtesy to shared instances
	Pause time.Duration

	// Rand drives the per-call provider shuffle. Tests pin it with a fixed
	// seed; a nil value shuffles with a time-derived seed.
	Rand *rand.Rand

	Client *http.Client
}

// NewChain creates a chain with the yt-dlp primary and the given providers
func NewChain(providers []Provider) *Chain {
	return &Chain{
		Primary:   NewYtDlp(),
		Providers: providers,
		Timeout:   60 * time.Second,
		Pause:     time.Second,
		Client:    http.DefaultClient,
	}
}

// Resolve downloads the video behind url into outputDir and returns the local
// file path. It fails only after the primary tool and every secondary
// provider have failed, with an *ExhaustedError naming each failure.
func (c *Chain) Resolve(ctx context.Context, url, outputDir string) (string, error) {
	path, primaryErr := c.Primary.Resolve(ctx, url, outputDir)
	if primaryErr == nil {
		return path, nil
	}

	exhausted := &ExhaustedError{
		PrimaryName: c.Primary.Name(),
		PrimaryErr:  primaryErr,
	}

	for i, provider := range c.shuffled() {
		if i > 0 && c.Pause > 0 {
			select {
			case <-time.After(c.Pause):
			case <-ctx.Done():
				exhausted.Attempts = append(exhausted.Attempts, Attempt{provider.Name, ctx.Err()})
				return "", exhausted
			}
		}

		path, err := c.tryProvider(ctx, provider, url, outputDir)
		if err == nil {
			return path, nil
		}
		exhausted.Attempts = append(exhausted.Attempts, Attempt{provider.Name, err})
	}

	return "", exhausted
}

// shuffled returns one random permutation of the providers. The providers are
// functionally interchangeable; randomizing the order spreads load instead of
// always hammering the first configured instance.
func (c *Chain) shuffled() []Provider {
	rng := c.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	providers := append([]Provider(nil), c.Providers...)
	rng.Shuffle(len(providers), func(i, j int) {
		providers[i], providers[j] = providers[j], providers[i]
	})
	return providers
}

// providerResponse covers the two response shapes the providers emit: a
// direct media url, or a picker list whose first entry is used
type providerResponse struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Picker   []struct {
		URL string `json:"url"`
	} `json:"picker"`
}

func (c *Chain) tryProvider(parent context.Context, provider Provider, url, outputDir string) (string, error) {
	ctx := parent
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, c.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(map[string]string{
		"url":           url,
		"videoQuality":  "1080",
		"downloadMode":  "auto",
		"filenameStyle": "basic",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var parsed providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode provider response: %w", err)
	}

	mediaURL := parsed.URL
	if mediaURL == "" && len(parsed.Picker) > 0 {
		mediaURL = parsed.Picker[0].URL
	}
	if mediaURL == "" {
		return "", fmt.Errorf("provider response carried no media url")
	}

	filename := coerceFilename(parsed.Filename, mediaURL)
	return c.stream(ctx, mediaURL, filepath.Join(outputDir, filename))
}

// stream downloads the media bytes to path
func (c *Chain) stream(ctx context.Context, mediaURL, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media fetch returned status %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to stream media: %w", err)
	}

	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func (c *Chain) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

// coerceFilename picks the provider's suggested filename, falls back to the
// media URL's basename, and forces an .mp4 extension when none is present.
// Providers are untrusted input; the name is reduced to its base component so
// a suggestion carrying separators cannot escape the output directory.
func coerceFilename(suggested, mediaURL string) string {
	name := suggested
	if name == "" {
		name = filepath.Base(strings.SplitN(mediaURL, "?", 2)[0])
	}
	name = filepath.Base(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		name = "video"
	}
	if filepath.Ext(name) == "" {
		name += ".mp4"
	}
	return name
}
