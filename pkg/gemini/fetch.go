package gemini

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxImageBytes bounds a single downloaded photo.
const DefaultMaxImageBytes = 20 << 20

// Fetcher downloads photo URLs so they can be sent inline.
type Fetcher struct {
	http     *http.Client
	maxBytes int64
}

// NewFetcher returns a Fetcher. A nil client uses a 30s-timeout default.
func NewFetcher(hc *http.Client, maxBytes int64) *Fetcher {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &Fetcher{http: hc, maxBytes: maxBytes}
}

// Fetch downloads one image and sniffs its MIME type when the server does
// not send an image content type.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Image{}, eris.Wrapf(err, "gemini: build image request %s", url)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return Image{}, eris.Wrapf(err, "gemini: fetch image %s", url)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return Image{}, eris.Errorf("gemini: fetch image %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return Image{}, eris.Wrapf(err, "gemini: read image %s", url)
	}
	if int64(len(data)) > f.maxBytes {
		return Image{}, eris.Errorf("gemini: image %s exceeds %d bytes", url, f.maxBytes)
	}

	mime := resp.Header.Get("Content-Type")
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.TrimSpace(mime)
	if !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	return Image{MIMEType: mime, Data: data}, nil
}

// FetchAll downloads urls concurrently, preserving order.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) ([]Image, error) {
	out := make([]Image, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, u := range urls {
		g.Go(func() error {
			img, err := f.Fetch(gctx, u)
			if err != nil {
				return err
			}
			out[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
