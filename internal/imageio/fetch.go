package imageio

import (
	"fmt"
	"image"
	"net/http"
	"sync"
	"time"

	"github.com/yyyoichi/httpcache-go"
)

// throttle spaces requests at least interval apart.
type throttle struct {
	mu       sync.Mutex
	next     time.Time
	interval time.Duration
	doer     *http.Client
}

func (t *throttle) Do(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if wait := time.Until(t.next); wait > 0 {
		time.Sleep(wait)
	}
	defer func() { t.next = time.Now().Add(t.interval) }()
	return t.doer.Do(req)
}

// Fetcher downloads images through an on-disk HTTP cache.
type Fetcher struct {
	client httpcache.Client
}

// NewFetcher caches responses under cacheDir and waits at least interval
// between uncached requests.
func NewFetcher(cacheDir string, interval time.Duration) *Fetcher {
	return &Fetcher{client: httpcache.Client{
		Client:  &throttle{interval: interval, doer: http.DefaultClient},
		Cache:   httpcache.NewStorageCache(cacheDir),
		Handler: httpcache.NewDefaultHandler(),
	}}
}

// Fetch downloads and decodes the image at uri.
func (f *Fetcher) Fetch(uri string) (image.Image, error) {
	resp, err := f.client.Get(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %d", resp.StatusCode)
	}
	img, _, err := Decode(resp.Body)
	return img, err
}

// Open loads src from the network when it is a URL and from disk otherwise.
func (f *Fetcher) Open(src string) (image.Image, error) {
	if IsURL(src) {
		return f.Fetch(src)
	}
	return Load(src)
}
