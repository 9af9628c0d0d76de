// Package fetch reads environment files from the local disk or over HTTP(S),
// caching remote documents for the lifetime of a Fetcher.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vk/recipegrid/internal/ctxlog"
)

// DefaultCacheSize is the number of remote documents kept in memory.
const DefaultCacheSize = 128

// maxDocumentSize bounds the size of a remote environment file.
const maxDocumentSize = 8 << 20

// Fetcher resolves a location to its content.
type Fetcher struct {
	client *http.Client
	cache  *lru.Cache[string, []byte]
}

// New creates a Fetcher. A nil client uses a client with a 30s timeout.
func New(client *http.Client, cacheSize int) (*Fetcher, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("fetch: create cache: %w", err)
	}
	return &Fetcher{client: client, cache: cache}, nil
}

// IsRemote reports whether location is an http or https URL.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// Get returns the content of a local path or remote URL.
func (f *Fetcher) Get(ctx context.Context, location string) ([]byte, error) {
	if !IsRemote(location) {
		data, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", location, err)
		}
		return data, nil
	}

	if data, ok := f.cache.Get(location); ok {
		ctxlog.FromContext(ctx).Debug("Remote document served from cache.", "url", location)
		return data, nil
	}

	ctxlog.FromContext(ctx).Debug("Fetching remote document.", "url", location)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", location, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", location, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", location, err)
	}
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("fetch %s: document exceeds %d bytes", location, maxDocumentSize)
	}
	f.cache.Add(location, data)
	return data, nil
}

// Resolve interprets ref relative to the location of the document that
// referenced it. Absolute paths and URLs are returned unchanged.
func Resolve(base, ref string) (string, error) {
	if IsRemote(ref) {
		return ref, nil
	}
	if IsRemote(base) {
		b, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", base, err)
		}
		r, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", ref, err)
		}
		return b.ResolveReference(r).String(), nil
	}
	if filepath.IsAbs(ref) {
		return ref, nil
	}
	return filepath.Join(filepath.Dir(base), ref), nil
}
