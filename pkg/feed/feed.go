// Package feed synchronizes signature bundles from a file or HTTP feed into a
// local cache directory.
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/webscope/pkg/signature"
)

const (
	// BundleName is the base name of the cached bundle; the extension follows
	// its format.
	BundleName = "feed"

	lockName  = ".feed.lock"
	lockRetry = 50 * time.Millisecond
)

// ErrNotConfigured is returned when a Service lacks a source or a store.
var ErrNotConfigured = errors.New("feed is not configured")

// Bundle is the raw content of a feed with its encoding.
type Bundle struct {
	Origin string
	Format signature.Format
	Data   []byte
}

// Source loads a raw signature bundle.
type Source interface {
	Load(ctx context.Context) (Bundle, error)
}

// Store persists a validated bundle.
type Store interface {
	Save(ctx context.Context, b Bundle) error
}

// Service orchestrates feed synchronization.
type Service struct {
	Source Source
	Store  Store
}

// Sync fetches the bundle from Source, validates it strictly and writes it
// using Store. The validated registry is returned so callers can report on it.
// Nothing is written when validation fails.
func (s Service) Sync(ctx context.Context) (*signature.Registry, error) {
	if s.Source == nil {
		return nil, fmt.Errorf("%w: source is missing", ErrNotConfigured)
	}
	if s.Store == nil {
		return nil, fmt.Errorf("%w: store is missing", ErrNotConfigured)
	}

	b, err := s.Source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load feed: %w", err)
	}
	if b.Format == "" {
		b.Format = sniffFormat(b.Data)
	}

	reg, err := signature.Load(signature.SplitBundle(b.Origin, b.Format, b.Data), signature.WithStrict())
	if err != nil {
		return nil, fmt.Errorf("validate feed: %w", err)
	}

	if err := s.Store.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("save feed: %w", err)
	}

	log.Info().
		Str("component", "feed").
		Str("origin", b.Origin).
		Int("signatures", reg.Len()).
		Msg("signature feed synchronized")
	return reg, nil
}

// FileSource loads a bundle from a local file path.
type FileSource struct {
	Path string
}

func (f FileSource) Load(_ context.Context) (Bundle, error) {
	if f.Path == "" {
		return Bundle{}, errors.New("file path is empty")
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Bundle{}, err
	}
	format, _ := signature.FormatFromPath(f.Path)
	return Bundle{Origin: f.Path, Format: format, Data: data}, nil
}

// HTTPSource downloads a bundle from a URL using Client, or a client with a
// 30 second timeout.
type HTTPSource struct {
	URL          string
	Client       *http.Client
	MaxBodyBytes int64
}

func (h HTTPSource) Load(ctx context.Context) (Bundle, error) {
	if h.URL == "" {
		return Bundle{}, errors.New("url is empty")
	}
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return Bundle{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/yaml, application/json;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return Bundle{}, fmt.Errorf("fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Bundle{}, fmt.Errorf("unexpected status from feed source: %s", resp.Status)
	}

	var body io.Reader = resp.Body
	if h.MaxBodyBytes > 0 {
		body = io.LimitReader(resp.Body, h.MaxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return Bundle{}, fmt.Errorf("read feed body: %w", err)
	}

	b := Bundle{Origin: h.URL, Data: data}
	if format, ok := signature.FormatFromPath(req.URL.Path); ok {
		b.Format = format
	}
	return b, nil
}

// FileStore writes bundles into Dir, holding an exclusive file lock while the
// bundle is replaced.
type FileStore struct {
	Dir string
}

func (f FileStore) Save(ctx context.Context, b Bundle) error {
	if f.Dir == "" {
		return errors.New("file store directory is empty")
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("create feed directory: %w", err)
	}

	lock := flock.New(filepath.Join(f.Dir, lockName))
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("lock feed directory: %w", err)
	}
	if !locked {
		return errors.New("lock feed directory: not acquired")
	}
	defer func() { _ = lock.Unlock() }()

	format := b.Format
	if format == "" {
		format = sniffFormat(b.Data)
	}

	tmp, err := os.CreateTemp(f.Dir, BundleName+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp bundle: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(b.Data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp bundle: %w", err)
	}

	dest := bundlePath(f.Dir, format)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("replace bundle: %w", err)
	}

	// A previous sync may have stored the other encoding.
	for _, other := range []signature.Format{signature.FormatYAML, signature.FormatJSON} {
		if other != format {
			_ = os.Remove(bundlePath(f.Dir, other))
		}
	}
	return nil
}

// CachedSources reads the bundle previously stored in dir. A directory without
// a bundle yields no sources and no error.
func CachedSources(dir string) ([]signature.Source, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	lock := flock.New(filepath.Join(dir, lockName))
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock feed directory: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	for _, format := range []signature.Format{signature.FormatYAML, signature.FormatJSON} {
		p := bundlePath(dir, format)
		data, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read cached feed: %w", err)
		}
		return signature.SplitBundle(p, format, data), nil
	}
	return nil, nil
}

func bundlePath(dir string, format signature.Format) string {
	return filepath.Join(dir, BundleName+"."+string(format))
}

// sniffFormat treats documents opening with a JSON object or array as JSON.
func sniffFormat(data []byte) signature.Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return signature.FormatJSON
	}
	return signature.FormatYAML
}
