// Package fetch retrieves original image bytes for the optimizer.  It lives
// outside the core: conversions only ever see the bytes it returns.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/die-net/lrucache"
	"github.com/gregjones/httpcache"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/Skryldev/image-optimizer/config"
	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
	"github.com/Skryldev/image-optimizer/utils"
)

// Object is a fetched original.
type Object struct {
	Name        string
	ContentType string
	Data        []byte
}

// Source wraps the object for core.Processor.
func (o *Object) Source() core.Source {
	return core.Source{
		Reader:      bytes.NewReader(o.Data),
		ContentType: o.ContentType,
		Name:        o.Name,
		Size:        int64(len(o.Data)),
	}
}

// Fetcher resolves a locator to image bytes.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (*Object, error)
}

// ── HTTP ──────────────────────────────────────────────────────────────────────

// HTTP fetches over HTTP(S) through an in-memory caching transport, with an
// optional request rate limit and a per-request timeout.
type HTTP struct {
	client    *http.Client
	limiter   *rate.Limiter
	maxBytes  int64
	userAgent string
}

// NewHTTP returns an HTTP fetcher configured from cfg.
func NewHTTP(cfg config.FetchConfig) *HTTP {
	var transport http.RoundTripper = http.DefaultTransport
	if cfg.CacheBytes > 0 {
		transport = httpcache.NewTransport(lrucache.New(cfg.CacheBytes, int64(cfg.CacheTTL/time.Second)))
	}
	h := &HTTP{
		client:    &http.Client{Transport: transport, Timeout: cfg.Timeout},
		maxBytes:  cfg.MaxBytes,
		userAgent: cfg.UserAgent,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return h
}

func (h *HTTP) Fetch(ctx context.Context, locator string) (*Object, error) {
	const op = "fetch.http"
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryFetch, op, errors.Wrap(err, "rate limit"))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryFetch, op, errors.Wrap(err, "build request"))
	}
	req.Header.Set("Accept", "image/webp,image/png,image/jpeg,image/*;q=0.8")
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, apperrors.Transient(apperrors.CategoryFetch, op, errors.Wrapf(err, "GET %s", locator))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		err := errors.Errorf("GET %s: unexpected status %s", locator, resp.Status)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, apperrors.Transient(apperrors.CategoryFetch, op, err)
		}
		return nil, apperrors.New(apperrors.CategoryFetch, op, err)
	}

	data, err := utils.ReadAll(ctx, resp.Body, h.maxBytes, 0)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryFetch, op, errors.Wrapf(err, "read %s", locator))
	}
	return &Object{
		Name:        nameFromURL(req.URL),
		ContentType: mediaType(resp.Header.Get("Content-Type")),
		Data:        data,
	}, nil
}

// ── File ──────────────────────────────────────────────────────────────────────

// File reads originals from the local filesystem.
type File struct {
	MaxBytes int64
}

func (f *File) Fetch(ctx context.Context, locator string) (*Object, error) {
	const op = "fetch.file"
	p := strings.TrimPrefix(locator, "file://")
	fh, err := os.Open(p)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryFetch, op, errors.Wrapf(err, "open %s", p))
	}
	defer fh.Close()

	data, err := utils.ReadAll(ctx, fh, f.MaxBytes, 0)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryFetch, op, errors.Wrapf(err, "read %s", p))
	}
	return &Object{
		Name:        filepath.Base(p),
		ContentType: mime.TypeByExtension(filepath.Ext(p)),
		Data:        data,
	}, nil
}

// ── Auto ──────────────────────────────────────────────────────────────────────

// Auto dispatches http(s) locators to HTTP and everything else to File.
type Auto struct {
	HTTP *HTTP
	File *File
}

// New returns an Auto fetcher configured from cfg.
func New(cfg config.FetchConfig) *Auto {
	return &Auto{HTTP: NewHTTP(cfg), File: &File{MaxBytes: cfg.MaxBytes}}
}

func (a *Auto) Fetch(ctx context.Context, locator string) (*Object, error) {
	u, err := url.Parse(locator)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return a.HTTP.Fetch(ctx, locator)
	}
	if err == nil && u.Scheme != "" && u.Scheme != "file" && len(u.Scheme) > 1 {
		return nil, apperrors.New(apperrors.CategoryFetch, "fetch",
			fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	return a.File.Fetch(ctx, locator)
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nameFromURL(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return u.Host
	}
	return name
}

func mediaType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mt
}

var (
	_ Fetcher = (*HTTP)(nil)
	_ Fetcher = (*File)(nil)
	_ Fetcher = (*Auto)(nil)
)
