// Package imageref turns the image references stored on samples into bytes.
//
// Supported forms: http(s) URLs, data: URLs, gs://bucket/object (when a
// storage client is configured) and any scheme with a registered Resolver.
package imageref

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"parascope/api/internal/util"

	"cloud.google.com/go/storage"
	"github.com/go-resty/resty/v2"
)

var (
	ErrUnsupported = errors.New("unsupported image reference")
	ErrTooLarge    = errors.New("image exceeds size limit")
)

// Resolver maps the part after "scheme://" to a downloadable URL. The
// Telegram bot registers one for tgfile:// so its token never ends up in the
// database.
type Resolver func(ctx context.Context, rest string) (string, error)

type Fetcher struct {
	http     *resty.Client
	gcs      *storage.Client
	maxBytes int64

	mu        sync.RWMutex
	resolvers map[string]Resolver
}

type Option func(*Fetcher)

func WithGCS(cl *storage.Client) Option { return func(f *Fetcher) { f.gcs = cl } }

func WithHTTPClient(c *resty.Client) Option { return func(f *Fetcher) { f.http = c } }

func New(maxBytes int64, opts ...Option) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	f := &Fetcher{
		http: resty.New().
			SetTimeout(60*time.Second).
			SetHeader("Accept", "image/*"),
		maxBytes:  maxBytes,
		resolvers: map[string]Resolver{},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *Fetcher) Register(scheme string, r Resolver) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolvers[strings.ToLower(scheme)] = r
}

// Validate reports whether ref has a form this fetcher can load, without
// fetching anything.
func (f *Fetcher) Validate(ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return fmt.Errorf("%w: empty", ErrUnsupported)
	}
	if strings.HasPrefix(ref, "data:") {
		if !strings.Contains(ref, ",") {
			return fmt.Errorf("%w: data url without payload", ErrUnsupported)
		}
		return nil
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("%w: %q", ErrUnsupported, ref)
	}
	switch s := strings.ToLower(u.Scheme); s {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("%w: missing host", ErrUnsupported)
		}
		return nil
	case "gs":
		if f.gcs == nil {
			return fmt.Errorf("%w: gs:// storage is not configured", ErrUnsupported)
		}
		if u.Host == "" || strings.Trim(u.Path, "/") == "" {
			return fmt.Errorf("%w: want gs://bucket/object", ErrUnsupported)
		}
		return nil
	default:
		f.mu.RLock()
		_, ok := f.resolvers[s]
		f.mu.RUnlock()
		if !ok {
			return fmt.Errorf("%w: scheme %q", ErrUnsupported, s)
		}
		return nil
	}
}

// Fetch returns the image bytes and the best known MIME type.
func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	ref = strings.TrimSpace(ref)
	if err := f.Validate(ref); err != nil {
		return nil, "", err
	}
	if strings.HasPrefix(ref, "data:") {
		b, hint, err := util.DecodeBase64MaybeDataURL(ref)
		if err != nil {
			return nil, "", err
		}
		if int64(len(b)) > f.maxBytes {
			return nil, "", ErrTooLarge
		}
		return b, util.PickMIME("", hint, b), nil
	}

	u, _ := url.Parse(ref)
	switch s := strings.ToLower(u.Scheme); s {
	case "http", "https":
		return f.fetchHTTP(ctx, ref)
	case "gs":
		return f.fetchGCS(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		f.mu.RLock()
		r := f.resolvers[s]
		f.mu.RUnlock()
		rest := strings.TrimPrefix(ref, u.Scheme+"://")
		direct, err := r(ctx, rest)
		if err != nil {
			return nil, "", fmt.Errorf("resolve %s: %w", s, err)
		}
		return f.fetchHTTP(ctx, direct)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, link string) ([]byte, string, error) {
	resp, err := f.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(link)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.IsError() {
		return nil, "", fmt.Errorf("download: http %d", resp.StatusCode())
	}
	b, err := f.readLimited(body)
	if err != nil {
		return nil, "", err
	}
	ct := resp.Header().Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	if !strings.HasPrefix(ct, "image/") {
		ct = ""
	}
	return b, util.PickMIME(ct, "", b), nil
}

func (f *Fetcher) fetchGCS(ctx context.Context, bucket, object string) ([]byte, string, error) {
	r, err := f.gcs.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("gcs open %s/%s: %w", bucket, object, err)
	}
	defer r.Close()
	b, err := f.readLimited(r)
	if err != nil {
		return nil, "", err
	}
	return b, util.PickMIME(r.Attrs.ContentType, "", b), nil
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(b)) > f.maxBytes {
		return nil, ErrTooLarge
	}
	if len(b) == 0 {
		return nil, errors.New("empty image")
	}
	return b, nil
}
