package respcache

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/stocktide/stocktide/internal/tenancy"
)

// KeyFunc derives the cache key for a request. ok=false bypasses the
// cache entirely.
type KeyFunc func(r *http.Request) (key string, ok bool)

// EligibleFunc decides whether a request may be served from cache at all.
type EligibleFunc func(r *http.Request) bool

// CacheableFunc decides whether a computed response may be stored.
type CacheableFunc func(status int) bool

// Middleware intercepts read responses and serves repeats from the
// store. It must be mounted after the tenancy middleware: the boundary
// decision always runs, hit or miss.
type Middleware struct {
	Store     Store
	TTL       time.Duration
	Key       KeyFunc
	Eligible  EligibleFunc
	Cacheable CacheableFunc
	Logger    *slog.Logger
}

// DefaultKey fingerprints the request by path, principal role, tenant
// scope and canonical query. Requests with no principal bypass the cache.
func DefaultKey(r *http.Request) (string, bool) {
	p := tenancy.PrincipalFromContext(r.Context())
	if p == nil {
		return "", false
	}
	return Key{
		Path:   r.URL.Path,
		Role:   string(p.Role),
		Tenant: p.TenantToken(),
		Query:  r.URL.Query(),
	}.String(), true
}

// DefaultEligible admits idempotent reads only.
func DefaultEligible(r *http.Request) bool {
	return r.Method == http.MethodGet || r.Method == http.MethodHead
}

// DefaultCacheable stores successful responses only.
func DefaultCacheable(status int) bool {
	return status == http.StatusOK
}

// cachedResponse is the stored envelope. The body may be any bytes; JSON
// encoding base64s it.
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Handler returns the caching middleware.
func (m Middleware) Handler(next http.Handler) http.Handler {
	keyFn := m.Key
	if keyFn == nil {
		keyFn = DefaultKey
	}
	eligible := m.Eligible
	if eligible == nil {
		eligible = DefaultEligible
	}
	cacheable := m.Cacheable
	if cacheable == nil {
		cacheable = DefaultCacheable
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Store == nil || !eligible(r) {
			next.ServeHTTP(w, r)
			return
		}
		key, ok := keyFn(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if payload, hit := m.Store.Get(r.Context(), key); hit {
			var cached cachedResponse
			if err := json.Unmarshal(payload, &cached); err == nil {
				w.Header().Set("Content-Type", cached.ContentType)
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(cached.Status)
				_, _ = w.Write(cached.Body)
				return
			}
			// Undecodable entry, drop it and recompute.
			m.Store.Delete(r.Context(), key)
		}

		w.Header().Set("X-Cache", "MISS")
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if !cacheable(rec.status) {
			return
		}
		payload, err := json.Marshal(cachedResponse{
			Status:      rec.status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("response cache encode", slog.Any("error", err))
			}
			return
		}
		m.Store.Set(r.Context(), key, payload, m.TTL)
	})
}

type responseRecorder struct {
	http.ResponseWriter
	status        int
	body          bytes.Buffer
	headerWritten bool
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.headerWritten {
		return
	}
	r.headerWritten = true
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if !r.headerWritten {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(data)
	return r.ResponseWriter.Write(data)
}
