package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/becoinapp/becoin-backend/api/responses"
	pkgerrors "github.com/becoinapp/becoin-backend/pkg/errors"
	"github.com/becoinapp/becoin-backend/pkg/logger"
	pkgredis "github.com/becoinapp/becoin-backend/pkg/redis"
)

const (
	mutationReplayTTL = 24 * time.Hour
	// Money-moving endpoints keep their replay window for a week.
	moneyReplayTTL = 7 * 24 * time.Hour
)

type pathMatch func(string) bool

type guardedRoute struct {
	method string
	match  pathMatch
	ttl    time.Duration
}

// guardedRoutes lists every endpoint that requires an Idempotency-Key.
// Matching runs on the raw URL path because this middleware sits ahead of
// chi's routing.
var guardedRoutes = []guardedRoute{
	{method: http.MethodPut, match: pathPrefix("/api/v1/cart"), ttl: mutationReplayTTL},
	{method: http.MethodPost, match: pathAround("/api/v1/orders/", "/preparing"), ttl: mutationReplayTTL},
	{method: http.MethodPost, match: pathAround("/api/v1/orders/", "/on-route"), ttl: mutationReplayTTL},

	{method: http.MethodPost, match: pathExact("/api/v1/checkout"), ttl: moneyReplayTTL},
	{method: http.MethodPost, match: pathAround("/api/v1/orders/", "/deliver"), ttl: moneyReplayTTL},
	{method: http.MethodPost, match: pathAround("/api/v1/orders/", "/cancel"), ttl: moneyReplayTTL},
	{method: http.MethodPost, match: pathExact("/api/v1/wallet/recharge"), ttl: moneyReplayTTL},
	{method: http.MethodPost, match: pathExact("/api/v1/wallet/withdraw"), ttl: moneyReplayTTL},
	{method: http.MethodPost, match: pathExact("/api/v1/wallet/transfer"), ttl: moneyReplayTTL},
}

// storedResponse is what gets replayed when a key is reused. BodyHash pins
// the key to the original request body so a reused key with a different
// payload is rejected instead of replayed.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body"`
	BodyHash    string `json:"body_hash"`
}

// Idempotency makes the guarded mutation endpoints safe to retry: the first
// response under a key is captured and replayed for every identical retry
// within the route's TTL.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, guarded := replayTTL(r)
			if !guarded || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			if key == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			bodyHash := digest(body)
			storeKey := store.IdempotencyKey(requestScope(r), key)

			raw, getErr := store.Get(r.Context(), storeKey)
			if getErr != nil && !errors.Is(getErr, redis.Nil) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, getErr, "check idempotency"))
				return
			}
			if raw != "" {
				replayStored(r.Context(), logg, w, raw, bodyHash)
				return
			}

			capture := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			persist(r.Context(), logg, store, storeKey, ttl, capture, bodyHash)
		})
	}
}

func replayStored(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, raw, bodyHash string) {
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if stored.BodyHash != bodyHash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.WriteHeader(stored.Status)
	if decoded, err := base64.StdEncoding.DecodeString(stored.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func persist(ctx context.Context, logg *logger.Logger, store pkgredis.IdempotencyStore, key string, ttl time.Duration, capture *captureWriter, bodyHash string) {
	stored := storedResponse{
		Status:      capture.statusOr(http.StatusOK),
		ContentType: capture.Header().Get("Content-Type"),
		Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
		BodyHash:    bodyHash,
	}

	payload, err := json.Marshal(stored)
	if err != nil {
		logFailure(ctx, logg, "marshal idempotency record", err)
		return
	}
	if _, err := store.SetNX(ctx, key, string(payload), ttl); err != nil {
		logFailure(ctx, logg, "persist idempotency record", err)
	}
}

// requestScope namespaces records per caller and endpoint so two users, or
// two routes, can never collide on the same key.
func requestScope(r *http.Request) string {
	return UserIDFromContext(r.Context()) + "|" + r.Method + "|" + r.URL.Path
}

func replayTTL(r *http.Request) (time.Duration, bool) {
	path := r.URL.Path
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" {
			path = pattern
		}
	}
	for _, route := range guardedRoutes {
		if route.method == r.Method && route.match(path) {
			return route.ttl, true
		}
	}
	return 0, false
}

func digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func pathExact(want string) pathMatch {
	return func(path string) bool { return path == want }
}

func pathPrefix(prefix string) pathMatch {
	return func(path string) bool { return strings.HasPrefix(path, prefix) }
}

func pathAround(prefix, suffix string) pathMatch {
	return func(path string) bool {
		return strings.HasPrefix(path, prefix) && strings.HasSuffix(path, suffix)
	}
}

type captureWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *captureWriter) statusOr(fallback int) int {
	if c.status == 0 {
		return fallback
	}
	return c.status
}

func logFailure(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
