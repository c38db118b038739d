package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/greenline-backend/api/responses"
	"github.com/angelmondragon/greenline-backend/api/validators"
	pkgerrors "github.com/angelmondragon/greenline-backend/pkg/errors"
	"github.com/angelmondragon/greenline-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/greenline-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"

	defaultIdempotencyTTL = 24 * time.Hour
	inFlightMarker        = "in-flight"
	inFlightTTL           = time.Minute
	maxIdempotencyKeyLen  = 128
	persistTimeout        = 5 * time.Second
)

// IdempotencyPolicy configures one guard. Required guards reject requests
// without a key; optional guards only replay when a key is sent.
type IdempotencyPolicy struct {
	TTL      time.Duration
	Required bool
}

// storedResponse is the redis value for a completed request. Body is
// base64 in JSON.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

func (s storedResponse) writeTo(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

// Idempotency replays the first completed response for a (caller, method,
// path, key) tuple. The key holds an in-flight marker while the handler runs,
// so a concurrent duplicate gets IDEMPOTENCY_KEY_REUSED instead of a second
// order. 5xx responses release the key so the client can retry.
func Idempotency(policy IdempotencyPolicy, store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	if policy.TTL <= 0 {
		policy.TTL = defaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		g := idempotencyGuard{policy: policy, store: store, logg: logg}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.serve(w, r, next); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
			}
		})
	}
}

type idempotencyGuard struct {
	policy IdempotencyPolicy
	store  pkgredis.IdempotencyStore
	logg   *logger.Logger
}

// serve returns an error only when nothing has been written to w yet.
func (g idempotencyGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) error {
	ctx := r.Context()
	clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	switch {
	case clientKey == "" && g.policy.Required:
		return pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required")
	case clientKey == "":
		next.ServeHTTP(w, r)
		return nil
	case len(clientKey) > maxIdempotencyKeyLen:
		return pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long")
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validators.MaxBodyBytes))
	var sizeErr *http.MaxBytesError
	switch {
	case errors.As(err, &sizeErr):
		return pkgerrors.Newf(pkgerrors.CodeValidation, "request body exceeds %d bytes", sizeErr.Limit)
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])

	scope := strings.Join([]string{UserIDFromContext(ctx), r.Method, r.URL.Path}, "|")
	key := g.store.IdempotencyKey(scope, clientKey)

	reserved, err := g.store.SetNX(ctx, key, inFlightMarker, inFlightTTL)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
	}
	if !reserved {
		prior, err := g.lookup(ctx, key, hash)
		if err != nil {
			return err
		}
		prior.writeTo(w)
		return nil
	}

	rec := &statusRecorder{ResponseWriter: w, capture: &bytes.Buffer{}}
	next.ServeHTTP(rec, r)

	// The handler's side effects are committed even when the client has
	// gone away, so the outcome is recorded on a context that outlives it.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	g.commit(persistCtx, key, rec, hash)
	return nil
}

func (g idempotencyGuard) lookup(ctx context.Context, key, hash string) (storedResponse, error) {
	raw, err := g.store.Get(ctx, key)
	if err != nil && !errors.Is(err, redis.Nil) {
		return storedResponse{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	// An empty value means the reservation was released between SetNX and Get.
	if raw == "" || raw == inFlightMarker {
		return storedResponse{}, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is in progress")
	}
	var prior storedResponse
	if err := json.Unmarshal([]byte(raw), &prior); err != nil {
		return storedResponse{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	if prior.RequestHash != hash {
		return storedResponse{}, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
	}
	return prior, nil
}

func (g idempotencyGuard) commit(ctx context.Context, key string, rec *statusRecorder, hash string) {
	if rec.code() >= http.StatusInternalServerError {
		g.release(ctx, key)
		return
	}
	payload, err := json.Marshal(storedResponse{
		Status:      rec.code(),
		ContentType: rec.Header().Get("Content-Type"),
		Body:        rec.capture.Bytes(),
		RequestHash: hash,
	})
	if err == nil {
		err = g.store.Set(ctx, key, string(payload), g.policy.TTL)
	}
	if err != nil {
		g.logError(ctx, "idempotency.persist.failed", err)
		g.release(ctx, key)
	}
}

func (g idempotencyGuard) release(ctx context.Context, key string) {
	if err := g.store.Del(ctx, key); err != nil {
		g.logError(ctx, "idempotency.release.failed", err)
	}
}

func (g idempotencyGuard) logError(ctx context.Context, msg string, err error) {
	if g.logg != nil {
		g.logg.Error(ctx, msg, err)
	}
}
