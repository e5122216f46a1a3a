package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/yieldagg/internal/crypto"
	"github.com/alanyoungcy/yieldagg/internal/domain"
)

const (
	maxSignedBody = 1 << 20

	// defaultReplayTTL applies when timestamp skew checks are disabled.
	defaultReplayTTL = 10 * time.Minute
)

type callerKey struct{}

// WithCaller returns ctx carrying a verified caller address.
func WithCaller(ctx context.Context, caller common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the verified caller placed by SignatureAuth.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}

// SignatureAuth verifies the EIP-191 signature headers of admin requests and
// stores the recovered caller in the request context. It authenticates only;
// whether the caller may act is decided downstream. Timestamps further than
// maxSkew from now are rejected, and guard rejects a second use of the same
// signed request while its timestamp is still acceptable. A nil guard keeps
// seen requests in memory.
func SignatureAuth(maxSkew time.Duration, now func() time.Time, guard domain.ReplayGuard) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	if guard == nil {
		guard = NewMemoryReplayGuard(now)
	}
	replayTTL := 2 * maxSkew
	if replayTTL <= 0 {
		replayTTL = defaultReplayTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claimed := r.Header.Get(crypto.HeaderCaller)
			tsRaw := r.Header.Get(crypto.HeaderTimestamp)
			sig := r.Header.Get(crypto.HeaderSignature)
			if claimed == "" || tsRaw == "" || sig == "" {
				writeUnauthorized(w, "missing signature headers")
				return
			}
			if !common.IsHexAddress(claimed) {
				writeUnauthorized(w, "invalid caller address")
				return
			}
			ts, err := strconv.ParseInt(tsRaw, 10, 64)
			if err != nil {
				writeUnauthorized(w, "invalid timestamp")
				return
			}
			if skew := now().Sub(time.Unix(ts, 0)); maxSkew > 0 && (skew > maxSkew || skew < -maxSkew) {
				writeUnauthorized(w, "stale timestamp")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
			if err != nil {
				writeUnauthorized(w, "unreadable body")
				return
			}
			if len(body) > maxSignedBody {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				w.Write([]byte(`{"error":"request body too large"}`))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			caller := common.HexToAddress(claimed)
			target := r.URL.RequestURI()
			if err := crypto.VerifyRequest(caller, r.Method, target, ts, body, sig); err != nil {
				writeUnauthorized(w, "invalid signature")
				return
			}

			key := caller.Hex() + ":" + crypto.RequestDigest(r.Method, target, ts, body).Hex()
			fresh, err := guard.Claim(r.Context(), key, replayTTL)
			if err != nil {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"error":"replay check unavailable"}`))
				return
			}
			if !fresh {
				writeUnauthorized(w, "request already used")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
