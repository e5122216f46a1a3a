package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/yieldagg/internal/crypto"
	"github.com/alanyoungcy/yieldagg/internal/domain"
)

const maxBodyBytes = 1 << 20

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain sentinels onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorizedAccount):
		return http.StatusForbidden
	case errors.Is(err, crypto.ErrBadSignature):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidOwner),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrInvalidProtocol):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrCallFailed):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError logs err and answers with the mapped status. Server-side
// failures get a generic message; client errors echo the cause.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
		if status == http.StatusInternalServerError {
			writeError(w, status, op+" failed")
			return
		}
	} else {
		logger.DebugContext(r.Context(), "handler: "+op+" rejected", slog.String("error", err.Error()))
	}
	writeError(w, status, err.Error())
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	limit = min(limit, 500)

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{Limit: limit, Offset: offset}
}

// parseAddress accepts a 0x-prefixed hex address; invalid input is wrapped
// with kind so the caller gets a 400.
func parseAddress(s string, kind error) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", kind, s)
	}
	return common.HexToAddress(s), nil
}

// DefaultMaxOwners bounds the wallets one request may value when no limit
// is configured.
const DefaultMaxOwners = 20

// parseOwners reads every owner query parameter. Comma-separated lists are
// accepted; order and duplicates are kept. More than limit owners is an
// invalid request.
func parseOwners(r *http.Request, limit int) ([]common.Address, error) {
	if limit <= 0 {
		limit = DefaultMaxOwners
	}
	var owners []common.Address
	for _, v := range r.URL.Query()["owner"] {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			if len(owners) == limit {
				return nil, fmt.Errorf("%w: at most %d owners per request", domain.ErrInvalidOwner, limit)
			}
			addr, err := parseAddress(part, domain.ErrInvalidOwner)
			if err != nil {
				return nil, err
			}
			owners = append(owners, addr)
		}
	}
	if len(owners) == 0 {
		return nil, fmt.Errorf("%w: owner query parameter required", domain.ErrInvalidOwner)
	}
	return owners, nil
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
