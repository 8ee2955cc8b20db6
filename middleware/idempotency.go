package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/cache"
)

// IdempotencyKeyHeader names the client-chosen replay key.
const IdempotencyKeyHeader = "Idempotency-Key"

const (
	maxIdempotencyKeyLen  = 255
	maxIdempotentBodySize = 1 << 20
)

// Idempotent makes h replayable per (tenant, endpoint, Idempotency-Key). The
// route must be guarded with RequireDB: the record is written in the request
// transaction, so a rolled-back request leaves nothing to replay. Requests
// without the header run normally.
//
// A stored response is replayed only to a request with the same fingerprint
// (method, path, body and authenticated subject). Reusing a key for a
// different request fails with IDEMPOTENCY_KEY_REUSED and h does not run.
// Never wrap endpoints whose responses carry credentials.
//
// Concurrent duplicates are serialised with a short lock; the loser gets
// LOCK_UNAVAILABLE and can retry once the winner answered.
func (p *Pipeline) Idempotent(endpoint string, h HandlerFunc) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
		if key == "" {
			return h(w, r)
		}
		if len(key) > maxIdempotencyKeyLen {
			return tenantauth.ValidationError("Idempotency-Key too long")
		}

		ctx := r.Context()
		tx, ok := TxFromContext(ctx)
		if !ok {
			return tenantauth.ErrInternal
		}
		fingerprint, err := requestFingerprint(r)
		if err != nil {
			return err
		}

		idem := p.engine.Idempotency()
		durable := cache.NewPGIdempotencyStore(tx)
		k := cache.IdemKey{Scope: tx.Scope(), Endpoint: endpoint, Key: key}

		if rec, err := idem.Lookup(ctx, durable, k); err != nil {
			return err
		} else if rec != nil {
			return p.replay(w, rec, fingerprint)
		}

		lockKey := cache.LockKey(tx.Scope(), "idem", k.EndpointHash()+":"+k.KeyHash())
		lock, err := p.engine.Locker().Acquire(ctx, lockKey, p.engine.Config().Idempotency.LockTTL)
		if err != nil {
			if errors.Is(err, cache.ErrLockUnavailable) {
				p.engine.Metrics().Inc(tenantauth.MetricLockContention)
				return tenantauth.ErrLockUnavailable
			}
			return err
		}
		OnFinish(ctx, func(ctx context.Context) {
			if _, err := lock.Release(ctx); err != nil {
				p.logger.WarnContext(ctx, "tenantauth: idempotency lock release failed", "error", err)
			}
		})

		// the previous holder may have finished between lookup and acquire
		if rec, err := idem.Lookup(ctx, durable, k); err != nil {
			return err
		} else if rec != nil {
			return p.replay(w, rec, fingerprint)
		}

		capture := newBufferedWriter()
		if err := h(capture, r); err != nil {
			return err
		}

		if capture.Status() < http.StatusInternalServerError {
			rec, err := idem.Persist(ctx, durable, k, cache.Record{
				Status:      capture.Status(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        append([]byte(nil), capture.body.Bytes()...),
				RequestHash: fingerprint,
			})
			if err != nil {
				return err
			}
			AfterCommit(ctx, func(ctx context.Context) {
				if err := idem.Remember(ctx, k, rec); err != nil {
					p.logger.WarnContext(ctx, "tenantauth: idempotency fast path write failed", "error", err)
				}
			})
		}
		capture.flushTo(w)
		return nil
	}
}

func (p *Pipeline) replay(w http.ResponseWriter, rec *cache.Record, fingerprint string) error {
	if rec.RequestHash != fingerprint {
		return tenantauth.ErrIdempotencyKeyReused
	}
	p.engine.Metrics().Inc(tenantauth.MetricIdempotentReplay)
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
	return nil
}

// requestFingerprint hashes method, path, body and subject. The body is
// restored for the wrapped handler.
func requestFingerprint(r *http.Request) (string, error) {
	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBodySize+1))
		if err != nil {
			return "", tenantauth.ValidationError("unreadable request body")
		}
		if len(b) > maxIdempotentBodySize {
			return "", tenantauth.ValidationError("request body too large")
		}
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(b))
		body = b
	}
	subject := ""
	if claims, ok := tenantauth.ClaimsFromContext(r.Context()); ok {
		subject = claims.Subject
	}

	h := sha256.New()
	for _, part := range [][]byte{[]byte(r.Method), []byte(r.URL.Path), body, []byte(subject)} {
		_, _ = h.Write(part)
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
