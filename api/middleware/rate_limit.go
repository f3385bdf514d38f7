package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/edulink-id/studyfair-backend/api/responses"
	pkgerrors "github.com/edulink-id/studyfair-backend/pkg/errors"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// PaymentRateLimitPolicy defines the throttling parameters for a traffic surface.
type PaymentRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	orderLimit int
}

// NewPaymentRateLimitPolicy builds a policy with the supplied window and limits.
func NewPaymentRateLimitPolicy(name string, window time.Duration, ipLimit, orderLimit int) PaymentRateLimitPolicy {
	return PaymentRateLimitPolicy{
		name:       strings.ToLower(strings.TrimSpace(name)),
		window:     window,
		ipLimit:    ipLimit,
		orderLimit: orderLimit,
	}
}

func (p PaymentRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.orderLimit > 0)
}

func (p PaymentRateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "payments"
	}
	return p.name
}

func (p PaymentRateLimitPolicy) ipKey(ip string) string {
	if ip == "" {
		return ""
	}
	return fmt.Sprintf("rl:ip:%s:%s", p.normalizedName(), ip)
}

func (p PaymentRateLimitPolicy) orderKey(orderID string) string {
	if orderID == "" {
		return ""
	}
	return fmt.Sprintf("rl:order:%s:%s", p.normalizedName(), orderID)
}

// PaymentRateLimit enforces per-IP and per-order counters for payment endpoints.
func PaymentRateLimit(policy PaymentRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := clientIP(r)
			if policy.ipLimit > 0 {
				if key := policy.ipKey(ip); key != "" {
					if allowed, count, err := allow(ctx, store, key, policy.window, int64(policy.ipLimit)); err != nil {
						responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
						return
					} else if !allowed {
						respondRateLimited(ctx, logg, w, policy, "ip", ip, "", count, policy.ipLimit)
						return
					}
				}
			}

			if policy.orderLimit > 0 {
				orderID, err := extractOrderID(w, r)
				if err != nil {
					if pkgerrors.As(err) == nil {
						err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request")
					}
					responses.WriteError(ctx, nil, w, err)
					return
				}
				if orderID != "" {
					if key := policy.orderKey(orderID); key != "" {
						if allowed, count, err := allow(ctx, store, key, policy.window, int64(policy.orderLimit)); err != nil {
							responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
							return
						} else if !allowed {
							respondRateLimited(ctx, logg, w, policy, "order", "", orderID, count, policy.orderLimit)
							return
						}
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func allow(ctx context.Context, store rateLimiterStore, key string, window time.Duration, limit int64) (bool, int64, error) {
	count, err := store.IncrWithTTL(ctx, key, window)
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy PaymentRateLimitPolicy, scope, ip, orderID string, count int64, limit int) {
	if logg != nil {
		fields := map[string]any{
			"scope":          scope,
			"policy":         policy.normalizedName(),
			"attempts":       count,
			"limit":          limit,
			"window_seconds": int(policy.window.Seconds()),
		}
		if ip != "" {
			fields["ip"] = ip
		}
		if orderID != "" {
			fields["order_id"] = orderID
		}
		logCtx := logg.WithFields(ctx, fields)
		logg.Warn(logCtx, "payments.rate_limit.blocked")
	}
	err := pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded")
	responses.WriteError(ctx, nil, w, err)
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// maxOrderIDBodyBytes bounds how much of a request body the limiter will
// buffer while sniffing for an order id.
const maxOrderIDBodyBytes = 1 << 20

// extractOrderID reads the order id from the query string or from a JSON body,
// restoring the body for downstream handlers.
func extractOrderID(w http.ResponseWriter, r *http.Request) (string, error) {
	if orderID := strings.TrimSpace(r.URL.Query().Get("order_id")); orderID != "" {
		return orderID, nil
	}
	if r.Body == nil {
		return "", nil
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOrderIDBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "request body too large")
		}
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(payload))

	var body struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", nil
	}
	return strings.TrimSpace(body.OrderID), nil
}
