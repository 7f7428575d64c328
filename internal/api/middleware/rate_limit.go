package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/open-apime/fleet/internal/pkg/ratelimiter"
)

// RateLimitOption parametriza o limite por token da API de operação.
type RateLimitOption struct {
	Enabled  bool
	Requests int
	Window   time.Duration
	Prefix   string
	Limiter  ratelimiter.Limiter
	Logger   *zap.Logger
}

// IPRateLimitOption parametriza o limite por IP do ingress do provider.
type IPRateLimitOption struct {
	Enabled        bool
	Requests       int
	Window         time.Duration
	Limiter        ratelimiter.Limiter
	Logger         *zap.Logger
	SkipPrivateIPs bool
}

// RateLimit conta requisições por token bearer. Requisições sem token passam
// direto para o middleware de autenticação recusar.
func RateLimit(opts RateLimitOption) gin.HandlerFunc {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "ratelimit:api"
	}
	return limitBy(opts.Enabled, opts.Limiter, opts.Requests, opts.Window, opts.Logger, func(c *gin.Context) string {
		token := extractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			return ""
		}
		return prefix + ":" + digest(token)
	})
}

func IPRateLimit(opts IPRateLimitOption) gin.HandlerFunc {
	return limitBy(opts.Enabled, opts.Limiter, opts.Requests, opts.Window, opts.Logger, func(c *gin.Context) string {
		ip := GetClientIP(c)
		if opts.SkipPrivateIPs && IsPrivateIP(ip) {
			return ""
		}
		return "ratelimit:ip:" + digest(ip)
	})
}

// limitBy aplica o limiter à chave devolvida por key; chave vazia isenta a
// requisição. Erro do limiter libera a requisição.
func limitBy(enabled bool, limiter ratelimiter.Limiter, requests int, window time.Duration, log *zap.Logger, key func(*gin.Context) string) gin.HandlerFunc {
	if !enabled || limiter == nil || requests <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if log == nil {
		log = zap.NewNop()
	}
	limit := strconv.Itoa(requests)

	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			c.Next()
			return
		}

		res, err := limiter.Allow(c.Request.Context(), k, requests, window)
		if err != nil {
			log.Warn("rate limit: erro ao consultar limiter", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
			log.Debug("rate limit: limite excedido", zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "limite de requisições excedido",
			})
			return
		}
		c.Next()
	}
}

func extractBearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
