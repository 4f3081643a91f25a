// Package api provides the gin HTTP surface: account signup and login,
// cookie sessions, reference data and health probes.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/rvoc"
	"github.com/xraph/rvoc/account"
	"github.com/xraph/rvoc/session"
	"github.com/xraph/rvoc/vocab"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Option configures the API.
type Option func(*API)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// API wires all HTTP handlers together.
type API struct {
	accounts *account.Service
	sessions *session.Manager
	vocab    vocab.Store
	pinger   Pinger
	config   rvoc.Config
	logger   *slog.Logger
	limiter  *clientLimiter
}

// New creates an API. The login limiter is sized from config.HTTP.
func New(accounts *account.Service, sessions *session.Manager, vocabulary vocab.Store, pinger Pinger, config rvoc.Config, opts ...Option) *API {
	a := &API{
		accounts: accounts,
		sessions: sessions,
		vocab:    vocabulary,
		pinger:   pinger,
		config:   config,
		logger:   slog.Default(),
		limiter:  newClientLimiter(config.HTTP.LoginRateLimit, config.HTTP.LoginRateBurst),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns a gin engine with every route registered.
func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(requestID(), accessLog(a.logger), gin.CustomRecovery(a.recovered))
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all routes into r.
func (a *API) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", a.healthz)
	r.GET("/readyz", a.readyz)

	limited := a.limiter.middleware()
	accounts := r.Group("/accounts")
	accounts.POST("", limited, a.signup)
	accounts.POST("/login", limited, a.login)
	accounts.POST("/logout", a.logout)
	accounts.GET("/me", a.requireSession, a.me)
	accounts.DELETE("/me", a.requireSession, a.deleteMe)

	r.GET("/languages", a.listLanguages)
	r.GET("/word-types", a.listWordTypes)
}

func (a *API) recovered(c *gin.Context, v any) {
	a.logger.Error("handler panic",
		slog.String("request_id", RequestIDFrom(c)),
		slog.Any("panic", v),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
