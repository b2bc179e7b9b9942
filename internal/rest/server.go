package rest

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/robalyx/rolesync/internal/rest/handler"
	"github.com/robalyx/rolesync/internal/rest/middleware/auth"
	"github.com/robalyx/rolesync/internal/rest/middleware/ratelimit"
	"github.com/robalyx/rolesync/internal/setup/config"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Dependencies are the services the admin API serves.
type Dependencies struct {
	Syncer   handler.Syncer
	Quota    handler.QuotaSource
	Workers  handler.WorkerLister
	Guilds   handler.GuildStore
	History  handler.HistoryReader
	Accounts handler.AccountStore
}

// Server implements the admin REST API.
type Server struct {
	handler     http.Handler
	rateLimiter *ratelimit.Middleware
}

// NewServer creates a new admin API server.
func NewServer(deps Dependencies, common *config.CommonConfig, logger *zap.Logger) *Server {
	logger = logger.Named("admin_api")

	syncHandler := handler.NewSyncHandler(
		deps.Syncer, deps.Quota, deps.Workers, common.API.TriggerEnabled(common), logger,
	)
	guildHandler := handler.NewGuildHandler(deps.Guilds, deps.History, logger)
	accountHandler := handler.NewAccountHandler(deps.Accounts, logger)

	authMiddleware := auth.New(common.API.AdminKey, common.IsProduction(), logger)
	rateLimiter := ratelimit.New(&common.API, logger)

	router := bunrouter.New()

	router.Use(
		rateLimiter.AsRESTMiddleware,
		authMiddleware.AsRESTMiddleware,
	).WithGroup("/v1", func(g *bunrouter.Group) {
		g.POST("/sync/trigger", syncHandler.Trigger)
		g.GET("/sync/status", syncHandler.Status)
		g.GET("/workers", syncHandler.Workers)

		g.GET("/guilds/:id", guildHandler.GetGuild)
		g.DELETE("/guilds/:id", guildHandler.DeleteGuild)
		g.PUT("/guilds/:id/roles", guildHandler.SetRoles)
		g.POST("/guilds/:id/repositories", guildHandler.FollowRepository)
		g.DELETE("/guilds/:id/repositories/:owner/:name", guildHandler.UnfollowRepository)
		g.GET("/guilds/:id/history", guildHandler.History)

		g.GET("/accounts", accountHandler.FindAccount)
		g.GET("/accounts/:userId", accountHandler.GetAccount)
		g.PUT("/accounts/:userId", accountHandler.LinkAccount)
		g.DELETE("/accounts/:userId", accountHandler.UnlinkAccount)
	})

	return &Server{
		handler:     gzhttp.GzipHandler(router),
		rateLimiter: rateLimiter,
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close releases middleware resources.
func (s *Server) Close() {
	s.rateLimiter.Close()
}
