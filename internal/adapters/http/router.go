package http

import (
	"context"

	"github.com/dkeye/whep-player/internal/adapters/signal"
	"github.com/dkeye/whep-player/internal/app/orch"
	"github.com/dkeye/whep-player/internal/app/posts"
	"github.com/dkeye/whep-player/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	clientTokenCookie = "ct"
	clientTokenKey    = "client_token"
	sessionName       = "WhepPlayerSessions"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(clientTokenCookie)
		if token == "" {
			token = genClientToken()
			c.SetCookie(clientTokenCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

// SetupRouter wires the player control API and the posts listing. ctx
// bounds the lifetime of status websockets.
func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, catalog *posts.Catalog) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Int("posts", catalog.Len()).Msg("router setup")

	players := &playerHandlers{
		orch:   o,
		events: signal.NewStatusWSController(o, cfg.ReadLimit, cfg.PingPeriod),
		ctx:    ctx,
	}
	postsAPI := &postHandlers{catalog: catalog}

	api := r.Group("/api")

	api.GET("/players", players.list)
	api.POST("/players", players.attach)
	api.GET("/players/:id", players.get)
	api.DELETE("/players/:id", players.detach)
	api.POST("/players/:id/interact", players.interact)
	api.PUT("/players/:id/volume", players.volume)
	api.GET("/players/:id/events", players.streamEvents)

	api.GET("/posts", postsAPI.next)
	api.GET("/posts/page/:n", postsAPI.page)
	api.GET("/posts/search", postsAPI.search)

	return r
}
