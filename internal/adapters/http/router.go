package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Podium/internal/adapters/signal"
	"github.com/dkeye/Podium/internal/app/orch"
	"github.com/dkeye/Podium/internal/config"
	"github.com/dkeye/Podium/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	clientTokenCookie = "ct"
	sessionName       = "PodiumSessions"
	displayNameKey    = "display_name"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(clientTokenCookie)
		if token == "" {
			token = genClientToken()
			c.SetCookie(clientTokenCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type identityDTO struct {
	ViewerID    string `json:"viewerId"`
	DisplayName string `json:"displayName"`
}

// getIdentity suggests the identity a browser should join with. The viewer id
// is the client token, so reconnects from the same browser keep presence.
func getIdentity(c *gin.Context) {
	sess := sessions.Default(c)
	name, _ := sess.Get(displayNameKey).(string)
	c.JSON(http.StatusOK, identityDTO{ViewerID: c.GetString("client_token"), DisplayName: name})
}

func putIdentity(c *gin.Context) {
	var body identityDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	ident, err := domain.NewIdentity(c.GetString("client_token"), body.DisplayName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := sessions.Default(c)
	sess.Set(displayNameKey, ident.DisplayName)
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, identityDTO{ViewerID: string(ident.ViewerID), DisplayName: ident.DisplayName})
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ctrl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": o.Registry.Count()})
	})

	api := r.Group("/api")

	api.GET("/identity", getIdentity)
	api.PUT("/identity", putIdentity)

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": o.Rooms.List(c.Request.Context())})
	})

	api.GET("/rooms/:code", func(c *gin.Context) {
		code, err := domain.ParseRoomCode(c.Param("code"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		room, ok := o.Rooms.Get(code)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrRoomNotFound.Error()})
			return
		}
		info, err := room.Snapshot(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrRoomNotFound.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	})

	api.GET("/ws", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
