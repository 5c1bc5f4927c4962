package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"zapgate/internal/config"
)

// NewRouter wires middleware and routes. Everything except /health sits
// behind the API key.
func NewRouter(cfg config.Config, srv *Server, log zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(log))

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-API-Key"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if cfg.CORSOrigins == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = strings.Split(cfg.CORSOrigins, ",")
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", srv.Health)

	auth := r.Group("/", APIKey(cfg.APIKey, log))
	auth.GET("/status", srv.Status)
	auth.GET("/qr", srv.QR)
	auth.POST("/connect", srv.Connect)
	auth.POST("/disconnect", srv.Disconnect)
	auth.POST("/send", srv.Send)
	auth.POST("/send-batch", srv.SendBatch)

	return r
}
