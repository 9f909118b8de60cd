package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/videotube-api/api/swagger"
	"github.com/noah-isme/videotube-api/internal/middleware"
	"github.com/noah-isme/videotube-api/internal/service"
	"github.com/noah-isme/videotube-api/pkg/config"
	"github.com/noah-isme/videotube-api/pkg/logger"
	"github.com/noah-isme/videotube-api/pkg/middleware/requestid"
)

// RouterDeps groups everything NewRouter mounts.
type RouterDeps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *service.MetricsService
	Gate    gin.HandlerFunc
	Auth    *AuthHandler
	Users   *UserHandler
	Ops     *MetricsHandler
}

// NewRouter builds the gin engine with the account routes under the API prefix.
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestid.Middleware())
	if deps.Logger != nil {
		r.Use(logger.GinMiddleware(deps.Logger))
	}
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", deps.Ops.Health)
	r.GET("/ready", deps.Ops.Ready)
	if deps.Config.Metrics.Enabled {
		r.GET("/metrics", deps.Ops.Prometheus)
	}
	if deps.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	users := r.Group(strings.TrimRight(deps.Config.APIPrefix, "/") + "/users")
	users.POST("/register", deps.Users.Register)
	users.POST("/login", deps.Auth.Login)
	users.POST("/refresh-token", deps.Auth.Refresh)

	secured := users.Group("")
	secured.Use(deps.Gate)
	secured.POST("/logout", deps.Auth.Logout)
	secured.POST("/change-password", deps.Users.ChangePassword)
	secured.GET("/current-user", deps.Users.CurrentUser)

	return r
}
