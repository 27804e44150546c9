package http

import (
	"log/slog"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/users"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Deps struct {
	Users    *users.Store
	Prom     *observability.Prom
	Requests *observability.RequestMetrics
}

func NewRouter(log *slog.Logger, cfg config.Config, deps Deps) *gin.Engine {
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(middlewares.RequestLogger(log))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	if deps.Requests != nil {
		r.Use(deps.Requests.Middleware())
	}
	r.Use(middlewares.SecurityHeaders(log, cfg.IsDev()))
	r.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))

	// health
	h := handlers.NewHealthHandler(deps.Users.Ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Prom != nil {
		r.GET("/metrics", gin.WrapH(deps.Prom.Handler()))
	}

	usersHandler := handlers.NewUsersHandler(deps.Users, cfg.RequestTimeout)
	statusHandler := handlers.NewStatusHandler(deps.Users, deps.Requests, cfg.RequestTimeout)

	api := r.Group("/api")
	api.Use(middlewares.RequireJSON())

	api.GET("/status", statusHandler.Status)

	api.POST("/users", usersHandler.CreateUser)
	api.GET("/users", usersHandler.ListUsers)
	api.GET("/users/exists", usersHandler.EmailExists)
	api.POST("/users/exists", usersHandler.EmailExists)
	api.PUT("/users/:id", usersHandler.UpdateUser)
	api.DELETE("/users/:id", usersHandler.DeleteUser)

	return r
}
