package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(Metrics())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	users := r.Group("/api/v1/users")
	{
		users.POST("/register", RateLimitLogin(h.Redis, h.RateLimitPerMin), h.Register)
		users.POST("/google-signin", RateLimitLogin(h.Redis, h.RateLimitPerMin), h.GoogleSignIn)
		users.POST("/login", RateLimitLogin(h.Redis, h.RateLimitPerMin), h.Login)
		users.GET("/me", AuthJWT(h.JWTSecret), h.Me)
		users.PATCH("/update", AuthJWT(h.JWTSecret), h.UpdateUser)
		users.PATCH("/updatePassword", AuthJWT(h.JWTSecret), h.UpdatePassword)
	}

	features := r.Group("/api/v1/features", AuthJWT(h.JWTSecret))
	{
		features.POST("", h.CreateFeature)
		features.GET("", h.ListFeatures)
		features.GET("/search", h.SearchFeatures)
		features.GET("/:id", h.GetFeature)
		features.PATCH("/:id/like", h.ToggleLike)
		features.PUT("/:id/like", h.LikeFeature)
		features.DELETE("/:id/like", h.UnlikeFeature)
		features.PATCH("/:id/status", h.UpdateStatus)
		features.POST("/:id/comments", h.AddComment)
		features.DELETE("/:id/comments/:commentId", h.DeleteComment)
	}
	return r
}
