package server

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SwaggerHostUpdater updates the generated docs host at runtime.
// Pass a function that writes to docs.SwaggerInfo.Host.
type SwaggerHostUpdater func(host string)

// RegisterSwagger mounts the swagger UI. The host is resolved per request so
// the docs work behind a reverse proxy that sets X-Forwarded-Host.
func (a *App) RegisterSwagger(hostUpdater SwaggerHostUpdater) {
	a.ginEngine.GET("/swagger/*any", func(c *gin.Context) {
		host := c.GetHeader("X-Forwarded-Host")
		if host == "" {
			host = c.Request.Host
		}
		if hostUpdater != nil {
			hostUpdater(host)
		}

		handler := ginSwagger.WrapHandler(
			swaggerFiles.Handler,
			ginSwagger.DefaultModelsExpandDepth(-1),
		)
		handler(c)
	})

	a.logger.Info().
		Str("path", "/swagger/index.html").
		Msg("Swagger UI registered")
}
