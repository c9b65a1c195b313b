package api

import (
	"net/http"

	"generichttp/pkg/models"

	"github.com/gin-gonic/gin"
)

// RegisterDeviceRoutes creates the device and port routes.
func RegisterDeviceRoutes(g *gin.RouterGroup, reqCh chan<- models.Request) {
	r := g.Group("/devices")
	r.GET("", listDevicesHandler(reqCh))
	r.GET("/:id", getDeviceHandler(reqCh))
	r.POST("/:id/poll", pollDeviceHandler(reqCh))
	r.GET("/:id/ports/:port", readPortHandler(reqCh))
	r.PUT("/:id/ports/:port", writePortHandler(reqCh))
}

// RegisterHistoryRoute creates the port history query route.
func RegisterHistoryRoute(g *gin.RouterGroup, reqCh chan<- models.Request) {
	g.GET("/devices/:id/history", historyHandler(reqCh))
}

// RegisterMetricsRoute exposes the prometheus scrape endpoint.
func RegisterMetricsRoute(router gin.IRoutes, metrics http.Handler) {
	router.GET("/metrics", gin.WrapH(metrics))
}
