package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/marcus/till/internal/models"
)

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(recovery())
	r.Use(requestLogger(s.log))
	if len(s.config.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: s.config.CORSOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		v1.GET("/status", s.handleStatus)
		v1.POST("/sync", s.handleSync)

		v1.POST("/sales", s.handleCheckout)
		v1.GET("/sales", s.handleHistory(models.KindSale))
		v1.POST("/purchases", s.handleCreatePurchase)
		v1.GET("/purchases", s.handleHistory(models.KindPurchase))

		v1.GET("/queue/:kind", s.handleQueue)

		v1.POST("/printer/connect", s.handlePrinterConnect)
		v1.POST("/print/kot", s.handlePrintKitchenTicket)
		v1.POST("/print/bill", s.handlePrintBill)
	}
	return r
}
