package router

import (
	"net/http"

	"menu_digital/internal/config"
	"menu_digital/internal/middleware"
	"menu_digital/internal/notify"
	"menu_digital/internal/order"
	"menu_digital/internal/payment"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, db *gorm.DB, svc *order.Service, gw payment.Gateway,
	rdb *rd.Client, hub *notify.Hub, cfg config.AppConfig) {

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	// Orders（下单接口带限流）
	r.POST("/api/orders", middleware.OrderRateLimit(rdb, cfg.OrderRateLimit, cfg.OrderRateWindow),
		createOrder(svc, rdb))
	r.GET("/api/orders", listOrders(db))
	r.GET("/api/orders/:id", getOrder(db))
	r.PATCH("/api/orders/:id/complete", completeOrder(svc, rdb))
	r.PATCH("/api/orders/:id/cancel", cancelOrder(svc, rdb))

	// Payments
	r.POST("/api/payments/webhook", paymentWebhook(svc, gw, rdb))
	r.GET("/api/payments/sync/:external_id", syncPaymentStatus(svc, gw, rdb))

	// Tables
	r.GET("/api/tables", listTables(db))
	r.POST("/api/tables", createTable(db))
	r.GET("/api/tables/:id/status", tableStatus(svc, rdb, cfg.TableStatusCacheTTL))

	// Catalog
	r.GET("/api/categories", listCategories(db))
	r.POST("/api/categories", createCategory(db))
	r.DELETE("/api/categories/:id", deleteCategory(db))
	r.GET("/api/foods", listFoods(db))
	r.POST("/api/foods", createFood(db))
	r.PUT("/api/foods/:id", updateFood(db))
	r.DELETE("/api/foods/:id", deleteFood(db))

	// Admin notification feed
	r.GET("/api/notifications/stream", notificationsStream(hub))
}
