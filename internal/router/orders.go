package router

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"menu_digital/internal/model"
	"menu_digital/internal/order"
	rediskey "menu_digital/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// respondError 把服务层类型化错误翻译成对外状态码。
// TABLE_OCCUPIED 必须是可区分的一等结果（409），前端据此提示「该桌忙」。
func respondError(c *gin.Context, err error) {
	var invalid *order.InvalidOrderError
	var occupied *order.TableOccupiedError
	var notFound *order.OrderNotFoundError
	var notPaid *order.OrderNotPaidError
	var cannotCancel *order.OrderCannotCancelError

	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ORDER", "msg": invalid.Reason})
	case errors.As(err, &occupied):
		c.JSON(http.StatusConflict, gin.H{
			"code":         "TABLE_OCCUPIED",
			"msg":          "table is occupied, try again later",
			"table_number": occupied.TableNumber,
		})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "TRANSACTION_NOT_FOUND", "msg": err.Error()})
	case errors.As(err, &notPaid):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "TRANSACTION_NOT_PAID", "msg": err.Error()})
	case errors.As(err, &cannotCancel):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "CANNOT_CANCEL", "msg": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "msg": err.Error()})
	}
}

// dropTableStatusCache 桌位占用状态刚变更，主动失效预检快照（尽力而为）。
func dropTableStatusCache(ctx context.Context, rdb *rd.Client, tableID *uint) {
	if rdb == nil || tableID == nil {
		return
	}
	if err := rediskey.DropTableStatus(ctx, rdb, *tableID); err != nil {
		log.Printf("drop table status cache: %v", err)
	}
}

// createOrder 顾客结账下单。
func createOrder(svc *order.Service, rdb *rd.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			CustomerName  string                  `json:"customer_name" binding:"required"`
			CustomerPhone string                  `json:"customer_phone" binding:"required"`
			CustomerEmail string                  `json:"customer_email"`
			TableID       *uint                   `json:"table_id"`
			Items         []order.CreateOrderItem `json:"items" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ORDER", "msg": err.Error()})
			return
		}

		o, err := svc.CreateOrder(c.Request.Context(), order.CreateOrderInput{
			Name:    req.CustomerName,
			Phone:   req.CustomerPhone,
			Email:   req.CustomerEmail,
			TableID: req.TableID,
			Items:   req.Items,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		dropTableStatusCache(c.Request.Context(), rdb, o.TableID)
		c.JSON(http.StatusCreated, gin.H{"code": "OK", "data": o})
	}
}

// listOrders 后台订单列表（按创建时间倒序）。
func listOrders(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var list []model.Order
		if err := db.Order("created_at DESC").Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": "OK", "data": list})
	}
}

// getOrder 订单详情（含行项目）。
func getOrder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ORDER", "msg": "invalid order id"})
			return
		}

		var o model.Order
		if err := db.Preload("Items").First(&o, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": "TRANSACTION_NOT_FOUND", "msg": "order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": "OK", "data": o})
	}
}

// completeOrder 员工标记订单已交付。重复提交返回 already_completed=true。
func completeOrder(svc *order.Service, rdb *rd.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ORDER", "msg": "invalid order id"})
			return
		}

		res, err := svc.CompleteOrder(c.Request.Context(), uint(id))
		if err != nil {
			respondError(c, err)
			return
		}

		dropTableStatusCache(c.Request.Context(), rdb, res.Order.TableID)
		c.JSON(http.StatusOK, gin.H{"code": "OK", "data": gin.H{
			"already_completed": res.AlreadyCompleted,
			"completed_at":      res.Order.CompletedAt,
			"order":             res.Order,
		}})
	}
}

// cancelOrder 员工取消订单。重复提交返回 already_cancelled=true。
func cancelOrder(svc *order.Service, rdb *rd.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ORDER", "msg": "invalid order id"})
			return
		}

		res, err := svc.CancelOrder(c.Request.Context(), uint(id))
		if err != nil {
			respondError(c, err)
			return
		}

		dropTableStatusCache(c.Request.Context(), rdb, res.Order.TableID)
		c.JSON(http.StatusOK, gin.H{"code": "OK", "data": gin.H{
			"already_cancelled": res.AlreadyCancelled,
			"order":             res.Order,
		}})
	}
}

func parseID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	return uint(id), err
}
