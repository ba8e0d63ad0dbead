package router

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"menu_digital/internal/model"
	"menu_digital/internal/order"
	rediskey "menu_digital/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// tableStatus 桌位预检：先走短 TTL 的 Redis 快照，未命中落库。
// 结果仅供前端展示「该桌忙」；建单事务的行锁才是唯一权威判定。
func tableStatus(svc *order.Service, rdb *rd.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		id64, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ORDER", "msg": "invalid table id"})
			return
		}
		tableID := uint(id64)

		if rdb != nil && ttl > 0 {
			snap, found, err := rediskey.GetTableStatus(c.Request.Context(), rdb, tableID)
			if err != nil {
				// 缓存故障降级直查 DB
				log.Printf("table status cache get: %v", err)
			} else if found {
				c.JSON(http.StatusOK, statusPayload(snap))
				return
			}
		}

		st, err := svc.CheckTableStatus(c.Request.Context(), tableID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "msg": err.Error()})
			return
		}

		snap := rediskey.TableStatusSnapshot{
			Exists:      st.Exists,
			TableNumber: st.TableNumber,
			Occupied:    st.Occupied,
		}
		if st.ActiveOrder != nil {
			snap.OrderCode = st.ActiveOrder.Code
			snap.OrderStatus = string(st.ActiveOrder.PaymentStatus)
		}
		if rdb != nil && ttl > 0 {
			if err := rediskey.PutTableStatus(c.Request.Context(), rdb, tableID, snap, ttl); err != nil {
				log.Printf("table status cache put: %v", err)
			}
		}
		c.JSON(http.StatusOK, statusPayload(snap))
	}
}

func statusPayload(snap rediskey.TableStatusSnapshot) gin.H {
	payload := gin.H{
		"exists":       snap.Exists,
		"table_number": snap.TableNumber,
		"is_occupied":  snap.Occupied,
	}
	if snap.OrderCode != "" {
		payload["active_order"] = gin.H{
			"code":           snap.OrderCode,
			"payment_status": snap.OrderStatus,
		}
	}
	return payload
}

// listTables 桌位列表（后台）。
func listTables(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var list []model.DiningTable
		if err := db.Order("table_number").Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": "OK", "data": list})
	}
}

// createTable 新开桌位。
func createTable(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			TableNumber string `json:"table_number" binding:"required"`
			QRValue     string `json:"qr_value"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ORDER", "msg": err.Error()})
			return
		}

		var exists model.DiningTable
		err := db.Where("table_number = ?", req.TableNumber).Limit(1).First(&exists).Error
		if err == nil {
			c.JSON(http.StatusConflict, gin.H{"code": "TABLE_EXISTS", "msg": "table number already exists"})
			return
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "msg": err.Error()})
			return
		}

		t := &model.DiningTable{TableNumber: req.TableNumber, QRValue: req.QRValue}
		if err := db.Create(t).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": "OK", "data": t})
	}
}
