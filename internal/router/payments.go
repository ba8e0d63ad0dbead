package router

import (
	"log"
	"net/http"

	"menu_digital/internal/model"
	"menu_digital/internal/order"
	"menu_digital/internal/payment"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

// mapGatewayStatus 把网关侧状态翻译成内部支付状态；不认识的返回空。
func mapGatewayStatus(s string) model.PaymentStatus {
	switch s {
	case "PAID", "SETTLED":
		return model.PaymentPaid
	case "EXPIRED":
		return model.PaymentExpired
	case "FAILED":
		return model.PaymentFailed
	default:
		return ""
	}
}

// paymentWebhook 网关回调。签名校验不过返回 401；过了之后一律 200——
// 重复 / 乱序 / 未知引用的投递都由服务层幂等规则吸收，不值得让网关重试。
func paymentWebhook(svc *order.Service, gw payment.Gateway, rdb *rd.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !gw.VerifyWebhook(c.Request.Header) {
			c.JSON(http.StatusUnauthorized, gin.H{"code": "INVALID_SIGNATURE", "msg": "invalid callback token"})
			return
		}

		var payload struct {
			ExternalID    string `json:"external_id"`
			Status        string `json:"status"`
			PaymentMethod string `json:"payment_method"`
		}
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusOK, gin.H{"code": "OK", "msg": "malformed payload ignored"})
			return
		}

		status := mapGatewayStatus(payload.Status)
		if status == "" {
			c.JSON(http.StatusOK, gin.H{"code": "OK", "msg": "status ignored"})
			return
		}

		updated, err := svc.UpdatePaymentStatus(c.Request.Context(), payload.ExternalID, status, payload.PaymentMethod)
		if err != nil {
			log.Printf("payment webhook %s -> %s: %v", payload.ExternalID, status, err)
			c.JSON(http.StatusOK, gin.H{"code": "OK", "msg": "callback processed"})
			return
		}
		if updated != nil {
			dropTableStatusCache(c.Request.Context(), rdb, updated.TableID)
		}
		c.JSON(http.StatusOK, gin.H{"code": "OK", "msg": "callback processed"})
	}
}

// syncPaymentStatus 同步轮询兜底：webhook 丢了，前端可主动触发对账。
func syncPaymentStatus(svc *order.Service, gw payment.Gateway, rdb *rd.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		externalID := c.Param("external_id")
		if externalID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ORDER", "msg": "external_id is required"})
			return
		}

		inv, err := gw.GetInvoiceByExternalRef(c.Request.Context(), externalID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "msg": err.Error()})
			return
		}

		status := mapGatewayStatus(inv.Status)
		if status == "" {
			c.JSON(http.StatusOK, gin.H{"code": "OK", "data": gin.H{
				"gateway_status": inv.Status,
				"msg":            "payment still pending",
			}})
			return
		}

		method := inv.PaymentChannel
		if method == "" {
			method = inv.PaymentMethod
		}
		updated, err := svc.UpdatePaymentStatus(c.Request.Context(), externalID, status, method)
		if err != nil {
			respondError(c, err)
			return
		}
		if updated == nil {
			c.JSON(http.StatusNotFound, gin.H{"code": "TRANSACTION_NOT_FOUND", "msg": "unknown external_id"})
			return
		}
		dropTableStatusCache(c.Request.Context(), rdb, updated.TableID)
		c.JSON(http.StatusOK, gin.H{"code": "OK", "data": updated})
	}
}
