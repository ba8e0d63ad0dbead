package events

import (
	"fmt"
	"time"
)

// 订单生命周期事件类型。
const (
	TypeOrderCreated    = "order_created"
	TypePaymentReceived = "payment_received"
	TypePaymentExpired  = "payment_expired"
	TypePaymentFailed   = "payment_failed"
	TypeOrderCompleted  = "order_completed"
	TypeOrderCancelled  = "order_cancelled"
)

// Event 是写入 outbox / Kafka 的订单生命周期事件。
type Event struct {
	Type        string    `json:"type"`
	OrderID     uint      `json:"order_id"`
	Code        string    `json:"code"`
	TableNumber string    `json:"table_number,omitempty"`
	Total       int64     `json:"total"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (e Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}
	if e.OrderID == 0 {
		return fmt.Errorf("order_id is required")
	}
	if e.Code == "" {
		return fmt.Errorf("code is required")
	}
	if e.Status == "" {
		return fmt.Errorf("status is required")
	}
	return nil
}
