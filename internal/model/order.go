package model

import (
	"time"

	"gorm.io/gorm"
)

// PaymentStatus 订单支付状态机：
// pending -> {paid, expired, failed}；paid -> {completed, cancelled}；
// {pending, expired, failed} -> cancelled。completed 与 cancelled 为终态，
// 任何路径都不允许离开终态。
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentExpired   PaymentStatus = "expired"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCompleted PaymentStatus = "completed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Terminal reports whether no further transition may leave this status.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentCancelled
}

// Active reports whether an order in this status still owns its table.
func (s PaymentStatus) Active() bool {
	return s == PaymentPending || s == PaymentPaid
}

// Order 一笔顾客交易。TableID 为空表示打包带走（无桌）订单。
type Order struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Code          string `gorm:"size:50;uniqueIndex;not null" json:"code"`
	CustomerName  string `gorm:"size:100;not null" json:"customer_name"`
	CustomerPhone string `gorm:"size:20;not null" json:"customer_phone"`
	CustomerEmail string `gorm:"size:100" json:"customer_email,omitempty"`

	// ExternalRef 是支付网关侧的对账主键（invoice external_id）。
	ExternalRef string `gorm:"size:100;uniqueIndex;not null" json:"external_ref"`
	CheckoutURL string `gorm:"size:255" json:"checkout_url"`

	// (table_id, payment_status) 复合索引支撑「该桌当前活跃订单」查询，
	// 预检接口与后台回收任务都依赖它。
	TableID       *uint         `gorm:"index:idx_orders_table_status" json:"table_id"`
	PaymentMethod string        `gorm:"size:50" json:"payment_method,omitempty"`
	PaymentStatus PaymentStatus `gorm:"size:20;not null;default:pending;index:idx_orders_table_status" json:"payment_status"`

	Total       int64      `gorm:"not null" json:"total"` // 单位：分
	CompletedAt *time.Time `json:"completed_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

func (Order) TableName() string { return "orders" }
