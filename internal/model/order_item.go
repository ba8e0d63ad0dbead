package model

import (
	"time"
)

// OrderItem 订单行项目，创建后不可变；Subtotal = Quantity * Price。
type OrderItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderID  uint   `gorm:"not null;index" json:"order_id"`
	FoodID   uint   `gorm:"not null;index" json:"food_id"`
	Name     string `gorm:"size:100;not null" json:"name"`
	Quantity int    `gorm:"not null" json:"quantity"`
	Price    int64  `gorm:"not null" json:"price"`    // 单价，分
	Subtotal int64  `gorm:"not null" json:"subtotal"` // 行小计，分
}

func (OrderItem) TableName() string { return "order_items" }
