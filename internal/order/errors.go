package order

import (
	"fmt"

	"menu_digital/internal/model"
)

// InvalidOrderError 客户端入参问题（空菜单、数量/价格非正等），无任何副作用。
type InvalidOrderError struct {
	Reason string
}

func (e *InvalidOrderError) Error() string {
	return "invalid order: " + e.Reason
}

// TableOccupiedError 桌位已被活跃订单占用。对用户可重试（稍后再下单）。
type TableOccupiedError struct {
	TableNumber string
}

func (e *TableOccupiedError) Error() string {
	return fmt.Sprintf("table %s is occupied by an active order", e.TableNumber)
}

// OrderNotFoundError 指定订单不存在。
type OrderNotFoundError struct {
	OrderID uint
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order %d not found", e.OrderID)
}

// OrderNotPaidError 只有 paid 状态的订单才能交付完成。
type OrderNotPaidError struct {
	OrderID uint
	Status  model.PaymentStatus
}

func (e *OrderNotPaidError) Error() string {
	return fmt.Sprintf("order %d is %s, only paid orders can be completed", e.OrderID, e.Status)
}

// OrderCannotCancelError 已交付的订单不可取消。
type OrderCannotCancelError struct {
	OrderID uint
	Status  model.PaymentStatus
}

func (e *OrderCannotCancelError) Error() string {
	return fmt.Sprintf("order %d is %s and cannot be cancelled", e.OrderID, e.Status)
}
