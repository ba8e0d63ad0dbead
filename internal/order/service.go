package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"menu_digital/internal/events"
	"menu_digital/internal/model"
	"menu_digital/internal/payment"
	"menu_digital/internal/store"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notifier 向下游广播生命周期事件。发布失败不影响已提交的事务，
// 只记日志（事件属旁路观察，不是正确性的一部分）。
type Notifier interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Service 订单生命周期服务：建单（锁桌 + 建 invoice + 落库一个事务）、
// 交付完成、取消、支付状态迁移、桌位预检、过期锁回收。
// 桌位 occupied/locked_at 与订单 payment_status/completed_at 的每一次变更
// 都发生在持有对应行锁的事务内。
type Service struct {
	db         *gorm.DB
	gateway    payment.Gateway
	notifier   Notifier
	staleAfter time.Duration
}

func NewService(db *gorm.DB, gateway payment.Gateway, notifier Notifier, staleAfter time.Duration) *Service {
	return &Service{
		db:         db,
		gateway:    gateway,
		notifier:   notifier,
		staleAfter: staleAfter,
	}
}

// CreateOrderItem 一行下单菜品。
type CreateOrderItem struct {
	FoodID   uint   `json:"food_id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// CreateOrderInput 建单入参。TableID 为空表示无桌（打包）订单。
type CreateOrderInput struct {
	Name    string
	Phone   string
	Email   string
	TableID *uint
	Items   []CreateOrderItem
}

func (in CreateOrderInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return &InvalidOrderError{Reason: "name is required"}
	}
	if strings.TrimSpace(in.Phone) == "" {
		return &InvalidOrderError{Reason: "phone is required"}
	}
	if len(in.Items) == 0 {
		return &InvalidOrderError{Reason: "items must not be empty"}
	}
	for i, it := range in.Items {
		if it.Name == "" {
			return &InvalidOrderError{Reason: fmt.Sprintf("item %d: name is required", i)}
		}
		if it.Quantity <= 0 {
			return &InvalidOrderError{Reason: fmt.Sprintf("item %d: quantity must be > 0", i)}
		}
		if it.Price <= 0 {
			return &InvalidOrderError{Reason: fmt.Sprintf("item %d: price must be > 0", i)}
		}
	}
	return nil
}

// CreateOrder 建单关键流程：
// 1. 入参校验（失败无副作用）
// 2. 同一事务内阻塞式锁住桌位行，occupied 则整单失败（TableOccupiedError）
// 3. 置位 occupied/locked_at，算总价，生成订单号
// 4. 调网关建 invoice——失败会连同桌位锁一起回滚，桌子绝不悬锁
// 5. 落 Order(pending) + 行项目，提交后广播 order_created
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	code := generateOrderCode()
	var created model.Order
	var tableNumber string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.TableID != nil {
			var table model.DiningTable
			if err := store.ForUpdate(tx).First(&table, *in.TableID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return &InvalidOrderError{Reason: fmt.Sprintf("table %d not found", *in.TableID)}
				}
				return err
			}
			if table.Occupied {
				return &TableOccupiedError{TableNumber: table.TableNumber}
			}
			now := time.Now()
			if err := tx.Model(&table).Updates(map[string]any{
				"occupied":  true,
				"locked_at": now,
			}).Error; err != nil {
				return err
			}
			tableNumber = table.TableNumber
		}

		var total int64
		items := make([]model.OrderItem, 0, len(in.Items))
		invItems := make([]payment.InvoiceItem, 0, len(in.Items))
		for _, it := range in.Items {
			subtotal := it.Price * int64(it.Quantity)
			total += subtotal
			items = append(items, model.OrderItem{
				FoodID:   it.FoodID,
				Name:     it.Name,
				Quantity: it.Quantity,
				Price:    it.Price,
				Subtotal: subtotal,
			})
			invItems = append(invItems, payment.InvoiceItem{
				Name:     it.Name,
				Quantity: it.Quantity,
				Price:    it.Price,
			})
		}

		// 持桌位锁调外部网关是有意取舍：网关慢只会拖住本桌的并发建单，
		// 换来 invoice 与桌位锁的原子性（失败全量回滚）。
		invoice, err := s.gateway.CreateInvoice(ctx, payment.InvoiceRequest{
			Code:  code,
			Name:  in.Name,
			Phone: in.Phone,
			Email: in.Email,
			Total: total,
			Items: invItems,
		})
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}

		created = model.Order{
			Code:          code,
			CustomerName:  in.Name,
			CustomerPhone: in.Phone,
			CustomerEmail: in.Email,
			ExternalRef:   invoice.ExternalRef,
			CheckoutURL:   invoice.CheckoutURL,
			TableID:       in.TableID,
			PaymentMethod: "xendit",
			PaymentStatus: model.PaymentPending,
			Total:         total,
			Items:         items,
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:        events.TypeOrderCreated,
		OrderID:     created.ID,
		Code:        created.Code,
		TableNumber: tableNumber,
		Total:       created.Total,
		Status:      string(created.PaymentStatus),
		OccurredAt:  time.Now(),
	})
	return &created, nil
}

// CompleteResult 交付结果；重复调用返回 AlreadyCompleted=true 而非报错。
type CompleteResult struct {
	Order            *model.Order
	AlreadyCompleted bool
}

// CompleteOrder 标记订单已交付并释放桌位。幂等：已完成的订单直接
// 返回成功（CompletedAt 不变）。仅 paid 订单可交付。
func (s *Service) CompleteOrder(ctx context.Context, orderID uint) (CompleteResult, error) {
	var res CompleteResult
	var tableNumber string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o model.Order
		if err := store.ForUpdate(tx).First(&o, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &OrderNotFoundError{OrderID: orderID}
			}
			return err
		}

		if o.PaymentStatus == model.PaymentCompleted || o.CompletedAt != nil {
			res = CompleteResult{Order: &o, AlreadyCompleted: true}
			return nil
		}
		if o.PaymentStatus != model.PaymentPaid {
			return &OrderNotPaidError{OrderID: orderID, Status: o.PaymentStatus}
		}

		now := time.Now()
		if err := tx.Model(&o).Updates(map[string]any{
			"payment_status": model.PaymentCompleted,
			"completed_at":   now,
		}).Error; err != nil {
			return err
		}
		o.PaymentStatus = model.PaymentCompleted
		o.CompletedAt = &now

		if o.TableID != nil {
			number, err := releaseTable(tx, *o.TableID)
			if err != nil {
				return err
			}
			tableNumber = number
		}
		res = CompleteResult{Order: &o}
		return nil
	})
	if err != nil {
		return CompleteResult{}, err
	}

	if !res.AlreadyCompleted {
		s.publish(ctx, events.Event{
			Type:        events.TypeOrderCompleted,
			OrderID:     res.Order.ID,
			Code:        res.Order.Code,
			TableNumber: tableNumber,
			Total:       res.Order.Total,
			Status:      string(res.Order.PaymentStatus),
			OccurredAt:  time.Now(),
		})
	}
	return res, nil
}

// CancelResult 取消结果；重复取消返回 AlreadyCancelled=true。
type CancelResult struct {
	Order            *model.Order
	AlreadyCancelled bool
}

// CancelOrder 取消订单并释放桌位。任意非终态都可取消；
// 已交付（completed）的订单拒绝取消。
func (s *Service) CancelOrder(ctx context.Context, orderID uint) (CancelResult, error) {
	var res CancelResult
	var tableNumber string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o model.Order
		if err := store.ForUpdate(tx).First(&o, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &OrderNotFoundError{OrderID: orderID}
			}
			return err
		}

		if o.PaymentStatus == model.PaymentCancelled {
			res = CancelResult{Order: &o, AlreadyCancelled: true}
			return nil
		}
		if o.PaymentStatus == model.PaymentCompleted {
			return &OrderCannotCancelError{OrderID: orderID, Status: o.PaymentStatus}
		}

		if err := tx.Model(&o).Update("payment_status", model.PaymentCancelled).Error; err != nil {
			return err
		}
		o.PaymentStatus = model.PaymentCancelled

		if o.TableID != nil {
			number, err := releaseTable(tx, *o.TableID)
			if err != nil {
				return err
			}
			tableNumber = number
		}
		res = CancelResult{Order: &o}
		return nil
	})
	if err != nil {
		return CancelResult{}, err
	}

	if !res.AlreadyCancelled {
		s.publish(ctx, events.Event{
			Type:        events.TypeOrderCancelled,
			OrderID:     res.Order.ID,
			Code:        res.Order.Code,
			TableNumber: tableNumber,
			Total:       res.Order.Total,
			Status:      string(res.Order.PaymentStatus),
			OccurredAt:  time.Now(),
		})
	}
	return res, nil
}

// UpdatePaymentStatus 由网关 webhook 或同步轮询驱动的支付状态迁移。
// 找不到 external ref 时返回 (nil, nil)——回调可能指向已退役的引用，
// 不算错误。当前状态相同或已是终态时原样返回（对重复 / 乱序投递幂等，
// completed/cancelled 永不被覆盖）。expired/failed 会在同一事务内释放
// 桌位；paid 不释放——桌子一直占到交付或取消。
func (s *Service) UpdatePaymentStatus(ctx context.Context, externalRef string, status model.PaymentStatus, method string) (*model.Order, error) {
	if status != model.PaymentPaid && status != model.PaymentExpired && status != model.PaymentFailed {
		return nil, &InvalidOrderError{Reason: fmt.Sprintf("unsupported payment status %q", status)}
	}

	var updated *model.Order
	var changed bool
	var tableNumber string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o model.Order
		if err := store.ForUpdate(tx).Where("external_ref = ?", externalRef).First(&o).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if o.PaymentStatus == status || o.PaymentStatus.Terminal() {
			updated = &o
			return nil
		}

		values := map[string]any{"payment_status": status}
		if method != "" {
			values["payment_method"] = method
		}
		if err := tx.Model(&o).Updates(values).Error; err != nil {
			return err
		}
		o.PaymentStatus = status
		if method != "" {
			o.PaymentMethod = method
		}

		if (status == model.PaymentExpired || status == model.PaymentFailed) && o.TableID != nil {
			number, err := releaseTable(tx, *o.TableID)
			if err != nil {
				return err
			}
			tableNumber = number
		}
		updated = &o
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		var eventType string
		switch status {
		case model.PaymentPaid:
			eventType = events.TypePaymentReceived
		case model.PaymentExpired:
			eventType = events.TypePaymentExpired
		case model.PaymentFailed:
			eventType = events.TypePaymentFailed
		}
		s.publish(ctx, events.Event{
			Type:        eventType,
			OrderID:     updated.ID,
			Code:        updated.Code,
			TableNumber: tableNumber,
			Total:       updated.Total,
			Status:      string(updated.PaymentStatus),
			OccurredAt:  time.Now(),
		})
	}
	return updated, nil
}

// TableStatus 桌位预检结果。只读、不加锁——真正的判定在 CreateOrder
// 的行锁里重做，这里给前端「该桌忙，稍后再试」用。
type TableStatus struct {
	Exists      bool         `json:"exists"`
	TableNumber string       `json:"table_number,omitempty"`
	Occupied    bool         `json:"is_occupied"`
	ActiveOrder *model.Order `json:"active_order,omitempty"`
}

// CheckTableStatus 返回桌位是否被占用及占用它的活跃订单（pending/paid）。
func (s *Service) CheckTableStatus(ctx context.Context, tableID uint) (TableStatus, error) {
	var table model.DiningTable
	if err := s.db.WithContext(ctx).First(&table, tableID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TableStatus{}, nil
		}
		return TableStatus{}, err
	}

	status := TableStatus{Exists: true, TableNumber: table.TableNumber, Occupied: table.Occupied}
	if !table.Occupied {
		return status, nil
	}

	var active model.Order
	err := s.db.WithContext(ctx).
		Where("table_id = ? AND payment_status IN ?", table.ID,
			[]model.PaymentStatus{model.PaymentPending, model.PaymentPaid}).
		Order("created_at DESC").
		First(&active).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return status, nil
		}
		return TableStatus{}, err
	}
	status.ActiveOrder = &active
	return status, nil
}

// ReleaseStaleTables 扫描所有 occupied 桌位并回收失效锁，返回释放数。
// 桌位与活跃订单都用 SKIP LOCKED 做锁定读：判定只基于已提交且此刻
// 无人在改的行，正被在途事务锁住的行本轮直接跳过，不阻塞也不被阻塞
// （webhook 只锁订单行不锁桌位行，普通快照读会把它提交前的 pending
// 误判成过期）。回收规则：
//   - 无活跃订单（查无订单或全为终态）-> 释放
//   - 活跃订单被其他事务锁定          -> 本轮跳过，下一轮重判
//   - pending 超过时限                -> 订单置 expired，释放
//   - paid                            -> 保留，只有交付 / 取消能释放
func (s *Service) ReleaseStaleTables(ctx context.Context) (int, error) {
	released := 0
	var expiredEvents []events.Event
	activeStatuses := []model.PaymentStatus{model.PaymentPending, model.PaymentPaid}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tables []model.DiningTable
		if err := store.SkipLocked(tx).
			Where("occupied = ?", true).
			Find(&tables).Error; err != nil {
			return err
		}

		for i := range tables {
			table := &tables[i]

			// 占用桌至多一个活跃订单（pending/paid），锁住它再做判定
			var active model.Order
			err := store.SkipLocked(tx).
				Where("table_id = ? AND payment_status IN ?", table.ID, activeStatuses).
				Order("created_at DESC").
				First(&active).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// 读不到有两种情况：确实没有活跃订单（释放桌位），
				// 或活跃订单正被别的事务迁移状态（跳过本轮）。
				// 活跃订单只能在持本桌行锁的事务里诞生，此刻我们
				// 自己持着锁，所以计数不会漏。
				var n int64
				if err := tx.Model(&model.Order{}).
					Where("table_id = ? AND payment_status IN ?", table.ID, activeStatuses).
					Count(&n).Error; err != nil {
					return err
				}
				if n > 0 {
					continue
				}
				if err := unlock(tx, table); err != nil {
					return err
				}
				released++
				continue
			}
			if err != nil {
				return err
			}

			switch active.PaymentStatus {
			case model.PaymentPending:
				if time.Since(active.CreatedAt) <= s.staleAfter {
					continue
				}
				if err := tx.Model(&active).Update("payment_status", model.PaymentExpired).Error; err != nil {
					return err
				}
				if err := unlock(tx, table); err != nil {
					return err
				}
				released++
				expiredEvents = append(expiredEvents, events.Event{
					Type:        events.TypePaymentExpired,
					OrderID:     active.ID,
					Code:        active.Code,
					TableNumber: table.TableNumber,
					Total:       active.Total,
					Status:      string(model.PaymentExpired),
					OccurredAt:  time.Now(),
				})
			case model.PaymentPaid:
				// 已付款未交付：桌子合法占用，留给交付 / 取消路径
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, ev := range expiredEvents {
		s.publish(ctx, ev)
	}
	return released, nil
}

// releaseTable 在当前事务内锁住桌位行并清掉占用标记，返回桌号。
func releaseTable(tx *gorm.DB, tableID uint) (string, error) {
	var table model.DiningTable
	if err := store.ForUpdate(tx).First(&table, tableID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return table.TableNumber, unlock(tx, &table)
}

func unlock(tx *gorm.DB, table *model.DiningTable) error {
	return tx.Model(table).Updates(map[string]any{
		"occupied":  false,
		"locked_at": nil,
	}).Error
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, ev); err != nil {
		log.Printf("order service publish %s: %v", ev.Type, err)
	}
}

// generateOrderCode 生成人类可读且全局唯一的订单号。
func generateOrderCode() string {
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(),
		strings.ToUpper(uuid.New().String()[:4]))
}
