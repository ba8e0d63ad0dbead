package notify

import (
	"fmt"
	"sync"
	"time"

	"menu_digital/internal/events"
)

// Notification 推送给后台管理端的展示消息。
type Notification struct {
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	OrderID   uint      `json:"order_id"`
	Total     int64     `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// FromEvent 把生命周期事件翻译成管理端通知文案。
func FromEvent(ev events.Event) Notification {
	n := Notification{
		Type:      ev.Type,
		Code:      ev.Code,
		OrderID:   ev.OrderID,
		Total:     ev.Total,
		Timestamp: ev.OccurredAt,
	}
	table := ev.TableNumber
	if table == "" {
		table = "-"
	}

	switch ev.Type {
	case events.TypeOrderCreated:
		n.Title = "Pesanan Baru!"
		n.Message = fmt.Sprintf("Pesanan %s — Meja %s", ev.Code, table)
	case events.TypePaymentReceived:
		n.Title = "Pembayaran Diterima!"
		n.Message = fmt.Sprintf("Transaksi %s telah dibayar", ev.Code)
	case events.TypePaymentExpired:
		n.Title = "Pembayaran Kadaluarsa"
		n.Message = fmt.Sprintf("Transaksi %s kadaluarsa, meja %s dilepas", ev.Code, table)
	case events.TypePaymentFailed:
		n.Title = "Pembayaran Gagal"
		n.Message = fmt.Sprintf("Transaksi %s gagal dibayar", ev.Code)
	case events.TypeOrderCompleted:
		n.Title = "Pesanan Selesai"
		n.Message = fmt.Sprintf("Pesanan %s sudah diantar", ev.Code)
	case events.TypeOrderCancelled:
		n.Title = "Pesanan Dibatalkan"
		n.Message = fmt.Sprintf("Pesanan %s dibatalkan", ev.Code)
	default:
		n.Title = ev.Type
		n.Message = ev.Code
	}
	return n
}

// Hub 维护在线的 SSE 客户端集合并向它们广播通知。
type Hub struct {
	mu      sync.Mutex
	clients map[chan Notification]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan Notification]struct{})}
}

// Subscribe 注册一个新客户端，返回其接收通道。
func (h *Hub) Subscribe() chan Notification {
	ch := make(chan Notification, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe 摘除客户端并关闭其通道。
func (h *Hub) Unsubscribe(ch chan Notification) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Broadcast 向所有在线客户端投递；慢客户端直接丢弃本条，不阻塞广播。
func (h *Hub) Broadcast(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- n:
		default:
		}
	}
}
