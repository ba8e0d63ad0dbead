package notify

import (
	"strings"
	"testing"
	"time"

	"menu_digital/internal/events"
)

func TestFromEvent(t *testing.T) {
	ev := events.Event{
		Type:        events.TypeOrderCreated,
		OrderID:     3,
		Code:        "ORD-1-ABCD",
		TableNumber: "5",
		Total:       50000,
		Status:      "pending",
		OccurredAt:  time.Now(),
	}

	n := FromEvent(ev)
	if n.Title != "Pesanan Baru!" {
		t.Errorf("title = %s", n.Title)
	}
	if !strings.Contains(n.Message, "Meja 5") || !strings.Contains(n.Message, ev.Code) {
		t.Errorf("message = %s", n.Message)
	}
	if n.OrderID != 3 || n.Total != 50000 {
		t.Errorf("notification = %+v", n)
	}

	// 无桌订单展示占位桌号
	ev.TableNumber = ""
	ev.Type = events.TypePaymentExpired
	n = FromEvent(ev)
	if !strings.Contains(n.Message, "meja -") {
		t.Errorf("takeaway message = %s", n.Message)
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe()
	b := hub.Subscribe()

	hub.Broadcast(Notification{Type: "order_created", Code: "ORD-1"})

	for name, ch := range map[string]chan Notification{"a": a, "b": b} {
		select {
		case n := <-ch:
			if n.Code != "ORD-1" {
				t.Errorf("client %s got %+v", name, n)
			}
		default:
			t.Errorf("client %s received nothing", name)
		}
	}

	hub.Unsubscribe(a)
	if _, ok := <-a; ok {
		t.Error("unsubscribed channel not closed")
	}

	// 摘除后的客户端不再收到广播
	hub.Broadcast(Notification{Code: "ORD-2"})
	select {
	case n := <-b:
		if n.Code != "ORD-2" {
			t.Errorf("client b got %+v", n)
		}
	default:
		t.Error("client b received nothing after unsubscribe of a")
	}
}

func TestHubDropsForSlowClients(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()

	// 填满缓冲后继续广播不得阻塞
	for i := 0; i < 32; i++ {
		hub.Broadcast(Notification{Code: "ORD-FLOOD"})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	if received == 0 || received > 16 {
		t.Errorf("received = %d, want 1..16 (excess dropped)", received)
	}
}
