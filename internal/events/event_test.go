package events

import (
	"testing"
	"time"
)

func validEvent() Event {
	return Event{
		Type:        TypeOrderCreated,
		OrderID:     7,
		Code:        "ORD-1700000000000-AB12",
		TableNumber: "5",
		Total:       50000,
		Status:      "pending",
		OccurredAt:  time.Date(2026, 8, 30, 12, 0, 0, 123456789, time.UTC),
	}
}

func TestEventValidate(t *testing.T) {
	if err := validEvent().Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}

	cases := []struct {
		name  string
		mutat func(*Event)
	}{
		{"missing type", func(e *Event) { e.Type = "" }},
		{"zero order id", func(e *Event) { e.OrderID = 0 }},
		{"missing code", func(e *Event) { e.Code = "" }},
		{"missing status", func(e *Event) { e.Status = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := validEvent()
			tc.mutat(&ev)
			if err := ev.Validate(); err == nil {
				t.Fatal("invalid event accepted")
			}
		})
	}
}

func TestStreamEventRoundTrip(t *testing.T) {
	want := validEvent()

	got, err := parseStreamEvent(streamValues(want))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if got.Type != want.Type || got.OrderID != want.OrderID || got.Code != want.Code {
		t.Errorf("identity fields: got %+v", got)
	}
	if got.TableNumber != want.TableNumber || got.Total != want.Total || got.Status != want.Status {
		t.Errorf("payload fields: got %+v", got)
	}
	if !got.OccurredAt.Equal(want.OccurredAt) {
		t.Errorf("occurred_at = %v, want %v", got.OccurredAt, want.OccurredAt)
	}
}

func TestStreamValuesFillsOccurredAt(t *testing.T) {
	ev := validEvent()
	ev.OccurredAt = time.Time{}

	got, err := parseStreamEvent(streamValues(ev))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.OccurredAt.IsZero() {
		t.Error("occurred_at left zero")
	}
}

func TestParseStreamEventRejectsDirtyMessages(t *testing.T) {
	base := streamValues(validEvent())

	t.Run("missing field", func(t *testing.T) {
		values := map[string]interface{}{}
		for k, v := range base {
			values[k] = v
		}
		delete(values, "code")
		if _, err := parseStreamEvent(values); err == nil {
			t.Fatal("message without code accepted")
		}
	})

	t.Run("garbage order id", func(t *testing.T) {
		values := map[string]interface{}{}
		for k, v := range base {
			values[k] = v
		}
		values["order_id"] = "abc"
		if _, err := parseStreamEvent(values); err == nil {
			t.Fatal("garbage order_id accepted")
		}
	})

	t.Run("bad timestamp falls back", func(t *testing.T) {
		values := map[string]interface{}{}
		for k, v := range base {
			values[k] = v
		}
		values["occurred_at"] = "not-a-time"
		got, err := parseStreamEvent(values)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if got.OccurredAt.IsZero() {
			t.Error("no fallback timestamp applied")
		}
	})
}
