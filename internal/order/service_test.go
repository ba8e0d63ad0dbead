package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"menu_digital/internal/events"
	"menu_digital/internal/model"
	"menu_digital/internal/payment"
	"menu_digital/internal/store"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type fakeGateway struct {
	mu          sync.Mutex
	createCalls int
	createErr   error
	status      payment.InvoiceStatus
}

func (g *fakeGateway) CreateInvoice(_ context.Context, req payment.InvoiceRequest) (payment.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.createErr != nil {
		return payment.Invoice{}, g.createErr
	}
	return payment.Invoice{
		ExternalRef: fmt.Sprintf("TRX-TEST-%d", g.createCalls),
		CheckoutURL: "https://pay.test/" + req.Code,
		InvoiceID:   fmt.Sprintf("inv-%d", g.createCalls),
	}, nil
}

func (g *fakeGateway) GetInvoiceByExternalRef(context.Context, string) (payment.InvoiceStatus, error) {
	return g.status, nil
}

func (g *fakeGateway) VerifyWebhook(h http.Header) bool {
	return h.Get("x-callback-token") == "test-token"
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createCalls
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.Event
}

func (n *recordingNotifier) Publish(_ context.Context, ev events.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) byType(typ string) []events.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []events.Event
	for _, ev := range n.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *fakeGateway, *recordingNotifier) {
	t.Helper()
	db := newTestDB(t)
	gw := &fakeGateway{}
	notifier := &recordingNotifier{}
	return NewService(db, gw, notifier, 15*time.Minute), db, gw, notifier
}

func seedTable(t *testing.T, db *gorm.DB, number string) *model.DiningTable {
	t.Helper()
	table := &model.DiningTable{TableNumber: number}
	if err := db.Create(table).Error; err != nil {
		t.Fatalf("seed table: %v", err)
	}
	return table
}

func validInput(tableID *uint) CreateOrderInput {
	return CreateOrderInput{
		Name:    "Budi",
		Phone:   "081234567890",
		TableID: tableID,
		Items: []CreateOrderItem{
			{FoodID: 1, Name: "Nasi Goreng", Quantity: 2, Price: 15000},
			{FoodID: 2, Name: "Es Teh", Quantity: 1, Price: 20000},
		},
	}
}

func reloadTable(t *testing.T, db *gorm.DB, id uint) model.DiningTable {
	t.Helper()
	var table model.DiningTable
	if err := db.First(&table, id).Error; err != nil {
		t.Fatalf("reload table: %v", err)
	}
	return table
}

func reloadOrder(t *testing.T, db *gorm.DB, id uint) model.Order {
	t.Helper()
	var o model.Order
	if err := db.First(&o, id).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return o
}

func TestCreateOrderHappyPath(t *testing.T) {
	svc, db, _, notifier := newTestService(t)
	table := seedTable(t, db, "5")

	o, err := svc.CreateOrder(context.Background(), validInput(&table.ID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if o.Total != 50000 {
		t.Errorf("total = %d, want 50000", o.Total)
	}
	if o.PaymentStatus != model.PaymentPending {
		t.Errorf("status = %s, want pending", o.PaymentStatus)
	}
	if o.Code == "" || o.ExternalRef == "" || o.CheckoutURL == "" {
		t.Errorf("missing code/external_ref/checkout_url: %+v", o)
	}
	if len(o.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(o.Items))
	}
	if o.Items[0].Subtotal != 30000 || o.Items[1].Subtotal != 20000 {
		t.Errorf("subtotals = %d, %d", o.Items[0].Subtotal, o.Items[1].Subtotal)
	}

	got := reloadTable(t, db, table.ID)
	if !got.Occupied || got.LockedAt == nil {
		t.Errorf("table not locked after create: occupied=%v locked_at=%v", got.Occupied, got.LockedAt)
	}

	if evs := notifier.byType(events.TypeOrderCreated); len(evs) != 1 || evs[0].TableNumber != "5" {
		t.Errorf("order_created events = %+v", evs)
	}

	// 付款不放桌
	updated, err := svc.UpdatePaymentStatus(context.Background(), o.ExternalRef, model.PaymentPaid, "qris")
	if err != nil {
		t.Fatalf("update payment: %v", err)
	}
	if updated.PaymentStatus != model.PaymentPaid || updated.PaymentMethod != "qris" {
		t.Errorf("after paid: %+v", updated)
	}
	if got := reloadTable(t, db, table.ID); !got.Occupied {
		t.Error("table released on paid, want still occupied")
	}

	// 交付才放桌
	res, err := svc.CompleteOrder(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.AlreadyCompleted {
		t.Error("first complete reported already_completed")
	}
	if res.Order.PaymentStatus != model.PaymentCompleted || res.Order.CompletedAt == nil {
		t.Errorf("after complete: %+v", res.Order)
	}
	if got := reloadTable(t, db, table.ID); got.Occupied || got.LockedAt != nil {
		t.Errorf("table still locked after complete: %+v", got)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	svc, db, gw, _ := newTestService(t)
	table := seedTable(t, db, "1")

	cases := []struct {
		name  string
		mutat func(*CreateOrderInput)
	}{
		{"empty items", func(in *CreateOrderInput) { in.Items = nil }},
		{"zero quantity", func(in *CreateOrderInput) { in.Items[0].Quantity = 0 }},
		{"negative price", func(in *CreateOrderInput) { in.Items[0].Price = -1 }},
		{"missing name", func(in *CreateOrderInput) { in.Name = " " }},
		{"missing phone", func(in *CreateOrderInput) { in.Phone = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput(&table.ID)
			tc.mutat(&in)

			_, err := svc.CreateOrder(context.Background(), in)
			var invalid *InvalidOrderError
			if !errors.As(err, &invalid) {
				t.Fatalf("err = %v, want InvalidOrderError", err)
			}
		})
	}

	// 校验失败不得有任何副作用
	if gw.calls() != 0 {
		t.Errorf("gateway called %d times on invalid input", gw.calls())
	}
	var count int64
	db.Model(&model.Order{}).Count(&count)
	if count != 0 {
		t.Errorf("orders created on invalid input: %d", count)
	}
	if got := reloadTable(t, db, table.ID); got.Occupied {
		t.Error("table locked on invalid input")
	}
}

func TestCreateOrderUnknownTable(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	missing := uint(42)

	_, err := svc.CreateOrder(context.Background(), validInput(&missing))
	var invalid *InvalidOrderError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidOrderError", err)
	}
}

func TestCreateOrderTakeawayNeedsNoTable(t *testing.T) {
	svc, db, _, _ := newTestService(t)

	o, err := svc.CreateOrder(context.Background(), validInput(nil))
	if err != nil {
		t.Fatalf("create takeaway: %v", err)
	}
	if o.TableID != nil {
		t.Errorf("table id = %v, want nil", o.TableID)
	}
	got := reloadOrder(t, db, o.ID)
	if got.PaymentStatus != model.PaymentPending {
		t.Errorf("status = %s", got.PaymentStatus)
	}
}

func TestCreateOrderTableOccupied(t *testing.T) {
	svc, db, gw, _ := newTestService(t)
	table := seedTable(t, db, "7")

	if _, err := svc.CreateOrder(context.Background(), validInput(&table.ID)); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := svc.CreateOrder(context.Background(), validInput(&table.ID))
	var occupied *TableOccupiedError
	if !errors.As(err, &occupied) {
		t.Fatalf("err = %v, want TableOccupiedError", err)
	}
	if occupied.TableNumber != "7" {
		t.Errorf("table number = %s, want 7", occupied.TableNumber)
	}

	// 占桌失败不得打网关、不得落单
	if gw.calls() != 1 {
		t.Errorf("gateway calls = %d, want 1", gw.calls())
	}
	var count int64
	db.Model(&model.Order{}).Where("table_id = ?", table.ID).Count(&count)
	if count != 1 {
		t.Errorf("orders for table = %d, want 1", count)
	}
}

func TestCreateOrderGatewayFailureReleasesLock(t *testing.T) {
	svc, db, gw, _ := newTestService(t)
	table := seedTable(t, db, "9")
	gw.createErr = errors.New("gateway down")

	_, err := svc.CreateOrder(context.Background(), validInput(&table.ID))
	if err == nil {
		t.Fatal("create succeeded with broken gateway")
	}

	// 网关失败必须整体回滚：桌不悬锁、订单不落库
	if got := reloadTable(t, db, table.ID); got.Occupied || got.LockedAt != nil {
		t.Errorf("table left locked after gateway failure: %+v", got)
	}
	var count int64
	db.Model(&model.Order{}).Count(&count)
	if count != 0 {
		t.Errorf("orders created after gateway failure: %d", count)
	}
}

func TestCompleteOrderIdempotent(t *testing.T) {
	svc, db, _, notifier := newTestService(t)
	table := seedTable(t, db, "2")

	o, err := svc.CreateOrder(context.Background(), validInput(&table.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.UpdatePaymentStatus(context.Background(), o.ExternalRef, model.PaymentPaid, ""); err != nil {
		t.Fatalf("pay: %v", err)
	}

	first, err := svc.CompleteOrder(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("first complete: %v", err)
	}
	if first.AlreadyCompleted {
		t.Error("first complete reported already_completed")
	}

	second, err := svc.CompleteOrder(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if !second.AlreadyCompleted {
		t.Error("second complete not reported as already_completed")
	}
	if !second.Order.CompletedAt.Equal(*first.Order.CompletedAt) {
		t.Errorf("completed_at changed: %v -> %v", first.Order.CompletedAt, second.Order.CompletedAt)
	}

	if evs := notifier.byType(events.TypeOrderCompleted); len(evs) != 1 {
		t.Errorf("order_completed events = %d, want 1", len(evs))
	}
}

func TestCompleteOrderErrors(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	table := seedTable(t, db, "3")

	_, err := svc.CompleteOrder(context.Background(), 999)
	var notFound *OrderNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want OrderNotFoundError", err)
	}

	o, err := svc.CreateOrder(context.Background(), validInput(&table.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = svc.CompleteOrder(context.Background(), o.ID)
	var notPaid *OrderNotPaidError
	if !errors.As(err, &notPaid) {
		t.Fatalf("err = %v, want OrderNotPaidError", err)
	}
	if notPaid.Status != model.PaymentPending {
		t.Errorf("status in error = %s, want pending", notPaid.Status)
	}
}

func TestCancelOrder(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	table := seedTable(t, db, "4")

	o, err := svc.CreateOrder(context.Background(), validInput(&table.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := svc.CancelOrder(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if first.AlreadyCancelled {
		t.Error("first cancel reported already_cancelled")
	}
	if first.Order.PaymentStatus != model.PaymentCancelled {
		t.Errorf("status = %s, want cancelled", first.Order.PaymentStatus)
	}
	if got := reloadTable(t, db, table.ID); got.Occupied {
		t.Error("table still occupied after cancel")
	}

	second, err := svc.CancelOrder(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if !second.AlreadyCancelled {
		t.Error("second cancel not reported as already_cancelled")
	}
}

func TestCancelCompletedOrderFails(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	table := seedTable(t, db, "6")

	o, _ := svc.CreateOrder(context.Background(), validInput(&table.ID))
	svc.UpdatePaymentStatus(context.Background(), o.ExternalRef, model.PaymentPaid, "")
	if _, err := svc.CompleteOrder(context.Background(), o.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, err := svc.CancelOrder(context.Background(), o.ID)
	var cannot *OrderCannotCancelError
	if !errors.As(err, &cannot) {
		t.Fatalf("err = %v, want OrderCannotCancelError", err)
	}
}

func TestUpdatePaymentStatusUnknownRef(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	updated, err := svc.UpdatePaymentStatus(context.Background(), "TRX-GONE", model.PaymentPaid, "")
	if err != nil {
		t.Fatalf("unknown ref: %v", err)
	}
	if updated != nil {
		t.Errorf("updated = %+v, want nil", updated)
	}
}

func TestUpdatePaymentStatusDuplicateDelivery(t *testing.T) {
	svc, _, _, notifier := newTestService(t)

	o, err := svc.CreateOrder(context.Background(), validInput(nil))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.UpdatePaymentStatus(context.Background(), o.ExternalRef, model.PaymentPaid, "ovo"); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	// 重复投递只产生一次状态迁移与一条事件
	if evs := notifier.byType(events.TypePaymentReceived); len(evs) != 1 {
		t.Errorf("payment_received events = %d, want 1", len(evs))
	}
}

func TestUpdatePaymentStatusNeverLeavesTerminal(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	table := seedTable(t, db, "8")

	o, _ := svc.CreateOrder(context.Background(), validInput(&table.ID))
	svc.UpdatePaymentStatus(context.Background(), o.ExternalRef, model.PaymentPaid, "")
	if _, err := svc.CompleteOrder(context.Background(), o.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	for _, status := range []model.PaymentStatus{model.PaymentFailed, model.PaymentExpired, model.PaymentPaid} {
		updated, err := svc.UpdatePaymentStatus(context.Background(), o.ExternalRef, status, "")
		if err != nil {
			t.Fatalf("update %s: %v", status, err)
		}
		if updated.PaymentStatus != model.PaymentCompleted {
			t.Fatalf("completed order moved to %s", updated.PaymentStatus)
		}
	}

	cancelled, _ := svc.CreateOrder(context.Background(), validInput(nil))
	if _, err := svc.CancelOrder(context.Background(), cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	updated, err := svc.UpdatePaymentStatus(context.Background(), cancelled.ExternalRef, model.PaymentPaid, "")
	if err != nil {
		t.Fatalf("update cancelled: %v", err)
	}
	if updated.PaymentStatus != model.PaymentCancelled {
		t.Errorf("cancelled order moved to %s", updated.PaymentStatus)
	}
}

func TestPaymentFailureReleasesTable(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	table := seedTable(t, db, "3")

	o, err := svc.CreateOrder(context.Background(), validInput(&table.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.UpdatePaymentStatus(context.Background(), o.ExternalRef, model.PaymentFailed, "")
	if err != nil {
		t.Fatalf("fail payment: %v", err)
	}
	if updated.PaymentStatus != model.PaymentFailed {
		t.Errorf("status = %s, want failed", updated.PaymentStatus)
	}
	if got := reloadTable(t, db, table.ID); got.Occupied {
		t.Error("table still occupied after failed payment")
	}

	_, err = svc.CompleteOrder(context.Background(), o.ID)
	var notPaid *OrderNotPaidError
	if !errors.As(err, &notPaid) {
		t.Fatalf("complete after failure: err = %v, want OrderNotPaidError", err)
	}
}

func TestCheckTableStatus(t *testing.T) {
	svc, db, _, _ := newTestService(t)

	st, err := svc.CheckTableStatus(context.Background(), 404)
	if err != nil {
		t.Fatalf("unknown table: %v", err)
	}
	if st.Exists {
		t.Error("unknown table reported as existing")
	}

	table := seedTable(t, db, "11")
	st, err = svc.CheckTableStatus(context.Background(), table.ID)
	if err != nil {
		t.Fatalf("free table: %v", err)
	}
	if !st.Exists || st.Occupied || st.ActiveOrder != nil {
		t.Errorf("free table status = %+v", st)
	}

	o, err := svc.CreateOrder(context.Background(), validInput(&table.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	st, err = svc.CheckTableStatus(context.Background(), table.ID)
	if err != nil {
		t.Fatalf("occupied table: %v", err)
	}
	if !st.Occupied || st.ActiveOrder == nil || st.ActiveOrder.Code != o.Code {
		t.Errorf("occupied table status = %+v", st)
	}
}

func TestReleaseStaleTablesExpiresOldPending(t *testing.T) {
	svc, db, _, notifier := newTestService(t)
	table := seedTable(t, db, "12")

	o, err := svc.CreateOrder(context.Background(), validInput(&table.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// 把订单时间拨回 16 分钟前，超过 15 分钟时限
	if err := db.Model(&model.Order{}).Where("id = ?", o.ID).
		Update("created_at", time.Now().Add(-16*time.Minute)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	released, err := svc.ReleaseStaleTables(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if released != 1 {
		t.Errorf("released = %d, want 1", released)
	}
	if got := reloadOrder(t, db, o.ID); got.PaymentStatus != model.PaymentExpired {
		t.Errorf("order status = %s, want expired", got.PaymentStatus)
	}
	if got := reloadTable(t, db, table.ID); got.Occupied {
		t.Error("table still occupied after sweep")
	}
	if evs := notifier.byType(events.TypePaymentExpired); len(evs) != 1 {
		t.Errorf("payment_expired events = %d, want 1", len(evs))
	}
}

func TestReleaseStaleTablesKeepsLatePaidOrder(t *testing.T) {
	svc, db, _, notifier := newTestService(t)
	table := seedTable(t, db, "13")

	o, err := svc.CreateOrder(context.Background(), validInput(&table.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// 订单早已超过 15 分钟时限，但付款赶在扫描判定之前落库：
	// 回收判定必须基于订单行的当前已提交状态，而不是下单时间
	if err := db.Model(&model.Order{}).Where("id = ?", o.ID).
		Update("created_at", time.Now().Add(-16*time.Minute)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}
	if _, err := svc.UpdatePaymentStatus(context.Background(), o.ExternalRef, model.PaymentPaid, "qris"); err != nil {
		t.Fatalf("pay: %v", err)
	}

	released, err := svc.ReleaseStaleTables(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if released != 0 {
		t.Errorf("released = %d, want 0", released)
	}
	if got := reloadOrder(t, db, o.ID); got.PaymentStatus != model.PaymentPaid {
		t.Errorf("paid order moved to %s by sweep", got.PaymentStatus)
	}
	if got := reloadTable(t, db, table.ID); !got.Occupied {
		t.Error("paid order's table released by sweep")
	}
	if evs := notifier.byType(events.TypePaymentExpired); len(evs) != 0 {
		t.Errorf("payment_expired events = %d, want 0", len(evs))
	}
}

func TestReleaseStaleTablesRules(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	// 占用但查无订单：数据不一致，回收
	orphan := seedTable(t, db, "20")
	now := time.Now()
	db.Model(orphan).Updates(map[string]any{"occupied": true, "locked_at": now})

	// 新鲜 pending：保留
	fresh := seedTable(t, db, "21")
	if _, err := svc.CreateOrder(ctx, validInput(&fresh.ID)); err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	// paid：保留，只有交付 / 取消可释放
	paidTable := seedTable(t, db, "22")
	paidOrder, _ := svc.CreateOrder(ctx, validInput(&paidTable.ID))
	svc.UpdatePaymentStatus(ctx, paidOrder.ExternalRef, model.PaymentPaid, "")

	// completed 但桌没放掉（此前部分失败）：回收
	doneTable := seedTable(t, db, "23")
	doneOrder, _ := svc.CreateOrder(ctx, validInput(&doneTable.ID))
	svc.UpdatePaymentStatus(ctx, doneOrder.ExternalRef, model.PaymentPaid, "")
	if _, err := svc.CompleteOrder(ctx, doneOrder.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	db.Model(&model.DiningTable{}).Where("id = ?", doneTable.ID).
		Updates(map[string]any{"occupied": true, "locked_at": now})

	released, err := svc.ReleaseStaleTables(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if released != 2 {
		t.Errorf("released = %d, want 2 (orphan + completed)", released)
	}

	if got := reloadTable(t, db, orphan.ID); got.Occupied {
		t.Error("orphan table not released")
	}
	if got := reloadTable(t, db, fresh.ID); !got.Occupied {
		t.Error("fresh pending table released")
	}
	if got := reloadTable(t, db, paidTable.ID); !got.Occupied {
		t.Error("paid table released by sweep")
	}
	if got := reloadTable(t, db, doneTable.ID); got.Occupied {
		t.Error("completed table not released")
	}
}
