package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateInvoiceMockMode(t *testing.T) {
	g := NewXenditGateway("", "token", "http://localhost:5173")

	inv, err := g.CreateInvoice(context.Background(), InvoiceRequest{
		Code:  "ORD-1-ABCD",
		Name:  "Budi",
		Total: 50000,
	})
	if err != nil {
		t.Fatalf("mock create: %v", err)
	}
	if !strings.HasPrefix(inv.ExternalRef, "TRX-") {
		t.Errorf("external ref = %q, want TRX- prefix", inv.ExternalRef)
	}
	if !strings.Contains(inv.CheckoutURL, "http://localhost:5173/payment/success") {
		t.Errorf("checkout url = %q", inv.CheckoutURL)
	}
	if !strings.HasPrefix(inv.InvoiceID, "mock-") {
		t.Errorf("invoice id = %q", inv.InvoiceID)
	}
}

func TestCreateInvoiceCallsAPI(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"id":          "inv-123",
			"invoice_url": "https://checkout.xendit.co/web/inv-123",
		})
	}))
	defer srv.Close()

	g := NewXenditGateway("sk_test", "token", "http://front", WithBaseURL(srv.URL))
	inv, err := g.CreateInvoice(context.Background(), InvoiceRequest{
		Code:  "ORD-1-ABCD",
		Name:  "Budi",
		Phone: "0812",
		Total: 50000,
		Items: []InvoiceItem{{Name: "Nasi Goreng", Quantity: 2, Price: 15000}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if gotPath != "/v2/invoices" {
		t.Errorf("path = %s", gotPath)
	}
	if !strings.HasPrefix(gotAuth, "Basic ") {
		t.Errorf("auth header = %q, want basic auth", gotAuth)
	}
	if gotBody["amount"].(float64) != 50000 {
		t.Errorf("amount = %v", gotBody["amount"])
	}
	if gotBody["external_id"] != inv.ExternalRef {
		t.Errorf("external_id %v != returned ref %s", gotBody["external_id"], inv.ExternalRef)
	}
	// 未提供邮箱时使用占位邮箱，Xendit 要求 payer_email 非空
	if gotBody["payer_email"] != "customer@menudigital.com" {
		t.Errorf("payer_email = %v", gotBody["payer_email"])
	}
	if inv.InvoiceID != "inv-123" || inv.CheckoutURL != "https://checkout.xendit.co/web/inv-123" {
		t.Errorf("invoice = %+v", inv)
	}
}

func TestCreateInvoiceAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "AMOUNT_TOO_LOW"})
	}))
	defer srv.Close()

	g := NewXenditGateway("sk_test", "token", "http://front", WithBaseURL(srv.URL))
	_, err := g.CreateInvoice(context.Background(), InvoiceRequest{Code: "ORD-X", Name: "A", Total: 1})
	if err == nil || !strings.Contains(err.Error(), "AMOUNT_TOO_LOW") {
		t.Fatalf("err = %v, want AMOUNT_TOO_LOW", err)
	}
}

func TestGetInvoiceByExternalRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("external_id") == "TRX-KNOWN" {
			json.NewEncoder(w).Encode([]map[string]any{{
				"status":          "PAID",
				"paid_amount":     50000,
				"payment_method":  "EWALLET",
				"payment_channel": "OVO",
			}})
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer srv.Close()

	g := NewXenditGateway("sk_test", "token", "http://front", WithBaseURL(srv.URL))

	st, err := g.GetInvoiceByExternalRef(context.Background(), "TRX-KNOWN")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.Status != "PAID" || st.PaidAmount != 50000 || st.PaymentChannel != "OVO" {
		t.Errorf("status = %+v", st)
	}

	st, err = g.GetInvoiceByExternalRef(context.Background(), "TRX-GONE")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if st.Status != "NOT_FOUND" {
		t.Errorf("missing status = %s, want NOT_FOUND", st.Status)
	}
}

func TestVerifyWebhook(t *testing.T) {
	g := NewXenditGateway("sk", "secret-token", "http://front")

	h := http.Header{}
	h.Set("x-callback-token", "secret-token")
	if !g.VerifyWebhook(h) {
		t.Error("valid token rejected")
	}

	h.Set("x-callback-token", "wrong")
	if g.VerifyWebhook(h) {
		t.Error("wrong token accepted")
	}

	if g.VerifyWebhook(http.Header{}) {
		t.Error("missing token accepted")
	}

	// 未配置 token 时一律拒绝，避免空串相等放行
	empty := NewXenditGateway("sk", "", "http://front")
	if empty.VerifyWebhook(http.Header{}) {
		t.Error("empty configured token accepted empty header")
	}
}
