package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultBaseURL = "https://api.xendit.co"

// XenditGateway 直连 Xendit invoice REST API。
// secretKey 为空时进入 mock 模式：不出网，直接返回指向前端的假收银台，
// 便于本地联调。
type XenditGateway struct {
	client       *http.Client
	baseURL      string
	secretKey    string
	webhookToken string
	frontendURL  string
}

// XenditOption 调整网关客户端（目前仅测试用的 baseURL 覆盖）。
type XenditOption func(*XenditGateway)

// WithBaseURL 覆盖 API 地址，单元测试指向 httptest server。
func WithBaseURL(u string) XenditOption {
	return func(g *XenditGateway) { g.baseURL = u }
}

func NewXenditGateway(secretKey, webhookToken, frontendURL string, opts ...XenditOption) *XenditGateway {
	g := &XenditGateway{
		client:       &http.Client{Timeout: 10 * time.Second},
		baseURL:      defaultBaseURL,
		secretKey:    secretKey,
		webhookToken: webhookToken,
		frontendURL:  frontendURL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateInvoice 创建托管 invoice。external_id 由我们生成并作为后续
// webhook / 查询的对账键。
func (g *XenditGateway) CreateInvoice(ctx context.Context, req InvoiceRequest) (Invoice, error) {
	externalRef := "TRX-" + strings.ToUpper(uuid.New().String()[:8])

	if g.secretKey == "" {
		return Invoice{
			ExternalRef: externalRef,
			CheckoutURL: fmt.Sprintf("%s/payment/success?external_id=%s", g.frontendURL, externalRef),
			InvoiceID:   "mock-" + externalRef,
		}, nil
	}

	body := map[string]any{
		"external_id":          externalRef,
		"amount":               req.Total,
		"description":          "Pembayaran Menu Digital - " + req.Code,
		"payer_email":          req.Email,
		"currency":             "IDR",
		"invoice_duration":     86400,
		"success_redirect_url": fmt.Sprintf("%s/payment/success?external_id=%s", g.frontendURL, externalRef),
		"failure_redirect_url": fmt.Sprintf("%s/payment/failed?external_id=%s", g.frontendURL, externalRef),
		"customer": map[string]any{
			"given_names":   req.Name,
			"mobile_number": req.Phone,
		},
		"items": req.Items,
	}
	if req.Email == "" {
		body["payer_email"] = "customer@menudigital.com"
	}

	var resp struct {
		ID         string `json:"id"`
		InvoiceURL string `json:"invoice_url"`
	}
	if err := g.do(ctx, http.MethodPost, "/v2/invoices", body, &resp); err != nil {
		return Invoice{}, fmt.Errorf("create invoice: %w", err)
	}

	return Invoice{
		ExternalRef: externalRef,
		CheckoutURL: resp.InvoiceURL,
		InvoiceID:   resp.ID,
	}, nil
}

// GetInvoiceByExternalRef 按 external_id 查询 invoice 状态（同步轮询兜底，
// webhook 丢失时前端可触发）。
func (g *XenditGateway) GetInvoiceByExternalRef(ctx context.Context, externalRef string) (InvoiceStatus, error) {
	if g.secretKey == "" {
		return InvoiceStatus{Status: "PENDING"}, nil
	}

	var invoices []struct {
		Status         string `json:"status"`
		PaidAmount     int64  `json:"paid_amount"`
		PaymentMethod  string `json:"payment_method"`
		PaymentChannel string `json:"payment_channel"`
	}
	path := "/v2/invoices?external_id=" + url.QueryEscape(externalRef)
	if err := g.do(ctx, http.MethodGet, path, nil, &invoices); err != nil {
		return InvoiceStatus{}, fmt.Errorf("get invoice: %w", err)
	}
	if len(invoices) == 0 {
		return InvoiceStatus{Status: "NOT_FOUND"}, nil
	}

	inv := invoices[0]
	return InvoiceStatus{
		Status:         inv.Status,
		PaidAmount:     inv.PaidAmount,
		PaymentMethod:  inv.PaymentMethod,
		PaymentChannel: inv.PaymentChannel,
	}, nil
}

// VerifyWebhook 校验 Xendit 回调令牌（x-callback-token 与配置一致）。
func (g *XenditGateway) VerifyWebhook(header http.Header) bool {
	token := header.Get("x-callback-token")
	return g.webhookToken != "" && token == g.webhookToken
}

func (g *XenditGateway) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.secretKey, "")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message != "" {
			return fmt.Errorf("xendit %s: %s", resp.Status, apiErr.Message)
		}
		return fmt.Errorf("xendit %s", resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
