package payment

import (
	"context"
	"net/http"
)

// InvoiceItem 传给网关的行项目（名称 / 数量 / 单价）。
type InvoiceItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// InvoiceRequest 创建 invoice 所需的订单快照。
type InvoiceRequest struct {
	Code  string
	Name  string
	Phone string
	Email string
	Total int64
	Items []InvoiceItem
}

// Invoice 网关返回的托管收银台信息。
type Invoice struct {
	ExternalRef string
	CheckoutURL string
	InvoiceID   string
}

// InvoiceStatus 网关侧的 invoice 状态快照（PAID / SETTLED / EXPIRED / PENDING）。
type InvoiceStatus struct {
	Status         string
	PaidAmount     int64
	PaymentMethod  string
	PaymentChannel string
}

// Gateway 是订单生命周期服务对支付网关的全部依赖：
// 建 invoice、按 external_id 查状态、校验回调真实性。
type Gateway interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) (Invoice, error)
	GetInvoiceByExternalRef(ctx context.Context, externalRef string) (InvoiceStatus, error)
	VerifyWebhook(header http.Header) bool
}
