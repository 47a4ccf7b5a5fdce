package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/backend"
)

const (
	defaultOrderPage     = 1
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100

	MessageNoOrders = "Không tìm thấy đơn hàng nào phù hợp với điều kiện tìm kiếm."
)

// OrderStatuses lists the statuses accepted by the order search.
var OrderStatuses = []string{"AWAITING_PAYMENT", "PROCESSING", "SHIPPED", "COMPLETED", "CANCELED", "REFUNDED"}

// OrderFilter holds the 16 optional search filters. Pagination is kept apart
// in Page and Limit.
type OrderFilter struct {
	Status         string   `json:"status,omitempty"`
	ShopID         string   `json:"shop_id,omitempty"`
	MinAmount      *float64 `json:"min_amount,omitempty"`
	MaxAmount      *float64 `json:"max_amount,omitempty"`
	CreatedFrom    string   `json:"created_from,omitempty"`
	CreatedTo      string   `json:"created_to,omitempty"`
	PaidFrom       string   `json:"paid_from,omitempty"`
	PaidTo         string   `json:"paid_to,omitempty"`
	ProcessingFrom string   `json:"processing_from,omitempty"`
	ProcessingTo   string   `json:"processing_to,omitempty"`
	ShippedFrom    string   `json:"shipped_from,omitempty"`
	ShippedTo      string   `json:"shipped_to,omitempty"`
	CompletedFrom  string   `json:"completed_from,omitempty"`
	CompletedTo    string   `json:"completed_to,omitempty"`
	CancelledFrom  string   `json:"cancelled_from,omitempty"`
	CancelledTo    string   `json:"cancelled_to,omitempty"`

	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// ParseOrderFilter decodes tool-call arguments and normalizes the status.
func ParseOrderFilter(args map[string]any) (OrderFilter, error) {
	var f OrderFilter
	if err := decodeArgs(args, &f); err != nil {
		return OrderFilter{}, err
	}

	f.Status = strings.ToUpper(strings.TrimSpace(f.Status))
	if f.Status != "" && !contains(OrderStatuses, f.Status) {
		return OrderFilter{}, fmt.Errorf("%w: Trạng thái '%s' không hợp lệ. Các trạng thái hợp lệ: %s",
			contractx.ErrValidation, f.Status, strings.Join(OrderStatuses, ", "))
	}
	if f.Page <= 0 {
		f.Page = defaultOrderPage
	}
	if f.Limit <= 0 {
		f.Limit = defaultOrderPageSize
	}
	if f.Limit > maxOrderPageSize {
		f.Limit = maxOrderPageSize
	}
	return f, nil
}

// Query renders the filter as backend query parameters. Unset filters are omitted.
func (f OrderFilter) Query() url.Values {
	q := url.Values{}
	set := func(key, value string) {
		if v := strings.TrimSpace(value); v != "" {
			q.Set(key, v)
		}
	}

	set("status", f.Status)
	set("shop_id", f.ShopID)
	if f.MinAmount != nil {
		q.Set("min_amount", strconv.FormatFloat(*f.MinAmount, 'f', -1, 64))
	}
	if f.MaxAmount != nil {
		q.Set("max_amount", strconv.FormatFloat(*f.MaxAmount, 'f', -1, 64))
	}
	set("created_from", f.CreatedFrom)
	set("created_to", f.CreatedTo)
	set("paid_from", f.PaidFrom)
	set("paid_to", f.PaidTo)
	set("processing_from", f.ProcessingFrom)
	set("processing_to", f.ProcessingTo)
	set("shipped_from", f.ShippedFrom)
	set("shipped_to", f.ShippedTo)
	set("completed_from", f.CompletedFrom)
	set("completed_to", f.CompletedTo)
	set("cancelled_from", f.CancelledFrom)
	set("cancelled_to", f.CancelledTo)
	q.Set("page", strconv.Itoa(f.Page))
	q.Set("page_size", strconv.Itoa(f.Limit))
	return q
}

// SearchOrders calls GET /orders/search/detail.
func SearchOrders(ctx context.Context, client *backend.Client, token string, f OrderFilter) (map[string]any, error) {
	if strings.TrimSpace(token) == "" {
		return nil, contractx.ErrUnauthorized
	}

	env, err := client.Envelope(ctx, backend.Request{
		Method: http.MethodGet,
		Path:   "/orders/search/detail",
		Query:  f.Query(),
		Token:  token,
	})
	if err != nil {
		return nil, err
	}
	if err := env.Expect(backend.CodeOK); err != nil {
		return nil, err
	}

	var orders []json.RawMessage
	if err := env.DecodeResult(&orders); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return map[string]any{"message": MessageNoOrders}, nil
	}
	return map[string]any{"orders": orders, "total": len(orders)}, nil
}

func decodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: encode tool args: %v", contractx.ErrValidation, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode tool args: %v", contractx.ErrValidation, err)
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
