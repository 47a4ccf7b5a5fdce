package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/backend"
)

const (
	OwnerPlatform = "PLATFORM"
	OwnerShop     = "SHOP"

	AppliesToOrderTotal  = "ORDER_TOTAL"
	AppliesToShippingFee = "SHIPPING_FEE"

	SortDiscountDesc = "discount_desc"
	SortDiscountAsc  = "discount_asc"
	SortCreatedAt    = "created_at"
)

type VoucherFilter struct {
	OwnerType     string `json:"owner_type,omitempty"`
	ShopID        string `json:"shop_id,omitempty"`
	AppliesToType string `json:"applies_to_type,omitempty"`
	SortBy        string `json:"sort_by,omitempty"`
}

func ParseVoucherFilter(args map[string]any) (VoucherFilter, error) {
	var f VoucherFilter
	if err := decodeArgs(args, &f); err != nil {
		return VoucherFilter{}, err
	}

	f.OwnerType = strings.ToUpper(strings.TrimSpace(f.OwnerType))
	f.AppliesToType = strings.ToUpper(strings.TrimSpace(f.AppliesToType))
	f.SortBy = strings.ToLower(strings.TrimSpace(f.SortBy))
	f.ShopID = strings.TrimSpace(f.ShopID)

	if f.OwnerType != "" && !contains([]string{OwnerPlatform, OwnerShop}, f.OwnerType) {
		return VoucherFilter{}, fmt.Errorf("%w: owner_type=%q", contractx.ErrValidation, f.OwnerType)
	}
	if f.AppliesToType != "" && !contains([]string{AppliesToOrderTotal, AppliesToShippingFee}, f.AppliesToType) {
		return VoucherFilter{}, fmt.Errorf("%w: applies_to_type=%q", contractx.ErrValidation, f.AppliesToType)
	}
	if f.SortBy == "" {
		f.SortBy = SortDiscountDesc
	}
	if !contains([]string{SortDiscountDesc, SortDiscountAsc, SortCreatedAt}, f.SortBy) {
		return VoucherFilter{}, fmt.Errorf("%w: sort_by=%q", contractx.ErrValidation, f.SortBy)
	}
	return f, nil
}

// Query drops shop_id unless the owner is a shop.
func (f VoucherFilter) Query() url.Values {
	q := url.Values{}
	if f.OwnerType != "" {
		q.Set("owner_type", f.OwnerType)
	}
	if f.ShopID != "" && f.OwnerType == OwnerShop {
		q.Set("shop_id", f.ShopID)
	}
	if f.AppliesToType != "" {
		q.Set("applies_to_type", f.AppliesToType)
	}
	if f.SortBy != "" {
		q.Set("sort_by", f.SortBy)
	}
	return q
}

// Describe renders the applied filters for the empty-result message.
func (f VoucherFilter) Describe() string {
	var parts []string
	switch f.OwnerType {
	case OwnerPlatform:
		parts = append(parts, "voucher sàn")
	case OwnerShop:
		parts = append(parts, strings.TrimSpace("voucher shop "+f.ShopID))
	}
	switch f.AppliesToType {
	case AppliesToOrderTotal:
		parts = append(parts, "giảm tổng đơn")
	case AppliesToShippingFee:
		parts = append(parts, "giảm phí ship")
	}
	if len(parts) == 0 {
		return "voucher"
	}
	return strings.Join(parts, " ")
}

// applied mirrors Query: shop_id is reported only for shop-owned vouchers.
func (f VoucherFilter) applied() map[string]any {
	shopID := ""
	if f.OwnerType == OwnerShop {
		shopID = f.ShopID
	}
	return map[string]any{
		"owner_type":      nullable(f.OwnerType),
		"shop_id":         nullable(shopID),
		"applies_to_type": nullable(f.AppliesToType),
		"sort_by":         nullable(f.SortBy),
	}
}

// GetVouchers calls GET /vouchers.
func GetVouchers(ctx context.Context, client *backend.Client, token string, f VoucherFilter) (map[string]any, error) {
	if strings.TrimSpace(token) == "" {
		return nil, contractx.ErrUnauthorized
	}

	env, err := client.Envelope(ctx, backend.Request{
		Method: http.MethodGet,
		Path:   "/vouchers",
		Query:  f.Query(),
		Token:  token,
	})
	if err != nil {
		return nil, err
	}
	if err := env.Expect(backend.CodeOK); err != nil {
		return nil, err
	}

	var page struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := env.DecodeResult(&page); err != nil {
		return nil, err
	}

	out := map[string]any{
		"vouchers":        page.Data,
		"total":           len(page.Data),
		"filters_applied": f.applied(),
	}
	if len(page.Data) == 0 {
		out["vouchers"] = []json.RawMessage{}
		out["message"] = fmt.Sprintf("Không tìm thấy %s nào.", f.Describe())
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
