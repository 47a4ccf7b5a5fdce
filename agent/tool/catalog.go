package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/backend"
)

const (
	ToolSearchOrdersDetail = "search_orders_detail"
	ToolGetVouchers        = "get_vouchers"
)

// Executor runs one planned tool call with the caller's bearer token.
// Argument problems are reported in ToolResult.Error so the model can explain
// them; transport failures are returned as errors.
type Executor func(ctx context.Context, token string, req contractx.ToolRequest) (contractx.ToolResult, error)

// Catalog binds handler tools to the backend clients.
type Catalog struct {
	backends backend.Clients
}

func NewCatalog(clients backend.Clients) *Catalog {
	return &Catalog{backends: clients}
}

func (c *Catalog) BuildForAgent(agentType contractx.AgentType) ([]*schema.ToolInfo, Executor) {
	return InfosForAgent(agentType), c.NewExecutor(agentType)
}

func (c *Catalog) NewExecutor(agentType contractx.AgentType) Executor {
	fallback := DefaultExecutor(agentType)
	return func(ctx context.Context, token string, req contractx.ToolRequest) (contractx.ToolResult, error) {
		switch {
		case agentType == contractx.AgentTypeOrder && req.Tool == ToolSearchOrdersDetail:
			filter, err := ParseOrderFilter(req.Args)
			if err != nil {
				return argumentError(req.Tool, err)
			}
			out, err := SearchOrders(ctx, c.backends.Orders, token, filter)
			if err != nil {
				return contractx.ToolResult{}, err
			}
			return contractx.ToolResult{Tool: req.Tool, Result: out}, nil

		case agentType == contractx.AgentTypeVoucher && req.Tool == ToolGetVouchers:
			filter, err := ParseVoucherFilter(req.Args)
			if err != nil {
				return argumentError(req.Tool, err)
			}
			out, err := GetVouchers(ctx, c.backends.Orders, token, filter)
			if err != nil {
				return contractx.ToolResult{}, err
			}
			return contractx.ToolResult{Tool: req.Tool, Result: out}, nil

		default:
			return fallback(ctx, token, req)
		}
	}
}

func DefaultExecutor(agentType contractx.AgentType) Executor {
	return func(ctx context.Context, _ string, req contractx.ToolRequest) (contractx.ToolResult, error) {
		return contractx.ToolResult{
			Tool:  req.Tool,
			Error: fmt.Sprintf("tool=%s is unavailable for agent=%s", req.Tool, agentType),
		}, nil
	}
}

func argumentError(tool string, err error) (contractx.ToolResult, error) {
	if errors.Is(err, contractx.ErrValidation) {
		return contractx.ToolResult{Tool: tool, Error: err.Error()}, nil
	}
	return contractx.ToolResult{}, err
}

// InfosForAgent returns the single tool bound to a handler's planning step.
func InfosForAgent(agentType contractx.AgentType) []*schema.ToolInfo {
	switch agentType {
	case contractx.AgentTypeOrder:
		dateParam := func(desc string) *schema.ParameterInfo {
			return &schema.ParameterInfo{Type: schema.String, Desc: desc + " (YYYY-MM-DD)"}
		}
		return []*schema.ToolInfo{
			{
				Name: ToolSearchOrdersDetail,
				Desc: "Tìm kiếm đơn hàng chi tiết với nhiều bộ lọc tùy chọn.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"status":          {Type: schema.String, Desc: "Trạng thái đơn hàng", Enum: OrderStatuses},
					"shop_id":         {Type: schema.String, Desc: "ID của shop"},
					"min_amount":      {Type: schema.Number, Desc: "Giá trị đơn tối thiểu"},
					"max_amount":      {Type: schema.Number, Desc: "Giá trị đơn tối đa"},
					"created_from":    dateParam("Tạo từ ngày"),
					"created_to":      dateParam("Tạo đến ngày"),
					"paid_from":       dateParam("Thanh toán từ ngày"),
					"paid_to":         dateParam("Thanh toán đến ngày"),
					"processing_from": dateParam("Xử lý từ ngày"),
					"processing_to":   dateParam("Xử lý đến ngày"),
					"shipped_from":    dateParam("Giao vận chuyển từ ngày"),
					"shipped_to":      dateParam("Giao vận chuyển đến ngày"),
					"completed_from":  dateParam("Hoàn thành từ ngày"),
					"completed_to":    dateParam("Hoàn thành đến ngày"),
					"cancelled_from":  dateParam("Hủy từ ngày"),
					"cancelled_to":    dateParam("Hủy đến ngày"),
					"page":            {Type: schema.Integer, Desc: "Số trang, mặc định 1"},
					"limit":           {Type: schema.Integer, Desc: "Số đơn mỗi trang, mặc định 20, tối đa 100"},
				}),
			},
		}
	case contractx.AgentTypeVoucher:
		return []*schema.ToolInfo{
			{
				Name: ToolGetVouchers,
				Desc: "Lấy danh sách voucher với các bộ lọc tùy chọn.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"owner_type":      {Type: schema.String, Desc: "PLATFORM là voucher sàn, SHOP là voucher shop", Enum: []string{OwnerPlatform, OwnerShop}},
					"shop_id":         {Type: schema.String, Desc: "ID shop, chỉ dùng khi owner_type=SHOP"},
					"applies_to_type": {Type: schema.String, Desc: "ORDER_TOTAL giảm tổng đơn, SHIPPING_FEE giảm phí ship", Enum: []string{AppliesToOrderTotal, AppliesToShippingFee}},
					"sort_by":         {Type: schema.String, Desc: "Sắp xếp, mặc định discount_desc", Enum: []string{SortDiscountDesc, SortDiscountAsc, SortCreatedAt}},
				}),
			},
		}
	default:
		return nil
	}
}
