package tool

import (
	"fmt"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	jsonschemax "github.com/tanpawarit/Chative-Ecom-Support/pkg/jsonschema"
)

// ComplaintCategories are the accepted complaint_intake categories.
var ComplaintCategories = []string{"BUG", "COMPLAINT", "SUGGESTION", "OTHER"}

const (
	retrievalArgsSchema = `{
  "type": "object",
  "properties": {
    "query": {"type": "string", "minLength": 1},
    "intent": {"type": "string", "enum": ["product", "policy"]}
  },
  "required": ["query", "intent"]
}`

	queryArgsSchema = `{
  "type": "object",
  "properties": {
    "query": {"type": "string", "minLength": 1}
  },
  "required": ["query"]
}`

	complaintArgsSchema = `{
  "type": "object",
  "properties": {
    "category": {"type": "string", "enum": ["BUG", "COMPLAINT", "SUGGESTION", "OTHER"]},
    "content": {"type": "string", "minLength": 1}
  },
  "required": ["category", "content"]
}`
)

// CapabilityInfos declares the capabilities offered to the orchestrator's reasoning engine.
func CapabilityInfos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: string(contractx.CapabilityRetrieval),
			Desc: "Tìm kiếm sản phẩm hoặc chính sách chung của sàn.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query":  {Type: schema.String, Desc: "Câu hỏi ngắn gọn, đủ ngữ cảnh", Required: true},
				"intent": {Type: schema.String, Desc: "product hoặc policy", Enum: []string{"product", "policy"}, Required: true},
			}),
		},
		{
			Name: string(contractx.CapabilityOrder),
			Desc: "Tra cứu đơn hàng của chính khách hàng.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "Câu hỏi về đơn hàng", Required: true},
			}),
		},
		{
			Name: string(contractx.CapabilityVoucher),
			Desc: "Tra cứu và tư vấn voucher, mã giảm giá.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "Câu hỏi về voucher", Required: true},
			}),
		},
		{
			Name: string(contractx.CapabilityProductDetail),
			Desc: "Chi tiết và phân tích đánh giá của sản phẩm khách đang xem.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "Câu hỏi về sản phẩm", Required: true},
			}),
		},
		{
			Name: string(contractx.CapabilityComplaintIntake),
			Desc: "Chuyển khách hàng tới trang khiếu nại, góp ý.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"category": {Type: schema.String, Desc: "Loại khiếu nại", Enum: ComplaintCategories, Required: true},
				"content":  {Type: schema.String, Desc: "Tóm tắt nội dung khiếu nại", Required: true},
			}),
		},
	}
}

// CapabilityValidators compiles one argument validator per capability.
func CapabilityValidators() (map[contractx.Capability]*jsonschemax.Validator, error) {
	raw := map[contractx.Capability]string{
		contractx.CapabilityRetrieval:       retrievalArgsSchema,
		contractx.CapabilityOrder:           queryArgsSchema,
		contractx.CapabilityVoucher:         queryArgsSchema,
		contractx.CapabilityProductDetail:   queryArgsSchema,
		contractx.CapabilityComplaintIntake: complaintArgsSchema,
	}

	out := make(map[contractx.Capability]*jsonschemax.Validator, len(raw))
	for capability, doc := range raw {
		v, err := jsonschemax.New([]byte(doc))
		if err != nil {
			return nil, fmt.Errorf("capability=%s: %w", capability, err)
		}
		out[capability] = v
	}
	return out, nil
}
